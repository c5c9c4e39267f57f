// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInputItemType_Valid(t *testing.T) {
	require.True(t, ItemMessage.Valid())
	require.True(t, ItemToolCall.Valid())
	require.False(t, InputItemType("garbage").Valid())
	require.False(t, InputItemType("").Valid())
}

func TestRole_Valid(t *testing.T) {
	require.True(t, RoleUser.Valid())
	require.True(t, RoleTool.Valid())
	require.False(t, Role("banana").Valid())
}
