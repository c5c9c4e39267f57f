// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_ClustersByTemplateAndDropsSmallBuckets(t *testing.T) {
	strs := []string{
		"Translate the word cat into French",
		"Translate the word dog into French",
		"Translate the word bird into French",
		"What is the weather like today",
	}

	groups := Group(strs, 2, 2)
	require.Len(t, groups, 1)

	for tpl, indices := range groups {
		assert.Len(t, indices, 3)
		for _, idx := range indices {
			ok, _ := Match(tpl, strs[idx])
			assert.True(t, ok)
		}
		assert.NotContains(t, indices, 3) // the weather string never joins the cluster
	}
}

func TestGroup_BelowMinimumIsDropped(t *testing.T) {
	strs := []string{"one unrelated string", "a totally different one"}
	groups := Group(strs, 2, 3)
	assert.Empty(t, groups)
}

func TestGroup_EmptyInput(t *testing.T) {
	assert.Empty(t, Group(nil, 2, 2))
}
