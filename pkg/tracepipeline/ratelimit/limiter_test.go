// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckAndRecord_AllowsUntilLimitThenBlocks(t *testing.T) {
	store := NewMemoryStore()
	limiter, err := NewRateLimiter(&Config{
		Enabled: true,
		Limits:  []LimitRule{{Type: LimitTypeCount, Window: WindowMinute, Limit: 2}},
	}, store)
	require.NoError(t, err)

	ctx := context.Background()
	r1, err := limiter.CheckAndRecord(ctx, ScopeProject, "acme", 1)
	require.NoError(t, err)
	require.True(t, r1.Allowed)

	r2, err := limiter.CheckAndRecord(ctx, ScopeProject, "acme", 1)
	require.NoError(t, err)
	require.True(t, r2.Allowed)

	r3, err := limiter.CheckAndRecord(ctx, ScopeProject, "acme", 1)
	require.NoError(t, err)
	require.False(t, r3.Allowed)
}

func TestCheckAndRecord_DisabledAlwaysAllows(t *testing.T) {
	store := NewMemoryStore()
	limiter, err := NewRateLimiter(&Config{
		Enabled: false,
		Limits:  []LimitRule{{Type: LimitTypeCount, Window: WindowMinute, Limit: 1}},
	}, store)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r, err := limiter.CheckAndRecord(ctx, ScopeProject, "acme", 1)
		require.NoError(t, err)
		require.True(t, r.Allowed)
	}
}

func TestCheckAndRecord_SeparateIdentifiersIndependent(t *testing.T) {
	store := NewMemoryStore()
	limiter, err := NewRateLimiter(&Config{
		Enabled: true,
		Limits:  []LimitRule{{Type: LimitTypeCount, Window: WindowMinute, Limit: 1}},
	}, store)
	require.NoError(t, err)

	ctx := context.Background()
	r1, err := limiter.CheckAndRecord(ctx, ScopeProject, "acme", 1)
	require.NoError(t, err)
	require.True(t, r1.Allowed)

	r2, err := limiter.CheckAndRecord(ctx, ScopeProject, "globex", 1)
	require.NoError(t, err)
	require.True(t, r2.Allowed)
}
