// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package ratelimit provides per-scope request throttling, used to bound
// how fast any one ingesting project can submit traces. Adapted from the
// teacher's multi-window token/count limiter, trimmed to the single
// count-per-window case this domain needs.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LimitRule defines one rate limit rule.
type LimitRule struct {
	Type   LimitType
	Window TimeWindow
	Limit  int64
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	Limits  []LimitRule
}

// RateLimiter checks and records usage against a Config's rules.
type RateLimiter interface {
	Check(ctx context.Context, scope Scope, identifier string) (*CheckResult, error)
	Record(ctx context.Context, scope Scope, identifier string, count int64) error
	CheckAndRecord(ctx context.Context, scope Scope, identifier string, count int64) (*CheckResult, error)
}

// DefaultRateLimiter implements RateLimiter against a Store.
type DefaultRateLimiter struct {
	config *Config
	store  Store
	mu     sync.Mutex
}

// NewRateLimiter builds a DefaultRateLimiter.
func NewRateLimiter(cfg *Config, store Store) (*DefaultRateLimiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	for i, limit := range cfg.Limits {
		if limit.Window == "" {
			return nil, fmt.Errorf("limit[%d]: window is required", i)
		}
		if limit.Limit <= 0 {
			return nil, fmt.Errorf("limit[%d]: limit must be positive", i)
		}
	}
	return &DefaultRateLimiter{config: cfg, store: store}, nil
}

// Check verifies every configured limit without recording usage.
func (rl *DefaultRateLimiter) Check(ctx context.Context, scope Scope, identifier string) (*CheckResult, error) {
	if !rl.config.Enabled {
		return &CheckResult{Allowed: true}, nil
	}
	if identifier == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.checkUnlocked(ctx, scope, identifier)
}

// Record records count units of usage against every configured limit.
func (rl *DefaultRateLimiter) Record(ctx context.Context, scope Scope, identifier string, count int64) error {
	if !rl.config.Enabled {
		return nil
	}
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.recordUnlocked(ctx, scope, identifier, count)
}

// CheckAndRecord atomically checks and, if allowed, records usage.
func (rl *DefaultRateLimiter) CheckAndRecord(ctx context.Context, scope Scope, identifier string, count int64) (*CheckResult, error) {
	if !rl.config.Enabled {
		return &CheckResult{Allowed: true}, nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	result, err := rl.checkUnlocked(ctx, scope, identifier)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, nil
	}
	if err := rl.recordUnlocked(ctx, scope, identifier, count); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	return result, nil
}

func (rl *DefaultRateLimiter) checkUnlocked(ctx context.Context, scope Scope, identifier string) (*CheckResult, error) {
	result := &CheckResult{Allowed: true, Usages: make([]Usage, 0, len(rl.config.Limits))}
	now := time.Now()
	var earliestRetry *time.Time

	for _, limit := range rl.config.Limits {
		current, windowEnd, err := rl.store.GetUsage(ctx, scope, identifier, limit.Type, limit.Window)
		if err != nil {
			return nil, fmt.Errorf("failed to get usage for %s/%s: %w", limit.Type, limit.Window, err)
		}
		if windowEnd.Before(now) {
			current = 0
			windowEnd = now.Add(limit.Window.Duration())
		}
		remaining := limit.Limit - current
		if remaining < 0 {
			remaining = 0
		}
		percentage := float64(current) / float64(limit.Limit) * 100

		result.Usages = append(result.Usages, Usage{
			LimitType: limit.Type, Window: limit.Window, Current: current,
			Limit: limit.Limit, WindowEnd: windowEnd, Remaining: remaining, Percentage: percentage,
		})

		if current >= limit.Limit {
			result.Allowed = false
			if result.Reason == "" {
				result.Reason = fmt.Sprintf("%s limit exceeded for %s window (%d/%d)", limit.Type, limit.Window, current, limit.Limit)
			}
			if earliestRetry == nil || windowEnd.Before(*earliestRetry) {
				earliestRetry = &windowEnd
			}
		}
	}

	if !result.Allowed && earliestRetry != nil {
		if d := time.Until(*earliestRetry); d > 0 {
			result.RetryAfter = &d
		}
	}
	return result, nil
}

func (rl *DefaultRateLimiter) recordUnlocked(ctx context.Context, scope Scope, identifier string, count int64) error {
	if count <= 0 {
		return nil
	}
	for _, limit := range rl.config.Limits {
		if _, _, err := rl.store.IncrementUsage(ctx, scope, identifier, limit.Type, limit.Window, count); err != nil {
			return fmt.Errorf("failed to increment usage for %s/%s: %w", limit.Type, limit.Window, err)
		}
	}
	return nil
}
