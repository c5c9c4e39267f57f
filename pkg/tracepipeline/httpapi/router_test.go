// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/auth"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ratelimit"
)

func TestRouter_ThrottlesPerProjectAfterLimit(t *testing.T) {
	h, _ := newTestHandlers(t)
	limiter, err := ratelimit.NewRateLimiter(&ratelimit.Config{
		Enabled: true,
		Limits:  []ratelimit.LimitRule{{Type: ratelimit.LimitTypeCount, Window: ratelimit.WindowMinute, Limit: 1}},
	}, ratelimit.NewMemoryStore())
	require.NoError(t, err)

	router := NewRouter(RouterConfig{Handlers: h, RateLimiter: limiter})

	first := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(traceCreatePayload(t, "acme")))
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, first)
	require.Equal(t, http.StatusCreated, rec1.Code)

	second := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(traceCreatePayload(t, "acme")))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, second)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)

	other := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(traceCreatePayload(t, "other-project")))
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, other)
	require.Equal(t, http.StatusCreated, rec3.Code, "a different project's quota must be independent")
}

func TestRouter_RejectsMissingBearerTokenWhenAuthConfigured(t *testing.T) {
	h, _ := newTestHandlers(t)
	validator := auth.NewValidator([]byte("secret"), "", "")
	router := NewRouter(RouterConfig{Handlers: h, Auth: validator})

	req := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(traceCreatePayload(t, "acme")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func traceCreatePayload(t *testing.T, project string) []byte {
	t.Helper()
	b, err := json.Marshal(traceCreateRequest{
		Project: project,
		Model:   "gpt-4o",
		Input: []traceInputItemWire{
			{Type: "message", Role: "user", Content: "hi"},
		},
	})
	require.NoError(t, err)
	return b
}
