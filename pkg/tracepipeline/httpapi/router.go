// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/auth"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ratelimit"
)

// requestIDHeader carries the per-request correlation id, generated
// server-side when the caller doesn't supply one, so a request can be
// traced across logs, spans, and client-side error reports.
const requestIDHeader = "X-Request-Id"

// RouterConfig assembles the pieces NewRouter wires together. Auth and
// RateLimiter are both optional: a nil Auth skips token validation, a nil
// RateLimiter lets every request through.
type RouterConfig struct {
	Handlers    *Handlers
	Metrics     *Metrics
	Auth        *auth.Validator
	RateLimiter ratelimit.RateLimiter
	Logger      *slog.Logger
}

// NewRouter builds the tracepipeline HTTP surface: panic recovery ->
// observability -> request logging -> (optional) auth -> per-project
// throttling -> routes. Auth runs before throttling so the throttle can key
// on the authenticated project claim.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.middleware)
	}
	r.Use(requestLoggingMiddleware(logger))
	if cfg.Auth != nil {
		r.Use(cfg.Auth.HTTPMiddleware)
	}
	r.Use(throttleMiddleware(cfg.RateLimiter, bufferedProjectIdentifier))

	r.Route("/api", func(api chi.Router) {
		api.Post("/capture", cfg.Handlers.Capture)
		api.Post("/traces", cfg.Handlers.CreateTrace)
		api.Get("/internal/queue", cfg.Handlers.QueueStatus)
	})

	return r
}

func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			start := time.Now()
			wrapped := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			logger.Info("http request",
				"request_id", requestID, "method", r.Method, "path", r.URL.Path,
				"status", wrapped.status, "elapsed", time.Since(start))
		})
	}
}

// bufferedProjectIdentifier buffers the request body to pull out a
// project identifier for throttling, then restores the body so the
// downstream handler can decode it again. Auth claims, when present, take
// precedence over a client-supplied project field.
func bufferedProjectIdentifier(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.Project
	}

	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var probe struct {
		Project  string         `json:"project"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	if probe.Project != "" {
		return probe.Project
	}
	if probe.Metadata != nil {
		if p, ok := probe.Metadata["project"].(string); ok {
			return p
		}
	}
	return ""
}
