// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ratelimit"
)

// projectIdentifierFunc pulls the ingesting project's name out of a request
// for throttling purposes: the authenticated claim if auth is enabled,
// otherwise the JSON body's "project" field or its metadata.project field.
type projectIdentifierFunc func(r *http.Request) string

// throttleMiddleware rejects requests once a project exceeds its
// configured ingestion rate, using 429 + Retry-After the way the teacher's
// rate limiter callers do.
func throttleMiddleware(limiter ratelimit.RateLimiter, identify projectIdentifierFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := identify(r)
			if identifier == "" || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.CheckAndRecord(r.Context(), ratelimit.ScopeProject, identifier, 1)
			if err != nil {
				http.Error(w, `{"error":"rate limit check failed"}`, http.StatusInternalServerError)
				return
			}
			if result.IsExceeded() {
				if result.RetryAfter != nil {
					w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": result.Reason})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
