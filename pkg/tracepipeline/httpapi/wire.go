// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package httpapi exposes the trace ingestion pipeline over HTTP: a raw
// capture endpoint for provider-shaped request/response pairs, a
// trace-create endpoint for already-normalized records, and an internal
// debug endpoint over the grouping queue.
package httpapi

import (
	"encoding/hex"
	"time"
)

// hexOrString decodes a JSON string field that may be hex-encoded bytes
// (as an instrumentation shim would send a binary request/response body)
// or plain UTF-8 text (as a hand-built test payload would send). Hex
// decoding is attempted first; anything that isn't valid hex is treated
// as the literal UTF-8 payload.
type hexOrString string

func (s hexOrString) Bytes() []byte {
	if b, err := hex.DecodeString(string(s)); err == nil && len(s) > 0 {
		return b
	}
	return []byte(s)
}

// captureRequest is the wire shape of the raw HTTP capture endpoint
// (spec.md §6): the untouched request/response of one provider call.
type captureRequest struct {
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	StatusCode      int               `json:"status_code"`
	Error           string            `json:"error,omitempty"`
	Request         hexOrString       `json:"request"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	Response        hexOrString       `json:"response,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	RequestMethod   string            `json:"request_method,omitempty"`
	RequestPath     string            `json:"request_path,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	Path            string            `json:"path,omitempty"`
}

// traceInputItemWire mirrors model.TraceInputItem for direct trace-create
// submissions.
type traceInputItemWire struct {
	Type      string         `json:"type"`
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	CallID    string         `json:"call_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
}

// traceCreateRequest is the wire shape of the trace-create endpoint
// (spec.md §6): an already-normalized trace, bypassing provider parsing.
type traceCreateRequest struct {
	Project           string               `json:"project"`
	ImplementationID  *int64               `json:"implementation_id,omitempty"`
	Path              string               `json:"path,omitempty"`
	Model             string               `json:"model"`
	StartedAt         time.Time            `json:"started_at"`
	CompletedAt       *time.Time           `json:"completed_at,omitempty"`
	Instructions      string               `json:"instructions,omitempty"`
	Prompt            string               `json:"prompt,omitempty"`
	Input             []traceInputItemWire `json:"input,omitempty"`
	Tools             []any                `json:"tools,omitempty"`
	ToolChoice        any                  `json:"tool_choice,omitempty"`
	PromptTokens      *int                 `json:"prompt_tokens,omitempty"`
	CompletionTokens  *int                 `json:"completion_tokens,omitempty"`
	TotalTokens       *int                 `json:"total_tokens,omitempty"`
	CachedTokens      *int                 `json:"cached_tokens,omitempty"`
	ReasoningTokens   *int                 `json:"reasoning_tokens,omitempty"`
	FinishReason      string               `json:"finish_reason,omitempty"`
	Result            string               `json:"result,omitempty"`
	Error             string               `json:"error,omitempty"`
	TraceMetadata     map[string]any       `json:"metadata,omitempty"`
	Temperature       *float64             `json:"temperature,omitempty"`
	MaxTokens         *int                 `json:"max_tokens,omitempty"`
	ResponseSchema    map[string]any       `json:"response_schema,omitempty"`
	Reasoning         map[string]any       `json:"reasoning,omitempty"`
	SystemFingerprint string               `json:"system_fingerprint,omitempty"`
}

type traceResponse struct {
	ID                int64  `json:"id"`
	ProjectID         int64  `json:"project_id"`
	ImplementationID  *int64 `json:"implementation_id,omitempty"`
	Path              string `json:"path,omitempty"`
}

type queueStatusResponse struct {
	Length      int                   `json:"length"`
	WorkerAlive bool                  `json:"worker_alive"`
	Pending     []queuePendingKeyWire `json:"pending"`
}

type queuePendingKeyWire struct {
	ProjectID int64  `json:"project_id"`
	Path      string `json:"path"`
}
