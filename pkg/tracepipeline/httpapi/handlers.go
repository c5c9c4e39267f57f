// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/apierr"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/grouping"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ingest"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/parsers"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/storage"
)

// Handlers wires the ingestion service and storage layer to HTTP.
type Handlers struct {
	store   *storage.Store
	ingest  *ingest.Service
	parsers *parsers.Registry
	queue   *grouping.Queue
}

// NewHandlers builds a Handlers. parserRegistry may be nil, in which case
// parsers.DefaultRegistry() is used.
func NewHandlers(store *storage.Store, ingestSvc *ingest.Service, parserRegistry *parsers.Registry, queue *grouping.Queue) *Handlers {
	if parserRegistry == nil {
		parserRegistry = parsers.DefaultRegistry()
	}
	return &Handlers{store: store, ingest: ingestSvc, parsers: parserRegistry, queue: queue}
}

// Capture handles POST /api/capture: a raw provider HTTP call. The
// HTTPTrace is persisted verbatim before parsing is attempted, so a
// capture with an unparsable provider shape is never silently lost - it
// can be reparsed later from the stored raw bytes (spec.md §4.D).
func (h *Handlers) Capture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.BadRequest("malformed capture payload: %v", err))
		return
	}

	httpTrace, err := h.store.CreateHTTPTrace(r.Context(), model.HTTPTrace{
		StartedAt:       req.StartedAt,
		CompletedAt:     req.CompletedAt,
		StatusCode:      req.StatusCode,
		Error:           req.Error,
		Request:         req.Request.Bytes(),
		RequestHeaders:  req.RequestHeaders,
		Response:        req.Response.Bytes(),
		ResponseHeaders: req.ResponseHeaders,
		RequestMethod:   req.RequestMethod,
		RequestPath:     req.RequestPath,
		Metadata:        req.Metadata,
		CallPath:        req.Path,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	completedAt := req.StartedAt
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}

	rec, err := h.parsers.ParseCapture(parsers.RawCapture{
		RequestBody:     req.Request.Bytes(),
		RequestHeaders:  req.RequestHeaders,
		ResponseBody:    req.Response.Bytes(),
		ResponseHeaders: req.ResponseHeaders,
		RequestMethod:   req.RequestMethod,
		RequestPath:     req.RequestPath,
		StartedAt:       req.StartedAt,
		CompletedAt:     completedAt,
		StatusCode:      req.StatusCode,
		Error:           req.Error,
		Metadata:        req.Metadata,
		CallPath:        req.Path,
	})
	if err != nil {
		// The capture is already durably stored; only the derived trace
		// failed to parse. Report the failure without pretending the
		// capture itself was rejected.
		writeJSON(w, apierr.KindOf(err).HTTPStatus(), map[string]any{
			"http_trace_id": httpTrace.ID,
			"error":         err.Error(),
		})
		return
	}
	if rec.Project == "" {
		rec.Project = projectFromMetadata(req.Metadata)
	}
	if rec.Project == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"http_trace_id": httpTrace.ID,
			"error":         "capture metadata did not identify a project",
		})
		return
	}

	trace, err := h.ingest.Ingest(r.Context(), rec, &httpTrace.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTraceResponse(trace))
}

func projectFromMetadata(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if p, ok := metadata["project"].(string); ok {
		return p
	}
	return ""
}

// CreateTrace handles POST /api/traces: an already-normalized trace,
// bypassing provider parsing entirely (spec.md §6).
func (h *Handlers) CreateTrace(w http.ResponseWriter, r *http.Request) {
	var req traceCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.BadRequest("malformed trace payload: %v", err))
		return
	}
	if req.Project == "" {
		writeError(w, apierr.BadRequest("project is required"))
		return
	}

	input, err := toInputItemRecords(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	rec := parsers.TraceRecord{
		Project:           req.Project,
		Model:             req.Model,
		StartedAt:         req.StartedAt,
		CompletedAt:       req.CompletedAt,
		Instructions:      req.Instructions,
		Prompt:            req.Prompt,
		Input:             input,
		Temperature:       req.Temperature,
		MaxTokens:         req.MaxTokens,
		ToolChoice:        req.ToolChoice,
		PromptTokens:      req.PromptTokens,
		CompletionTokens:  req.CompletionTokens,
		TotalTokens:       req.TotalTokens,
		CachedTokens:      req.CachedTokens,
		ReasoningTokens:   req.ReasoningTokens,
		FinishReason:      model.FinishReason(req.FinishReason),
		SystemFingerprint: req.SystemFingerprint,
		Reasoning:         req.Reasoning,
		ResponseSchema:    req.ResponseSchema,
		TraceMetadata:     req.TraceMetadata,
		Path:              req.Path,
		ImplementationID:  req.ImplementationID,
		Result:            req.Result,
		Error:             req.Error,
	}

	trace, err := h.ingest.Ingest(r.Context(), rec, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTraceResponse(trace))
}

// toInputItemRecords validates each item's type/role tags against the
// closed enums before constructing records, rejecting the whole request
// with a BadRequest on the first unknown tag (spec.md §9 "unknown tags
// during deserialization produce a BadRequest").
func toInputItemRecords(items []traceInputItemWire) ([]parsers.InputItemRecord, error) {
	out := make([]parsers.InputItemRecord, len(items))
	for i, it := range items {
		itemType := model.InputItemType(it.Type)
		if !itemType.Valid() {
			return nil, apierr.BadRequest("input[%d]: unknown type %q", i, it.Type)
		}
		role := model.Role(it.Role)
		if role != "" && !role.Valid() {
			return nil, apierr.BadRequest("input[%d]: unknown role %q", i, it.Role)
		}
		out[i] = parsers.InputItemRecord{
			Type:      itemType,
			Role:      role,
			Content:   it.Content,
			CallID:    it.CallID,
			Name:      it.Name,
			Arguments: it.Arguments,
			Result:    it.Result,
		}
	}
	return out, nil
}

func toTraceResponse(t model.Trace) traceResponse {
	return traceResponse{
		ID:               t.ID,
		ProjectID:        t.ProjectID,
		ImplementationID: t.ImplementationID,
		Path:             t.Path,
	}
}

// QueueStatus handles GET /api/internal/queue: a debug view of the
// grouping queue's backlog and worker liveness.
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeJSON(w, http.StatusOK, queueStatusResponse{})
		return
	}
	keys := h.queue.PendingKeys()
	pending := make([]queuePendingKeyWire, len(keys))
	for i, k := range keys {
		pending[i] = queuePendingKeyWire{ProjectID: k.ProjectID, Path: k.Path}
	}
	writeJSON(w, http.StatusOK, queueStatusResponse{
		Length:      h.queue.Len(),
		WorkerAlive: h.queue.WorkerAlive(),
		Pending:     pending,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	writeJSON(w, kind.HTTPStatus(), map[string]string{"error": err.Error()})
}
