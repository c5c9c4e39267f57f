// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/grouping"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ingest"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/parsers"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/storage"
)

func newTestHandlers(t *testing.T) (*Handlers, *grouping.Queue) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewStore(db, "sqlite")
	require.NoError(t, store.Migrate(context.Background()))

	queue := grouping.NewQueue(10, nil)
	svc := ingest.NewService(store, queue, nil, nil)
	return NewHandlers(store, svc, parsers.DefaultRegistry(), queue), queue
}

func openAICapturePayload(t *testing.T, project string) []byte {
	t.Helper()
	reqBody := []byte(`{"model":"gpt-4o","messages":[{"role":"system","content":"You are a helpful assistant"},{"role":"user","content":"hi"}]}`)
	respBody := []byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)

	payload := captureRequest{
		StartedAt:     time.Now(),
		StatusCode:    200,
		Request:       hexOrString(hex.EncodeToString(reqBody)),
		Response:      hexOrString(respBody), // plain UTF-8, not hex
		RequestMethod: "POST",
		RequestPath:   "/v1/chat/completions",
		Metadata: map[string]any{
			"url":     "https://api.openai.com/v1/chat/completions",
			"project": project,
		},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return b
}

func TestCapture_PersistsHTTPTraceAndIngestsTrace(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/api/capture", bytes.NewReader(openAICapturePayload(t, "acme")))
	rec := httptest.NewRecorder()

	h.Capture(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp traceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp.ID)
	require.NotZero(t, resp.ProjectID)
}

func TestCapture_UnparsableProviderStillPersistsHTTPTrace(t *testing.T) {
	h, _ := newTestHandlers(t)

	payload := captureRequest{
		StartedAt:     time.Now(),
		StatusCode:    200,
		Request:       hexOrString(hex.EncodeToString([]byte(`{"model":"x"}`))),
		RequestMethod: "POST",
		Metadata:      map[string]any{"url": "https://unknown.example.com/v1/chat"},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/capture", bytes.NewReader(b))
	rec := httptest.NewRecorder()

	h.Capture(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["http_trace_id"])
	require.NotEmpty(t, body["error"])
}

func TestCreateTrace_DirectSubmissionBypassesParsing(t *testing.T) {
	h, _ := newTestHandlers(t)

	payload := traceCreateRequest{
		Project:   "acme",
		Model:     "gpt-4o",
		StartedAt: time.Now(),
		Input: []traceInputItemWire{
			{Type: "message", Role: "system", Content: "You are a helpful assistant"},
			{Type: "message", Role: "user", Content: "hi"},
		},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(b))
	rec := httptest.NewRecorder()

	h.CreateTrace(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp traceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp.ID)
}

func TestCreateTrace_RejectsMissingProject(t *testing.T) {
	h, _ := newTestHandlers(t)

	b, err := json.Marshal(traceCreateRequest{Model: "gpt-4o", StartedAt: time.Now()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(b))
	rec := httptest.NewRecorder()

	h.CreateTrace(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTrace_RejectsUnknownInputItemType(t *testing.T) {
	h, _ := newTestHandlers(t)

	payload := traceCreateRequest{
		Project:   "acme",
		Model:     "gpt-4o",
		StartedAt: time.Now(),
		Input: []traceInputItemWire{
			{Type: "garbage", Content: "hi"},
		},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(b))
	rec := httptest.NewRecorder()

	h.CreateTrace(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTrace_RejectsUnknownRole(t *testing.T) {
	h, _ := newTestHandlers(t)

	payload := traceCreateRequest{
		Project:   "acme",
		Model:     "gpt-4o",
		StartedAt: time.Now(),
		Input: []traceInputItemWire{
			{Type: "message", Role: "banana", Content: "hi"},
		},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/traces", bytes.NewReader(b))
	rec := httptest.NewRecorder()

	h.CreateTrace(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueueStatus_ReportsLengthAndLiveness(t *testing.T) {
	h, queue := newTestHandlers(t)
	queue.Enqueue(1, "/chat", 42)

	req := httptest.NewRequest(http.MethodGet, "/api/internal/queue", nil)
	rec := httptest.NewRecorder()

	h.QueueStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp queueStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Length)
	require.False(t, resp.WorkerAlive)
	require.Len(t, resp.Pending, 1)
}
