// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package parsers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/apierr"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

func capture(url string, request, response string) RawCapture {
	return RawCapture{
		RequestBody:     []byte(request),
		RequestHeaders:  map[string]string{},
		ResponseBody:    []byte(response),
		ResponseHeaders: map[string]string{},
		StartedAt:       time.Now().Add(-time.Second),
		CompletedAt:     time.Now(),
		StatusCode:      200,
		Metadata:        map[string]any{"url": url},
	}
}

func TestParseCapture_OpenAI(t *testing.T) {
	req := `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}],"temperature":0.5}`
	resp := `{"choices":[{"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`

	rec, err := DefaultRegistry().ParseCapture(capture("https://api.openai.com/v1/chat/completions", req, resp))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", rec.Model)
	assert.Equal(t, "hi there", rec.Result)
	assert.Equal(t, model.FinishStop, rec.FinishReason)
	require.Len(t, rec.Input, 1)
	assert.Equal(t, "hello", rec.Input[0].Content)
	require.NotNil(t, rec.TotalTokens)
	assert.Equal(t, 15, *rec.TotalTokens)
}

func TestParseCapture_Anthropic(t *testing.T) {
	// S5
	req := `{"model":"claude-3-opus","system":"Be terse.","messages":[{"role":"user","content":"hi"}],"max_tokens":100}`
	resp := `{"content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":8,"output_tokens":2}}`

	rec, err := DefaultRegistry().ParseCapture(capture("https://api.anthropic.com/v1/messages", req, resp))
	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus", rec.Model)
	assert.Equal(t, "Be terse.", rec.Instructions)
	assert.Equal(t, "ok", rec.Result)
	assert.Equal(t, model.FinishStop, rec.FinishReason)
	require.NotNil(t, rec.TotalTokens)
	assert.Equal(t, 10, *rec.TotalTokens)

	// system message prepended before the user turn
	require.Len(t, rec.Input, 2)
	assert.Equal(t, model.RoleSystem, rec.Input[0].Role)
	assert.Equal(t, model.RoleUser, rec.Input[1].Role)
}

func TestParseCapture_Google(t *testing.T) {
	req := `{"contents":[{"role":"user","parts":[{"text":"hi"}]}],"generationConfig":{"temperature":0.2,"maxOutputTokens":256}}`
	resp := `{"candidates":[{"content":{"parts":[{"text":"hello back"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`

	capt := capture("https://generativelanguage.googleapis.com/v1/models/gemini-pro:generateContent", req, resp)
	capt.Metadata["model"] = "gemini-pro"

	rec, err := DefaultRegistry().ParseCapture(capt)
	require.NoError(t, err)
	assert.Equal(t, "gemini-pro", rec.Model)
	assert.Equal(t, "hello back", rec.Result)
	assert.Equal(t, model.FinishStop, rec.FinishReason)
	require.NotNil(t, rec.TotalTokens)
	assert.Equal(t, 5, *rec.TotalTokens)
}

func TestParseCapture_UnsupportedProvider(t *testing.T) {
	_, err := DefaultRegistry().ParseCapture(capture("https://example.com/v1/chat", `{"model":"x"}`, `{}`))
	assert.ErrorIs(t, err, apierr.ErrUnsupportedProvider)
}

func TestParseCapture_MalformedRequestIsFatal(t *testing.T) {
	_, err := DefaultRegistry().ParseCapture(capture("https://api.openai.com/v1/chat/completions", `not json`, `{}`))
	assert.ErrorIs(t, err, apierr.ErrMalformedRequest)
}

func TestParseCapture_MalformedResponseIsNotFatal(t *testing.T) {
	// B4: a capture whose response body didn't parse (e.g. streaming) still
	// yields a TraceRecord using request-only information.
	req := `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`
	rec, err := DefaultRegistry().ParseCapture(capture("https://api.openai.com/v1/chat/completions", req, `data: [DONE]`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", rec.Model)
	assert.Equal(t, "", rec.Result)
}

func TestParseCapture_ErrorPropagatesWithoutResponse(t *testing.T) {
	req := `{"model":"gpt-4o","messages":[{"role":"user","content":"hello"}]}`
	c := capture("https://api.openai.com/v1/chat/completions", req, ``)
	c.Error = "connection reset"

	rec, err := DefaultRegistry().ParseCapture(c)
	require.NoError(t, err)
	assert.Equal(t, "connection reset", rec.Error)
	assert.Equal(t, "", rec.Result)
}
