// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package parsers

import (
	"encoding/json"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

var openAIFinishReasons = map[string]model.FinishReason{
	"stop":           model.FinishStop,
	"length":         model.FinishLength,
	"tool_calls":     model.FinishToolCalls,
	"content_filter": model.FinishContentFilter,
	"function_call":  model.FinishFunctionCall,
}

// OpenAIParser normalizes calls to OpenAI's chat-completions and responses
// APIs, both served from api.openai.com.
type OpenAIParser struct{}

func (p *OpenAIParser) CanParse(url string) bool {
	return hostContains(url, "api.openai.com")
}

func (p *OpenAIParser) Parse(ctx ParseContext) (TraceRecord, error) {
	req := ctx.RequestBody
	rec := TraceRecord{
		Model:         str(req, "model"),
		StartedAt:     ctx.StartedAt,
		CompletedAt:   &ctx.CompletedAt,
		Error:         ctx.Error,
		Path:          ctx.CallPath,
		Temperature:   float64OrNil(req["temperature"]),
		MaxTokens:     intOrNil(req["max_tokens"]),
		ToolChoice:    req["tool_choice"],
		TraceMetadata: ctx.Metadata,
	}
	if req["response_format"] != nil {
		if schema, ok := req["response_format"].(map[string]any); ok {
			rec.ResponseSchema = schema
		}
	}
	if reasoning, ok := req["reasoning"].(map[string]any); ok {
		rec.Reasoning = reasoning
	}

	if messages, ok := req["messages"].([]any); ok {
		for _, raw := range messages {
			msg, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			rec.Input = append(rec.Input, openAIMessageToItem(msg))
		}
	}

	if toolsRaw, ok := req["tools"].([]any); ok {
		for _, raw := range toolsRaw {
			t, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			fn, _ := t["function"].(map[string]any)
			params, _ := fn["parameters"].(map[string]any)
			rec.Tools = append(rec.Tools, model.ToolDefinition{
				Type: str(t, "type"),
				Function: model.ToolFunction{
					Name:        str(fn, "name"),
					Description: str(fn, "description"),
					Parameters:  params,
				},
			})
		}
	}

	if ctx.Error == "" && ctx.ResponseBody != nil {
		resp := ctx.ResponseBody

		if choices, ok := resp["choices"].([]any); ok && len(choices) > 0 {
			choice, _ := choices[0].(map[string]any)
			msg, _ := choice["message"].(map[string]any)
			rec.Result = contentToText(msg["content"])

			if toolCalls, ok := msg["tool_calls"].([]any); ok {
				for _, raw := range toolCalls {
					tc, ok := raw.(map[string]any)
					if !ok {
						continue
					}
					fn, _ := tc["function"].(map[string]any)
					var args map[string]any
					if argStr, ok := fn["arguments"].(string); ok {
						_ = json.Unmarshal([]byte(argStr), &args)
					}
					rec.Input = append(rec.Input, InputItemRecord{
						Type:      model.ItemToolCall,
						CallID:    str(tc, "id"),
						Name:      str(fn, "name"),
						Arguments: args,
					})
				}
			}

			if finishReason := str(choice, "finish_reason"); finishReason != "" {
				rec.FinishReason = mapFinishReason(openAIFinishReasons, finishReason)
			}
		}

		rec.SystemFingerprint = str(resp, "system_fingerprint")

		if usage, ok := resp["usage"].(map[string]any); ok {
			rec.PromptTokens = intOrNil(usage["prompt_tokens"])
			rec.CompletionTokens = intOrNil(usage["completion_tokens"])
			rec.TotalTokens = intOrNil(usage["total_tokens"])
			if details, ok := usage["prompt_tokens_details"].(map[string]any); ok {
				rec.CachedTokens = intOrNil(details["cached_tokens"])
			}
			if details, ok := usage["completion_tokens_details"].(map[string]any); ok {
				rec.ReasoningTokens = intOrNil(details["reasoning_tokens"])
			}
		}
	}

	return rec, nil
}

// openAIMessageToItem normalizes one chat-completions message. A tool
// result message (role "tool") carries tool_call_id and becomes a
// tool_result item instead of a plain message, since its call_id is what
// links it back to the assistant's tool_calls entry.
func openAIMessageToItem(msg map[string]any) InputItemRecord {
	role := roleFromString(str(msg, "role"))
	if role == model.RoleTool {
		return InputItemRecord{
			Type:   model.ItemToolResult,
			CallID: str(msg, "tool_call_id"),
			Name:   str(msg, "name"),
			Result: msg["content"],
		}
	}
	return InputItemRecord{
		Type:    model.ItemMessage,
		Role:    role,
		Content: contentToText(msg["content"]),
		Name:    str(msg, "name"),
	}
}
