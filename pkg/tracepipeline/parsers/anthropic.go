// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package parsers

import (
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

var anthropicFinishReasons = map[string]model.FinishReason{
	"end_turn":      model.FinishStop,
	"max_tokens":    model.FinishLength,
	"stop_sequence": model.FinishStop,
	"tool_use":      model.FinishToolCalls,
}

// AnthropicParser normalizes calls to Anthropic's Messages API.
type AnthropicParser struct{}

func (p *AnthropicParser) CanParse(url string) bool {
	return hostContains(url, "anthropic.com")
}

func (p *AnthropicParser) Parse(ctx ParseContext) (TraceRecord, error) {
	req := ctx.RequestBody
	rec := TraceRecord{
		Model:       str(req, "model"),
		StartedAt:   ctx.StartedAt,
		CompletedAt: &ctx.CompletedAt,
		Error:       ctx.Error,
		Path:        ctx.CallPath,
		Temperature: float64OrNil(req["temperature"]),
		MaxTokens:   intOrNil(req["max_tokens"]),
		TraceMetadata: ctx.Metadata,
	}

	if system, ok := req["system"].(string); ok && system != "" {
		rec.Instructions = system
		rec.Input = append(rec.Input, InputItemRecord{
			Type:    model.ItemMessage,
			Role:    model.RoleSystem,
			Content: system,
		})
	}

	if messages, ok := req["messages"].([]any); ok {
		for _, raw := range messages {
			msg, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			rec.Input = append(rec.Input, InputItemRecord{
				Type:    model.ItemMessage,
				Role:    roleFromString(str(msg, "role")),
				Content: contentToText(msg["content"]),
				Name:    str(msg, "name"),
			})
		}
	}

	if toolsRaw, ok := req["tools"].([]any); ok {
		for _, raw := range toolsRaw {
			t, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			params, _ := t["input_schema"].(map[string]any)
			rec.Tools = append(rec.Tools, model.ToolDefinition{
				Type: "function",
				Function: model.ToolFunction{
					Name:        str(t, "name"),
					Description: str(t, "description"),
					Parameters:  params,
				},
			})
		}
	}

	if ctx.Error == "" && ctx.ResponseBody != nil {
		resp := ctx.ResponseBody

		if blocks, ok := resp["content"].([]any); ok {
			var texts []string
			for _, raw := range blocks {
				block, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				if str(block, "type") == "text" {
					texts = append(texts, str(block, "text"))
				}
			}
			rec.Result = joinNonEmpty(texts)
		}

		if stopReason := str(resp, "stop_reason"); stopReason != "" {
			rec.FinishReason = mapFinishReason(anthropicFinishReasons, stopReason)
		}

		if usage, ok := resp["usage"].(map[string]any); ok {
			rec.PromptTokens = intOrNil(usage["input_tokens"])
			rec.CompletionTokens = intOrNil(usage["output_tokens"])
			if rec.PromptTokens != nil && rec.CompletionTokens != nil {
				total := *rec.PromptTokens + *rec.CompletionTokens
				rec.TotalTokens = &total
			}
		}
	}

	return rec, nil
}

// contentToText collapses Anthropic's content field, which may be a plain
// string or a list of content blocks, to a single text value.
func contentToText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var texts []string
		for _, raw := range v {
			block, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if str(block, "type") == "text" {
				texts = append(texts, str(block, "text"))
			}
		}
		return joinNonEmpty(texts)
	default:
		return ""
	}
}

func joinNonEmpty(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	out := texts[0]
	for _, t := range texts[1:] {
		out += "\n" + t
	}
	return out
}
