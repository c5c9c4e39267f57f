// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package parsers

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

var googleFinishReasons = map[string]model.FinishReason{
	"STOP":       model.FinishStop,
	"MAX_TOKENS": model.FinishLength,
	"SAFETY":     model.FinishContentFilter,
	"RECITATION": model.FinishContentFilter,
}

// GoogleGenAIParser normalizes calls to the Google Generative Language API.
// Google encodes the model name in the URL path rather than the request
// body: Parse takes it from Metadata["model"] when set, otherwise from the
// "models/<name>" segment of the call's URL, otherwise "unknown".
type GoogleGenAIParser struct{}

func (p *GoogleGenAIParser) CanParse(url string) bool {
	return hostContains(url, "googleapis.com")
}

func (p *GoogleGenAIParser) Parse(ctx ParseContext) (TraceRecord, error) {
	req := ctx.RequestBody

	model_ := "unknown"
	if ctx.Metadata != nil {
		if m, ok := ctx.Metadata["model"].(string); ok && m != "" {
			model_ = m
		}
	}
	if model_ == "unknown" {
		if i := strings.Index(ctx.URL, "/models/"); i != -1 {
			name := ctx.URL[i+len("/models/"):]
			if j := strings.IndexAny(name, ":/?"); j != -1 {
				name = name[:j]
			}
			if name != "" {
				model_ = name
			}
		}
	}

	rec := TraceRecord{
		Model:         model_,
		StartedAt:     ctx.StartedAt,
		CompletedAt:   &ctx.CompletedAt,
		Error:         ctx.Error,
		Path:          ctx.CallPath,
		TraceMetadata: ctx.Metadata,
	}

	if genConfig, ok := req["generationConfig"].(map[string]any); ok {
		rec.Temperature = float64OrNil(genConfig["temperature"])
		rec.MaxTokens = intOrNil(genConfig["maxOutputTokens"])
	}

	if sysInstr, ok := req["systemInstruction"].(map[string]any); ok {
		if text := partsToText(sysInstr["parts"]); text != "" {
			rec.Instructions = text
			rec.Input = append(rec.Input, InputItemRecord{
				Type:    model.ItemMessage,
				Role:    model.RoleSystem,
				Content: text,
			})
		}
	}

	if contents, ok := req["contents"].([]any); ok {
		for _, raw := range contents {
			content, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			role := googleRole(str(content, "role"))
			parts, _ := content["parts"].([]any)
			for _, rawPart := range parts {
				part, ok := rawPart.(map[string]any)
				if !ok {
					continue
				}
				rec.Input = append(rec.Input, googlePartToItem(part, role, len(rec.Input)))
			}
		}
	}

	if ctx.Error == "" && ctx.ResponseBody != nil {
		resp := ctx.ResponseBody

		if candidates, ok := resp["candidates"].([]any); ok && len(candidates) > 0 {
			candidate, _ := candidates[0].(map[string]any)
			content, _ := candidate["content"].(map[string]any)
			parts, _ := content["parts"].([]any)

			var texts []string
			for _, rawPart := range parts {
				part, ok := rawPart.(map[string]any)
				if !ok {
					continue
				}
				if text, ok := part["text"].(string); ok {
					texts = append(texts, text)
					continue
				}
				if _, ok := part["functionCall"].(map[string]any); ok {
					rec.Input = append(rec.Input, googlePartToItem(part, model.RoleAssistant, len(rec.Input)))
				}
			}
			rec.Result = joinNonEmpty(texts)

			if finishReasonStr := str(candidate, "finishReason"); finishReasonStr != "" {
				rec.FinishReason = mapFinishReason(googleFinishReasons, finishReasonStr)
			}
		}

		if usage, ok := resp["usageMetadata"].(map[string]any); ok {
			rec.PromptTokens = intOrNil(usage["promptTokenCount"])
			rec.CompletionTokens = intOrNil(usage["candidatesTokenCount"])
			rec.TotalTokens = intOrNil(usage["totalTokenCount"])
		}
	}

	return rec, nil
}

func googleRole(s string) model.Role {
	if s == "model" {
		return model.RoleAssistant
	}
	return model.RoleUser
}

// googlePartToItem normalizes one "part" of a Google content block: text,
// functionCall, or functionResponse. index seeds a synthetic call id since
// Google parts carry no id of their own.
func googlePartToItem(part map[string]any, role model.Role, index int) InputItemRecord {
	if text, ok := part["text"].(string); ok {
		return InputItemRecord{Type: model.ItemMessage, Role: role, Content: text}
	}
	if fc, ok := part["functionCall"].(map[string]any); ok {
		name := str(fc, "name")
		args, _ := fc["args"].(map[string]any)
		return InputItemRecord{
			Type:      model.ItemFunctionCall,
			CallID:    fmt.Sprintf("fc_%s_%d", name, index),
			Name:      name,
			Arguments: args,
		}
	}
	if fr, ok := part["functionResponse"].(map[string]any); ok {
		name := str(fr, "name")
		return InputItemRecord{
			Type:   model.ItemFunctionResult,
			CallID: fmt.Sprintf("fc_%s_%d", name, index),
			Name:   name,
			Result: fr["response"],
		}
	}
	return InputItemRecord{Type: model.ItemMessage, Role: role}
}

func partsToText(parts any) string {
	list, ok := parts.([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, raw := range list {
		part, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := part["text"].(string); ok {
			texts = append(texts, text)
		}
	}
	return joinNonEmpty(texts)
}
