// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the logical entities of the trace ingestion and
// grouping pipeline: Project, Task, Implementation, Trace, TraceInputItem
// and HTTPTrace.
package model

import "time"

// Project is a uniquely named namespace. It is auto-created on first
// reference and never destroyed by the core.
type Project struct {
	ID   int64
	Name string
}

// Task is a logical prompt family within a Project.
type Task struct {
	ID                   int64
	ProjectID            int64
	Path                 string // optional; empty means unset
	Name                 string
	Description          string
	ProductionVersionID  *int64 // points at one of this Task's Implementations (I5)
}

// Implementation is a concrete prompt template plus model configuration.
type Implementation struct {
	ID               int64
	TaskID           int64
	Prompt           string // template string with {{var_NAME}} placeholders
	Model            string
	Temperature      *float64
	MaxOutputTokens  int
	Tools            []ToolDefinition
	ToolChoice       any
	Reasoning        map[string]any
	Temp             bool // true when auto-created by the grouping worker
}

// Role is the closed set of conversational roles a message item may carry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the closed set of roles above.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleDeveloper, RoleTool:
		return true
	default:
		return false
	}
}

// FinishReason is the closed enum that provider-specific completion reasons
// are normalized into.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishFunctionCall  FinishReason = "function_call"
)

// ToolDefinition is the common shape tool declarations are normalized to.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function tool.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// InputItemType is the closed discriminant for TraceInputItem.Type (§9
// "dynamic input-item discrimination" rearchitected as a tagged union with
// an explicit type discriminant instead of class inheritance).
type InputItemType string

const (
	ItemMessage        InputItemType = "message"
	ItemFunctionCall   InputItemType = "function_call"
	ItemFunctionResult InputItemType = "function_result"
	ItemToolCall       InputItemType = "tool_call"
	ItemToolResult     InputItemType = "tool_result"
	ItemMCPToolCall    InputItemType = "mcp_tool_call"
	ItemMCPToolResult  InputItemType = "mcp_tool_result"
	ItemImage          InputItemType = "image"
	ItemVideo          InputItemType = "video"
	ItemAudio          InputItemType = "audio"
)

// Valid reports whether t is one of the closed set of input item types
// above. Any other tag must be rejected as a BadRequest at the ingestion
// boundary (spec.md §9 "unknown tags during deserialization produce a
// BadRequest"), not silently persisted.
func (t InputItemType) Valid() bool {
	switch t {
	case ItemMessage, ItemFunctionCall, ItemFunctionResult, ItemToolCall, ItemToolResult,
		ItemMCPToolCall, ItemMCPToolResult, ItemImage, ItemVideo, ItemAudio:
		return true
	default:
		return false
	}
}

// TraceInputItem is a single conversational turn or structured datum
// belonging to a Trace, positionally ordered (I4: positions are a
// contiguous 0-based sequence within a trace).
type TraceInputItem struct {
	Position int
	Type     InputItemType

	// message fields
	Role    Role
	Content string // textual content; structured parts collapse to their text

	// function_call / tool_call / mcp_tool_call fields
	CallID    string
	Name      string
	Arguments map[string]any

	// function_result / tool_result / mcp_tool_result fields
	Result any

	// media fields (image|video|audio)
	MediaURL  string
	MediaData string // inline data, if not a URL
	MimeType  string
}

// Trace is a normalized record of one LLM call.
type Trace struct {
	ID               int64
	ProjectID        int64
	ImplementationID *int64 // set iff a template matched (I2)
	Path             string
	Model            string
	StartedAt        time.Time
	CompletedAt      *time.Time
	Instructions     string
	Prompt           string
	InputItems       []TraceInputItem

	Tools      []ToolDefinition
	ToolChoice any

	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	CachedTokens     *int
	ReasoningTokens  *int

	FinishReason      FinishReason
	Result            string
	Error             string
	PromptVariables   map[string]string // set iff ImplementationID is set (I2)
	HTTPTraceID       *int64
	TraceMetadata     map[string]any

	Temperature        *float64
	MaxTokens          *int
	ResponseSchema     map[string]any
	Reasoning          map[string]any
	SystemFingerprint  string
}

// HTTPTrace is the untouched raw request/response bytes and headers kept
// for audit and reparse. Immutable after insertion.
type HTTPTrace struct {
	ID              int64
	StartedAt       time.Time
	CompletedAt     *time.Time
	StatusCode      int
	Error           string
	Request         []byte
	RequestHeaders  map[string]string
	Response        []byte
	ResponseHeaders map[string]string
	RequestMethod   string
	RequestPath     string
	Metadata        map[string]any
	CallPath        string
}

// EvaluationConfig is a Task's per-task policy naming which graders to run
// and at what sampling rate (§3 I6, §4.G).
type EvaluationConfig struct {
	ID                         int64
	TaskID                     int64
	GraderIDs                  []int64
	TraceEvaluationPercentage  float64 // 0-100
}
