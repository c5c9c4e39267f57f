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

package parsers

import (
	"time"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

// TraceRecord is the provider-agnostic normalization target of a parsed
// capture (spec.md §4.A, §6 "TraceRecord wire shape").
type TraceRecord struct {
	Project      string
	Model        string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Input        []InputItemRecord
	Output       []OutputItemRecord
	Instructions string
	Prompt       string

	Temperature *float64
	MaxTokens   *int
	ToolChoice  any
	Tools       []model.ToolDefinition

	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	CachedTokens     *int
	ReasoningTokens  *int

	FinishReason      model.FinishReason
	SystemFingerprint string
	Reasoning         map[string]any
	ResponseSchema    map[string]any
	TraceMetadata     map[string]any

	Path              string
	ImplementationID  *int64
	Result            string
	Error             string
}

// InputItemRecord mirrors model.TraceInputItem but without a fixed
// position - parsers append items in conversational order and the
// ingestion service assigns positions (I4).
type InputItemRecord struct {
	Type      model.InputItemType
	Role      model.Role
	Content   string
	CallID    string
	Name      string
	Arguments map[string]any
	Result    any
}

// OutputItemRecord is one block of the provider's response, preserved
// alongside the normalized Result text for callers that need the raw
// structure (e.g. tool call ids for a later tool_result turn).
type OutputItemRecord struct {
	Type      string
	ID        string
	CallID    string
	Name      string
	Arguments string
	Status    string
	Content   string
}

// mapFinishReason collapses a provider-specific reason string to the
// closed FinishReason enum, defaulting unknown values to "stop"
// (spec.md §4.A normalization contract).
func mapFinishReason(reasons map[string]model.FinishReason, raw string) model.FinishReason {
	if fr, ok := reasons[raw]; ok {
		return fr
	}
	return model.FinishStop
}
