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

// Package parsers implements the provider parser registry (spec.md §4.A):
// decoding a raw HTTP capture of an LLM provider call into a normalized
// TraceRecord, without losing semantic structure like tool calls and
// multimodal content.
package parsers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/apierr"
)

// RawCapture is the untouched HTTP-level capture of one provider call,
// matching the raw capture endpoint's wire shape (spec.md §6).
type RawCapture struct {
	RequestBody     []byte
	RequestHeaders  map[string]string
	ResponseBody    []byte
	ResponseHeaders map[string]string
	RequestMethod   string
	RequestPath     string
	StartedAt       time.Time
	CompletedAt     time.Time
	StatusCode      int
	Error           string
	Metadata        map[string]any
	CallPath        string
}

// Parser handles one provider family. Registered parsers are consulted in
// declared order; the first whose CanParse matches the capture's URL wins.
type Parser interface {
	CanParse(url string) bool
	Parse(ctx ParseContext) (TraceRecord, error)
}

// ParseContext is what a Parser needs after the registry has decoded the
// raw bytes and resolved the call's URL.
type ParseContext struct {
	URL          string
	RequestBody  map[string]any
	ResponseBody map[string]any
	StartedAt    time.Time
	CompletedAt  time.Time
	Error        string
	Metadata     map[string]any
	CallPath     string
}

// Registry holds an ordered, first-match-wins list of provider parsers
// (spec.md §9 "Provider parser polymorphism": parsers are plain values in
// an ordered registry, not a class hierarchy).
type Registry struct {
	parsers []Parser
}

// NewRegistry builds a registry from parsers in the given priority order.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry returns the registry wired with the three supported
// provider families, OpenAI first as in the reference ordering.
func DefaultRegistry() *Registry {
	return NewRegistry(&OpenAIParser{}, &AnthropicParser{}, &GoogleGenAIParser{})
}

// ParseCapture decodes a RawCapture into a TraceRecord (spec.md §4.A
// "parse(capture) -> TraceRecord | ParseError").
//
// Resolution order for the call's URL: metadata["url"] if present,
// otherwise reconstructed from the request line and Host header embedded
// in RequestHeaders. MalformedRequest (invalid request JSON) is fatal.
// MalformedResponse (absent/streaming/non-JSON response) is not: the
// parser still returns a TraceRecord using request-only information.
func (r *Registry) ParseCapture(c RawCapture) (TraceRecord, error) {
	url := resolveURL(c)

	var parser Parser
	for _, p := range r.parsers {
		if p.CanParse(url) {
			parser = p
			break
		}
	}
	if parser == nil {
		return TraceRecord{}, apierr.Wrap(apierr.KindBadRequest,
			fmt.Sprintf("no parser found for url %q", url), apierr.ErrUnsupportedProvider)
	}

	var requestBody map[string]any
	if err := json.Unmarshal(c.RequestBody, &requestBody); err != nil {
		return TraceRecord{}, apierr.Wrap(apierr.KindBadRequest,
			"failed to parse request body", apierr.ErrMalformedRequest)
	}

	var responseBody map[string]any
	if len(c.ResponseBody) > 0 && c.Error == "" {
		_ = json.Unmarshal(c.ResponseBody, &responseBody) // malformed response is non-fatal
	}

	return parser.Parse(ParseContext{
		URL:          url,
		RequestBody:  requestBody,
		ResponseBody: responseBody,
		StartedAt:    c.StartedAt,
		CompletedAt:  c.CompletedAt,
		Error:        c.Error,
		Metadata:     c.Metadata,
		CallPath:     c.CallPath,
	})
}

// resolveURL reconstructs the call's URL when it was not supplied
// explicitly: metadata["url"] wins if present; otherwise RequestPath is
// combined with the Host header. Without both, the URL is empty.
func resolveURL(c RawCapture) string {
	if c.Metadata != nil {
		if u, ok := c.Metadata["url"].(string); ok && u != "" {
			return u
		}
	}

	path := c.RequestPath
	if path == "" {
		return ""
	}

	host := c.RequestHeaders["host"]
	if host == "" {
		host = c.RequestHeaders["Host"]
	}
	if host == "" {
		return ""
	}
	return "https://" + host + path
}
