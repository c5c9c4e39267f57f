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

package template

import (
	"fmt"
	"strings"
)

// anchor is a common literal segment found at a specific byte offset in
// each of the strings being compared.
type anchor struct {
	text      string
	positions []int // byte offset of text within each input string, parallel to the slice passed to Infer/findCommonAnchors
}

// Infer derives a template with `{{var_N}}` placeholders that accommodates
// every string in strs (spec.md §4.C). k is the minimum number of word
// tokens (alphanumeric runs) any literal anchor in the output must span.
func Infer(strs []string, k int) string {
	if len(strs) == 0 {
		return ""
	}
	if len(strs) == 1 {
		return strs[0]
	}

	anchors := findCommonAnchors(strs, k)
	return buildTemplate(strs, anchors)
}

// findCommonAnchors walks the shortest string's token stream (ties broken
// by insertion order), greedily extracting the longest next token sequence
// that spans at least k word tokens, passes the meaningfulness filter, and
// appears - in order, after the previous anchor's end - in every string.
func findCommonAnchors(strs []string, k int) []anchor {
	refIdx := 0
	for i, s := range strs {
		if len([]rune(s)) < len([]rune(strs[refIdx])) {
			refIdx = i
		}
	}
	tokens := Tokenize(strs[refIdx])

	prevEnd := make([]int, len(strs))
	var anchors []anchor

	i := 0
	for i < len(tokens) {
		advanced := false
		for count := len(tokens) - i; count >= 1; count-- {
			candidateTokens := tokens[i : i+count]
			if wordTokenCount(candidateTokens) < k {
				continue
			}
			candidate := strings.Join(candidateTokens, "")
			if candidate == "" {
				continue
			}
			positions, ok := findPositionsFrom(candidate, strs, prevEnd)
			if !ok {
				continue
			}
			if !isMeaningfulAnchor(candidateTokens) {
				continue
			}
			anchors = append(anchors, anchor{text: candidate, positions: positions})
			for si := range strs {
				prevEnd[si] = positions[si] + len(candidate)
			}
			i += count
			advanced = true
			break
		}
		if !advanced {
			i++
		}
	}
	return anchors
}

// findPositionsFrom finds the first occurrence of candidate at or after
// from[i] in strs[i], for every i, or reports failure if any string lacks
// one.
func findPositionsFrom(candidate string, strs []string, from []int) ([]int, bool) {
	positions := make([]int, len(strs))
	for i, s := range strs {
		start := from[i]
		if start > len(s) {
			return nil, false
		}
		rel := strings.Index(s[start:], candidate)
		if rel == -1 {
			return nil, false
		}
		positions[i] = start + rel
	}
	return positions, true
}

// buildTemplate reassembles the anchors in order, substituting each
// variable region with a fresh placeholder numbered by appearance. A
// leading or trailing region only receives a placeholder if at least one
// input string has non-empty content there; interior regions (between two
// anchors) always do.
func buildTemplate(strs []string, anchors []anchor) string {
	if len(anchors) == 0 {
		return "{{var_0}}"
	}

	gapNonEmpty := func(startOf, endOf func(i int) int) bool {
		for i := range strs {
			if endOf(i) > startOf(i) {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	placeholderIdx := 0
	emitPlaceholder := func() {
		fmt.Fprintf(&b, "{{var_%d}}", placeholderIdx)
		placeholderIdx++
	}

	first := anchors[0]
	if gapNonEmpty(func(i int) int { return 0 }, func(i int) int { return first.positions[i] }) {
		emitPlaceholder()
	}

	for j, a := range anchors {
		b.WriteString(a.text)
		if j+1 < len(anchors) {
			next := anchors[j+1]
			endOf := func(i int) int { return a.positions[i] + len(a.text) }
			startOf := func(i int) int { return next.positions[i] }
			if gapNonEmpty(endOf, startOf) {
				emitPlaceholder()
			}
		}
	}

	last := anchors[len(anchors)-1]
	lastEnd := func(i int) int { return last.positions[i] + len(last.text) }
	strLen := func(i int) int { return len(strs[i]) }
	if gapNonEmpty(lastEnd, strLen) {
		emitPlaceholder()
	}

	return b.String()
}
