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
	"sort"
	"strings"
)

// Group clusters strs into buckets keyed by an inferred template
// (spec.md §4.C "symmetric grouping operation"). Every returned bucket has
// at least minMatchingStrings members and an aggregate anchor length of at
// least k word tokens. A string that fits more than one candidate template
// is assigned to the one with the greatest total anchor length; buckets
// that fall below minMatchingStrings after conflict resolution are
// dropped.
//
// Candidate templates are proposed from strings that share a run of k
// word tokens, using the same index-then-verify technique as the reference
// implementation's n-gram index: the index narrows the candidate set, and
// Infer/Match (exact ports of the matching and inference contracts) decide
// membership.
func Group(strs []string, k int, minMatchingStrings int) map[string][]int {
	result := map[string][]int{}
	if len(strs) == 0 || minMatchingStrings < 1 {
		return result
	}

	ngramIndex := buildNgramIndex(strs, k)

	type candidate struct {
		template  string
		members   []int
		anchorLen int
	}

	var candidates []candidate
	seenTemplates := map[string]bool{}

	for i := range strs {
		tokens := Tokenize(strs[i])
		related := map[int]bool{i: true}
		for _, gram := range wordNgrams(tokens, k) {
			for _, j := range ngramIndex[gram] {
				related[j] = true
			}
		}
		if len(related) < minMatchingStrings {
			continue
		}

		relIdx := make([]int, 0, len(related))
		for j := range related {
			relIdx = append(relIdx, j)
		}
		sort.Ints(relIdx)

		sample := make([]string, len(relIdx))
		for idx, j := range relIdx {
			sample[idx] = strs[j]
		}

		tpl := Infer(sample, k)
		if tpl == "" || seenTemplates[tpl] {
			continue
		}

		anchorLen := templateAnchorLength(tpl)
		if anchorLen < k {
			continue
		}

		var members []int
		for _, j := range relIdx {
			if ok, _ := Match(tpl, strs[j]); ok {
				members = append(members, j)
			}
		}
		if len(members) < minMatchingStrings {
			continue
		}

		seenTemplates[tpl] = true
		candidates = append(candidates, candidate{template: tpl, members: members, anchorLen: anchorLen})
	}

	// Conflict resolution: each string goes to the candidate template with
	// the greatest aggregate anchor length among those it matches.
	type best struct {
		template  string
		anchorLen int
	}
	bestFor := map[int]best{}
	for _, c := range candidates {
		for _, idx := range c.members {
			if cur, ok := bestFor[idx]; !ok || c.anchorLen > cur.anchorLen {
				bestFor[idx] = best{template: c.template, anchorLen: c.anchorLen}
			}
		}
	}

	for idx, b := range bestFor {
		result[b.template] = append(result[b.template], idx)
	}
	for tpl, idxs := range result {
		if len(idxs) < minMatchingStrings {
			delete(result, tpl)
			continue
		}
		sort.Ints(idxs)
		result[tpl] = idxs
	}
	return result
}

// templateAnchorLength sums the word-token count of a template's literal
// fixed parts - the "total anchor length" spec.md §4.C uses to resolve
// conflicts and to validate a bucket's aggregate anchor length.
func templateAnchorLength(tpl string) int {
	p := parseTemplate(tpl)
	total := 0
	for _, f := range p.fixed {
		total += wordTokenCount(Tokenize(f))
	}
	return total
}

// wordNgrams returns every window of k consecutive word tokens
// (alphanumeric runs; punctuation and whitespace tokens are skipped),
// joined with single spaces, for use as an n-gram index key.
func wordNgrams(tokens []string, k int) []string {
	if k <= 0 {
		k = 1
	}
	words := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if isAlnumToken(t) {
			words = append(words, t)
		}
	}
	if len(words) < k {
		if len(words) == 0 {
			return nil
		}
		return []string{strings.Join(words, " ")}
	}
	grams := make([]string, 0, len(words)-k+1)
	for i := 0; i+k <= len(words); i++ {
		grams = append(grams, strings.Join(words[i:i+k], " "))
	}
	return grams
}

// buildNgramIndex maps each k-word n-gram to the set of string indices it
// appears in, so Group only runs Infer/Match on plausibly related strings
// instead of every pair.
func buildNgramIndex(strs []string, k int) map[string][]int {
	idx := map[string][]int{}
	for i, s := range strs {
		for _, gram := range wordNgrams(Tokenize(s), k) {
			idx[gram] = append(idx[gram], i)
		}
	}
	return idx
}
