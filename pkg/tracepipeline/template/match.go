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

import "strings"

// parsedTemplate splits a template into alternating literal and placeholder
// segments: Fixed[0] Var[0] Fixed[1] Var[1] ... Var[n-1] Fixed[n].
type parsedTemplate struct {
	fixed []string
	vars  []string
}

// parseTemplate parses `{{ NAME }}` placeholders out of tpl. NAME is any
// run of non-'}' characters; surrounding whitespace is trimmed.
func parseTemplate(tpl string) parsedTemplate {
	var fixed []string
	var vars []string
	var cur strings.Builder

	i := 0
	for i < len(tpl) {
		if i+1 < len(tpl) && tpl[i] == '{' && tpl[i+1] == '{' {
			end := strings.Index(tpl[i+2:], "}}")
			if end == -1 {
				cur.WriteByte(tpl[i])
				i++
				continue
			}
			name := strings.TrimSpace(tpl[i+2 : i+2+end])
			fixed = append(fixed, cur.String())
			cur.Reset()
			vars = append(vars, name)
			i = i + 2 + end + 2
			continue
		}
		cur.WriteByte(tpl[i])
		i++
	}
	fixed = append(fixed, cur.String())
	return parsedTemplate{fixed: fixed, vars: vars}
}

// Match decides whether s is an instance of template tpl, returning the
// name -> value placeholder bindings on success (spec.md §4.B).
//
// Every non-final placeholder binds non-greedily (the shortest value that
// lets the remainder of the template still match); the final placeholder is
// greedy and absorbs whatever remains. A placeholder name repeated in the
// template must bind to the same substring at every occurrence.
func Match(tpl string, s string) (bool, map[string]string) {
	p := parseTemplate(tpl)
	n := len(p.vars)

	if n == 0 {
		if p.fixed[0] == s {
			return true, map[string]string{}
		}
		return false, nil
	}

	pos := 0
	if p.fixed[0] != "" {
		if !strings.HasPrefix(s, p.fixed[0]) {
			return false, nil
		}
		pos = len(p.fixed[0])
	}

	m := &matcher{fixed: p.fixed, vars: p.vars, s: s}
	bindings := map[string]string{}
	if m.solve(0, pos, bindings) {
		return true, bindings
	}
	return false, nil
}

type matcher struct {
	fixed []string
	vars  []string
	s     string
}

// solve places var k onward, given that everything before position pos has
// already been consumed and bound.
func (m *matcher) solve(k int, pos int, bindings map[string]string) bool {
	n := len(m.vars)
	isLast := k == n-1
	nextFixed := m.fixed[k+1]

	if isLast {
		var end int
		if nextFixed == "" {
			end = len(m.s) // greedy: the final placeholder takes the rest
		} else {
			if len(m.s) < len(nextFixed) {
				return false
			}
			candidate := len(m.s) - len(nextFixed)
			if candidate < pos || m.s[candidate:] != nextFixed {
				return false
			}
			end = candidate
		}
		return m.bindAndRecurse(k, pos, end, bindings)
	}

	if nextFixed == "" {
		for end := pos; end <= len(m.s); end++ {
			if m.bindAndRecurse(k, pos, end, bindings) {
				return true
			}
		}
		return false
	}

	searchFrom := pos
	for {
		idx := strings.Index(m.s[searchFrom:], nextFixed)
		if idx == -1 {
			return false
		}
		end := searchFrom + idx
		if m.bindAndRecurse(k, pos, end, bindings) {
			return true
		}
		searchFrom = end + 1
	}
}

func (m *matcher) bindAndRecurse(k, pos, end int, bindings map[string]string) bool {
	val := m.s[pos:end]
	name := m.vars[k]

	if existing, ok := bindings[name]; ok {
		if existing != val {
			return false
		}
		return m.continueAfter(k, end, bindings)
	}

	bindings[name] = val
	if m.continueAfter(k, end, bindings) {
		return true
	}
	delete(bindings, name)
	return false
}

// continueAfter resumes placement once var k has been bound to s[?:end],
// consuming the fixed part immediately following it.
func (m *matcher) continueAfter(k, end int, bindings map[string]string) bool {
	if k+1 == len(m.vars) {
		return true // the trailing fixed part was already validated in solve
	}
	return m.solve(k+1, end+len(m.fixed[k+1]), bindings)
}
