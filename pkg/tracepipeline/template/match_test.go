// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_NoPlaceholders(t *testing.T) {
	ok, bindings := Match("hello world", "hello world")
	require.True(t, ok)
	assert.Empty(t, bindings)

	ok, _ = Match("hello world", "hello there")
	assert.False(t, ok)
}

func TestMatch_SinglePlaceholder(t *testing.T) {
	ok, bindings := Match("Say hello to {{var_0}}", "Say hello to Dave")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"var_0": "Dave"}, bindings)
}

func TestMatch_MultiplePlaceholders(t *testing.T) {
	ok, bindings := Match(
		"User {{var_0}} has email {{var_1}}",
		"User Carol has email c@x.com",
	)
	require.True(t, ok)
	assert.Equal(t, "Carol", bindings["var_0"])
	assert.Equal(t, "c@x.com", bindings["var_1"])
}

func TestMatch_RepeatedPlaceholderMustAgree(t *testing.T) {
	ok, bindings := Match("{{x}}-{{x}}", "abc-abc")
	require.True(t, ok)
	assert.Equal(t, "abc", bindings["x"])

	ok, _ = Match("{{x}}-{{x}}", "abc-def")
	assert.False(t, ok)
}

func TestMatch_AdjacentPlaceholdersNonGreedy(t *testing.T) {
	// Non-greedy: the first placeholder should take as little as possible.
	ok, bindings := Match("{{a}}{{b}}", "ab")
	require.True(t, ok)
	assert.Equal(t, "", bindings["a"])
	assert.Equal(t, "ab", bindings["b"])
}

func TestMatch_EmptyBinding(t *testing.T) {
	ok, bindings := Match("prefix-{{var_0}}-suffix", "prefix--suffix")
	require.True(t, ok)
	assert.Equal(t, "", bindings["var_0"])
}

func TestMatch_NewlinesInBinding(t *testing.T) {
	ok, bindings := Match("Bio: {{var_0}}", "Bio: line one\nline two")
	require.True(t, ok)
	assert.Equal(t, "line one\nline two", bindings["var_0"])
}

func TestMatch_RoundTripReproducesOriginal(t *testing.T) {
	// P2: substituting bindings back into the template must reproduce s.
	tpl := "User {{var_0}} has email {{var_1}}"
	s := "User Carol has email c@x.com"
	ok, bindings := Match(tpl, s)
	require.True(t, ok)

	rebuilt := tpl
	for name, val := range bindings {
		rebuilt = replaceAll(rebuilt, "{{"+name+"}}", val)
	}
	assert.Equal(t, s, rebuilt)
}

func replaceAll(s, old, new string) string {
	for {
		idx := indexOf(s, old)
		if idx == -1 {
			return s
		}
		s = s[:idx] + new + s[idx+len(old):]
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
