// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfer_EmptyAndSingle(t *testing.T) {
	assert.Equal(t, "", Infer(nil, 3))
	assert.Equal(t, "only one", Infer([]string{"only one"}, 3))
}

func TestInfer_SimpleAnchor(t *testing.T) {
	// S1
	tpl := Infer([]string{"Say hello to Alice", "Say hello to Bob", "Say hello to Charlie"}, 3)
	assert.Equal(t, "Say hello to {{var_0}}", tpl)

	ok, bindings := Match(tpl, "Say hello to Dave")
	require.True(t, ok)
	assert.Equal(t, "Dave", bindings["var_0"])
}

func TestInfer_MultiPlaceholder(t *testing.T) {
	// S2
	tpl := Infer([]string{"User Alice has email a@x.com", "User Bob has email b@x.com"}, 1)
	assert.True(t, strings.Contains(tpl, "User"))
	assert.True(t, strings.Contains(tpl, "has email"))

	ok, bindings := Match(tpl, "User Carol has email c@x.com")
	require.True(t, ok)
	assert.Equal(t, "Carol", bindings["var_0"])
	assert.Contains(t, bindings["var_1"], "c")
}

func TestInfer_LargeVariableRegion(t *testing.T) {
	// S3
	bio1 := "You are a personal assistant for Mr. " + strings.Repeat("Smith likes long walks. ", 30)
	bio2 := "You are a personal assistant for Mr. " + strings.Repeat("Jones prefers quiet evenings. ", 30)
	tpl := Infer([]string{bio1, bio2}, 3)
	assert.True(t, strings.HasSuffix(tpl, "{{var_0}}"))
	assert.True(t, strings.HasPrefix(tpl, "You are a personal assistant for Mr."))
}

func TestInfer_NoCommonAnchors(t *testing.T) {
	tpl := Infer([]string{"abc", "xyz"}, 3)
	assert.Equal(t, "{{var_0}}", tpl)
}

func TestInfer_MatcherCompletenessOverInput(t *testing.T) {
	// P1: every input string the template was inferred from must match it.
	inputs := []string{
		"Translate the word cat into French",
		"Translate the word dog into French",
		"Translate the word bird into French",
	}
	tpl := Infer(inputs, 2)
	for _, s := range inputs {
		ok, _ := Match(tpl, s)
		assert.True(t, ok, "expected %q to match %q", s, tpl)
	}
}

func TestInfer_Deterministic(t *testing.T) {
	inputs := []string{"Say hello to Alice", "Say hello to Bob", "Say hello to Charlie"}
	a := Infer(inputs, 3)
	b := Infer(inputs, 3)
	assert.Equal(t, a, b)
}
