// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package parsers

import (
	"net/url"
	"strings"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

// hostContains reports whether rawURL's host contains needle, tolerating an
// empty or unparsable URL (CanParse must never panic on a bad value).
func hostContains(rawURL string, needle string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Host, needle)
}

// intOrNil converts a decoded JSON number (float64) to *int, returning nil
// for anything else so missing usage fields stay nil rather than zero.
func intOrNil(v any) *int {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

// float64OrNil converts a decoded JSON number to *float64.
func float64OrNil(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

// str reads a string field from a decoded JSON object, defaulting to "".
func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// roleFromString maps a provider role string to the closed Role enum,
// defaulting to RoleUser for anything unrecognized.
func roleFromString(s string) model.Role {
	switch model.Role(s) {
	case model.RoleSystem, model.RoleUser, model.RoleAssistant, model.RoleDeveloper, model.RoleTool:
		return model.Role(s)
	default:
		return model.RoleUser
	}
}
