// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package model

// ExtractInstructions returns the "instructions string" used both for
// matcher input and for grouping's prompt extraction: the first message
// item with role system, else the first with role developer, else the
// first user message's content. Returns ok=false if none of those exist.
func ExtractInstructions(items []TraceInputItem) (string, bool) {
	if s, ok := firstMessageByRole(items, RoleSystem); ok {
		return s, true
	}
	if s, ok := firstMessageByRole(items, RoleDeveloper); ok {
		return s, true
	}
	if s, ok := firstMessageByRole(items, RoleUser); ok {
		return s, true
	}
	return "", false
}

func firstMessageByRole(items []TraceInputItem, role Role) (string, bool) {
	for _, item := range items {
		if item.Type == ItemMessage && item.Role == role {
			return item.Content, true
		}
	}
	return "", false
}
