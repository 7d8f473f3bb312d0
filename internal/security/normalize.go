// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// NormalizeUsername canonicalizes a username for storage and lookup
// using the PRECIS UsernameCaseMapped profile (RFC 8265): Unicode
// case folding plus rejection of confusable or malformed identifiers.
// "Alice", "ALICE", and "alice" all normalize to the same account key.
func NormalizeUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", inputError("username must not be empty")
	}
	normalized, err := precis.UsernameCaseMapped.String(trimmed)
	if err != nil {
		return "", inputError("username contains disallowed characters")
	}
	return normalized, nil
}

// NormalizeEmail lowercases and trims an email address. Full RFC 5321
// address parsing is out of scope; the store's uniqueness constraint is
// keyed on this normalized form.
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", inputError("email must not be empty")
	}
	at := strings.IndexByte(trimmed, '@')
	if at <= 0 || at == len(trimmed)-1 {
		return "", inputError("email address is malformed")
	}
	return trimmed, nil
}
