// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 12

// PasswordParams are the Argon2id cost parameters. The defaults follow
// the OWASP recommendation for interactive logins: 64 MiB of memory,
// 3 passes, 2 lanes.
type PasswordParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultPasswordParams returns the production cost parameters.
func DefaultPasswordParams() *PasswordParams {
	return &PasswordParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// HashPassword derives an Argon2id key from the password under a fresh
// random salt. Hash and salt are returned base64-encoded for storage in
// separate columns.
func HashPassword(password string, params *PasswordParams) (hash, salt string, err error) {
	if params == nil {
		params = DefaultPasswordParams()
	}

	saltBytes := make([]byte, params.SaltLength)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), saltBytes, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return base64.RawStdEncoding.EncodeToString(key),
		base64.RawStdEncoding.EncodeToString(saltBytes),
		nil
}

// VerifyPassword re-derives the key for the candidate password under the
// stored salt and compares it against the stored hash.
//
// SECURITY: the comparison is constant-time so timing does not leak how
// much of the hash matched.
func VerifyPassword(password, hash, salt string, params *PasswordParams) bool {
	if params == nil {
		params = DefaultPasswordParams()
	}

	saltBytes, err := base64.RawStdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(hash)
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(password), saltBytes, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(key, expected) == 1
}

// ValidatePasswordPolicy checks a candidate password against the local
// policy: minimum length plus at least one uppercase letter, one
// lowercase letter, and one digit.
func ValidatePasswordPolicy(password string) error {
	if len(password) < MinPasswordLength {
		return policyError(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return policyError("password must contain an uppercase letter")
	}
	if !hasLower {
		return policyError("password must contain a lowercase letter")
	}
	if !hasDigit {
		return policyError("password must contain a digit")
	}
	return nil
}
