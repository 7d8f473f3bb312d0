// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"fmt"
	"math"
	"time"
)

// ErrorKind classifies authentication failures so callers can branch on
// outcome without parsing messages.
type ErrorKind int

const (
	KindInvalidCredentials ErrorKind = iota
	KindAccountInactive
	KindRateLimited
	KindPasswordPolicy
	KindDuplicateUser
	KindNotFound
	KindSessionInvalid
	KindInvalidInput
	KindUnavailable
)

// AuthError is the error type returned by AuthService operations.
// RetryAfter is set only for KindRateLimited.
type AuthError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
}

func (e *AuthError) Error() string {
	return e.Message
}

// Is matches any *AuthError of the same kind, so callers can test
// errors.Is(err, security.ErrInvalidCredentials) against wrapped or
// detail-carrying instances.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel values for errors.Is checks.
//
// SECURITY: ErrInvalidCredentials is deliberately the single answer for
// unknown username, wrong password, and inactive-after-check paths that
// must not reveal which part failed.
var (
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials, Message: "invalid username or password"}
	ErrAccountInactive    = &AuthError{Kind: KindAccountInactive, Message: "account is deactivated"}
	ErrRateLimited        = &AuthError{Kind: KindRateLimited, Message: "too many failed attempts"}
	ErrPasswordPolicy     = &AuthError{Kind: KindPasswordPolicy, Message: "password does not meet policy"}
	ErrDuplicateUser      = &AuthError{Kind: KindDuplicateUser, Message: "username or email already registered"}
	ErrUserNotFound       = &AuthError{Kind: KindNotFound, Message: "user not found"}
	ErrSessionInvalid     = &AuthError{Kind: KindSessionInvalid, Message: "session is invalid or expired"}
	ErrInvalidInput       = &AuthError{Kind: KindInvalidInput, Message: "invalid input"}
	ErrUnavailable        = &AuthError{Kind: KindUnavailable, Message: "authentication backend unavailable"}
)

func rateLimitedError(retryAfter time.Duration) *AuthError {
	// Round up so "retry in 1 minute" never invites a retry that is
	// still inside the window.
	minutes := int(math.Ceil(retryAfter.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return &AuthError{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("too many failed attempts; retry in %d minute(s)", minutes),
		RetryAfter: retryAfter,
	}
}

func policyError(msg string) *AuthError {
	return &AuthError{Kind: KindPasswordPolicy, Message: msg}
}

func inputError(msg string) *AuthError {
	return &AuthError{Kind: KindInvalidInput, Message: msg}
}
