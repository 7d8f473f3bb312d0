// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security implements the authentication core of casevault:
// credential storage, session lifecycle, login rate limiting, and the
// glue that feeds every security decision into the audit ledger.
package security

import "time"

// Session durations. A standard session lasts a working day with slack;
// remember-me stretches it to a month.
const (
	DefaultSessionDuration = 24 * time.Hour
	RememberMeDuration     = 30 * 24 * time.Hour
)

// User is an account record. PasswordHash and PasswordSalt hold the
// derived key and salt in base64; the plaintext password is never stored.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	PasswordSalt string
	Role         string
	Active       bool
	LastLogin    *time.Time
	CreatedAt    time.Time
}

// Session is an authenticated session. The ID is an unguessable random
// token and doubles as the bearer credential.
type Session struct {
	ID         string
	UserID     int64
	ExpiresAt  time.Time
	RememberMe bool
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// Expired reports whether the session is past its expiry at the given
// instant.
func (s *Session) Expired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}

// UserStore is the persistence boundary for accounts. Lookups return
// (nil, nil) when no row matches; errors are reserved for backend
// failures.
type UserStore interface {
	FindByUsername(username string) (*User, error)
	FindByEmail(email string) (*User, error)
	FindByID(id int64) (*User, error)
	Create(u *User) error
	UpdatePassword(id int64, hash, salt string) error
	UpdateLastLogin(id int64, at time.Time) error
	UpdateActiveStatus(id int64, active bool) error
}

// SessionStore is the persistence boundary for sessions. FindByID
// returns (nil, nil) when the session does not exist.
type SessionStore interface {
	Create(s *Session) error
	FindByID(id string) (*Session, error)
	Delete(id string) error
	DeleteByUserID(userID int64) (int64, error)
	DeleteExpired(now time.Time) (int64, error)
	IsExpired(s *Session) bool
}

// SessionPersistence stores a session ID across process restarts, e.g.
// in an OS keystore or a protected file. Implementations must degrade
// gracefully: Available reports whether the backend can be used at all.
type SessionPersistence interface {
	Available() bool
	StoreSessionID(id string) error
	RetrieveSessionID() (string, error)
	ClearSession() error
	HasStoredSession() bool
}
