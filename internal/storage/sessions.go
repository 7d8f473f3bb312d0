// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/casevault/internal/security"
)

// SessionStore implements security.SessionStore over SQLite.
type SessionStore struct {
	db *sql.DB
}

func (s *SessionStore) Create(sess *security.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, user_id, expires_at, remember_me, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, encodeTime(sess.ExpiresAt), boolToInt(sess.RememberMe),
		sess.IPAddress, sess.UserAgent, encodeTime(sess.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) FindByID(id string) (*security.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, expires_at, remember_me, ip_address, user_agent, created_at
		 FROM sessions WHERE id = ?`, id)

	var (
		sess       security.Session
		expiresAt  string
		rememberMe int
		createdAt  string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &expiresAt, &rememberMe, &sess.IPAddress, &sess.UserAgent, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	sess.RememberMe = rememberMe != 0
	if sess.ExpiresAt, err = decodeTime(expiresAt); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes a session. Deleting an unknown session is a no-op.
func (s *SessionStore) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID removes every session for the user and returns how
// many were deleted. Used for global logout on password change.
func (s *SessionStore) DeleteByUserID(userID int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return n, nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
// The string comparison is sound because timestamps are stored in a
// fixed-width sortable layout.
func (s *SessionStore) DeleteExpired(now time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM sessions WHERE expires_at <= ?", encodeTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return n, nil
}

// IsExpired reports whether the session is past expiry right now.
func (s *SessionStore) IsExpired(sess *security.Session) bool {
	return sess.Expired(time.Now())
}
