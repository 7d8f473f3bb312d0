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

// UserStore implements security.UserStore over SQLite. Lookups return
// (nil, nil) on a miss; errors mean the database itself failed.
type UserStore struct {
	db *sql.DB
}

const userColumns = "id, username, email, password_hash, password_salt, role, active, last_login, created_at"

func (s *UserStore) FindByUsername(username string) (*security.User, error) {
	return s.findOne("SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (s *UserStore) FindByEmail(email string) (*security.User, error) {
	return s.findOne("SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

func (s *UserStore) FindByID(id int64) (*security.User, error) {
	return s.findOne("SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

func (s *UserStore) findOne(query string, arg any) (*security.User, error) {
	row := s.db.QueryRow(query, arg)

	var (
		u         security.User
		active    int
		lastLogin sql.NullString
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.PasswordSalt, &u.Role, &active, &lastLogin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	u.Active = active != 0
	if lastLogin.Valid {
		t, err := decodeTime(lastLogin.String)
		if err != nil {
			return nil, err
		}
		u.LastLogin = &t
	}
	created, err := decodeTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = created
	return &u, nil
}

// Create inserts the user and backfills the assigned ID.
func (s *UserStore) Create(u *security.User) error {
	res, err := s.db.Exec(
		`INSERT INTO users (username, email, password_hash, password_salt, role, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.PasswordSalt, u.Role, boolToInt(u.Active), encodeTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted user id: %w", err)
	}
	u.ID = id
	return nil
}

func (s *UserStore) UpdatePassword(id int64, hash, salt string) error {
	return s.updateOne("UPDATE users SET password_hash = ?, password_salt = ? WHERE id = ?", hash, salt, id)
}

func (s *UserStore) UpdateLastLogin(id int64, at time.Time) error {
	return s.updateOne("UPDATE users SET last_login = ? WHERE id = ?", encodeTime(at), id)
}

func (s *UserStore) UpdateActiveStatus(id int64, active bool) error {
	return s.updateOne("UPDATE users SET active = ? WHERE id = ?", boolToInt(active), id)
}

func (s *UserStore) updateOne(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return security.ErrUserNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
