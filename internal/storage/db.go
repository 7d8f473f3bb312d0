// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists casevault state in an embedded SQLite
// database: user accounts, sessions, and the audit ledger.
//
// The database is single-writer. SetMaxOpenConns(1) serializes access
// through one connection, which sidesteps SQLITE_BUSY under the
// concurrent appends the audit ledger produces.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and hands out typed stores.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// RELIABILITY: single connection avoids SQLITE_BUSY on concurrent writes
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// Users returns the account store.
func (d *DB) Users() *UserStore {
	return &UserStore{db: d.db}
}

// Sessions returns the session store.
func (d *DB) Sessions() *SessionStore {
	return &SessionStore{db: d.db}
}

// Audit returns the audit entry store.
func (d *DB) Audit() *AuditStore {
	return &AuditStore{db: d.db}
}

// Timestamps are stored in UTC with a fixed nine-digit fractional
// second, so string order equals time order and decode reproduces the
// instant exactly (RFC3339Nano trims trailing zeros and loses both
// properties).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}
