// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/casevault/internal/audit"
)

// AuditStore implements audit.Store over SQLite. Rows are insert-only;
// schema triggers reject UPDATE and DELETE.
type AuditStore struct {
	db *sql.DB
}

const auditColumns = `id, timestamp, event_type, user_id, resource_type, resource_id,
	action, details, success, error_message, integrity_hash, previous_log_hash`

// Insert persists a sealed entry under its ledger-assigned ID.
func (s *AuditStore) Insert(e *audit.Entry) error {
	var userID any
	if e.UserID != nil {
		userID = *e.UserID
	}
	_, err := s.db.Exec(
		`INSERT INTO audit_log (`+auditColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, encodeTime(e.Timestamp), e.EventType, userID, e.ResourceType, e.ResourceID,
		e.Action, e.Details, boolToInt(e.Success), e.ErrorMessage, e.IntegrityHash, e.PreviousLogHash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Last returns the chain tail, or nil when the ledger is empty.
func (s *AuditStore) Last() (*audit.Entry, error) {
	row := s.db.QueryRow("SELECT " + auditColumns + " FROM audit_log ORDER BY id DESC LIMIT 1")
	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query audit tail: %w", err)
	}
	return entry, nil
}

// Query returns matching entries in ascending ID order.
func (s *AuditStore) Query(f audit.Filter) ([]audit.Entry, error) {
	query := "SELECT " + auditColumns + " FROM audit_log"
	var (
		where []string
		args  []any
	)
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, f.ResourceType)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, encodeTime(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, encodeTime(f.Until))
	}
	if f.Success != nil {
		where = append(where, "success = ?")
		args = append(args, boolToInt(*f.Success))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit rows: %w", err)
	}
	return entries, nil
}

// Walk streams all entries in ascending ID order.
func (s *AuditStore) Walk(fn func(e *audit.Entry) error) error {
	rows, err := s.db.Query("SELECT " + auditColumns + " FROM audit_log ORDER BY id ASC")
	if err != nil {
		return fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read audit rows: %w", err)
	}
	return nil
}

func scanEntry(scan func(dest ...any) error) (*audit.Entry, error) {
	var (
		e         audit.Entry
		timestamp string
		userID    sql.NullInt64
		success   int
	)
	err := scan(&e.ID, &timestamp, &e.EventType, &userID, &e.ResourceType, &e.ResourceID,
		&e.Action, &e.Details, &success, &e.ErrorMessage, &e.IntegrityHash, &e.PreviousLogHash)
	if err != nil {
		return nil, err
	}

	if e.Timestamp, err = decodeTime(timestamp); err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		e.UserID = &id
	}
	e.Success = success != 0
	return &e, nil
}
