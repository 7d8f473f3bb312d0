// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

// Schema is the complete DDL, applied idempotently on every open.
//
// audit_log is append-only at the application layer; the triggers below
// make UPDATE and DELETE fail at the database layer too, so a sealed
// entry cannot be rewritten through any code path.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	password_salt TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'user',
	active        INTEGER NOT NULL DEFAULT 1,
	last_login    TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	expires_at  TEXT NOT NULL,
	remember_me INTEGER NOT NULL DEFAULT 0,
	ip_address  TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id    ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id                INTEGER PRIMARY KEY,
	timestamp         TEXT NOT NULL,
	event_type        TEXT NOT NULL,
	user_id           INTEGER,
	resource_type     TEXT NOT NULL DEFAULT '',
	resource_id       TEXT NOT NULL DEFAULT '',
	action            TEXT NOT NULL DEFAULT '',
	details           TEXT NOT NULL DEFAULT '{}',
	success           INTEGER NOT NULL,
	error_message     TEXT NOT NULL DEFAULT '',
	integrity_hash    TEXT NOT NULL,
	previous_log_hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_user_id    ON audit_log(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp  ON audit_log(timestamp);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update
BEFORE UPDATE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
BEFORE DELETE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;
`
