// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit implements the append-only, hash-chained audit ledger.
//
// Every security-relevant operation in casevault produces an audit entry.
// Entries form a tamper-evident chain: each entry carries the SHA-256 hash
// of its own canonical fields plus the hash of the entry before it, so any
// after-the-fact edit, deletion, or reordering of the history breaks the
// chain at a detectable point.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// GenesisHash is the previous-hash value of the first entry in the chain.
const GenesisHash = "GENESIS"

// Well-known event types. Callers may also log custom types; these
// constants cover the authentication lifecycle.
const (
	EventLogin          = "LOGIN"
	EventLoginFailed    = "LOGIN_FAILED"
	EventLogout         = "LOGOUT"
	EventRegister       = "USER_REGISTER"
	EventPasswordChange = "PASSWORD_CHANGE"
	EventSessionRestore = "SESSION_RESTORE"
	EventSessionExpired = "SESSION_EXPIRED"
	EventSessionCleanup = "SESSION_CLEANUP"
	EventRateLimited    = "RATE_LIMITED"
)

// Event is what callers hand to the ledger. The ledger assigns the
// identity, timestamp, and chain hashes.
type Event struct {
	Type         string
	UserID       *int64
	ResourceType string
	ResourceID   string
	Action       string
	Details      map[string]string
	Success      bool
	ErrorMessage string
}

// Entry is a sealed ledger record as stored. Details holds the
// serialized JSON form of the event details so the hash input is
// reproducible byte for byte.
type Entry struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	EventType       string    `json:"event_type"`
	UserID          *int64    `json:"user_id,omitempty"`
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	Action          string    `json:"action"`
	Details         string    `json:"details"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	IntegrityHash   string    `json:"integrity_hash"`
	PreviousLogHash string    `json:"previous_log_hash"`
}

// encodeDetails serializes event details deterministically. encoding/json
// sorts map keys, so equal maps always produce equal bytes.
func encodeDetails(details map[string]string) string {
	if len(details) == 0 {
		return "{}"
	}
	b, err := json.Marshal(details)
	if err != nil {
		// map[string]string cannot fail to marshal; keep the chain
		// well-formed regardless.
		return "{}"
	}
	return string(b)
}

// ComputeHash returns the hex SHA-256 over the entry's canonical fields.
// The input is the "|"-joined sequence of id, timestamp (RFC 3339 with
// nanoseconds, UTC), event type, user id (empty when absent), resource
// type, resource id, action, serialized details, success, and the
// previous entry's hash. ErrorMessage is deliberately excluded: it is
// advisory text, not part of the attested record.
func ComputeHash(e *Entry) string {
	userID := ""
	if e.UserID != nil {
		userID = strconv.FormatInt(*e.UserID, 10)
	}
	input := strings.Join([]string{
		strconv.FormatInt(e.ID, 10),
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.EventType,
		userID,
		e.ResourceType,
		e.ResourceID,
		e.Action,
		e.Details,
		strconv.FormatBool(e.Success),
		e.PreviousLogHash,
	}, "|")
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
