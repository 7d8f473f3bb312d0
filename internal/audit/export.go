// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or csv)", s)
	}
}

// csvHeader is the column order for CSV exports. Chain hashes are
// included so an export remains independently verifiable.
var csvHeader = []string{
	"id", "timestamp", "event_type", "user_id", "resource_type",
	"resource_id", "action", "details", "success", "error_message",
	"integrity_hash", "previous_log_hash",
}

// Export writes matching entries to w in the requested format. JSON
// output is a single array of entries; CSV output carries a header row.
func (l *Ledger) Export(w io.Writer, format Format, f Filter) error {
	entries, err := l.Query(f)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		return exportJSON(w, entries)
	case FormatCSV:
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func exportJSON(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if entries == nil {
		entries = []Entry{}
	}
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode audit export: %w", err)
	}
	return nil
}

func exportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		userID := ""
		if e.UserID != nil {
			userID = strconv.FormatInt(*e.UserID, 10)
		}
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.EventType,
			userID,
			e.ResourceType,
			e.ResourceID,
			e.Action,
			e.Details,
			strconv.FormatBool(e.Success),
			e.ErrorMessage,
			e.IntegrityHash,
			e.PreviousLogHash,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV export: %w", err)
	}
	return nil
}
