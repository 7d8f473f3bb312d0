// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Store is the persistence boundary for ledger entries. Entries are
// insert-only: the schema layer enforces that nothing updates or deletes
// a sealed record.
type Store interface {
	// Insert persists a sealed entry under its assigned ID.
	Insert(e *Entry) error
	// Last returns the highest-ID entry, or nil when the ledger is empty.
	Last() (*Entry, error)
	// Query returns entries matching the filter in ascending ID order.
	Query(f Filter) ([]Entry, error)
	// Walk streams every entry in ascending ID order without loading the
	// whole ledger into memory. The callback may return an error to stop.
	Walk(fn func(e *Entry) error) error
}

// Filter narrows ledger reads. Zero values mean "no constraint".
type Filter struct {
	EventType    string
	UserID       *int64
	ResourceType string
	Since        time.Time
	Until        time.Time
	Success      *bool
	Limit        int
}

// Ledger is the append side of the audit chain. It caches the tail hash
// and next ID under a mutex so concurrent appends serialize into one
// unbroken chain.
//
// SECURITY: Append never returns an error. A security operation must not
// fail because its audit write failed; instead the failure is reported on
// the operational log side channel and the operation proceeds.
type Ledger struct {
	store Store
	log   zerolog.Logger

	mu       sync.Mutex
	nextID   int64
	lastHash string

	// failureLog throttles repeated append-failure reports so a dead
	// datastore does not flood stderr.
	failureLog rate.Sometimes

	// now is overridable in tests.
	now func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the operational logger used for append failures.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// NewLedger opens a ledger over the given store, loading the chain tail
// so new entries continue the existing chain.
func NewLedger(store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:      store,
		log:        zerolog.New(os.Stderr).With().Timestamp().Logger(),
		nextID:     1,
		lastHash:   GenesisHash,
		failureLog: rate.Sometimes{First: 3, Interval: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	tail, err := store.Last()
	if err != nil {
		return nil, fmt.Errorf("failed to load audit chain tail: %w", err)
	}
	if tail != nil {
		l.nextID = tail.ID + 1
		l.lastHash = tail.IntegrityHash
	}
	return l, nil
}

// Append seals the event onto the chain. It does not return an error:
// persistence failures are logged and dropped, and the in-memory tail is
// left untouched so the next append still extends the last durable entry.
func (l *Ledger) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &Entry{
		ID:              l.nextID,
		Timestamp:       l.now().UTC(),
		EventType:       ev.Type,
		UserID:          ev.UserID,
		ResourceType:    ev.ResourceType,
		ResourceID:      ev.ResourceID,
		Action:          ev.Action,
		Details:         encodeDetails(ev.Details),
		Success:         ev.Success,
		ErrorMessage:    ev.ErrorMessage,
		PreviousLogHash: l.lastHash,
	}
	entry.IntegrityHash = ComputeHash(entry)

	if err := l.store.Insert(entry); err != nil {
		l.failureLog.Do(func() {
			l.log.Error().
				Err(err).
				Str("event_type", ev.Type).
				Msg("audit append failed; entry dropped")
		})
		return
	}

	l.nextID = entry.ID + 1
	l.lastHash = entry.IntegrityHash
}

// Query returns matching entries in chain order.
func (l *Ledger) Query(f Filter) ([]Entry, error) {
	entries, err := l.store.Query(f)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	return entries, nil
}
