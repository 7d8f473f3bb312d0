// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for ledger tests. Tamper tests mutate
// entries directly, something the production schema forbids.
type memStore struct {
	entries    []Entry
	failInsert error
}

func (m *memStore) Insert(e *Entry) error {
	if m.failInsert != nil {
		return m.failInsert
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memStore) Last() (*Entry, error) {
	if len(m.entries) == 0 {
		return nil, nil
	}
	tail := m.entries[len(m.entries)-1]
	return &tail, nil
}

func (m *memStore) Query(f Filter) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
			continue
		}
		if f.ResourceType != "" && e.ResourceType != f.ResourceType {
			continue
		}
		if f.Success != nil && e.Success != *f.Success {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Walk(fn func(e *Entry) error) error {
	for i := range m.entries {
		if err := fn(&m.entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func newTestLedger(t *testing.T, store *memStore) *Ledger {
	t.Helper()
	ledger, err := NewLedger(store)
	require.NoError(t, err)
	return ledger
}

func appendN(l *Ledger, n int) {
	for i := 0; i < n; i++ {
		userID := int64(i + 1)
		l.Append(Event{
			Type:         EventLogin,
			UserID:       &userID,
			ResourceType: "session",
			ResourceID:   "sess",
			Action:       "login",
			Details:      map[string]string{"n": "x"},
			Success:      true,
		})
	}
}

// =============================================================================
// CHAIN CONSTRUCTION
// =============================================================================

func TestAppendChainsEntries(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)

	appendN(ledger, 3)
	require.Len(t, store.entries, 3)

	assert.Equal(t, GenesisHash, store.entries[0].PreviousLogHash, "first entry links to genesis")
	for i := 1; i < 3; i++ {
		assert.Equal(t, store.entries[i-1].IntegrityHash, store.entries[i].PreviousLogHash,
			"entry %d must link to entry %d", i+1, i)
	}
	for i, e := range store.entries {
		assert.Equal(t, int64(i+1), e.ID, "IDs are sequential from 1")
		assert.Equal(t, ComputeHash(&store.entries[i]), e.IntegrityHash)
		assert.Len(t, e.IntegrityHash, 64, "hex SHA-256")
	}
}

func TestLedgerResumesExistingChain(t *testing.T) {
	store := &memStore{}
	first := newTestLedger(t, store)
	appendN(first, 2)

	// A new ledger over the same store continues the chain, it does not
	// restart it.
	second := newTestLedger(t, store)
	appendN(second, 1)

	require.Len(t, store.entries, 3)
	assert.Equal(t, int64(3), store.entries[2].ID)
	assert.Equal(t, store.entries[1].IntegrityHash, store.entries[2].PreviousLogHash)

	report, err := second.VerifyIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Intact)
}

func TestAppendNeverFails(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)
	appendN(ledger, 1)

	// A dead store drops entries without panicking or surfacing errors.
	store.failInsert = errors.New("disk on fire")
	appendN(ledger, 5)
	store.failInsert = nil

	// The next successful append still extends the last durable entry.
	appendN(ledger, 1)
	require.Len(t, store.entries, 2)
	assert.Equal(t, store.entries[0].IntegrityHash, store.entries[1].PreviousLogHash)

	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Intact, "chain must stay intact across dropped appends")
}

func TestAppendConcurrent(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			appendN(ledger, 25)
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	require.Len(t, store.entries, 200)
	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Intact, "concurrent appends must serialize into one chain")
}

func TestDetailsDeterminism(t *testing.T) {
	a := encodeDetails(map[string]string{"b": "2", "a": "1"})
	b := encodeDetails(map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b, "details encoding must not depend on map order")
	assert.Equal(t, "{}", encodeDetails(nil))
}

// =============================================================================
// VERIFICATION
// =============================================================================

func TestVerifyEmptyLedger(t *testing.T) {
	ledger := newTestLedger(t, &memStore{})

	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Zero(t, report.Entries)
	assert.Empty(t, report.Issues)
}

func TestVerifyDetectsFieldTampering(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)
	appendN(ledger, 5)

	store.entries[2].Action = "doctored"

	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, int64(3), report.FirstBreakID)
	assert.NotEmpty(t, report.Issues)
}

func TestVerifyDetectsHashTampering(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)
	appendN(ledger, 5)

	// Rewriting both the field and the stored hash still breaks the
	// successor's previous-hash link.
	store.entries[2].Action = "doctored"
	store.entries[2].IntegrityHash = ComputeHash(&store.entries[2])

	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, int64(4), report.FirstBreakID,
		"successor link must expose a recomputed-hash rewrite")
}

func TestVerifyDetectsDeletion(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)
	appendN(ledger, 5)

	store.entries = append(store.entries[:2], store.entries[3:]...)

	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, int64(4), report.FirstBreakID)
}

func TestVerifyDetectsTruncationOfTail(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)
	appendN(ledger, 5)

	// Dropping the tail is invisible to a pure chain walk of what
	// remains, but the in-memory ledger notices on the next append:
	// entry IDs jump and verification flags the gap.
	store.entries = store.entries[:4]
	appendN(ledger, 1)

	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.False(t, report.Intact)
}

func TestVerifyDetectsReordering(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)
	appendN(ledger, 4)

	store.entries[1], store.entries[2] = store.entries[2], store.entries[1]

	report, err := ledger.VerifyIntegrity()
	require.NoError(t, err)
	assert.False(t, report.Intact)
	assert.Equal(t, int64(3), report.FirstBreakID)
}

// =============================================================================
// QUERY
// =============================================================================

func TestQueryFilters(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)

	userA, userB := int64(1), int64(2)
	ledger.Append(Event{Type: EventLogin, UserID: &userA, ResourceType: "session", Success: true})
	ledger.Append(Event{Type: EventLoginFailed, UserID: &userB, ResourceType: "user", Success: false})
	ledger.Append(Event{Type: EventLogin, UserID: &userB, ResourceType: "session", Success: true})

	logins, err := ledger.Query(Filter{EventType: EventLogin})
	require.NoError(t, err)
	assert.Len(t, logins, 2)

	forB, err := ledger.Query(Filter{UserID: &userB})
	require.NoError(t, err)
	assert.Len(t, forB, 2)

	sessions, err := ledger.Query(Filter{ResourceType: "session"})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	failed := false
	failures, err := ledger.Query(Filter{Success: &failed})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, EventLoginFailed, failures[0].EventType)

	limited, err := ledger.Query(Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendTimestampsUTC(t *testing.T) {
	store := &memStore{}
	ledger := newTestLedger(t, store)
	appendN(ledger, 1)

	e := store.entries[0]
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Minute)
}
