// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"crypto/hmac"
	"fmt"
)

// Report is the outcome of an integrity walk over the full chain.
type Report struct {
	// Entries is the number of ledger records examined.
	Entries int
	// Intact is true when every hash and link checked out.
	Intact bool
	// FirstBreakID is the ID of the earliest entry with a problem,
	// or 0 when the chain is intact.
	FirstBreakID int64
	// Issues describes each problem found, in chain order.
	Issues []string
}

// VerifyIntegrity walks the whole chain in order, recomputing each
// entry's hash from its stored fields and checking the link to the
// previous entry's recomputed hash. Memory use is bounded: the walk
// carries only the previous hash, never the whole ledger.
//
// SECURITY: hash comparisons use a constant-time equality check.
func (l *Ledger) VerifyIntegrity() (*Report, error) {
	report := &Report{Intact: true}

	prevHash := GenesisHash
	prevID := int64(0)
	err := l.store.Walk(func(e *Entry) error {
		report.Entries++

		if prevID != 0 && e.ID != prevID+1 {
			report.flag(e.ID, fmt.Sprintf("entry %d: gap in sequence after entry %d", e.ID, prevID))
		}

		if !constantTimeEqual(e.PreviousLogHash, prevHash) {
			report.flag(e.ID, fmt.Sprintf("entry %d: previous-hash link broken", e.ID))
		}

		recomputed := ComputeHash(e)
		if !constantTimeEqual(e.IntegrityHash, recomputed) {
			report.flag(e.ID, fmt.Sprintf("entry %d: stored hash does not match recomputed hash", e.ID))
		}

		// Carry the recomputed hash, not the stored one, so a single
		// tampered entry also surfaces as a broken link on its successor.
		prevHash = recomputed
		prevID = e.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk audit log: %w", err)
	}

	return report, nil
}

func (r *Report) flag(id int64, issue string) {
	r.Intact = false
	if r.FirstBreakID == 0 {
		r.FirstBreakID = id
	}
	r.Issues = append(r.Issues, issue)
}

func constantTimeEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
