// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// lockout.go - Fixed-window login throttling.
//
// SECURITY: Unsuccessful logon attempt limiting
//
// Repeated credential failures against one identity are counted in a
// fixed window. Once the window's budget is spent, further attempts for
// that identity are refused until the window ends. State is in-memory
// only: a process restart clears all counters, which is an accepted
// trade-off for a single-operator desktop deployment.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Throttle defaults: 5 failures in 15 minutes blocks the identity for
// the remainder of the window.
const (
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = 15 * time.Minute
)

// attemptBucket tracks failures for one identity in the current window.
type attemptBucket struct {
	Count       int
	WindowStart time.Time
}

// AttemptStatus is a point-in-time view of one identity's throttle state.
type AttemptStatus struct {
	Identity    string
	Count       int
	Remaining   int
	WindowStart time.Time
	WindowEnd   time.Time
	Blocked     bool
	RetryAfter  time.Duration
}

// LimiterStats summarizes the limiter across all identities.
type LimiterStats struct {
	TrackedIdentities int
	BlockedIdentities int
}

// RateLimiter enforces the failure budget. All methods are safe for
// concurrent use; check-then-increment races are excluded by a single
// mutex over the bucket map.
type RateLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*attemptBucket
	maxAttempts int
	window      time.Duration

	// now is overridable in tests.
	now func() time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithMaxAttempts overrides the failure budget per window.
func WithMaxAttempts(n int) RateLimiterOption {
	return func(r *RateLimiter) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithWindow overrides the window length.
func WithWindow(d time.Duration) RateLimiterOption {
	return func(r *RateLimiter) {
		if d > 0 {
			r.window = d
		}
	}
}

// NewRateLimiter creates a limiter with the default 5-per-15-minutes
// budget unless options say otherwise.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	r := &RateLimiter{
		buckets:     make(map[string]*attemptBucket),
		maxAttempts: DefaultMaxAttempts,
		window:      DefaultAttemptWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// normalizeIdentity folds an identity to its bucket key. "Alice",
// "ALICE", and " alice " share one budget.
func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// Check reports whether an attempt for the identity is currently
// allowed. When blocked, retryAfter is the time until the window ends.
// Check does not consume budget; failures are charged via RecordFailure.
func (r *RateLimiter) Check(identity string) (allowed bool, retryAfter time.Duration) {
	key := normalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		return true, 0
	}

	now := r.now()
	if now.Sub(b.WindowStart) >= r.window {
		// Stale window. The bucket resets on the next recorded failure.
		return true, 0
	}
	if b.Count >= r.maxAttempts {
		return false, b.WindowStart.Add(r.window).Sub(now)
	}
	return true, 0
}

// RecordFailure charges one failed attempt against the identity. A
// failure after the window has elapsed starts a fresh window.
func (r *RateLimiter) RecordFailure(identity string) {
	key := normalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[key]
	if !ok || now.Sub(b.WindowStart) >= r.window {
		r.buckets[key] = &attemptBucket{Count: 1, WindowStart: now}
		return
	}
	b.Count++
}

// Clear drops the identity's counters, e.g. after a successful login.
func (r *RateLimiter) Clear(identity string) {
	key := normalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, key)
}

// Status returns the identity's current throttle state, or nil when the
// identity has no live window.
func (r *RateLimiter) Status(identity string) *AttemptStatus {
	key := normalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		return nil
	}
	now := r.now()
	if now.Sub(b.WindowStart) >= r.window {
		return nil
	}

	status := &AttemptStatus{
		Identity:    key,
		Count:       b.Count,
		Remaining:   r.maxAttempts - b.Count,
		WindowStart: b.WindowStart,
		WindowEnd:   b.WindowStart.Add(r.window),
	}
	if status.Remaining < 0 {
		status.Remaining = 0
	}
	if b.Count >= r.maxAttempts {
		status.Blocked = true
		status.RetryAfter = status.WindowEnd.Sub(now)
	}
	return status
}

// Stats summarizes the limiter for diagnostics.
func (r *RateLimiter) Stats() LimiterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := LimiterStats{}
	now := r.now()
	for _, b := range r.buckets {
		if now.Sub(b.WindowStart) >= r.window {
			continue
		}
		stats.TrackedIdentities++
		if b.Count >= r.maxAttempts {
			stats.BlockedIdentities++
		}
	}
	return stats
}

// Cleanup drops buckets whose window has elapsed and returns how many
// were removed. Call periodically to keep memory bounded under churn.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, b := range r.buckets {
		if now.Sub(b.WindowStart) >= r.window {
			delete(r.buckets, key)
			removed++
		}
	}
	return removed
}

// maskIdentity renders an identity safe for logs: a short hash prefix
// rather than the raw username.
func maskIdentity(identity string) string {
	sum := sha256.Sum256([]byte(normalizeIdentity(identity)))
	return "id:" + hex.EncodeToString(sum[:])[:12]
}
