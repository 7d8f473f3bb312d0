// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/casevault/internal/audit"
)

// =============================================================================
// IN-MEMORY FAKES
// =============================================================================

type memUserStore struct {
	nextID int64
	users  map[int64]*User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{nextID: 1, users: make(map[int64]*User)}
}

func (m *memUserStore) FindByUsername(username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memUserStore) FindByEmail(email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memUserStore) FindByID(id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memUserStore) Create(u *User) error {
	u.ID = m.nextID
	m.nextID++
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memUserStore) UpdatePassword(id int64, hash, salt string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.PasswordSalt = salt
	return nil
}

func (m *memUserStore) UpdateLastLogin(id int64, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin = &at
	return nil
}

func (m *memUserStore) UpdateActiveStatus(id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = active
	return nil
}

type memSessionStore struct {
	sessions map[string]*Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*Session)}
}

func (m *memSessionStore) Create(s *Session) error {
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *memSessionStore) FindByID(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *memSessionStore) Delete(id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *memSessionStore) DeleteByUserID(userID int64) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessionStore) DeleteExpired(now time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessionStore) IsExpired(s *Session) bool {
	return s.Expired(time.Now())
}

type memAuditStore struct {
	entries []audit.Entry
}

func (m *memAuditStore) Insert(e *audit.Entry) error {
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAuditStore) Last() (*audit.Entry, error) {
	if len(m.entries) == 0 {
		return nil, nil
	}
	tail := m.entries[len(m.entries)-1]
	return &tail, nil
}

func (m *memAuditStore) Query(f audit.Filter) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range m.entries {
		if f.EventType != "" && e.EventType != f.EventType {
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
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAuditStore) Walk(fn func(e *audit.Entry) error) error {
	for i := range m.entries {
		if err := fn(&m.entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// FIXTURE
// =============================================================================

type authFixture struct {
	service  *AuthService
	users    *memUserStore
	sessions *memSessionStore
	auditLog *memAuditStore
	clock    *fixedClock
	persist  *FileSessionStore
	limiter  *RateLimiter
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		users:    newMemUserStore(),
		sessions: newMemSessionStore(),
		auditLog: &memAuditStore{},
		clock:    newFixedClock(),
		persist:  NewFileSessionStore(t.TempDir()),
	}

	ledger, err := audit.NewLedger(f.auditLog)
	require.NoError(t, err)

	limiter := NewRateLimiter()
	limiter.now = f.clock.Now
	f.limiter = limiter

	f.service = NewAuthService(f.users, f.sessions,
		WithLedger(ledger),
		WithPersistence(f.persist),
		WithLimiter(limiter),
		WithPasswordParams(testParams()),
	)
	f.service.now = f.clock.Now
	return f
}

func (f *authFixture) register(t *testing.T, username, password string) *User {
	t.Helper()
	user, err := f.service.Register(username, username+"@example.com", password)
	require.NoError(t, err)
	return user
}

func (f *authFixture) eventTypes() []string {
	var types []string
	for _, e := range f.auditLog.entries {
		types = append(types, e.EventType)
	}
	return types
}

const testPassword = "A long enough passw0rd"

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)

	user := f.register(t, "Alice", testPassword)
	assert.Equal(t, "alice", user.Username, "username should be canonicalized")
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.Active)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEmpty(t, user.PasswordSalt)
	assert.NotEqual(t, testPassword, user.PasswordHash)

	assert.Contains(t, f.eventTypes(), audit.EventRegister)
}

func TestRegisterDuplicate(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	_, err := f.service.Register("ALICE", "other@example.com", testPassword)
	assert.ErrorIs(t, err, ErrDuplicateUser, "case variant of taken username")

	_, err = f.service.Register("bob", "alice@example.com", testPassword)
	assert.ErrorIs(t, err, ErrDuplicateUser, "taken email")
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.Register("alice", "alice@example.com", "short")
	assert.ErrorIs(t, err, ErrPasswordPolicy)
	assert.Empty(t, f.users.users, "no account should be created")
}

// =============================================================================
// LOGIN
// =============================================================================

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture(t)
	registered := f.register(t, "alice", testPassword)

	user, session, err := f.service.Login("Alice", testPassword, false, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	require.NotNil(t, session)
	assert.Equal(t, user.ID, session.UserID)
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.RememberMe)
	assert.Equal(t, f.clock.Now().UTC().Add(DefaultSessionDuration), session.ExpiresAt)
	assert.NotNil(t, user.LastLogin, "last login should be recorded")

	assert.Contains(t, f.eventTypes(), audit.EventLogin)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	user, session, err := f.service.Login("alice", "not the password", false, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, user)
	assert.Nil(t, session)
	assert.Contains(t, f.eventTypes(), audit.EventLoginFailed)
}

func TestLoginUnknownUserIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	_, _, errUnknown := f.service.Login("mallory", testPassword, false, "", "")
	_, _, errWrongPw := f.service.Login("alice", "not the password", false, "", "")

	require.Error(t, errUnknown)
	require.Error(t, errWrongPw)
	assert.Equal(t, errUnknown.Error(), errWrongPw.Error(),
		"unknown user and wrong password must produce the same error")
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", testPassword)
	require.NoError(t, f.users.UpdateActiveStatus(user.ID, false))

	_, _, err := f.service.Login("alice", testPassword, false, "", "")
	assert.ErrorIs(t, err, ErrAccountInactive)

	// The refused attempt still counts against the throttle budget, so
	// a deactivated account cannot be used as a free password oracle.
	status := f.limiter.Status("alice")
	require.NotNil(t, status)
	assert.Equal(t, 1, status.Count)
	assert.Contains(t, f.eventTypes(), audit.EventLoginFailed)
}

func TestLoginRateLimited(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	for i := 0; i < DefaultMaxAttempts; i++ {
		_, _, err := f.service.Login("alice", "wrong password here", false, "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Budget exhausted: even the correct password is refused.
	_, _, err := f.service.Login("alice", testPassword, false, "", "")
	assert.ErrorIs(t, err, ErrRateLimited)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Greater(t, authErr.RetryAfter, time.Duration(0))
	assert.Contains(t, f.eventTypes(), audit.EventRateLimited)

	// After the window the account is usable again.
	f.clock.Advance(DefaultAttemptWindow)
	_, _, err = f.service.Login("alice", testPassword, false, "", "")
	assert.NoError(t, err)
}

func TestLoginSuccessResetsBudget(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	for i := 0; i < DefaultMaxAttempts-1; i++ {
		f.service.Login("alice", "wrong password here", false, "", "")
	}
	_, _, err := f.service.Login("alice", testPassword, false, "", "")
	require.NoError(t, err)

	// A fresh budget tolerates more failures before blocking.
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		_, _, err := f.service.Login("alice", "wrong password here", false, "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}
}

func TestLoginSessionFixation(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	_, first, err := f.service.Login("alice", testPassword, false, "", "")
	require.NoError(t, err)
	_, second, err := f.service.Login("alice", testPassword, false, "", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "every login must issue a fresh session ID")
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestValidateSession(t *testing.T) {
	f := newAuthFixture(t)
	registered := f.register(t, "alice", testPassword)
	_, session, err := f.service.Login("alice", testPassword, false, "", "")
	require.NoError(t, err)

	user, err := f.service.ValidateSession(session.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, registered.ID, user.ID)

	user, err = f.service.ValidateSession("no-such-session")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestValidateSessionExpiry(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)
	_, session, err := f.service.Login("alice", testPassword, false, "", "")
	require.NoError(t, err)

	f.clock.Advance(DefaultSessionDuration + time.Minute)

	user, err := f.service.ValidateSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, user, "expired session must not validate")

	stored, err := f.sessions.FindByID(session.ID)
	require.NoError(t, err)
	assert.Nil(t, stored, "expired session must be deleted on sight")
	assert.Contains(t, f.eventTypes(), audit.EventSessionExpired)
}

func TestValidateSessionDeactivatedUser(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", testPassword)
	_, session, err := f.service.Login("alice", testPassword, false, "", "")
	require.NoError(t, err)

	require.NoError(t, f.users.UpdateActiveStatus(user.ID, false))

	got, err := f.service.ValidateSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "session of deactivated account must not validate")
}

func TestRememberMeDuration(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	_, session, err := f.service.Login("alice", testPassword, true, "", "")
	require.NoError(t, err)
	assert.True(t, session.RememberMe)
	assert.Equal(t, f.clock.Now().UTC().Add(RememberMeDuration), session.ExpiresAt)
	assert.True(t, f.persist.HasStoredSession(), "remember-me session should be persisted")
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)
	_, session, err := f.service.Login("alice", testPassword, true, "", "")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(session.ID))

	user, err := f.service.ValidateSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.False(t, f.persist.HasStoredSession(), "persisted session should be cleared")
	assert.Contains(t, f.eventTypes(), audit.EventLogout)

	// Logging out an unknown session is a no-op, not an error, and
	// leaves no trace in the audit log.
	before := len(f.auditLog.entries)
	assert.NoError(t, f.service.Logout("no-such-session"))
	assert.Len(t, f.auditLog.entries, before)
}

func TestRestorePersistedSession(t *testing.T) {
	f := newAuthFixture(t)
	registered := f.register(t, "alice", testPassword)
	_, session, err := f.service.Login("alice", testPassword, true, "", "")
	require.NoError(t, err)

	user, restored, err := f.service.RestorePersistedSession()
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, registered.ID, user.ID)
	assert.Equal(t, session.ID, restored.ID)
	assert.Contains(t, f.eventTypes(), audit.EventSessionRestore)
}

func TestRestorePersistedSessionStale(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)
	_, _, err := f.service.Login("alice", testPassword, true, "", "")
	require.NoError(t, err)

	f.clock.Advance(RememberMeDuration + time.Hour)

	user, session, err := f.service.RestorePersistedSession()
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Nil(t, session)
	assert.False(t, f.persist.HasStoredSession(), "stale persisted token should be cleaned up")
}

func TestCleanupExpiredSessions(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "alice", testPassword)

	_, _, err := f.service.Login("alice", testPassword, false, "", "")
	require.NoError(t, err)
	_, kept, err := f.service.Login("alice", testPassword, true, "", "")
	require.NoError(t, err)

	f.clock.Advance(DefaultSessionDuration + time.Minute)

	removed, err := f.service.CleanupExpiredSessions()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	still, err := f.sessions.FindByID(kept.ID)
	require.NoError(t, err)
	assert.NotNil(t, still, "remember-me session should survive the sweep")

	// One summary entry records the sweep, carrying the removal count.
	var cleanup *audit.Entry
	for i := range f.auditLog.entries {
		if f.auditLog.entries[i].EventType == audit.EventSessionCleanup {
			cleanup = &f.auditLog.entries[i]
		}
	}
	require.NotNil(t, cleanup, "sweep should be audited")
	assert.True(t, cleanup.Success)
	assert.Contains(t, cleanup.Details, `"removed":"1"`)

	// A sweep with nothing to remove stays silent.
	before := len(f.auditLog.entries)
	removed, err = f.service.CleanupExpiredSessions()
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Len(t, f.auditLog.entries, before)
}

// =============================================================================
// PASSWORD CHANGE
// =============================================================================

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", testPassword)
	_, session, err := f.service.Login("alice", testPassword, true, "", "")
	require.NoError(t, err)

	const newPassword = "A different l0ng password"
	require.NoError(t, f.service.ChangePassword(user.ID, testPassword, newPassword))

	// Global logout: the old session is gone, persistence cleared.
	got, err := f.service.ValidateSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, f.persist.HasStoredSession())

	// Old credential dead, new one live.
	_, _, err = f.service.Login("alice", testPassword, false, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.service.Login("alice", newPassword, false, "", "")
	assert.NoError(t, err)

	assert.Contains(t, f.eventTypes(), audit.EventPasswordChange)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", testPassword)

	err := f.service.ChangePassword(user.ID, "wrong current pass", "A different l0ng password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Credential unchanged.
	_, _, err = f.service.Login("alice", testPassword, false, "", "")
	assert.NoError(t, err)
}

func TestChangePasswordPolicy(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "alice", testPassword)

	err := f.service.ChangePassword(user.ID, testPassword, "short")
	assert.ErrorIs(t, err, ErrPasswordPolicy)
}

func TestChangePasswordUnknownUser(t *testing.T) {
	f := newAuthFixture(t)

	err := f.service.ChangePassword(999, testPassword, "A different l0ng password")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
