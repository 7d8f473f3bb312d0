// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// auth.go - Authentication orchestration.
//
// SECURITY: Single chokepoint for credential and session decisions
//
// AuthService owns the login flow end to end: throttle check, credential
// verification, session issue, and the audit trail for every outcome.
// It is an explicit constructed value; there is no package-level
// singleton, so tests and callers control exactly which stores, clock,
// and ledger each instance sees.
package security

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/casevault/internal/audit"
)

// AuthService orchestrates registration, login, sessions, and password
// changes over pluggable stores.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	persist  SessionPersistence
	limiter  *RateLimiter
	ledger   *audit.Ledger
	log      zerolog.Logger

	sessionTTL  time.Duration
	rememberTTL time.Duration
	params      *PasswordParams

	// now is overridable in tests.
	now func() time.Time
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithLimiter replaces the default rate limiter.
func WithLimiter(limiter *RateLimiter) AuthOption {
	return func(s *AuthService) { s.limiter = limiter }
}

// WithLedger attaches the audit ledger. Without one, audit events are
// silently discarded; production wiring always sets it.
func WithLedger(ledger *audit.Ledger) AuthOption {
	return func(s *AuthService) { s.ledger = ledger }
}

// WithPersistence attaches cross-restart session persistence.
func WithPersistence(p SessionPersistence) AuthOption {
	return func(s *AuthService) { s.persist = p }
}

// WithAuthLogger sets the operational logger.
func WithAuthLogger(log zerolog.Logger) AuthOption {
	return func(s *AuthService) { s.log = log }
}

// WithSessionDurations overrides the standard and remember-me TTLs.
func WithSessionDurations(standard, remember time.Duration) AuthOption {
	return func(s *AuthService) {
		if standard > 0 {
			s.sessionTTL = standard
		}
		if remember > 0 {
			s.rememberTTL = remember
		}
	}
}

// WithPasswordParams overrides the Argon2id cost parameters. Tests use
// this to keep hashing fast; production keeps the defaults.
func WithPasswordParams(params *PasswordParams) AuthOption {
	return func(s *AuthService) {
		if params != nil {
			s.params = params
		}
	}
}

// NewAuthService wires an AuthService over the given stores.
func NewAuthService(users UserStore, sessions SessionStore, opts ...AuthOption) *AuthService {
	s := &AuthService{
		users:       users,
		sessions:    sessions,
		limiter:     NewRateLimiter(),
		log:         zerolog.New(os.Stderr).With().Timestamp().Logger(),
		sessionTTL:  DefaultSessionDuration,
		rememberTTL: RememberMeDuration,
		params:      DefaultPasswordParams(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// audit appends an event to the ledger if one is attached. Append never
// fails, so neither does this.
func (s *AuthService) audit(ev audit.Event) {
	if s.ledger != nil {
		s.ledger.Append(ev)
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Register creates a new account. The username is canonicalized before
// storage, the password is checked against policy and hashed, and the
// outcome lands in the audit log either way.
func (s *AuthService) Register(username, email, password string) (*User, error) {
	normalized, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	normalizedEmail, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePasswordPolicy(password); err != nil {
		return nil, err
	}

	if existing, err := s.users.FindByUsername(normalized); err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	} else if existing != nil {
		s.auditRegister(normalized, false, "username taken")
		return nil, ErrDuplicateUser
	}
	if existing, err := s.users.FindByEmail(normalizedEmail); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	} else if existing != nil {
		s.auditRegister(normalized, false, "email taken")
		return nil, ErrDuplicateUser
	}

	hash, salt, err := HashPassword(password, s.params)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Username:     normalized,
		Email:        normalizedEmail,
		PasswordHash: hash,
		PasswordSalt: salt,
		Role:         "user",
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.audit(audit.Event{
		Type:         audit.EventRegister,
		UserID:       &user.ID,
		ResourceType: "user",
		ResourceID:   normalized,
		Action:       "register",
		Success:      true,
	})
	s.log.Info().Str("user", maskIdentity(normalized)).Msg("user registered")
	return user, nil
}

func (s *AuthService) auditRegister(username string, success bool, reason string) {
	s.audit(audit.Event{
		Type:         audit.EventRegister,
		ResourceType: "user",
		ResourceID:   username,
		Action:       "register",
		Success:      success,
		ErrorMessage: reason,
	})
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

// Login authenticates a username and password and issues a fresh
// session. rememberMe stretches the session TTL and, when persistence
// is configured, stores the session ID for restart restore.
//
// SECURITY: unknown username and wrong password return the identical
// error, and the throttle check runs before any credential work.
func (s *AuthService) Login(username, password string, rememberMe bool, ipAddress, userAgent string) (*User, *Session, error) {
	identity := normalizeIdentity(username)

	if allowed, retryAfter := s.limiter.Check(identity); !allowed {
		s.audit(audit.Event{
			Type:         audit.EventRateLimited,
			ResourceType: "user",
			ResourceID:   identity,
			Action:       "login",
			Success:      false,
			ErrorMessage: "rate limited",
		})
		return nil, nil, rateLimitedError(retryAfter)
	}

	normalized, err := NormalizeUsername(username)
	if err != nil {
		s.failLogin(identity, "malformed username")
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByUsername(normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		// Burn a verification anyway so a missing account costs the
		// same wall time as a wrong password.
		VerifyPassword(password, decoyHash, decoySalt, s.params)
		s.failLogin(identity, "unknown user")
		return nil, nil, ErrInvalidCredentials
	}

	if !user.Active {
		// Checked before the password so a deactivated account never
		// confirms whether a guessed credential was right. The attempt
		// still counts against the throttle budget.
		s.limiter.RecordFailure(identity)
		s.audit(audit.Event{
			Type:         audit.EventLoginFailed,
			UserID:       &user.ID,
			ResourceType: "user",
			ResourceID:   identity,
			Action:       "login",
			Success:      false,
			ErrorMessage: "account inactive",
		})
		return nil, nil, ErrAccountInactive
	}

	if !VerifyPassword(password, user.PasswordHash, user.PasswordSalt, s.params) {
		s.failLogin(identity, "bad password")
		return nil, nil, ErrInvalidCredentials
	}

	s.limiter.Clear(identity)

	session, err := s.issueSession(user.ID, rememberMe, ipAddress, userAgent)
	if err != nil {
		return nil, nil, err
	}

	loginAt := s.now().UTC()
	if err := s.users.UpdateLastLogin(user.ID, loginAt); err != nil {
		// Cosmetic field; the login still stands.
		s.log.Warn().Err(err).Msg("failed to record last login")
	} else {
		user.LastLogin = &loginAt
	}

	if rememberMe && s.persist != nil && s.persist.Available() {
		if err := s.persist.StoreSessionID(session.ID); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist remember-me session")
		}
	}

	s.audit(audit.Event{
		Type:         audit.EventLogin,
		UserID:       &user.ID,
		ResourceType: "session",
		ResourceID:   sanitizeSessionID(session.ID),
		Action:       "login",
		Details:      map[string]string{"remember_me": fmt.Sprintf("%t", rememberMe)},
		Success:      true,
	})
	s.log.Info().Str("user", maskIdentity(identity)).Msg("login succeeded")
	return user, session, nil
}

// issueSession creates and stores a session with a fresh random ID.
// IDs are never reused or derived, so a pre-login session can never be
// fixated into an authenticated one.
func (s *AuthService) issueSession(userID int64, rememberMe bool, ipAddress, userAgent string) (*Session, error) {
	ttl := s.sessionTTL
	if rememberMe {
		ttl = s.rememberTTL
	}
	now := s.now().UTC()
	session := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		ExpiresAt:  now.Add(ttl),
		RememberMe: rememberMe,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		CreatedAt:  now,
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *AuthService) failLogin(identity, reason string) {
	s.limiter.RecordFailure(identity)
	s.audit(audit.Event{
		Type:         audit.EventLoginFailed,
		ResourceType: "user",
		ResourceID:   identity,
		Action:       "login",
		Success:      false,
		ErrorMessage: reason,
	})
	s.log.Info().Str("user", maskIdentity(identity)).Str("reason", reason).Msg("login failed")
}

// Logout terminates the session and clears any persisted copy of it.
// Logging out an unknown session is not an error.
func (s *AuthService) Logout(sessionID string) error {
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if session == nil {
		// Nothing to revoke and nothing happened, so nothing is logged.
		return nil
	}

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.clearPersistedIfMatches(sessionID)

	s.audit(audit.Event{
		Type:         audit.EventLogout,
		UserID:       &session.UserID,
		ResourceType: "session",
		ResourceID:   sanitizeSessionID(sessionID),
		Action:       "logout",
		Success:      true,
	})
	return nil
}

func (s *AuthService) clearPersistedIfMatches(sessionID string) {
	if s.persist == nil {
		return
	}
	stored, err := s.persist.RetrieveSessionID()
	if err != nil || stored != sessionID {
		return
	}
	if err := s.persist.ClearSession(); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
}

// =============================================================================
// SESSION VALIDATION
// =============================================================================

// ValidateSession resolves a session ID to its user. It returns
// (nil, nil) when the session is unknown, expired, or belongs to a
// deactivated account; expired sessions are deleted on sight. An error
// means the backend failed, not that the session was bad.
func (s *AuthService) ValidateSession(sessionID string) (*User, error) {
	user, _, err := s.resolveSession(sessionID)
	return user, err
}

func (s *AuthService) resolveSession(sessionID string) (*User, *Session, error) {
	if sessionID == "" {
		return nil, nil, nil
	}

	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}

	if session.Expired(s.now()) {
		if err := s.sessions.Delete(session.ID); err != nil {
			s.log.Warn().Err(err).Msg("failed to delete expired session")
		}
		s.clearPersistedIfMatches(session.ID)
		s.audit(audit.Event{
			Type:         audit.EventSessionExpired,
			UserID:       &session.UserID,
			ResourceType: "session",
			ResourceID:   sanitizeSessionID(session.ID),
			Action:       "validate",
			Success:      false,
			ErrorMessage: "session expired",
		})
		return nil, nil, nil
	}

	user, err := s.users.FindByID(session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session user: %w", err)
	}
	if user == nil || !user.Active {
		// Account removed or deactivated after login: the session dies
		// with it.
		if err := s.sessions.Delete(session.ID); err != nil {
			s.log.Warn().Err(err).Msg("failed to delete orphaned session")
		}
		s.clearPersistedIfMatches(session.ID)
		return nil, nil, nil
	}

	return user, session, nil
}

// RestorePersistedSession resurrects the remember-me session stored by
// a previous process, if it is still valid. A stale or missing token is
// cleaned up and reported as (nil, nil, nil).
func (s *AuthService) RestorePersistedSession() (*User, *Session, error) {
	if s.persist == nil || !s.persist.Available() {
		return nil, nil, nil
	}

	sessionID, err := s.persist.RetrieveSessionID()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read persisted session: %w", err)
	}
	if sessionID == "" {
		return nil, nil, nil
	}

	user, session, err := s.resolveSession(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		if err := s.persist.ClearSession(); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear stale persisted session")
		}
		return nil, nil, nil
	}

	s.audit(audit.Event{
		Type:         audit.EventSessionRestore,
		UserID:       &user.ID,
		ResourceType: "session",
		ResourceID:   sanitizeSessionID(session.ID),
		Action:       "restore",
		Success:      true,
	})
	return user, session, nil
}

// CleanupExpiredSessions sweeps expired rows from the session store and
// returns how many were removed.
func (s *AuthService) CleanupExpiredSessions() (int64, error) {
	removed, err := s.sessions.DeleteExpired(s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if removed > 0 {
		s.audit(audit.Event{
			Type:         audit.EventSessionCleanup,
			ResourceType: "session",
			ResourceID:   "expired",
			Action:       "cleanup",
			Details:      map[string]string{"removed": strconv.FormatInt(removed, 10)},
			Success:      true,
		})
		s.log.Debug().Int64("removed", removed).Msg("expired sessions swept")
	}
	return removed, nil
}

// =============================================================================
// PASSWORD CHANGE
// =============================================================================

// ChangePassword rotates a user's credential after re-verifying the
// current password. Every session for the user is revoked, including
// the one driving this call: a credential change invalidates everything
// issued under the old credential.
func (s *AuthService) ChangePassword(userID int64, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	if !VerifyPassword(oldPassword, user.PasswordHash, user.PasswordSalt, s.params) {
		s.audit(audit.Event{
			Type:         audit.EventPasswordChange,
			UserID:       &user.ID,
			ResourceType: "user",
			ResourceID:   user.Username,
			Action:       "change_password",
			Success:      false,
			ErrorMessage: "current password incorrect",
		})
		return ErrInvalidCredentials
	}

	if err := ValidatePasswordPolicy(newPassword); err != nil {
		return err
	}

	hash, salt, err := HashPassword(newPassword, s.params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(user.ID, hash, salt); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := s.sessions.DeleteByUserID(user.ID); err != nil {
		s.log.Warn().Err(err).Msg("failed to revoke sessions after password change")
	}
	if s.persist != nil {
		if err := s.persist.ClearSession(); err != nil {
			s.log.Warn().Err(err).Msg("failed to clear persisted session after password change")
		}
	}

	s.audit(audit.Event{
		Type:         audit.EventPasswordChange,
		UserID:       &user.ID,
		ResourceType: "user",
		ResourceID:   user.Username,
		Action:       "change_password",
		Success:      true,
	})
	s.log.Info().Str("user", maskIdentity(user.Username)).Msg("password changed; sessions revoked")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// sanitizeSessionID truncates a session ID for audit and log output.
// The full token never leaves the session store.
func sanitizeSessionID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// Decoy credential for timing equalization on unknown usernames. Any
// well-formed base64 hash/salt pair works; the result is discarded.
var (
	decoyHash = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	decoySalt = "AAAAAAAAAAAAAAAAAAAAAA"
)
