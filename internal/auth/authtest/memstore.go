// Package authtest provides an in-memory auth.Store for tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/reawakened/rw-backend/internal/auth"
)

// MemStore keeps copies of every row, so callers can never alias stored
// state through a returned pointer.
type MemStore struct {
	mu            sync.Mutex
	users         map[string]auth.User
	sessions      map[string]auth.Session
	resetTokens   map[string]auth.PasswordResetToken
	verifyTokens  map[string]auth.EmailVerificationToken
	audit         []auth.AuditLogEntry
	FailAuditWith error
}

var _ auth.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		users:        map[string]auth.User{},
		sessions:     map[string]auth.Session{},
		resetTokens:  map[string]auth.PasswordResetToken{},
		verifyTokens: map[string]auth.EmailVerificationToken{},
	}
}

func (m *MemStore) CreateUser(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return auth.ErrEmailExists
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemStore) GetUserByID(_ context.Context, id string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemStore) UpdateUser(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *MemStore) RecordFailedLogin(_ context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.LoginAttempts++
	var lockedUntil *time.Time
	if u.LoginAttempts >= maxAttempts {
		t := now.Add(lockFor)
		lockedUntil = &t
		u.LockedUntil = &t
	}
	m.users[userID] = u
	return u.LoginAttempts, lockedUntil, nil
}

func (m *MemStore) RecordSuccessfulLogin(_ context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	m.users[userID] = u
	return nil
}

func (m *MemStore) CreateSession(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = *s
	return nil
}

func (m *MemStore) GetActiveSession(_ context.Context, token string, now time.Time) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || !now.Before(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

func (m *MemStore) TouchSession(_ context.Context, token string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[token]; ok {
		s.LastActivityAt = now
		m.sessions[token] = s
	}
	return nil
}

func (m *MemStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MemStore) DeleteUserSessions(_ context.Context, userID string) error {
	return m.DeleteUserSessionsExcept(context.Background(), userID, "")
}

func (m *MemStore) DeleteUserSessionsExcept(_ context.Context, userID, keepToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.UserID == userID && token != keepToken {
			delete(m.sessions, token)
		}
	}
	return nil
}

func (m *MemStore) ReplaceResetToken(_ context.Context, t *auth.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, rt := range m.resetTokens {
		if rt.UserID == t.UserID {
			delete(m.resetTokens, token)
		}
	}
	m.resetTokens[t.Token] = *t
	return nil
}

func (m *MemStore) GetValidResetToken(_ context.Context, token string, now time.Time) (*auth.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.resetTokens[token]
	if !ok || rt.UsedAt != nil || !now.Before(rt.ExpiresAt) {
		return nil, nil
	}
	return &rt, nil
}

func (m *MemStore) CompletePasswordReset(_ context.Context, token string, u *auth.User, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.resetTokens[token]
	if !ok || rt.UserID != u.ID || rt.UsedAt != nil || !now.Before(rt.ExpiresAt) {
		return auth.ErrInvalidOrExpiredToken
	}
	rt.UsedAt = &now
	m.resetTokens[token] = rt

	stored := m.users[u.ID]
	stored.PasswordHash = u.PasswordHash
	stored.AuthProvider = u.AuthProvider
	stored.LoginAttempts = 0
	stored.LockedUntil = nil
	m.users[u.ID] = stored

	for t, s := range m.sessions {
		if s.UserID == u.ID {
			delete(m.sessions, t)
		}
	}
	return nil
}

func (m *MemStore) ReplaceVerificationToken(_ context.Context, t *auth.EmailVerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, vt := range m.verifyTokens {
		if vt.UserID == t.UserID {
			delete(m.verifyTokens, token)
		}
	}
	m.verifyTokens[t.Token] = *t
	return nil
}

func (m *MemStore) GetValidVerificationToken(_ context.Context, token string, now time.Time) (*auth.EmailVerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vt, ok := m.verifyTokens[token]
	if !ok || vt.VerifiedAt != nil || !now.Before(vt.ExpiresAt) {
		return nil, nil
	}
	return &vt, nil
}

func (m *MemStore) CompleteEmailVerification(_ context.Context, token, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vt, ok := m.verifyTokens[token]
	if !ok || vt.UserID != userID || vt.VerifiedAt != nil || !now.Before(vt.ExpiresAt) {
		return auth.ErrInvalidOrExpiredToken
	}
	vt.VerifiedAt = &now
	m.verifyTokens[token] = vt

	u := m.users[userID]
	u.EmailVerifiedAt = &now
	m.users[userID] = u
	return nil
}

func (m *MemStore) CreateAuditEntry(_ context.Context, e *auth.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAuditWith != nil {
		return m.FailAuditWith
	}
	m.audit = append(m.audit, *e)
	return nil
}

func (m *MemStore) DeleteExpired(_ context.Context, now time.Time) (auth.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res auth.SweepResult
	for token, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, token)
			res.Sessions++
		}
	}
	for token, rt := range m.resetTokens {
		if !now.Before(rt.ExpiresAt) {
			delete(m.resetTokens, token)
			res.ResetTokens++
		}
	}
	for token, vt := range m.verifyTokens {
		if !now.Before(vt.ExpiresAt) {
			delete(m.verifyTokens, token)
			res.VerificationTokens++
		}
	}
	return res, nil
}

// AuditActions returns the recorded action tags in write order.
func (m *MemStore) AuditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.audit))
	for i, e := range m.audit {
		out[i] = e.Action
	}
	return out
}

// LastAudit returns the most recent entry with the given action.
func (m *MemStore) LastAudit(action string) (auth.AuditLogEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.audit) - 1; i >= 0; i-- {
		if m.audit[i].Action == action {
			return m.audit[i], true
		}
	}
	return auth.AuditLogEntry{}, false
}

func (m *MemStore) SessionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n
}

// ResetTokenCount counts stored reset tokens, used or not.
func (m *MemStore) ResetTokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resetTokens)
}

// PutUser stores u as-is, bypassing the Service.
func (m *MemStore) PutUser(u auth.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// Clock is a settable time source for Service tests.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
