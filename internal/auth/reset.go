package auth

import (
	"context"
)

// RequestPasswordReset issues a fresh reset token, deleting any earlier
// ones. An unknown email yields (nil, "", nil) so callers can answer
// exactly as they would for a known one.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) (*User, string, error) {
	email = NormalizeEmail(email)

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if u == nil {
		return nil, "", nil
	}

	token, err := s.newOneTimeToken()
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	if err := s.store.ReplaceResetToken(ctx, &PasswordResetToken{
		Token:     token,
		UserID:    u.ID,
		ExpiresAt: now.Add(s.settings.ResetTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return nil, "", err
	}

	s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionPasswordResetRequested, Meta: meta, Success: true})
	return u, token, nil
}

// ResetPassword consumes token, sets the new password, clears the lockout
// and signs the user out everywhere, atomically.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	now := s.now()

	rt, err := s.store.GetValidResetToken(ctx, token, now)
	if err != nil {
		return err
	}
	if rt == nil {
		return ErrInvalidOrExpiredToken
	}

	u, err := s.store.GetUserByID(ctx, rt.UserID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	u.setPasswordHash(hash)
	u.LoginAttempts = 0
	u.LockedUntil = nil

	if err := s.store.CompletePasswordReset(ctx, token, u, now); err != nil {
		return err
	}

	s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionPasswordReset, Meta: meta, Success: true})
	return nil
}
