package auth

import (
	"context"
)

// CreateEmailVerificationToken replaces the user's pending verification
// token with one bound to email.
func (s *Service) CreateEmailVerificationToken(ctx context.Context, userID, email string) (string, error) {
	token, err := s.newOneTimeToken()
	if err != nil {
		return "", err
	}
	now := s.now()
	if err := s.store.ReplaceVerificationToken(ctx, &EmailVerificationToken{
		Token:     token,
		UserID:    userID,
		Email:     NormalizeEmail(email),
		ExpiresAt: now.Add(s.settings.VerifyTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyEmail marks the user's email verified and returns the address the
// token was bound to. A token works once.
func (s *Service) VerifyEmail(ctx context.Context, token string, meta RequestMeta) (string, error) {
	now := s.now()

	vt, err := s.store.GetValidVerificationToken(ctx, token, now)
	if err != nil {
		return "", err
	}
	if vt == nil {
		return "", ErrInvalidOrExpiredToken
	}

	if err := s.store.CompleteEmailVerification(ctx, token, vt.UserID, now); err != nil {
		return "", err
	}

	s.audit.record(ctx, auditEvent{
		UserID:   vt.UserID,
		Action:   ActionEmailVerified,
		Meta:     meta,
		Metadata: map[string]any{"email": vt.Email},
		Success:  true,
	})
	return vt.Email, nil
}
