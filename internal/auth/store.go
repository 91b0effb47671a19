package auth

import (
	"context"
	"time"
)

// Store is the persistence boundary of the auth subsystem. Lookups return
// (nil, nil) when no row matches.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error

	// RecordFailedLogin atomically increments the user's attempt counter and
	// sets locked_until once the counter reaches maxAttempts.
	RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (attempts int, lockedUntil *time.Time, err error)
	RecordSuccessfulLogin(ctx context.Context, userID string, now time.Time) error

	CreateSession(ctx context.Context, s *Session) error
	GetActiveSession(ctx context.Context, token string, now time.Time) (*Session, error)
	TouchSession(ctx context.Context, token string, now time.Time) error
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	DeleteUserSessionsExcept(ctx context.Context, userID, keepToken string) error

	// ReplaceResetToken deletes every reset token of t.UserID, then stores t.
	ReplaceResetToken(ctx context.Context, t *PasswordResetToken) error
	GetValidResetToken(ctx context.Context, token string, now time.Time) (*PasswordResetToken, error)
	// CompletePasswordReset marks the token used, writes the user's password
	// fields and deletes all of the user's sessions in one transaction. It
	// returns ErrInvalidOrExpiredToken if the token was consumed concurrently.
	CompletePasswordReset(ctx context.Context, token string, u *User, now time.Time) error

	ReplaceVerificationToken(ctx context.Context, t *EmailVerificationToken) error
	GetValidVerificationToken(ctx context.Context, token string, now time.Time) (*EmailVerificationToken, error)
	CompleteEmailVerification(ctx context.Context, token, userID string, now time.Time) error

	CreateAuditEntry(ctx context.Context, e *AuditLogEntry) error

	DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error)
}

// SweepResult counts the rows removed by DeleteExpired.
type SweepResult struct {
	Sessions           int64
	ResetTokens        int64
	VerificationTokens int64
}
