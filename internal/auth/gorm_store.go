package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reawakened/rw-backend/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	gdb *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{gdb: d}
}

func (s *GormStore) CreateUser(ctx context.Context, u *User) error {
	if err := s.gdb.WithContext(ctx).Create(u).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *GormStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.firstUser(ctx, "id = ?", id)
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.firstUser(ctx, "email = ?", email)
}

func (s *GormStore) firstUser(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := s.gdb.WithContext(ctx).First(&u, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *GormStore) UpdateUser(ctx context.Context, u *User) error {
	if err := s.gdb.WithContext(ctx).Save(u).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (s *GormStore) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockFor time.Duration, now time.Time) (int, *time.Time, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)

	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "login_attempts").
			First(&u, "id = ?", userID).Error; err != nil {
			return err
		}

		attempts = u.LoginAttempts + 1
		updates := map[string]any{"login_attempts": attempts}
		if attempts >= maxAttempts {
			t := now.Add(lockFor)
			lockedUntil = &t
			updates["locked_until"] = t
		}

		return tx.Model(&User{}).Where("id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		return 0, nil, fmt.Errorf("record failed login: %w", err)
	}
	return attempts, lockedUntil, nil
}

func (s *GormStore) RecordSuccessfulLogin(ctx context.Context, userID string, now time.Time) error {
	err := s.gdb.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(map[string]any{
		"login_attempts": 0,
		"locked_until":   nil,
		"last_login_at":  now,
	}).Error
	if err != nil {
		return fmt.Errorf("record successful login: %w", err)
	}
	return nil
}

func (s *GormStore) CreateSession(ctx context.Context, sess *Session) error {
	if err := s.gdb.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *GormStore) GetActiveSession(ctx context.Context, token string, now time.Time) (*Session, error) {
	var sess Session
	err := s.gdb.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *GormStore) TouchSession(ctx context.Context, token string, now time.Time) error {
	return s.gdb.WithContext(ctx).Model(&Session{}).
		Where("token = ?", token).
		Update("last_activity_at", now).Error
}

func (s *GormStore) DeleteSession(ctx context.Context, token string) error {
	if err := s.gdb.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteUserSessions(ctx context.Context, userID string) error {
	if err := s.gdb.WithContext(ctx).Where("user_id = ?", userID).Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteUserSessionsExcept(ctx context.Context, userID, keepToken string) error {
	err := s.gdb.WithContext(ctx).
		Where("user_id = ? AND token <> ?", userID, keepToken).
		Delete(&Session{}).Error
	if err != nil {
		return fmt.Errorf("delete other sessions: %w", err)
	}
	return nil
}

func (s *GormStore) ReplaceResetToken(ctx context.Context, t *PasswordResetToken) error {
	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", t.UserID).Delete(&PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(t).Error
	})
	if err != nil {
		return fmt.Errorf("replace reset token: %w", err)
	}
	return nil
}

func (s *GormStore) GetValidResetToken(ctx context.Context, token string, now time.Time) (*PasswordResetToken, error) {
	var t PasswordResetToken
	err := s.gdb.WithContext(ctx).
		Where("token = ? AND expires_at > ? AND used_at IS NULL", token, now).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	return &t, nil
}

func (s *GormStore) CompletePasswordReset(ctx context.Context, token string, u *User, now time.Time) error {
	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&PasswordResetToken{}).
			Where("token = ? AND user_id = ? AND used_at IS NULL AND expires_at > ?", token, u.ID, now).
			Update("used_at", now)
		if res.Error != nil {
			return fmt.Errorf("mark reset token used: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidOrExpiredToken
		}

		if err := tx.Model(&User{}).Where("id = ?", u.ID).Updates(map[string]any{
			"password_hash":  u.PasswordHash,
			"auth_provider":  u.AuthProvider,
			"login_attempts": 0,
			"locked_until":   nil,
		}).Error; err != nil {
			return fmt.Errorf("update password: %w", err)
		}

		if err := tx.Where("user_id = ?", u.ID).Delete(&Session{}).Error; err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		return nil
	})
}

func (s *GormStore) ReplaceVerificationToken(ctx context.Context, t *EmailVerificationToken) error {
	err := s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", t.UserID).Delete(&EmailVerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(t).Error
	})
	if err != nil {
		return fmt.Errorf("replace verification token: %w", err)
	}
	return nil
}

func (s *GormStore) GetValidVerificationToken(ctx context.Context, token string, now time.Time) (*EmailVerificationToken, error) {
	var t EmailVerificationToken
	err := s.gdb.WithContext(ctx).
		Where("token = ? AND expires_at > ? AND verified_at IS NULL", token, now).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verification token: %w", err)
	}
	return &t, nil
}

func (s *GormStore) CompleteEmailVerification(ctx context.Context, token, userID string, now time.Time) error {
	return s.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&EmailVerificationToken{}).
			Where("token = ? AND user_id = ? AND verified_at IS NULL AND expires_at > ?", token, userID, now).
			Update("verified_at", now)
		if res.Error != nil {
			return fmt.Errorf("mark verification token used: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidOrExpiredToken
		}

		if err := tx.Model(&User{}).Where("id = ?", userID).
			Update("email_verified_at", now).Error; err != nil {
			return fmt.Errorf("mark email verified: %w", err)
		}
		return nil
	})
}

func (s *GormStore) CreateAuditEntry(ctx context.Context, e *AuditLogEntry) error {
	return s.gdb.WithContext(ctx).Create(e).Error
}

func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	var out SweepResult
	d := s.gdb.WithContext(ctx)

	res := d.Where("expires_at <= ?", now).Delete(&Session{})
	if res.Error != nil {
		return out, fmt.Errorf("sweep sessions: %w", res.Error)
	}
	out.Sessions = res.RowsAffected

	res = d.Where("expires_at <= ?", now).Delete(&PasswordResetToken{})
	if res.Error != nil {
		return out, fmt.Errorf("sweep reset tokens: %w", res.Error)
	}
	out.ResetTokens = res.RowsAffected

	res = d.Where("expires_at <= ?", now).Delete(&EmailVerificationToken{})
	if res.Error != nil {
		return out, fmt.Errorf("sweep verification tokens: %w", res.Error)
	}
	out.VerificationTokens = res.RowsAffected

	return out, nil
}
