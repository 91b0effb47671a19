package auth

import (
	"fmt"

	"github.com/reawakened/rw-backend/internal/db"
	"gorm.io/gorm"
)

const Schema = "app_auth"

// Init creates the app_auth schema and tables.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, Schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", Schema, err)
	}

	if err := d.AutoMigrate(&User{}, &Session{}, &PasswordResetToken{}, &EmailVerificationToken{}, &AuditLogEntry{}); err != nil {
		return fmt.Errorf("auto-migrate auth tables: %w", err)
	}

	// Emails are stored lowercased; the index keeps a raw insert from
	// sneaking in a case variant.
	if err := d.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON app_auth.users (LOWER(email))`).Error; err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}
