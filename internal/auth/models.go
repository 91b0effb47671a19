package auth

import (
	"time"

	"github.com/reawakened/rw-backend/internal/utils"
	"gorm.io/datatypes"
)

// Provider tags stored in users.auth_provider.
const (
	ProviderEmail = "email"
	ProviderBoth  = "both"
)

type User struct {
	ID               string     `gorm:"primaryKey;size:32" json:"id"`
	Email            string     `gorm:"not null" json:"email"`
	PasswordHash     *string    `json:"-"`
	AuthProvider     string     `gorm:"not null;default:'email'" json:"authProvider"`
	ExternalProvider string     `gorm:"not null;default:''" json:"-"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Role             utils.Role `gorm:"type:text;not null;default:'member'" json:"role"`
	LoginAttempts    int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	EmailVerifiedAt  *time.Time `json:"emailVerifiedAt"`
	IsDisabled       bool       `gorm:"not null;default:false" json:"isDisabled"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) HasExternalProvider() bool {
	return u.ExternalProvider != ""
}

// ProviderTag derives the auth_provider column from the capability set:
// email, the external provider's name, or both.
func (u *User) ProviderTag() string {
	switch {
	case u.HasPassword() && u.HasExternalProvider():
		return ProviderBoth
	case u.HasExternalProvider():
		return u.ExternalProvider
	default:
		return ProviderEmail
	}
}

func (u *User) setPasswordHash(hash string) {
	u.PasswordHash = &hash
	u.AuthProvider = u.ProviderTag()
}

// PublicUser is the client-safe projection of a User.
type PublicUser struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName,omitempty"`
	LastName        string     `json:"lastName,omitempty"`
	Role            utils.Role `json:"role"`
	AuthProvider    string     `json:"authProvider"`
	EmailVerified   bool       `json:"emailVerified"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Role:            u.Role,
		AuthProvider:    u.ProviderTag(),
		EmailVerified:   u.EmailVerifiedAt != nil,
		EmailVerifiedAt: u.EmailVerifiedAt,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

// Session is valid while now < ExpiresAt. LastActivityAt moves on every
// validated use; ExpiresAt never does.
type Session struct {
	Token          string    `gorm:"primaryKey;size:64"`
	UserID         string    `gorm:"not null;index"`
	ExpiresAt      time.Time `gorm:"not null;index"`
	LastActivityAt time.Time `gorm:"not null"`
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
}

type PasswordResetToken struct {
	Token     string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

// EmailVerificationToken proves ownership of Email, which may differ from
// the user's current address.
type EmailVerificationToken struct {
	Token      string    `gorm:"primaryKey;size:64"`
	UserID     string    `gorm:"not null;index"`
	Email      string    `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

type AuditLogEntry struct {
	ID        string            `gorm:"primaryKey;type:uuid"`
	UserID    *string           `gorm:"index"`
	Action    string            `gorm:"not null;index"`
	IPAddress string
	UserAgent string
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	Success   bool              `gorm:"not null"`
	CreatedAt time.Time         `gorm:"index"`
}

func (User) TableName() string                   { return "app_auth.users" }
func (Session) TableName() string                { return "app_auth.sessions" }
func (PasswordResetToken) TableName() string     { return "app_auth.password_reset_tokens" }
func (EmailVerificationToken) TableName() string { return "app_auth.email_verification_tokens" }
func (AuditLogEntry) TableName() string          { return "app_auth.audit_log" }
