package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit action tags.
const (
	ActionRegister               = "register"
	ActionRegisterEmailExists    = "register_email_exists"
	ActionLogin                  = "login"
	ActionLoginFailed            = "login_failed"
	ActionLoginUserNotFound      = "login_user_not_found"
	ActionLoginDisabled          = "login_disabled"
	ActionLoginLocked            = "login_locked"
	ActionLoginNoPassword        = "login_no_password"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordReset          = "password_reset"
	ActionEmailVerified          = "email_verified"
	ActionPasswordAdded          = "password_added"
	ActionPasswordChanged        = "password_changed"
	ActionRoleChanged            = "role_changed"
	ActionUserDisabled           = "user_disabled"
	ActionUserEnabled            = "user_enabled"
)

// RequestMeta carries the informational client details recorded with
// sessions and audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type auditEvent struct {
	UserID   string
	Action   string
	Meta     RequestMeta
	Metadata map[string]any
	Success  bool
}

// auditLogger writes audit entries and swallows failures: a broken audit
// pipe must not break authentication.
type auditLogger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func (a auditLogger) record(ctx context.Context, ev auditEvent) {
	entry := &AuditLogEntry{
		ID:        uuid.NewString(),
		Action:    ev.Action,
		IPAddress: ev.Meta.IP,
		UserAgent: ev.Meta.UserAgent,
		Metadata:  datatypes.JSONMap{},
		Success:   ev.Success,
		CreatedAt: a.now(),
	}
	if ev.UserID != "" {
		id := ev.UserID
		entry.UserID = &id
	}
	for k, v := range ev.Metadata {
		entry.Metadata[k] = v
	}

	if err := a.store.CreateAuditEntry(ctx, entry); err != nil {
		a.logger.Error("failed to write audit entry", "action", ev.Action, "err", err)
	}
}
