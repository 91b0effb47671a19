package auth

import (
	"context"

	"github.com/reawakened/rw-backend/internal/utils"
)

// AddPasswordToAccount gives an existing account a password. An external
// provider already on the account is kept, so the account ends up able to
// sign in both ways.
func (s *Service) AddPasswordToAccount(ctx context.Context, userID, password string, meta RequestMeta) (*User, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.HasPassword() {
		return nil, ErrPasswordAlreadySet
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u.setPasswordHash(hash)
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	s.audit.record(ctx, auditEvent{
		UserID:   u.ID,
		Action:   ActionPasswordAdded,
		Meta:     meta,
		Metadata: map[string]any{"provider": u.AuthProvider},
		Success:  true,
	})
	return u, nil
}

// ChangePassword checks the current password, stores the new one and ends
// every other session of the user. keepToken is the caller's own session.
func (s *Service) ChangePassword(ctx context.Context, userID, keepToken, current, next string, meta RequestMeta) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		return ErrNoPasswordSet
	}
	if !s.hasher.Verify(current, *u.PasswordHash) {
		s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionPasswordChanged, Meta: meta})
		return ErrIncorrectPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	u.setPasswordHash(hash)
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return err
	}
	if err := s.store.DeleteUserSessionsExcept(ctx, u.ID, keepToken); err != nil {
		return err
	}

	s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionPasswordChanged, Meta: meta, Success: true})
	return nil
}

// Actor is the authenticated user performing an admin action.
type Actor struct {
	UserID string
	Role   utils.Role
}

// canManage: nobody manages themselves, and only a super_admin manages a
// peer.
func (a Actor) canManage(target *User) bool {
	if a.UserID == target.ID {
		return false
	}
	if a.Role == utils.RoleSuperAdmin {
		return true
	}
	return a.Role.AtLeast(target.Role) && a.Role != target.Role
}

// SetRole changes target's role. The new role may not exceed the actor's.
func (s *Service) SetRole(ctx context.Context, actor Actor, targetID, role string, meta RequestMeta) (*User, error) {
	newRole, ok := utils.ParseRole(role)
	if !ok {
		return nil, ErrInvalidRole
	}
	u, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !actor.canManage(u) || !actor.Role.AtLeast(newRole) {
		return nil, ErrRoleNotAllowed
	}

	previous := u.Role
	u.Role = newRole
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}

	s.audit.record(ctx, auditEvent{
		UserID: u.ID,
		Action: ActionRoleChanged,
		Meta:   meta,
		Metadata: map[string]any{
			"by":   actor.UserID,
			"from": string(previous),
			"to":   string(newRole),
		},
		Success: true,
	})
	return u, nil
}

// SetDisabled toggles the soft-delete flag. Disabling ends every session
// of the user.
func (s *Service) SetDisabled(ctx context.Context, actor Actor, targetID string, disabled bool, meta RequestMeta) (*User, error) {
	u, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !actor.canManage(u) {
		return nil, ErrRoleNotAllowed
	}

	u.IsDisabled = disabled
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	if disabled {
		if err := s.store.DeleteUserSessions(ctx, u.ID); err != nil {
			return nil, err
		}
	}

	action := ActionUserEnabled
	if disabled {
		action = ActionUserDisabled
	}
	s.audit.record(ctx, auditEvent{
		UserID:   u.ID,
		Action:   action,
		Meta:     meta,
		Metadata: map[string]any{"by": actor.UserID},
		Success:  true,
	})
	return u, nil
}

// EnsureSuperAdmin registers email as a super_admin, or promotes and
// re-passwords the existing account. created reports which happened.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, password string, meta RequestMeta) (u *User, created bool, err error) {
	u, err = s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, false, err
	}

	if u == nil {
		u, err = s.Register(ctx, RegisterInput{Email: email, Password: password}, meta)
		if err != nil {
			return nil, false, err
		}
		created = true
	} else {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, false, err
		}
		u.setPasswordHash(hash)
		u.IsDisabled = false
		u.LoginAttempts = 0
		u.LockedUntil = nil
	}

	previous := u.Role
	u.Role = utils.RoleSuperAdmin
	u.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, false, err
	}

	s.audit.record(ctx, auditEvent{
		UserID:   u.ID,
		Action:   ActionRoleChanged,
		Meta:     meta,
		Metadata: map[string]any{"from": string(previous), "to": string(utils.RoleSuperAdmin), "by": "seed"},
		Success:  true,
	})
	return u, created, nil
}
