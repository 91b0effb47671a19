package auth

import (
	"errors"
	"fmt"
)

// Expected failures. Handlers map these to 4xx responses; they are never
// logged as application errors.
var (
	ErrEmailExists           = errors.New("an account with this email already exists")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrAccountDisabled       = errors.New("this account has been disabled")
	ErrAccountLocked         = errors.New("account is temporarily locked")
	ErrNoPasswordSet         = errors.New("no password is set for this account, use forgot-password to set one")
	ErrPasswordAlreadySet    = errors.New("this account already has a password, use change-password instead")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrUserNotFound          = errors.New("user not found")
	ErrIncorrectPassword     = errors.New("current password is incorrect")
	ErrRoleNotAllowed        = errors.New("cannot manage a user at or above your own role")
	ErrInvalidRole           = errors.New("unknown role")
)

// LockedError reports how long a locked account must wait.
type LockedError struct {
	MinutesLeft int
}

func (e *LockedError) Error() string {
	unit := "minutes"
	if e.MinutesLeft == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("account is locked due to too many failed login attempts, try again in %d %s", e.MinutesLeft, unit)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
