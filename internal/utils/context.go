package utils

import (
	"context"
	"time"
)

type contextKey string

const (
	ContextUserIDKey  contextKey = "userID"
	ContextSessionKey contextKey = "session"
)

// SessionData is what the session middleware learns about the caller.
// User carries the resolved user record for handlers that need it.
type SessionData struct {
	UserID    string
	Role      Role
	Token     string
	ExpiresAt time.Time
	User      any
}

func WithSession(ctx context.Context, s SessionData) context.Context {
	ctx = context.WithValue(ctx, ContextUserIDKey, s.UserID)
	return context.WithValue(ctx, ContextSessionKey, s)
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID := ctx.Value(ContextUserIDKey)
	userIDStr, ok := userID.(string)
	return userIDStr, ok && userIDStr != ""
}

func GetSessionFromContext(ctx context.Context) (SessionData, bool) {
	s, ok := ctx.Value(ContextSessionKey).(SessionData)
	return s, ok
}
