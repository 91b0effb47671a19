package auth

import (
	"context"

	"github.com/reawakened/rw-backend/internal/utils"
)

// FindSession lets the session middleware resolve cookies through the
// Service. The resolved *User travels in SessionData.User.
func (s *Service) FindSession(ctx context.Context, token string) (utils.SessionData, bool, error) {
	u, sess, err := s.ValidateSession(ctx, token)
	if err != nil {
		return utils.SessionData{}, false, err
	}
	if u == nil {
		return utils.SessionData{}, false, nil
	}
	return utils.SessionData{
		UserID:    u.ID,
		Role:      u.Role,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      u,
	}, true, nil
}

func userFromContext(ctx context.Context) (*User, utils.SessionData, bool) {
	session, ok := utils.GetSessionFromContext(ctx)
	if !ok {
		return nil, session, false
	}
	u, ok := session.User.(*User)
	return u, session, ok && u != nil
}
