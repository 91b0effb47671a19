package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/reawakened/rw-backend/internal/utils"
)

// Settings are the tunable security constants of the Service.
type Settings struct {
	SessionTTL       time.Duration
	ResetTokenTTL    time.Duration
	VerifyTokenTTL   time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		SessionTTL:       7 * 24 * time.Hour,
		ResetTokenTTL:    time.Hour,
		VerifyTokenTTL:   24 * time.Hour,
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
	}
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service owns every credential and session decision. Expected failures
// come back as the sentinel errors in errors.go; anything else is a storage
// or hashing fault.
type Service struct {
	store    Store
	hasher   *PasswordHasher
	settings Settings
	logger   *slog.Logger
	now      func() time.Time
	audit    auditLogger
}

func NewService(store Store, hasher *PasswordHasher, settings Settings, opts ...Option) *Service {
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultBcryptCost)
	}
	def := DefaultSettings()
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = def.SessionTTL
	}
	if settings.ResetTokenTTL <= 0 {
		settings.ResetTokenTTL = def.ResetTokenTTL
	}
	if settings.VerifyTokenTTL <= 0 {
		settings.VerifyTokenTTL = def.VerifyTokenTTL
	}
	if settings.MaxLoginAttempts <= 0 {
		settings.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if settings.LockoutDuration <= 0 {
		settings.LockoutDuration = def.LockoutDuration
	}

	s := &Service{
		store:    store,
		hasher:   hasher,
		settings: settings,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.audit = auditLogger{store: store, logger: s.logger, now: s.now}
	return s
}

func (s *Service) Settings() Settings { return s.settings }

// NormalizeEmail is the uniqueness key for users.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an email/password member. It does not open a session.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*User, error) {
	email := NormalizeEmail(in.Email)

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.audit.record(ctx, auditEvent{
			UserID:   existing.ID,
			Action:   ActionRegisterEmailExists,
			Meta:     meta,
			Metadata: map[string]any{"email": email},
		})
		return nil, ErrEmailExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	id, err := GenerateToken(UserIDBytes)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &User{
		ID:        id,
		Email:     email,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      utils.RoleMember,
		CreatedAt: now,
		UpdatedAt: now,
	}
	u.setPasswordHash(hash)

	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrEmailExists) {
			s.audit.record(ctx, auditEvent{
				Action:   ActionRegisterEmailExists,
				Meta:     meta,
				Metadata: map[string]any{"email": email},
			})
		}
		return nil, err
	}

	s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionRegister, Meta: meta, Success: true})
	return u, nil
}

type LoginResult struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Login runs the checks in a fixed order; each one short-circuits.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (*LoginResult, error) {
	email = NormalizeEmail(email)
	now := s.now()

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.audit.record(ctx, auditEvent{
			Action:   ActionLoginUserNotFound,
			Meta:     meta,
			Metadata: map[string]any{"email": email},
		})
		return nil, ErrInvalidCredentials
	}

	if u.IsDisabled {
		s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionLoginDisabled, Meta: meta})
		return nil, ErrAccountDisabled
	}

	if u.LockedUntil != nil && u.LockedUntil.After(now) {
		minutes := minutesUntil(*u.LockedUntil, now)
		s.audit.record(ctx, auditEvent{
			UserID:   u.ID,
			Action:   ActionLoginLocked,
			Meta:     meta,
			Metadata: map[string]any{"minutesLeft": minutes},
		})
		return nil, &LockedError{MinutesLeft: minutes}
	}

	if !u.HasPassword() {
		s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionLoginNoPassword, Meta: meta})
		return nil, ErrNoPasswordSet
	}

	if !s.hasher.Verify(password, *u.PasswordHash) {
		attempts, lockedUntil, err := s.store.RecordFailedLogin(ctx, u.ID, s.settings.MaxLoginAttempts, s.settings.LockoutDuration, now)
		if err != nil {
			return nil, err
		}
		locked := lockedUntil != nil
		s.audit.record(ctx, auditEvent{
			UserID:   u.ID,
			Action:   ActionLoginFailed,
			Meta:     meta,
			Metadata: map[string]any{"attempts": attempts, "locked": locked},
		})
		if locked {
			return nil, &LockedError{MinutesLeft: minutesUntil(*lockedUntil, now)}
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.store.RecordSuccessfulLogin(ctx, u.ID, now); err != nil {
		return nil, err
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now

	if s.hasher.NeedsRehash(*u.PasswordHash) {
		s.rehash(ctx, u, password)
	}

	token, err := GenerateToken(SessionTokenBytes)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		Token:          token,
		UserID:         u.ID,
		ExpiresAt:      now.Add(s.settings.SessionTTL),
		LastActivityAt: now,
		IPAddress:      meta.IP,
		UserAgent:      meta.UserAgent,
		CreatedAt:      now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	s.audit.record(ctx, auditEvent{UserID: u.ID, Action: ActionLogin, Meta: meta, Success: true})
	return &LoginResult{User: u, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// rehash upgrades a hash produced with an older cost. Failures only cost a
// future rehash attempt.
func (s *Service) rehash(ctx context.Context, u *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", u.ID, "err", err)
		return
	}
	u.setPasswordHash(hash)
	if err := s.store.UpdateUser(ctx, u); err != nil {
		s.logger.Warn("password rehash not saved", "user_id", u.ID, "err", err)
	}
}

// ValidateSession returns (nil, nil, nil) for unknown, expired, or orphaned
// tokens and for sessions of disabled users. Expired and unknown tokens
// are indistinguishable here.
func (s *Service) ValidateSession(ctx context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, nil
	}
	now := s.now()

	sess, err := s.store.GetActiveSession(ctx, token, now)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, nil
	}

	if err := s.store.TouchSession(ctx, token, now); err != nil {
		s.logger.Warn("failed to touch session", "user_id", sess.UserID, "err", err)
	} else {
		sess.LastActivityAt = now
	}

	u, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	if u == nil || u.IsDisabled {
		return nil, nil, nil
	}
	return u, sess, nil
}

// Logout deletes one session. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.store.DeleteSession(ctx, token)
}

func (s *Service) InvalidateAllUserSessions(ctx context.Context, userID string) error {
	return s.store.DeleteUserSessions(ctx, userID)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func minutesUntil(t, now time.Time) int {
	m := int(math.Ceil(t.Sub(now).Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}

func (s *Service) newOneTimeToken() (string, error) {
	t, err := GenerateToken(OneTimeTokenBytes)
	if err != nil {
		return "", fmt.Errorf("one-time token: %w", err)
	}
	return t, nil
}
