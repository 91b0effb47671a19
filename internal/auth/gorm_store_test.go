package auth_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/reawakened/rw-backend/internal/auth"
	"github.com/reawakened/rw-backend/internal/db"
	"github.com/reawakened/rw-backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Postgres only when DATABASE_URL is set.
func newGormStore(t *testing.T) *auth.GormStore {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	gdb, err := db.Connect(dsn, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, auth.Init(gdb))

	return auth.NewGormStore(gdb)
}

func newDBUser(t *testing.T, store *auth.GormStore) *auth.User {
	t.Helper()
	id, err := auth.GenerateToken(auth.UserIDBytes)
	require.NoError(t, err)
	hash := "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold"
	u := &auth.User{
		ID:           id,
		Email:        uuid.NewString() + "@example.test",
		PasswordHash: &hash,
		AuthProvider: auth.ProviderEmail,
		Role:         utils.RoleMember,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func TestGormStore_Users(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	u := newDBUser(t, store)

	got, err := store.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	missing, err := store.GetUserByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := *u
	dup.ID = uuid.NewString()[:32]
	assert.ErrorIs(t, store.CreateUser(ctx, &dup), auth.ErrEmailExists)

	upper := *u
	upper.ID = uuid.NewString()[:32]
	upper.Email = strings.ToUpper(u.Email)
	assert.ErrorIs(t, store.CreateUser(ctx, &upper), auth.ErrEmailExists)
}

func TestGormStore_RecordFailedLogin(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	u := newDBUser(t, store)
	now := time.Now().UTC().Truncate(time.Second)

	for i := 1; i <= 2; i++ {
		attempts, lockedUntil, err := store.RecordFailedLogin(ctx, u.ID, 3, 15*time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
		assert.Nil(t, lockedUntil)
	}

	attempts, lockedUntil, err := store.RecordFailedLogin(ctx, u.ID, 3, 15*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	require.NotNil(t, lockedUntil)
	assert.WithinDuration(t, now.Add(15*time.Minute), *lockedUntil, time.Second)

	require.NoError(t, store.RecordSuccessfulLogin(ctx, u.ID, now))
	got, err := store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LoginAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLoginAt)
}

func TestGormStore_PasswordResetIsSingleUse(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	u := newDBUser(t, store)
	now := time.Now().UTC()

	token, err := auth.GenerateToken(auth.OneTimeTokenBytes)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceResetToken(ctx, &auth.PasswordResetToken{
		Token: token, UserID: u.ID, ExpiresAt: now.Add(time.Hour),
	}))
	sessToken, err := auth.GenerateToken(auth.SessionTokenBytes)
	require.NoError(t, err)
	require.NoError(t, store.CreateSession(ctx, &auth.Session{
		Token: sessToken, UserID: u.ID, ExpiresAt: now.Add(time.Hour), LastActivityAt: now,
	}))

	require.NoError(t, store.CompletePasswordReset(ctx, token, u, now))
	assert.ErrorIs(t, store.CompletePasswordReset(ctx, token, u, now), auth.ErrInvalidOrExpiredToken)

	sess, err := store.GetActiveSession(ctx, sessToken, now)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGormStore_DeleteExpired(t *testing.T) {
	store := newGormStore(t)
	ctx := context.Background()
	u := newDBUser(t, store)
	past := time.Now().UTC().Add(-time.Hour)

	token, err := auth.GenerateToken(auth.SessionTokenBytes)
	require.NoError(t, err)
	require.NoError(t, store.CreateSession(ctx, &auth.Session{
		Token: token, UserID: u.ID, ExpiresAt: past, LastActivityAt: past,
	}))

	res, err := store.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Sessions, int64(1))
}
