package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/reawakened/rw-backend/internal/middleware"
	"github.com/reawakened/rw-backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher implements middleware.SessionFetcher without any database dependency.
type mockFetcher struct {
	session utils.SessionData
	ok      bool
	err     error
}

func (m mockFetcher) FindSession(ctx context.Context, token string) (utils.SessionData, bool, error) {
	return m.session, m.ok, m.err
}

// callWithCookie wraps a simple 200-OK inner handler in the provided middleware,
// optionally setting one cookie on the request, and returns the recorded response.
func callWithCookie(t *testing.T, mw func(http.Handler) http.Handler, cookieName, cookieValue string) *httptest.ResponseRecorder {
	t.Helper()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := mw(inner)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if cookieName != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookieValue})
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSessionMiddleware_MissingCookie(t *testing.T) {
	rec := callWithCookie(t, middleware.SessionMiddleware(mockFetcher{}), "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not authenticated")
}

func TestSessionMiddleware_ExpiredSession(t *testing.T) {
	rec := callWithCookie(t, middleware.SessionMiddleware(mockFetcher{ok: false}), middleware.SessionCookieName, "expired-token")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session expired")

	// The stale cookie is cleared.
	setCookie := rec.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(setCookie, middleware.SessionCookieName+"=;"), setCookie)
	assert.Contains(t, setCookie, "Max-Age=0")
}

func TestSessionMiddleware_FetcherError(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	fetcher := mockFetcher{err: errors.New("connection refused")}
	handler := chimw.RequestID(middleware.SessionMiddleware(fetcher)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-42")
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "connection refused", entry["err"])
	assert.Equal(t, "/test", entry["path"])
}

func TestSessionMiddleware_ValidSession(t *testing.T) {
	const wantUserID = "test-user-123"

	fetcher := mockFetcher{
		session: utils.SessionData{
			UserID:    wantUserID,
			Role:      utils.RoleMember,
			ExpiresAt: time.Now().Add(time.Hour),
		},
		ok: true,
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, ok := utils.GetUserIDFromContext(r.Context())
		if !ok || gotUserID != wantUserID {
			http.Error(w, "wrong userID in context: "+gotUserID, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()
	middleware.SessionMiddleware(fetcher)(inner).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := middleware.RequireRole(utils.RoleAdmin)(inner)

	t.Run("missing user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing user ID")
	})

	for _, tc := range []struct {
		role utils.Role
		want int
	}{
		{utils.RoleMember, http.StatusForbidden},
		{utils.RoleLeader, http.StatusForbidden},
		{utils.RoleAdmin, http.StatusOK},
		{utils.RoleSuperAdmin, http.StatusOK},
	} {
		t.Run(string(tc.role), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			req = req.WithContext(utils.WithSession(req.Context(), utils.SessionData{UserID: "u", Role: tc.role}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestSetSessionCookie(t *testing.T) {
	t.Run("production", func(t *testing.T) {
		rec := httptest.NewRecorder()
		middleware.SetSessionCookie(rec, "tok", 7*24*time.Hour, middleware.CookieOptions{Production: true})

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, middleware.SessionCookieName, c.Name)
		assert.Equal(t, "tok", c.Value)
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
		assert.Equal(t, 7*24*60*60, c.MaxAge)
		assert.Equal(t, "/", c.Path)
	})

	t.Run("development", func(t *testing.T) {
		rec := httptest.NewRecorder()
		middleware.SetSessionCookie(rec, "tok", time.Hour, middleware.CookieOptions{})

		c := rec.Result().Cookies()[0]
		assert.False(t, c.Secure)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	})
}
