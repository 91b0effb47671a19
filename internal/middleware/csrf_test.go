package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reawakened/rw-backend/internal/logging"
	"github.com/reawakened/rw-backend/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCSRFHandler(guard middleware.CSRF) http.Handler {
	return guard.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.CSRFTokenFromContext(r.Context())))
	}))
}

func TestCSRF_IssuesCookieOnFirstVisit(t *testing.T) {
	h := newCSRFHandler(middleware.CSRF{Logger: logging.Discard()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, middleware.CSRFCookieName, c.Name)
	assert.Len(t, c.Value, 64)
	assert.False(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 24*60*60, c.MaxAge)
	assert.Equal(t, c.Value, rec.Body.String())
}

func TestCSRF_ReusesExistingCookie(t *testing.T) {
	h := newCSRFHandler(middleware.CSRF{Production: true, Logger: logging.Discard()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "existing"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, "existing", rec.Body.String())
}

func TestCSRF_ProductionCookieAttributes(t *testing.T) {
	h := newCSRFHandler(middleware.CSRF{Production: true, Logger: logging.Discard()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	c := rec.Result().Cookies()[0]
	assert.True(t, c.Secure)
	assert.False(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
}

func TestCSRF_DoubleSubmit(t *testing.T) {
	const token = "0123456789abcdef0123456789abcdef"
	h := newCSRFHandler(middleware.CSRF{Logger: logging.Discard()})

	for _, tc := range []struct {
		name   string
		cookie string
		header string
		want   int
	}{
		{"matching", token, token, http.StatusOK},
		{"missing header", token, "", http.StatusForbidden},
		{"missing cookie", "", token, http.StatusForbidden},
		{"one character off", token, token[:len(token)-1] + "0", http.StatusForbidden},
		{"length differs", token, token + "0", http.StatusForbidden},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set(middleware.CSRFHeaderName, tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), `"error":"Invalid CSRF token"`)
			}
		})
	}
}

func TestCSRF_SafeMethodsNeverNeedHeader(t *testing.T) {
	h := newCSRFHandler(middleware.CSRF{Logger: logging.Discard()})

	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req := httptest.NewRequest(m, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "abc"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, m)
	}
}

func TestCSRF_ExemptPaths(t *testing.T) {
	h := newCSRFHandler(middleware.CSRF{ExemptPaths: []string{"/auth/bootstrap"}, Logger: logging.Discard()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/bootstrap", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/bootstrap/other", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
