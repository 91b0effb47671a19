package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/reawakened/rw-backend/internal/utils"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenBytes = 32
	csrfTokenTTL   = 24 * time.Hour
)

type csrfContextKey struct{}

// CSRF implements the double-submit cookie check. The cookie is readable by
// client JS, which echoes it in the X-CSRF-Token header on unsafe methods.
type CSRF struct {
	Production  bool
	ExemptPaths []string
	Logger      *slog.Logger
}

// CSRFTokenFromContext returns the token resolved by SetToken.
func CSRFTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(csrfContextKey{}).(string)
	return s
}

// Protect runs SetToken then Validate.
func (c CSRF) Protect(next http.Handler) http.Handler {
	return c.SetToken(c.Validate(next))
}

// SetToken issues a csrf_token cookie when the browser has none and stores
// the resolved value in the request context.
func (c CSRF) SetToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if cookie, err := r.Cookie(CSRFCookieName); err == nil {
			token = cookie.Value
		}

		if token == "" {
			var err error
			token, err = newCSRFToken()
			if err != nil {
				c.logger().Error("failed to generate csrf token", "err", err)
				utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			sameSite := http.SameSiteLaxMode
			if c.Production {
				sameSite = http.SameSiteStrictMode
			}
			http.SetCookie(w, &http.Cookie{
				Name:     CSRFCookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(csrfTokenTTL.Seconds()),
				Expires:  time.Now().Add(csrfTokenTTL),
				HttpOnly: false,
				Secure:   c.Production,
				SameSite: sameSite,
			})
		}

		ctx := context.WithValue(r.Context(), csrfContextKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClearCSRFCookie expires the csrf_token cookie; the next safe request
// mints a new one.
func ClearCSRFCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   CSRFCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// Validate rejects unsafe requests whose cookie and header do not match.
func (c CSRF) Validate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if c.isExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookieToken := ""
		if cookie, err := r.Cookie(CSRFCookieName); err == nil {
			cookieToken = cookie.Value
		}
		headerToken := r.Header.Get(CSRFHeaderName)

		if cookieToken == "" || headerToken == "" || !tokensEqual(cookieToken, headerToken) {
			c.logger().Warn("csrf token mismatch",
				"path", r.URL.Path,
				"method", r.Method,
				"has_cookie", cookieToken != "",
				"has_header", headerToken != "",
			)
			utils.WriteErrorDetails(w, http.StatusForbidden, "Invalid CSRF token",
				"Missing or mismatched CSRF token. Fetch /auth/csrf and send it in the "+CSRFHeaderName+" header.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c CSRF) isExempt(path string) bool {
	for _, p := range c.ExemptPaths {
		if p == path {
			return true
		}
	}
	return false
}

func (c CSRF) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
