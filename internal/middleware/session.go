package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/reawakened/rw-backend/internal/utils"
)

const SessionCookieName = "auth_session"

// SessionFetcher resolves a raw session token. It returns ok=false for
// unknown or expired tokens; err is reserved for storage failures.
type SessionFetcher interface {
	FindSession(ctx context.Context, token string) (utils.SessionData, bool, error)
}

// SessionMiddleware rejects requests without a valid auth_session cookie.
func SessionMiddleware(fetcher SessionFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				utils.WriteError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			session, ok, err := fetcher.FindSession(r.Context(), cookie.Value)
			if err != nil {
				slog.Default().Error("session lookup failed",
					"component", "session",
					"request_id", chimw.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"err", err,
				)
				utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if !ok {
				ClearSessionCookie(w)
				utils.WriteError(w, http.StatusUnauthorized, "Session expired")
				return
			}

			next.ServeHTTP(w, r.WithContext(utils.WithSession(r.Context(), session)))
		})
	}
}

// CookieOptions holds the environment-dependent cookie attributes.
type CookieOptions struct {
	Production bool
}

func (o CookieOptions) sameSite() http.SameSite {
	if o.Production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// SetSessionCookie issues the httpOnly session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   opts.Production,
		SameSite: opts.sameSite(),
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// RequireRole must run after SessionMiddleware.
func RequireRole(min utils.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := utils.GetSessionFromContext(r.Context())
			if !ok || session.UserID == "" {
				utils.WriteError(w, http.StatusUnauthorized, "Unauthorized: missing user ID in context")
				return
			}

			if !session.Role.AtLeast(min) {
				utils.WriteError(w, http.StatusForbidden, "Forbidden: "+string(min)+" access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
