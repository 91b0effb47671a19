package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/reawakened/rw-backend/internal/ratelimit"
	"github.com/reawakened/rw-backend/internal/utils"
)

// RateLimitPolicy configures one fixed-window limiter. Policies sharing a
// store are kept apart by Name.
type RateLimitPolicy struct {
	Name    string
	Window  time.Duration
	Max     int
	KeyFunc func(*http.Request) string
	Message string
}

type rateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// RateLimit counts requests per key and answers 429 once Max is exceeded
// inside the window. Store failures let the request through.
func RateLimit(store ratelimit.Store, p RateLimitPolicy, logger *slog.Logger) func(http.Handler) http.Handler {
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	if p.Max <= 0 {
		p.Max = 100
	}
	if p.KeyFunc == nil {
		p.KeyFunc = utils.ClientIP
	}
	if p.Message == "" {
		p.Message = "Too many requests, please try again later."
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := p.KeyFunc(r)

			win, err := store.Hit(r.Context(), p.Name+":"+key, p.Window)
			if err != nil {
				logger.Warn("rate limit store unavailable", "policy", p.Name, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			remaining := p.Max - win.Count
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(p.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(win.ResetAt.Unix(), 10))

			if win.Count > p.Max {
				retryAfter := int(math.Ceil(time.Until(win.ResetAt).Seconds()))
				if retryAfter < 0 {
					retryAfter = 0
				}
				logger.Warn("rate limit exceeded",
					"policy", p.Name,
					"key", key,
					"path", r.URL.Path,
					"count", win.Count,
				)
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				utils.WriteJSON(w, http.StatusTooManyRequests, rateLimitedResponse{
					Error:      p.Message,
					RetryAfter: retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
