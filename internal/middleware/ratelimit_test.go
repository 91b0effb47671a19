package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/reawakened/rw-backend/internal/logging"
	"github.com/reawakened/rw-backend/internal/middleware"
	"github.com/reawakened/rw-backend/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Duration) (ratelimit.Window, error) {
	return ratelimit.Window{}, errors.New("redis down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_WindowBehavior(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	policy := middleware.RateLimitPolicy{Name: "auth", Window: time.Minute, Max: 5}
	h := middleware.RateLimit(store, policy, logging.Discard())(okHandler())

	for i := 1; i <= 5; i++ {
		rec := hit(h, "10.0.0.1:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(5-i), rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}

	rec := hit(h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.Greater(t, body.RetryAfter, 0)
	assert.LessOrEqual(t, body.RetryAfter, 60)
	assert.Equal(t, strconv.Itoa(body.RetryAfter), rec.Header().Get("Retry-After"))

	// Another client is unaffected.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234").Code)
}

func TestRateLimit_ResetsAfterWindow(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	policy := middleware.RateLimitPolicy{Name: "short", Window: 50 * time.Millisecond, Max: 1}
	h := middleware.RateLimit(store, policy, logging.Discard())(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1").Code)

	time.Sleep(60 * time.Millisecond)

	rec := hit(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_PoliciesStack(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	general := middleware.RateLimit(store, middleware.RateLimitPolicy{Name: "auth", Window: time.Minute, Max: 5}, logging.Discard())
	strict := middleware.RateLimit(store, middleware.RateLimitPolicy{Name: "auth_strict", Window: 15 * time.Minute, Max: 2}, logging.Discard())
	h := general(strict(okHandler()))

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1").Code)
}

func TestRateLimit_CustomKeyAndMessage(t *testing.T) {
	store := ratelimit.NewMemoryStore()
	policy := middleware.RateLimitPolicy{
		Name:    "per-email",
		Window:  time.Minute,
		Max:     1,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Email") },
		Message: "Slow down",
	}
	h := middleware.RateLimit(store, policy, logging.Discard())(okHandler())

	send := func(email, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = addr
		req.Header.Set("X-Email", email)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("a@x.com", "1.1.1.1:1").Code)
	rec := send("a@x.com", "2.2.2.2:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Slow down")
	assert.Equal(t, http.StatusOK, send("b@x.com", "1.1.1.1:1").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := middleware.RateLimit(failingStore{}, middleware.RateLimitPolicy{Name: "api", Max: 1}, logging.Discard())(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	}
}
