// Package ratelimit holds the fixed-window counters behind the HTTP rate
// limiter. MemoryStore is process-local; RedisStore is shared between
// instances.
package ratelimit

import (
	"context"
	"time"
)

// Window is the state of one key's counter after a hit.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Store counts hits per key in fixed windows. The first hit for a key, or the
// first hit after ResetAt, opens a fresh window of the given length.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}
