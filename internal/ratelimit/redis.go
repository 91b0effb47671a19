package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps windows in Redis so every instance sees the same counts.
// Expiry is handled by Redis key TTLs, so no sweep is needed.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	k := s.prefix + key

	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit incr: %w", err)
	}

	// Fixed-window semantics: TTL is set only by the hit that opened the window.
	if count == 1 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return Window{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return Window{}, fmt.Errorf("rate limit ttl: %w", err)
	}
	if ttl < 0 {
		// A previous opener died between INCR and PEXPIRE.
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return Window{}, fmt.Errorf("rate limit expire: %w", err)
		}
		ttl = window
	}

	return Window{Count: int(count), ResetAt: s.now().Add(ttl)}, nil
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
