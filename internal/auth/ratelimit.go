package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a key has used up its window.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// Limit is the number of actions allowed per Window. Zero disables limiting.
	Limit int
	// Window is the length of one fixed counting window.
	Window time.Duration
}

// RateLimiter counts actions per key in fixed Redis windows. It is shared
// by every API server instance using the same Redis.
type RateLimiter struct {
	client *redis.Client
	prefix string
	config RateLimitConfig
}

// NewRateLimiter creates a new RateLimiter with the given Redis client and configuration.
// Keys are stored under "ratelimit:<prefix>:".
func NewRateLimiter(client *redis.Client, prefix string, config RateLimitConfig) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	return &RateLimiter{
		client: client,
		prefix: prefix,
		config: config,
	}
}

// Allow records one action for key and returns ErrRateLimited once the
// window's limit is exceeded.
func (rl *RateLimiter) Allow(ctx context.Context, key string) error {
	if rl == nil || rl.client == nil || rl.config.Limit <= 0 {
		// No Redis client configured; skip rate limiting.
		return nil
	}

	k := rl.key(key, time.Now())
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, rl.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}

	if count := incr.Val(); count > int64(rl.config.Limit) {
		return fmt.Errorf("%w (%d/%d per %s)", ErrRateLimited, count, rl.config.Limit, rl.config.Window)
	}
	return nil
}

// key buckets now into the current window.
func (rl *RateLimiter) key(key string, now time.Time) string {
	bucket := now.UTC().Truncate(rl.config.Window).Unix()
	return fmt.Sprintf("ratelimit:%s:%s:%d", rl.prefix, key, bucket)
}
