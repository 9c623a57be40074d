package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the outcome of a distributed limiter check.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// DistributedLimiter is a cluster-wide rate limiter shared by all
// instances of the service.
type DistributedLimiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter implements a fixed-window distributed limiter on top of
// Redis (INCR + EXPIRE). All service instances sharing the same Redis
// see the same window, so the limit holds across the cluster.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

// NewRedisLimiter creates a Redis-backed fixed-window limiter
// max: Maximum number of requests allowed per key per window
// window: Length of the fixed window
func NewRedisLimiter(client *redis.Client, prefix string, max int64, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		max:    max,
		window: window,
	}
}

// Max returns the per-window limit.
func (l *RedisLimiter) Max() int64 {
	return l.max
}

// Allow atomically counts a hit for key in the current window and
// reports whether it is within the limit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to increment rate limit window: %w", err)
	}

	// Set expiry on the first hit of the window
	if incr.Val() == 1 {
		_ = l.client.Expire(ctx, redisKey, l.window).Err()
		ttl = l.client.TTL(ctx, redisKey)
	}

	hits := incr.Val()
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   hits <= l.max,
		Remaining: remaining,
	}
	if !res.Allowed {
		// Retry after the rest of the window
		res.RetryAfter = ttl.Val()
		if res.RetryAfter < 0 {
			res.RetryAfter = l.window
		}
	}
	return res, nil
}
