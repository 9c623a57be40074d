package ratelimit

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	client := setupTestRedis(t)
	ctx := context.Background()

	t.Run("CountsWindowUpToMax", func(t *testing.T) {
		limiter := NewRedisLimiter(client, "test:count:", 3, time.Minute)

		for i := int64(1); i <= 3; i++ {
			res, err := limiter.Allow(ctx, "1:u-1")
			require.NoError(t, err)
			assert.True(t, res.Allowed, "hit %d should be allowed", i)
			assert.Equal(t, int64(3-i), res.Remaining)
		}

		res, err := limiter.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
		// The caller is told to come back after the rest of the window
		assert.Greater(t, res.RetryAfter, time.Duration(0))
		assert.LessOrEqual(t, res.RetryAfter, time.Minute)
	})

	t.Run("KeysAreIsolated", func(t *testing.T) {
		limiter := NewRedisLimiter(client, "test:keys:", 1, time.Minute)

		res, err := limiter.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		require.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)

		// A different tenant:principal pair has its own window
		res, err = limiter.Allow(ctx, "2:u-2")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("WindowIsSharedAcrossInstances", func(t *testing.T) {
		first := NewRedisLimiter(client, "test:shared:", 2, time.Minute)
		second := NewRedisLimiter(client, "test:shared:", 2, time.Minute)

		res, err := first.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		require.True(t, res.Allowed)

		res, err = second.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		require.True(t, res.Allowed)

		// Both instances consumed from the same window
		res, err = first.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	})

	t.Run("NewWindowResetsTheCount", func(t *testing.T) {
		limiter := NewRedisLimiter(client, "test:reset:", 1, time.Second)

		res, err := limiter.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		require.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		require.False(t, res.Allowed)

		// Wait out the current fixed window
		now := time.Now().UTC()
		time.Sleep(time.Until(now.Truncate(time.Second).Add(1100 * time.Millisecond)))

		res, err = limiter.Allow(ctx, "1:u-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})
}
