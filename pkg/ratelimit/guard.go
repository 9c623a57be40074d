package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tendant/simple-clients/pkg/errors"
)

// Guard composes the protection layers around an operation in a fixed
// order: distributed rate limit, then local rate limit, then bounded
// retry, then the operation itself. A request rejected by either
// limiter fails immediately with ErrCodeRateLimited and never reaches
// the retry loop, so being rate limited does not consume retry
// attempts.
type Guard struct {
	name        string
	distributed DistributedLimiter
	local       *LocalLimiter
	maxRetries  uint64
	retryBase   time.Duration
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithMaxRetries sets how many times a failed operation is retried.
func WithMaxRetries(n uint64) GuardOption {
	return func(g *Guard) {
		g.maxRetries = n
	}
}

// WithRetryBase sets the initial backoff interval between retries.
func WithRetryBase(d time.Duration) GuardOption {
	return func(g *Guard) {
		g.retryBase = d
	}
}

// NewGuard creates a named guard. The local limiter must not be more
// permissive than the distributed one; a local burst capacity above
// the distributed per-window limit would make the local check
// meaningless.
func NewGuard(name string, distributed DistributedLimiter, local *LocalLimiter, opts ...GuardOption) (*Guard, error) {
	if rl, ok := distributed.(*RedisLimiter); ok && local != nil {
		if int64(local.Capacity()) > rl.Max() {
			return nil, fmt.Errorf("local limit %d exceeds distributed limit %d for guard %s", local.Capacity(), rl.Max(), name)
		}
	}
	g := &Guard{
		name:        name,
		distributed: distributed,
		local:       local,
		maxRetries:  2,
		retryBase:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Allow runs the distributed check followed by the local check for the
// given key. If Redis is unreachable the distributed check is skipped
// with a warning rather than failing the request.
func (g *Guard) Allow(ctx context.Context, key string) error {
	if g.distributed != nil {
		res, err := g.distributed.Allow(ctx, key)
		if err != nil {
			slog.Warn("Distributed rate limit check failed, falling back to local limit",
				"guard", g.name, "key", key, "err", err)
		} else if !res.Allowed {
			return errors.RateLimited(g.name, key).
				WithDetail("retry_after", res.RetryAfter.String())
		}
	}
	if g.local != nil && !g.local.Allow(key) {
		return errors.RateLimited(g.name, key)
	}
	return nil
}

// Do guards op with both limiters and a bounded retry. Only transient
// failures are retried; errors that carry a client-fault code
// (validation, not found, conflict) are returned as-is.
func (g *Guard) Do(ctx context.Context, key string, op func(ctx context.Context) error) error {
	if err := g.Allow(ctx, key); err != nil {
		return err
	}

	operation := func() error {
		err := op(ctx)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retryBase
	notify := func(err error, next time.Duration) {
		slog.Warn("Operation failed, retrying", "guard", g.name, "key", key, "next", next, "err", err)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(bo, g.maxRetries), ctx), notify)
}

// retryable reports whether an error is worth retrying. Anything the
// caller did wrong will fail the same way again. Unclassified errors
// map to ErrCodeInternal and are treated as transient.
func retryable(err error) bool {
	switch errors.GetCode(err) {
	case errors.ErrCodeInternal, errors.ErrCodeUpstreamUnavailable:
		return true
	}
	return false
}
