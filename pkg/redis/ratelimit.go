package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "ratelimit:"

// FixedWindowLimiter counts hits per key in fixed windows using INCR + EXPIRE.
type FixedWindowLimiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewFixedWindowLimiter allows limit hits per key per window.
func NewFixedWindowLimiter(rdb redis.Cmdable, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{rdb: rdb, limit: int64(limit), window: window, now: time.Now}
}

// Allow records a hit for key and reports whether it is within the limit.
// The returned duration is the time until the current window resets.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}
	now := l.now()
	bucket := now.Truncate(l.window)
	reset := bucket.Add(l.window).Sub(now)
	k := fmt.Sprintf("%s%s:%d", rateLimitPrefix, key, bucket.Unix())

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.window+time.Second)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	return incr.Val() <= l.limit, reset, nil
}
