package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/turtacn/SafeScan/pkg/errors"
)

// Window is the state of one fixed rate-limit window after a request.
type Window struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// WindowLimiter counts requests per key in fixed windows shared by every
// replica using the same Redis.
type WindowLimiter struct {
	client *Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewWindowLimiter allows limit requests per window for each key.
func NewWindowLimiter(client *Client, limit int, window time.Duration) *WindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &WindowLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "safescan:ratelimit:",
		now:    time.Now,
	}
}

// Allow records one request for key.
func (l *WindowLimiter) Allow(ctx context.Context, key string) (Window, error) {
	now := l.now()
	idx := now.UnixNano() / int64(l.window)
	resetAt := time.Unix(0, (idx+1)*int64(l.window))
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, idx)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Window{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: resetAt},
			errors.Wrap(err, errors.ErrCodeCacheError, "rate limit counter unavailable")
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Window{Allowed: true, Limit: l.limit, Remaining: l.limit - 1, ResetAt: resetAt},
				errors.Wrap(err, errors.ErrCodeCacheError, "rate limit counter expiry failed")
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Window{
		Allowed:   int(count) <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
