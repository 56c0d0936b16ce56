package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/turtacn/SafeScan/internal/infrastructure/database/redis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// RateLimiter decides whether the request identified by key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, RateLimitInfo)
}

// RateLimitInfo contains current rate limit state for a given key.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// KeyFunc extracts the rate limit key. Defaults to ClientIPKeyFunc.
	KeyFunc func(r *http.Request) string
	// SkipPaths bypass rate limiting.
	SkipPaths []string
	Metrics   *prometheus.AppMetrics
	Logger    logging.Logger
}

// ClientIPKeyFunc keys on the client address without its port. It expects
// chi's RealIP middleware to have resolved proxy headers.
func ClientIPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// --- Token bucket ---

type bucket struct {
	tokens float64
	seen   time.Time
}

// TokenBucketLimiter is an in-process token bucket per key. Buckets idle for
// longer than the sweep interval are dropped on a later Allow.
type TokenBucketLimiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	buckets   map[string]*bucket
	sweep     time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewTokenBucketLimiter refills rate tokens per second up to burst. A zero
// sweep keeps every bucket.
func NewTokenBucketLimiter(rate float64, burst int, sweep time.Duration) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		sweep:   sweep,
		now:     time.Now,
	}
}

// NewPerMinuteLimiter allows perMinute requests per key, all of which may
// arrive in a burst.
func NewPerMinuteLimiter(perMinute int) *TokenBucketLimiter {
	return NewTokenBucketLimiter(float64(perMinute)/60, perMinute, 5*time.Minute)
}

// Allow takes one token from key's bucket.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (bool, RateLimitInfo) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepIdle(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.rate)
	b.seen = now

	info := RateLimitInfo{Limit: int(l.burst), ResetAt: now}
	if b.tokens < 1 {
		info.ResetAt = now.Add(time.Duration((1 - b.tokens) / l.rate * float64(time.Second)))
		return false, info
	}
	b.tokens--
	info.Remaining = int(b.tokens)
	return true, info
}

// sweepIdle runs at most once per sweep interval. l.mu must be held.
func (l *TokenBucketLimiter) sweepIdle(now time.Time) {
	if l.sweep <= 0 || now.Sub(l.lastSweep) < l.sweep {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.sweep)
	for key, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// BucketCount returns the number of tracked keys.
func (l *TokenBucketLimiter) BucketCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// --- Redis fixed window ---

// RedisLimiter shares per-key windows across replicas. Redis errors fail
// open so a cache outage does not take the API down.
type RedisLimiter struct {
	window *redis.WindowLimiter
	logger logging.Logger
}

// NewRedisLimiter adapts a Redis WindowLimiter.
func NewRedisLimiter(window *redis.WindowLimiter, logger logging.Logger) *RedisLimiter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RedisLimiter{window: window, logger: logger}
}

// Allow records one request for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, RateLimitInfo) {
	w, err := l.window.Allow(ctx, key)
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", logging.Err(err))
		return true, RateLimitInfo{Limit: w.Limit, Remaining: w.Remaining, ResetAt: w.ResetAt}
	}
	return w.Allowed, RateLimitInfo{Limit: w.Limit, Remaining: w.Remaining, ResetAt: w.ResetAt}
}

// --- Middleware ---

// RateLimit returns middleware that rejects requests over budget with 429
// and a Retry-After header.
func RateLimit(limiter RateLimiter, config RateLimitConfig) func(http.Handler) http.Handler {
	skipSet := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skipSet[p] = true
	}
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIPKeyFunc
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipSet[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			allowed, info := limiter.Allow(r.Context(), key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(time.Until(info.ResetAt).Seconds() + 0.999)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			if config.Metrics != nil {
				config.Metrics.RateLimitedTotal.WithLabelValues(r.URL.Path).Inc()
			}
			logger.Warn("rate limit exceeded",
				logging.String("key", key),
				logging.String("path", r.URL.Path))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    string(errors.ErrCodeTooManyRequests),
				"message": "Rate limit exceeded. Please retry later.",
			})
		})
	}
}
