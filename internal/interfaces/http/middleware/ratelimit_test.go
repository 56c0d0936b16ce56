package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SafeScan/internal/infrastructure/database/redis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
)

func TestTokenBucketLimiter_BurstThenRefill(t *testing.T) {
	l := NewTokenBucketLimiter(1, 2, 0)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, info := l.Allow(ctx, "ip:a")
	assert.True(t, ok)
	assert.Equal(t, 1, info.Remaining)
	ok, _ = l.Allow(ctx, "ip:a")
	assert.True(t, ok)

	ok, info = l.Allow(ctx, "ip:a")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, now.Add(time.Second), info.ResetAt)

	ok, _ = l.Allow(ctx, "ip:b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "ip:a")
	assert.True(t, ok)
}

func TestTokenBucketLimiter_SweepsIdleKeys(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1, time.Hour)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Allow(ctx, "ip:a")
	l.Allow(ctx, "ip:b")
	require.Equal(t, 2, l.BucketCount())

	now = now.Add(30 * time.Minute)
	l.Allow(ctx, "ip:b")
	assert.Equal(t, 2, l.BucketCount(), "no sweep before the interval")

	now = now.Add(45 * time.Minute)
	l.Allow(ctx, "ip:c")
	assert.Equal(t, 2, l.BucketCount(), "ip:a is idle past the interval")
}

func TestRateLimit_Middleware(t *testing.T) {
	limiter := NewPerMinuteLimiter(2)
	h := RateLimit(limiter, RateLimitConfig{SkipPaths: []string{"/healthz"}})(okHandler())

	send := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("/api/v1/analyze", "203.0.113.7:5000").Code)
	rec := send("/api/v1/analyze", "203.0.113.7:5001")
	assert.Equal(t, http.StatusOK, rec.Code, "port is not part of the key")
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	rec = send("/api/v1/analyze", "203.0.113.7:5002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.LessOrEqual(t, retry, 30)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")

	assert.Equal(t, http.StatusOK, send("/api/v1/analyze", "198.51.100.1:5000").Code)
	assert.Equal(t, http.StatusOK, send("/healthz", "203.0.113.7:5003").Code)
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(redis.NewWindowLimiter(client, 1, time.Minute), nil)
	ok, info := l.Allow(context.Background(), "ip:a")
	assert.True(t, ok)
	assert.Equal(t, 1, info.Limit)
	ok, _ = l.Allow(context.Background(), "ip:a")
	assert.False(t, ok)
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(&redis.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	mr.Close()
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(redis.NewWindowLimiter(client, 1, time.Minute), nil)
	ok, _ := l.Allow(context.Background(), "ip:a")
	assert.True(t, ok)
}

func TestClientIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "ip:2001:db8::1", ClientIPKeyFunc(req))
	req.RemoteAddr = "10.0.0.1"
	assert.Equal(t, "ip:10.0.0.1", ClientIPKeyFunc(req))
}
