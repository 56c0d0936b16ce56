package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/SafeScan/pkg/errors"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClient_Connects(t *testing.T) {
	client, _ := newTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Universal().Ping(context.Background()).Err())
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient(&RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, nil)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Nil(t, client)
}

func TestNewClient_RequiresAddr(t *testing.T) {
	_, err := NewClient(&RedisConfig{Addr: " , "}, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeBadRequest))
}

func TestRedisConfig_Addrs(t *testing.T) {
	cfg := &RedisConfig{Addr: "a:6379, b:6379,,c:6379 "}
	assert.Equal(t, []string{"a:6379", "b:6379", "c:6379"}, cfg.addrs())
}

func TestClient_Operations(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "fp:abc", "cached", 0).Err())
	val, err := client.Get(ctx, "fp:abc").Result()
	require.NoError(t, err)
	assert.Equal(t, "cached", val)

	deleted, err := client.Del(ctx, "fp:abc").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	exists, err := client.Exists(ctx, "fp:abc").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	n, err := client.Incr(ctx, "counter").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, client.Expire(ctx, "counter", time.Minute).Err())
	ttl, err := client.TTL(ctx, "counter").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("counter"))
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	err := client.Get(context.Background(), "foo").Err()
	assert.Equal(t, ErrClientClosed, err)
	assert.Equal(t, ErrClientClosed, client.Ping(context.Background()))
}
