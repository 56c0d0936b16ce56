// Package redis provides the hot analysis cache and the shared request rate
// limiter on top of go-redis.
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

var (
	ErrClientClosed     = errors.New(errors.ErrCodeCacheError, "redis client is closed")
	ErrConnectionFailed = errors.New(errors.ErrCodeCacheError, "redis connection failed")
)

const connectTimeout = 5 * time.Second

// RedisConfig describes one Redis deployment. Addr is a single host:port, or
// a comma-separated seed list for Redis Cluster.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c *RedisConfig) addrs() []string {
	var out []string
	for _, a := range strings.Split(c.Addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Client wraps a go-redis client. Commands issued after Close fail with
// ErrClientClosed.
type Client struct {
	rdb    redis.UniversalClient
	logger logging.Logger
}

// NewClient connects and pings. Cluster mode is selected when Addr lists more
// than one node.
func NewClient(cfg *RedisConfig, log logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	addrs := cfg.addrs()
	if len(addrs) == 0 {
		return nil, errors.InvalidParam("redis address is required")
	}

	// DB is ignored by go-redis in cluster mode.
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  orDefault(cfg.DialTimeout, connectTimeout),
		ReadTimeout:  orDefault(cfg.ReadTimeout, 3*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 3*time.Second),
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		log.Warn("redis ping failed", logging.String("addr", cfg.Addr), logging.Err(err))
		return nil, ErrConnectionFailed
	}

	log.Info("redis connected", logging.Int("nodes", len(addrs)), logging.String("addr", cfg.Addr))
	return &Client{rdb: rdb, logger: log}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Ping checks connectivity. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	return translate(c.rdb.Ping(ctx).Err())
}

// Close releases the pool. Closing twice is a no-op.
func (c *Client) Close() error {
	err := c.rdb.Close()
	if err == redis.ErrClosed {
		return nil
	}
	if err != nil {
		c.logger.Error("failed to close redis client", logging.Err(err))
		return err
	}
	c.logger.Debug("redis client closed")
	return nil
}

// Universal exposes the go-redis client for commands the wrapper does not
// cover.
func (c *Client) Universal() redis.UniversalClient {
	return c.rdb
}

func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := c.rdb.Get(ctx, key)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := c.rdb.Set(ctx, key, value, expiration)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := c.rdb.Del(ctx, keys...)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

func (c *Client) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := c.rdb.Exists(ctx, keys...)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	cmd := c.rdb.Expire(ctx, key, expiration)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

func (c *Client) TTL(ctx context.Context, key string) *redis.DurationCmd {
	cmd := c.rdb.TTL(ctx, key)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

func (c *Client) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := c.rdb.Incr(ctx, key)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

func (c *Client) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := c.rdb.Scan(ctx, cursor, match, count)
	cmd.SetErr(translate(cmd.Err()))
	return cmd
}

// translate maps the pool-closed error onto ErrClientClosed and leaves
// everything else, redis.Nil included, untouched.
func translate(err error) error {
	if err == redis.ErrClosed {
		return ErrClientClosed
	}
	return err
}
