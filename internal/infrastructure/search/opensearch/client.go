// Package opensearch indexes individual customer reviews and serves keyword
// search and rating summaries over them.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

var (
	ErrInvalidConfig    = errors.New(errors.ErrCodeValidation, "opensearch addresses are required")
	ErrConnectionFailed = errors.New(errors.ErrCodeSearch, "opensearch unreachable")
)

type ClientConfig struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
	MaxRetries         int
	RetryBackoff       time.Duration
	RequestTimeout     time.Duration
	// HealthInterval is how often the background probe pings the cluster.
	HealthInterval time.Duration
}

func (c ClientConfig) validate() error {
	if len(c.Addresses) == 0 {
		return ErrInvalidConfig
	}
	if c.MaxRetries < 0 || c.RequestTimeout < 0 || c.RetryBackoff < 0 {
		return errors.New(errors.ErrCodeValidation, "opensearch retry and timeout settings must not be negative")
	}
	return nil
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = 30 * time.Second
	}
	return c
}

// Client wraps the OpenSearch client and remembers whether the last ping
// succeeded. The review index keeps working while unhealthy; requests simply
// fail and the analysis pipeline degrades to no review search.
type Client struct {
	client    *opensearch.Client
	logger    logging.Logger
	healthy   atomic.Bool
	stop      context.CancelFunc
	closeOnce sync.Once
}

// NewClient pings the cluster once and starts the background probe.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: cfg.RequestTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	osc, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    cfg.MaxRetries,
		RetryOnStatus: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		RetryBackoff:  func(int) time.Duration { return cfg.RetryBackoff },
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearch, "failed to create opensearch client")
	}

	ctx, stop := context.WithCancel(context.Background())
	c := &Client{client: osc, logger: logger, stop: stop}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		stop()
		return nil, ErrConnectionFailed.WithCause(err)
	}

	go c.probe(ctx, cfg.HealthInterval)
	logger.Info("opensearch connected", logging.Strings("addresses", cfg.Addresses))
	return c, nil
}

// Ping checks the cluster and records the outcome for IsHealthy.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err == nil {
		defer resp.Body.Close()
		if resp.IsError() {
			err = errors.New(errors.ErrCodeSearch, "opensearch ping failed").WithDetail("status=" + strconv.Itoa(resp.StatusCode))
		}
	}
	c.healthy.Store(err == nil)
	return err
}

func (c *Client) IsHealthy() bool { return c.healthy.Load() }

func (c *Client) GetClient() *opensearch.Client { return c.client }

// Close stops the background probe.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.stop()
		c.logger.Debug("opensearch client closed")
	})
	return nil
}

// probe logs transitions only, so a flapping cluster yields one line per
// change instead of one per tick.
func (c *Client) probe(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			was := c.IsHealthy()
			err := c.Ping(ctx)
			switch now := c.IsHealthy(); {
			case was && !now:
				c.logger.Error("opensearch became unhealthy", logging.Err(err))
			case !was && now:
				c.logger.Info("opensearch recovered")
			}
		}
	}
}
