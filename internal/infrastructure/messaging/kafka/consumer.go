package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// Result is what became of one consumed message.
type Result string

const (
	ResultProcessed    Result = "processed"
	ResultDeadLettered Result = "dead_lettered"
	// ResultDropped means retries ran out and there was no dead-letter topic,
	// or publishing to it failed. The offset is committed either way.
	ResultDropped  Result = "dropped"
	ResultUnrouted Result = "unrouted"
)

// RetryConfig controls how a failing handler is retried. Zero values pick
// 3 retries starting at 1s and doubling up to 30s.
type RetryConfig struct {
	MaxRetries      int
	Backoff         time.Duration
	MaxBackoff      time.Duration
	DeadLetterTopic string
}

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.Backoff == 0 {
		r.Backoff = time.Second
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = 30 * time.Second
	}
	return r
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// StartFromLatest skips the backlog when the group has no committed
	// offset. The default replays from the earliest offset.
	StartFromLatest bool
	MaxWait         time.Duration
	Retry           RetryConfig
	Security        Security
	// Observer, when set, is told the result of every message.
	Observer func(topic string, r Result)
}

func (c ConsumerConfig) validate() error {
	switch {
	case len(c.Brokers) == 0:
		return errors.InvalidParam("kafka brokers are required")
	case c.GroupID == "":
		return errors.InvalidParam("consumer group id is required")
	case len(c.Topics) == 0:
		return errors.InvalidParam("at least one topic is required")
	case c.Retry.MaxRetries < 0:
		return errors.InvalidParam("consumer retries must not be negative")
	}
	return c.Security.validate()
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// publisher is the part of Producer the dead-letter path needs.
type publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
	Close() error
}

// Consumer reads one consumer group and dispatches each message to the
// handler subscribed to its topic. Offsets are committed after the handler
// settles, so delivery is at least once.
type Consumer struct {
	reader     messageReader
	deadLetter publisher
	retry      RetryConfig
	group      string
	observe    func(string, Result)
	logger     logging.Logger

	mu       sync.RWMutex
	handlers map[string]MessageHandler

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu sync.Mutex
	stats   map[Result]int64
}

func NewConsumer(cfg ConsumerConfig, logger logging.Logger) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 5 * time.Second
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	var err error
	if dialer.TLS, err = cfg.Security.tlsConfig(); err != nil {
		return nil, err
	}
	if dialer.SASLMechanism, err = cfg.Security.mechanism(); err != nil {
		return nil, err
	}

	start := kafka.FirstOffset
	if cfg.StartFromLatest {
		start = kafka.LastOffset
	}
	c := newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MaxWait:     cfg.MaxWait,
		StartOffset: start,
		Dialer:      dialer,
	}), cfg, logger)

	if cfg.Retry.DeadLetterTopic != "" {
		p, err := NewProducer(ProducerConfig{Brokers: cfg.Brokers, Acks: "all", Security: cfg.Security}, logger)
		if err != nil {
			_ = c.reader.Close()
			return nil, err
		}
		c.deadLetter = p
	}
	return c, nil
}

func newConsumer(r messageReader, cfg ConsumerConfig, logger logging.Logger) *Consumer {
	return &Consumer{
		reader:   r,
		retry:    cfg.Retry.withDefaults(),
		group:    cfg.GroupID,
		observe:  cfg.Observer,
		logger:   logger,
		handlers: make(map[string]MessageHandler),
		stats:    make(map[Result]int64),
	}
}

// Subscribe registers handler for topic, replacing any previous one.
func (c *Consumer) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("subscribed", logging.String("topic", topic))
}

// Start runs the consume loop in the background until ctx ends or Close is
// called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info("kafka consumer started", logging.String("group", c.group))
	return nil
}

// Stats returns how many messages ended in each Result so far.
func (c *Consumer) Stats() map[Result]int64 {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := make(map[Result]int64, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}

func (c *Consumer) record(topic string, r Result) {
	c.statsMu.Lock()
	c.stats[r]++
	c.statsMu.Unlock()
	if c.observe != nil {
		c.observe(topic, r)
	}
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logging.Err(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		msg := fromKafkaMessage(m)
		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("no handler for topic", logging.String("topic", m.Topic))
			c.record(m.Topic, ResultUnrouted)
		} else if err := c.handle(ctx, msg, handler); err != nil {
			// Cancelled mid-retry: leave the offset so the group redelivers.
			return
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", logging.Int64("offset", m.Offset), logging.Err(err))
		}
	}
}

// handle runs handler with exponential backoff and dead-letters the message
// once retries are exhausted. Only cancellation is returned.
func (c *Consumer) handle(ctx context.Context, msg *Message, handler MessageHandler) error {
	err := handler(ctx, msg)
	backoff := c.retry.Backoff
	for attempt := 0; err != nil && attempt < c.retry.MaxRetries; attempt++ {
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = min(backoff*2, c.retry.MaxBackoff)
		err = handler(ctx, msg)
	}
	if err == nil {
		c.record(msg.Topic, ResultProcessed)
		return nil
	}

	c.logger.Error("message failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("retries", c.retry.MaxRetries),
		logging.Err(err))
	c.record(msg.Topic, c.deadLetterMessage(ctx, msg, err))
	return nil
}

func (c *Consumer) deadLetterMessage(ctx context.Context, msg *Message, cause error) Result {
	if c.deadLetter == nil || c.retry.DeadLetterTopic == "" {
		return ResultDropped
	}
	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["original_topic"] = msg.Topic
	headers["error_message"] = cause.Error()

	err := c.deadLetter.Publish(ctx, &ProducerMessage{
		Topic:   c.retry.DeadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		c.logger.Error("dead-letter publish failed", logging.Err(err))
		return ResultDropped
	}
	return ResultDeadLettered
}

// Close stops the loop, waits for the in-flight message and closes the reader
// and dead-letter producer.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	c.cancel()
	c.wg.Wait()

	err := c.reader.Close()
	if c.deadLetter != nil {
		if dlErr := c.deadLetter.Close(); err == nil {
			err = dlErr
		}
	}
	stats := c.Stats()
	c.logger.Info("kafka consumer closed",
		logging.Int64("processed", stats[ResultProcessed]),
		logging.Int64("dead_lettered", stats[ResultDeadLettered]),
		logging.Int64("dropped", stats[ResultDropped]))
	return err
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Timestamp: m.Time,
		Headers:   make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
