package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeMessageQueue, "producer closed")

var (
	acksByName = map[string]kafka.RequiredAcks{
		"none": kafka.RequireNone,
		"one":  kafka.RequireOne,
		"all":  kafka.RequireAll,
	}
	compressionByName = map[string]kafka.Compression{
		"gzip":   kafka.Gzip,
		"snappy": kafka.Snappy,
		"lz4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
	}
)

type ProducerConfig struct {
	Brokers []string
	// Acks is none, one or all. Empty means one.
	Acks            string
	MaxRetries      int
	BatchTimeout    time.Duration
	MaxMessageBytes int
	// Compression is gzip, snappy, lz4, zstd or empty for none.
	Compression  string
	WriteTimeout time.Duration
	Security     Security
}

func (c ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return errors.InvalidParam("kafka brokers are required")
	}
	if c.MaxRetries < 0 {
		return errors.InvalidParam("producer retries must not be negative")
	}
	if _, ok := acksByName[c.Acks]; c.Acks != "" && !ok {
		return errors.InvalidParam("unknown acks setting").WithDetail(c.Acks)
	}
	if _, ok := compressionByName[c.Compression]; c.Compression != "" && !ok {
		return errors.InvalidParam("unknown compression codec").WithDetail(c.Compression)
	}
	return c.Security.validate()
}

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes through a hash balancer, so records sharing a key land
// on the same partition and keep their order.
type Producer struct {
	writer   messageWriter
	maxBytes int
	logger   logging.Logger
	closed   atomic.Bool
	sent     atomic.Int64
	failed   atomic.Int64
}

// NewProducer builds the writer. No connection is made until the first
// Publish.
func NewProducer(cfg ProducerConfig, logger logging.Logger) (*Producer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchTimeout == 0 {
		// Audit records trickle in; don't hold them for kafka-go's 1s default.
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 1 << 20
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	acks := kafka.RequireOne
	if cfg.Acks != "" {
		acks = acksByName[cfg.Acks]
	}

	transport := &kafka.Transport{DialTimeout: 10 * time.Second}
	var err error
	if transport.TLS, err = cfg.Security.tlsConfig(); err != nil {
		return nil, err
	}
	if transport.SASL, err = cfg.Security.mechanism(); err != nil {
		return nil, err
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			MaxAttempts:  cfg.MaxRetries + 1,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: acks,
			Compression:  compressionByName[cfg.Compression],
			Transport:    transport,
		},
		maxBytes: cfg.MaxMessageBytes,
		logger:   logger,
	}, nil
}

// Publish writes one message and waits for the configured acks.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	switch {
	case msg.Topic == "":
		return errors.InvalidParam("message topic is required")
	case len(msg.Value) == 0:
		return errors.InvalidParam("message value is required")
	case len(msg.Value) > p.maxBytes:
		return errors.InvalidParam("message exceeds the size limit").WithDetail(msg.Topic)
	}

	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeMessageQueue, "publish failed").WithDetail(msg.Topic)
	}
	p.sent.Add(1)
	return nil
}

// Close flushes pending writes. Later calls are no-ops.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed",
		logging.Int64("sent", p.sent.Load()),
		logging.Int64("failed", p.failed.Load()))
	return err
}

func toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}
