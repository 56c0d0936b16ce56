package kafka

import (
	"context"

	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const eventSource = "safescan-api"

// messagePublisher is satisfied by *Producer.
type messagePublisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// ValidationLogSink publishes audit records to Kafka. Records are keyed by
// product URL so one product's records stay ordered on one partition.
type ValidationLogSink struct {
	producer messagePublisher
	topic    string
}

var _ analysis.ValidationSink = (*ValidationLogSink)(nil)

// NewValidationLogSink publishes to topic through producer.
func NewValidationLogSink(producer messagePublisher, topic string) *ValidationLogSink {
	if topic == "" {
		topic = TopicValidationLog
	}
	return &ValidationLogSink{producer: producer, topic: topic}
}

// Append publishes one record.
func (s *ValidationLogSink) Append(ctx context.Context, record *analysis.ValidationRecord) error {
	if record == nil {
		return nil
	}
	env, err := Seal(EventValidationLogged, eventSource, record)
	if err != nil {
		return err
	}
	msg, err := env.Message(s.topic, []byte(record.ProductURL))
	if err != nil {
		return err
	}
	return s.producer.Publish(ctx, msg)
}

// NewValidationLogHandler decodes published audit records and appends them to
// store. Records that cannot be decoded are logged and skipped rather than
// retried; store errors are returned so the consumer retries them.
func NewValidationLogHandler(store analysis.ValidationSink, log logging.Logger) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		env, err := OpenEnvelope(msg)
		if err != nil {
			log.Warn("Skipping undecodable validation message",
				logging.Int64("offset", msg.Offset), logging.Err(err))
			return nil
		}
		if env.Type != EventValidationLogged {
			log.Warn("Skipping unexpected event type",
				logging.String("event_type", env.Type), logging.Int64("offset", msg.Offset))
			return nil
		}

		var record analysis.ValidationRecord
		if err := env.Decode(&record); err != nil {
			log.Warn("Skipping malformed validation record",
				logging.String("event_id", env.ID), logging.Err(err))
			return nil
		}

		if err := store.Append(ctx, &record); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to persist validation record").WithDetail(record.ID)
		}
		return nil
	}
}
