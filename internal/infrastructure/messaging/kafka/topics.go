package kafka

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Default topic names.
const (
	TopicValidationLog           = "safescan.validation.logs"
	TopicValidationLogDeadLetter = "safescan.validation.logs.dlq"
)

const auditRetention = 30 * 24 * time.Hour

// TopicConfig describes a topic to create.
type TopicConfig struct {
	Name       string
	Partitions int
	Replicas   int
	Retention  time.Duration
}

func (c TopicConfig) toKafka() (kafka.TopicConfig, error) {
	if c.Name == "" || c.Partitions <= 0 || c.Replicas <= 0 {
		return kafka.TopicConfig{}, errors.InvalidParam("topic needs a name, partitions and replicas").WithDetail(c.Name)
	}
	kc := kafka.TopicConfig{Topic: c.Name, NumPartitions: c.Partitions, ReplicationFactor: c.Replicas}
	if c.Retention > 0 {
		kc.ConfigEntries = []kafka.ConfigEntry{{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(c.Retention.Milliseconds(), 10),
		}}
	}
	return kc, nil
}

// ValidationTopics returns the audit topic and, when named, its dead-letter
// topic. Single-replica settings suit a one-broker deployment; larger
// clusters create the topics themselves.
func ValidationTopics(topic, deadLetter string) []TopicConfig {
	topics := []TopicConfig{{Name: topic, Partitions: 3, Replicas: 1, Retention: auditRetention}}
	if deadLetter != "" {
		topics = append(topics, TopicConfig{Name: deadLetter, Partitions: 1, Replicas: 1, Retention: auditRetention})
	}
	return topics
}

// topicCreator is the slice of *kafka.Conn the manager uses.
type topicCreator interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	Close() error
}

// TopicManager creates topics through the cluster controller.
type TopicManager struct {
	conn   topicCreator
	logger logging.Logger
}

// NewTopicManager dials a seed broker, looks up the controller and keeps a
// connection to it. Topic creation must go to the controller.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.InvalidParam("kafka brokers are required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	seed, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to dial kafka").WithDetail(brokers[0])
	}
	defer seed.Close()

	controller, err := seed.Controller()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to find kafka controller")
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	conn, err := kafka.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to dial kafka controller").WithDetail(addr)
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

// EnsureTopics creates each topic in order. Topics that already exist are
// skipped; the first other failure stops the run.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, t := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		kc, err := t.toKafka()
		if err != nil {
			return err
		}
		err = m.conn.CreateTopics(kc)
		switch {
		case err == nil:
			m.logger.Info("topic created", logging.String("topic", t.Name), logging.Int("partitions", t.Partitions))
		case stderrors.Is(err, kafka.TopicAlreadyExists):
			m.logger.Debug("topic exists", logging.String("topic", t.Name))
		default:
			return errors.Wrap(err, errors.ErrCodeMessageQueue, "failed to create topic").WithDetail(t.Name)
		}
	}
	return nil
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
