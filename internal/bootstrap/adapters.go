package bootstrap

import (
	"context"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/config"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/redis"
	"github.com/turtacn/SafeScan/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/search/opensearch"
	"github.com/turtacn/SafeScan/internal/infrastructure/storage/minio"
	"github.com/turtacn/SafeScan/internal/intelligence/safety_agent"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// wireRedis returns the hot cache, or nil when Redis is disabled or down.
func (a *App) wireRedis(ctx context.Context) app.HotCache {
	if !a.Config.Redis.Enabled {
		return nil
	}
	client, err := OpenRedis(a.Config.Redis, a.Logger)
	if err != nil {
		a.Logger.Warn("redis unavailable, hot cache disabled", logging.Err(err))
		return nil
	}
	a.Redis = client
	a.onClose("redis", client.Close)
	a.addCheck("redis", client.Ping)

	cache := redis.NewRedisCache(client, a.Logger.Named("redis"), redis.WithPrefix(a.Config.Redis.KeyPrefix))
	a.Cache = redis.NewAnalysisCache(cache, a.Config.Cache.HotTTL, a.Logger.Named("redis"))
	return a.Cache
}

// OpenRedis connects with the redis section of the config.
func OpenRedis(cfg config.RedisConfig, logger logging.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.RedisConfig{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger.Named("redis"))
}

// wireArchive returns the raw-content archive, or nil when MinIO is off.
func (a *App) wireArchive(ctx context.Context) app.ContentArchive {
	if !a.Config.MinIO.Enabled {
		return nil
	}
	archive, err := OpenArchive(a.Config.MinIO, a.Logger)
	if err != nil {
		a.Logger.Warn("minio unavailable, content archive disabled", logging.Err(err))
		return nil
	}
	a.Archive = archive
	return archive
}

// OpenArchive connects to MinIO and returns the content archive over its bucket.
func OpenArchive(cfg config.MinIOConfig, logger logging.Logger) (*minio.ContentArchive, error) {
	client, err := minio.NewMinIOClient(&minio.MinIOConfig{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		UseSSL:          cfg.UseSSL,
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		RetentionDays:   cfg.RetentionDays,
	}, logger.Named("minio"))
	if err != nil {
		return nil, err
	}
	return minio.NewContentArchive(client, logger.Named("minio")), nil
}

// wireReviewIndex returns the review index, or nil when OpenSearch is off.
func (a *App) wireReviewIndex(ctx context.Context) app.ReviewIndex {
	cfg := a.Config.OpenSearch
	if !cfg.Enabled {
		return nil
	}
	log := a.Logger.Named("opensearch")
	client, err := opensearch.NewClient(opensearch.ClientConfig{
		Addresses:          cfg.Addresses,
		Username:           cfg.User,
		Password:           cfg.Password,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}, log)
	if err != nil {
		a.Logger.Warn("opensearch unavailable, review index disabled", logging.Err(err))
		return nil
	}
	a.onClose("opensearch", client.Close)
	a.addCheck("opensearch", client.Ping)

	index := opensearch.NewReviewIndex(
		opensearch.NewIndexer(client, opensearch.IndexerConfig{}, log),
		opensearch.NewSearcher(client, opensearch.SearcherConfig{}, log),
		cfg.ReviewIndex, log)
	if err := index.EnsureIndex(ctx); err != nil {
		a.Logger.Warn("failed to ensure review index", logging.String("index", cfg.ReviewIndex), logging.Err(err))
	}
	return index
}

// wireValidationSink picks where audit records go. The log sink is nil: the
// validator logs every record itself.
func (a *App) wireValidationSink(st *stores) (domain.ValidationSink, error) {
	switch a.Config.Validation.Sink {
	case config.ValidationSinkKafka:
		producer, err := kafka.NewProducer(ProducerConfig(a.Config.Kafka), a.Logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		a.onClose("kafka", producer.Close)
		return kafka.NewValidationLogSink(producer, a.Config.Kafka.ValidationTopic), nil
	case config.ValidationSinkPostgres:
		if st.validationRepo == nil {
			return nil, errors.New(errors.ErrCodeValidation, "postgres validation sink requires postgres storage")
		}
		return st.validationRepo, nil
	default:
		return nil, nil
	}
}

func kafkaSecurity(cfg config.KafkaConfig) kafka.Security {
	return kafka.Security{
		SASLMechanism: cfg.SASLMechanism,
		Username:      cfg.SASLUsername,
		Password:      cfg.SASLPassword,
		CACertPath:    cfg.TLSCertPath,
	}
}

// ProducerConfig maps the kafka section onto the producer settings.
func ProducerConfig(cfg config.KafkaConfig) kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      cfg.Brokers,
		Acks:         "all",
		MaxRetries:   cfg.MaxRetries,
		BatchTimeout: cfg.BatchTimeout,
		Security:     kafkaSecurity(cfg),
	}
}

// ConsumerConfig maps the kafka section onto the validation-topic consumer.
// observe may be nil.
func ConsumerConfig(cfg config.KafkaConfig, observe func(topic string, r kafka.Result)) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topics:   []string{cfg.ValidationTopic},
		Security: kafkaSecurity(cfg),
		Retry: kafka.RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			Backoff:         cfg.RetryBackoff,
			DeadLetterTopic: cfg.DeadLetterTopic,
		},
		Observer: observe,
	}
}

// wireAgent builds the AI agent, or returns nil when no API key is set. The
// pipeline then relies on database matching alone and URL-only requests fail
// with extraction exhausted.
func (a *App) wireAgent() *safety_agent.Agent {
	cfg := a.Config.AI
	log := a.Logger.Named("ai")
	chat, err := safety_agent.NewChatClient(safety_agent.ChatConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		RequestTimeout: cfg.RequestTimeout,
		RetryAfter:     cfg.RetryAfter,
	}, a.Metrics, log)
	if err != nil {
		a.Logger.Warn("AI service not configured", logging.Err(err))
		return nil
	}
	agent, err := safety_agent.NewAgent(chat, nil, safety_agent.Config{
		ExtractionModel:   cfg.ExtractionModel,
		AnalysisModel:     cfg.AnalysisModel,
		FetchModel:        cfg.FetchModel,
		MinPageConfidence: a.Config.Scraper.MinConfidence,
	}, log)
	if err != nil {
		a.Logger.Warn("AI agent unavailable", logging.Err(err))
		return nil
	}
	return agent
}
