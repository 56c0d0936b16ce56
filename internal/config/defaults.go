package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultMaxBodySize     = 8 << 20
	DefaultShutdownTimeout = 30 * time.Second

	DefaultAnalyzePerMinute = 30

	DefaultDBDriver        = "postgres"
	DefaultDBHost          = "localhost"
	DefaultDBPort          = 5432
	DefaultDBName          = "safescan"
	DefaultDBSSLMode       = "disable"
	DefaultDBMaxOpenConns  = 25
	DefaultDBMaxIdleConns  = 5
	DefaultConnMaxLifetime = 30 * time.Minute

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisKeyPrefix = "safescan:"

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaValidationTopic = "safescan.validation.logs"
	DefaultKafkaDeadLetterTopic = "safescan.validation.logs.dlq"
	DefaultKafkaGroupID         = "safescan-validation-writer"
	DefaultKafkaBatchTimeout    = 50 * time.Millisecond
	DefaultKafkaMaxRetries      = 3
	DefaultKafkaRetryBackoff    = 200 * time.Millisecond

	DefaultMinIOBucket = "safescan-content"

	DefaultReviewIndex = "safescan-reviews"

	DefaultExtractionModel = "gpt-4o-mini"
	DefaultAnalysisModel   = "gpt-4o"
	DefaultFetchModel      = "gpt-4o-search-preview"
	DefaultAIMaxTokens     = 4096
	DefaultAITimeout       = 90 * time.Second
	DefaultAIRetryAfter    = 60 * time.Second

	DefaultScraperUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	DefaultScraperTimeout       = 20 * time.Second
	DefaultScraperMaxBodyBytes  = 10 << 20
	DefaultScraperMinConfidence = 0.3

	DefaultSimilarityThreshold = 0.75

	DefaultHotTTL            = 24 * time.Hour
	DefaultReviewInsightsTTL = 7 * 24 * time.Hour
	DefaultBackgroundTimeout = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "safescan"
	DefaultMetricsPath      = "/metrics"
)

// registerViperDefaults seeds defaults that the zero-value rule in
// ApplyDefaults cannot express, such as booleans that default to true.
func registerViperDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("storage.mode", StorageModeOffline)
	v.SetDefault("validation.sink", ValidationSinkLog)
}

// ApplyDefaults fills zero-value fields with defaults. Values already set win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Auth.AnalyzePerMinute == 0 {
		cfg.Auth.AnalyzePerMinute = DefaultAnalyzePerMinute
	}

	// ── Storage / Database ────────────────────────────────────────────────────
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeOffline
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDBDriver
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultConnMaxLifetime
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.ValidationTopic == "" {
		cfg.Kafka.ValidationTopic = DefaultKafkaValidationTopic
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = DefaultKafkaDeadLetterTopic
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = DefaultKafkaRetryBackoff
	}

	// ── Object storage / search ───────────────────────────────────────────────
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.OpenSearch.ReviewIndex == "" {
		cfg.OpenSearch.ReviewIndex = DefaultReviewIndex
	}

	// ── AI ────────────────────────────────────────────────────────────────────
	if cfg.AI.ExtractionModel == "" {
		cfg.AI.ExtractionModel = DefaultExtractionModel
	}
	if cfg.AI.AnalysisModel == "" {
		cfg.AI.AnalysisModel = DefaultAnalysisModel
	}
	if cfg.AI.FetchModel == "" {
		cfg.AI.FetchModel = DefaultFetchModel
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = DefaultAIMaxTokens
	}
	if cfg.AI.RequestTimeout == 0 {
		cfg.AI.RequestTimeout = DefaultAITimeout
	}
	if cfg.AI.RetryAfter == 0 {
		cfg.AI.RetryAfter = DefaultAIRetryAfter
	}

	// ── Scraper / matcher ─────────────────────────────────────────────────────
	if cfg.Scraper.UserAgent == "" {
		cfg.Scraper.UserAgent = DefaultScraperUserAgent
	}
	if cfg.Scraper.Timeout == 0 {
		cfg.Scraper.Timeout = DefaultScraperTimeout
	}
	if cfg.Scraper.MaxBodyBytes == 0 {
		cfg.Scraper.MaxBodyBytes = DefaultScraperMaxBodyBytes
	}
	if cfg.Scraper.MinConfidence == 0 {
		cfg.Scraper.MinConfidence = DefaultScraperMinConfidence
	}
	if cfg.Matcher.SimilarityThreshold == 0 {
		cfg.Matcher.SimilarityThreshold = DefaultSimilarityThreshold
	}

	// ── Validation / cache ────────────────────────────────────────────────────
	if cfg.Validation.Sink == "" {
		cfg.Validation.Sink = ValidationSinkLog
	}
	if cfg.Cache.HotTTL == 0 {
		cfg.Cache.HotTTL = DefaultHotTTL
	}
	if cfg.Cache.ReviewInsightsTTL == 0 {
		cfg.Cache.ReviewInsightsTTL = DefaultReviewInsightsTTL
	}
	if cfg.Cache.BackgroundTimeout == 0 {
		cfg.Cache.BackgroundTimeout = DefaultBackgroundTimeout
	}

	// ── Log / metrics ─────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// NewDefaultConfig returns a Config with every default applied, suitable for
// offline CLI use and tests.
func NewDefaultConfig() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	return cfg
}
