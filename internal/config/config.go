// Package config defines SafeScan's configuration tree. No I/O lives in this
// file, only data types and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
)

// Storage modes select the KnowledgeBaseStore / AnalysisStore implementations
// wired at startup.
const (
	StorageModeOffline  = "offline"
	StorageModePostgres = "postgres"
)

// Validation sinks select where substance-validation records go.
const (
	ValidationSinkLog      = "log"
	ValidationSinkKafka    = "kafka"
	ValidationSinkPostgres = "postgres"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig controls API-key auth and per-client rate limiting on /api/v1.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
	// AnalyzePerMinute is the per-IP budget for POST /analyze. Zero disables it.
	AnalyzePerMinute int `mapstructure:"analyze_per_minute"`
}

// StorageConfig picks durable or offline stores.
type StorageConfig struct {
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	// Driver is the database/sql driver name: "postgres" (lib/pq) or "pgx".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// MigrationPath is a migrate source URL such as file://migrations. Empty
	// uses the migrations compiled into the binary.
	MigrationPath   string        `mapstructure:"migration_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds the hot analysis cache parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds the validation-log topic parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ValidationTopic string        `mapstructure:"validation_topic"`
	DeadLetterTopic string        `mapstructure:"dead_letter_topic"`
	GroupID         string        `mapstructure:"group_id"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	SASLMechanism   string        `mapstructure:"sasl_mechanism"`
	SASLUsername    string        `mapstructure:"sasl_username"`
	SASLPassword    string        `mapstructure:"sasl_password"`
	TLSCertPath     string        `mapstructure:"tls_cert_path"`
}

// MinIOConfig holds the raw-content archive parameters.
type MinIOConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// OpenSearchConfig holds the review index parameters.
type OpenSearchConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	ReviewIndex        string   `mapstructure:"review_index"`
}

// AIConfig holds OpenAI-compatible model parameters.
type AIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	ExtractionModel string        `mapstructure:"extraction_model"`
	AnalysisModel   string        `mapstructure:"analysis_model"`
	// FetchModel must be able to browse the web; it serves the URL-only path.
	FetchModel     string        `mapstructure:"fetch_model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RetryAfter is reported to clients when the provider does not send one.
	RetryAfter time.Duration `mapstructure:"retry_after"`
}

// ScraperConfig holds product page retrieval parameters.
type ScraperConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	MinConfidence float64       `mapstructure:"min_confidence"`
}

// MatcherConfig holds knowledge-base matching parameters.
type MatcherConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// ValidationConfig controls the substance validator.
type ValidationConfig struct {
	// StrictMode filters and reclassifies invalid detections. Off means log-only.
	StrictMode bool   `mapstructure:"strict_mode"`
	Sink       string `mapstructure:"sink"`
}

// CacheConfig controls analysis and review-insight freshness.
type CacheConfig struct {
	HotTTL            time.Duration `mapstructure:"hot_ttl"`
	ReviewInsightsTTL time.Duration `mapstructure:"review_insights_ttl"`
	BackgroundTimeout time.Duration `mapstructure:"background_timeout"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration tree.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	OpenSearch OpenSearchConfig  `mapstructure:"opensearch"`
	AI         AIConfig          `mapstructure:"ai"`
	Scraper    ScraperConfig     `mapstructure:"scraper"`
	Matcher    MatcherConfig     `mapstructure:"matcher"`
	Validation ValidationConfig  `mapstructure:"validation"`
	Cache      CacheConfig       `mapstructure:"cache"`
	Log        logging.LogConfig `mapstructure:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// Validate checks cross-field consistency. It runs after ApplyDefaults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch c.Storage.Mode {
	case StorageModeOffline:
	case StorageModePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required when storage.mode is %q", StorageModePostgres)
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("database.db_name is required when storage.mode is %q", StorageModePostgres)
		}
		if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
			return fmt.Errorf("database.driver must be postgres or pgx, got %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("storage.mode must be %q or %q, got %q", StorageModeOffline, StorageModePostgres, c.Storage.Mode)
	}

	if c.Matcher.SimilarityThreshold <= 0 || c.Matcher.SimilarityThreshold > 1 {
		return fmt.Errorf("matcher.similarity_threshold must be in (0,1], got %v", c.Matcher.SimilarityThreshold)
	}
	if c.Scraper.MinConfidence < 0 || c.Scraper.MinConfidence > 1 {
		return fmt.Errorf("scraper.min_confidence must be in [0,1], got %v", c.Scraper.MinConfidence)
	}

	switch c.Validation.Sink {
	case ValidationSinkLog:
	case ValidationSinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when validation.sink is %q", ValidationSinkKafka)
		}
	case ValidationSinkPostgres:
		if c.Storage.Mode != StorageModePostgres {
			return fmt.Errorf("validation.sink %q requires storage.mode %q", ValidationSinkPostgres, StorageModePostgres)
		}
	default:
		return fmt.Errorf("validation.sink must be log, kafka or postgres, got %q", c.Validation.Sink)
	}

	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must not be empty when auth is enabled")
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("minio.endpoint and minio.bucket are required when minio is enabled")
	}
	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("opensearch.addresses is required when opensearch is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

// DSN builds a PostgreSQL connection string for either driver.
func (d DatabaseConfig) DSN() string {
	parts := []string{
		fmt.Sprintf("host=%s", d.Host),
		fmt.Sprintf("port=%d", d.Port),
		fmt.Sprintf("dbname=%s", d.DBName),
		fmt.Sprintf("sslmode=%s", d.SSLMode),
	}
	if d.User != "" {
		parts = append(parts, fmt.Sprintf("user=%s", d.User))
	}
	if d.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", d.Password))
	}
	return strings.Join(parts, " ")
}

// MigrationURL builds the postgres:// URL golang-migrate expects.
func (d DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}
