// Command worker consumes validation records from Kafka and persists them to
// PostgreSQL. The API server publishes to the topic when validation.sink is
// "kafka"; records that keep failing go to the dead-letter topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/SafeScan/internal/bootstrap"
	"github.com/turtacn/SafeScan/internal/config"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/SafeScan/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const (
	defaultHealthAddr = ":8081"
	shutdownTimeout   = 10 * time.Second
	topicSetupTimeout = 15 * time.Second
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: SAFESCAN_* environment only)")
	healthAddr := flag.String("health-addr", defaultHealthAddr, "listen address of the health and metrics endpoints")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *healthAddr, logger); err != nil {
		logger.Error("worker exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, healthAddr string, logger logging.Logger) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.InvalidParam("kafka.brokers must be configured for the worker")
	}
	if cfg.Storage.Mode != config.StorageModePostgres {
		return errors.InvalidParam("the worker persists validation records and needs storage.mode postgres")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := bootstrap.OpenPostgres(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	ensureTopics(ctx, cfg.Kafka, logger)

	var collector prometheus.MetricsCollector
	var observe func(string, kafka.Result)
	if cfg.Metrics.Enabled {
		collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger.Named("metrics"))
		if err != nil {
			return err
		}
		metrics := prometheus.NewAppMetrics(collector)
		observe = func(topic string, r kafka.Result) {
			prometheus.RecordMessage(metrics, topic, string(r))
		}
	}

	consumer, err := kafka.NewConsumer(bootstrap.ConsumerConfig(cfg.Kafka, observe), logger.Named("kafka"))
	if err != nil {
		return err
	}
	repo := repositories.NewValidationLogRepo(conn, logger.Named("validation"))
	consumer.Subscribe(cfg.Kafka.ValidationTopic, kafka.NewValidationLogHandler(repo, logger.Named("validation")))

	srv := healthServer(healthAddr, cfg.Metrics.Path, collector, conn.HealthCheck)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", logging.Err(err))
			stop()
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		consumer.Close()
		return err
	}
	logger.Info("SafeScan worker started",
		logging.String("version", version),
		logging.String("topic", cfg.Kafka.ValidationTopic),
		logging.String("group", cfg.Kafka.GroupID),
		logging.String("health_addr", healthAddr),
	)

	<-ctx.Done()
	logger.Info("shutting down worker")

	if err := consumer.Close(); err != nil {
		logger.Error("consumer close failed", logging.Err(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown failed", logging.Err(err))
	}
	logger.Info("worker stopped")
	return nil
}

// ensureTopics creates the validation and dead-letter topics. Brokers that
// auto-create topics or deny admin calls are not fatal.
func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger.Named("kafka"))
	if err != nil {
		logger.Warn("topic manager unavailable", logging.Err(err))
		return
	}
	defer tm.Close()

	ctx, cancel := context.WithTimeout(ctx, topicSetupTimeout)
	defer cancel()
	if err := tm.EnsureTopics(ctx, kafka.ValidationTopics(cfg.ValidationTopic, cfg.DeadLetterTopic)); err != nil {
		logger.Warn("could not ensure topics", logging.Err(err))
	}
}

// healthServer exposes liveness, readiness against PostgreSQL and, when
// collector is set, Prometheus metrics.
func healthServer(addr, metricsPath string, collector prometheus.MetricsCollector, ready func(context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			http.Error(w, "postgres: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	if collector != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		mux.Handle(metricsPath, collector.Handler())
	}

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
