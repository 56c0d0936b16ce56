// Package bootstrap is the composition root. It turns a config.Config into
// running stores, adapters and application services, and owns their
// shutdown order.
package bootstrap

import (
	"context"
	"time"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/config"
	"github.com/turtacn/SafeScan/internal/domain/scoring"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/database/redis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SafeScan/internal/infrastructure/retrieval"
	"github.com/turtacn/SafeScan/internal/infrastructure/storage/minio"
	"github.com/turtacn/SafeScan/internal/interfaces/http/handlers"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// App holds everything one process needs to serve analyses.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Analysis app.Service
	Reviews  app.ReviewService
	Admin    app.AdminService

	KnowledgeBase substance.KnowledgeBaseStore
	Matcher       *substance.Matcher
	Calculator    *scoring.Calculator

	// Optional backends; nil when disabled.
	Cache   *redis.AnalysisCache
	Archive *minio.ContentArchive
	Redis   *redis.Client

	checks  []handlers.HealthChecker
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New builds an App from cfg. Backends that fail to connect are fatal, except
// optional ones (Redis, MinIO, OpenSearch), which are logged and skipped.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.InvalidParam("config is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	a := &App{Config: cfg, Logger: logger}

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger.Named("metrics"))
		if err != nil {
			return nil, err
		}
		a.Collector = collector
		a.Metrics = prometheus.NewAppMetrics(collector)
	}

	st, err := a.wireStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.KnowledgeBase = st.knowledgeBase

	hot := a.wireRedis(ctx)
	archive := a.wireArchive(ctx)
	index := a.wireReviewIndex(ctx)

	sink, err := a.wireValidationSink(st)
	if err != nil {
		a.Close()
		return nil, err
	}

	agent := a.wireAgent()

	extractor := retrieval.NewExtractor(logger.Named("retrieval"))
	scraper, err := retrieval.NewHTTPScraper(retrieval.ScraperConfig{
		UserAgent:    cfg.Scraper.UserAgent,
		Timeout:      cfg.Scraper.Timeout,
		MaxBodyBytes: cfg.Scraper.MaxBodyBytes,
	}, extractor, logger.Named("scraper"))
	if err != nil {
		a.Close()
		return nil, err
	}

	var metrics app.Metrics
	if a.Metrics != nil {
		metrics = a.Metrics
	}

	var (
		productExtractor app.ProductExtractor
		analyzer         app.SafetyAnalyzer
		reviewExtractor  app.ReviewExtractor
	)
	if agent != nil {
		productExtractor, analyzer, reviewExtractor = agent, agent, agent
	}

	controller := app.NewFallbackController(scraper, extractor, productExtractor, analyzer, logger,
		app.WithMinConfidence(cfg.Scraper.MinConfidence),
		app.WithRetryAfter(cfg.AI.RetryAfter),
	)

	a.Matcher = substance.NewMatcher(cfg.Matcher.SimilarityThreshold)
	a.Calculator = scoring.NewCalculator(logger.Named("scoring"))

	a.Analysis = app.NewService(app.Deps{
		Cache:             app.NewCacheGateway(hot, st.analyses, logger, metrics),
		KnowledgeBase:     st.knowledgeBase,
		Controller:        controller,
		Matcher:           a.Matcher,
		Analyzer:          analyzer,
		Validator:         app.NewValidator(sink, logger, metrics, cfg.Validation.StrictMode),
		Calculator:        a.Calculator,
		Content:           extractor,
		Archive:           archive,
		Reviews:           index,
		SearchLog:         st.searchLog,
		Metrics:           metrics,
		Logger:            logger.Named("analysis"),
		BackgroundTimeout: cfg.Cache.BackgroundTimeout,
	})
	a.Reviews = app.NewReviewService(app.ReviewDeps{
		Analyses:    st.analyses,
		Insights:    st.insights,
		Scraper:     scraper,
		Extractor:   reviewExtractor,
		Index:       index,
		Logger:      logger,
		InsightsTTL: cfg.Cache.ReviewInsightsTTL,
	})
	a.Admin = app.NewAdminService(st.validationLogs)

	logger.Info("application wired",
		logging.String("storage_mode", cfg.Storage.Mode),
		logging.String("validation_sink", cfg.Validation.Sink),
		logging.Bool("strict_validation", cfg.Validation.StrictMode),
		logging.Bool("ai_configured", agent != nil),
		logging.Bool("hot_cache", hot != nil),
		logging.Bool("archive", archive != nil),
		logging.Bool("review_index", index != nil),
	)
	return a, nil
}

// HealthChecks returns the readiness probes of the connected backends.
func (a *App) HealthChecks() []handlers.HealthChecker {
	return a.checks
}

// Close waits for background work and releases backends in reverse order.
func (a *App) Close() error {
	if a.Analysis != nil {
		done := make(chan struct{})
		go func() {
			a.Analysis.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(a.Config.Cache.BackgroundTimeout + 5*time.Second):
			a.Logger.Warn("background tasks still running at shutdown")
		}
	}

	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Error("failed to close backend", logging.String("backend", c.name), logging.Err(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) addCheck(name string, fn func(ctx context.Context) error) {
	a.checks = append(a.checks, handlers.NewCheck(name, fn))
}
