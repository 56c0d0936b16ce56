package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/SafeScan/internal/interfaces/http/handlers"
	"github.com/turtacn/SafeScan/internal/interfaces/http/middleware"
)

// DefaultMetricsPath is where the Prometheus collector is mounted.
const DefaultMetricsPath = "/metrics"

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil members are skipped.
type RouterConfig struct {
	AnalysisHandler *handlers.AnalysisHandler
	ReviewHandler   *handlers.ReviewHandler
	AdminHandler    *handlers.AdminHandler
	HealthHandler   *handlers.HealthHandler

	AuthMiddleware *middleware.AuthMiddleware
	CORS           func(http.Handler) http.Handler
	// AnalyzeRateLimit guards POST /api/v1/analyze only.
	AnalyzeRateLimit func(http.Handler) http.Handler

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
}

// NewRouter builds the HTTP route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.CORS != nil {
		r.Use(cfg.CORS)
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/healthz/detail", cfg.HealthHandler.Detailed)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = DefaultMetricsPath
		}
		r.Handle(path, cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.Handler)
		}
		registerAnalysisRoutes(api, cfg.AnalysisHandler, cfg.AnalyzeRateLimit)
		registerReviewRoutes(api, cfg.ReviewHandler)
		registerAdminRoutes(api, cfg.AdminHandler)
	})

	return r
}

func registerAnalysisRoutes(r chi.Router, h *handlers.AnalysisHandler, limit func(http.Handler) http.Handler) {
	if h == nil {
		return
	}
	r.Route("/analyze", func(ar chi.Router) {
		if limit != nil {
			ar.With(limit).Post("/", h.Analyze)
		} else {
			ar.Post("/", h.Analyze)
		}
		ar.Get("/{fingerprint}/reviews", h.ReviewInsights)
	})
}

func registerReviewRoutes(r chi.Router, h *handlers.ReviewHandler) {
	if h == nil {
		return
	}
	r.Route("/reviews", func(rr chi.Router) {
		rr.Post("/search", h.Search)
		rr.Get("/{fingerprint}/summary", h.Summary)
	})
}

func registerAdminRoutes(r chi.Router, h *handlers.AdminHandler) {
	if h == nil {
		return
	}
	r.Route("/admin", func(ad chi.Router) {
		ad.Get("/validation-logs", h.ValidationLogs)
		ad.Get("/validation-stats", h.ValidationStats)
		ad.Get("/flagged-substances", h.FlaggedSubstances)
	})
}
