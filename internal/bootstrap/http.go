package bootstrap

import (
	"net/http"
	"time"

	"github.com/turtacn/SafeScan/internal/infrastructure/database/redis"
	transport "github.com/turtacn/SafeScan/internal/interfaces/http"
	"github.com/turtacn/SafeScan/internal/interfaces/http/handlers"
	"github.com/turtacn/SafeScan/internal/interfaces/http/middleware"
)

// Handler builds the HTTP route tree over the wired services. version is
// reported by the health endpoints.
func (a *App) Handler(version string) http.Handler {
	cfg := a.Config
	log := a.Logger.Named("http")

	rc := transport.RouterConfig{
		AnalysisHandler:  handlers.NewAnalysisHandler(a.Analysis, a.Reviews, cfg.Server.MaxBodySize, log),
		ReviewHandler:    handlers.NewReviewHandler(a.Reviews, cfg.Server.MaxBodySize, log),
		AdminHandler:     handlers.NewAdminHandler(a.Admin, log),
		HealthHandler:    handlers.NewHealthHandler(version, a.Metrics, a.checks...),
		AnalyzeRateLimit: a.analyzeRateLimit(),
		Logger:           log,
		Metrics:          a.Metrics,
		MetricsCollector: a.Collector,
		MetricsPath:      cfg.Metrics.Path,
	}
	if cfg.Auth.Enabled {
		rc.AuthMiddleware = middleware.NewAuthMiddleware(
			middleware.NewStaticKeyValidator(cfg.Auth.APIKeys), middleware.AuthConfig{}, log)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		rc.CORS = middleware.CORS(cfg.Server.CORSOrigins...)
	}
	return transport.NewRouter(rc)
}

// analyzeRateLimit shares the per-IP budget through Redis when it is
// connected and falls back to an in-process token bucket otherwise.
func (a *App) analyzeRateLimit() func(http.Handler) http.Handler {
	perMinute := a.Config.Auth.AnalyzePerMinute
	if perMinute <= 0 {
		return nil
	}

	var limiter middleware.RateLimiter
	if a.Redis != nil {
		limiter = middleware.NewRedisLimiter(redis.NewWindowLimiter(a.Redis, perMinute, time.Minute), a.Logger.Named("ratelimit"))
	} else {
		limiter = middleware.NewPerMinuteLimiter(perMinute)
	}
	return middleware.RateLimit(limiter, middleware.RateLimitConfig{
		Metrics: a.Metrics,
		Logger:  a.Logger.Named("ratelimit"),
	})
}
