package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/prometheus"
)

type LoggingConfig struct {
	SkipPaths []string
	// SlowThreshold logs successful requests at Warn once exceeded. Zero
	// disables it.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips the probes and scrape endpoint. An uncached
// analysis can take most of a minute, so only longer requests count as slow.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: time.Minute,
	}
}

// status reads the code a handler wrote, 200 when it wrote nothing.
func status(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// RequestLogging writes one access line per request and hands handlers a
// logger carrying the request id through the context.
func RequestLogging(logger logging.Logger, cfg LoggingConfig) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			log := logger.With(logging.String("request_id", chimw.GetReqID(r.Context())))
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), log)))
			elapsed := time.Since(start)

			code := status(ww)
			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", code),
				logging.Duration("elapsed", elapsed),
				logging.Int("bytes", ww.BytesWritten()),
				logging.String("remote_addr", r.RemoteAddr),
			}
			if ua := r.UserAgent(); ua != "" {
				fields = append(fields, logging.String("user_agent", ua))
			}
			if info := ContextGetAPIKeyInfo(r.Context()); info != nil {
				fields = append(fields, logging.String("key_id", info.KeyID))
			}

			switch {
			case code >= http.StatusInternalServerError:
				log.Error("request failed", fields...)
			case code >= http.StatusBadRequest:
				log.Warn("request rejected", fields...)
			case cfg.SlowThreshold > 0 && elapsed >= cfg.SlowThreshold:
				log.Warn("slow request", fields...)
			default:
				log.Info("request served", fields...)
			}
		})
	}
}

// Metrics labels requests by route pattern rather than raw path, keeping
// fingerprints out of the label set.
func Metrics(metrics *prometheus.AppMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inflight := metrics.HTTPActiveRequests.WithLabelValues(r.Method)
			inflight.Inc()
			defer inflight.Dec()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			prometheus.RecordHTTPRequest(metrics, r.Method, route, status(ww), time.Since(start))
		})
	}
}
