package prometheus

import (
	"database/sql"
	"strconv"
	"time"
)

// AppMetrics holds every SafeScan metric. It satisfies the pipeline's
// metrics port directly.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec
	RateLimitedTotal    CounterVec

	StageDuration          HistogramVec
	AnalysesTotal          CounterVec
	CacheLookupsTotal      CounterVec
	ValidationInvalidTotal CounterVec

	LLMRequestsTotal   CounterVec
	LLMRequestDuration HistogramVec
	LLMTokensUsed      CounterVec

	DBPoolOpen      GaugeVec
	DBPoolInUse     GaugeVec
	MessagesHandled CounterVec

	HealthCheckStatus GaugeVec
}

var (
	DefaultHTTPDurationBuckets  = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	DefaultStageDurationBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60}
	DefaultLLMDurationBuckets   = []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method")
	m.RateLimitedTotal = collector.RegisterCounter("rate_limited_total", "Requests rejected by the rate limiter", "path")

	m.StageDuration = collector.RegisterHistogram("analysis_stage_duration_seconds", "Duration of each analysis pipeline stage", DefaultStageDurationBuckets, "stage")
	m.AnalysesTotal = collector.RegisterCounter("analyses_total", "Completed analyses by outcome", "outcome")
	m.CacheLookupsTotal = collector.RegisterCounter("analysis_cache_lookups_total", "Analysis cache lookups", "result")
	m.ValidationInvalidTotal = collector.RegisterCounter("validation_invalid_total", "Detections that failed knowledge-base validation", "kind")

	m.LLMRequestsTotal = collector.RegisterCounter("llm_requests_total", "LLM requests", "model", "operation", "status")
	m.LLMRequestDuration = collector.RegisterHistogram("llm_request_duration_seconds", "LLM request duration", DefaultLLMDurationBuckets, "model", "operation")
	m.LLMTokensUsed = collector.RegisterCounter("llm_tokens_total", "LLM tokens used", "model", "direction")

	m.DBPoolOpen = collector.RegisterGauge("db_pool_open_connections", "Open database connections", "db")
	m.DBPoolInUse = collector.RegisterGauge("db_pool_in_use_connections", "Database connections in use", "db")
	m.MessagesHandled = collector.RegisterCounter("messages_handled_total", "Consumed messages by result", "topic", "result")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")

	return m
}

// ObserveStage records how long a pipeline stage took.
func (m *AppMetrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncAnalysis counts one finished analysis.
func (m *AppMetrics) IncAnalysis(outcome string) {
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
}

// IncCacheLookup counts one cache lookup, labelled hit, miss or error.
func (m *AppMetrics) IncCacheLookup(result string) {
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// IncValidationInvalid adds n invalid detections of kind.
func (m *AppMetrics) IncValidationInvalid(kind string, n int) {
	if n <= 0 {
		return
	}
	m.ValidationInvalidTotal.WithLabelValues(kind).Add(float64(n))
}

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordLLMCall(metrics *AppMetrics, model, operation string, success bool, duration time.Duration, inputTokens, outputTokens int) {
	status := "success"
	if !success {
		status = "failure"
	}
	metrics.LLMRequestsTotal.WithLabelValues(model, operation, status).Inc()
	metrics.LLMRequestDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
	metrics.LLMTokensUsed.WithLabelValues(model, "input").Add(float64(inputTokens))
	metrics.LLMTokensUsed.WithLabelValues(model, "output").Add(float64(outputTokens))
}

func RecordDBPool(metrics *AppMetrics, db string, stats sql.DBStats) {
	metrics.DBPoolOpen.WithLabelValues(db).Set(float64(stats.OpenConnections))
	metrics.DBPoolInUse.WithLabelValues(db).Set(float64(stats.InUse))
}

// RecordMessage counts one consumed message by what became of it, for
// example processed or dead_lettered.
func RecordMessage(metrics *AppMetrics, topic, result string) {
	metrics.MessagesHandled.WithLabelValues(topic, result).Inc()
}

func RecordHealthCheck(metrics *AppMetrics, component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	metrics.HealthCheckStatus.WithLabelValues(component).Set(v)
}
