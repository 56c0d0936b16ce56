// Package prometheus registers SafeScan metrics on a private registry and
// exposes them for scraping.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// MetricsCollector hands out labelled metric vectors and serves them.
// Asking for a name twice returns the vector registered first; asking with a
// conflicting type or help text returns a vector that records nothing.
type MetricsCollector interface {
	RegisterCounter(name, help string, labels ...string) CounterVec
	RegisterGauge(name, help string, labels ...string) GaugeVec
	RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec
	Handler() http.Handler
}

type Counter interface {
	Inc()
	Add(delta float64)
}

type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

type Histogram interface {
	Observe(value float64)
}

type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

type GaugeVec interface {
	WithLabelValues(lvs ...string) Gauge
}

type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

// labelled turns a label lookup into any of the Vec interfaces.
type labelled[M any] func(lvs ...string) M

func (f labelled[M]) WithLabelValues(lvs ...string) M { return f(lvs...) }

// discard records nothing.
type discard struct{}

func (discard) Inc()            {}
func (discard) Dec()            {}
func (discard) Add(float64)     {}
func (discard) Set(float64)     {}
func (discard) Observe(float64) {}

type CollectorConfig struct {
	Namespace string
	// Subsystem is optional; tests use it to keep names apart.
	Subsystem            string
	EnableProcessMetrics bool
	EnableGoMetrics      bool
}

type collector struct {
	registry  *prometheus.Registry
	namespace string
	subsystem string
	logger    logging.Logger
}

// NewMetricsCollector creates a collector on its own registry, so the API
// server, the worker and tests never share state.
func NewMetricsCollector(cfg CollectorConfig, logger logging.Logger) (MetricsCollector, error) {
	if cfg.Namespace == "" {
		return nil, errors.New(errors.ErrCodeValidation, "metrics namespace is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	reg := prometheus.NewRegistry()
	if cfg.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}
	if cfg.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	return &collector{registry: reg, namespace: cfg.Namespace, subsystem: cfg.Subsystem, logger: logger}, nil
}

func (c *collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (c *collector) RegisterCounter(name, help string, labels ...string) CounterVec {
	opts := prometheus.CounterOpts{Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help}
	if vec, ok := adopt(c, name, prometheus.NewCounterVec(opts, labels)); ok {
		return labelled[Counter](func(lvs ...string) Counter { return vec.WithLabelValues(lvs...) })
	}
	return labelled[Counter](func(...string) Counter { return discard{} })
}

func (c *collector) RegisterGauge(name, help string, labels ...string) GaugeVec {
	opts := prometheus.GaugeOpts{Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help}
	if vec, ok := adopt(c, name, prometheus.NewGaugeVec(opts, labels)); ok {
		return labelled[Gauge](func(lvs ...string) Gauge { return vec.WithLabelValues(lvs...) })
	}
	return labelled[Gauge](func(...string) Gauge { return discard{} })
}

// RegisterHistogram uses prometheus.DefBuckets when buckets is nil.
func (c *collector) RegisterHistogram(name, help string, buckets []float64, labels ...string) HistogramVec {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	opts := prometheus.HistogramOpts{Namespace: c.namespace, Subsystem: c.subsystem, Name: name, Help: help, Buckets: buckets}
	if vec, ok := adopt(c, name, prometheus.NewHistogramVec(opts, labels)); ok {
		return labelled[Histogram](func(lvs ...string) Histogram { return vec.WithLabelValues(lvs...) })
	}
	return labelled[Histogram](func(...string) Histogram { return discard{} })
}

// adopt registers vec, or returns the vector the registry already holds under
// the same descriptor. ok is false when that vector has another type or the
// registry refused the descriptor.
func adopt[V prometheus.Collector](c *collector, name string, vec V) (V, bool) {
	fq := prometheus.BuildFQName(c.namespace, c.subsystem, name)
	err := c.registry.Register(vec)
	if err == nil {
		return vec, true
	}
	if dup, isDup := err.(prometheus.AlreadyRegisteredError); isDup {
		if existing, ok := dup.ExistingCollector.(V); ok {
			return existing, true
		}
		c.logger.Warn("metric already registered with another type", logging.String("name", fq))
	} else {
		c.logger.Error("metric registration failed", logging.String("name", fq), logging.Err(err))
	}
	var zero V
	return zero, false
}
