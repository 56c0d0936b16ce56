package analysis

import (
	"context"
	"time"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Cache lookup results reported to metrics.
const (
	cacheHotHit = "hot_hit"
	cacheHit    = "hit"
	cacheMiss   = "miss"
	cacheError  = "error"
	tierHot     = "hot"
	tierDurable = "durable"
)

// CachedAnalysis is a stored result with its age at lookup time.
type CachedAnalysis struct {
	Result *domain.Result
	Age    time.Duration
	Tier   string
}

// CacheGateway reads through the hot tier to the durable store and writes
// both. Failures never reach the caller: a failed read is a miss and a failed
// write returns false.
type CacheGateway struct {
	hot     HotCache
	store   domain.AnalysisStore
	logger  logging.Logger
	metrics Metrics
	now     func() time.Time
}

// NewCacheGateway creates a gateway. hot may be nil.
func NewCacheGateway(hot HotCache, store domain.AnalysisStore, logger logging.Logger, metrics Metrics) *CacheGateway {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &CacheGateway{
		hot:     hot,
		store:   store,
		logger:  logger.Named("cache"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Lookup returns the stored analysis for fingerprint, if any.
func (g *CacheGateway) Lookup(ctx context.Context, fingerprint string) (*CachedAnalysis, bool) {
	if g.hot != nil {
		r, err := g.hot.GetAnalysis(ctx, fingerprint)
		switch {
		case err != nil:
			g.logger.Warn("hot cache read failed", logging.String("fingerprint", fingerprint), logging.Err(err))
		case r != nil:
			g.metrics.IncCacheLookup(cacheHotHit)
			return g.cached(r, tierHot), true
		}
	}
	if g.store == nil {
		g.metrics.IncCacheLookup(cacheMiss)
		return nil, false
	}

	r, err := g.store.Get(ctx, fingerprint)
	if err != nil {
		switch {
		case errors.IsNotFound(err):
			g.metrics.IncCacheLookup(cacheMiss)
		case errors.IsCode(err, errors.ErrCodeServiceUnavailable):
			g.logger.Debug("analysis store offline", logging.String("fingerprint", fingerprint))
			g.metrics.IncCacheLookup(cacheMiss)
		default:
			g.logger.Warn("analysis store read failed", logging.String("fingerprint", fingerprint), logging.Err(err))
			g.metrics.IncCacheLookup(cacheError)
		}
		return nil, false
	}
	if r == nil {
		g.metrics.IncCacheLookup(cacheMiss)
		return nil, false
	}

	g.metrics.IncCacheLookup(cacheHit)
	if g.hot != nil {
		if err := g.hot.SetAnalysis(ctx, fingerprint, r); err != nil {
			g.logger.Warn("hot cache backfill failed", logging.String("fingerprint", fingerprint), logging.Err(err))
		}
	}
	return g.cached(r, tierDurable), true
}

// Store writes result to both tiers. It reports whether the durable write
// succeeded.
func (g *CacheGateway) Store(ctx context.Context, fingerprint, productURL string, result *domain.Result) bool {
	ok := true
	if g.store != nil {
		if err := g.store.Upsert(ctx, fingerprint, productURL, result); err != nil {
			g.logger.Warn("analysis not stored", logging.String("fingerprint", fingerprint), logging.Err(err))
			ok = false
		}
	}
	if g.hot != nil {
		if err := g.hot.SetAnalysis(ctx, fingerprint, result); err != nil {
			g.logger.Warn("hot cache write failed", logging.String("fingerprint", fingerprint), logging.Err(err))
		}
	}
	return ok
}

func (g *CacheGateway) cached(r *domain.Result, tier string) *CachedAnalysis {
	age := r.Age(g.now())
	if age < 0 {
		age = 0
	}
	return &CachedAnalysis{Result: r, Age: age, Tier: tier}
}
