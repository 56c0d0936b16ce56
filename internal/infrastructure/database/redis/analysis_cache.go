package redis

import (
	"context"
	"time"

	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"golang.org/x/sync/singleflight"
)

// DefaultAnalysisTTL bounds how long a result stays in the hot tier.
const DefaultAnalysisTTL = 24 * time.Hour

const analysisKeyPrefix = "analysis:"

// AnalysisCache is the hot tier in front of the durable analysis store.
// Concurrent lookups of the same fingerprint share one round trip.
type AnalysisCache struct {
	cache  Cache
	ttl    time.Duration
	logger logging.Logger
	group  singleflight.Group
}

// NewAnalysisCache wraps cache. A non-positive ttl selects DefaultAnalysisTTL.
func NewAnalysisCache(cache Cache, ttl time.Duration, log logging.Logger) *AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultAnalysisTTL
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &AnalysisCache{cache: cache, ttl: ttl, logger: log}
}

// GetAnalysis returns (nil, nil) on a miss.
func (c *AnalysisCache) GetAnalysis(ctx context.Context, fingerprint string) (*analysis.Result, error) {
	// Joined callers share this read, so one caller's cancellation must not
	// fail the others.
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		var res analysis.Result
		if err := c.cache.Get(shared, analysisKeyPrefix+fingerprint, &res); err != nil {
			if err == ErrCacheMiss {
				return nil, nil
			}
			return nil, err
		}
		return &res, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	// Shared singleflight results are copied before callers mutate them.
	res := *v.(*analysis.Result)
	return &res, nil
}

// SetAnalysis stores result under fingerprint for the configured TTL.
func (c *AnalysisCache) SetAnalysis(ctx context.Context, fingerprint string, result *analysis.Result) error {
	if result == nil {
		return nil
	}
	if err := c.cache.Set(ctx, analysisKeyPrefix+fingerprint, result, c.ttl); err != nil {
		return err
	}
	c.logger.Debug("analysis cached", logging.String("fingerprint", fingerprint))
	return nil
}

// Invalidate drops the hot copy of one analysis.
func (c *AnalysisCache) Invalidate(ctx context.Context, fingerprint string) error {
	return c.cache.Delete(ctx, analysisKeyPrefix+fingerprint)
}

// Flush drops every cached analysis and reports how many keys were removed.
func (c *AnalysisCache) Flush(ctx context.Context) (int64, error) {
	return c.cache.DeleteByPrefix(ctx, analysisKeyPrefix)
}
