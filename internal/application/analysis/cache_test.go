package analysis

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/testutil"
	"github.com/turtacn/SafeScan/pkg/errors"
)

func TestCacheGateway_HotHit(t *testing.T) {
	hot := newMockHotCache()
	store := newMockAnalysisStore()
	store.getErr = stderrors.New("must not be called")
	metrics := &recMetrics{}
	fp := domain.Fingerprint(testURL)
	hot.data[fp] = &domain.Result{ProductURL: testURL, AnalyzedAt: time.Now().Add(-time.Minute)}

	g := NewCacheGateway(hot, store, nil, metrics)
	got, ok := g.Lookup(context.Background(), fp)

	require.True(t, ok)
	assert.Equal(t, "hot", got.Tier)
	assert.GreaterOrEqual(t, got.Age, time.Minute)
	assert.Equal(t, []string{"hot_hit"}, metrics.lookups)
}

func TestCacheGateway_DurableHitBackfillsHot(t *testing.T) {
	hot := newMockHotCache()
	store := newMockAnalysisStore()
	fp := domain.Fingerprint(testURL)
	store.results[fp] = &domain.Result{ProductURL: testURL, AnalyzedAt: time.Now()}

	g := NewCacheGateway(hot, store, nil, nil)
	got, ok := g.Lookup(context.Background(), fp)

	require.True(t, ok)
	assert.Equal(t, "durable", got.Tier)
	assert.Equal(t, 1, hot.sets)
	assert.NotNil(t, hot.data[fp])
}

func TestCacheGateway_Miss(t *testing.T) {
	metrics := &recMetrics{}
	g := NewCacheGateway(newMockHotCache(), newMockAnalysisStore(), nil, metrics)

	_, ok := g.Lookup(context.Background(), domain.Fingerprint(testURL))

	assert.False(t, ok)
	assert.Equal(t, []string{"miss"}, metrics.lookups)
}

func TestCacheGateway_ReadFailuresAreMisses(t *testing.T) {
	logger := testutil.NewMockLogger()
	hot := newMockHotCache()
	hot.getErr = stderrors.New("redis timeout")
	store := newMockAnalysisStore()
	store.getErr = stderrors.New("pq: connection refused")
	metrics := &recMetrics{}

	g := NewCacheGateway(hot, store, logger, metrics)
	_, ok := g.Lookup(context.Background(), domain.Fingerprint(testURL))

	assert.False(t, ok)
	assert.True(t, logger.HasMessage("warn", "hot cache read failed"))
	assert.True(t, logger.HasMessage("warn", "analysis store read failed"))
	assert.Equal(t, []string{"error"}, metrics.lookups)
}

func TestCacheGateway_OfflineStoreIsQuietMiss(t *testing.T) {
	logger := testutil.NewMockLogger()
	store := newMockAnalysisStore()
	store.getErr = errors.New(errors.ErrCodeServiceUnavailable, "storage offline")

	g := NewCacheGateway(nil, store, logger, nil)
	_, ok := g.Lookup(context.Background(), domain.Fingerprint(testURL))

	assert.False(t, ok)
	assert.Zero(t, logger.CountLevel("warn"))
}

func TestCacheGateway_Store(t *testing.T) {
	hot := newMockHotCache()
	store := newMockAnalysisStore()
	g := NewCacheGateway(hot, store, nil, nil)
	fp := domain.Fingerprint(testURL)

	assert.True(t, g.Store(context.Background(), fp, testURL, &domain.Result{ProductURL: testURL}))
	assert.Equal(t, 1, store.upserts)
	assert.Equal(t, 1, hot.sets)

	store.upsertErr = stderrors.New("disk full")
	assert.False(t, g.Store(context.Background(), fp, testURL, &domain.Result{ProductURL: testURL}))
	assert.Equal(t, 2, hot.sets)
}
