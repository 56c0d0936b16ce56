package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleResult() *analysis.Result {
	url := "https://shop.example.com/p/nonstick-pan"
	return &analysis.Result{
		ProductURL:  url,
		ProductName: "Nonstick Pan",
		Brand:       "Acme",
		Retailer:    "example",
		Ingredients: []string{"aluminum", "PTFE"},
		Detections: substance.Detections{
			Allergens:     []substance.Detection{},
			PFAS:          []substance.Detection{{Name: "PTFE", CASNumber: "9002-84-0", Confidence: 0.95}},
			OtherConcerns: []substance.Detection{},
		},
		Confidence:   0.9,
		HarmScore:    38,
		OverallScore: 62,
		AnalyzedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Fingerprint:  analysis.Fingerprint(url),
	}
}

func TestAnalysisCache_MissReturnsNil(t *testing.T) {
	_, client := newMiniredisClient(t)
	ac := NewAnalysisCache(NewRedisCache(client, logging.NewNopLogger()), 0, nil)

	res, err := ac.GetAnalysis(context.Background(), "deadbeef")
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestAnalysisCache_SetThenGet(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ac := NewAnalysisCache(NewRedisCache(client, logging.NewNopLogger()), time.Hour, nil)
	ctx := context.Background()
	want := sampleResult()

	require.NoError(t, ac.SetAnalysis(ctx, want.Fingerprint, want))
	assert.True(t, mr.Exists("safescan:analysis:"+want.Fingerprint))

	got, err := ac.GetAnalysis(ctx, want.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ProductName, got.ProductName)
	assert.Equal(t, want.HarmScore, got.HarmScore)
	assert.True(t, want.AnalyzedAt.Equal(got.AnalyzedAt))
	require.Len(t, got.PFAS, 1)
	assert.Equal(t, "9002-84-0", got.PFAS[0].CASNumber)
}

func TestAnalysisCache_SetNilIsNoop(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ac := NewAnalysisCache(NewRedisCache(client, logging.NewNopLogger()), time.Hour, nil)

	require.NoError(t, ac.SetAnalysis(context.Background(), "abc", nil))
	assert.Empty(t, mr.Keys())
}

func TestAnalysisCache_InvalidateAndFlush(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ac := NewAnalysisCache(NewRedisCache(client, logging.NewNopLogger()), time.Hour, nil)
	ctx := context.Background()

	res := sampleResult()
	require.NoError(t, ac.SetAnalysis(ctx, "one", res))
	require.NoError(t, ac.SetAnalysis(ctx, "two", res))
	require.NoError(t, ac.SetAnalysis(ctx, "three", res))
	require.NoError(t, mr.Set("safescan:other", "keep"))

	require.NoError(t, ac.Invalidate(ctx, "one"))
	got, err := ac.GetAnalysis(ctx, "one")
	assert.NoError(t, err)
	assert.Nil(t, got)

	n, err := ac.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("safescan:other"))
}

func TestAnalysisCache_CorruptEntry(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ac := NewAnalysisCache(NewRedisCache(client, logging.NewNopLogger()), time.Hour, nil)
	require.NoError(t, mr.Set("safescan:analysis:bad", "{not json"))

	res, err := ac.GetAnalysis(context.Background(), "bad")
	assert.Error(t, err)
	assert.Nil(t, res)
}

// ctxCheckingCache fails reads whose context is already done.
type ctxCheckingCache struct {
	Cache
	value *analysis.Result
}

func (c *ctxCheckingCache) Get(ctx context.Context, _ string, dest interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(c.value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func TestAnalysisCache_SharedReadIgnoresCallerCancellation(t *testing.T) {
	want := sampleResult()
	ac := NewAnalysisCache(&ctxCheckingCache{value: want}, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := ac.GetAnalysis(ctx, want.Fingerprint)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ProductName, got.ProductName)
}
