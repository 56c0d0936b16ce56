package analysis

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/testutil"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const testURL = "https://www.amazon.com/dp/B000TEST"

func TestFallback_ClientContentSucceeds(t *testing.T) {
	scraper := &mockScraper{}
	analyzer := &mockAnalyzer{}
	f := NewFallbackController(scraper, &mockContent{}, &mockProductExtractor{}, analyzer, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL, ProductHTML: "<div id='productTitle'>Trail Mix</div>"})

	require.True(t, out.IsOK())
	assert.Equal(t, StateClientContent, out.Value.State)
	require.NotNil(t, out.Value.Product)
	assert.Equal(t, "Trail Mix", out.Value.Product.ProductName)
	assert.Nil(t, out.Value.AI)
	assert.Zero(t, scraper.calls)
	assert.Zero(t, analyzer.urlCalls)
}

func TestFallback_LowExtractionConfidenceFallsBackToAIFetch(t *testing.T) {
	extractor := &mockProductExtractor{extractFn: func(context.Context, *ScrapedPage) (*domain.Product, error) {
		return &domain.Product{ProductName: "Vague", Confidence: 0.2, Usage: domain.Usage{InputTokens: 100, OutputTokens: 10, Calls: 1}}, nil
	}}
	analyzer := &mockAnalyzer{urlFn: func(context.Context, string, []string, *substance.KnowledgeBase) (*AIAnalysis, error) {
		return &AIAnalysis{ProductName: "Fetched", Confidence: 0.8, Usage: domain.Usage{InputTokens: 50, OutputTokens: 20, Calls: 1}}, nil
	}}
	f := NewFallbackController(&mockScraper{}, &mockContent{}, extractor, analyzer, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL, ProductHTML: "<html>thin</html>"})

	require.True(t, out.IsOK())
	assert.Equal(t, StateAIFetch, out.Value.State)
	require.NotNil(t, out.Value.AI)
	assert.Equal(t, "Fetched", out.Value.AI.ProductName)
	assert.Nil(t, out.Value.Product)
	assert.NotNil(t, out.Value.Page)
	assert.Equal(t, 1, analyzer.urlCalls)
	assert.Equal(t, domain.Usage{InputTokens: 150, OutputTokens: 30, Calls: 2}, out.Value.Usage)
}

func TestFallback_ScraperUsedWithoutClientContent(t *testing.T) {
	scraper := &mockScraper{}
	f := NewFallbackController(scraper, &mockContent{}, &mockProductExtractor{}, &mockAnalyzer{}, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	require.True(t, out.IsOK())
	assert.Equal(t, StateScraper, out.Value.State)
	assert.Equal(t, 1, scraper.calls)
}

func TestFallback_ScrapedPageAtThresholdIsUsed(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(context.Context, string, bool) (*ScrapedPage, error) {
		return &ScrapedPage{URL: testURL, Content: "=== title ===\nTrail Mix", Confidence: 0.3}, nil
	}}
	extractor := &mockProductExtractor{}
	analyzer := &mockAnalyzer{}
	f := NewFallbackController(scraper, nil, extractor, analyzer, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	require.True(t, out.IsOK())
	assert.Equal(t, StateScraper, out.Value.State)
	assert.Equal(t, 1, extractor.calls)
	assert.Zero(t, analyzer.urlCalls)
}

func TestFallback_ScraperFailureFallsBackToAIFetch(t *testing.T) {
	logger := testutil.NewMockLogger()
	scraper := &mockScraper{scrapeFn: func(context.Context, string, bool) (*ScrapedPage, error) {
		return nil, stderrors.New("connection reset")
	}}
	extractor := &mockProductExtractor{}
	f := NewFallbackController(scraper, nil, extractor, &mockAnalyzer{}, logger)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	require.True(t, out.IsOK())
	assert.Equal(t, StateAIFetch, out.Value.State)
	assert.Nil(t, out.Value.Page)
	assert.Zero(t, extractor.calls)
	assert.True(t, logger.HasMessage("warn", "scrape failed"))
}

func TestFallback_LowPageConfidenceSkipsExtraction(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(_ context.Context, u string, _ bool) (*ScrapedPage, error) {
		return &ScrapedPage{URL: u, Content: "x", Confidence: 0.2}, nil
	}}
	extractor := &mockProductExtractor{}
	f := NewFallbackController(scraper, nil, extractor, &mockAnalyzer{}, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	require.True(t, out.IsOK())
	assert.Equal(t, StateAIFetch, out.Value.State)
	assert.Zero(t, extractor.calls)
}

func TestFallback_MinConfidenceIsInclusive(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(_ context.Context, u string, _ bool) (*ScrapedPage, error) {
		return &ScrapedPage{URL: u, Content: "x", Confidence: 0.5}, nil
	}}
	f := NewFallbackController(scraper, nil, &mockProductExtractor{}, &mockAnalyzer{}, nil, WithMinConfidence(0.5))

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	require.True(t, out.IsOK())
	assert.Equal(t, StateScraper, out.Value.State)
}

func TestFallback_AIFetchRateLimited(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(context.Context, string, bool) (*ScrapedPage, error) {
		return nil, stderrors.New("blocked")
	}}
	analyzer := &mockAnalyzer{urlFn: func(context.Context, string, []string, *substance.KnowledgeBase) (*AIAnalysis, error) {
		return nil, errors.NewRateLimitError(0, stderrors.New("429"))
	}}
	f := NewFallbackController(scraper, nil, &mockProductExtractor{}, analyzer, nil, WithRetryAfter(45*time.Second))

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	require.True(t, out.IsRateLimited())
	assert.Equal(t, 45*time.Second, out.RetryAfter)
	assert.Equal(t, 1, analyzer.urlCalls)
}

func TestFallback_AIFetchFailureIsTerminal(t *testing.T) {
	scraper := &mockScraper{scrapeFn: func(context.Context, string, bool) (*ScrapedPage, error) {
		return nil, stderrors.New("blocked")
	}}
	analyzer := &mockAnalyzer{urlFn: func(context.Context, string, []string, *substance.KnowledgeBase) (*AIAnalysis, error) {
		return nil, stderrors.New("model overloaded")
	}}
	f := NewFallbackController(scraper, nil, nil, analyzer, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.True(t, errors.IsCode(out.AsError(), errors.ErrCodeExtractionExhausted))
	assert.Equal(t, 1, analyzer.urlCalls)
}

func TestFallback_NoAnalyzerExhausts(t *testing.T) {
	f := NewFallbackController(nil, nil, nil, nil, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL})

	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, errors.ErrCodeExtractionExhausted, out.Code)
}

func TestFallback_RetailerFromPage(t *testing.T) {
	content := &mockContent{extractFn: func(u, _, _ string) (*ScrapedPage, error) {
		return &ScrapedPage{URL: u, Content: "x", Confidence: 0.95, Retailer: "Amazon"}, nil
	}}
	f := NewFallbackController(nil, content, &mockProductExtractor{}, &mockAnalyzer{}, nil)

	out := f.Extract(context.Background(), ExtractionRequest{URL: testURL, ProductHTML: "<html/>"})

	require.True(t, out.IsOK())
	assert.Equal(t, "Amazon", out.Value.Product.Retailer)
	assert.NotNil(t, out.Value.Product.Materials)
}
