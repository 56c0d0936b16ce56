package analysis

import (
	"context"
	"sync"
	"time"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockScraper struct {
	scrapeFn func(ctx context.Context, productURL string, includeReviews bool) (*ScrapedPage, error)
	calls    int
}

func (m *mockScraper) Scrape(ctx context.Context, productURL string, includeReviews bool) (*ScrapedPage, error) {
	m.calls++
	if m.scrapeFn != nil {
		return m.scrapeFn(ctx, productURL, includeReviews)
	}
	return &ScrapedPage{URL: productURL, Content: "=== title ===\nTest", Confidence: 0.9, Method: "scraper"}, nil
}

type mockContent struct {
	extractFn func(productURL, productHTML, reviewsHTML string) (*ScrapedPage, error)
	parseFn   func(productURL, reviewsHTML string) []domain.Review
}

func (m *mockContent) ExtractFromRawContent(productURL, productHTML, reviewsHTML string) (*ScrapedPage, error) {
	if m.extractFn != nil {
		return m.extractFn(productURL, productHTML, reviewsHTML)
	}
	return &ScrapedPage{URL: productURL, Content: productHTML, Confidence: 0.95, Method: "client_side"}, nil
}

func (m *mockContent) ParseReviews(productURL, reviewsHTML string) []domain.Review {
	if m.parseFn != nil {
		return m.parseFn(productURL, reviewsHTML)
	}
	return nil
}

type mockProductExtractor struct {
	extractFn func(ctx context.Context, page *ScrapedPage) (*domain.Product, error)
	calls     int
}

func (m *mockProductExtractor) ExtractProduct(ctx context.Context, page *ScrapedPage) (*domain.Product, error) {
	m.calls++
	if m.extractFn != nil {
		return m.extractFn(ctx, page)
	}
	return &domain.Product{ProductName: "Trail Mix", Brand: "Acme", Ingredients: []string{"Milk Powder", "Peanut Oil", "Water"}, Confidence: 0.85}, nil
}

type mockAnalyzer struct {
	extractedFn func(ctx context.Context, product *domain.Product, profile []string, kb *substance.KnowledgeBase) (*AIAnalysis, error)
	urlFn       func(ctx context.Context, productURL string, profile []string, kb *substance.KnowledgeBase) (*AIAnalysis, error)
	urlCalls    int
	extCalls    int
}

func (m *mockAnalyzer) AnalyzeExtracted(ctx context.Context, product *domain.Product, profile []string, kb *substance.KnowledgeBase) (*AIAnalysis, error) {
	m.extCalls++
	if m.extractedFn != nil {
		return m.extractedFn(ctx, product, profile, kb)
	}
	return &AIAnalysis{ProductName: product.ProductName, Brand: product.Brand, Confidence: 0.9}, nil
}

func (m *mockAnalyzer) AnalyzeURL(ctx context.Context, productURL string, profile []string, kb *substance.KnowledgeBase) (*AIAnalysis, error) {
	m.urlCalls++
	if m.urlFn != nil {
		return m.urlFn(ctx, productURL, profile, kb)
	}
	return &AIAnalysis{ProductName: "Fetched Product", Brand: "FetchCo", Retailer: "Amazon", Confidence: 0.8}, nil
}

type mockReviewExtractor struct {
	extractFn func(ctx context.Context, page *ScrapedPage) (*domain.ReviewInsights, error)
}

func (m *mockReviewExtractor) ExtractReviews(ctx context.Context, page *ScrapedPage) (*domain.ReviewInsights, error) {
	if m.extractFn != nil {
		return m.extractFn(ctx, page)
	}
	return &domain.ReviewInsights{OverallSentiment: domain.SentimentPositive, TotalReviewsAnalyzed: 3, Confidence: 0.8}, nil
}

type mockKBStore struct {
	allergens []substance.Record
	pfas      []substance.Record
	err       error
}

func (m *mockKBStore) GetAllAllergens(context.Context) ([]substance.Record, error) {
	return m.allergens, m.err
}

func (m *mockKBStore) GetAllPFAS(context.Context) ([]substance.Record, error) {
	return m.pfas, m.err
}

func testKBStore() *mockKBStore {
	return &mockKBStore{
		allergens: []substance.Record{
			{Name: "Milk", Severity: substance.SeverityHigh, Synonyms: []string{"casein"}},
			{Name: "Peanut", Severity: substance.SeverityModerate},
			{Name: "Parabens", Severity: substance.SeverityModerate},
		},
		pfas: []substance.Record{
			{Name: "PTFE", CASNumber: "9002-84-0"},
		},
	}
}

func testKB() *substance.KnowledgeBase {
	s := testKBStore()
	return substance.NewKnowledgeBase(s.allergens, s.pfas)
}

type mockAnalysisStore struct {
	mu        sync.Mutex
	results   map[string]*domain.Result
	getErr    error
	upsertErr error
	upserts   int
}

func newMockAnalysisStore() *mockAnalysisStore {
	return &mockAnalysisStore{results: map[string]*domain.Result{}}
}

func (m *mockAnalysisStore) Get(_ context.Context, fingerprint string) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.results[fingerprint]
	if !ok {
		return nil, errors.New(errors.ErrCodeAnalysisNotFound, "analysis not found")
	}
	return r, nil
}

func (m *mockAnalysisStore) Upsert(_ context.Context, fingerprint, _ string, result *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	cp := *result
	m.results[fingerprint] = &cp
	return nil
}

type mockHotCache struct {
	mu     sync.Mutex
	data   map[string]*domain.Result
	getErr error
	sets   int
}

func newMockHotCache() *mockHotCache {
	return &mockHotCache{data: map[string]*domain.Result{}}
}

func (m *mockHotCache) GetAnalysis(_ context.Context, fingerprint string) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[fingerprint], nil
}

func (m *mockHotCache) SetAnalysis(_ context.Context, fingerprint string, result *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	// Redis keeps the serialized value, not the caller's pointer.
	cp := *result
	m.data[fingerprint] = &cp
	return nil
}

type mockSink struct {
	mu      sync.Mutex
	records []*domain.ValidationRecord
	err     error
}

func (m *mockSink) Append(_ context.Context, rec *domain.ValidationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

func (m *mockSink) ofType(logType string) []*domain.ValidationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ValidationRecord
	for _, r := range m.records {
		if r.LogType == logType {
			out = append(out, r)
		}
	}
	return out
}

type mockSearchLog struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockSearchLog) LogSearch(context.Context, string, string, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

type mockReviewIndex struct {
	mu        sync.Mutex
	indexed   []domain.Review
	indexErr  error
	searchFn  func(ctx context.Context, q domain.ReviewQuery) ([]domain.ReviewHit, error)
	summaryFn func(ctx context.Context, fingerprint string) (*domain.ReviewSummary, error)
}

func (m *mockReviewIndex) IndexReviews(_ context.Context, reviews []domain.Review) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexErr != nil {
		return 0, m.indexErr
	}
	m.indexed = append(m.indexed, reviews...)
	return len(reviews), nil
}

func (m *mockReviewIndex) SearchReviews(ctx context.Context, q domain.ReviewQuery) ([]domain.ReviewHit, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

func (m *mockReviewIndex) SummarizeReviews(ctx context.Context, fingerprint string) (*domain.ReviewSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, fingerprint)
	}
	return nil, nil
}

type mockArchive struct {
	mu    sync.Mutex
	kinds map[string]int
	err   error
}

func (m *mockArchive) Archive(_ context.Context, _ string, kind string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kinds == nil {
		m.kinds = map[string]int{}
	}
	m.kinds[kind] = len(content)
	return m.err
}

type recMetrics struct {
	mu       sync.Mutex
	stages   []string
	outcomes []string
	lookups  []string
	invalid  map[string]int
}

func (m *recMetrics) ObserveStage(stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *recMetrics) IncAnalysis(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recMetrics) IncCacheLookup(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, result)
}

func (m *recMetrics) IncValidationInvalid(kind string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.invalid == nil {
		m.invalid = map[string]int{}
	}
	m.invalid[kind] += n
}
