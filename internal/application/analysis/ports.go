// Package analysis orchestrates one product analysis: cache lookup, the
// extraction fallback chain, database matching, AI enrichment, merging,
// validation, scoring and persistence. Every collaborator is a port defined
// here and injected through Deps.
package analysis

import (
	"context"
	"time"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
)

// ---------------------------------------------------------------------------
// Transfer types
// ---------------------------------------------------------------------------

// ScrapedPage is compressed page text ready for AI extraction.
type ScrapedPage struct {
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	Reviews    string  `json:"reviews,omitempty"`
	Retailer   string  `json:"retailer,omitempty"`
	Confidence float64 `json:"confidence"`
	HasReviews bool    `json:"has_reviews"`
	Method     string  `json:"method"`
	Error      string  `json:"error,omitempty"`
}

// AIAnalysis is the safety analysis returned by the AI service.
type AIAnalysis struct {
	ProductName string   `json:"product_name"`
	Brand       string   `json:"brand"`
	Retailer    string   `json:"retailer"`
	Category    string   `json:"category,omitempty"`
	Ingredients []string `json:"ingredients"`
	substance.Detections
	Confidence float64      `json:"confidence"`
	Error      string       `json:"error,omitempty"`
	Usage      domain.Usage `json:"-"`
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Scraper fetches and compresses a product page.
type Scraper interface {
	Scrape(ctx context.Context, productURL string, includeReviews bool) (*ScrapedPage, error)
}

// ContentExtractor compresses page HTML captured by the client.
type ContentExtractor interface {
	ExtractFromRawContent(productURL, productHTML, reviewsHTML string) (*ScrapedPage, error)
	ParseReviews(productURL, reviewsHTML string) []domain.Review
}

// ProductExtractor turns page text into structured product data.
type ProductExtractor interface {
	ExtractProduct(ctx context.Context, page *ScrapedPage) (*domain.Product, error)
}

// SafetyAnalyzer runs the AI safety analysis. Rate limits are reported as an
// error for which errors.AsRateLimit succeeds.
type SafetyAnalyzer interface {
	AnalyzeExtracted(ctx context.Context, product *domain.Product, allergenProfile []string, kb *substance.KnowledgeBase) (*AIAnalysis, error)
	AnalyzeURL(ctx context.Context, productURL string, allergenProfile []string, kb *substance.KnowledgeBase) (*AIAnalysis, error)
}

// ReviewExtractor derives review insights from scraped review text.
type ReviewExtractor interface {
	ExtractReviews(ctx context.Context, page *ScrapedPage) (*domain.ReviewInsights, error)
}

// HotCache is the fast tier in front of the durable AnalysisStore. Get
// returns (nil, nil) on a miss.
type HotCache interface {
	GetAnalysis(ctx context.Context, fingerprint string) (*domain.Result, error)
	SetAnalysis(ctx context.Context, fingerprint string, result *domain.Result) error
}

// ContentArchive keeps the raw page text an analysis was based on.
type ContentArchive interface {
	Archive(ctx context.Context, fingerprint, kind string, content []byte) error
}

// ReviewIndex stores individual reviews for keyword search.
type ReviewIndex interface {
	IndexReviews(ctx context.Context, reviews []domain.Review) (int, error)
	SearchReviews(ctx context.Context, q domain.ReviewQuery) ([]domain.ReviewHit, error)
	SummarizeReviews(ctx context.Context, fingerprint string) (*domain.ReviewSummary, error)
}

// Metrics receives pipeline observations. A nil Metrics is allowed.
type Metrics interface {
	ObserveStage(stage string, d time.Duration)
	IncAnalysis(outcome string)
	IncCacheLookup(result string)
	IncValidationInvalid(kind string, n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, time.Duration) {}
func (nopMetrics) IncAnalysis(string)                 {}
func (nopMetrics) IncCacheLookup(string)              {}
func (nopMetrics) IncValidationInvalid(string, int)   {}
