package analysis

import (
	"context"
	"strings"
	"time"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Review search limits.
const (
	DefaultReviewTopK      = 10
	MaxReviewTopK          = 50
	MaxReviewSnippetRunes  = 500
	DefaultInsightsTTL     = 7 * 24 * time.Hour
	reviewInsightsMinScore = 0.3
)

// ReviewSearchResult is one review returned by a search.
type ReviewSearchResult struct {
	ID         string  `json:"id"`
	URLHash    string  `json:"url_hash"`
	ReviewText string  `json:"review_text"`
	Rating     int     `json:"rating,omitempty"`
	Verified   bool    `json:"verified"`
	Similarity float64 `json:"similarity"`
}

// ReviewSearchResponse lists search results.
type ReviewSearchResponse struct {
	Query        string               `json:"query"`
	Results      []ReviewSearchResult `json:"results"`
	TotalResults int                  `json:"total_results"`
}

// ReviewService serves review insights, search and summaries.
type ReviewService interface {
	Insights(ctx context.Context, fingerprint string, forceRefresh bool) (*domain.ReviewInsights, error)
	Search(ctx context.Context, q domain.ReviewQuery) (*ReviewSearchResponse, error)
	Summary(ctx context.Context, fingerprint string) (*domain.ReviewSummary, error)
}

// ReviewDeps holds the collaborators of ReviewService.
type ReviewDeps struct {
	Analyses    domain.AnalysisStore
	Insights    domain.ReviewInsightsStore
	Scraper     Scraper
	Extractor   ReviewExtractor
	Index       ReviewIndex
	Logger      logging.Logger
	InsightsTTL time.Duration
}

type reviewServiceImpl struct {
	analyses  domain.AnalysisStore
	insights  domain.ReviewInsightsStore
	scraper   Scraper
	extractor ReviewExtractor
	index     ReviewIndex
	logger    logging.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewReviewService creates a ReviewService.
func NewReviewService(deps ReviewDeps) ReviewService {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ttl := deps.InsightsTTL
	if ttl <= 0 {
		ttl = DefaultInsightsTTL
	}
	return &reviewServiceImpl{
		analyses:  deps.Analyses,
		insights:  deps.Insights,
		scraper:   deps.Scraper,
		extractor: deps.Extractor,
		index:     deps.Index,
		logger:    logger.Named("reviews"),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *reviewServiceImpl) Insights(ctx context.Context, fingerprint string, forceRefresh bool) (*domain.ReviewInsights, error) {
	if !domain.IsFingerprint(fingerprint) {
		return nil, errors.InvalidParam("invalid url hash")
	}
	log := s.logger.With(logging.String("fingerprint", fingerprint))

	if !forceRefresh && s.insights != nil {
		cached, err := s.insights.GetReviewInsights(ctx, fingerprint)
		switch {
		case err != nil && !errors.IsNotFound(err):
			log.Warn("review insights cache check failed", logging.Err(err))
		case cached != nil && cached.IsFresh(s.now(), s.ttl):
			cached.Cached = true
			return cached, nil
		}
	}

	if s.analyses == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "database unavailable")
	}
	stored, err := s.analyses.Get(ctx, fingerprint)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.New(errors.ErrCodeAnalysisNotFound, "Product analysis not found. Please analyze the product first.")
		}
		return nil, errors.Wrap(err, errors.CodeUnknown, "load analysis")
	}

	if s.scraper == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "scraper unavailable")
	}
	page, err := s.scraper.Scrape(ctx, stored.ProductURL, true)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeScrapeFailed, "failed to retrieve reviews")
	}
	if page == nil || !page.HasReviews || strings.TrimSpace(page.Reviews) == "" {
		return nil, errors.New(errors.ErrCodeReviewsNotFound, "No reviews found for this product")
	}

	if s.extractor == nil {
		return nil, errors.New(errors.ErrCodeAINotConfigured, "review extraction unavailable")
	}
	insights, err := s.extractor.ExtractReviews(ctx, page)
	if err != nil {
		if _, ok := errors.AsRateLimit(err); ok {
			return nil, errors.Wrap(err, errors.ErrCodeAIRateLimited, "Rate limit reached. Please try again in a minute.")
		}
		return nil, errors.Wrap(err, errors.ErrCodeAIExtractionFailed, "Failed to extract review insights")
	}
	if insights == nil || insights.Confidence < reviewInsightsMinScore {
		return nil, errors.New(errors.ErrCodeReviewExtractionPoor, "Failed to extract review insights")
	}

	insights.Fingerprint = fingerprint
	insights.ProductURL = stored.ProductURL
	insights.AnalyzedAt = s.now().UTC()
	insights.Cached = false
	insights.Normalize()

	if s.insights != nil {
		if err := s.insights.SaveReviewInsights(ctx, fingerprint, insights); err != nil {
			log.Warn("review insights not cached", logging.Err(err))
		}
	}
	log.Info("review insights extracted",
		logging.String("sentiment", insights.OverallSentiment),
		logging.Int("reviews", insights.TotalReviewsAnalyzed))
	return insights, nil
}

func (s *reviewServiceImpl) Search(ctx context.Context, q domain.ReviewQuery) (*ReviewSearchResponse, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return nil, errors.InvalidParam("query is required")
	}
	if q.TopK == 0 {
		q.TopK = DefaultReviewTopK
	}
	if q.TopK < 1 || q.TopK > MaxReviewTopK {
		return nil, errors.InvalidParam("top_k must be between 1 and 50")
	}
	if q.MinRating < 0 || q.MinRating > 5 {
		return nil, errors.InvalidParam("min_rating must be between 1 and 5")
	}
	if q.Fingerprint != "" && !domain.IsFingerprint(q.Fingerprint) {
		return nil, errors.InvalidParam("invalid url hash")
	}
	if s.index == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "review search unavailable")
	}

	hits, err := s.index.SearchReviews(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearch, "review search failed")
	}
	results := make([]ReviewSearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, ReviewSearchResult{
			ID:         h.ID,
			URLHash:    h.Fingerprint,
			ReviewText: truncateRunes(h.Text, MaxReviewSnippetRunes),
			Rating:     h.Rating,
			Verified:   h.Verified,
			Similarity: h.Score,
		})
	}
	return &ReviewSearchResponse{Query: q.Query, Results: results, TotalResults: len(results)}, nil
}

func (s *reviewServiceImpl) Summary(ctx context.Context, fingerprint string) (*domain.ReviewSummary, error) {
	if !domain.IsFingerprint(fingerprint) {
		return nil, errors.InvalidParam("invalid url hash")
	}
	if s.index == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "review search unavailable")
	}
	summary, err := s.index.SummarizeReviews(ctx, fingerprint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearch, "review summary failed")
	}
	if summary == nil || summary.TotalReviews == 0 {
		return nil, errors.New(errors.ErrCodeReviewsNotFound, "No reviews found for this product")
	}
	return summary, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
