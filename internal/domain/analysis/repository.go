package analysis

import (
	"context"
	"time"
)

// AnalysisStore persists results by fingerprint. Get returns an error
// satisfying errors.IsNotFound when nothing is stored. Upsert overwrites; the
// last writer wins.
type AnalysisStore interface {
	Get(ctx context.Context, fingerprint string) (*Result, error)
	Upsert(ctx context.Context, fingerprint, productURL string, result *Result) error
}

// ReviewInsightsStore persists review insights next to the analysis.
type ReviewInsightsStore interface {
	GetReviewInsights(ctx context.Context, fingerprint string) (*ReviewInsights, error)
	SaveReviewInsights(ctx context.Context, fingerprint string, insights *ReviewInsights) error
}

// SearchLog records which products were looked up.
type SearchLog interface {
	LogSearch(ctx context.Context, productURL, fingerprint string, at time.Time) error
}
