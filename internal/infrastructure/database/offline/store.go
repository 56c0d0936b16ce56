// Package offline provides the stores wired when SafeScan runs without a
// database. Reads find nothing and writes are discarded.
package offline

import (
	"context"
	"time"

	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Store satisfies every durable store contract without persistence.
type Store struct{}

// New returns an offline Store.
func New() *Store { return &Store{} }

var (
	_ substance.KnowledgeBaseStore = (*Store)(nil)
	_ analysis.AnalysisStore       = (*Store)(nil)
	_ analysis.ReviewInsightsStore = (*Store)(nil)
	_ analysis.SearchLog           = (*Store)(nil)
	_ analysis.ValidationLogReader = (*Store)(nil)
)

func unavailable() error {
	return errors.New(errors.ErrCodeServiceUnavailable, "Database unavailable")
}

// GetAllAllergens returns no records; analyses proceed with an empty
// knowledge base.
func (*Store) GetAllAllergens(context.Context) ([]substance.Record, error) { return nil, nil }

// GetAllPFAS returns no records.
func (*Store) GetAllPFAS(context.Context) ([]substance.Record, error) { return nil, nil }

// Get always reports the store as unavailable.
func (*Store) Get(context.Context, string) (*analysis.Result, error) { return nil, unavailable() }

// Upsert discards the result.
func (*Store) Upsert(context.Context, string, string, *analysis.Result) error { return nil }

func (*Store) GetReviewInsights(context.Context, string) (*analysis.ReviewInsights, error) {
	return nil, unavailable()
}

func (*Store) SaveReviewInsights(context.Context, string, *analysis.ReviewInsights) error {
	return nil
}

func (*Store) LogSearch(context.Context, string, string, time.Time) error { return nil }

func (*Store) ListValidationLogs(context.Context, analysis.ValidationLogQuery) ([]*analysis.ValidationRecord, error) {
	return nil, unavailable()
}

func (*Store) ValidationStats(context.Context, int) (*analysis.ValidationStats, error) {
	return nil, unavailable()
}

func (*Store) FlaggedSubstances(context.Context, int) ([]analysis.FlaggedSubstance, error) {
	return nil, unavailable()
}
