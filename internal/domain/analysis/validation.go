package analysis

import (
	"context"
	"time"
)

// Validation record types.
const (
	LogInvalidAllergen       = "invalid_allergen"
	LogInvalidPFAS           = "invalid_pfas"
	LogReclassifiedSubstance = "reclassified_substance"
	LogValidationSummary     = "validation_summary"
)

// ValidationRecord is one audit entry about an AI classification that the
// knowledge base does not confirm, or the per-analysis summary.
type ValidationRecord struct {
	ID            string                 `json:"id"`
	LogType       string                 `json:"log_type"`
	ProductURL    string                 `json:"product_url"`
	ProductName   string                 `json:"product_name"`
	SubstanceName string                 `json:"substance_name,omitempty"`
	Severity      string                 `json:"severity,omitempty"`
	CASNumber     string                 `json:"cas_number,omitempty"`
	Category      string                 `json:"category,omitempty"`
	Confidence    float64                `json:"confidence,omitempty"`
	Source        string                 `json:"source,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// ValidationSink receives audit records. Callers log failures and continue.
type ValidationSink interface {
	Append(ctx context.Context, record *ValidationRecord) error
}

// ValidationLogQuery filters the audit log. Zero values mean no filter.
type ValidationLogQuery struct {
	Start      time.Time
	End        time.Time
	ProductURL string
	LogType    string
	Limit      int
	Offset     int
}

// ValidationStats aggregates summary records over a window.
type ValidationStats struct {
	TotalProductsAnalyzed int                  `json:"total_products_analyzed"`
	TotalInvalidAllergens int                  `json:"total_invalid_allergens"`
	TotalInvalidPFAS      int                  `json:"total_invalid_pfas"`
	AccuracyRate          float64              `json:"accuracy_rate"`
	MostProblematic       []ProblematicProduct `json:"most_problematic_products"`
	DaysAnalyzed          int                  `json:"days_analyzed"`
}

// ProblematicProduct is a product with many rejected classifications.
type ProblematicProduct struct {
	ProductURL   string `json:"product_url"`
	ProductName  string `json:"product_name"`
	InvalidCount int    `json:"invalid_count"`
}

// FlaggedSubstance counts how often a substance was rejected.
type FlaggedSubstance struct {
	SubstanceName string    `json:"substance_name"`
	LogType       string    `json:"log_type"`
	TimesFlagged  int       `json:"times_flagged"`
	LastFlagged   time.Time `json:"last_flagged"`
}

// ValidationLogReader serves the admin views over the audit log.
type ValidationLogReader interface {
	ListValidationLogs(ctx context.Context, q ValidationLogQuery) ([]*ValidationRecord, error)
	ValidationStats(ctx context.Context, days int) (*ValidationStats, error)
	FlaggedSubstances(ctx context.Context, limit int) ([]FlaggedSubstance, error)
}
