// Package analysis holds the product-analysis aggregate: the extracted
// product, the stored result keyed by URL fingerprint, and the contracts of
// the stores that persist them.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/turtacn/SafeScan/internal/domain/scoring"
	"github.com/turtacn/SafeScan/internal/domain/substance"
)

// Fingerprint is the lower-hex SHA-256 of the URL bytes. The URL is hashed as
// given; callers canonicalise beforehand if they need to.
func Fingerprint(productURL string) string {
	sum := sha256.Sum256([]byte(productURL))
	return hex.EncodeToString(sum[:])
}

// IsFingerprint reports whether s looks like a Fingerprint output.
func IsFingerprint(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil && strings.ToLower(s) == s
}

// Method records which path produced a result.
type Method string

const (
	// MethodAIEnriched: local extraction, database matching and AI analysis merged.
	MethodAIEnriched Method = "ai_enriched"
	// MethodDatabaseOnly: AI enrichment failed, database matches only.
	MethodDatabaseOnly Method = "database_only"
	// MethodAIFetch: the AI service fetched and analysed the URL itself.
	MethodAIFetch Method = "ai_fetch"
)

// Notes attached to degraded results.
const (
	NoteRateLimited   = "Rate limit reached - showing database matches only"
	NoteAIUnavailable = "AI analysis unavailable - showing database matches only"
)

// Defaults for identity fields the extraction left empty.
const (
	UnknownProduct = "Unknown Product"
	UnknownBrand   = "Unknown"
	UnknownValue   = "Unknown"
)

// Specification is one key/value row from a product's spec table.
type Specification struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Product is the structured data extracted from a product page.
type Product struct {
	ProductName    string          `json:"product_name"`
	Brand          string          `json:"brand"`
	Retailer       string          `json:"retailer,omitempty"`
	Price          string          `json:"price,omitempty"`
	Availability   string          `json:"availability,omitempty"`
	Category       string          `json:"category,omitempty"`
	Ingredients    []string        `json:"ingredients"`
	Materials      []string        `json:"materials"`
	Features       []string        `json:"features"`
	Description    string          `json:"description,omitempty"`
	Specifications []Specification `json:"specifications"`
	Warnings       []string        `json:"warnings"`
	Confidence     float64         `json:"confidence"`
	Error          string          `json:"error,omitempty"`
	Usage          Usage           `json:"-"`
}

// Normalize fills nil lists and clamps confidence.
func (p *Product) Normalize() {
	if p.Ingredients == nil {
		p.Ingredients = []string{}
	}
	if p.Materials == nil {
		p.Materials = []string{}
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	if p.Specifications == nil {
		p.Specifications = []Specification{}
	}
	if p.Warnings == nil {
		p.Warnings = []string{}
	}
	p.Confidence = substance.ClampConfidence(p.Confidence)
}

// Usage sums AI token consumption across the calls of one analysis.
type Usage struct {
	InputTokens  int `json:"total_input_tokens"`
	OutputTokens int `json:"total_output_tokens"`
	Calls        int `json:"api_call_count"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Calls += other.Calls
}

// Total is input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Result is one completed analysis, stored per fingerprint.
type Result struct {
	ProductURL  string   `json:"product_url"`
	ProductName string   `json:"product_name"`
	Brand       string   `json:"brand"`
	Retailer    string   `json:"retailer"`
	Category    string   `json:"category,omitempty"`
	Ingredients []string `json:"ingredients"`
	substance.Detections
	Confidence   float64   `json:"confidence"`
	HarmScore    int       `json:"harm_score"`
	OverallScore int       `json:"overall_score"`
	AnalyzedAt   time.Time `json:"analyzed_at"`
	Fingerprint  string    `json:"url_fingerprint"`
	Method       Method    `json:"method,omitempty"`
	Note         string    `json:"note,omitempty"`
	Error        string    `json:"error,omitempty"`
	Stages       []string  `json:"stages,omitempty"`
	Usage        Usage     `json:"usage"`
}

// SetHarm stores harm and its complement.
func (r *Result) SetHarm(harm int) {
	r.HarmScore = harm
	r.OverallScore = scoring.OverallFromHarm(harm)
}

// RiskLevel is the five-step risk label for the harm score.
func (r *Result) RiskLevel() string { return scoring.RiskLevel(r.HarmScore) }

// DisplayRisk is the four-step card label for the harm score.
func (r *Result) DisplayRisk() string { return scoring.DisplayRisk(r.HarmScore) }

// Age returns how long ago the result was produced.
func (r *Result) Age(now time.Time) time.Duration {
	if r.AnalyzedAt.IsZero() {
		return 0
	}
	return now.Sub(r.AnalyzedAt)
}

// ConfidencePercent is the stored integer form of Confidence.
func ConfidencePercent(c float64) int {
	return int(substance.ClampConfidence(c)*100 + 0.5)
}

// ConfidenceFromPercent converts the stored integer form back.
func ConfidenceFromPercent(p int) float64 {
	return substance.ClampConfidence(float64(p) / 100)
}
