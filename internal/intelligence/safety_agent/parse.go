package safety_agent

import (
	"encoding/json"
	"math"
	"strings"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Confidence values assigned when the model output cannot be used as is.
const (
	malformedConfidence  = 0.1
	missingConfidence    = 0.0
	outOfRangeConfidence = 0.5
	// defaultConfidence applies when the model omits the field.
	defaultConfidence = 0.8
	// defaultDetectionConfidence applies to a detection without a confidence.
	defaultDetectionConfidence = 1.0
)

const rawPreviewRunes = 500

// ErrNoJSON is returned by ExtractJSON when the text holds no JSON object.
var ErrNoJSON = errors.New(errors.ErrCodeAIMalformedOutput, "no JSON object found in model output")

// ExtractJSON returns the JSON object embedded in text. It accepts a bare
// object, a ```json fenced block, a plain ``` fenced block, or an object
// surrounded by prose.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", ErrNoJSON
	}
	if i := strings.Index(s, "```json"); i >= 0 {
		return fenced(s[i+len("```json"):])
	}
	if i := strings.Index(s, "```"); i >= 0 {
		return fenced(s[i+3:])
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

func fenced(rest string) (string, error) {
	end := strings.Index(rest, "```")
	if end < 0 {
		end = len(rest)
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", ErrNoJSON
	}
	return body, nil
}

// decode extracts and unmarshals the JSON object in text into v.
func decode(text string, v interface{}) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return errors.Wrap(err, errors.ErrCodeAIMalformedOutput, "model output is not valid JSON")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Safety analysis
// ---------------------------------------------------------------------------

type detectionPayload struct {
	Name          string   `json:"name"`
	Severity      string   `json:"severity"`
	CASNumber     string   `json:"cas_number"`
	Category      string   `json:"category"`
	Source        string   `json:"source"`
	BodyEffects   string   `json:"body_effects"`
	HealthEffects string   `json:"health_effects"`
	Description   string   `json:"description"`
	Confidence    *float64 `json:"confidence"`
}

func (p detectionPayload) detection() substance.Detection {
	d := substance.Detection{
		Name:          strings.TrimSpace(p.Name),
		Severity:      substance.Severity(p.Severity).Normalize(),
		CASNumber:     strings.TrimSpace(p.CASNumber),
		Category:      substance.Category(strings.ToLower(strings.TrimSpace(p.Category))),
		Source:        p.Source,
		HealthEffects: p.HealthEffects,
		Description:   p.Description,
		Confidence:    defaultDetectionConfidence,
	}
	if d.HealthEffects == "" {
		d.HealthEffects = p.BodyEffects
	}
	if p.Confidence != nil {
		d.Confidence = substance.ClampConfidence(*p.Confidence)
	}
	return d
}

type analysisPayload struct {
	ProductName       string             `json:"product_name"`
	Brand             string             `json:"brand"`
	Retailer          string             `json:"retailer"`
	Category          string             `json:"category"`
	Ingredients       []string           `json:"ingredients"`
	AllergensDetected []detectionPayload `json:"allergens_detected"`
	PFASDetected      []detectionPayload `json:"pfas_detected"`
	OtherConcerns     []detectionPayload `json:"other_concerns"`
	Confidence        *float64           `json:"confidence"`
}

func detections(ps []detectionPayload) []substance.Detection {
	out := make([]substance.Detection, 0, len(ps))
	for _, p := range ps {
		d := p.detection()
		if d.Name == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ParseAnalysis converts model output into an AIAnalysis. It never fails:
// malformed output yields a partial result at confidence 0.1 carrying an
// error annotation, and empty output yields confidence 0.0.
func ParseAnalysis(text string) *app.AIAnalysis {
	if strings.TrimSpace(text) == "" {
		return unknownAnalysis(missingConfidence, "No text content in AI response")
	}
	var p analysisPayload
	if err := decode(text, &p); err != nil {
		return unknownAnalysis(malformedConfidence, "Failed to parse JSON: "+err.Error())
	}

	a := &app.AIAnalysis{
		ProductName: strings.TrimSpace(p.ProductName),
		Brand:       strings.TrimSpace(p.Brand),
		Retailer:    strings.TrimSpace(p.Retailer),
		Category:    strings.TrimSpace(p.Category),
		Ingredients: compact(p.Ingredients),
		Detections: substance.Detections{
			Allergens:     detections(p.AllergensDetected),
			PFAS:          detections(p.PFASDetected),
			OtherConcerns: detections(p.OtherConcerns),
		},
		Confidence: normalizeConfidence(p.Confidence),
	}
	return a
}

func unknownAnalysis(confidence float64, msg string) *app.AIAnalysis {
	return &app.AIAnalysis{
		ProductName: analysis.UnknownValue,
		Brand:       analysis.UnknownValue,
		Retailer:    analysis.UnknownValue,
		Ingredients: []string{},
		Detections: substance.Detections{
			Allergens:     []substance.Detection{},
			PFAS:          []substance.Detection{},
			OtherConcerns: []substance.Detection{},
		},
		Confidence: confidence,
		Error:      msg,
	}
}

// normalizeConfidence applies the default for a missing value and 0.5 for a
// value outside [0,1].
func normalizeConfidence(c *float64) float64 {
	if c == nil {
		return defaultConfidence
	}
	if math.IsNaN(*c) || *c < 0 || *c > 1 {
		return outOfRangeConfidence
	}
	return *c
}

// ---------------------------------------------------------------------------
// Product extraction
// ---------------------------------------------------------------------------

type productPayload struct {
	ProductName    string                   `json:"product_name"`
	Brand          string                   `json:"brand"`
	Price          string                   `json:"price"`
	Availability   string                   `json:"availability"`
	Category       string                   `json:"category"`
	Ingredients    []string                 `json:"ingredients"`
	Materials      []string                 `json:"materials"`
	Features       []string                 `json:"features"`
	Description    string                   `json:"description"`
	Specifications []analysis.Specification `json:"specifications"`
	Warnings       []string                 `json:"warnings"`
	Confidence     *float64                 `json:"confidence"`
}

// ParseProduct converts extraction output into a Product. Unusable output
// yields a zero-confidence product carrying the reason.
func ParseProduct(text string) *analysis.Product {
	if strings.TrimSpace(text) == "" {
		return failedProduct("No content in response")
	}
	var p productPayload
	if err := decode(text, &p); err != nil {
		return failedProduct("JSON parse error")
	}
	prod := &analysis.Product{
		ProductName:    strings.TrimSpace(p.ProductName),
		Brand:          strings.TrimSpace(p.Brand),
		Price:          strings.TrimSpace(p.Price),
		Availability:   strings.TrimSpace(p.Availability),
		Category:       strings.TrimSpace(p.Category),
		Ingredients:    compact(p.Ingredients),
		Materials:      compact(p.Materials),
		Features:       compact(p.Features),
		Description:    strings.TrimSpace(p.Description),
		Specifications: p.Specifications,
		Warnings:       compact(p.Warnings),
		Confidence:     normalizeConfidence(p.Confidence),
	}
	prod.Normalize()
	return prod
}

func failedProduct(msg string) *analysis.Product {
	p := &analysis.Product{Error: msg}
	p.Normalize()
	return p
}

// compact trims entries and drops empty ones.
func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Review insights
// ---------------------------------------------------------------------------

type insightsPayload struct {
	OverallSentiment      string                     `json:"overall_sentiment"`
	TotalReviewsAnalyzed  int                        `json:"total_reviews_analyzed"`
	RatingDistribution    map[string]int             `json:"rating_distribution"`
	CommonComplaints      []string                   `json:"common_complaints"`
	HealthConcerns        []analysis.HealthConcern   `json:"health_concerns"`
	PositiveFeedback      []string                   `json:"positive_feedback"`
	QuestionsConcerns     []analysis.QuestionConcern `json:"questions_concerns"`
	VerifiedPurchaseRatio float64                    `json:"verified_purchase_ratio"`
	Confidence            *float64                   `json:"confidence"`
}

// ParseReviewInsights converts review extraction output into insights.
// Unusable output is an error because no partial insight is worth storing.
func ParseReviewInsights(text string) (*analysis.ReviewInsights, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrCodeAIMalformedOutput, "no content in response")
	}
	var p insightsPayload
	if err := decode(text, &p); err != nil {
		return nil, err
	}
	ri := &analysis.ReviewInsights{
		OverallSentiment:      strings.ToLower(strings.TrimSpace(p.OverallSentiment)),
		TotalReviewsAnalyzed:  p.TotalReviewsAnalyzed,
		RatingDistribution:    p.RatingDistribution,
		CommonComplaints:      p.CommonComplaints,
		HealthConcerns:        p.HealthConcerns,
		PositiveFeedback:      p.PositiveFeedback,
		QuestionsConcerns:     p.QuestionsConcerns,
		VerifiedPurchaseRatio: substance.ClampConfidence(p.VerifiedPurchaseRatio),
		Confidence:            normalizeConfidence(p.Confidence),
	}
	if ri.TotalReviewsAnalyzed < 0 {
		ri.TotalReviewsAnalyzed = 0
	}
	ri.Normalize()
	return ri, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= rawPreviewRunes {
		return s
	}
	return string(r[:rawPreviewRunes])
}
