// Package scoring turns detected substances into a 0–100 harm score. The
// calculation is pure and reproducible: identical input always yields the
// identical integer.
package scoring

import (
	"strings"

	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
)

const (
	pfasPoints = 40.0

	// defaultSeverityPoints applies to unknown or missing severities.
	defaultSeverityPoints = 8.0

	lowConfidenceCutoff = 0.7
	lowConfidenceWeight = 20.0
	detectionFloor      = 25.0
	maxHarm             = 100
	keywordMultiplier   = 1.3
	neutralMultiplier   = 1.0
)

var severityPoints = map[substance.Severity]float64{
	substance.SeverityLow:      8,
	substance.SeverityModerate: 18,
	substance.SeverityHigh:     35,
	substance.SeveritySevere:   50,
}

var categoryPoints = map[substance.Category]float64{
	substance.CategoryUnderInvestigation: 5,
	substance.CategoryCarcinogen:         40,
	substance.CategoryRegulatoryAction:   30,
	substance.CategoryHeavyMetal:         25,
	substance.CategoryEndocrineDisruptor: 25,
	substance.CategoryOther:              15,
}

type productMultiplier struct {
	term   string
	factor float64
}

// productMultipliers is checked in order; the first term found in the product
// name or category wins.
var productMultipliers = []productMultiplier{
	{"pesticide", 1.4},
	{"insecticide", 1.4},
	{"herbicide", 1.4},
	{"household_cleaner", 1.2},
	{"disinfectant", 1.2},
	{"chemical_product", 1.15},
}

var hazardKeywords = []string{
	"killer", "spray", "poison", "toxic", "bleach", "acid", "lye", "caustic", "corrosive",
}

// Input is everything the score depends on.
type Input struct {
	Detections          substance.Detections
	AggregateConfidence float64
	ProductName         string
	Category            string
}

// Breakdown records each contribution for debug logging and API clients.
type Breakdown struct {
	Allergens         float64 `json:"allergens"`
	PFAS              float64 `json:"pfas"`
	OtherConcerns     float64 `json:"other_concerns"`
	Multiplier        float64 `json:"category_multiplier"`
	ConfidencePenalty float64 `json:"confidence_penalty"`
	FloorApplied      bool    `json:"floor_applied"`
}

// Result is the harm score and how it was reached.
type Result struct {
	HarmScore int       `json:"harm_score"`
	Breakdown Breakdown `json:"breakdown"`
}

// OverallScore is the safety score, 100 minus harm.
func (r Result) OverallScore() int {
	return OverallFromHarm(r.HarmScore)
}

// OverallFromHarm converts a harm score to a safety score.
func OverallFromHarm(harm int) int {
	return maxHarm - harm
}

// Calculate computes the harm score:
//
//  1. allergens: severity points × confidence
//  2. PFAS: 40 × confidence
//  3. other concerns: category points (or severity points for an unknown
//     category) × confidence
//  4. × one product multiplier (table order, then hazard keywords)
//  5. + (0.7 − confidence) × 20 when aggregate confidence is below 0.7
//  6. raised to 25 when anything was detected
//  7. truncated, capped at 100
func Calculate(in Input) Result {
	var b Breakdown
	d := in.Detections

	for _, a := range d.Allergens {
		b.Allergens += pointsForSeverity(a.Severity) * substance.ClampConfidence(a.Confidence)
	}
	for _, p := range d.PFAS {
		b.PFAS += pfasPoints * substance.ClampConfidence(p.Confidence)
	}
	for _, o := range d.OtherConcerns {
		b.OtherConcerns += pointsForConcern(o) * substance.ClampConfidence(o.Confidence)
	}

	total := b.Allergens + b.PFAS + b.OtherConcerns

	b.Multiplier = ProductMultiplier(in.ProductName, in.Category)
	total *= b.Multiplier

	conf := substance.ClampConfidence(in.AggregateConfidence)
	if conf < lowConfidenceCutoff {
		b.ConfidencePenalty = (lowConfidenceCutoff - conf) * lowConfidenceWeight
		total += b.ConfidencePenalty
	}

	if !d.IsEmpty() && total < detectionFloor {
		total = detectionFloor
		b.FloorApplied = true
	}

	harm := int(total)
	if harm > maxHarm {
		harm = maxHarm
	}
	if harm < 0 {
		harm = 0
	}
	return Result{HarmScore: harm, Breakdown: b}
}

// ProductMultiplier returns the single multiplier for a product.
func ProductMultiplier(productName, category string) float64 {
	name := strings.ToLower(productName)
	cat := strings.ToLower(category)
	for _, m := range productMultipliers {
		if strings.Contains(name, m.term) || strings.Contains(cat, m.term) {
			return m.factor
		}
	}
	for _, kw := range hazardKeywords {
		if strings.Contains(name, kw) {
			return keywordMultiplier
		}
	}
	return neutralMultiplier
}

func pointsForSeverity(s substance.Severity) float64 {
	if p, ok := severityPoints[s.Normalize()]; ok {
		return p
	}
	return defaultSeverityPoints
}

func pointsForConcern(d substance.Detection) float64 {
	cat := d.Category
	if cat == "" {
		cat = substance.CategoryOther
	}
	if p, ok := categoryPoints[cat]; ok {
		return p
	}
	return pointsForSeverity(d.Severity)
}

// Calculator wraps Calculate with debug logging of the breakdown.
type Calculator struct {
	logger logging.Logger
}

// NewCalculator returns a Calculator logging through logger.
func NewCalculator(logger logging.Logger) *Calculator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Calculator{logger: logger}
}

// Score calculates and logs the breakdown at debug level.
func (c *Calculator) Score(in Input) Result {
	res := Calculate(in)
	c.logger.Debug("harm score calculated",
		logging.Float64("allergens", res.Breakdown.Allergens),
		logging.Float64("pfas", res.Breakdown.PFAS),
		logging.Float64("other_concerns", res.Breakdown.OtherConcerns),
		logging.Float64("multiplier", res.Breakdown.Multiplier),
		logging.Float64("confidence_penalty", res.Breakdown.ConfidencePenalty),
		logging.Bool("floor_applied", res.Breakdown.FloorApplied),
		logging.Int("harm_score", res.HarmScore),
	)
	return res
}
