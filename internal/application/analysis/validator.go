package analysis

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
)

const (
	reclassifiedMaxConfidence = 0.6
	reclassifiedPrefix        = "Potential irritant (not a priority allergen): "
)

// ProductRef identifies the product in audit records.
type ProductRef struct {
	URL  string
	Name string
}

// Validator checks AI classifications against the knowledge base. In the
// default log-only mode the detections pass through untouched; in strict mode
// unconfirmed allergens become under-investigation concerns and unconfirmed
// PFAS are dropped.
type Validator struct {
	sink    domain.ValidationSink
	logger  logging.Logger
	metrics Metrics
	strict  bool
	now     func() time.Time
}

// NewValidator creates a Validator. sink and metrics may be nil.
func NewValidator(sink domain.ValidationSink, logger logging.Logger, metrics Metrics, strict bool) *Validator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Validator{
		sink:    sink,
		logger:  logger.Named("validator"),
		metrics: metrics,
		strict:  strict,
		now:     time.Now,
	}
}

// Strict reports whether invalid detections are rewritten.
func (v *Validator) Strict() bool { return v.strict }

// Validate audits d against kb and returns the detections to score.
func (v *Validator) Validate(ctx context.Context, d substance.Detections, kb *substance.KnowledgeBase, product ProductRef) substance.Detections {
	if kb == nil {
		kb = substance.EmptyKnowledgeBase()
	}
	// An empty knowledge base still gets a full audit, but strict mode must
	// not strip every detection because the tables could not be loaded.
	emptyKB := kb.IsEmpty()
	if emptyKB {
		v.logger.Warn("knowledge base empty, auditing without filtering", logging.String("product_url", product.URL))
	}

	out := substance.Detections{
		Allergens:     make([]substance.Detection, 0, len(d.Allergens)),
		PFAS:          make([]substance.Detection, 0, len(d.PFAS)),
		OtherConcerns: append([]substance.Detection{}, d.OtherConcerns...),
	}

	validAllergens, invalidAllergens := 0, 0
	for _, a := range d.Allergens {
		if kb.KnowsAllergen(a.Name) {
			validAllergens++
			out.Allergens = append(out.Allergens, a)
			continue
		}
		invalidAllergens++
		v.logger.Warn("allergen not in knowledge base",
			logging.String("substance", a.Name),
			logging.String("severity", string(a.Severity)),
			logging.Float64("confidence", a.Confidence),
			logging.String("product_name", product.Name))
		v.emit(ctx, &domain.ValidationRecord{
			LogType:       domain.LogInvalidAllergen,
			ProductURL:    product.URL,
			ProductName:   product.Name,
			SubstanceName: a.Name,
			Severity:      string(a.Severity),
			Confidence:    a.Confidence,
			Source:        a.Source,
		})
		if !v.strict {
			out.Allergens = append(out.Allergens, a)
			continue
		}
		out.OtherConcerns = append(out.OtherConcerns, reclassify(a))
		v.emit(ctx, &domain.ValidationRecord{
			LogType:       domain.LogReclassifiedSubstance,
			ProductURL:    product.URL,
			ProductName:   product.Name,
			SubstanceName: a.Name,
			Category:      string(substance.CategoryUnderInvestigation),
			Details: map[string]interface{}{
				"original_category": string(substance.KindAllergen),
				"new_category":      string(substance.CategoryUnderInvestigation),
				"reason":            "not a priority allergen",
			},
		})
	}

	validPFAS, invalidPFAS := 0, 0
	for _, p := range d.PFAS {
		if kb.KnowsPFAS(p.Name, strings.TrimSpace(p.CASNumber)) {
			validPFAS++
			out.PFAS = append(out.PFAS, p)
			continue
		}
		invalidPFAS++
		v.logger.Warn("PFAS not in knowledge base",
			logging.String("substance", p.Name),
			logging.String("cas_number", p.CASNumber),
			logging.Float64("confidence", p.Confidence),
			logging.String("product_name", product.Name))
		v.emit(ctx, &domain.ValidationRecord{
			LogType:       domain.LogInvalidPFAS,
			ProductURL:    product.URL,
			ProductName:   product.Name,
			SubstanceName: p.Name,
			CASNumber:     p.CASNumber,
			Confidence:    p.Confidence,
			Source:        p.Source,
		})
		if !v.strict {
			out.PFAS = append(out.PFAS, p)
		}
	}

	v.metrics.IncValidationInvalid(string(substance.KindAllergen), invalidAllergens)
	v.metrics.IncValidationInvalid(string(substance.KindPFAS), invalidPFAS)
	v.emit(ctx, &domain.ValidationRecord{
		LogType:     domain.LogValidationSummary,
		ProductURL:  product.URL,
		ProductName: product.Name,
		Details: map[string]interface{}{
			"allergens": summaryDetails(len(d.Allergens), validAllergens, invalidAllergens),
			"pfas":      summaryDetails(len(d.PFAS), validPFAS, invalidPFAS),
			"strict":    v.strict,
		},
	})

	fields := []logging.Field{
		logging.String("product_name", product.Name),
		logging.Int("allergens_valid", validAllergens),
		logging.Int("allergens_total", len(d.Allergens)),
		logging.Int("pfas_valid", validPFAS),
		logging.Int("pfas_total", len(d.PFAS)),
	}
	if invalidAllergens > 0 || invalidPFAS > 0 {
		v.logger.Warn("validation summary", fields...)
	} else {
		v.logger.Info("all substances validated", fields...)
	}

	if !v.strict || emptyKB {
		return d
	}
	return out
}

func (v *Validator) emit(ctx context.Context, rec *domain.ValidationRecord) {
	if v.sink == nil {
		return
	}
	rec.ID = uuid.NewString()
	rec.Timestamp = v.now().UTC()
	if err := v.sink.Append(ctx, rec); err != nil {
		v.logger.Warn("validation record not stored",
			logging.String("log_type", rec.LogType),
			logging.Err(err))
	}
}

func reclassify(a substance.Detection) substance.Detection {
	return substance.Detection{
		Name:          a.Name,
		Severity:      substance.SeverityLow,
		Category:      substance.CategoryUnderInvestigation,
		Source:        a.Source,
		HealthEffects: a.HealthEffects,
		Description:   reclassifiedPrefix + a.Source,
		Confidence:    math.Min(a.Confidence, reclassifiedMaxConfidence),
	}
}

// Accuracy is valid/total as a percentage, 100 when total is zero.
func Accuracy(total, valid int) float64 {
	if total == 0 {
		return 100
	}
	return float64(valid) / float64(total) * 100
}

func summaryDetails(total, valid, invalid int) map[string]interface{} {
	return map[string]interface{}{
		"total":    total,
		"valid":    valid,
		"invalid":  invalid,
		"accuracy": Accuracy(total, valid),
	}
}
