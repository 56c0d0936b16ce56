// Package substance models hazardous-substance detections and the curated
// knowledge base they are matched against. Everything here is pure: matching,
// merging and normalisation take no I/O and hold no global state.
package substance

import (
	"math"
	"strings"
)

// Kind distinguishes the three detection lists.
type Kind string

const (
	KindAllergen     Kind = "allergen"
	KindPFAS         Kind = "pfas"
	KindOtherConcern Kind = "other_concern"
)

// Severity grades an allergen or other concern. PFAS carry none.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeveritySevere   Severity = "severe"
)

// IsValid reports whether s is one of the four known severities.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityModerate, SeverityHigh, SeveritySevere:
		return true
	default:
		return false
	}
}

// Normalize lower-cases and trims s without validating it.
func (s Severity) Normalize() Severity {
	return Severity(strings.ToLower(strings.TrimSpace(string(s))))
}

// Category classifies an other-concern detection.
type Category string

const (
	CategoryUnderInvestigation Category = "under_investigation"
	CategoryCarcinogen         Category = "carcinogen"
	CategoryRegulatoryAction   Category = "regulatory_action"
	CategoryHeavyMetal         Category = "heavy_metal"
	CategoryEndocrineDisruptor Category = "endocrine_disruptor"
	CategoryOther              Category = "other"
)

// IsValid reports whether c is a known other-concern category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryUnderInvestigation, CategoryCarcinogen, CategoryRegulatoryAction,
		CategoryHeavyMetal, CategoryEndocrineDisruptor, CategoryOther:
		return true
	default:
		return false
	}
}

// Detection is a single flagged substance. Which fields are meaningful depends
// on the list it sits in: Severity for allergens and other concerns, CASNumber
// for PFAS, Category and Description for other concerns.
type Detection struct {
	Name          string   `json:"name"`
	Severity      Severity `json:"severity,omitempty"`
	CASNumber     string   `json:"cas_number,omitempty"`
	Category      Category `json:"category,omitempty"`
	Source        string   `json:"source,omitempty"`
	HealthEffects string   `json:"health_effects,omitempty"`
	Description   string   `json:"description,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// Key is the case-folded name used for duplicate detection.
func (d Detection) Key() string {
	return NameKey(d.Name)
}

// NameKey case-folds and trims a substance name.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ClampConfidence bounds c to [0,1]. NaN maps to 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Clamp returns a copy of each detection with its confidence bounded.
func Clamp(ds []Detection) []Detection {
	out := make([]Detection, len(ds))
	for i, d := range ds {
		d.Confidence = ClampConfidence(d.Confidence)
		out[i] = d
	}
	return out
}

// Detections groups the three lists produced by an analysis.
type Detections struct {
	Allergens     []Detection `json:"allergens"`
	PFAS          []Detection `json:"pfas"`
	OtherConcerns []Detection `json:"other_concerns"`
}

// Total counts every detection across the three lists.
func (d Detections) Total() int {
	return len(d.Allergens) + len(d.PFAS) + len(d.OtherConcerns)
}

// IsEmpty reports whether no substance was flagged.
func (d Detections) IsEmpty() bool {
	return d.Total() == 0
}

// Normalized returns a copy with nil lists replaced by empty ones and every
// confidence clamped.
func (d Detections) Normalized() Detections {
	return Detections{
		Allergens:     Clamp(d.Allergens),
		PFAS:          Clamp(d.PFAS),
		OtherConcerns: Clamp(d.OtherConcerns),
	}
}
