package substance

import (
	"fmt"
	"strings"
)

// MethodDatabaseMatching tags results produced purely by knowledge-base matching.
const MethodDatabaseMatching = "database_matching"

// DefaultSimilarityThreshold is the fuzzy-match cut-off used when none is configured.
const DefaultSimilarityThreshold = 0.75

const (
	confidenceSubstring = 0.9
	confidenceCAS       = 0.95

	// Aggregate confidence when nothing was flagged.
	confidenceNoMatch      = 0.7
	confidenceNoComponents = 0.3

	minComponentLength = 2
)

// MatchResult is the outcome of matching product components against a
// knowledge base.
type MatchResult struct {
	Allergens  []Detection `json:"allergens"`
	PFAS       []Detection `json:"pfas"`
	Confidence float64     `json:"confidence"`
	Method     string      `json:"method"`
	// Scanned counts components long enough to be compared.
	Scanned int `json:"scanned"`
}

// Detections adapts the result to the three-list shape. Matching never
// produces other concerns.
func (r MatchResult) Detections() Detections {
	return Detections{
		Allergens:     r.Allergens,
		PFAS:          r.PFAS,
		OtherConcerns: []Detection{},
	}
}

// Matcher compares ingredient and material strings with knowledge-base records.
// It is stateless apart from its threshold and safe for concurrent use.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a Matcher. A threshold outside (0,1] falls back to
// DefaultSimilarityThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the fuzzy-match cut-off in use.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match scans every component against every record. For a (component, record)
// pair the first rule that fires wins: CAS containment (PFAS only) at 0.95,
// case-insensitive substring either way at 0.9, then fuzzy ratio at or above
// the threshold with the ratio as confidence. Each list is then deduplicated
// by case-folded name keeping the highest confidence; on ties the first hit
// survives, so only its Source depends on component order.
func (m *Matcher) Match(components []string, kb *KnowledgeBase) MatchResult {
	if kb == nil {
		kb = EmptyKnowledgeBase()
	}

	var allergens, pfas []Detection
	scanned := 0
	for _, component := range components {
		if len([]rune(component)) < minComponentLength || strings.TrimSpace(component) == "" {
			continue
		}
		scanned++
		lc := strings.ToLower(component)

		for _, rec := range kb.allergens {
			conf, source, ok := m.compare(component, lc, rec, false)
			if !ok {
				continue
			}
			allergens = append(allergens, Detection{
				Name:          rec.Name,
				Severity:      severityOrDefault(rec.Severity),
				HealthEffects: orDefault(rec.HealthEffects, defaultAllergenHealthEffects),
				Source:        source,
				Confidence:    conf,
			})
		}

		for _, rec := range kb.pfas {
			conf, source, ok := m.compare(component, lc, rec, true)
			if !ok {
				continue
			}
			pfas = append(pfas, Detection{
				Name:          rec.Name,
				CASNumber:     rec.CASNumber,
				HealthEffects: orDefault(rec.HealthEffects, defaultPFASHealthEffects),
				Source:        source,
				Confidence:    conf,
			})
		}
	}

	allergens = Deduplicate(allergens)
	pfas = Deduplicate(pfas)

	return MatchResult{
		Allergens:  allergens,
		PFAS:       pfas,
		Confidence: aggregateConfidence(allergens, pfas, scanned),
		Method:     MethodDatabaseMatching,
		Scanned:    scanned,
	}
}

// MatchProduct matches ingredients followed by materials.
func (m *Matcher) MatchProduct(ingredients, materials []string, kb *KnowledgeBase) MatchResult {
	components := make([]string, 0, len(ingredients)+len(materials))
	components = append(components, ingredients...)
	components = append(components, materials...)
	return m.Match(components, kb)
}

func (m *Matcher) compare(component, lowerComponent string, rec Record, casEligible bool) (float64, string, bool) {
	if casEligible && rec.CASNumber != "" && strings.Contains(component, rec.CASNumber) {
		return confidenceCAS, fmt.Sprintf("CAS match in: %s", component), true
	}
	name := strings.ToLower(rec.Name)
	if strings.Contains(lowerComponent, name) || strings.Contains(name, lowerComponent) {
		return confidenceSubstring, fmt.Sprintf("Found in: %s", component), true
	}
	if ratio := Ratio(component, rec.Name); ratio >= m.threshold {
		return ClampConfidence(ratio), fmt.Sprintf("Similar to: %s", component), true
	}
	return 0, "", false
}

// Deduplicate keeps one detection per case-folded name, the one with the
// highest confidence, in first-seen order.
func Deduplicate(ds []Detection) []Detection {
	out := make([]Detection, 0, len(ds))
	pos := make(map[string]int, len(ds))
	for _, d := range ds {
		k := d.Key()
		if i, seen := pos[k]; seen {
			if d.Confidence > out[i].Confidence {
				out[i] = d
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, d)
	}
	return out
}

func aggregateConfidence(allergens, pfas []Detection, scanned int) float64 {
	n := len(allergens) + len(pfas)
	if n == 0 {
		if scanned > 0 {
			return confidenceNoMatch
		}
		return confidenceNoComponents
	}
	sum := 0.0
	for _, d := range allergens {
		sum += d.Confidence
	}
	for _, d := range pfas {
		sum += d.Confidence
	}
	return ClampConfidence(sum / float64(n))
}

func severityOrDefault(s Severity) Severity {
	s = s.Normalize()
	if s == "" {
		return defaultAllergenSeverity
	}
	return s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
