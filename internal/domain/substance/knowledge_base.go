package substance

import (
	"regexp"
	"strings"
)

const (
	defaultAllergenSeverity      = SeverityModerate
	defaultAllergenHealthEffects = "Potential allergic reactions"
	defaultPFASHealthEffects     = "Forever chemicals - potential health risks"
)

// Record is one knowledge-base entry, either an allergen or a PFAS compound.
type Record struct {
	Name          string   `json:"name"`
	Synonyms      []string `json:"synonyms,omitempty"`
	Severity      Severity `json:"severity,omitempty"`
	CASNumber     string   `json:"cas_number,omitempty"`
	HealthEffects string   `json:"health_effects,omitempty"`
}

// KnowledgeBase is the immutable reference set for one analysis. Build it with
// NewKnowledgeBase so the lookup indexes are populated.
type KnowledgeBase struct {
	allergens []Record
	pfas      []Record

	allergenIdx map[string]struct{}
	pfasIdx     map[string]struct{}
}

// NewKnowledgeBase copies the records, drops nameless ones and builds the
// case-insensitive indexes used by validation.
func NewKnowledgeBase(allergens, pfas []Record) *KnowledgeBase {
	kb := &KnowledgeBase{
		allergenIdx: make(map[string]struct{}),
		pfasIdx:     make(map[string]struct{}),
	}
	for _, r := range allergens {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			continue
		}
		r.Synonyms = append([]string(nil), r.Synonyms...)
		kb.allergens = append(kb.allergens, r)
		kb.allergenIdx[NameKey(r.Name)] = struct{}{}
		for _, syn := range r.Synonyms {
			if k := NameKey(syn); k != "" {
				kb.allergenIdx[k] = struct{}{}
			}
		}
	}
	for _, r := range pfas {
		r.Name = strings.TrimSpace(r.Name)
		if r.Name == "" {
			continue
		}
		r.CASNumber = strings.TrimSpace(r.CASNumber)
		r.Synonyms = append([]string(nil), r.Synonyms...)
		kb.pfas = append(kb.pfas, r)
		kb.pfasIdx[NameKey(r.Name)] = struct{}{}
		if r.CASNumber != "" {
			kb.pfasIdx[r.CASNumber] = struct{}{}
		}
	}
	return kb
}

// EmptyKnowledgeBase is used when the store is unreachable.
func EmptyKnowledgeBase() *KnowledgeBase {
	return NewKnowledgeBase(nil, nil)
}

// Allergens returns a copy of the allergen records.
func (kb *KnowledgeBase) Allergens() []Record {
	return append([]Record(nil), kb.allergens...)
}

// PFAS returns a copy of the PFAS records.
func (kb *KnowledgeBase) PFAS() []Record {
	return append([]Record(nil), kb.pfas...)
}

// Size returns the allergen and PFAS record counts.
func (kb *KnowledgeBase) Size() (allergens, pfas int) {
	return len(kb.allergens), len(kb.pfas)
}

// IsEmpty reports whether both reference sets are empty.
func (kb *KnowledgeBase) IsEmpty() bool {
	return len(kb.allergens) == 0 && len(kb.pfas) == 0
}

// KnowsAllergen reports whether name equals, case-insensitively, an allergen
// name or synonym.
func (kb *KnowledgeBase) KnowsAllergen(name string) bool {
	_, ok := kb.allergenIdx[NameKey(name)]
	return ok
}

// KnowsPFAS reports whether name equals a PFAS name case-insensitively, or
// cas equals a PFAS CAS number after trimming.
func (kb *KnowledgeBase) KnowsPFAS(name, cas string) bool {
	if _, ok := kb.pfasIdx[NameKey(name)]; ok {
		return true
	}
	if c := strings.TrimSpace(cas); c != "" {
		_, ok := kb.pfasIdx[c]
		return ok
	}
	return false
}

// AllergenNames returns the record names in store order, for prompts.
func (kb *KnowledgeBase) AllergenNames() []string {
	out := make([]string, 0, len(kb.allergens))
	for _, r := range kb.allergens {
		out = append(out, r.Name)
	}
	return out
}

// PFASNames returns the PFAS names in store order, for prompts.
func (kb *KnowledgeBase) PFASNames() []string {
	out := make([]string, 0, len(kb.pfas))
	for _, r := range kb.pfas {
		out = append(out, r.Name)
	}
	return out
}

// ---------------------------------------------------------------------------
// CAS registry numbers
// ---------------------------------------------------------------------------

var reCASFormat = regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`)

// ValidCAS reports whether cas has the NNNNNNN-NN-N shape and a correct check
// digit.
func ValidCAS(cas string) bool {
	cas = strings.TrimSpace(cas)
	if !reCASFormat.MatchString(cas) {
		return false
	}
	digits := strings.ReplaceAll(cas, "-", "")
	check := int(digits[len(digits)-1] - '0')
	body := digits[:len(digits)-1]
	sum := 0
	for i := len(body) - 1; i >= 0; i-- {
		weight := len(body) - i
		sum += int(body[i]-'0') * weight
	}
	return sum%10 == check
}

// InvalidCASRecords lists PFAS records whose CAS number is present but fails
// ValidCAS. The gateway logs these; they still take part in matching.
func (kb *KnowledgeBase) InvalidCASRecords() []Record {
	var out []Record
	for _, r := range kb.pfas {
		if r.CASNumber != "" && !ValidCAS(r.CASNumber) {
			out = append(out, r)
		}
	}
	return out
}
