package safety_agent

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// Built-in template names.
const (
	TemplateExtractionSystem = "extraction_system"
	TemplateExtractionUser   = "extraction_user"
	TemplateAnalysisSystem   = "analysis_system"
	TemplateAnalysisUser     = "analysis_user"
	TemplateFetchSystem      = "fetch_system"
	TemplateFetchUser        = "fetch_user"
	TemplateReviewsSystem    = "reviews_system"
	TemplateReviewsUser      = "reviews_user"
)

// maxSynonyms caps the synonyms listed per allergen to keep prompts small.
const maxSynonyms = 3

// KBEntry is one knowledge-base line in a system prompt.
type KBEntry struct {
	Name      string
	Synonyms  []string
	CASNumber string
}

// PromptData is the value every built-in template is executed with.
type PromptData struct {
	Allergens []KBEntry
	PFAS      []KBEntry
	Profile   []string
	Product   *analysis.Product
	URL       string
	Retailer  string
	Content   string
	Reviews   string
}

// NewPromptData flattens kb into prompt entries. A nil kb yields empty lists.
func NewPromptData(kb *substance.KnowledgeBase, profile []string) PromptData {
	d := PromptData{Profile: profile}
	if kb == nil {
		return d
	}
	for _, r := range kb.Allergens() {
		syn := r.Synonyms
		if len(syn) > maxSynonyms {
			syn = syn[:maxSynonyms]
		}
		d.Allergens = append(d.Allergens, KBEntry{Name: r.Name, Synonyms: syn})
	}
	for _, r := range kb.PFAS() {
		d.PFAS = append(d.PFAS, KBEntry{Name: r.Name, CASNumber: r.CASNumber})
	}
	return d
}

// PromptManager holds parsed prompt templates.
type PromptManager struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	funcMap   template.FuncMap
}

// NewPromptManager returns a manager with the built-in templates loaded.
func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{
		templates: make(map[string]*template.Template),
		funcMap:   defaultFuncMap(),
	}
	for name, raw := range builtinTemplates {
		if err := pm.RegisterTemplate(name, raw); err != nil {
			return nil, fmt.Errorf("registering built-in template %s: %w", name, err)
		}
	}
	return pm, nil
}

// RegisterTemplate parses tmpl and stores it under name, replacing any
// previous template of that name.
func (pm *PromptManager) RegisterTemplate(name, tmpl string) error {
	if name == "" {
		return errors.InvalidParam("template name is required")
	}
	if strings.TrimSpace(tmpl) == "" {
		return errors.InvalidParam("template body is required")
	}
	parsed, err := template.New(name).Funcs(pm.funcMap).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("parsing template %q: %w", name, err)
	}
	pm.mu.Lock()
	pm.templates[name] = parsed
	pm.mu.Unlock()
	return nil
}

// Render executes the named template with data.
func (pm *PromptManager) Render(name string, data interface{}) (string, error) {
	pm.mu.RLock()
	t, ok := pm.templates[name]
	pm.mu.RUnlock()
	if !ok {
		return "", errors.InvalidParam(fmt.Sprintf("template %q not found", name))
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %q: %w", name, err)
	}
	return buf.String(), nil
}

// Names lists the registered templates in sorted order.
func (pm *PromptManager) Names() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]string, 0, len(pm.templates))
	for name := range pm.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// renderPair renders a system and a user template with the same data.
func (pm *PromptManager) renderPair(system, user string, data PromptData) (string, string, error) {
	s, err := pm.Render(system, data)
	if err != nil {
		return "", "", err
	}
	u, err := pm.Render(user, data)
	if err != nil {
		return "", "", err
	}
	return s, u, nil
}

func defaultFuncMap() template.FuncMap {
	return template.FuncMap{
		"join":       strings.Join,
		"upper":      strings.ToUpper,
		"trimSpace":  strings.TrimSpace,
		"truncate":   templateTruncate,
		"default":    templateDefault,
		"formatList": templateFormatList,
	}
}

func templateTruncate(maxLen int, s string) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func templateDefault(defaultVal, actual string) string {
	if strings.TrimSpace(actual) == "" {
		return defaultVal
	}
	return actual
}

func templateFormatList(items []string) string {
	if len(items) == 0 {
		return "None listed"
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, item)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Built-in templates
// ---------------------------------------------------------------------------

const knowledgeBaseBlock = `
{{- if .Allergens}}

ALLERGEN KNOWLEDGE BASE ({{len .Allergens}} priority allergens):
ONLY these substances can be classified as allergens. If a substance is not on this list, it is NOT an allergen.

{{range .Allergens}}- {{.Name}}{{if .Synonyms}} (synonyms: {{join .Synonyms ", "}}){{end}}
{{end}}
{{- end}}
{{- if .PFAS}}

PFAS KNOWLEDGE BASE ({{len .PFAS}} compounds):
ONLY these substances can be classified as PFAS. If a substance is not on this list, it is NOT PFAS.

{{range .PFAS}}- {{.Name}}{{if .CASNumber}} (CAS: {{.CASNumber}}){{end}}
{{end}}
{{- end}}
{{- if .Profile}}

User's allergen profile:
Pay special attention to: {{join .Profile ", "}}
{{- end}}
`

const analysisSchema = `{
  "product_name": "string",
  "brand": "string",
  "retailer": "string (e.g. Amazon, Amazon.ca)",
  "category": "string",
  "ingredients": ["ingredient1", "ingredient2"],
  "allergens_detected": [
    {"name": "allergen name (MUST match the allergen knowledge base)", "severity": "low|moderate|high|severe", "source": "where found in the product", "confidence": 0.0}
  ],
  "pfas_detected": [
    {"name": "PFAS compound (MUST match the PFAS knowledge base)", "cas_number": "CAS number if known", "body_effects": "effects on the human body", "source": "where found", "confidence": 0.0}
  ],
  "other_concerns": [
    {"name": "concern name", "category": "under_investigation|carcinogen|regulatory_action|heavy_metal|endocrine_disruptor|other", "severity": "low|moderate|high|severe", "description": "brief description with source citation", "confidence": 0.0}
  ],
  "confidence": 0.0
}`

const classificationRules = `Classification rules:

1. ALLERGENS: only substances in the allergen knowledge base may appear in allergens_detected.
   - A substance found during research that is not in the knowledge base is NOT an allergen.
   - Minor irritants (citric acid, fragrance) are not allergens unless listed.
   - Irritants that are not priority allergens go to other_concerns with category "under_investigation" and severity "low".

2. PFAS: only substances in the PFAS knowledge base may appear in pfas_detected.
   - Match by CAS number or exact name.
   - Unknown fluorinated compounds go to other_concerns with category "under_investigation".

3. OTHER CONCERNS: substances not in either knowledge base.
   - under_investigation: credible evidence but not in our database, severity at most "low".
   - carcinogen: IARC Group 1, 2A or 2B classification from a credible source.
   - regulatory_action: FDA recall, EPA warning or class action lawsuit.
   - heavy_metal, endocrine_disruptor, other: other toxins with credible evidence.

4. EVIDENCE: other_concerns entries need a credible source (.gov, .edu, peer-reviewed journal, court record) cited in the description. Never use blogs, forums or marketing copy.

Confidence values are numbers between 0.0 and 1.0. Lower the confidence when the ingredient list is incomplete.`

var builtinTemplates = map[string]string{
	TemplateExtractionSystem: `You are a data extraction expert. You parse text captured from product pages and extract structured product information.

Guidelines:
1. Product name and brand: the full product title and the brand or manufacturer.
2. Ingredients: "Ingredients:" or "Contains:" sections, active and inactive ingredients.
3. Materials: material composition, coatings (e.g. "PTFE coating"), construction materials, claims such as "BPA-free".
4. Features: bullet points and key product features.
5. Warnings: warning text, safety notices, allergy warnings, age restrictions, usage precautions.
6. Specifications: technical details as key/value pairs.
7. Confidence, based on completeness:
   - 0.0-0.3: little to no product data
   - 0.4-0.6: partial extraction
   - 0.7-0.9: good extraction with some gaps
   - 1.0: everything available was extracted

Use an empty string or empty array for anything not present. Respond with ONLY a JSON object of this shape:
{
  "product_name": "string",
  "brand": "string",
  "price": "string",
  "availability": "string",
  "category": "string",
  "ingredients": ["string"],
  "materials": ["string"],
  "features": ["string"],
  "description": "string",
  "specifications": [{"key": "string", "value": "string"}],
  "warnings": ["string"],
  "confidence": 0.0
}`,

	TemplateExtractionUser: `Extract product information from this page content:

URL: {{.URL}}
Retailer: {{default "Unknown" .Retailer}}

Page content:
{{.Content}}`,

	TemplateAnalysisSystem: `You are a product safety analysis expert. You have been given product information already extracted from the product page.

Your process:
1. Review the provided product details.
2. Use what you know about the manufacturer's published ingredient and material lists, regulatory actions and recalls (FDA, Health Canada, CPSC, EPA, EU REACH), and carcinogen classifications (IARC, EPA, NIH) to complete the picture.
3. Cross-reference every finding with the knowledge bases below.

` + classificationRules + `

Respond with ONLY a JSON object of this shape, no text before or after it:
` + analysisSchema + knowledgeBaseBlock,

	TemplateAnalysisUser: `Analyze this product for harmful substances.

Product information (pre-extracted from the page):
- Product Name: {{default "Unknown" .Product.ProductName}}
- Brand: {{default "Unknown" .Product.Brand}}
- Retailer: {{default "Unknown" .Product.Retailer}}
- Category: {{default "Unknown" .Product.Category}}
{{- if .URL}}
- URL: {{.URL}}
{{- end}}

Ingredients:
{{formatList .Product.Ingredients}}

Materials:
{{formatList .Product.Materials}}

Features:
{{formatList .Product.Features}}

Warnings:
{{formatList .Product.Warnings}}

Description:
{{default "None provided" .Product.Description | truncate 4000}}

Do not fetch the product page again; the information above is what it contains.
Your response must be ONLY the JSON object.`,

	TemplateFetchSystem: `You are a product safety analysis expert. You analyze products for harmful substances including allergens, PFAS (forever chemicals) and other toxins.

Your process:
1. Retrieve the product page from the URL you are given and extract the product name, brand, retailer and ingredient or material lists.
2. Search for missing information, in priority order:
   a) the manufacturer's official ingredient list or safety data sheet
   b) regulatory actions and recalls (FDA.gov, HealthCanada.gc.ca, CPSC.gov, EPA.gov, EU REACH)
   c) carcinogen classifications and peer-reviewed toxicity studies (IARC, EPA, NIH, PubMed)
   d) class action lawsuits with documented health impacts (court records, established media)
3. Cross-reference findings with the knowledge bases below.
4. Return a structured JSON analysis.

Only use credible sources: .gov, .edu, manufacturer sites, peer-reviewed journals, court records.

` + classificationRules + `

PFAS hints: non-stick cookware often contains PTFE; "water-resistant" and "stain-resistant" products may carry PFAS coatings.

Return your analysis as a JSON object of this shape:
` + analysisSchema + knowledgeBaseBlock,

	TemplateFetchUser: `Analyze this product for harmful substances: {{.URL}}

The product page could not be retrieved locally, so fetch it yourself.

1. Retrieve the product page and extract the product details (name, brand, ingredients).
2. Research safety information, recalls and scientific studies.
3. Provide your structured JSON analysis.`,

	TemplateReviewsSystem: `You are a consumer review analysis expert. You parse product reviews and Q&A text and extract consumer insights, especially health-related complaints.

Focus:
1. Health concerns (highest priority): skin reactions, allergic reactions, sensitivities, adverse effects such as headaches or nausea. Quote real examples.
2. Common complaints: quality, performance, durability, packaging.
3. Frequency: rare (1-2 mentions), occasional (3-5), common (6-10), frequent (more than 10).
4. Severity: low (minor inconvenience), moderate (significant but manageable), high (serious problem), severe (safety or health impact).
5. Positive feedback: what people like.
6. Q&A: safety and ingredient questions, categorised as safety, ingredients, usage or other.
7. Verified purchases: the ratio of verified to all reviews.
8. Confidence: 0.0-0.3 few or unclear reviews, 0.4-0.6 moderate sample, 0.7-1.0 good sample with clear patterns.

Respond with ONLY a JSON object of this shape:
{
  "overall_sentiment": "positive|mixed|negative",
  "total_reviews_analyzed": 0,
  "rating_distribution": {"5": 0, "4": 0, "3": 0, "2": 0, "1": 0},
  "common_complaints": ["string"],
  "health_concerns": [{"concern": "string", "frequency": "rare|occasional|common|frequent", "severity": "low|moderate|high|severe", "examples": ["quote"]}],
  "positive_feedback": ["string"],
  "questions_concerns": [{"question": "string", "category": "safety|ingredients|usage|other", "answered": false}],
  "verified_purchase_ratio": 0.0,
  "confidence": 0.0
}`,

	TemplateReviewsUser: `Extract consumer insights from these product reviews and Q&A:

URL: {{.URL}}
Retailer: {{default "Unknown" .Retailer}}

Reviews and Q&A content:
{{.Reviews}}`,
}
