package safety_agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
)

func testKnowledgeBase() *substance.KnowledgeBase {
	return substance.NewKnowledgeBase(
		[]substance.Record{
			{Name: "Milk", Synonyms: []string{"casein", "whey", "lactose", "ghee"}},
			{Name: "Parabens"},
		},
		[]substance.Record{
			{Name: "PTFE", CASNumber: "9002-84-0"},
			{Name: "GenX"},
		},
	)
}

func TestNewPromptManager_LoadsBuiltins(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)
	assert.Equal(t, []string{
		TemplateAnalysisSystem, TemplateAnalysisUser,
		TemplateExtractionSystem, TemplateExtractionUser,
		TemplateFetchSystem, TemplateFetchUser,
		TemplateReviewsSystem, TemplateReviewsUser,
	}, pm.Names())
}

func TestNewPromptData_CapsSynonyms(t *testing.T) {
	d := NewPromptData(testKnowledgeBase(), []string{"milk"})
	require.Len(t, d.Allergens, 2)
	assert.Equal(t, []string{"casein", "whey", "lactose"}, d.Allergens[0].Synonyms)
	require.Len(t, d.PFAS, 2)
	assert.Equal(t, "9002-84-0", d.PFAS[0].CASNumber)
	assert.Equal(t, []string{"milk"}, d.Profile)

	empty := NewPromptData(nil, nil)
	assert.Empty(t, empty.Allergens)
	assert.Empty(t, empty.PFAS)
}

func TestRender_AnalysisSystemIncludesKnowledgeBase(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	out, err := pm.Render(TemplateAnalysisSystem, NewPromptData(testKnowledgeBase(), []string{"milk", "nickel"}))
	require.NoError(t, err)
	assert.Contains(t, out, "ALLERGEN KNOWLEDGE BASE (2 priority allergens):")
	assert.Contains(t, out, "- Milk (synonyms: casein, whey, lactose)\n")
	assert.Contains(t, out, "- Parabens\n")
	assert.NotContains(t, out, "ghee")
	assert.Contains(t, out, "PFAS KNOWLEDGE BASE (2 compounds):")
	assert.Contains(t, out, "- PTFE (CAS: 9002-84-0)\n")
	assert.Contains(t, out, "- GenX\n")
	assert.Contains(t, out, "Pay special attention to: milk, nickel")
	assert.Contains(t, out, `"allergens_detected"`)
}

func TestRender_AnalysisSystemWithoutKnowledgeBase(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	out, err := pm.Render(TemplateAnalysisSystem, NewPromptData(nil, nil))
	require.NoError(t, err)
	assert.NotContains(t, out, "KNOWLEDGE BASE (")
	assert.NotContains(t, out, "Pay special attention")
}

func TestRender_AnalysisUserFormatsLists(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	data := PromptData{Product: &analysis.Product{
		ProductName: "Gentle Baby Lotion",
		Ingredients: []string{"Water", "Parabens"},
	}}
	out, err := pm.Render(TemplateAnalysisUser, data)
	require.NoError(t, err)
	assert.Contains(t, out, "- Product Name: Gentle Baby Lotion")
	assert.Contains(t, out, "- Brand: Unknown")
	assert.Contains(t, out, "Ingredients:\n1. Water\n2. Parabens\n")
	assert.Contains(t, out, "Materials:\nNone listed\n")
	assert.Contains(t, out, "None provided")
	assert.NotContains(t, out, "- URL:")
}

func TestRender_FetchUserCarriesURL(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	out, err := pm.Render(TemplateFetchUser, PromptData{URL: "https://www.amazon.com/dp/B000"})
	require.NoError(t, err)
	assert.Contains(t, out, "Analyze this product for harmful substances: https://www.amazon.com/dp/B000")
}

func TestRegisterTemplate_Validation(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)

	assert.Error(t, pm.RegisterTemplate("", "body"))
	assert.Error(t, pm.RegisterTemplate("x", "  "))
	assert.Error(t, pm.RegisterTemplate("x", "{{ .Unclosed"))

	require.NoError(t, pm.RegisterTemplate(TemplateFetchUser, "custom {{.URL}}"))
	out, err := pm.Render(TemplateFetchUser, PromptData{URL: "u"})
	require.NoError(t, err)
	assert.Equal(t, "custom u", out)
}

func TestRender_UnknownTemplate(t *testing.T) {
	pm, err := NewPromptManager()
	require.NoError(t, err)
	_, err = pm.Render("missing", nil)
	assert.Error(t, err)
}

func TestTemplateHelpers(t *testing.T) {
	assert.Equal(t, "abc...", templateTruncate(3, "abcdef"))
	assert.Equal(t, "abc", templateTruncate(3, "abc"))
	assert.Equal(t, "dflt", templateDefault("dflt", " "))
	assert.Equal(t, "v", templateDefault("dflt", "v"))
	assert.Equal(t, "None listed", templateFormatList(nil))
	assert.Equal(t, "1. a\n2. b", templateFormatList([]string{"a", "b"}))
}
