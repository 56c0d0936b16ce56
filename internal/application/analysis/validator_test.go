package analysis

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/domain/substance"
	"github.com/turtacn/SafeScan/internal/testutil"
)

func validatorInput() substance.Detections {
	return substance.Detections{
		Allergens: []substance.Detection{
			{Name: "milk", Severity: substance.SeverityHigh, Confidence: 0.9, Source: "ingredients"},
			{Name: "Casein", Severity: substance.SeverityHigh, Confidence: 0.8, Source: "ingredients"},
			{Name: "Fragrance", Severity: substance.SeverityModerate, Confidence: 0.85, Source: "ingredient list"},
		},
		PFAS: []substance.Detection{
			{Name: "Teflon coating", CASNumber: " 9002-84-0 ", Confidence: 0.9},
			{Name: "Mystery fluoro", CASNumber: "1234-56-7", Confidence: 0.7},
		},
		OtherConcerns: []substance.Detection{
			{Name: "Lead", Category: substance.CategoryHeavyMetal, Confidence: 0.6},
		},
	}
}

func TestValidator_LogOnlyIsIdentity(t *testing.T) {
	sink := &mockSink{}
	metrics := &recMetrics{}
	v := NewValidator(sink, nil, metrics, false)
	in := validatorInput()

	out := v.Validate(context.Background(), in, testKB(), ProductRef{URL: testURL, Name: "Lotion"})

	assert.Equal(t, in, out)
	invalidAllergens := sink.ofType(domain.LogInvalidAllergen)
	require.Len(t, invalidAllergens, 1)
	assert.Equal(t, "Fragrance", invalidAllergens[0].SubstanceName)
	assert.Equal(t, "Lotion", invalidAllergens[0].ProductName)
	assert.NotEmpty(t, invalidAllergens[0].ID)
	assert.False(t, invalidAllergens[0].Timestamp.IsZero())

	invalidPFAS := sink.ofType(domain.LogInvalidPFAS)
	require.Len(t, invalidPFAS, 1)
	assert.Equal(t, "Mystery fluoro", invalidPFAS[0].SubstanceName)
	assert.Empty(t, sink.ofType(domain.LogReclassifiedSubstance))

	summary := sink.ofType(domain.LogValidationSummary)
	require.Len(t, summary, 1)
	allergens := summary[0].Details["allergens"].(map[string]interface{})
	assert.Equal(t, 3, allergens["total"])
	assert.Equal(t, 2, allergens["valid"])
	assert.Equal(t, 1, allergens["invalid"])
	assert.InDelta(t, 66.67, allergens["accuracy"].(float64), 0.01)

	assert.Equal(t, 1, metrics.invalid["allergen"])
	assert.Equal(t, 1, metrics.invalid["pfas"])
}

func TestValidator_StrictReclassifies(t *testing.T) {
	sink := &mockSink{}
	v := NewValidator(sink, nil, nil, true)
	require.True(t, v.Strict())

	out := v.Validate(context.Background(), validatorInput(), testKB(), ProductRef{URL: testURL, Name: "Lotion"})

	require.Len(t, out.Allergens, 2)
	assert.Equal(t, "milk", out.Allergens[0].Name)
	assert.Equal(t, "Casein", out.Allergens[1].Name)

	require.Len(t, out.PFAS, 1)
	assert.Equal(t, "Teflon coating", out.PFAS[0].Name)

	require.Len(t, out.OtherConcerns, 2)
	moved := out.OtherConcerns[1]
	assert.Equal(t, "Fragrance", moved.Name)
	assert.Equal(t, substance.CategoryUnderInvestigation, moved.Category)
	assert.Equal(t, substance.SeverityLow, moved.Severity)
	assert.Equal(t, 0.6, moved.Confidence)
	assert.Equal(t, "Potential irritant (not a priority allergen): ingredient list", moved.Description)

	reclassified := sink.ofType(domain.LogReclassifiedSubstance)
	require.Len(t, reclassified, 1)
	assert.Equal(t, "under_investigation", reclassified[0].Category)
}

func TestValidator_StrictKeepsLowerConfidence(t *testing.T) {
	v := NewValidator(nil, nil, nil, true)
	in := substance.Detections{Allergens: []substance.Detection{{Name: "Glitter", Confidence: 0.4}}}

	out := v.Validate(context.Background(), in, testKB(), ProductRef{})

	require.Len(t, out.OtherConcerns, 1)
	assert.Equal(t, 0.4, out.OtherConcerns[0].Confidence)
	assert.Empty(t, out.Allergens)
}

func TestValidator_EmptyKnowledgeBaseAuditsEverything(t *testing.T) {
	for _, strict := range []bool{false, true} {
		sink := &mockSink{}
		logger := testutil.NewMockLogger()
		v := NewValidator(sink, logger, nil, strict)
		in := validatorInput()

		out := v.Validate(context.Background(), in, substance.EmptyKnowledgeBase(), ProductRef{URL: testURL})

		assert.Equal(t, in, out, "strict=%v", strict)
		assert.Len(t, sink.ofType(domain.LogInvalidAllergen), 3)
		assert.Len(t, sink.ofType(domain.LogInvalidPFAS), 2)
		summary := sink.ofType(domain.LogValidationSummary)
		require.Len(t, summary, 1)
		allergens := summary[0].Details["allergens"].(map[string]interface{})
		assert.Equal(t, 0, allergens["valid"])
		assert.Equal(t, 0.0, allergens["accuracy"])
		assert.True(t, logger.HasMessage("warn", "knowledge base empty, auditing without filtering"))
	}
}

func TestValidator_NilKnowledgeBaseEmitsSummary(t *testing.T) {
	sink := &mockSink{}
	v := NewValidator(sink, nil, nil, false)

	v.Validate(context.Background(), substance.Detections{Allergens: []substance.Detection{{Name: "Gluten"}}}, nil, ProductRef{URL: testURL})

	assert.Len(t, sink.ofType(domain.LogInvalidAllergen), 1)
	assert.Len(t, sink.ofType(domain.LogValidationSummary), 1)
}

func TestValidator_SinkFailureIsLogged(t *testing.T) {
	sink := &mockSink{err: stderrors.New("kafka down")}
	logger := testutil.NewMockLogger()
	v := NewValidator(sink, logger, nil, false)

	out := v.Validate(context.Background(), validatorInput(), testKB(), ProductRef{URL: testURL})

	assert.Len(t, out.Allergens, 3)
	assert.True(t, logger.HasMessage("warn", "validation record not stored"))
}

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 100.0, Accuracy(0, 0))
	assert.Equal(t, 50.0, Accuracy(4, 2))
}
