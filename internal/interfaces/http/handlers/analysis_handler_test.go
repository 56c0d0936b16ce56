package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/pkg/errors"
)

const testFingerprint = "0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9"

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func postAnalyze(h *AnalysisHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)
	return rec
}

func TestAnalyze_Success(t *testing.T) {
	svc := new(mockService)
	svc.On("Analyze", mock.Anything, mock.MatchedBy(func(req *app.AnalyzeRequest) bool {
		return req.URL == "https://www.amazon.com/dp/B000" &&
			len(req.AllergenProfile) == 1 && req.ForceRefresh
	})).Return(&app.AnalyzeResponse{
		Analysis:       &domain.Result{ProductName: "Gentle Baby Lotion", HarmScore: 12},
		URLFingerprint: testFingerprint,
		RiskLevel:      "Safe",
		DisplayRisk:    "Safe",
	}, nil)

	h := NewAnalysisHandler(svc, nil, 0, nil)
	rec := postAnalyze(h, `{"url":"https://www.amazon.com/dp/B000","allergen_profile":["milk"],"force_refresh":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp app.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testFingerprint, resp.URLFingerprint)
	assert.Contains(t, rec.Body.String(), `"url_fingerprint":"`+testFingerprint+`"`)
	assert.Contains(t, rec.Body.String(), `"reviews_indexed":0`)
	assert.Contains(t, rec.Body.String(), `"cache_age_seconds":null`)
	assert.Equal(t, "Gentle Baby Lotion", resp.Analysis.ProductName)
	assert.False(t, resp.Cached)
	svc.AssertExpectations(t)
}

func TestAnalyze_BadBodies(t *testing.T) {
	svc := new(mockService)
	h := NewAnalysisHandler(svc, nil, 64, nil)

	for name, body := range map[string]string{
		"empty":     "",
		"not json":  "url=https://x",
		"too large": `{"url":"` + strings.Repeat("a", 200) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postAnalyze(h, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(errors.ErrCodeBadRequest), decodeError(t, rec).Code)
		})
	}
	svc.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalyze_InvalidURL(t *testing.T) {
	svc := new(mockService)
	svc.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeInvalidProductURL, "Invalid product URL"))

	rec := postAnalyze(NewAnalysisHandler(svc, nil, 0, nil), `{"url":"ftp://nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(errors.ErrCodeInvalidProductURL), body.Code)
	assert.Equal(t, "Invalid product URL", body.Message)
}

func TestAnalyze_RateLimited(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter time.Duration
		want       string
	}{
		{"upstream hint", 45 * time.Second, "45"},
		{"rounds up", 1500 * time.Millisecond, "2"},
		{"no hint", 0, "60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockService)
			svc.On("Analyze", mock.Anything, mock.Anything).
				Return(nil, errors.NewRateLimitError(tt.retryAfter, fmt.Errorf("429")))

			rec := postAnalyze(NewAnalysisHandler(svc, nil, 0, nil), `{"url":"https://www.amazon.com/dp/B000"}`)
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Retry-After"))
			assert.Equal(t, string(errors.ErrCodeAIRateLimited), decodeError(t, rec).Code)
		})
	}
}

func TestAnalyze_InternalErrorsAreMasked(t *testing.T) {
	svc := new(mockService)
	svc.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("pq: password authentication failed"))

	rec := postAnalyze(NewAnalysisHandler(svc, nil, 0, nil), `{"url":"https://www.amazon.com/dp/B000"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, string(errors.ErrCodeInternal), body.Code)
	assert.NotContains(t, body.Message, "password")
}

func TestAnalyze_ExtractionExhausted(t *testing.T) {
	svc := new(mockService)
	svc.On("Analyze", mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeExtractionExhausted, "Failed to extract product data"))

	rec := postAnalyze(NewAnalysisHandler(svc, nil, 0, nil), `{"url":"https://www.amazon.com/dp/B000"}`)
	assert.Equal(t, errors.HTTPStatusForCode(errors.ErrCodeExtractionExhausted), rec.Code)
	assert.Equal(t, string(errors.ErrCodeExtractionExhausted), decodeError(t, rec).Code)
}

func insightsRouter(h *AnalysisHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/analyze/{fingerprint}/reviews", h.ReviewInsights)
	return r
}

func TestReviewInsights(t *testing.T) {
	reviews := new(mockReviewService)
	reviews.On("Insights", mock.Anything, testFingerprint, true).Return(&domain.ReviewInsights{
		Fingerprint:      testFingerprint,
		OverallSentiment: domain.SentimentNegative,
		HealthConcerns:   []domain.HealthConcern{{Concern: "skin rash"}},
	}, nil)
	h := NewAnalysisHandler(new(mockService), reviews, 0, nil)

	rec := httptest.NewRecorder()
	insightsRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/analyze/"+testFingerprint+"/reviews?force_refresh=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var out domain.ReviewInsights
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, domain.SentimentNegative, out.OverallSentiment)
	require.Len(t, out.HealthConcerns, 1)
	reviews.AssertExpectations(t)
}

func TestReviewInsights_NotFound(t *testing.T) {
	reviews := new(mockReviewService)
	reviews.On("Insights", mock.Anything, testFingerprint, false).
		Return(nil, errors.New(errors.ErrCodeAnalysisNotFound, "Product not found. Please analyze the product first."))
	h := NewAnalysisHandler(new(mockService), reviews, 0, nil)

	rec := httptest.NewRecorder()
	insightsRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyze/"+testFingerprint+"/reviews", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.ErrCodeAnalysisNotFound), decodeError(t, rec).Code)
}

func TestReviewInsights_Unavailable(t *testing.T) {
	h := NewAnalysisHandler(new(mockService), nil, 0, nil)
	rec := httptest.NewRecorder()
	insightsRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/analyze/"+testFingerprint+"/reviews", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
