package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
)

// AnalysisHandler serves product analysis and review insights.
type AnalysisHandler struct {
	service      app.Service
	reviews      app.ReviewService
	maxBodyBytes int64
	logger       logging.Logger
}

// NewAnalysisHandler creates an AnalysisHandler. reviews may be nil, in which
// case the insights endpoint reports 503.
func NewAnalysisHandler(service app.Service, reviews app.ReviewService, maxBodyBytes int64, logger logging.Logger) *AnalysisHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AnalysisHandler{
		service:      service,
		reviews:      reviews,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Analyze handles POST /api/v1/analyze.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req app.AnalyzeRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	resp, err := h.service.Analyze(r.Context(), &req)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReviewInsights handles GET /api/v1/analyze/{fingerprint}/reviews.
func (h *AnalysisHandler) ReviewInsights(w http.ResponseWriter, r *http.Request) {
	if h.reviews == nil {
		writeUnavailable(w, "review insights unavailable")
		return
	}
	insights, err := h.reviews.Insights(r.Context(), chi.URLParam(r, "fingerprint"), queryBool(r, "force_refresh"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, insights)
}
