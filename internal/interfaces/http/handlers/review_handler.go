package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// ReviewSearchRequest is the body of POST /api/v1/reviews/search.
type ReviewSearchRequest struct {
	Query        string `json:"query"`
	URLHash      string `json:"url_hash,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
	MinRating    int    `json:"min_rating,omitempty"`
	VerifiedOnly bool   `json:"verified_only,omitempty"`
}

// ReviewHandler serves indexed review search and summaries.
type ReviewHandler struct {
	reviews      app.ReviewService
	maxBodyBytes int64
	logger       logging.Logger
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(reviews app.ReviewService, maxBodyBytes int64, logger logging.Logger) *ReviewHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ReviewHandler{reviews: reviews, maxBodyBytes: maxBodyBytes, logger: logger}
}

// Search handles POST /api/v1/reviews/search.
func (h *ReviewHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req ReviewSearchRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	resp, err := h.reviews.Search(r.Context(), domain.ReviewQuery{
		Query:        req.Query,
		Fingerprint:  req.URLHash,
		TopK:         req.TopK,
		MinRating:    req.MinRating,
		VerifiedOnly: req.VerifiedOnly,
	})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.logger.Info("review search served",
		logging.String("query", resp.Query),
		logging.Int("results", resp.TotalResults))
	writeJSON(w, http.StatusOK, resp)
}

// Summary handles GET /api/v1/reviews/{fingerprint}/summary.
func (h *ReviewHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reviews.Summary(r.Context(), chi.URLParam(r, "fingerprint"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, errors.ErrCodeServiceUnavailable, message)
}
