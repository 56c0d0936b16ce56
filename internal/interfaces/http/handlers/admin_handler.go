package handlers

import (
	"net/http"
	"strings"
	"time"

	app "github.com/turtacn/SafeScan/internal/application/analysis"
	domain "github.com/turtacn/SafeScan/internal/domain/analysis"
	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// AdminHandler exposes the validation audit log.
type AdminHandler struct {
	admin  app.AdminService
	logger logging.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin app.AdminService, logger logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &AdminHandler{admin: admin, logger: logger}
}

// ValidationLogs handles GET /api/v1/admin/validation-logs.
func (h *AdminHandler) ValidationLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseDate(q.Get("start_date"), false)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	end, err := parseDate(q.Get("end_date"), true)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit", app.DefaultLogLimit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	page, err := h.admin.ValidationLogs(r.Context(), domain.ValidationLogQuery{
		Start:      start,
		End:        end,
		ProductURL: strings.TrimSpace(q.Get("product_url")),
		LogType:    strings.TrimSpace(q.Get("log_type")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ValidationStats handles GET /api/v1/admin/validation-stats.
func (h *AdminHandler) ValidationStats(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", app.DefaultStatsDays)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	stats, err := h.admin.ValidationStats(r.Context(), days)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// FlaggedSubstances handles GET /api/v1/admin/flagged-substances.
func (h *AdminHandler) FlaggedSubstances(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", app.DefaultFlaggedLimit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	out, err := h.admin.FlaggedSubstances(r.Context(), limit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A bare end date covers the
// whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.InvalidParam("dates must be YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
