package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/turtacn/SafeScan/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 10 << 20

const defaultRetryAfterSeconds = 60

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, statusCode int, code errors.ErrorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{Code: string(code), Message: message})
}

// writeAppError maps application errors to HTTP responses. Rate limits become
// 429 with Retry-After; unexpected failures are logged and masked.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	if rl, ok := errors.AsRateLimit(err); ok {
		seconds := int(math.Ceil(rl.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = defaultRetryAfterSeconds
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, errors.ErrCodeAIRateLimited,
			"AI service rate limit reached. Please try again in a minute.")
		return
	}

	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		if logger != nil {
			logger.Error("request failed", logging.Err(err))
		}
		writeError(w, http.StatusInternalServerError, errors.ErrCodeInternal,
			errors.DefaultMessageForCode(errors.ErrCodeInternal))
		return
	}

	status := errors.HTTPStatusForCode(appErr.Code)
	message := appErr.Message
	if status == http.StatusInternalServerError {
		message = errors.DefaultMessageForCode(appErr.Code)
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", logging.Err(err), logging.String("code", string(appErr.Code)))
	}
	writeError(w, status, appErr.Code, message)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.Is(err, io.EOF):
			return errors.New(errors.ErrCodeBadRequest, "request body is required")
		case stderrors.As(err, &tooLarge):
			return errors.New(errors.ErrCodeBadRequest, "request body too large")
		default:
			return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid JSON body")
		}
	}
	return nil
}

// queryInt parses an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.InvalidParam(name + " must be an integer")
	}
	return n, nil
}

// queryBool parses a boolean query parameter. Anything unparseable is false.
func queryBool(r *http.Request, name string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	return err == nil && b
}
