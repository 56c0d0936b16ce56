package errors

import (
	"errors"
	"time"
)

// RateLimitError is returned by adapters whose upstream refused the call for
// quota reasons. RetryAfter is the upstream hint, or zero when none was given.
type RateLimitError struct {
	RetryAfter time.Duration
	Cause      error
}

// NewRateLimitError wraps cause as a rate-limit signal.
func NewRateLimitError(retryAfter time.Duration, cause error) *RateLimitError {
	return &RateLimitError{RetryAfter: retryAfter, Cause: cause}
}

func (e *RateLimitError) Error() string {
	msg := "[" + string(ErrCodeAIRateLimited) + "] " + DefaultMessageForCode(ErrCodeAIRateLimited)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// AsRateLimit returns the first *RateLimitError in err's chain. An *AppError
// carrying ErrCodeAIRateLimited counts too and yields a zero RetryAfter.
func AsRateLimit(err error) (*RateLimitError, bool) {
	if err == nil {
		return nil, false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	if IsCode(err, ErrCodeAIRateLimited) {
		return &RateLimitError{Cause: err}, true
	}
	return nil, false
}
