package analysis

import (
	"time"

	"github.com/turtacn/SafeScan/pkg/errors"
)

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeRateLimited
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failed"
	}
}

// Outcome is the result of a step that can succeed, be throttled upstream, or
// fail. Only the fields of its Kind are meaningful.
type Outcome[T any] struct {
	Kind       OutcomeKind
	Value      T
	RetryAfter time.Duration
	Code       errors.ErrorCode
	Reason     string
	Err        error
}

// Ok wraps a successful value.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: OutcomeOK, Value: v}
}

// RateLimited reports an upstream quota refusal.
func RateLimited[T any](retryAfter time.Duration, cause error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeRateLimited, RetryAfter: retryAfter, Reason: "rate limited", Err: cause}
}

// Failed reports a terminal failure.
func Failed[T any](code errors.ErrorCode, reason string, cause error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeFailed, Code: code, Reason: reason, Err: cause}
}

// FromError classifies err. A rate limit without a hint gets defaultRetry.
func FromError[T any](err error, defaultRetry time.Duration, code errors.ErrorCode, reason string) Outcome[T] {
	if rl, ok := errors.AsRateLimit(err); ok {
		retry := rl.RetryAfter
		if retry <= 0 {
			retry = defaultRetry
		}
		return RateLimited[T](retry, err)
	}
	return Failed[T](code, reason, err)
}

func (o Outcome[T]) IsOK() bool          { return o.Kind == OutcomeOK }
func (o Outcome[T]) IsRateLimited() bool { return o.Kind == OutcomeRateLimited }

// AsError converts a non-OK outcome into an *errors.AppError. A rate-limited
// outcome keeps a *errors.RateLimitError in the chain so transports can emit
// Retry-After.
func (o Outcome[T]) AsError() error {
	switch o.Kind {
	case OutcomeOK:
		return nil
	case OutcomeRateLimited:
		return errors.Wrap(errors.NewRateLimitError(o.RetryAfter, o.Err), errors.ErrCodeAIRateLimited,
			"Rate limit reached. Please try again in a minute.")
	default:
		code := o.Code
		if code == "" {
			code = errors.ErrCodeInternal
		}
		if o.Err == nil {
			return errors.New(code, o.Reason)
		}
		return errors.Wrap(o.Err, code, o.Reason)
	}
}
