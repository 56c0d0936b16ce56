// Package errors defines AppError, the coded error carried by every SafeScan
// layer. The HTTP layer maps codes to statuses; logs and metrics use the code
// as a label.
package errors

import (
	"errors"
	"runtime"
	"strconv"
	"strings"
)

const maxFrames = 32

// AppError is a coded failure with an optional cause.
//
//	return errors.New(errors.ErrCodeKBUnavailable, "allergen table unreachable")
//	return errors.Wrap(err, errors.ErrCodeAIExtractionFailed, "extraction call failed")
type AppError struct {
	Code    ErrorCode
	Message string
	// Detail is debugging context. API responses leave it out.
	Detail string
	Cause  error
	// Stack is where the error was built, one "file:line func" per line.
	Stack string
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError with the same code and message, so a sentinel
// still matches after WithDetail or WithCause copied it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// WithDetail returns a copy carrying detail. A nil receiver stays nil.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	c.Detail = detail
	return &c
}

// WithCause returns a copy wrapping err. A nil receiver stays nil.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	c.Cause = err
	return &c
}

func New(code ErrorCode, message string) *AppError {
	return build(code, message, nil)
}

// Wrap returns nil for a nil err. With CodeUnknown the code is taken from
// the first *AppError in err's chain, or ErrCodeInternal if there is none.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		code = ErrCodeInternal
		if inner := GetCode(err); inner != CodeUnknown {
			code = inner
		}
	}
	return build(code, message, err)
}

func NotFound(message string) *AppError { return build(ErrCodeNotFound, message, nil) }

// InvalidParam reports a caller mistake. It maps to 400.
func InvalidParam(message string) *AppError { return build(ErrCodeBadRequest, message, nil) }

func Unauthorized(message string) *AppError { return build(ErrCodeUnauthorized, message, nil) }

// Internal keeps the cause away from API clients; log it next to the error.
func Internal(message string) *AppError { return build(ErrCodeInternal, message, nil) }

func RateLimit(message string) *AppError { return build(ErrCodeTooManyRequests, message, nil) }

// IsCode reports whether any *AppError in err's chain has code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if ae, ok := err.(*AppError); ok && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func IsNotFound(err error) bool {
	for _, c := range []ErrorCode{ErrCodeNotFound, ErrCodeAnalysisNotFound, ErrCodeReviewsNotFound} {
		if IsCode(err, c) {
			return true
		}
	}
	return false
}

// GetCode returns the code of the first *AppError in err's chain, CodeOK for
// nil and CodeUnknown for plain errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// build is called directly by every exported constructor. Skipping Callers,
// stack, build and the constructor starts the trace at the caller.
func build(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause, Stack: stack(4)}
}

func stack(skip int) string {
	pcs := make([]uintptr, maxFrames)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	var lines []string
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			lines = append(lines, f.File+":"+strconv.Itoa(f.Line)+" "+f.Function)
		}
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}
