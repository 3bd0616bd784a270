package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorRateLimited   ErrorCode = "RATE_LIMITED"
	ErrorUpstream      ErrorCode = "UPSTREAM_ERROR"
	ErrorShapeMismatch ErrorCode = "UPSTREAM_SHAPE_MISMATCH"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

// Error is the failure type returned by the services in this package. Fields
// carries per-field validation messages; Detail carries diagnostics such as
// an upstream status or a response preview.
type Error struct {
	Code   ErrorCode
	Reason string
	Fields map[string]string
	Detail map[string]any
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func invalidField(reason, field, message string) *Error {
	return &Error{
		Code:   ErrorInvalidInput,
		Reason: reason,
		Fields: map[string]string{field: message},
	}
}

func (e *Error) withDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}
