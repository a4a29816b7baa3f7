package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies pipeline errors so the API layer can map them to
// status codes and clients can react without parsing messages.
type Kind string

const (
	KindValidation Kind = "validation"
	KindPlanLimit  Kind = "plan_limit"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindProvider   Kind = "provider"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal"
)

// Error is the structured error carried across component boundaries and
// serialized as the API error envelope.
type Error struct {
	Kind      Kind              `json:"kind"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Err       error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to the status code the API returns.
// PlanLimit gets a distinct code so clients can prompt an upgrade.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPlanLimit:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindProvider:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a user-correctable request error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// ValidationFields creates a validation error with per-field details.
func ValidationFields(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: fields}
}

// PlanLimit creates a quota or feature-gate error. The breached limit is
// recorded in Details so clients can render the specific ceiling.
func PlanLimit(message, limit string) *Error {
	return &Error{
		Kind:    KindPlanLimit,
		Message: message,
		Details: map[string]string{"limit": limit},
	}
}

// NotFound creates a missing-resource error. Callers must use it both for
// absent rows and rows owned by another user, so existence never leaks.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// Conflict creates an illegal-state or lost-race error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Provider wraps an external collaborator failure.
func Provider(message string, err error) *Error {
	return &Error{Kind: KindProvider, Message: message, Err: err}
}

// Timeout wraps a deadline overrun on a subprocess or outbound call.
func Timeout(message string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: message, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From converts any error into an *Error, passing typed errors through.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
