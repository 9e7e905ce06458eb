// Package apperr defines the error taxonomy shared by the gateway, the
// adapters and the HTTP layer. Errors carry a Kind that the API layer
// maps onto status codes; the wrapped cause is kept for logging only
// and never shown to callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the API layer.
type Kind int

const (
	// Validation means the request was malformed or named an unknown tool.
	Validation Kind = iota
	// Unauthenticated means no valid credentials accompanied the call.
	Unauthenticated
	// Forbidden means the caller does not own the referenced resource.
	Forbidden
	// NotFound means a referenced conversation or workflow is absent.
	NotFound
	// Conflict means a step was submitted against a terminal workflow.
	Conflict
	// Timeout means the execution backend exceeded its deadline; retryable.
	Timeout
	// Unavailable means the execution backend could not be reached; retryable.
	Unavailable
	// Internal is the catch-all for everything else.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Timeout:
		return "timeout"
	case Unavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified application error.
type Error struct {
	Kind  Kind
	Msg   string // safe to show to callers
	Field string // optional field name for validation errors
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, preserving it as the cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

// Invalid creates a validation error tied to a request field.
func Invalid(field, msg string) *Error {
	return &Error{Kind: Validation, Msg: msg, Field: field}
}

// KindOf returns the Kind of err, or Internal if err is unclassified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// Retryable reports whether the caller may safely retry the request.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == Timeout || k == Unavailable
}
