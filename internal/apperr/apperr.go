// Package apperr defines the typed errors the identity core raises.
//
// Every error carries a stable machine-readable code, a human message and a
// Kind that the HTTP boundary maps to a status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by what the caller can do about it.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindConflict
	KindBadRequest
	KindNotFound
	KindServiceUnavailable
)

// Status returns the HTTP status associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a stable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
	// Parent is a broader error this one refines. Is matches it too.
	Parent *Error
}

// New creates an Error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors carrying the same code, so sentinels compare equal to
// copies produced by WithCause or WithMessage. A refined error also matches
// every ancestor in its Parent chain.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	for cur := e; cur != nil; cur = cur.Parent {
		if cur.Code == other.Code {
			return true
		}
	}
	return false
}

// Refines returns a copy of e that also matches parent.
func (e *Error) Refines(parent *Error) *Error {
	cp := *e
	cp.Parent = parent
	return &cp
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Status returns the HTTP status for the error.
func (e *Error) Status() int { return e.Kind.Status() }

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
