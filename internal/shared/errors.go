package shared

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category of a business error.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindAccessDenied      Kind = "access_denied"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// Error is a business error carrying a kind and a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	// ErrValidation matches malformed or missing input.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrAccessDenied matches authorization failures.
	ErrAccessDenied = &Error{Kind: KindAccessDenied}
	// ErrNotFound matches missing documents or entities.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrInvalidState matches operations illegal in the current status.
	ErrInvalidState = &Error{Kind: KindInvalidState}
	// ErrInsufficientStock matches outbound movements that would go negative.
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	// ErrConflict matches business rule blocks.
	ErrConflict = &Error{Kind: KindConflict}
)

func newError(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

// AccessDenied builds an access denied error.
func AccessDenied(format string, args ...any) error {
	return newError(KindAccessDenied, format, args...)
}

// NotFound builds a not found error.
func NotFound(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

// InvalidState builds an invalid state error.
func InvalidState(format string, args ...any) error {
	return newError(KindInvalidState, format, args...)
}

// InsufficientStock builds an insufficient stock error.
func InsufficientStock(format string, args ...any) error {
	return newError(KindInsufficientStock, format, args...)
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

// KindOf returns the business kind of err, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
