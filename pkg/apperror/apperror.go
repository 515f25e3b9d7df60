// Package apperror classifies domain errors so transports can map them
// without knowing every sentinel.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the category of an error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindStorage    Kind = "storage"
)

// Error carries a kind and a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and code, so wrapped copies
// still compare equal to the sentinel they were derived from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error { return New(KindValidation, code, message) }
func Forbidden(code, message string) *Error  { return New(KindForbidden, code, message) }
func Conflict(code, message string) *Error   { return New(KindConflict, code, message) }
func NotFound(code, message string) *Error   { return New(KindNotFound, code, message) }

// ErrStorage is the generic persistence failure.
var ErrStorage = New(KindStorage, "storage_error", "storage failure")

// Storage wraps a persistence failure. Errors that are already classified
// are returned unchanged.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindStorage, Code: ErrStorage.Code, Message: ErrStorage.Message, Err: err}
}

// Wrap attaches a cause to a sentinel while keeping its kind and code.
func Wrap(sentinel *Error, err error) error {
	if sentinel == nil {
		return err
	}
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// KindOf reports the kind of err, or "" when it is unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err is classified with kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CodeOf returns the code of a classified error.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code
	}
	return ""
}
