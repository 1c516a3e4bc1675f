package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error for transport mapping
type Kind string

const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindNotFound   Kind = "NOT_FOUND"
	KindStore      Kind = "STORE_ERROR"
)

// Error is an application-level error carrying its kind and a user-facing message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates an error for missing or malformed input
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates an error for a missing resource
func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Store wraps an unexpected persistence failure. The message is the failure's own text.
func Store(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStore, Message: err.Error(), Err: err}
}

// KindOf returns the kind of err, or KindStore for errors that were never classified
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStore
}

// MessageOf returns the user-facing message of err
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
