package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure for callers.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindAlreadyExists      Kind = "already_exists"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindNotFound           Kind = "not_found"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindInternal           Kind = "internal"
)

// Error is the error type returned by every service operation. Message is
// safe to show to callers; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrAlreadyExists      = &Error{Kind: KindAlreadyExists}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
)

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func invalidInput(message string) *Error {
	return newError(KindInvalidInput, message, nil)
}
