package common

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so callers can tell "nothing to retry"
// apart from "transient, retry may help".
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindInvalidRequest   Kind = "InvalidRequest"
	KindUploadFailed     Kind = "UploadFailed"
	KindRasterError      Kind = "RasterError"
	KindModelUnavailable Kind = "ModelUnavailable"
	KindUnauthorized     Kind = "Unauthorized"
	KindForbidden        Kind = "Forbidden"
)

// Sentinels usable with errors.Is.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrUploadFailed     = &Error{Kind: KindUploadFailed}
	ErrRasterError      = &Error{Kind: KindRasterError}
	ErrModelUnavailable = &Error{Kind: KindModelUnavailable}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrForbidden        = &Error{Kind: KindForbidden}
)

// SynthesisFailedMessage is surfaced to users when generative synthesis fails.
const SynthesisFailedMessage = "could not synthesize the requested content, try a different prompt or selection"

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every NotFound regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindUploadFailed || e.Kind == KindModelUnavailable
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, nil, format, args...)
}

func InvalidRequest(format string, args ...any) error {
	return newError(KindInvalidRequest, nil, format, args...)
}

func UploadFailed(err error, format string, args ...any) error {
	return newError(KindUploadFailed, err, format, args...)
}

func RasterError(err error, format string, args ...any) error {
	return newError(KindRasterError, err, format, args...)
}

func ModelUnavailable(err error, format string, args ...any) error {
	return newError(KindModelUnavailable, err, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return newError(KindUnauthorized, nil, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(KindForbidden, nil, format, args...)
}

// KindOf returns the kind of the first *Error in the chain, or "" when err
// carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is classified as transient.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}
