// Package apperr holds the error kinds that services return to the HTTP layer.
// Handlers never inspect messages; they switch on Kind through Status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindAuth            Kind = "auth"
	KindForbidden       Kind = "forbidden"
	KindExternalService Kind = "external_service"
	KindAmountMismatch  Kind = "amount_mismatch"
	KindConfiguration   Kind = "configuration"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	// Details is rendered into the "error" field of the response body.
	Details map[string]any
	Err     error
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

func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func ExternalService(message string, err error) *Error {
	return &Error{Kind: KindExternalService, Message: message, Err: err}
}

func AmountMismatch(format string, args ...any) *Error {
	return &Error{Kind: KindAmountMismatch, Message: fmt.Sprintf(format, args...)}
}

func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

func Status(kind Kind) int {
	switch kind {
	case KindValidation, KindAmountMismatch:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
