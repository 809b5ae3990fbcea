package safeerr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure independently of the layer that raised it.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindPersistence
	KindConfiguration
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_failed"
	case KindPersistence:
		return "persistence_failed"
	case KindConfiguration:
		return "configuration_invalid"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to the status code shown to clients.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a message that is safe to show to a caller together with
// technical details that must only ever reach the logs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status for the error kind.
func (e *Error) Status() int {
	return e.Kind.HTTPStatus()
}

// New builds a typed error without an underlying cause.
func New(kind Kind, code, message string, details map[string]any) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Wrap builds a typed error around cause. The cause is kept for logging
// and errors.Is/As but is never rendered to clients.
func Wrap(cause error, kind Kind, code, message string, details map[string]any) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
		Err:     cause,
	}
}

// NotFound is shorthand for a KindNotFound error.
func NotFound(code, message string, details map[string]any) *Error {
	return New(KindNotFound, code, message, details)
}

// Validation is shorthand for a KindValidation error.
func Validation(code, message string, details map[string]any) *Error {
	return New(KindValidation, code, message, details)
}

// Persistence is shorthand for a KindPersistence error wrapping cause.
func Persistence(cause error, code, message string, details map[string]any) *Error {
	return Wrap(cause, KindPersistence, code, message, details)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var safe *Error
	if errors.As(err, &safe) {
		return safe, true
	}
	return nil, false
}

// IsKind reports whether err carries a typed error of the given kind.
func IsKind(err error, kind Kind) bool {
	safe, ok := As(err)
	return ok && safe.Kind == kind
}

// HasCode reports whether err carries a typed error with the given code.
func HasCode(err error, code string) bool {
	safe, ok := As(err)
	return ok && safe.Code == code
}

// Ensure passes typed errors through untouched and wraps anything else
// with the fallback classification. nil stays nil.
func Ensure(err error, kind Kind, code, message string, details map[string]any) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Wrap(err, kind, code, message, details)
}
