// Package apperr defines the typed error taxonomy surfaced by the exam core:
// NotFound, Forbidden, InvalidState and Invalid (validation failure). Handlers
// map each kind to an HTTP status; none of them is retried inside the core.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	// KindNotFound means the referenced entity does not exist.
	KindNotFound Kind = iota
	// KindForbidden means an ownership or role check failed.
	KindForbidden
	// KindInvalidState means the operation is not legal in the entity's
	// current state (wrong attempt status, time window, time limit).
	KindInvalidState
	// KindInvalid means the request payload is malformed.
	KindInvalid
)

// Error is a typed application error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidState returns a KindInvalidState error.
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Invalid returns a KindInvalid error.
func Invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// StatusCode maps an error to an HTTP status code.
func StatusCode(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
