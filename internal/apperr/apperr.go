// Package apperr holds the error kinds shared by services. Handlers map them
// to HTTP status codes in one place (utils.Fail).
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("too many requests")
)

// Upstream is returned when a third-party provider refused or could not be
// reached. Rejected is true when the provider answered with a business error.
type Upstream struct {
	Provider string
	Rejected bool
	// Message is the client-facing summary; Detail carries the provider reason.
	Message  string
	Detail   string
	Response json.RawMessage
	Err      error
}

func (e *Upstream) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Detail)
}

func (e *Upstream) Unwrap() error { return e.Err }

// Validation wraps ErrValidation with a message for the client.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func Unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}
