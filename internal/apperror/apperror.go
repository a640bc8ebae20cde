// Package apperror defines the typed error taxonomy of SPEC_FULL.md §7.
// It stays framework-agnostic; internal/server's error handler is what
// maps an *Error to the documented JSON envelope.
package apperror

import (
	"errors"
	"fmt"
)

// Detail describes one field-level validation failure.
type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed domain error every handler and service raises instead
// of panicking or relying on exceptions for control flow (§9).
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Details    []Detail
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap attaches an underlying cause for logging without changing the
// public code/message contract.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

func new_(status int, code, message string) *Error {
	return &Error{StatusCode: status, Code: code, Message: message}
}

// Constructors for the taxonomy in §7.
func ValidationError(message string, details ...Detail) *Error {
	e := new_(400, "VALIDATION_ERROR", message)
	e.Details = details
	return e
}

func BadInput(message string) *Error      { return new_(400, "BAD_INPUT", message) }
func Unauthorized(message string) *Error  { return new_(401, "UNAUTHORIZED", message) }
func Forbidden(message string) *Error     { return new_(403, "FORBIDDEN", message) }
func NotFound(message string) *Error      { return new_(404, "NOT_FOUND", message) }
func Conflict(message string) *Error      { return new_(409, "CONFLICT", message) }
func IdempotencyConflict() *Error {
	return new_(409, "IDEMPOTENCY_CONFLICT", "a request with this Idempotency-Key is still being processed")
}
func RateLimited(message string) *Error   { return new_(429, "RATE_LIMITED", message) }
func ModeNotFound(modeKey string) *Error {
	return new_(404, "MODE_NOT_FOUND", fmt.Sprintf("mode %q is not registered", modeKey))
}
func ModeUnavailableForLeague(modeKey, league string) *Error {
	return new_(400, "MODE_UNAVAILABLE_FOR_LEAGUE", fmt.Sprintf("mode %q is not available for league %q", modeKey, league))
}
func Internal(message string) *Error { return new_(500, "INTERNAL_ERROR", message) }

// As reports whether err is (or wraps) an *Error, mirroring errors.As for
// callers that need the typed fields.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
