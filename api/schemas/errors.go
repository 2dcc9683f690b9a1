// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable classification string exposed in error payloads. Codes
// are part of the wire contract; clients branch on them, so they never change
// meaning and never leak internal detail.
type Code string

const (
	CodeUnauthorized    Code = "unauthorized"
	CodeRateLimited     Code = "rate_limited"
	CodeAtCapacity      Code = "at_capacity"
	CodeSessionNotFound Code = "session_not_found"
	CodeBrowserNotOpen  Code = "browser_not_open"
	CodeValidation      Code = "validation"
	CodeDriver          Code = "driver"
	CodeNotFound        Code = "not_found"
	CodeInternal        Code = "internal"
)

// Error is a classified service error. Components return it across package
// boundaries so the HTTP layer can map the code to a status without string
// matching.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// E builds a classified error with no underlying cause.
func E(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Errorf builds a classified error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. The cause stays reachable through
// errors.Unwrap but is never serialized to clients.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the classification of err, defaulting to CodeInternal for
// unclassified errors so nothing internal leaks to the wire.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message of err. Unclassified errors map
// to a generic message.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}

// HTTPStatus maps a classification code to its response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeAtCapacity:
		return http.StatusServiceUnavailable
	case CodeSessionNotFound, CodeBrowserNotOpen:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
