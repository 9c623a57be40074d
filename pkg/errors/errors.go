package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Common error codes used across all packages
const (
	// Generic errors
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"

	// Client lifecycle errors
	ErrCodeInvalidScope   ErrorCode = "INVALID_SCOPE"
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrCodeRotationFailed ErrorCode = "ROTATION_FAILED"

	// Upstream/identity service errors
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an existing error with code and formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidArgument, ErrCodeInvalidScope, ErrCodeInvalidState:
		return http.StatusBadRequest

	case ErrCodeUnauthorized:
		return http.StatusUnauthorized

	case ErrCodeForbidden:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeRateLimited:
		return http.StatusTooManyRequests

	case ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable

	case ErrCodeRotationFailed, ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used errors

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// InvalidArgument creates an "invalid argument" error
func InvalidArgument(field, reason string) *Error {
	return Newf(ErrCodeInvalidArgument, "invalid %s: %s", field, reason)
}

// InvalidScope creates an error for a scope outside the allowed catalogue
func InvalidScope(scope string) *Error {
	return Newf(ErrCodeInvalidScope, "scope not allowed: %s", scope)
}

// InvalidState creates an error for mutations against an invalidated client
func InvalidState(clientID string) *Error {
	return Newf(ErrCodeInvalidState, "client is invalidated: %s", clientID)
}

// RateLimited creates a "rate limited" error for a limiter name and key
func RateLimited(limiter, key string) *Error {
	return Newf(ErrCodeRateLimited, "quota exceeded for %s: %s", limiter, key)
}

// UpstreamUnavailable wraps an identity service failure on a
// security-determining call
func UpstreamUnavailable(err error, call string) *Error {
	return Wrapf(err, ErrCodeUpstreamUnavailable, "identity service call failed: %s", call)
}
