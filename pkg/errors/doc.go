// Package errors provides structured error handling with error codes for simple-clients.
//
// This package standardizes error handling across all services with typed error codes,
// structured error details, and automatic HTTP status code mapping.
//
// # Basic Usage
//
// Creating errors with codes:
//
//	import "github.com/tendant/simple-clients/pkg/errors"
//
//	// Create a simple error
//	err := errors.New(errors.ErrCodeNotFound, "client not found")
//
//	// Create error with formatted message
//	err := errors.Newf(errors.ErrCodeInvalidScope, "scope not allowed: %s", scope)
//
//	// Wrap an existing error
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to query database")
//
//	// Use convenience constructors
//	err := errors.NotFound("client", clientID)
//	err := errors.InvalidArgument("limit", "must be between 1 and 100")
//
// # Error Codes
//
// Error codes are strongly typed and stable; callers receive the code and
// message only, never internal causes:
//
// Generic:
//   - ErrCodeInternal
//   - ErrCodeNotFound
//   - ErrCodeUnauthorized
//   - ErrCodeForbidden
//   - ErrCodeInvalidArgument
//   - ErrCodeRateLimited
//
// Client lifecycle:
//   - ErrCodeInvalidScope
//   - ErrCodeInvalidState
//   - ErrCodeRotationFailed
//
// Upstream:
//   - ErrCodeUpstreamUnavailable
//
// # Checking Error Codes
//
//	if errors.IsCode(err, errors.ErrCodeNotFound) {
//		// handle not found
//	}
//
//	status := errors.MapErrorCodeToHTTPStatus(errors.GetCode(err))
package errors
