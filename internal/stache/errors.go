package stache

import (
	"errors"
	"fmt"
)

// baseError carries the fields shared by every typed failure. The RequestID
// is the backend-assigned correlation id found in the response body, when one
// was present, so failures can be cross-referenced with backend logs.
type baseError struct {
	Message   string
	RequestID string
}

func (e *baseError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id: %s)", e.Message, e.RequestID)
	}
	return e.Message
}

// ConnectionError means the backend could not be reached: network failure,
// timeout, or Lambda function not found. Always retryable.
type ConnectionError struct {
	baseError
	// Cause is the underlying transport error, if any.
	Cause error
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// AuthError means credentials were rejected or permission was denied
// (401/403, or Lambda access denied). Never retried.
type AuthError struct {
	baseError
}

// NotFoundError maps from a 404 response. Never retried.
type NotFoundError struct {
	baseError
}

// APIError covers every other >= 400 response, carrying the numeric status.
// Retried only for 429 and 5xx.
type APIError struct {
	baseError
	StatusCode int
}

func (e *APIError) Error() string {
	base := fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id: %s)", base, e.RequestID)
	}
	return base
}

// ValidationError is a caller-side contract violation caught before any
// network call (oversized ingest text, malformed metadata JSON, missing
// required argument). Never retried.
type ValidationError struct {
	baseError
}

func newConnectionError(message string, cause error) *ConnectionError {
	return &ConnectionError{baseError: baseError{Message: message}, Cause: cause}
}

func newAuthError(message, requestID string) *AuthError {
	return &AuthError{baseError: baseError{Message: message, RequestID: requestID}}
}

func newAPIError(message string, status int, requestID string) *APIError {
	return &APIError{baseError: baseError{Message: message, RequestID: requestID}, StatusCode: status}
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{baseError: baseError{Message: fmt.Sprintf(format, args...)}}
}

// errorForStatus maps an HTTP status code to the typed error for that code.
// Codes below 400 return nil.
func errorForStatus(status int, message, requestID string) error {
	switch {
	case status == 401 || status == 403:
		return newAuthError(message, requestID)
	case status == 404:
		return &NotFoundError{baseError: baseError{Message: message, RequestID: requestID}}
	case status >= 400:
		return newAPIError(message, status, requestID)
	}
	return nil
}

// isRetryableStatus reports whether an HTTP status indicates a transient
// condition: 429 or any 5xx.
func isRetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}

// isRetryableAPIError reports whether err is an APIError with a retryable
// status code.
func isRetryableAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && isRetryableStatus(apiErr.StatusCode)
}

// isConnectionError reports whether err is a ConnectionError.
func isConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
