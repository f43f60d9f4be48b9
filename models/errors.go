package models

import (
	"fmt"
	"net/http"
)

// ErrorType is the typed taxonomy every failure is reported as.
type ErrorType string

const (
	// ValidationError is a malformed or unsafe request, detected before execution.
	ValidationError ErrorType = "validation_error"

	// PermissionError is an authentication or authorization failure on the server.
	PermissionError ErrorType = "permission_error"

	// TableNotFound means the query referenced a table that does not exist.
	TableNotFound ErrorType = "table_not_found"

	// NetworkError covers connection, socket and timeout failures.
	NetworkError ErrorType = "network_error"

	// QueryError is any other execution failure, including SQL syntax errors.
	QueryError ErrorType = "query_error"
)

// Synthetic kinds understood by ExtendedStatusCode only.
const (
	KindTimeout   = "timeout"
	KindRateLimit = "rate_limit"
)

// APIError is the error value returned to API callers.
type APIError struct {
	Type    ErrorType      `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewAPIError creates an APIError.
func NewAPIError(t ErrorType, message string, details map[string]any) *APIError {
	return &APIError{Type: t, Message: message, Details: details}
}

// NewValidationError creates an APIError of type ValidationError.
func NewValidationError(message string, details map[string]any) *APIError {
	return NewAPIError(ValidationError, message, details)
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// StatusCode returns the HTTP status for the error.
func (e *APIError) StatusCode() int {
	return StatusCode(e.Type)
}

// StatusCode maps an error type to its HTTP status. Unknown types map to 500.
func StatusCode(t ErrorType) int {
	switch t {
	case ValidationError:
		return http.StatusBadRequest
	case PermissionError:
		return http.StatusForbidden
	case TableNotFound:
		return http.StatusNotFound
	case NetworkError:
		return http.StatusServiceUnavailable
	case QueryError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ExtendedStatusCode is StatusCode plus the synthetic "timeout" (408) and
// "rate_limit" (429) kinds.
func ExtendedStatusCode(kind string) int {
	switch kind {
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return StatusCode(ErrorType(kind))
	}
}
