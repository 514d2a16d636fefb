package errors

import (
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"

	// Authentication errors (401xx)
	ErrInvalidCredentials ErrorCode = "40101"
	ErrInvalidSignature   ErrorCode = "40102"

	// Resource errors (404xx)
	ErrCallNotFound    ErrorCode = "40401"
	ErrMappingNotFound ErrorCode = "40402"
	ErrAccountNotFound ErrorCode = "40403"
	ErrContactNotFound ErrorCode = "40404"

	// Server errors (500xx)
	ErrInternalServer  ErrorCode = "50001"
	ErrRecordingFailed ErrorCode = "50002"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id"`
}

// Common errors
var (
	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid or missing bearer token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidSignatureError = &APIError{
		Code:       ErrInvalidSignature,
		Message:    "Webhook signature verification failed",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrCallNotFoundError = &APIError{
		Code:       ErrCallNotFound,
		Message:    "Call record not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMappingNotFoundError = &APIError{
		Code:       ErrMappingNotFound,
		Message:    "Contact mapping not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrAccountNotFoundError = &APIError{
		Code:       ErrAccountNotFound,
		Message:    "Account not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrContactNotFoundError = &APIError{
		Code:       ErrContactNotFound,
		Message:    "Contact not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	// ErrRecordingFailedError is returned when an event could not be
	// durably recorded. The ledger keeps the entry in a retryable state,
	// so the provider may redeliver.
	ErrRecordingFailedError = &APIError{
		Code:       ErrRecordingFailed,
		Message:    "Failed to record event; delivery may be retried",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}
