package models

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a custom error code for the application
type ErrorCode string

const (
	// General errors
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrCodeDatabaseQuery ErrorCode = "DATABASE_QUERY_ERROR"

	// Node-specific errors
	ErrCodeNetworkNotReady   ErrorCode = "NETWORK_NOT_BOOTSTRAPPED"
	ErrCodeUnknownAspect     ErrorCode = "UNKNOWN_ASPECT"
	ErrCodeJobAlreadyRunning ErrorCode = "JOB_ALREADY_RUNNING"

	// Service errors
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Internal   error                  `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error for error chain support
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Response renders the error body returned to API clients
func (e *AppError) Response() map[string]interface{} {
	body := map[string]interface{}{
		"error":   e.Code,
		"message": e.Message,
	}
	if e.Details != "" {
		body["details"] = e.Details
	}
	if len(e.Metadata) > 0 {
		body["metadata"] = e.Metadata
	}
	return body
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Common error constructors

func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewValidationError(message string, details string) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		StatusCode: http.StatusBadRequest,
	}
}

func NewDatabaseError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeDatabaseQuery,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

func NewNetworkNotReadyError(err error) *AppError {
	return &AppError{
		Code:       ErrCodeNetworkNotReady,
		Message:    "Network settings have not been bootstrapped yet",
		StatusCode: http.StatusServiceUnavailable,
		Internal:   err,
	}
}

func NewUnknownAspectError(aspect string) *AppError {
	return &AppError{
		Code:       ErrCodeUnknownAspect,
		Message:    "Unknown node aspect",
		StatusCode: http.StatusNotFound,
		Metadata: map[string]interface{}{
			"aspect":  aspect,
			"allowed": []string{"peer", "api", "voting"},
		},
	}
}

func NewJobAlreadyRunningError(job string) *AppError {
	return &AppError{
		Code:       ErrCodeJobAlreadyRunning,
		Message:    "Job is already running",
		StatusCode: http.StatusConflict,
		Metadata: map[string]interface{}{
			"job": job,
		},
	}
}

func NewRateLimitError(message string) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimitExceeded,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}
