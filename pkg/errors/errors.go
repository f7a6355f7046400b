package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeUnavailable indicates a prerequisite dependency is not ready
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// ErrorTypeMissingContext indicates the funnel lacks a location to attribute input to
	ErrorTypeMissingContext ErrorType = "MISSING_CONTEXT"

	// ErrorTypeResolutionFailure indicates location display data could not be loaded
	ErrorTypeResolutionFailure ErrorType = "RESOLUTION_FAILURE"

	// ErrorTypeSubmissionFailure indicates a rating or comment could not be persisted
	ErrorTypeSubmissionFailure ErrorType = "SUBMISSION_FAILURE"

	// ErrorTypeInvalidRating indicates a rating outside 1..5
	ErrorTypeInvalidRating ErrorType = "INVALID_RATING"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{Type: ErrorTypeConflict, Message: message}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeExternal, Message: message, Err: err}
}

// NewUnavailableError creates an error for a dependency that is not ready
func NewUnavailableError(message string) *AppError {
	return &AppError{Type: ErrorTypeUnavailable, Message: message}
}

// NewMissingContextError creates an error for a submission without a location
func NewMissingContextError(message string) *AppError {
	return &AppError{Type: ErrorTypeMissingContext, Message: message}
}

// NewResolutionFailure wraps a failed location lookup
func NewResolutionFailure(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeResolutionFailure, Message: message, Err: err}
}

// NewSubmissionFailure wraps a failed persist call
func NewSubmissionFailure(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeSubmissionFailure, Message: message, Err: err}
}

// NewInvalidRatingError creates an error for an out-of-range rating
func NewInvalidRatingError(rating int) *AppError {
	return &AppError{Type: ErrorTypeInvalidRating, Message: fmt.Sprintf("rating %d is outside 1..5", rating)}
}

// TypeOf returns the type of the first AppError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err's chain contains an AppError of type t.
func IsType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	for stderrors.As(err, &appErr) {
		if appErr.Type == t {
			return true
		}
		if appErr.Err == nil {
			return false
		}
		err = appErr.Err
	}
	return false
}

// HTTPStatus maps an error to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeValidation, ErrorTypeInvalidRating:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeMissingContext:
		return http.StatusUnprocessableEntity
	case ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeSubmissionFailure, ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message of the outermost AppError, suitable for clients.
func PublicMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
