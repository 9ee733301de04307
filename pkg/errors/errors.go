package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a typed error code.
type ErrorCode string

const (
	// ErrorCodeConfiguration represents invalid input at client construction.
	ErrorCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrorCodeValidation represents an invalid argument to an operation.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeNotFound represents a blob or snapshot that does not exist.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeConflict represents a rejected write or failed precondition.
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeUnauthorized represents a permission or authentication denial.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodeBadRequest represents a request the service rejected as malformed.
	ErrorCodeBadRequest ErrorCode = "BAD_REQUEST"
	// ErrorCodeTransient represents a fault that persisted after all retries.
	ErrorCodeTransient ErrorCode = "TRANSIENT"
	// ErrorCodeCanceled represents an operation aborted by its context.
	ErrorCodeCanceled ErrorCode = "CANCELED"
	// ErrorCodeClosed represents an operation on a closed client.
	ErrorCodeClosed ErrorCode = "CLOSED"
	// ErrorCodeInternal represents an unclassified failure.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code, message, and HTTP status.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Err        error
	Details    map[string]interface{}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: ToHTTPStatus(code),
	}
}

// NewAppErrorWithErr creates a new application error with an underlying error.
func NewAppErrorWithErr(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: ToHTTPStatus(code),
		Err:        err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// ErrorResponse represents the JSON error response format.
type ErrorResponse struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToErrorResponse converts an AppError to an ErrorResponse for JSON serialization.
func (e *AppError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// ToHTTPStatus maps an error code to HTTP status code.
func ToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrorCodeBadRequest, ErrorCodeValidation:
		return http.StatusBadRequest
	case ErrorCodeUnauthorized:
		return http.StatusForbidden
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeConflict:
		return http.StatusConflict
	case ErrorCodeTransient, ErrorCodeClosed:
		return http.StatusServiceUnavailable
	case ErrorCodeCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus classifies a storage service response status.
// Timeouts, throttling and server faults are transient; everything else is permanent.
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return ErrorCodeNotFound
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return ErrorCodeConflict
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorCodeUnauthorized
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return ErrorCodeTransient
	case status >= 500:
		return ErrorCodeTransient
	case status >= 400:
		return ErrorCodeBadRequest
	default:
		return ErrorCodeInternal
	}
}

// FromError converts a standard error to an AppError.
// If the error already is, or wraps, an AppError, that error is returned.
// Otherwise, it wraps it as an internal error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewAppErrorWithErr(ErrorCodeInternal, "An internal error occurred", err)
}

// CodeOf returns the code of the AppError in err's chain, or ErrorCodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// IsRetryable reports whether err is a transient fault worth another attempt.
func IsRetryable(err error) bool {
	return IsCode(err, ErrorCodeTransient)
}

// Common error constructors

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorCodeConfiguration, message)
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorCodeValidation, message)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrorCodeNotFound, message)
}

// NewConflictError creates a conflict error.
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorCodeConflict, message)
}

// NewUnauthorizedError creates an authorization error.
func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrorCodeUnauthorized, message)
}

// NewBadRequestError creates a bad request error.
func NewBadRequestError(message string) *AppError {
	return NewAppError(ErrorCodeBadRequest, message)
}

// NewTransientError creates a transient error.
func NewTransientError(message string, err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeTransient, message, err)
}

// NewCanceledError creates a cancellation error wrapping the context error.
func NewCanceledError(err error) *AppError {
	return NewAppErrorWithErr(ErrorCodeCanceled, "operation canceled", err)
}

// NewClosedError creates an error for use of a closed client.
func NewClosedError() *AppError {
	return NewAppError(ErrorCodeClosed, "blob client is closed")
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternal, message)
}
