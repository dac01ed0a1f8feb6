package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Error codes
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeAuth       = "AUTH_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeUpstream   = "UPSTREAM_ERROR"
	ErrCodeDatabase   = "DATABASE_ERROR"
	ErrCodeRateLimit  = "RATE_LIMITED"
	ErrCodeUnexpected = "UNEXPECTED_ERROR"
)

// GenericMessage is returned to callers for errors that must not leak detail.
const GenericMessage = "An unexpected error occurred"

// New creates a new AppError
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with an AppError
func Wrap(err error, code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// Validation creates a validation error for missing or malformed input
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message, http.StatusBadRequest)
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized creates an auth error
func Unauthorized(message string) *AppError {
	return New(ErrCodeAuth, message, http.StatusUnauthorized)
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Upstream creates an error for a failed call to an external provider.
// The provider's message is kept as the public message.
func Upstream(provider string, err error) *AppError {
	msg := fmt.Sprintf("%s request failed", provider)
	if err != nil {
		msg = err.Error()
	}
	return Wrap(err, ErrCodeUpstream, msg, http.StatusInternalServerError)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, ErrCodeDatabase, message, http.StatusInternalServerError)
}

// RateLimited creates a rate limited error
func RateLimited(message string) *AppError {
	return New(ErrCodeRateLimit, message, http.StatusTooManyRequests)
}

// Unexpected creates an uncategorized internal error with a generic message
func Unexpected(err error) *AppError {
	return Wrap(err, ErrCodeUnexpected, GenericMessage, http.StatusInternalServerError)
}

// From converts any error into an AppError. Errors that are not already
// AppErrors are treated as unexpected.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Unexpected(err)
}

// Is reports whether err is an AppError with the given code
func Is(err error, code string) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
