package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the normalized error kind surfaced to callers.
type ErrorCode string

const (
	ErrCodeAuthExpired        ErrorCode = "AUTH_EXPIRED"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeNetwork            ErrorCode = "NETWORK_ERROR"
	ErrCodeServer             ErrorCode = "SERVER_ERROR"
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeExternalCatalog    ErrorCode = "EXTERNAL_CATALOG_ERROR"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// GenericMessage is shown when the server did not provide a usable message.
const GenericMessage = "Something went wrong, please try again"

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
	// Fields holds per-field messages for validation errors.
	Fields map[string]string
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewAuthExpiredError() *AppError {
	return NewAppError(ErrCodeAuthExpired, "session expired, please log in again", http.StatusUnauthorized)
}

// NewUnauthorizedError is a 401 on a request that carried no session, such as a failed login.
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "invalid credentials"
	}
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewNetworkError(cause error) *AppError {
	return WrapError(cause, ErrCodeNetwork, "network error, the server could not be reached", 0)
}

// NewValidationError builds a client-side validation error. It never reaches the network.
func NewValidationError(fields map[string]string) *AppError {
	err := NewAppError(ErrCodeValidation, "validation failed", http.StatusBadRequest)
	err.Fields = fields
	return err
}

func NewExternalCatalogError(cause error) *AppError {
	return WrapError(cause, ErrCodeExternalCatalog, "external catalog unavailable", http.StatusBadGateway)
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// FromStatus maps a non-2xx, non-401 HTTP status to a normalized error.
// An empty message falls back to GenericMessage.
func FromStatus(status int, message string) *AppError {
	if message == "" {
		message = GenericMessage
	}

	code := ErrCodeServer
	switch {
	case status == http.StatusUnauthorized:
		code = ErrCodeAuthExpired
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		code = ErrCodeInvalidInput
	case status == http.StatusForbidden:
		code = ErrCodeForbidden
	case status == http.StatusNotFound:
		code = ErrCodeNotFound
	case status == http.StatusConflict:
		code = ErrCodeConflict
	case status == http.StatusTooManyRequests:
		code = ErrCodeRateLimit
	case status == http.StatusServiceUnavailable:
		code = ErrCodeServiceUnavailable
	}

	return NewAppError(code, message, status)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// KindOf returns the normalized kind of err, or ErrCodeInternal for foreign errors.
func KindOf(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ErrCodeInternal
}

func IsAuthExpired(err error) bool {
	return err != nil && KindOf(err) == ErrCodeAuthExpired
}

// UserMessage returns the message suitable for a toast.
func UserMessage(err error, fallback string) string {
	if fallback == "" {
		fallback = GenericMessage
	}
	appErr := GetAppError(err)
	if appErr == nil || appErr.Message == "" {
		return fallback
	}
	if appErr.Code == ErrCodeInternal {
		return fallback
	}
	return appErr.Message
}
