package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the category of an application error
type ErrorType string

const (
	// ErrTypeUnauthenticated represents missing, invalid or expired credentials
	ErrTypeUnauthenticated ErrorType = "unauthenticated"
	// ErrTypeQuotaExceeded represents a denied quota admission
	ErrTypeQuotaExceeded ErrorType = "quota_exceeded"
	// ErrTypeRateLimited represents a rate limit denial
	ErrTypeRateLimited ErrorType = "rate_limited"
	// ErrTypeInvalidToken represents an invalid or expired single-use token
	ErrTypeInvalidToken ErrorType = "invalid_token"
	// ErrTypeConflict represents a uniqueness conflict (e.g. duplicate email)
	ErrTypeConflict ErrorType = "conflict"
	// ErrTypeValidation represents invalid caller input
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeConfig represents configuration errors (fatal at startup)
	ErrTypeConfig ErrorType = "config"
	// ErrTypeInternal represents internal system errors; safe for the caller to retry
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
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

// HTTPStatus maps the error type to the status code exposed at the HTTP boundary
func (e *AppError) HTTPStatus() int {
	switch e.Type {
	case ErrTypeUnauthenticated:
		return http.StatusUnauthorized
	case ErrTypeQuotaExceeded, ErrTypeRateLimited:
		return http.StatusTooManyRequests
	case ErrTypeInvalidToken, ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeConflict:
		return http.StatusConflict
	case ErrTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// UnauthenticatedError creates a new authentication error. The message is
// deliberately generic: a revoked credential and one that never existed must
// be indistinguishable to the caller.
func UnauthenticatedError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeUnauthenticated,
		Message: msg,
	}
}

// QuotaExceededError creates a quota admission denial carrying the plan and
// quota figures for client display.
func QuotaExceededError(plan string, quota int) *AppError {
	return (&AppError{
		Type:    ErrTypeQuotaExceeded,
		Message: "Monthly quota exceeded.",
	}).WithContext("plan", plan).WithContext("quota", quota)
}

// RateLimitedError creates a rate limit denial for a bucket
func RateLimitedError(bucket string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimited,
		Message: "Too many requests, please try again later.",
		Context: map[string]interface{}{"bucket": bucket},
	}
}

// InvalidTokenError creates an invalid-or-expired token error
func InvalidTokenError() *AppError {
	return &AppError{
		Type:    ErrTypeInvalidToken,
		Message: "Invalid or expired token. Please request a new one.",
	}
}

// ConflictError creates a uniqueness conflict error
func ConflictError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConflict,
		Message: msg,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}
