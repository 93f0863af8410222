package httputil

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code returned to clients.
type Code string

const (
	CodeUnauthenticated     Code = "UNAUTHENTICATED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeTenantMismatch      Code = "TENANT_MISMATCH"
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidation          Code = "VALIDATION_FAILED"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeConflict            Code = "CONFLICT"
	CodePayloadTooLarge     Code = "PAYLOAD_TOO_LARGE"
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeCompanyGroupInUse   Code = "COMPANY_GROUP_IN_USE"
	CodeInternal            Code = "INTERNAL"
)

// APIError is an error that carries a client-safe code and message.
// The wrapped cause (if any) is for server-side logs only and is never
// serialized into a response.
type APIError struct {
	Code    Code
	Message string
	cause   error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// NewError creates an APIError with a client-safe message.
func NewError(code Code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// WrapError creates an APIError around an internal cause. The cause is kept
// for logging; clients only see code and message.
func WrapError(code Code, message string, cause error) *APIError {
	return &APIError{Code: code, Message: message, cause: cause}
}

// Convenience constructors for the common taxonomy.

func ErrUnauthenticated() *APIError {
	return NewError(CodeUnauthenticated, "authentication required")
}

func ErrForbidden() *APIError {
	// Deliberately generic so a denied caller cannot distinguish
	// "exists but not yours" from "does not exist".
	return NewError(CodeForbidden, "access denied")
}

func ErrNotFound(what string) *APIError {
	return NewError(CodeNotFound, what+" not found")
}

func ErrTenantMismatch() *APIError {
	return NewError(CodeTenantMismatch, "request is scoped to a different tenant")
}

// StatusForCode maps an error code to its HTTP status.
func StatusForCode(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden, CodeTenantMismatch:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeConstraintViolation, CodeCompanyGroupInUse:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AsAPIError extracts an APIError from an error chain. Unknown errors map to
// a generic INTERNAL error so raw store errors never reach clients.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return WrapError(CodeInternal, "internal server error", err)
}
