package models

import "fmt"

// ServiceError is a typed error carrying the machine-readable code and the
// HTTP status class the boundary should translate it to.
type ServiceError struct {
	Code       string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Is lets errors.Is match sentinel instances by code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

var (
	// ErrNegativeBalance rejects an adjustment that would drive quantity
	// below zero. Recoverable by the caller, never partially applied.
	ErrNegativeBalance = &ServiceError{Code: "NEGATIVE_BALANCE_FORBIDDEN", StatusCode: 409}

	// ErrInsufficientStock rejects a transfer, issue or reservation that
	// exceeds the physical or available quantity.
	ErrInsufficientStock = &ServiceError{Code: "INSUFFICIENT_STOCK", StatusCode: 409}

	// ErrStoreNotReady signals a transient storage problem, safe to retry.
	ErrStoreNotReady = &ServiceError{Code: "DB_NOT_READY", StatusCode: 503}
)

// NewValidationError builds a 400-class error for malformed input, rejected
// before any storage access.
func NewValidationError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{
		Code:       "VALIDATION_ERROR",
		StatusCode: 400,
		Message:    fmt.Sprintf(format, args...),
	}
}
