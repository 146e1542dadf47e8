package common

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks input that was rejected before anything was persisted.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced product, branch, promo or transaction that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPromoUsageExceeded marks a promo whose usage limit was reached while committing a sale.
	ErrPromoUsageExceeded = errors.New("promo usage limit exceeded")
	// ErrPersistenceConflict marks a transient store conflict that survived every retry.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrForbidden marks a resource outside the caller's ownership.
	ErrForbidden = errors.New("forbidden")
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// FieldError describes a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError builds a 422 AppError wrapping ErrValidation.
func ValidationError(message string, fields ...FieldError) *AppError {
	appErr := NewAppError("VALIDATION_ERROR", message, http.StatusUnprocessableEntity, ErrValidation)
	if len(fields) > 0 {
		appErr.Details = fields
	}
	return appErr
}

// NotFoundError builds a 404 AppError wrapping ErrNotFound.
func NotFoundError(resource string, id any) *AppError {
	return NewAppError("NOT_FOUND", fmt.Sprintf("%s %v not found", resource, id), http.StatusNotFound, ErrNotFound)
}

// PromoUsageExceededError builds a 409 AppError for an exhausted promo.
func PromoUsageExceededError(promoID int64) *AppError {
	appErr := NewAppError("PROMO_USAGE_EXCEEDED", fmt.Sprintf("promo %d reached its usage limit", promoID), http.StatusConflict, ErrPromoUsageExceeded)
	appErr.Details = map[string]any{"promoId": promoID}
	return appErr
}

// PersistenceConflictError builds a 503 AppError for retries that ran out.
func PersistenceConflictError(attempts int, err error) *AppError {
	appErr := NewAppError("PERSISTENCE_CONFLICT", "sale could not be committed, please resubmit", http.StatusServiceUnavailable, fmt.Errorf("%w after %d attempts: %v", ErrPersistenceConflict, attempts, err))
	appErr.Details = map[string]any{"attempts": attempts}
	return appErr
}

// ForbiddenError builds a 403 AppError wrapping ErrForbidden.
func ForbiddenError(message string) *AppError {
	return NewAppError("FORBIDDEN", message, http.StatusForbidden, ErrForbidden)
}

// WriteError renders err using the canonical error envelope. Errors that are not
// AppErrors are mapped from the sentinel kinds, anything else becomes a 500.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrValidation):
		JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrPromoUsageExceeded):
		JSONError(w, http.StatusConflict, "PROMO_USAGE_EXCEEDED", err.Error(), nil)
	case errors.Is(err, ErrPersistenceConflict):
		JSONError(w, http.StatusServiceUnavailable, "PERSISTENCE_CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		JSONError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	default:
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
