package apiv2

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error types in the fixed taxonomy. Each maps to exactly one HTTP status.
const (
	TypeValidation         = "VALIDATION_ERROR"
	TypeUnauthorized       = "UNAUTHORIZED"
	TypeForbidden          = "FORBIDDEN"
	TypeNotFound           = "NOT_FOUND"
	TypeConflict           = "CONFLICT"
	TypeRateLimit          = "RATE_LIMIT_EXCEEDED"
	TypePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	TypeDatabase           = "DATABASE_ERROR"
	TypeTimeout            = "TIMEOUT"
	TypeServiceUnavailable = "SERVICE_UNAVAILABLE"
	TypeInternal           = "INTERNAL_ERROR"
)

// APIError is a classified error carrying its HTTP status and envelope type.
type APIError struct {
	Type       string
	StatusCode int
	Message    string
	Field      string // Set for validation errors only.
	ErrorID    string // Generated at construction for log correlation.
	cause      error
}

func (e *APIError) Error() string { return e.Message }

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *APIError) Unwrap() error { return e.cause }

func newAPIError(typ string, status int, msg string) *APIError {
	return &APIError{
		Type:       typ,
		StatusCode: status,
		Message:    msg,
		ErrorID:    newErrorID(),
	}
}

// NewValidationError builds a 400 error naming the offending field.
func NewValidationError(field, msg string) *APIError {
	e := newAPIError(TypeValidation, http.StatusBadRequest, msg)
	e.Field = field
	return e
}

// NewUnauthorizedError builds a 401 error.
func NewUnauthorizedError(msg string) *APIError {
	return newAPIError(TypeUnauthorized, http.StatusUnauthorized, msg)
}

// NewForbiddenError builds a 403 error.
func NewForbiddenError(msg string) *APIError {
	return newAPIError(TypeForbidden, http.StatusForbidden, msg)
}

// NewNotFoundError builds a 404 error for the named resource.
func NewNotFoundError(resource string) *APIError {
	return newAPIError(TypeNotFound, http.StatusNotFound, resource+" not found")
}

// NewConflictError builds a 409 error.
func NewConflictError(msg string) *APIError {
	return newAPIError(TypeConflict, http.StatusConflict, msg)
}

// NewRateLimitError builds a 429 error.
func NewRateLimitError() *APIError {
	return newAPIError(TypeRateLimit, http.StatusTooManyRequests, "rate limit exceeded")
}

// NewPayloadTooLargeError builds a 413 error naming the byte limit.
func NewPayloadTooLargeError(limit int64) *APIError {
	return newAPIError(TypePayloadTooLarge, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds %d bytes", limit))
}

// NewServiceUnavailableError builds a 503 error.
func NewServiceUnavailableError(msg string) *APIError {
	return newAPIError(TypeServiceUnavailable, http.StatusServiceUnavailable, msg)
}

// NewInternalError builds a 500 error wrapping its cause.
func NewInternalError(cause error) *APIError {
	e := newAPIError(TypeInternal, http.StatusInternalServerError, "internal server error")
	e.cause = cause
	return e
}

// Classify maps an arbitrary error to an *APIError. Already-classified errors
// pass through unchanged; context deadline errors become timeouts; database
// errors are detected by message shape. In production mode the database and
// internal messages are replaced with generic text so driver details never
// reach clients.
func Classify(err error, production bool) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newAPIError(TypeTimeout, http.StatusGatewayTimeout, "request timed out")
	case errors.As(err, &maxBytes):
		// Surfaces from handlers reading a body capped by http.MaxBytesReader.
		return NewPayloadTooLargeError(maxBytes.Limit)
	case isDatabaseError(err):
		msg := err.Error()
		if production {
			msg = "a database error occurred"
		}
		e := newAPIError(TypeDatabase, http.StatusInternalServerError, msg)
		e.cause = err
		return e
	default:
		e := newAPIError(TypeInternal, http.StatusInternalServerError, "internal server error")
		if !production {
			e.Message = err.Error()
		}
		e.cause = err
		return e
	}
}

// isDatabaseError detects driver-level failures by message shape.
// Classified errors never reach this path, so false negatives only cost
// a generic INTERNAL_ERROR classification.
func isDatabaseError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"sqlstate", "pq:", "pgconn", "duplicate key", "violates", "connection refused"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func newErrorID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "err_" + hex.EncodeToString(b)
}
