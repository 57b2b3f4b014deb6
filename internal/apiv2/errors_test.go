package apiv2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err        *APIError
		wantType   string
		wantStatus int
	}{
		{NewValidationError("name", "name is required"), TypeValidation, http.StatusBadRequest},
		{NewUnauthorizedError("missing token"), TypeUnauthorized, http.StatusUnauthorized},
		{NewForbiddenError("no permission"), TypeForbidden, http.StatusForbidden},
		{NewNotFoundError("workflow"), TypeNotFound, http.StatusNotFound},
		{NewConflictError("duplicate rule"), TypeConflict, http.StatusConflict},
		{NewRateLimitError(), TypeRateLimit, http.StatusTooManyRequests},
		{NewPayloadTooLargeError(1 << 20), TypePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{NewServiceUnavailableError("maintenance"), TypeServiceUnavailable, http.StatusServiceUnavailable},
		{NewInternalError(errors.New("boom")), TypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if tt.err.Type != tt.wantType {
			t.Errorf("type = %q, want %q", tt.err.Type, tt.wantType)
		}
		if tt.err.StatusCode != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.wantType, tt.err.StatusCode, tt.wantStatus)
		}
		if tt.err.ErrorID == "" {
			t.Errorf("%s: error_id not generated", tt.wantType)
		}
	}
}

func TestValidationErrorField(t *testing.T) {
	err := NewValidationError("email", "email is required")
	if err.Field != "email" {
		t.Errorf("field = %q, want email", err.Field)
	}
	if err.StatusCode != 400 {
		t.Errorf("statusCode = %d, want 400", err.StatusCode)
	}
}

func TestClassifyPassthrough(t *testing.T) {
	orig := NewNotFoundError("task")
	wrapped := fmt.Errorf("handler: %w", orig)
	got := Classify(wrapped, false)
	if got != orig {
		t.Error("classified error should pass through unchanged")
	}
}

func TestClassifyTimeout(t *testing.T) {
	got := Classify(context.DeadlineExceeded, false)
	if got.Type != TypeTimeout || got.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("got %q/%d, want TIMEOUT/504", got.Type, got.StatusCode)
	}
}

func TestClassifyMaxBytes(t *testing.T) {
	err := fmt.Errorf("binding body: %w", &http.MaxBytesError{Limit: 1 << 20})
	got := Classify(err, true)
	if got.Type != TypePayloadTooLarge || got.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("got %q/%d, want PAYLOAD_TOO_LARGE/413", got.Type, got.StatusCode)
	}
}

func TestClassifyDatabaseRedaction(t *testing.T) {
	dbErr := errors.New(`pq: duplicate key value violates unique constraint "masking_rules_table_column_key"`)

	dev := Classify(dbErr, false)
	if dev.Type != TypeDatabase {
		t.Fatalf("type = %q, want DATABASE_ERROR", dev.Type)
	}
	if dev.Message == "a database error occurred" {
		t.Error("development mode must preserve the original message")
	}

	prod := Classify(dbErr, true)
	if prod.Message != "a database error occurred" {
		t.Errorf("production message = %q, want generic text", prod.Message)
	}
}

func TestClassifyInternalRedaction(t *testing.T) {
	err := errors.New("nil pointer in scoring")
	prod := Classify(err, true)
	if prod.Message != "internal server error" {
		t.Errorf("production internal message = %q", prod.Message)
	}
	if !errors.Is(prod, err) {
		t.Error("cause must remain unwrappable")
	}
}

func TestValidators(t *testing.T) {
	if err := ValidateRequired("name", "  "); err == nil {
		t.Error("whitespace-only value should fail")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Field != "name" || apiErr.StatusCode != 400 {
			t.Errorf("unexpected validation error: %v", err)
		}
	}
	if err := ValidateRequired("name", "ok"); err != nil {
		t.Errorf("non-empty value failed: %v", err)
	}

	if _, err := ValidateUUID("id", "not-a-uuid"); err == nil {
		t.Error("bad uuid should fail")
	}
	if _, err := ValidateUUID("id", "6ba7b810-9dad-11d1-80b4-00c04fd430c8"); err != nil {
		t.Errorf("valid uuid failed: %v", err)
	}

	if err := ValidateEnum("status", "unknown", "pending", "running"); err == nil {
		t.Error("out-of-enum value should fail")
	}
	if err := ValidateEnum("status", "running", "pending", "running"); err != nil {
		t.Errorf("in-enum value failed: %v", err)
	}

	if err := ValidateRange("limit", 500, 1, 100); err == nil {
		t.Error("out-of-range value should fail")
	}
	if err := ValidateRange("limit", 50, 1, 100); err != nil {
		t.Errorf("in-range value failed: %v", err)
	}
}
