package apiv2

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidateRequired fails with a VALIDATION_ERROR when value is empty or
// whitespace-only.
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, fmt.Sprintf("%s is required", field))
	}
	return nil
}

// ValidateUUID fails when value is not a parseable UUID. Returns the parsed
// value on success.
func ValidateUUID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, NewValidationError(field, fmt.Sprintf("%s must be a valid UUID", field))
	}
	return id, nil
}

// ValidateEnum fails when value is not one of allowed.
func ValidateEnum(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return NewValidationError(field,
		fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// ValidateRange fails when value is outside [min, max].
func ValidateRange(field string, value, min, max int) error {
	if value < min || value > max {
		return NewValidationError(field,
			fmt.Sprintf("%s must be between %d and %d", field, min, max))
	}
	return nil
}
