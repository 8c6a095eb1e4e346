package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError carries per-field validation failures for a request.
// It satisfies the error interface and reports EINVALID through ErrorCode.
type ValidationError struct {
	// Op is the operation where validation failed (e.g., "checkout.create").
	Op string

	// Fields maps field names to human-readable failure messages.
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Op != "" {
			return fmt.Sprintf("%s: validation failed", e.Op)
		}
		return "validation failed"
	}

	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}

	if e.Op != "" {
		return fmt.Sprintf("%s: validation failed (%s)", e.Op, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("validation failed (%s)", strings.Join(parts, "; "))
}

// NewValidationError creates a validation error with an initial field failure.
func NewValidationError(op, field, message string) error {
	return &ValidationError{
		Op:     op,
		Fields: map[string]string{field: message},
	}
}

// AddFieldError records an additional field failure on an existing
// validation error. If err is not a ValidationError a new one is created.
func AddFieldError(err error, field, message string) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Fields == nil {
			ve.Fields = make(map[string]string)
		}
		ve.Fields[field] = message
		return err
	}
	return NewValidationError("", field, message)
}

// ValidationFields extracts the per-field failures from an error.
// Returns nil if err is not a validation error.
func ValidationFields(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
