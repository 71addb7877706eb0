package v1

import (
	"errors"
	"fmt"
)

// Common API errors.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrDuplicate          = errors.New("resource already exists")
	ErrTimeout            = errors.New("operation timed out")
	ErrUnauthorized       = errors.New("invalid or missing API key")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrStoreInconsistency = errors.New("metadata and vector stores disagree")
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
