package conformance

import (
	"errors"
	"fmt"
)

// ValidationError indicates missing or malformed caller input. The API
// layer maps it to a 400 response; no storage write happens before one
// is raised.
type ValidationError struct {
	msg string
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return e.msg
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}
