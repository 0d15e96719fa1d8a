package types

import (
	"errors"
	"fmt"
)

// ErrCurrencyMismatch is returned when two Money values of different
// currencies are combined. No arithmetic is performed in that case.
var ErrCurrencyMismatch = errors.New("invoicing: currency mismatch")

// ErrAmountOverflow is returned when an amount leaves the int64 range of
// minor units. No wrapped value is ever returned.
var ErrAmountOverflow = errors.New("invoicing: amount out of range")

// ValidationError reports an input that failed validation. Err carries the
// sentinel so callers can match it with errors.Is.
type ValidationError struct {
	Field   string
	Err     error
	Message string
}

// NewValidationError creates a ValidationError for field wrapping err.
func NewValidationError(field string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Err: err, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invoicing: validation failed for %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invoicing: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func mismatch(a, b Money) error {
	return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, a.Currency, b.Currency)
}

func overflow(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrAmountOverflow}, args...)...)
}
