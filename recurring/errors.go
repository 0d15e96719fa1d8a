package recurring

import "errors"

var (
	ErrInvalidFrequency  = errors.New("invoicing: invalid recurring frequency")
	ErrInvalidCycle      = errors.New("invoicing: cycle index must not be negative")
	ErrEmptyTemplate     = errors.New("invoicing: recurring template has no items or amount")
	ErrInvalidTransition = errors.New("invoicing: invalid recurring status transition")
	ErrMissingCustomer   = errors.New("invoicing: recurring configuration has no customer")
	ErrMissingStartDate  = errors.New("invoicing: recurring configuration has no start date")
)
