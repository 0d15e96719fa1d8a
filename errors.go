package invoicing

import (
	"errors"
	"fmt"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/lease"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("invoicing: not found")
	ErrAlreadyExists = errors.New("invoicing: already exists")
	ErrInvalidInput  = errors.New("invoicing: invalid input")

	// Lookup errors
	ErrInvoiceNotFound   = errors.New("invoicing: invoice not found")
	ErrRecurringNotFound = errors.New("invoicing: recurring configuration not found")
	ErrCustomerNotFound  = errors.New("invoicing: customer not found")

	// Concurrency errors
	ErrDuplicateGeneration = errors.New("invoicing: invoice already generated for this cycle")
	ErrVersionConflict     = errors.New("invoicing: record was modified concurrently")

	// Store errors
	ErrStoreClosed     = errors.New("invoicing: store is closed")
	ErrMigrationFailed = errors.New("invoicing: migration failed")

	// Money and pricing errors
	ErrCurrencyMismatch = types.ErrCurrencyMismatch
	ErrAmountOverflow   = types.ErrAmountOverflow
	ErrInvalidQuantity  = invoice.ErrInvalidQuantity
	ErrInvalidRate      = invoice.ErrInvalidRate
	ErrInvalidUnitPrice = invoice.ErrInvalidUnitPrice
	ErrEmptyInvoice     = invoice.ErrEmptyInvoice
	ErrInvalidDueDate   = invoice.ErrInvalidDueDate
	ErrInvalidTerms     = invoice.ErrInvalidPaymentTerms

	// Lifecycle errors
	ErrInvalidTransition = invoice.ErrInvalidTransition
	ErrInvoiceNotDraft   = invoice.ErrInvoiceNotDraft
	ErrAmountMismatch    = invoice.ErrAmountMismatch
	ErrLineItemNotFound  = invoice.ErrLineItemNotFound

	// Recurring errors
	ErrInvalidFrequency           = recurring.ErrInvalidFrequency
	ErrEmptyTemplate              = recurring.ErrEmptyTemplate
	ErrInvalidRecurringTransition = recurring.ErrInvalidTransition

	// Coordination and delivery errors
	ErrLeaseHeld  = lease.ErrHeld
	ErrQueueFull  = delivery.ErrQueueFull
	ErrNotRunning = delivery.ErrNotRunning
)

// MultiError collects the per-configuration failures of a billing run.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "invoicing: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("invoicing: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrRecurringNotFound) ||
		errors.Is(err, ErrCustomerNotFound)
}

// IsConflict returns true if the operation lost a race with another writer.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrDuplicateGeneration) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrLeaseHeld)
}

// IsValidation returns true if the input was rejected before any state change.
func IsValidation(err error) bool {
	var ve *types.ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrLeaseHeld) ||
		errors.Is(err, ErrQueueFull)
}
