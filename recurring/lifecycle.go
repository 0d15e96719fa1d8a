package recurring

import (
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

// New creates an active configuration whose first boundary is start.
func New(tenantID string, customerID id.CustomerID, freq Frequency, start civil.Date) *Config {
	return &Config{
		Entity:          types.NewEntity(),
		ID:              id.NewRecurringID(),
		TenantID:        tenantID,
		CustomerID:      customerID,
		Frequency:       freq,
		StartDate:       start,
		NextInvoiceDate: start,
		PaymentTerms:    invoice.DefaultPaymentTerms,
		Status:          StatusActive,
	}
}

// Validate checks that the configuration can produce invoices.
func (c *Config) Validate() error {
	if c.CustomerID.IsNil() {
		return types.NewValidationError("customer_id", ErrMissingCustomer, "customer is required")
	}
	if !c.Frequency.Valid() {
		return types.NewValidationError("frequency", ErrInvalidFrequency, "got %q", c.Frequency)
	}
	if c.StartDate == (civil.Date{}) || !c.StartDate.IsValid() {
		return types.NewValidationError("start_date", ErrMissingStartDate, "got %s", c.StartDate)
	}
	if err := c.PaymentTerms.Validate(); err != nil {
		return err
	}
	if len(c.Items) == 0 && !c.Amount.IsPositive() {
		return types.NewValidationError("items", ErrEmptyTemplate, "items or a positive amount are required")
	}
	if _, err := invoice.PriceInvoice(c.Currency, c.BuildItems(), invoice.RequireItems()); err != nil {
		return err
	}
	return nil
}

// Pause stops future cycles. Already issued invoices are not touched.
func (c *Config) Pause() error {
	if c.Status != StatusActive {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusPaused)
	}
	c.Status = StatusPaused
	c.Touch()
	return nil
}

// Resume reactivates a paused configuration. Boundaries that fell strictly
// before asOf while paused are not billed; a boundary on asOf still is.
func (c *Config) Resume(asOf civil.Date) error {
	if c.Status != StatusPaused {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusActive)
	}
	for c.NextInvoiceDate.Before(asOf) {
		next, err := NextOccurrence(c.StartDate, c.Frequency, c.NextCycle+1)
		if err != nil {
			return err
		}
		c.NextCycle++
		c.NextInvoiceDate = next
	}
	c.Status = StatusActive
	c.Touch()
	return nil
}

// Cancel ends the configuration permanently.
func (c *Config) Cancel() error {
	if c.Status == StatusCancelled {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, StatusCancelled)
	}
	c.Status = StatusCancelled
	c.Touch()
	return nil
}
