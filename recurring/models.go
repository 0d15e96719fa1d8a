// Package recurring models recurring billing configurations and the
// calendar arithmetic that decides when each cycle is due.
package recurring

import (
	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

// Frequency is the billing cadence of a configuration.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// Status is the lifecycle state of a configuration.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Config describes an invoice to issue on every cycle boundary.
//
// NextCycle is the index of the next boundary to bill and NextInvoiceDate is
// always NextOccurrence(StartDate, Frequency, NextCycle). Boundaries are
// derived from the start date and the index, never from the previous
// boundary, so month-end clamping does not drift.
type Config struct {
	types.Entity
	ID              id.RecurringID       `json:"id"`
	TenantID        string               `json:"tenant_id"`
	CustomerID      id.CustomerID        `json:"customer_id"`
	PlanDescription string               `json:"plan_description"`
	Currency        string               `json:"currency"`
	Items           []invoice.LineItem   `json:"items,omitempty"`
	Amount          types.Money          `json:"amount"`
	Frequency       Frequency            `json:"frequency"`
	StartDate       civil.Date           `json:"start_date"`
	NextInvoiceDate civil.Date           `json:"next_invoice_date"`
	NextCycle       int                  `json:"next_cycle"`
	PaymentTerms    invoice.PaymentTerms `json:"payment_terms"`
	AutoSend        bool                 `json:"auto_send"`
	AutoCharge      bool                 `json:"auto_charge"`
	Status          Status               `json:"status"`
	LastInvoiceID   id.InvoiceID         `json:"last_invoice_id,omitempty"`
	LastInvoiceDate civil.Date           `json:"last_invoice_date,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Version         int64                `json:"version"`
	Metadata        map[string]string    `json:"metadata,omitempty"`
}

// Boundary is one billing date of a configuration.
type Boundary struct {
	Cycle int
	Date  civil.Date
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = append([]invoice.LineItem(nil), c.Items...)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// BuildItems returns fresh line items for one cycle from the template. A
// configuration without items bills its flat Amount as a single line.
func (c *Config) BuildItems() []invoice.LineItem {
	if len(c.Items) == 0 {
		return []invoice.LineItem{{
			ID:          id.NewLineItemID(),
			Description: c.PlanDescription,
			Quantity:    1,
			UnitPrice:   c.Amount,
		}}
	}
	items := make([]invoice.LineItem, len(c.Items))
	for i, tmpl := range c.Items {
		items[i] = invoice.LineItem{
			ID:           id.NewLineItemID(),
			Description:  tmpl.Description,
			ServiceID:    tmpl.ServiceID,
			Quantity:     tmpl.Quantity,
			UnitPrice:    tmpl.UnitPrice,
			TaxRate:      tmpl.TaxRate,
			DiscountRate: tmpl.DiscountRate,
		}
	}
	return items
}
