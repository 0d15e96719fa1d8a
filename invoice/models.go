package invoice

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/types"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// IsOpen reports whether the invoice still awaits payment.
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusOverdue
}

// Invoice is a priced bill for a customer. Totals are derived from the line
// items while the invoice is a draft and frozen once it is issued.
type Invoice struct {
	types.Entity
	ID           id.InvoiceID      `json:"id"`
	TenantID     string            `json:"tenant_id"`
	Number       string            `json:"number,omitempty"`
	Sequence     int64             `json:"sequence,omitempty"`
	CustomerID   id.CustomerID     `json:"customer_id"`
	Customer     CustomerSnapshot  `json:"customer"`
	IssueDate    civil.Date        `json:"issue_date"`
	DueDate      civil.Date        `json:"due_date"`
	Currency     string            `json:"currency"`
	LineItems    []LineItem        `json:"line_items"`
	Status       Status            `json:"status"`
	PaymentTerms PaymentTerms      `json:"payment_terms"`
	RecurringID  id.RecurringID    `json:"recurring_id,omitempty"`
	CycleIndex   int               `json:"cycle_index,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	PaidAt       *time.Time        `json:"paid_at,omitempty"`
	PaymentRef   string            `json:"payment_ref,omitempty"`
	CancelledAt  *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason string            `json:"cancel_reason,omitempty"`
	Version      int64             `json:"version"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	Subtotal       types.Money `json:"subtotal"`
	DiscountAmount types.Money `json:"discount_amount"`
	TaxAmount      types.Money `json:"tax_amount"`
	Total          types.Money `json:"total"`
}

// CustomerSnapshot is the billing identity copied into an invoice when it is
// issued. Later edits to the customer record do not change it.
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

// LineItem is a single priced row on an invoice. Rates are percentages in
// [0, 100]. The derived amounts are filled in by the calculator.
type LineItem struct {
	ID           id.LineItemID   `json:"id"`
	Description  string          `json:"description"`
	ServiceID    string          `json:"service_id,omitempty"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    types.Money     `json:"unit_price"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	DiscountRate decimal.Decimal `json:"discount_rate"`

	Gross    types.Money `json:"gross"`
	Discount types.Money `json:"discount"`
	Tax      types.Money `json:"tax"`
	Total    types.Money `json:"total"`
}

// IsRecurring reports whether the invoice was generated by a recurring
// configuration.
func (inv *Invoice) IsRecurring() bool {
	return !inv.RecurringID.IsNil()
}

// Clone returns a deep copy of the invoice.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	c.LineItems = append([]LineItem(nil), inv.LineItems...)
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		c.PaidAt = &t
	}
	if inv.CancelledAt != nil {
		t := *inv.CancelledAt
		c.CancelledAt = &t
	}
	if inv.Metadata != nil {
		c.Metadata = make(map[string]string, len(inv.Metadata))
		for k, v := range inv.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
