package invoice

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/id"
)

// Store persists invoices. Update and Delete use the Version field for
// optimistic concurrency.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	GetInvoiceByCycle(ctx context.Context, recurringID id.RecurringID, cycle int) (*Invoice, error)
	ListInvoices(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	DeleteInvoice(ctx context.Context, inv *Invoice) error
	NextInvoiceNumber(ctx context.Context, tenantID string) (int64, error)
}

// ListOpts filters invoice queries. Zero values match everything.
type ListOpts struct {
	TenantID    string
	Status      Status
	CustomerID  id.CustomerID
	RecurringID id.RecurringID
	IssuedFrom  civil.Date // inclusive
	IssuedTo    civil.Date // inclusive
	DueBefore   civil.Date // exclusive
	Limit       int
	Offset      int
}
