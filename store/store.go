package store

import (
	"context"

	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
)

// Store is the unified storage interface for invoicing records.
// Methods are declared explicitly instead of embedding the per-package
// interfaces so every backend is checked against one method set.
type Store interface {
	// Customer methods
	CreateCustomer(ctx context.Context, c *customer.Customer) error
	GetCustomer(ctx context.Context, custID id.CustomerID) (*customer.Customer, error)
	UpdateCustomer(ctx context.Context, c *customer.Customer) error

	// Invoice methods. CreateInvoice returns ErrDuplicateGeneration when an
	// invoice already exists for the same recurring configuration and cycle.
	// UpdateInvoice and DeleteInvoice return ErrVersionConflict when the
	// stored version differs from inv.Version; on success UpdateInvoice
	// increments inv.Version.
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	GetInvoiceByCycle(ctx context.Context, recurringID id.RecurringID, cycle int) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error
	DeleteInvoice(ctx context.Context, inv *invoice.Invoice) error
	NextInvoiceNumber(ctx context.Context, tenantID string) (int64, error)

	// Recurring configuration methods. UpdateRecurring follows the same
	// version rules as UpdateInvoice.
	CreateRecurring(ctx context.Context, c *recurring.Config) error
	GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Config, error)
	ListRecurring(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Config, error)
	UpdateRecurring(ctx context.Context, c *recurring.Config) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ customer.Store  = Store(nil)
	_ invoice.Store   = Store(nil)
	_ recurring.Store = Store(nil)
)
