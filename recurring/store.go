package recurring

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/id"
)

// Store persists recurring configurations. Update compares the Version field
// and increments it on success.
type Store interface {
	CreateRecurring(ctx context.Context, c *Config) error
	GetRecurring(ctx context.Context, recID id.RecurringID) (*Config, error)
	ListRecurring(ctx context.Context, opts ListOpts) ([]*Config, error)
	UpdateRecurring(ctx context.Context, c *Config) error
}

// ListOpts filters configuration queries. Zero values match everything.
type ListOpts struct {
	TenantID   string
	CustomerID id.CustomerID
	Status     Status
	DueOnOrBy  civil.Date // NextInvoiceDate <= DueOnOrBy
	Limit      int
	Offset     int
}
