// Package customer holds the billing identity invoices are issued to.
package customer

import (
	"context"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

// Customer is the live billing record. Issued invoices keep a snapshot of it,
// while delivery always resolves the current e-mail address.
type Customer struct {
	types.Entity
	ID       id.CustomerID     `json:"id"`
	TenantID string            `json:"tenant_id"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Address  string            `json:"address,omitempty"`
	TaxID    string            `json:"tax_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Snapshot returns the identity copied into an invoice at issue time.
func (c *Customer) Snapshot() invoice.CustomerSnapshot {
	return invoice.CustomerSnapshot{
		Name:    c.Name,
		Email:   c.Email,
		Address: c.Address,
		TaxID:   c.TaxID,
	}
}

type Store interface {
	CreateCustomer(ctx context.Context, c *Customer) error
	GetCustomer(ctx context.Context, custID id.CustomerID) (*Customer, error)
	UpdateCustomer(ctx context.Context, c *Customer) error
}
