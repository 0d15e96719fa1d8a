// Package memory provides an in-process Store for tests and single-node use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/invoicing"
	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps deep copies of every record so callers never share state with
// it. Reads always observe the latest committed write.
type Store struct {
	mu sync.RWMutex

	customers map[string]*customer.Customer
	invoices  map[string]*invoice.Invoice
	recurring map[string]*recurring.Config

	// recurring id + cycle -> invoice id
	cycles map[string]string
	// tenant -> last issued sequence value
	sequences map[string]int64
}

func New() *Store {
	return &Store{
		customers: make(map[string]*customer.Customer),
		invoices:  make(map[string]*invoice.Invoice),
		recurring: make(map[string]*recurring.Config),
		cycles:    make(map[string]string),
		sequences: make(map[string]int64),
	}
}

// Customer Store implementation

func (s *Store) CreateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID.String()]; exists {
		return invoicing.ErrAlreadyExists
	}
	s.customers[c.ID.String()] = cloneCustomer(c)
	return nil
}

func (s *Store) GetCustomer(_ context.Context, custID id.CustomerID) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.customers[custID.String()]; ok {
		return cloneCustomer(c), nil
	}
	return nil, invoicing.ErrCustomerNotFound
}

func (s *Store) UpdateCustomer(_ context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID.String()]; !exists {
		return invoicing.ErrCustomerNotFound
	}
	s.customers[c.ID.String()] = cloneCustomer(c)
	return nil
}

// Invoice Store implementation

func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return invoicing.ErrAlreadyExists
	}
	if inv.IsRecurring() {
		key := cycleKey(inv.RecurringID, inv.CycleIndex)
		if _, taken := s.cycles[key]; taken {
			return fmt.Errorf("%w: %s cycle %d", invoicing.ErrDuplicateGeneration, inv.RecurringID, inv.CycleIndex)
		}
		s.cycles[key] = inv.ID.String()
	}
	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return inv.Clone(), nil
	}
	return nil, invoicing.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceByCycle(_ context.Context, recurringID id.RecurringID, cycle int) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if invID, ok := s.cycles[cycleKey(recurringID, cycle)]; ok {
		return s.invoices[invID].Clone(), nil
	}
	return nil, invoicing.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if matchInvoice(inv, opts) {
			result = append(result, inv.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoices[inv.ID.String()]
	if !ok {
		return invoicing.ErrInvoiceNotFound
	}
	if existing.Version != inv.Version {
		return fmt.Errorf("%w: invoice %s at version %d, have %d",
			invoicing.ErrVersionConflict, inv.ID, existing.Version, inv.Version)
	}
	inv.Version++
	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invoices[inv.ID.String()]
	if !ok {
		return invoicing.ErrInvoiceNotFound
	}
	if existing.Version != inv.Version {
		return fmt.Errorf("%w: invoice %s", invoicing.ErrVersionConflict, inv.ID)
	}
	if existing.IsRecurring() {
		delete(s.cycles, cycleKey(existing.RecurringID, existing.CycleIndex))
	}
	delete(s.invoices, inv.ID.String())
	return nil
}

func (s *Store) NextInvoiceNumber(_ context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[tenantID]++
	return s.sequences[tenantID], nil
}

// Recurring Store implementation

func (s *Store) CreateRecurring(_ context.Context, c *recurring.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.recurring[c.ID.String()]; exists {
		return invoicing.ErrAlreadyExists
	}
	s.recurring[c.ID.String()] = c.Clone()
	return nil
}

func (s *Store) GetRecurring(_ context.Context, recID id.RecurringID) (*recurring.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.recurring[recID.String()]; ok {
		return c.Clone(), nil
	}
	return nil, invoicing.ErrRecurringNotFound
}

func (s *Store) ListRecurring(_ context.Context, opts recurring.ListOpts) ([]*recurring.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*recurring.Config, 0)
	for _, c := range s.recurring {
		if matchRecurring(c, opts) {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].NextInvoiceDate != result[j].NextInvoiceDate {
			return result[i].NextInvoiceDate.Before(result[j].NextInvoiceDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateRecurring(_ context.Context, c *recurring.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.recurring[c.ID.String()]
	if !ok {
		return invoicing.ErrRecurringNotFound
	}
	if existing.Version != c.Version {
		return fmt.Errorf("%w: recurring %s at version %d, have %d",
			invoicing.ErrVersionConflict, c.ID, existing.Version, c.Version)
	}
	c.Version++
	s.recurring[c.ID.String()] = c.Clone()
	return nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions

func cycleKey(recurringID id.RecurringID, cycle int) string {
	return fmt.Sprintf("%s:%d", recurringID, cycle)
}

func matchInvoice(inv *invoice.Invoice, opts invoice.ListOpts) bool {
	var zero invoice.ListOpts
	if opts.TenantID != "" && inv.TenantID != opts.TenantID {
		return false
	}
	if opts.Status != "" && inv.Status != opts.Status {
		return false
	}
	if !opts.CustomerID.IsNil() && inv.CustomerID.String() != opts.CustomerID.String() {
		return false
	}
	if !opts.RecurringID.IsNil() && inv.RecurringID.String() != opts.RecurringID.String() {
		return false
	}
	if opts.IssuedFrom != zero.IssuedFrom && inv.IssueDate.Before(opts.IssuedFrom) {
		return false
	}
	if opts.IssuedTo != zero.IssuedTo && inv.IssueDate.After(opts.IssuedTo) {
		return false
	}
	if opts.DueBefore != zero.DueBefore && !inv.DueDate.Before(opts.DueBefore) {
		return false
	}
	return true
}

func matchRecurring(c *recurring.Config, opts recurring.ListOpts) bool {
	var zero recurring.ListOpts
	if opts.TenantID != "" && c.TenantID != opts.TenantID {
		return false
	}
	if !opts.CustomerID.IsNil() && c.CustomerID.String() != opts.CustomerID.String() {
		return false
	}
	if opts.Status != "" && c.Status != opts.Status {
		return false
	}
	if opts.DueOnOrBy != zero.DueOnOrBy && c.NextInvoiceDate.After(opts.DueOnOrBy) {
		return false
	}
	return true
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func cloneCustomer(c *customer.Customer) *customer.Customer {
	cp := *c
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
