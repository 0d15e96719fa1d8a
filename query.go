package invoicing

import (
	"context"
	"sort"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/types"
)

// GetCustomer retrieves a customer by ID.
func (e *Engine) GetCustomer(ctx context.Context, custID id.CustomerID) (*customer.Customer, error) {
	return e.store.GetCustomer(ctx, custID)
}

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// ListInvoices lists invoices matching opts, newest first.
func (e *Engine) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, opts)
}

// GetRecurring retrieves a recurring configuration by ID.
func (e *Engine) GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Config, error) {
	return e.store.GetRecurring(ctx, recID)
}

// ListRecurring lists recurring configurations matching opts, soonest due
// first.
func (e *Engine) ListRecurring(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Config, error) {
	return e.store.ListRecurring(ctx, opts)
}

// CurrencyTotals aggregates issued invoices of one currency.
type CurrencyTotals struct {
	Currency string `json:"currency"`
	// Invoiced is the sum of every issued, non-cancelled invoice.
	Invoiced types.Money `json:"invoiced"`
	Paid     types.Money `json:"paid"`
	// Outstanding is pending plus overdue.
	Outstanding types.Money `json:"outstanding"`
	Overdue     types.Money `json:"overdue"`
}

// Statistics summarizes a set of invoices. Amounts are never added across
// currencies.
type Statistics struct {
	Count     int              `json:"count"`
	Draft     int              `json:"draft"`
	Pending   int              `json:"pending"`
	Paid      int              `json:"paid"`
	Overdue   int              `json:"overdue"`
	Cancelled int              `json:"cancelled"`
	Totals    []CurrencyTotals `json:"totals"`
}

// Statistics aggregates the invoices matching opts as of today. Pending
// invoices past their due date count as overdue even before the sweep has
// marked them. Limit and Offset in opts are ignored.
func (e *Engine) Statistics(ctx context.Context, opts invoice.ListOpts, today civil.Date) (*Statistics, error) {
	stats := &Statistics{}
	byCurrency := make(map[string]*CurrencyTotals)

	opts.Limit = duePageSize
	for opts.Offset = 0; ; opts.Offset += duePageSize {
		page, err := e.store.ListInvoices(ctx, opts)
		if err != nil {
			return nil, err
		}
		for _, inv := range page {
			if err := stats.add(inv, today, byCurrency); err != nil {
				return nil, err
			}
		}
		if len(page) < duePageSize {
			break
		}
	}

	stats.Totals = make([]CurrencyTotals, 0, len(byCurrency))
	for _, t := range byCurrency {
		stats.Totals = append(stats.Totals, *t)
	}
	sort.Slice(stats.Totals, func(i, j int) bool {
		return stats.Totals[i].Currency < stats.Totals[j].Currency
	})
	return stats, nil
}

func (s *Statistics) add(inv *invoice.Invoice, today civil.Date, byCurrency map[string]*CurrencyTotals) error {
	s.Count++
	status := inv.EffectiveStatus(today)
	switch status {
	case invoice.StatusDraft:
		s.Draft++
		return nil
	case invoice.StatusCancelled:
		s.Cancelled++
		return nil
	case invoice.StatusPending:
		s.Pending++
	case invoice.StatusPaid:
		s.Paid++
	case invoice.StatusOverdue:
		s.Overdue++
	}

	t, ok := byCurrency[inv.Currency]
	if !ok {
		z := types.Zero(inv.Currency)
		t = &CurrencyTotals{Currency: z.Currency, Invoiced: z, Paid: z, Outstanding: z, Overdue: z}
		byCurrency[inv.Currency] = t
	}

	var err error
	if t.Invoiced, err = t.Invoiced.Add(inv.Total); err != nil {
		return err
	}
	switch status {
	case invoice.StatusPaid:
		t.Paid, err = t.Paid.Add(inv.Total)
	case invoice.StatusOverdue:
		if t.Overdue, err = t.Overdue.Add(inv.Total); err == nil {
			t.Outstanding, err = t.Outstanding.Add(inv.Total)
		}
	default:
		t.Outstanding, err = t.Outstanding.Add(inv.Total)
	}
	return err
}
