package invoicing

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/invoice"
)

// ReclassifyOverdue marks every pending invoice whose due date is before
// today as overdue and returns the invoices it changed. An empty tenantID
// sweeps all tenants. Running it again for the same day changes nothing.
func (e *Engine) ReclassifyOverdue(ctx context.Context, tenantID string, today civil.Date) ([]*invoice.Invoice, error) {
	var candidates []*invoice.Invoice
	for offset := 0; ; offset += duePageSize {
		page, err := e.store.ListInvoices(ctx, invoice.ListOpts{
			TenantID:  tenantID,
			Status:    invoice.StatusPending,
			DueBefore: today,
			Limit:     duePageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list pending invoices: %w", err)
		}
		candidates = append(candidates, page...)
		if len(page) < duePageSize {
			break
		}
	}

	var (
		changed []*invoice.Invoice
		errs    MultiError
	)
	for _, inv := range invoice.Reclassify(candidates, today) {
		if err := e.store.UpdateInvoice(ctx, inv); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				// Paid or cancelled in the meantime.
				e.logger.Debug("overdue update lost to a concurrent change", "invoice_id", inv.ID.String())
				continue
			}
			errs.Add(fmt.Errorf("invoice %s: %w", inv.ID, err))
			continue
		}
		changed = append(changed, inv)

		e.logger.Info("invoice overdue",
			"invoice_id", inv.ID.String(),
			"number", inv.Number,
			"due_date", inv.DueDate,
			"days_overdue", inv.DaysOverdue(today),
		)
		e.plugins.EmitInvoiceOverdue(ctx, inv)

		if e.overdueReminders {
			e.remind(ctx, inv, today)
		}
	}

	return changed, errs.ErrOrNil()
}

func (e *Engine) remind(ctx context.Context, inv *invoice.Invoice, today civil.Date) {
	if !e.dispatcher.CanSend() {
		return
	}
	cust, err := e.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		e.logger.Warn("overdue reminder skipped", "invoice_id", inv.ID.String(), "error", err)
		return
	}
	req := sendRequest(inv, cust, delivery.KindReminder, inv.DaysOverdue(today))
	if err := e.dispatcher.EnqueueSend(ctx, req); err != nil {
		e.logger.Warn("overdue reminder not queued", "invoice_id", inv.ID.String(), "error", err)
	}
}
