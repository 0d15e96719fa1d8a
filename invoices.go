package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

// ──────────────────────────────────────────────────
// Customer Management
// ──────────────────────────────────────────────────

// CreateCustomer registers a customer.
func (e *Engine) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	if c.Name == "" {
		return types.NewValidationError("name", ErrInvalidInput, "customer name is required")
	}
	if c.ID.IsNil() {
		c.ID = id.NewCustomerID()
	}
	c.Entity = types.NewEntity()
	return e.store.CreateCustomer(ctx, c)
}

// UpdateCustomer saves changes to a customer. Invoices already issued keep
// the snapshot taken when they were issued.
func (e *Engine) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	if c.Name == "" {
		return types.NewValidationError("name", ErrInvalidInput, "customer name is required")
	}
	c.Touch()
	return e.store.UpdateCustomer(ctx, c)
}

// ──────────────────────────────────────────────────
// Invoice Management
// ──────────────────────────────────────────────────

// CreateDraft creates a draft invoice for an existing customer.
func (e *Engine) CreateDraft(ctx context.Context, tenantID string, customerID id.CustomerID, currency string, terms invoice.PaymentTerms, items ...invoice.LineItem) (*invoice.Invoice, error) {
	if _, err := e.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	inv := invoice.NewDraft(tenantID, customerID, currency, terms)
	for _, item := range items {
		if err := inv.AddLineItem(item); err != nil {
			return nil, err
		}
	}

	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.plugins.EmitInvoiceDrafted(ctx, inv)
	return inv, nil
}

// AddLineItem adds a line item to a draft invoice.
func (e *Engine) AddLineItem(ctx context.Context, invID id.InvoiceID, item invoice.LineItem) (*invoice.Invoice, error) {
	return e.mutateInvoice(ctx, invID, func(inv *invoice.Invoice) error {
		return inv.AddLineItem(item)
	})
}

// RemoveLineItem removes a line item from a draft invoice.
func (e *Engine) RemoveLineItem(ctx context.Context, invID id.InvoiceID, itemID id.LineItemID) (*invoice.Invoice, error) {
	return e.mutateInvoice(ctx, invID, func(inv *invoice.Invoice) error {
		return inv.RemoveLineItem(itemID)
	})
}

// SetDueDate fixes an explicit due date on a draft instead of deriving it
// from the payment terms at issue time.
func (e *Engine) SetDueDate(ctx context.Context, invID id.InvoiceID, due civil.Date) (*invoice.Invoice, error) {
	return e.mutateInvoice(ctx, invID, func(inv *invoice.Invoice) error {
		if inv.Status != invoice.StatusDraft {
			return ErrInvoiceNotDraft
		}
		if !due.IsValid() {
			return types.NewValidationError("due_date", ErrInvalidDueDate, "got %s", due)
		}
		inv.DueDate = due
		inv.Touch()
		return nil
	})
}

// IssueInvoice finalizes a draft: it snapshots the customer, freezes the
// totals, fixes the due date and assigns the next invoice number.
func (e *Engine) IssueInvoice(ctx context.Context, invID id.InvoiceID, issueDate civil.Date) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	cust, err := e.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return nil, err
	}

	if err := inv.Issue(issueDate, cust.Snapshot()); err != nil {
		return nil, err
	}
	seq, err := e.store.NextInvoiceNumber(ctx, inv.TenantID)
	if err != nil {
		return nil, fmt.Errorf("allocate invoice number: %w", err)
	}
	inv.AssignNumber(e.invoicePrefix, seq)

	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.logger.Info("invoice issued",
		"invoice_id", inv.ID.String(),
		"number", inv.Number,
		"total", inv.Total.String(),
		"due_date", inv.DueDate,
	)
	e.plugins.EmitInvoiceIssued(ctx, inv)
	return inv, nil
}

// RecordPayment settles an open invoice. The amount must equal its total.
func (e *Engine) RecordPayment(ctx context.Context, invID id.InvoiceID, amount types.Money, paidAt time.Time, reference string) (*invoice.Invoice, error) {
	inv, err := e.mutateInvoice(ctx, invID, func(inv *invoice.Invoice) error {
		return inv.RecordPayment(amount, paidAt, reference)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("invoice paid", "invoice_id", inv.ID.String(), "number", inv.Number, "reference", reference)
	e.plugins.EmitInvoicePaid(ctx, inv)
	return inv, nil
}

// CancelInvoice voids an open invoice.
func (e *Engine) CancelInvoice(ctx context.Context, invID id.InvoiceID, reason string) (*invoice.Invoice, error) {
	inv, err := e.mutateInvoice(ctx, invID, func(inv *invoice.Invoice) error {
		return inv.Cancel(reason, e.clock())
	})
	if err != nil {
		return nil, err
	}

	e.plugins.EmitInvoiceCancelled(ctx, inv)
	return inv, nil
}

// DeleteDraft removes a draft invoice. Issued invoices are cancelled, never
// deleted.
func (e *Engine) DeleteDraft(ctx context.Context, invID id.InvoiceID) error {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	if inv.Status != invoice.StatusDraft {
		return ErrInvoiceNotDraft
	}
	return e.store.DeleteInvoice(ctx, inv)
}

// SendInvoice queues an open invoice for delivery to the customer's current
// e-mail address.
func (e *Engine) SendInvoice(ctx context.Context, invID id.InvoiceID) error {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	if !inv.Status.IsOpen() {
		return fmt.Errorf("%w: cannot send a %s invoice", ErrInvalidTransition, inv.Status)
	}
	cust, err := e.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return err
	}
	return e.dispatcher.EnqueueSend(ctx, sendRequest(inv, cust, delivery.KindInvoice, 0))
}

// ChargeInvoice queues a charge of the invoice total against the customer's
// stored payment method.
func (e *Engine) ChargeInvoice(ctx context.Context, invID id.InvoiceID) error {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	if !inv.Status.IsOpen() {
		return fmt.Errorf("%w: cannot charge a %s invoice", ErrInvalidTransition, inv.Status)
	}
	cust, err := e.store.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return err
	}
	return e.dispatcher.EnqueueCharge(ctx, chargeRequest(inv, cust))
}

// mutateInvoice loads an invoice, applies fn and saves it with a version
// check. fn must leave the invoice unchanged when it fails.
func (e *Engine) mutateInvoice(ctx context.Context, invID id.InvoiceID, fn func(*invoice.Invoice) error) (*invoice.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return nil, err
	}
	if err := fn(inv); err != nil {
		return nil, err
	}
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func sendRequest(inv *invoice.Invoice, cust *customer.Customer, kind delivery.Kind, daysOverdue int) delivery.SendRequest {
	return delivery.SendRequest{
		ID:            id.NewDeliveryID(),
		Kind:          kind,
		Invoice:       inv.Clone(),
		Recipient:     cust.Email,
		RecipientName: cust.Name,
		DaysOverdue:   daysOverdue,
	}
}

func chargeRequest(inv *invoice.Invoice, cust *customer.Customer) delivery.ChargeRequest {
	return delivery.ChargeRequest{
		ID:             id.NewDeliveryID(),
		Invoice:        inv.Clone(),
		CustomerID:     cust.ID,
		Amount:         inv.Total,
		IdempotencyKey: inv.ID.String(),
		Metadata:       cust.Metadata,
	}
}

// paymentTries bounds how often a gateway payment is re-applied after the
// invoice changed underneath it.
const paymentTries = 5

// chargePaid records a successful charge. The money has already moved, so a
// version conflict is retried against a fresh read. A charge that lands after
// the invoice was settled some other way is ignored.
func (e *Engine) chargePaid(ctx context.Context, inv *invoice.Invoice, result delivery.ChargeResult) error {
	_, err := backoff.Retry(ctx, func() (*invoice.Invoice, error) {
		paid, err := e.RecordPayment(ctx, inv.ID, inv.Total, e.clock(), result.Reference)
		if err != nil && !errors.Is(err, ErrVersionConflict) {
			return nil, backoff.Permanent(err)
		}
		return paid, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(20*time.Millisecond)),
		backoff.WithMaxTries(paymentTries),
	)
	if errors.Is(err, ErrInvalidTransition) {
		e.logger.Warn("charge succeeded for a settled invoice",
			"invoice_id", inv.ID.String(), "reference", result.Reference)
		return nil
	}
	return err
}

func (e *Engine) deliveryFailed(ctx context.Context, job delivery.Job, err error) {
	e.plugins.EmitDeliveryFailed(ctx, job, err)
}
