package invoice

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/types"
)

// transitions lists the allowed moves out of each status. Paid and cancelled
// are terminal.
var transitions = map[Status][]Status{
	StatusDraft:   {StatusPending},
	StatusPending: {StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue: {StatusPaid, StatusCancelled},
}

// CanTransition reports whether an invoice may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// NewDraft creates an empty draft invoice.
func NewDraft(tenantID string, customerID id.CustomerID, currency string, terms PaymentTerms) *Invoice {
	if terms == "" {
		terms = DefaultPaymentTerms
	}
	currency = types.NormalizeCurrency(currency)
	inv := &Invoice{
		Entity:       types.NewEntity(),
		ID:           id.NewInvoiceID(),
		TenantID:     tenantID,
		CustomerID:   customerID,
		Currency:     currency,
		Status:       StatusDraft,
		PaymentTerms: terms,
	}
	inv.applyTotals(zeroTotals(currency))
	return inv
}

// AddLineItem appends a line item to a draft and recomputes its totals.
func (inv *Invoice) AddLineItem(item LineItem) error {
	if inv.Status != StatusDraft {
		return ErrInvoiceNotDraft
	}
	if item.ID.IsNil() {
		item.ID = id.NewLineItemID()
	}
	items := append(append([]LineItem(nil), inv.LineItems...), item)
	return inv.reprice(items)
}

// RemoveLineItem drops a line item from a draft and recomputes its totals.
func (inv *Invoice) RemoveLineItem(itemID id.LineItemID) error {
	if inv.Status != StatusDraft {
		return ErrInvoiceNotDraft
	}
	items := make([]LineItem, 0, len(inv.LineItems))
	for _, it := range inv.LineItems {
		if it.ID.String() != itemID.String() {
			items = append(items, it)
		}
	}
	if len(items) == len(inv.LineItems) {
		return ErrLineItemNotFound
	}
	return inv.reprice(items)
}

// Recalculate recomputes the derived totals of a draft.
func (inv *Invoice) Recalculate() error {
	if inv.Status != StatusDraft {
		return ErrInvoiceNotDraft
	}
	return inv.reprice(append([]LineItem(nil), inv.LineItems...))
}

func (inv *Invoice) reprice(items []LineItem) error {
	totals, err := PriceInvoice(inv.Currency, items)
	if err != nil {
		return err
	}
	inv.LineItems = items
	inv.applyTotals(totals)
	return nil
}

// Issue moves a draft to pending. It prices the items, fixes the due date
// (from the payment terms unless one was set explicitly) and copies the
// customer snapshot. Totals and items are frozen from here on. The invoice
// is left unchanged when Issue fails.
func (inv *Invoice) Issue(issueDate civil.Date, customer CustomerSnapshot) error {
	if err := checkTransition(inv.Status, StatusPending); err != nil {
		return err
	}
	items := append([]LineItem(nil), inv.LineItems...)
	totals, err := PriceInvoice(inv.Currency, items, RequireItems())
	if err != nil {
		return err
	}

	due := inv.DueDate
	if isZeroDate(due) {
		if due, err = inv.PaymentTerms.DueDate(issueDate); err != nil {
			return err
		}
	}
	if due.Before(issueDate) {
		return types.NewValidationError("due_date", ErrInvalidDueDate, "%s is before %s", due, issueDate)
	}

	inv.LineItems = items
	inv.applyTotals(totals)
	inv.IssueDate = issueDate
	inv.DueDate = due
	inv.Customer = customer
	inv.Status = StatusPending
	inv.Touch()
	return nil
}

// AssignNumber sets the human-readable number from a tenant sequence value.
func (inv *Invoice) AssignNumber(prefix string, seq int64) {
	inv.Sequence = seq
	inv.Number = FormatNumber(prefix, seq)
}

// FormatNumber renders an invoice number such as "INV-000042".
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

// RecordPayment settles an open invoice. The amount must equal the total.
func (inv *Invoice) RecordPayment(amount types.Money, paidAt time.Time, ref string) error {
	if err := checkTransition(inv.Status, StatusPaid); err != nil {
		return err
	}
	cmp, err := amount.Compare(inv.Total)
	if err != nil {
		return err
	}
	if cmp != 0 {
		return fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, amount, inv.Total)
	}
	paidAt = paidAt.UTC()
	inv.Status = StatusPaid
	inv.PaidAt = &paidAt
	inv.PaymentRef = ref
	inv.TouchAt(paidAt)
	return nil
}

// Cancel voids an open invoice.
func (inv *Invoice) Cancel(reason string, at time.Time) error {
	if err := checkTransition(inv.Status, StatusCancelled); err != nil {
		return err
	}
	at = at.UTC()
	inv.Status = StatusCancelled
	inv.CancelledAt = &at
	inv.CancelReason = reason
	inv.TouchAt(at)
	return nil
}

// MarkOverdue moves a pending invoice to overdue once today is past its due
// date. UpdatedAt is derived from today, never from the wall clock, and never
// moves backwards.
func (inv *Invoice) MarkOverdue(today civil.Date) error {
	if err := checkTransition(inv.Status, StatusOverdue); err != nil {
		return err
	}
	if !today.After(inv.DueDate) {
		return fmt.Errorf("%w: due %s, today %s", ErrInvalidTransition, inv.DueDate, today)
	}
	inv.Status = StatusOverdue
	if at := today.In(time.UTC); at.After(inv.UpdatedAt) {
		inv.TouchAt(at)
	}
	return nil
}

// IsPastDue reports whether a pending invoice has passed its due date.
func (inv *Invoice) IsPastDue(today civil.Date) bool {
	return inv.Status == StatusPending && today.After(inv.DueDate)
}

// EffectiveStatus derives the status from the due date. A stored overdue
// flag is advisory; this is the authoritative view.
func (inv *Invoice) EffectiveStatus(today civil.Date) Status {
	if inv.IsPastDue(today) {
		return StatusOverdue
	}
	return inv.Status
}

// DaysOverdue returns how many days past due an open invoice is.
func (inv *Invoice) DaysOverdue(today civil.Date) int {
	if !inv.Status.IsOpen() || !today.After(inv.DueDate) {
		return 0
	}
	return today.DaysSince(inv.DueDate)
}

func (inv *Invoice) applyTotals(t Totals) {
	inv.Subtotal = t.Subtotal
	inv.DiscountAmount = t.DiscountAmount
	inv.TaxAmount = t.TaxAmount
	inv.Total = t.Total
}

func zeroTotals(currency string) Totals {
	z := types.Zero(currency)
	return Totals{Subtotal: z, DiscountAmount: z, TaxAmount: z, Total: z}
}

func isZeroDate(d civil.Date) bool {
	return d == (civil.Date{})
}
