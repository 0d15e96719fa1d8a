// Package delivery hands issued invoices to the outside world: sending them
// to the customer and charging a stored payment method. Both happen after an
// invoice is persisted and never affect whether it was issued.
package delivery

import (
	"context"
	"errors"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

var (
	ErrQueueFull  = errors.New("invoicing: delivery queue full")
	ErrNotRunning = errors.New("invoicing: delivery dispatcher is not running")
	ErrDeclined   = errors.New("invoicing: charge declined")
	ErrNoNotifier = errors.New("invoicing: no notifier configured")
	ErrNoCharger  = errors.New("invoicing: no charger configured")
)

// Kind distinguishes the messages a Notifier sends.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindReminder Kind = "reminder"
)

// SendRequest asks a Notifier to deliver an invoice to Recipient.
type SendRequest struct {
	ID            id.DeliveryID
	Kind          Kind
	Invoice       *invoice.Invoice
	Recipient     string
	RecipientName string
	DaysOverdue   int
	Document      []byte // rendered invoice, when a Renderer is configured
	DocumentName  string
}

// ChargeRequest asks a Charger to collect Amount for an invoice.
// IdempotencyKey is stable per invoice so a retried charge is not taken twice.
type ChargeRequest struct {
	ID             id.DeliveryID
	Invoice        *invoice.Invoice
	CustomerID     id.CustomerID
	Amount         types.Money
	IdempotencyKey string
	Metadata       map[string]string
}

// Outcome is the result of a charge attempt.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeDeclined Outcome = "declined"
	OutcomeError    Outcome = "error"
)

// ChargeResult describes a completed charge attempt.
type ChargeResult struct {
	Outcome   Outcome
	Reference string
	Message   string
}

// Notifier delivers invoices and reminders.
type Notifier interface {
	Send(ctx context.Context, req SendRequest) error
}

// Charger collects payment for invoices.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Renderer produces a document for an issued invoice. It must be a pure
// function of the invoice.
type Renderer interface {
	Render(ctx context.Context, inv *invoice.Invoice) ([]byte, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, req SendRequest) error

func (f NotifierFunc) Send(ctx context.Context, req SendRequest) error { return f(ctx, req) }

// ChargerFunc adapts a function to Charger.
type ChargerFunc func(ctx context.Context, req ChargeRequest) (ChargeResult, error)

func (f ChargerFunc) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return f(ctx, req)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, inv *invoice.Invoice) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, inv *invoice.Invoice) ([]byte, error) {
	return f(ctx, inv)
}
