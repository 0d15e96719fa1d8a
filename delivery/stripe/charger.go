// Package stripe charges issued invoices against a customer's saved payment
// method with Stripe PaymentIntents.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/xraph/invoicing/delivery"
)

// Metadata keys read from delivery.ChargeRequest.Metadata. The engine copies
// them from the customer record.
const (
	MetaCustomer      = "stripe_customer_id"
	MetaPaymentMethod = "stripe_payment_method_id"
)

var _ delivery.Charger = (*Charger)(nil)

// ErrNoStripeCustomer is returned when the customer has no Stripe id.
var ErrNoStripeCustomer = errors.New("invoicing/stripe: customer has no stripe_customer_id")

// intents is the part of the PaymentIntents client the charger uses.
type intents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// Charger implements delivery.Charger.
type Charger struct {
	intents intents
	logger  *slog.Logger
}

// Option configures a Charger.
type Option func(*Charger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Charger) { c.logger = logger }
}

// New creates a Charger authenticated with a secret key.
func New(secretKey string, opts ...Option) *Charger {
	c := &Charger{
		intents: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Charge confirms an off-session PaymentIntent for the invoice total.
// Card errors map to OutcomeDeclined; transport and API errors are returned
// so the dispatcher retries them under the same idempotency key. ctx bounds
// the API call.
func (c *Charger) Charge(ctx context.Context, req delivery.ChargeRequest) (delivery.ChargeResult, error) {
	customerID := req.Metadata[MetaCustomer]
	if customerID == "" {
		return delivery.ChargeResult{Outcome: delivery.OutcomeDeclined, Message: ErrNoStripeCustomer.Error()}, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(req.Amount.Amount),
		Currency:   stripe.String(req.Amount.Currency),
		Customer:   stripe.String(customerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	params.Context = ctx
	if pm := req.Metadata[MetaPaymentMethod]; pm != "" {
		params.PaymentMethod = stripe.String(pm)
	}
	if req.Invoice != nil {
		params.Description = stripe.String("Invoice " + req.Invoice.Number)
		params.AddMetadata("invoice_id", req.Invoice.ID.String())
		params.AddMetadata("invoice_number", req.Invoice.Number)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey("invoicing-charge-" + req.IdempotencyKey)
	}

	pi, err := c.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			c.logger.Warn("stripe charge declined", "code", stripeErr.Code, "decline_code", stripeErr.DeclineCode)
			return delivery.ChargeResult{Outcome: delivery.OutcomeDeclined, Message: stripeErr.Msg}, nil
		}
		return delivery.ChargeResult{Outcome: delivery.OutcomeError}, fmt.Errorf("invoicing/stripe: create payment intent: %w", err)
	}

	return resultFor(pi), nil
}

func resultFor(pi *stripe.PaymentIntent) delivery.ChargeResult {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return delivery.ChargeResult{Outcome: delivery.OutcomePaid, Reference: pi.ID}
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusCanceled:
		return delivery.ChargeResult{Outcome: delivery.OutcomeDeclined, Reference: pi.ID, Message: string(pi.Status)}
	default:
		return delivery.ChargeResult{Outcome: delivery.OutcomeError, Reference: pi.ID, Message: string(pi.Status)}
	}
}
