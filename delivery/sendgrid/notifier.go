// Package sendgrid delivers invoices and overdue reminders by e-mail through
// the SendGrid v3 mail API.
package sendgrid

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/xraph/invoicing/delivery"
)

var _ delivery.Notifier = (*Notifier)(nil)

// Notifier implements delivery.Notifier.
type Notifier struct {
	client  *sendgrid.Client
	from    *mail.Email
	replyTo *mail.Email
	company string
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithReplyTo sets the Reply-To address.
func WithReplyTo(name, address string) Option {
	return func(n *Notifier) { n.replyTo = mail.NewEmail(name, address) }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

// New creates a Notifier sending as fromName <fromAddress>.
func New(apiKey, fromName, fromAddress string, opts ...Option) (*Notifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("invoicing/sendgrid: api key is empty")
	}
	if fromAddress == "" {
		return nil, fmt.Errorf("invoicing/sendgrid: from address is empty")
	}
	n := &Notifier{
		client:  sendgrid.NewSendClient(apiKey),
		from:    mail.NewEmail(fromName, fromAddress),
		company: fromName,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Send implements delivery.Notifier.
func (n *Notifier) Send(ctx context.Context, req delivery.SendRequest) error {
	if req.Recipient == "" {
		return fmt.Errorf("invoicing/sendgrid: recipient is empty")
	}
	if req.Invoice == nil {
		return fmt.Errorf("invoicing/sendgrid: no invoice to send")
	}

	message := n.buildMessage(req)
	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("invoicing/sendgrid: send: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("invoicing/sendgrid: send failed: status=%d body=%s", response.StatusCode, response.Body)
	}

	n.logger.Info("invoice e-mail sent",
		"invoice", req.Invoice.Number,
		"kind", req.Kind,
		"status", response.StatusCode,
	)
	return nil
}

func (n *Notifier) buildMessage(req delivery.SendRequest) *mail.SGMailV3 {
	subject, text := n.compose(req)
	htmlBody := "<pre>" + html.EscapeString(text) + "</pre>"

	message := mail.NewSingleEmail(n.from, subject, mail.NewEmail(req.RecipientName, req.Recipient), text, htmlBody)
	if n.replyTo != nil {
		message.SetReplyTo(n.replyTo)
	}
	if len(req.Document) > 0 {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(req.Document))
		a.SetType("application/pdf")
		a.SetFilename(req.DocumentName)
		a.SetDisposition("attachment")
		message.AddAttachment(a)
	}
	return message
}

func (n *Notifier) compose(req delivery.SendRequest) (subject, body string) {
	inv := req.Invoice
	name := req.RecipientName
	if name == "" {
		name = inv.Customer.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	switch req.Kind {
	case delivery.KindReminder:
		subject = fmt.Sprintf("Payment reminder: invoice %s is %d days overdue", inv.Number, req.DaysOverdue)
		fmt.Fprintf(&b, "Invoice %s for %s was due on %s and is now %d days overdue.\n",
			inv.Number, inv.Total, inv.DueDate, req.DaysOverdue)
		b.WriteString("Please arrange payment at your earliest convenience.\n")
	default:
		subject = fmt.Sprintf("Invoice %s from %s", inv.Number, n.company)
		fmt.Fprintf(&b, "Please find invoice %s for %s issued on %s.\n", inv.Number, inv.Total, inv.IssueDate)
		fmt.Fprintf(&b, "Payment terms: %s. Due date: %s.\n", inv.PaymentTerms, inv.DueDate)
	}
	b.WriteString("\nLine items:\n")
	for _, it := range inv.LineItems {
		fmt.Fprintf(&b, "  %s  x%d  %s\n", it.Description, it.Quantity, it.Total)
	}
	fmt.Fprintf(&b, "\nSubtotal: %s\nDiscount: %s\nTax: %s\nTotal: %s\n",
		inv.Subtotal, inv.DiscountAmount, inv.TaxAmount, inv.Total)
	if inv.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", inv.Notes)
	}
	fmt.Fprintf(&b, "\nThank you,\n%s\n", n.company)
	return subject, b.String()
}
