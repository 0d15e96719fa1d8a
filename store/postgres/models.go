package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/xraph/grove"

	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/types"
)

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:invoicing_customers"`

	ID        string            `grove:"id,pk"`
	TenantID  string            `grove:"tenant_id"`
	Name      string            `grove:"name"`
	Email     string            `grove:"email"`
	Address   string            `grove:"address"`
	TaxID     string            `grove:"tax_id"`
	Metadata  map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt time.Time         `grove:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at"`
}

func toCustomerModel(c *customer.Customer) *customerModel {
	return &customerModel{
		ID:        c.ID.String(),
		TenantID:  c.TenantID,
		Name:      c.Name,
		Email:     c.Email,
		Address:   c.Address,
		TaxID:     c.TaxID,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCustomerModel(m *customerModel) (*customer.Customer, error) {
	custID, err := id.ParseCustomerID(m.ID)
	if err != nil {
		return nil, err
	}
	return &customer.Customer{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       custID,
		TenantID: m.TenantID,
		Name:     m.Name,
		Email:    m.Email,
		Address:  m.Address,
		TaxID:    m.TaxID,
		Metadata: m.Metadata,
	}, nil
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:invoicing_invoices"`

	ID             string            `grove:"id,pk"`
	TenantID       string            `grove:"tenant_id"`
	Number         string            `grove:"number"`
	Sequence       int64             `grove:"sequence"`
	CustomerID     string            `grove:"customer_id"`
	Customer       json.RawMessage   `grove:"customer,type:jsonb"`
	IssueDate      string            `grove:"issue_date"`
	DueDate        string            `grove:"due_date"`
	Currency       string            `grove:"currency"`
	LineItems      json.RawMessage   `grove:"line_items,type:jsonb"`
	Status         string            `grove:"status"`
	PaymentTerms   string            `grove:"payment_terms"`
	RecurringID    string            `grove:"recurring_id"`
	CycleIndex     int               `grove:"cycle_index"`
	Notes          string            `grove:"notes"`
	PaidAt         *time.Time        `grove:"paid_at"`
	PaymentRef     string            `grove:"payment_ref"`
	CancelledAt    *time.Time        `grove:"cancelled_at"`
	CancelReason   string            `grove:"cancel_reason"`
	Subtotal       int64             `grove:"subtotal"`
	DiscountAmount int64             `grove:"discount_amount"`
	TaxAmount      int64             `grove:"tax_amount"`
	Total          int64             `grove:"total"`
	Version        int64             `grove:"version"`
	Metadata       map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt      time.Time         `grove:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	snapshot, err := json.Marshal(inv.Customer)
	if err != nil {
		return nil, fmt.Errorf("encode customer snapshot: %w", err)
	}
	items := inv.LineItems
	if items == nil {
		items = []invoice.LineItem{}
	}
	lineItems, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}

	return &invoiceModel{
		ID:             inv.ID.String(),
		TenantID:       inv.TenantID,
		Number:         inv.Number,
		Sequence:       inv.Sequence,
		CustomerID:     inv.CustomerID.String(),
		Customer:       snapshot,
		IssueDate:      formatDate(inv.IssueDate),
		DueDate:        formatDate(inv.DueDate),
		Currency:       inv.Currency,
		LineItems:      lineItems,
		Status:         string(inv.Status),
		PaymentTerms:   string(inv.PaymentTerms),
		RecurringID:    optionalID(inv.RecurringID),
		CycleIndex:     inv.CycleIndex,
		Notes:          inv.Notes,
		PaidAt:         inv.PaidAt,
		PaymentRef:     inv.PaymentRef,
		CancelledAt:    inv.CancelledAt,
		CancelReason:   inv.CancelReason,
		Subtotal:       inv.Subtotal.Amount,
		DiscountAmount: inv.DiscountAmount.Amount,
		TaxAmount:      inv.TaxAmount.Amount,
		Total:          inv.Total.Amount,
		Version:        inv.Version,
		Metadata:       inv.Metadata,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}, nil
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	recID, err := parseOptionalID(m.RecurringID, id.PrefixRecurring)
	if err != nil {
		return nil, err
	}
	issueDate, err := parseDate(m.IssueDate)
	if err != nil {
		return nil, err
	}
	dueDate, err := parseDate(m.DueDate)
	if err != nil {
		return nil, err
	}

	var snapshot invoice.CustomerSnapshot
	if len(m.Customer) > 0 {
		if err := json.Unmarshal(m.Customer, &snapshot); err != nil {
			return nil, fmt.Errorf("decode customer snapshot of %s: %w", m.ID, err)
		}
	}
	var lineItems []invoice.LineItem
	if len(m.LineItems) > 0 {
		if err := json.Unmarshal(m.LineItems, &lineItems); err != nil {
			return nil, fmt.Errorf("decode line items of %s: %w", m.ID, err)
		}
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             invID,
		TenantID:       m.TenantID,
		Number:         m.Number,
		Sequence:       m.Sequence,
		CustomerID:     custID,
		Customer:       snapshot,
		IssueDate:      issueDate,
		DueDate:        dueDate,
		Currency:       m.Currency,
		LineItems:      lineItems,
		Status:         invoice.Status(m.Status),
		PaymentTerms:   invoice.PaymentTerms(m.PaymentTerms),
		RecurringID:    recID,
		CycleIndex:     m.CycleIndex,
		Notes:          m.Notes,
		PaidAt:         m.PaidAt,
		PaymentRef:     m.PaymentRef,
		CancelledAt:    m.CancelledAt,
		CancelReason:   m.CancelReason,
		Version:        m.Version,
		Metadata:       m.Metadata,
		Subtotal:       types.Money{Amount: m.Subtotal, Currency: m.Currency},
		DiscountAmount: types.Money{Amount: m.DiscountAmount, Currency: m.Currency},
		TaxAmount:      types.Money{Amount: m.TaxAmount, Currency: m.Currency},
		Total:          types.Money{Amount: m.Total, Currency: m.Currency},
	}, nil
}

// ==================== Recurring models ====================

type recurringModel struct {
	grove.BaseModel `grove:"table:invoicing_recurring"`

	ID              string            `grove:"id,pk"`
	TenantID        string            `grove:"tenant_id"`
	CustomerID      string            `grove:"customer_id"`
	PlanDescription string            `grove:"plan_description"`
	Currency        string            `grove:"currency"`
	Items           json.RawMessage   `grove:"items,type:jsonb"`
	Amount          int64             `grove:"amount"`
	AmountCurrency  string            `grove:"amount_currency"`
	Frequency       string            `grove:"frequency"`
	StartDate       string            `grove:"start_date"`
	NextInvoiceDate string            `grove:"next_invoice_date"`
	NextCycle       int               `grove:"next_cycle"`
	PaymentTerms    string            `grove:"payment_terms"`
	AutoSend        bool              `grove:"auto_send"`
	AutoCharge      bool              `grove:"auto_charge"`
	Status          string            `grove:"status"`
	LastInvoiceID   string            `grove:"last_invoice_id"`
	LastInvoiceDate string            `grove:"last_invoice_date"`
	Notes           string            `grove:"notes"`
	Version         int64             `grove:"version"`
	Metadata        map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time         `grove:"created_at"`
	UpdatedAt       time.Time         `grove:"updated_at"`
}

func toRecurringModel(c *recurring.Config) (*recurringModel, error) {
	tmpl := c.Items
	if tmpl == nil {
		tmpl = []invoice.LineItem{}
	}
	items, err := json.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("encode template items: %w", err)
	}

	return &recurringModel{
		ID:              c.ID.String(),
		TenantID:        c.TenantID,
		CustomerID:      c.CustomerID.String(),
		PlanDescription: c.PlanDescription,
		Currency:        c.Currency,
		Items:           items,
		Amount:          c.Amount.Amount,
		AmountCurrency:  c.Amount.Currency,
		Frequency:       string(c.Frequency),
		StartDate:       formatDate(c.StartDate),
		NextInvoiceDate: formatDate(c.NextInvoiceDate),
		NextCycle:       c.NextCycle,
		PaymentTerms:    string(c.PaymentTerms),
		AutoSend:        c.AutoSend,
		AutoCharge:      c.AutoCharge,
		Status:          string(c.Status),
		LastInvoiceID:   optionalID(c.LastInvoiceID),
		LastInvoiceDate: formatDate(c.LastInvoiceDate),
		Notes:           c.Notes,
		Version:         c.Version,
		Metadata:        c.Metadata,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}, nil
}

func fromRecurringModel(m *recurringModel) (*recurring.Config, error) {
	recID, err := id.ParseRecurringID(m.ID)
	if err != nil {
		return nil, err
	}
	custID, err := id.ParseCustomerID(m.CustomerID)
	if err != nil {
		return nil, err
	}
	lastInvID, err := parseOptionalID(m.LastInvoiceID, id.PrefixInvoice)
	if err != nil {
		return nil, err
	}
	start, err := parseDate(m.StartDate)
	if err != nil {
		return nil, err
	}
	next, err := parseDate(m.NextInvoiceDate)
	if err != nil {
		return nil, err
	}
	last, err := parseDate(m.LastInvoiceDate)
	if err != nil {
		return nil, err
	}

	var items []invoice.LineItem
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &items); err != nil {
			return nil, fmt.Errorf("decode template items of %s: %w", m.ID, err)
		}
	}
	if len(items) == 0 {
		items = nil
	}

	return &recurring.Config{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              recID,
		TenantID:        m.TenantID,
		CustomerID:      custID,
		PlanDescription: m.PlanDescription,
		Currency:        m.Currency,
		Items:           items,
		Amount:          types.Money{Amount: m.Amount, Currency: m.AmountCurrency},
		Frequency:       recurring.Frequency(m.Frequency),
		StartDate:       start,
		NextInvoiceDate: next,
		NextCycle:       m.NextCycle,
		PaymentTerms:    invoice.PaymentTerms(m.PaymentTerms),
		AutoSend:        m.AutoSend,
		AutoCharge:      m.AutoCharge,
		Status:          recurring.Status(m.Status),
		LastInvoiceID:   lastInvID,
		LastInvoiceDate: last,
		Notes:           m.Notes,
		Version:         m.Version,
		Metadata:        m.Metadata,
	}, nil
}

// ==================== Column helpers ====================

// formatDate stores calendar dates as ISO text so they compare correctly as
// strings. The zero date is stored as "".
func formatDate(d civil.Date) string {
	if d == (civil.Date{}) {
		return ""
	}
	return d.String()
}

func parseDate(s string) (civil.Date, error) {
	if s == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

func optionalID(i id.ID) string {
	if i.IsNil() {
		return ""
	}
	return i.String()
}

func parseOptionalID(s string, prefix id.Prefix) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.ParseWithPrefix(s, prefix)
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
