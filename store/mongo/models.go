package mongo

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/xraph/grove"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/types"
)

// ==================== Customer models ====================

type customerModel struct {
	grove.BaseModel `grove:"table:invoicing_customers"`

	ID        string            `grove:"id,pk"      bson:"_id"`
	TenantID  string            `grove:"tenant_id"  bson:"tenant_id"`
	Name      string            `grove:"name"       bson:"name"`
	Email     string            `grove:"email"      bson:"email"`
	Address   string            `grove:"address"    bson:"address"`
	TaxID     string            `grove:"tax_id"     bson:"tax_id"`
	Metadata  map[string]string `grove:"metadata"   bson:"metadata,omitempty"`
	CreatedAt time.Time         `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at" bson:"updated_at"`
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

	ID             string            `grove:"id,pk"           bson:"_id"`
	TenantID       string            `grove:"tenant_id"       bson:"tenant_id"`
	Number         string            `grove:"number"          bson:"number"`
	Sequence       int64             `grove:"sequence"        bson:"sequence"`
	CustomerID     string            `grove:"customer_id"     bson:"customer_id"`
	Customer       snapshotModel     `grove:"customer"        bson:"customer"`
	IssueDate      string            `grove:"issue_date"      bson:"issue_date"`
	DueDate        string            `grove:"due_date"        bson:"due_date"`
	Currency       string            `grove:"currency"        bson:"currency"`
	LineItems      []lineItemModel   `grove:"line_items"      bson:"line_items"`
	Status         string            `grove:"status"          bson:"status"`
	PaymentTerms   string            `grove:"payment_terms"   bson:"payment_terms"`
	RecurringID    string            `grove:"recurring_id"    bson:"recurring_id"`
	CycleIndex     int               `grove:"cycle_index"     bson:"cycle_index"`
	Notes          string            `grove:"notes"           bson:"notes"`
	PaidAt         *time.Time        `grove:"paid_at"         bson:"paid_at,omitempty"`
	PaymentRef     string            `grove:"payment_ref"     bson:"payment_ref"`
	CancelledAt    *time.Time        `grove:"cancelled_at"    bson:"cancelled_at,omitempty"`
	CancelReason   string            `grove:"cancel_reason"   bson:"cancel_reason"`
	Subtotal       int64             `grove:"subtotal"        bson:"subtotal"`
	DiscountAmount int64             `grove:"discount_amount" bson:"discount_amount"`
	TaxAmount      int64             `grove:"tax_amount"      bson:"tax_amount"`
	Total          int64             `grove:"total"           bson:"total"`
	Version        int64             `grove:"version"         bson:"version"`
	Metadata       map[string]string `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

type snapshotModel struct {
	Name    string `bson:"name"`
	Email   string `bson:"email"`
	Address string `bson:"address,omitempty"`
	TaxID   string `bson:"tax_id,omitempty"`
}

// lineItemModel stores rates as decimal strings so no precision is lost.
type lineItemModel struct {
	ID           string `bson:"id"`
	Description  string `bson:"description"`
	ServiceID    string `bson:"service_id,omitempty"`
	Quantity     int64  `bson:"quantity"`
	UnitPrice    int64  `bson:"unit_price"`
	Currency     string `bson:"currency"`
	TaxRate      string `bson:"tax_rate"`
	DiscountRate string `bson:"discount_rate"`
	Gross        int64  `bson:"gross"`
	Discount     int64  `bson:"discount"`
	Tax          int64  `bson:"tax"`
	Total        int64  `bson:"total"`
}

func toLineItemModels(items []invoice.LineItem) []lineItemModel {
	out := make([]lineItemModel, len(items))
	for i, li := range items {
		out[i] = lineItemModel{
			ID:           optionalID(li.ID),
			Description:  li.Description,
			ServiceID:    li.ServiceID,
			Quantity:     li.Quantity,
			UnitPrice:    li.UnitPrice.Amount,
			Currency:     li.UnitPrice.Currency,
			TaxRate:      li.TaxRate.String(),
			DiscountRate: li.DiscountRate.String(),
			Gross:        li.Gross.Amount,
			Discount:     li.Discount.Amount,
			Tax:          li.Tax.Amount,
			Total:        li.Total.Amount,
		}
	}
	return out
}

func fromLineItemModels(models []lineItemModel) ([]invoice.LineItem, error) {
	if len(models) == 0 {
		return nil, nil
	}
	out := make([]invoice.LineItem, len(models))
	for i, m := range models {
		liID, err := parseOptionalID(m.ID, id.PrefixLineItem)
		if err != nil {
			return nil, err
		}
		taxRate, err := decimal.NewFromString(m.TaxRate)
		if err != nil {
			return nil, fmt.Errorf("parse tax rate %q: %w", m.TaxRate, err)
		}
		discountRate, err := decimal.NewFromString(m.DiscountRate)
		if err != nil {
			return nil, fmt.Errorf("parse discount rate %q: %w", m.DiscountRate, err)
		}
		out[i] = invoice.LineItem{
			ID:           liID,
			Description:  m.Description,
			ServiceID:    m.ServiceID,
			Quantity:     m.Quantity,
			UnitPrice:    types.Money{Amount: m.UnitPrice, Currency: m.Currency},
			TaxRate:      taxRate,
			DiscountRate: discountRate,
			Gross:        types.Money{Amount: m.Gross, Currency: m.Currency},
			Discount:     types.Money{Amount: m.Discount, Currency: m.Currency},
			Tax:          types.Money{Amount: m.Tax, Currency: m.Currency},
			Total:        types.Money{Amount: m.Total, Currency: m.Currency},
		}
	}
	return out, nil
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	return &invoiceModel{
		ID:         inv.ID.String(),
		TenantID:   inv.TenantID,
		Number:     inv.Number,
		Sequence:   inv.Sequence,
		CustomerID: inv.CustomerID.String(),
		Customer: snapshotModel{
			Name:    inv.Customer.Name,
			Email:   inv.Customer.Email,
			Address: inv.Customer.Address,
			TaxID:   inv.Customer.TaxID,
		},
		IssueDate:      formatDate(inv.IssueDate),
		DueDate:        formatDate(inv.DueDate),
		Currency:       inv.Currency,
		LineItems:      toLineItemModels(inv.LineItems),
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
	}
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
	lineItems, err := fromLineItemModels(m.LineItems)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", m.ID, err)
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         invID,
		TenantID:   m.TenantID,
		Number:     m.Number,
		Sequence:   m.Sequence,
		CustomerID: custID,
		Customer: invoice.CustomerSnapshot{
			Name:    m.Customer.Name,
			Email:   m.Customer.Email,
			Address: m.Customer.Address,
			TaxID:   m.Customer.TaxID,
		},
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

	ID              string            `grove:"id,pk"             bson:"_id"`
	TenantID        string            `grove:"tenant_id"         bson:"tenant_id"`
	CustomerID      string            `grove:"customer_id"       bson:"customer_id"`
	PlanDescription string            `grove:"plan_description"  bson:"plan_description"`
	Currency        string            `grove:"currency"          bson:"currency"`
	Items           []lineItemModel   `grove:"items"             bson:"items,omitempty"`
	Amount          int64             `grove:"amount"            bson:"amount"`
	AmountCurrency  string            `grove:"amount_currency"   bson:"amount_currency"`
	Frequency       string            `grove:"frequency"         bson:"frequency"`
	StartDate       string            `grove:"start_date"        bson:"start_date"`
	NextInvoiceDate string            `grove:"next_invoice_date" bson:"next_invoice_date"`
	NextCycle       int               `grove:"next_cycle"        bson:"next_cycle"`
	PaymentTerms    string            `grove:"payment_terms"     bson:"payment_terms"`
	AutoSend        bool              `grove:"auto_send"         bson:"auto_send"`
	AutoCharge      bool              `grove:"auto_charge"       bson:"auto_charge"`
	Status          string            `grove:"status"            bson:"status"`
	LastInvoiceID   string            `grove:"last_invoice_id"   bson:"last_invoice_id"`
	LastInvoiceDate string            `grove:"last_invoice_date" bson:"last_invoice_date"`
	Notes           string            `grove:"notes"             bson:"notes"`
	Version         int64             `grove:"version"           bson:"version"`
	Metadata        map[string]string `grove:"metadata"          bson:"metadata,omitempty"`
	CreatedAt       time.Time         `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time         `grove:"updated_at"        bson:"updated_at"`
}

func toRecurringModel(c *recurring.Config) *recurringModel {
	return &recurringModel{
		ID:              c.ID.String(),
		TenantID:        c.TenantID,
		CustomerID:      c.CustomerID.String(),
		PlanDescription: c.PlanDescription,
		Currency:        c.Currency,
		Items:           toLineItemModels(c.Items),
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
	}
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
	items, err := fromLineItemModels(m.Items)
	if err != nil {
		return nil, fmt.Errorf("recurring %s: %w", m.ID, err)
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

// sequenceModel holds the last invoice number issued for a tenant.
type sequenceModel struct {
	TenantID string `bson:"_id"`
	Value    int64  `bson:"value"`
}

// ==================== Field helpers ====================

// formatDate stores calendar dates as ISO strings so range filters compare
// them lexically. The zero date is stored as "".
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

// migrationIndexes returns the index definitions for all invoicing collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCustomers: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
		},
		colInvoices: {
			{
				Keys: bson.D{{Key: "recurring_id", Value: 1}, {Key: "cycle_index", Value: 1}},
				Options: options.Index().
					SetName(cycleIndex).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"recurring_id": bson.M{"$gt": ""}}),
			},
			{
				Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "number", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"number": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		},
		colRecurring: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_invoice_date", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		},
	}
}
