package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

		"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	invoicing "github.com/xraph/invoicing"
	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	invoicingstore "github.com/xraph/invoicing/store"
)

// compile-time interface check
var _ invoicingstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("invoicing/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", invoicing.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Customer Store ====================

func (s *Store) CreateCustomer(ctx context.Context, c *customer.Customer) error {
	_, err := s.sdb.NewInsert(toCustomerModel(c)).Exec(ctx)
	return classify(err)
}

func (s *Store) GetCustomer(ctx context.Context, custID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", custID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, invoicing.ErrCustomerNotFound
		}
		return nil, err
	}
	return fromCustomerModel(m)
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	m := toCustomerModel(c)
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return invoicing.ErrCustomerNotFound
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	if err = classify(err); errors.Is(err, invoicing.ErrDuplicateGeneration) {
		return fmt.Errorf("%w: %s cycle %d", err, inv.RecurringID, inv.CycleIndex)
	}
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", invID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) GetInvoiceByCycle(ctx context.Context, recurringID id.RecurringID, cycle int) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.sdb.NewSelect(m).
		Where("recurring_id = ?", recurringID.String()).
		Where("cycle_index = ?", cycle).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	q := s.sdb.NewSelect(&models)

	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.CustomerID.IsNil() {
		q = q.Where("customer_id = ?", opts.CustomerID.String())
	}
	if !opts.RecurringID.IsNil() {
		q = q.Where("recurring_id = ?", opts.RecurringID.String())
	}
	if from := formatDate(opts.IssuedFrom); from != "" {
		q = q.Where("issue_date >= ?", from)
	}
	if to := formatDate(opts.IssuedTo); to != "" {
		q = q.Where("issue_date != '' AND issue_date <= ?", to)
	}
	if before := formatDate(opts.DueBefore); before != "" {
		q = q.Where("due_date != '' AND due_date < ?", before)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m, err := toInvoiceModel(inv)
	if err != nil {
		return err
	}

	res, err := s.sdb.NewUpdate((*invoiceModel)(nil)).
		Set("number = ?", m.Number).
		Set("sequence = ?", m.Sequence).
		Set("customer = ?", m.Customer).
		Set("issue_date = ?", m.IssueDate).
		Set("due_date = ?", m.DueDate).
		Set("currency = ?", m.Currency).
		Set("line_items = ?", m.LineItems).
		Set("status = ?", m.Status).
		Set("payment_terms = ?", m.PaymentTerms).
		Set("notes = ?", m.Notes).
		Set("paid_at = ?", m.PaidAt).
		Set("payment_ref = ?", m.PaymentRef).
		Set("cancelled_at = ?", m.CancelledAt).
		Set("cancel_reason = ?", m.CancelReason).
		Set("subtotal = ?", m.Subtotal).
		Set("discount_amount = ?", m.DiscountAmount).
		Set("tax_amount = ?", m.TaxAmount).
		Set("total = ?", m.Total).
		Set("metadata = ?", m.Metadata).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = ?", m.Version+1).
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return classify(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.invoiceMiss(ctx, inv)
	}
	inv.Version++
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, inv *invoice.Invoice) error {
	res, err := s.sdb.NewDelete((*invoiceModel)(nil)).
		Where("id = ?", inv.ID.String()).
		Where("version = ?", inv.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.invoiceMiss(ctx, inv)
	}
	return nil
}

// invoiceMiss explains a guarded write that touched no rows.
func (s *Store) invoiceMiss(ctx context.Context, inv *invoice.Invoice) error {
	current, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: invoice %s at version %d, have %d",
		invoicing.ErrVersionConflict, inv.ID, current.Version, inv.Version)
}

func (s *Store) NextInvoiceNumber(ctx context.Context, tenantID string) (int64, error) {
	var seq int64
	err := s.sdb.NewRaw(`
		INSERT INTO invoicing_sequences (tenant_id, value) VALUES (?, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET value = invoicing_sequences.value + 1
		RETURNING value
	`, tenantID).Scan(ctx, &seq)
	if err != nil {
		return 0, fmt.Errorf("invoicing/sqlite: next invoice number: %w", err)
	}
	return seq, nil
}

// ==================== Recurring Store ====================

func (s *Store) CreateRecurring(ctx context.Context, c *recurring.Config) error {
	m, err := toRecurringModel(c)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return classify(err)
}

func (s *Store) GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Config, error) {
	m := new(recurringModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", recID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, invoicing.ErrRecurringNotFound
		}
		return nil, err
	}
	return fromRecurringModel(m)
}

func (s *Store) ListRecurring(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Config, error) {
	var models []recurringModel
	q := s.sdb.NewSelect(&models)

	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if !opts.CustomerID.IsNil() {
		q = q.Where("customer_id = ?", opts.CustomerID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if due := formatDate(opts.DueOnOrBy); due != "" {
		q = q.Where("next_invoice_date <= ?", due)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("next_invoice_date ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*recurring.Config, len(models))
	for i := range models {
		c, err := fromRecurringModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) UpdateRecurring(ctx context.Context, c *recurring.Config) error {
	m, err := toRecurringModel(c)
	if err != nil {
		return err
	}

	res, err := s.sdb.NewUpdate((*recurringModel)(nil)).
		Set("plan_description = ?", m.PlanDescription).
		Set("currency = ?", m.Currency).
		Set("items = ?", m.Items).
		Set("amount = ?", m.Amount).
		Set("amount_currency = ?", m.AmountCurrency).
		Set("frequency = ?", m.Frequency).
		Set("next_invoice_date = ?", m.NextInvoiceDate).
		Set("next_cycle = ?", m.NextCycle).
		Set("payment_terms = ?", m.PaymentTerms).
		Set("auto_send = ?", m.AutoSend).
		Set("auto_charge = ?", m.AutoCharge).
		Set("status = ?", m.Status).
		Set("last_invoice_id = ?", m.LastInvoiceID).
		Set("last_invoice_date = ?", m.LastInvoiceDate).
		Set("notes = ?", m.Notes).
		Set("metadata = ?", m.Metadata).
		Set("updated_at = ?", m.UpdatedAt).
		Set("version = ?", m.Version+1).
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		current, gerr := s.GetRecurring(ctx, c.ID)
		if gerr != nil {
			return gerr
		}
		return fmt.Errorf("%w: recurring %s at version %d, have %d",
			invoicing.ErrVersionConflict, c.ID, current.Version, c.Version)
	}
	c.Version++
	return nil
}

// ==================== Helpers ====================

// classify maps unique violations onto the invoicing sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return err
	}
	switch sqlErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		// SQLite names the columns rather than the index.
		if strings.Contains(sqlErr.Error(), "recurring_id") {
			return invoicing.ErrDuplicateGeneration
		}
		return fmt.Errorf("%w: %s", invoicing.ErrAlreadyExists, sqlErr.Error())
	}
	return err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
