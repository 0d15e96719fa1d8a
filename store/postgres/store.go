package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	invoicing "github.com/xraph/invoicing"
	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	invoicingstore "github.com/xraph/invoicing/store"
)

// compile-time interface check
var _ invoicingstore.Store = (*Store)(nil)

const (
	// uniqueViolation is the SQLSTATE for a unique constraint violation.
	uniqueViolation = "23505"
	// cycleIndex is the unique index allowing one invoice per recurring cycle.
	cycleIndex = "idx_invoicing_invoices_cycle"
)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("invoicing/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", invoicing.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(toCustomerModel(c)).Exec(ctx)
	return classify(err)
}

func (s *Store) GetCustomer(ctx context.Context, custID id.CustomerID) (*customer.Customer, error) {
	m := new(customerModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", custID.String()).
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	_, err = s.pg.NewInsert(m).Exec(ctx)
	if err = classify(err); errors.Is(err, invoicing.ErrDuplicateGeneration) {
		return fmt.Errorf("%w: %s cycle %d", err, inv.RecurringID, inv.CycleIndex)
	}
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", invID.String()).
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
	err := s.pg.NewSelect(m).
		Where("recurring_id = $1", recurringID.String()).
		Where("cycle_index = $2", cycle).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	where := func(cond string, arg any) {
		argIdx++
		q = q.Where(fmt.Sprintf(cond, argIdx), arg)
	}
	if opts.TenantID != "" {
		where("tenant_id = $%d", opts.TenantID)
	}
	if opts.Status != "" {
		where("status = $%d", string(opts.Status))
	}
	if !opts.CustomerID.IsNil() {
		where("customer_id = $%d", opts.CustomerID.String())
	}
	if !opts.RecurringID.IsNil() {
		where("recurring_id = $%d", opts.RecurringID.String())
	}
	if from := formatDate(opts.IssuedFrom); from != "" {
		where("issue_date >= $%d", from)
	}
	if to := formatDate(opts.IssuedTo); to != "" {
		where("issue_date <> '' AND issue_date <= $%d", to)
	}
	if before := formatDate(opts.DueBefore); before != "" {
		where("due_date <> '' AND due_date < $%d", before)
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
	snapshot, lineItems := string(m.Customer), string(m.LineItems)
	metadata, err := jsonText(m.Metadata)
	if err != nil {
		return err
	}

	res, err := s.pg.NewUpdate((*invoiceModel)(nil)).
		Set("number = $1", m.Number).
		Set("sequence = $2", m.Sequence).
		Set("customer = $3::jsonb", snapshot).
		Set("issue_date = $4", m.IssueDate).
		Set("due_date = $5", m.DueDate).
		Set("currency = $6", m.Currency).
		Set("line_items = $7::jsonb", lineItems).
		Set("status = $8", m.Status).
		Set("payment_terms = $9", m.PaymentTerms).
		Set("notes = $10", m.Notes).
		Set("paid_at = $11", m.PaidAt).
		Set("payment_ref = $12", m.PaymentRef).
		Set("cancelled_at = $13", m.CancelledAt).
		Set("cancel_reason = $14", m.CancelReason).
		Set("subtotal = $15", m.Subtotal).
		Set("discount_amount = $16", m.DiscountAmount).
		Set("tax_amount = $17", m.TaxAmount).
		Set("total = $18", m.Total).
		Set("metadata = $19::jsonb", metadata).
		Set("updated_at = $20", m.UpdatedAt).
		Set("version = $21", m.Version+1).
		Where("id = $22", m.ID).
		Where("version = $23", m.Version).
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
	res, err := s.pg.NewDelete((*invoiceModel)(nil)).
		Where("id = $1", inv.ID.String()).
		Where("version = $2", inv.Version).
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
	err := s.pg.NewRaw(`
		INSERT INTO invoicing_sequences (tenant_id, value) VALUES ($1, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET value = invoicing_sequences.value + 1
		RETURNING value
	`, tenantID).Scan(ctx, &seq)
	if err != nil {
		return 0, fmt.Errorf("invoicing/postgres: next invoice number: %w", err)
	}
	return seq, nil
}

// ==================== Recurring Store ====================

func (s *Store) CreateRecurring(ctx context.Context, c *recurring.Config) error {
	m, err := toRecurringModel(c)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return classify(err)
}

func (s *Store) GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Config, error) {
	m := new(recurringModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", recID.String()).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	where := func(cond string, arg any) {
		argIdx++
		q = q.Where(fmt.Sprintf(cond, argIdx), arg)
	}
	if opts.TenantID != "" {
		where("tenant_id = $%d", opts.TenantID)
	}
	if !opts.CustomerID.IsNil() {
		where("customer_id = $%d", opts.CustomerID.String())
	}
	if opts.Status != "" {
		where("status = $%d", string(opts.Status))
	}
	if due := formatDate(opts.DueOnOrBy); due != "" {
		where("next_invoice_date <= $%d", due)
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
	metadata, err := jsonText(m.Metadata)
	if err != nil {
		return err
	}

	res, err := s.pg.NewUpdate((*recurringModel)(nil)).
		Set("plan_description = $1", m.PlanDescription).
		Set("currency = $2", m.Currency).
		Set("items = $3::jsonb", string(m.Items)).
		Set("amount = $4", m.Amount).
		Set("amount_currency = $5", m.AmountCurrency).
		Set("frequency = $6", m.Frequency).
		Set("next_invoice_date = $7", m.NextInvoiceDate).
		Set("next_cycle = $8", m.NextCycle).
		Set("payment_terms = $9", m.PaymentTerms).
		Set("auto_send = $10", m.AutoSend).
		Set("auto_charge = $11", m.AutoCharge).
		Set("status = $12", m.Status).
		Set("last_invoice_id = $13", m.LastInvoiceID).
		Set("last_invoice_date = $14", m.LastInvoiceDate).
		Set("notes = $15", m.Notes).
		Set("metadata = $16::jsonb", metadata).
		Set("updated_at = $17", m.UpdatedAt).
		Set("version = $18", m.Version+1).
		Where("id = $19", m.ID).
		Where("version = $20", m.Version).
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
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if pgErr.ConstraintName == cycleIndex {
			return invoicing.ErrDuplicateGeneration
		}
		return fmt.Errorf("%w: %s", invoicing.ErrAlreadyExists, pgErr.ConstraintName)
	}
	return err
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
