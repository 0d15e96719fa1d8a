package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	invoicing "github.com/xraph/invoicing"
	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	invoicingstore "github.com/xraph/invoicing/store"
)

// Collection name constants.
const (
	colCustomers = "invoicing_customers"
	colInvoices  = "invoicing_invoices"
	colRecurring = "invoicing_recurring"
	colSequences = "invoicing_sequences"

	// cycleIndex is the unique index allowing one invoice per recurring cycle.
	cycleIndex = "invoicing_invoices_cycle"
)

// compile-time interface check
var _ invoicingstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all invoicing collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo %s indexes: %w", invoicing.ErrMigrationFailed, col, err)
		}
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
	_, err := s.mdb.NewInsert(toCustomerModel(c)).Exec(ctx)
	if err != nil {
		return classify("create customer", err)
	}
	return nil
}

func (s *Store) GetCustomer(ctx context.Context, custID id.CustomerID) (*customer.Customer, error) {
	var m customerModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": custID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicing.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("invoicing/mongo: get customer: %w", err)
	}
	return fromCustomerModel(&m)
}

func (s *Store) UpdateCustomer(ctx context.Context, c *customer.Customer) error {
	m := toCustomerModel(c)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: update customer: %w", err)
	}
	if res.MatchedCount() == 0 {
		return invoicing.ErrCustomerNotFound
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := s.mdb.NewInsert(toInvoiceModel(inv)).Exec(ctx)
	if err != nil {
		err = classify("create invoice", err)
		if errors.Is(err, invoicing.ErrDuplicateGeneration) {
			return fmt.Errorf("%w: %s cycle %d", err, inv.RecurringID, inv.CycleIndex)
		}
		return err
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoicing/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) GetInvoiceByCycle(ctx context.Context, recurringID id.RecurringID, cycle int) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"recurring_id": recurringID.String(), "cycle_index": cycle}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoicing/mongo: get invoice by cycle: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	var models []invoiceModel

	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if !opts.RecurringID.IsNil() {
		filter["recurring_id"] = opts.RecurringID.String()
	}
	issued := bson.M{}
	if from := formatDate(opts.IssuedFrom); from != "" {
		issued["$gte"] = from
	}
	if to := formatDate(opts.IssuedTo); to != "" {
		issued["$gt"] = ""
		issued["$lte"] = to
	}
	if len(issued) > 0 {
		filter["issue_date"] = issued
	}
	if before := formatDate(opts.DueBefore); before != "" {
		filter["due_date"] = bson.M{"$gt": "", "$lt": before}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("invoicing/mongo: list invoices: %w", err)
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
	m := toInvoiceModel(inv)
	m.Version = inv.Version + 1

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": inv.Version}).
		Exec(ctx)
	if err != nil {
		return classify("update invoice", err)
	}
	if res.MatchedCount() == 0 {
		return s.invoiceMiss(ctx, inv)
	}
	inv.Version++
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, inv *invoice.Invoice) error {
	res, err := s.mdb.NewDelete((*invoiceModel)(nil)).
		Filter(bson.M{"_id": inv.ID.String(), "version": inv.Version}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: delete invoice: %w", err)
	}
	if res.DeletedCount() == 0 {
		return s.invoiceMiss(ctx, inv)
	}
	return nil
}

// invoiceMiss explains a guarded write that matched no document.
func (s *Store) invoiceMiss(ctx context.Context, inv *invoice.Invoice) error {
	current, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: invoice %s at version %d, have %d",
		invoicing.ErrVersionConflict, inv.ID, current.Version, inv.Version)
}

func (s *Store) NextInvoiceNumber(ctx context.Context, tenantID string) (int64, error) {
	var seq sequenceModel
	err := s.mdb.Collection(colSequences).FindOneAndUpdate(ctx,
		bson.M{"_id": tenantID},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&seq)
	if err != nil {
		return 0, fmt.Errorf("invoicing/mongo: next invoice number: %w", err)
	}
	return seq.Value, nil
}

// ==================== Recurring Store ====================

func (s *Store) CreateRecurring(ctx context.Context, c *recurring.Config) error {
	_, err := s.mdb.NewInsert(toRecurringModel(c)).Exec(ctx)
	if err != nil {
		return classify("create recurring", err)
	}
	return nil
}

func (s *Store) GetRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Config, error) {
	var m recurringModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": recID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicing.ErrRecurringNotFound
		}
		return nil, fmt.Errorf("invoicing/mongo: get recurring: %w", err)
	}
	return fromRecurringModel(&m)
}

func (s *Store) ListRecurring(ctx context.Context, opts recurring.ListOpts) ([]*recurring.Config, error) {
	var models []recurringModel

	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if !opts.CustomerID.IsNil() {
		filter["customer_id"] = opts.CustomerID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if due := formatDate(opts.DueOnOrBy); due != "" {
		filter["next_invoice_date"] = bson.M{"$lte": due}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "next_invoice_date", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("invoicing/mongo: list recurring: %w", err)
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
	m := toRecurringModel(c)
	m.Version = c.Version + 1

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": c.Version}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: update recurring: %w", err)
	}
	if res.MatchedCount() == 0 {
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

// classify maps duplicate key errors onto the invoicing sentinels.
func classify(op string, err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("invoicing/mongo: %s: %w", op, err)
	}
	if strings.Contains(err.Error(), cycleIndex) {
		return invoicing.ErrDuplicateGeneration
	}
	return fmt.Errorf("%w: %s", invoicing.ErrAlreadyExists, op)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
