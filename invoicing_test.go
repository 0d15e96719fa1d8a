package invoicing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/invoicing"
	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/lease"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/store/memory"
	"github.com/xraph/invoicing/types"
)

const tenant = "acme"

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func newEngine(t *testing.T, opts ...invoicing.Option) (*invoicing.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	return invoicing.New(s, opts...), s
}

func seedCustomer(t *testing.T, e *invoicing.Engine) *customer.Customer {
	t.Helper()
	c := &customer.Customer{
		TenantID: tenant,
		Name:     "Jordan Reyes",
		Email:    "billing@reyes.example",
		Address:  "1 Main St",
		TaxID:    "EU123",
	}
	require.NoError(t, e.CreateCustomer(context.Background(), c))
	return c
}

func consultingItem() invoice.LineItem {
	return invoice.LineItem{
		Description:  "Consulting",
		Quantity:     2,
		UnitPrice:    types.USD(100000),
		TaxRate:      decimal.NewFromInt(9),
		DiscountRate: decimal.NewFromInt(10),
	}
}

func monthlyConfig(t *testing.T, e *invoicing.Engine, cust customer.Customer, start civil.Date) *recurring.Config {
	t.Helper()
	cfg := recurring.New(tenant, cust.ID, recurring.FrequencyMonthly, start)
	cfg.Currency = "usd"
	cfg.Amount = types.USD(4900)
	cfg.PlanDescription = "Pro plan"
	require.NoError(t, e.CreateRecurring(context.Background(), cfg))
	return cfg
}

func recurringInvoices(t *testing.T, e *invoicing.Engine, cfg *recurring.Config) []*invoice.Invoice {
	t.Helper()
	list, err := e.ListInvoices(context.Background(), invoice.ListOpts{RecurringID: cfg.ID})
	require.NoError(t, err)
	return list
}

func issueDates(invs []*invoice.Invoice) map[int]civil.Date {
	out := make(map[int]civil.Date, len(invs))
	for _, inv := range invs {
		out[inv.CycleIndex] = inv.IssueDate
	}
	return out
}

// ──────────────────────────────────────────────────
// Manual invoices
// ──────────────────────────────────────────────────

func TestIssueInvoice(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)

	draft, err := e.CreateDraft(ctx, tenant, cust.ID, "USD", "", consultingItem())
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, draft.Status)
	assert.Equal(t, int64(196200), draft.Total.Amount)
	assert.Empty(t, draft.Number)

	issued, err := e.IssueInvoice(ctx, draft.ID, date(2025, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, issued.Status)
	assert.Equal(t, "INV-000001", issued.Number)
	assert.Equal(t, date(2025, 2, 9), issued.DueDate)
	assert.Equal(t, "EU123", issued.Customer.TaxID)
	assert.Equal(t, int64(200000), issued.Subtotal.Amount)
	assert.Equal(t, int64(20000), issued.DiscountAmount.Amount)
	assert.Equal(t, int64(16200), issued.TaxAmount.Amount)
	assert.Equal(t, int64(196200), issued.Total.Amount)

	// Later customer edits do not reach the issued invoice.
	cust.Email = "new@reyes.example"
	require.NoError(t, e.UpdateCustomer(ctx, cust))
	stored, err := e.GetInvoice(ctx, issued.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing@reyes.example", stored.Customer.Email)

	// Issued invoices are frozen.
	_, err = e.AddLineItem(ctx, issued.ID, consultingItem())
	assert.ErrorIs(t, err, invoicing.ErrInvoiceNotDraft)

	second, err := e.CreateDraft(ctx, tenant, cust.ID, "usd", invoice.TermsDueOnReceipt, consultingItem())
	require.NoError(t, err)
	second, err = e.IssueInvoice(ctx, second.ID, date(2025, 1, 11))
	require.NoError(t, err)
	assert.Equal(t, "INV-000002", second.Number)
	assert.Equal(t, date(2025, 1, 11), second.DueDate)
}

func TestIssueInvoiceValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)

	empty, err := e.CreateDraft(ctx, tenant, cust.ID, "usd", "")
	require.NoError(t, err)
	_, err = e.IssueInvoice(ctx, empty.ID, date(2025, 1, 1))
	assert.ErrorIs(t, err, invoicing.ErrEmptyInvoice)
	assert.True(t, invoicing.IsValidation(err))

	bad := consultingItem()
	bad.Quantity = 0
	_, err = e.CreateDraft(ctx, tenant, cust.ID, "usd", "", bad)
	assert.ErrorIs(t, err, invoicing.ErrInvalidQuantity)

	eur := consultingItem()
	eur.UnitPrice = types.EUR(100)
	_, err = e.CreateDraft(ctx, tenant, cust.ID, "usd", "", eur)
	assert.ErrorIs(t, err, invoicing.ErrCurrencyMismatch)

	_, err = e.CreateDraft(ctx, tenant, cust.ID, "usd", "net thirty")
	assert.ErrorIs(t, err, invoicing.ErrInvalidTerms)

	draft, err := e.CreateDraft(ctx, tenant, cust.ID, "usd", "", consultingItem())
	require.NoError(t, err)
	_, err = e.SetDueDate(ctx, draft.ID, date(2024, 12, 31))
	require.NoError(t, err)
	_, err = e.IssueInvoice(ctx, draft.ID, date(2025, 1, 1))
	assert.ErrorIs(t, err, invoicing.ErrInvalidDueDate)

	stored, err := e.GetInvoice(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, stored.Status)
}

func TestDraftEditing(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)

	draft, err := e.CreateDraft(ctx, tenant, cust.ID, "usd", "")
	require.NoError(t, err)

	draft, err = e.AddLineItem(ctx, draft.ID, consultingItem())
	require.NoError(t, err)
	draft, err = e.AddLineItem(ctx, draft.ID, invoice.LineItem{Description: "Setup", Quantity: 1, UnitPrice: types.USD(5000)})
	require.NoError(t, err)
	assert.Equal(t, int64(201200), draft.Total.Amount)
	require.Len(t, draft.LineItems, 2)

	draft, err = e.RemoveLineItem(ctx, draft.ID, draft.LineItems[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), draft.Total.Amount)

	require.NoError(t, e.DeleteDraft(ctx, draft.ID))
	_, err = e.GetInvoice(ctx, draft.ID)
	assert.True(t, invoicing.IsNotFound(err))
}

func TestPaymentAndCancellation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)

	draft, err := e.CreateDraft(ctx, tenant, cust.ID, "usd", "", consultingItem())
	require.NoError(t, err)

	_, err = e.RecordPayment(ctx, draft.ID, types.USD(196200), time.Now(), "pi_1")
	assert.ErrorIs(t, err, invoicing.ErrInvalidTransition, "draft cannot be paid")

	inv, err := e.IssueInvoice(ctx, draft.ID, date(2025, 1, 1))
	require.NoError(t, err)

	_, err = e.RecordPayment(ctx, inv.ID, types.USD(100000), time.Now(), "pi_1")
	assert.ErrorIs(t, err, invoicing.ErrAmountMismatch)
	_, err = e.RecordPayment(ctx, inv.ID, types.EUR(196200), time.Now(), "pi_1")
	assert.ErrorIs(t, err, invoicing.ErrCurrencyMismatch)

	paid, err := e.RecordPayment(ctx, inv.ID, types.USD(196200), time.Now(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.Equal(t, "pi_1", paid.PaymentRef)
	require.NotNil(t, paid.PaidAt)

	_, err = e.CancelInvoice(ctx, inv.ID, "duplicate")
	assert.ErrorIs(t, err, invoicing.ErrInvalidTransition)
	assert.ErrorIs(t, e.DeleteDraft(ctx, inv.ID), invoicing.ErrInvoiceNotDraft)

	other, err := e.CreateDraft(ctx, tenant, cust.ID, "usd", "", consultingItem())
	require.NoError(t, err)
	other, err = e.IssueInvoice(ctx, other.ID, date(2025, 1, 1))
	require.NoError(t, err)
	cancelled, err := e.CancelInvoice(ctx, other.ID, "customer left")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusCancelled, cancelled.Status)
	assert.Equal(t, "customer left", cancelled.CancelReason)
}

// ──────────────────────────────────────────────────
// Recurring billing
// ──────────────────────────────────────────────────

func TestRunCycleCatchUp(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)
	cfg := monthlyConfig(t, e, *cust, date(2024, 12, 1))

	report, err := e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 3, 5))
	require.NoError(t, err)
	require.False(t, report.Errors.HasErrors(), report.Errors.Error())
	require.Len(t, report.Generated, 4)

	invs := recurringInvoices(t, e, cfg)
	require.Len(t, invs, 4)
	assert.Equal(t, map[int]civil.Date{
		0: date(2024, 12, 1),
		1: date(2025, 1, 1),
		2: date(2025, 2, 1),
		3: date(2025, 3, 1),
	}, issueDates(invs))
	for _, inv := range invs {
		assert.Equal(t, int64(4900), inv.Total.Amount)
		assert.Equal(t, invoice.StatusPending, inv.Status)
		assert.Equal(t, inv.IssueDate.AddDays(30), inv.DueDate)
		assert.Equal(t, "Jordan Reyes", inv.Customer.Name)
	}

	stored, err := e.GetRecurring(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.NextCycle)
	assert.Equal(t, date(2025, 4, 1), stored.NextInvoiceDate)
	assert.Equal(t, date(2025, 3, 1), stored.LastInvoiceDate)
}

func TestRunCycleIdempotentWithStaleConfigs(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)
	stale := monthlyConfig(t, e, *cust, date(2024, 12, 1))
	asOf := date(2025, 3, 5)

	first, err := e.RunCycle(ctx, []*recurring.Config{stale}, asOf)
	require.NoError(t, err)
	assert.Len(t, first.Generated, 4)

	// The caller still holds the copy from before the first run.
	assert.Equal(t, 0, stale.NextCycle)
	second, err := e.RunCycle(ctx, []*recurring.Config{stale, stale}, asOf)
	require.NoError(t, err)
	assert.Empty(t, second.Generated)
	assert.False(t, second.Errors.HasErrors())

	assert.Len(t, recurringInvoices(t, e, stale), 4)
}

func TestRunCycleMonthEnd(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)
	cfg := monthlyConfig(t, e, *cust, date(2024, 1, 31))

	_, err := e.RunCycle(ctx, []*recurring.Config{cfg}, date(2024, 4, 30))
	require.NoError(t, err)

	assert.Equal(t, map[int]civil.Date{
		0: date(2024, 1, 31),
		1: date(2024, 2, 29),
		2: date(2024, 3, 31),
		3: date(2024, 4, 30),
	}, issueDates(recurringInvoices(t, e, cfg)))
}

func TestRunCycleConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	// Two engines with separate leases share one store, as two processes
	// without a shared locker would.
	a := invoicing.New(s)
	b := invoicing.New(s)
	cust := seedCustomer(t, a)
	cfg := monthlyConfig(t, a, *cust, date(2024, 12, 1))
	asOf := date(2025, 3, 5)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		e := a
		if i%2 == 1 {
			e = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.RunCycle(ctx, []*recurring.Config{cfg}, asOf)
		}()
	}
	wg.Wait()

	// A final pass finishes whatever a conflicting worker left behind.
	_, err := a.RunCycle(ctx, []*recurring.Config{cfg}, asOf)
	require.NoError(t, err)

	invs := recurringInvoices(t, a, cfg)
	require.Len(t, invs, 4)
	assert.Len(t, issueDates(invs), 4, "each cycle is billed exactly once")

	stored, err := a.GetRecurring(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.NextCycle)
}

func TestRunCycleMaxCatchUp(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, invoicing.WithMaxCatchUp(2))
	cust := seedCustomer(t, e)
	cfg := monthlyConfig(t, e, *cust, date(2024, 12, 1))
	asOf := date(2025, 3, 5)

	report, err := e.RunCycle(ctx, []*recurring.Config{cfg}, asOf)
	require.NoError(t, err)
	assert.Len(t, report.Generated, 2)
	assert.Equal(t, 1, report.Deferred)

	report, err = e.RunDue(ctx, asOf)
	require.NoError(t, err)
	assert.Len(t, report.Generated, 2)
	assert.Equal(t, 0, report.Deferred)

	report, err = e.RunDue(ctx, asOf)
	require.NoError(t, err)
	assert.Empty(t, report.Generated)
	assert.Len(t, recurringInvoices(t, e, cfg), 4)
}

func TestRunCycleSkipsLeasedConfig(t *testing.T) {
	ctx := context.Background()
	locker := lease.NewMemory()
	e, _ := newEngine(t, invoicing.WithLocker(locker))
	cust := seedCustomer(t, e)
	cfg := monthlyConfig(t, e, *cust, date(2025, 1, 1))

	held, err := locker.Acquire(ctx, "invoicing:recurring:"+cfg.ID.String(), time.Minute)
	require.NoError(t, err)

	report, err := e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Generated)

	require.NoError(t, held.Release(ctx))
	report, err = e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 1, 1))
	require.NoError(t, err)
	assert.Len(t, report.Generated, 1)
}

func TestPauseResumeCancel(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)
	cfg := monthlyConfig(t, e, *cust, date(2024, 12, 1))

	_, err := e.RunDue(ctx, date(2025, 1, 5))
	require.NoError(t, err)
	require.Len(t, recurringInvoices(t, e, cfg), 2)

	paused, err := e.PauseRecurring(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusPaused, paused.Status)

	report, err := e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 3, 5))
	require.NoError(t, err)
	assert.Empty(t, report.Generated)
	assert.Equal(t, 1, report.Skipped)

	// Already issued invoices are untouched by the pause.
	for _, inv := range recurringInvoices(t, e, cfg) {
		assert.Equal(t, invoice.StatusPending, inv.Status)
	}

	resumed, err := e.ResumeRecurring(ctx, cfg.ID, date(2025, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, recurring.StatusActive, resumed.Status)
	assert.Equal(t, date(2025, 4, 1), resumed.NextInvoiceDate)

	report, err = e.RunDue(ctx, date(2025, 4, 1))
	require.NoError(t, err)
	require.Len(t, report.Generated, 1)
	assert.Equal(t, date(2025, 4, 1), report.Generated[0].IssueDate)

	_, err = e.CancelRecurring(ctx, cfg.ID)
	require.NoError(t, err)
	report, err = e.RunCycle(ctx, []*recurring.Config{cfg}, date(2026, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, report.Generated)
	assert.Len(t, recurringInvoices(t, e, cfg), 3)

	_, err = e.PauseRecurring(ctx, cfg.ID)
	assert.ErrorIs(t, err, invoicing.ErrInvalidRecurringTransition)
}

func TestCreateRecurringValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)

	cfg := recurring.New(tenant, cust.ID, "fortnightly", date(2025, 1, 1))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(100)
	assert.ErrorIs(t, e.CreateRecurring(ctx, cfg), invoicing.ErrInvalidFrequency)

	cfg = recurring.New(tenant, cust.ID, recurring.FrequencyWeekly, date(2025, 1, 1))
	cfg.Currency = "usd"
	assert.ErrorIs(t, e.CreateRecurring(ctx, cfg), invoicing.ErrEmptyTemplate)

	cfg = recurring.New(tenant, customer.Customer{}.ID, recurring.FrequencyWeekly, date(2025, 1, 1))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(100)
	assert.True(t, invoicing.IsValidation(e.CreateRecurring(ctx, cfg)))
}

// ──────────────────────────────────────────────────
// Delivery
// ──────────────────────────────────────────────────

type deliveryRecorder struct {
	mu      sync.Mutex
	failed  []error
	overdue int
}

func (r *deliveryRecorder) Name() string { return "delivery-recorder" }

func (r *deliveryRecorder) OnDeliveryFailed(_ context.Context, _ delivery.Job, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
	return nil
}

func (r *deliveryRecorder) OnInvoiceOverdue(context.Context, *invoice.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overdue++
	return nil
}

func (r *deliveryRecorder) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

func TestDeliveryFailureKeepsInvoice(t *testing.T) {
	ctx := context.Background()
	rec := &deliveryRecorder{}
	notifier := delivery.NotifierFunc(func(context.Context, delivery.SendRequest) error {
		return errors.New("smtp unavailable")
	})
	d := delivery.NewDispatcher(
		delivery.WithNotifier(notifier),
		delivery.WithRetry(2, time.Millisecond, time.Millisecond),
	)
	e, _ := newEngine(t, invoicing.WithDispatcher(d), invoicing.WithPlugin(rec))
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	cust := seedCustomer(t, e)
	cfg := recurring.New(tenant, cust.ID, recurring.FrequencyWeekly, date(2025, 1, 6))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(1500)
	cfg.AutoSend = true
	require.NoError(t, e.CreateRecurring(ctx, cfg))

	report, err := e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 1, 6))
	require.NoError(t, err)
	require.Len(t, report.Generated, 1)

	require.Eventually(t, func() bool { return rec.failures() == 1 }, 2*time.Second, 5*time.Millisecond)

	invs := recurringInvoices(t, e, cfg)
	require.Len(t, invs, 1)
	assert.Equal(t, invoice.StatusPending, invs[0].Status)
}

func TestAutoSendUsesCurrentEmail(t *testing.T) {
	ctx := context.Background()
	var (
		mu   sync.Mutex
		sent []delivery.SendRequest
	)
	notifier := delivery.NotifierFunc(func(_ context.Context, req delivery.SendRequest) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, req)
		return nil
	})
	d := delivery.NewDispatcher(delivery.WithNotifier(notifier))
	e, _ := newEngine(t, invoicing.WithDispatcher(d))
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	cust := seedCustomer(t, e)
	cfg := recurring.New(tenant, cust.ID, recurring.FrequencyMonthly, date(2025, 1, 1))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(900)
	cfg.AutoSend = true
	require.NoError(t, e.CreateRecurring(ctx, cfg))

	cust.Email = "finance@reyes.example"
	require.NoError(t, e.UpdateCustomer(ctx, cust))

	_, err := e.RunDue(ctx, date(2025, 1, 1))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "finance@reyes.example", sent[0].Recipient)
	assert.Equal(t, delivery.KindInvoice, sent[0].Kind)
}

func TestAutoChargeRecordsPayment(t *testing.T) {
	ctx := context.Background()
	charger := delivery.ChargerFunc(func(_ context.Context, req delivery.ChargeRequest) (delivery.ChargeResult, error) {
		if req.IdempotencyKey != req.Invoice.ID.String() {
			return delivery.ChargeResult{Outcome: delivery.OutcomeError, Message: "unstable key"}, nil
		}
		return delivery.ChargeResult{Outcome: delivery.OutcomePaid, Reference: "pi_" + req.Invoice.Number}, nil
	})
	d := delivery.NewDispatcher(delivery.WithCharger(charger))
	e, _ := newEngine(t, invoicing.WithDispatcher(d))
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	cust := seedCustomer(t, e)
	cfg := recurring.New(tenant, cust.ID, recurring.FrequencyYearly, date(2025, 1, 1))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(99900)
	cfg.AutoCharge = true
	require.NoError(t, e.CreateRecurring(ctx, cfg))

	report, err := e.RunDue(ctx, date(2025, 1, 1))
	require.NoError(t, err)
	require.Len(t, report.Generated, 1)
	invID := report.Generated[0].ID

	require.Eventually(t, func() bool {
		inv, err := e.GetInvoice(ctx, invID)
		return err == nil && inv.Status == invoice.StatusPaid
	}, 2*time.Second, 5*time.Millisecond)

	inv, err := e.GetInvoice(ctx, invID)
	require.NoError(t, err)
	assert.Equal(t, "pi_INV-000001", inv.PaymentRef)
}

type sendCounter struct {
	mu   sync.Mutex
	sent []delivery.SendRequest
}

func (c *sendCounter) Send(_ context.Context, req delivery.SendRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	return nil
}

func (c *sendCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// pauseDuringAdvance pauses the configuration right before the engine's
// first attempt to advance it, so that attempt loses the version check.
type pauseDuringAdvance struct {
	*memory.Store
	once sync.Once
}

func (s *pauseDuringAdvance) UpdateRecurring(ctx context.Context, c *recurring.Config) error {
	var err error
	s.once.Do(func() {
		var stored *recurring.Config
		if stored, err = s.Store.GetRecurring(ctx, c.ID); err != nil {
			return
		}
		if err = stored.Pause(); err != nil {
			return
		}
		err = s.Store.UpdateRecurring(ctx, stored)
	})
	if err != nil {
		return err
	}
	return s.Store.UpdateRecurring(ctx, c)
}

func TestConflictingPauseStillDeliversIssuedInvoice(t *testing.T) {
	ctx := context.Background()
	sends := &sendCounter{}
	s := &pauseDuringAdvance{Store: memory.New()}
	e := invoicing.New(s, invoicing.WithDispatcher(delivery.NewDispatcher(delivery.WithNotifier(sends))))
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	cust := seedCustomer(t, e)
	cfg := recurring.New(tenant, cust.ID, recurring.FrequencyMonthly, date(2025, 1, 1))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(2500)
	cfg.AutoSend = true
	require.NoError(t, e.CreateRecurring(ctx, cfg))

	report, err := e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 1, 1))
	require.NoError(t, err)
	require.Len(t, report.Generated, 1)
	assert.Equal(t, 1, report.Conflicts)
	require.Eventually(t, func() bool { return sends.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	issued, err := e.GetInvoice(ctx, report.Generated[0].ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.AutoDeliveryQueued, issued.Metadata[invoicing.MetaAutoDelivery])

	_, err = e.ResumeRecurring(ctx, cfg.ID, date(2025, 1, 1))
	require.NoError(t, err)
	report, err = e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 1, 1))
	require.NoError(t, err)
	assert.Empty(t, report.Generated)
	assert.Equal(t, 1, report.Adopted)

	assert.Never(t, func() bool { return sends.count() > 1 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, recurringInvoices(t, e, cfg), 1)
}

func TestAdoptedInvoiceAwaitingDeliveryIsSent(t *testing.T) {
	ctx := context.Background()
	sends := &sendCounter{}
	e, s := newEngine(t, invoicing.WithDispatcher(delivery.NewDispatcher(delivery.WithNotifier(sends))))
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	cust := seedCustomer(t, e)
	cfg := recurring.New(tenant, cust.ID, recurring.FrequencyWeekly, date(2025, 1, 6))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(1500)
	cfg.AutoSend = true
	require.NoError(t, e.CreateRecurring(ctx, cfg))

	// An earlier run issued cycle 0 and stopped before queueing its e-mail.
	left := invoice.NewDraft(tenant, cust.ID, "usd", cfg.PaymentTerms)
	left.RecurringID = cfg.ID
	left.LineItems = cfg.BuildItems()
	left.Metadata = map[string]string{invoicing.MetaAutoDelivery: invoicing.AutoDeliveryPending}
	require.NoError(t, left.Issue(date(2025, 1, 6), cust.Snapshot()))
	left.AssignNumber(invoicing.DefaultInvoicePrefix, 1)
	require.NoError(t, s.CreateInvoice(ctx, left))

	report, err := e.RunCycle(ctx, []*recurring.Config{cfg}, date(2025, 1, 6))
	require.NoError(t, err)
	assert.Empty(t, report.Generated)
	assert.Equal(t, 1, report.Adopted)

	require.Eventually(t, func() bool { return sends.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	got, err := e.GetInvoice(ctx, left.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.AutoDeliveryQueued, got.Metadata[invoicing.MetaAutoDelivery])
}

// conflictOnFirstPayment rejects the first write that settles an invoice as
// if another writer had changed it in between.
type conflictOnFirstPayment struct {
	*memory.Store
	mu       sync.Mutex
	rejected bool
}

func (s *conflictOnFirstPayment) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	reject := inv.Status == invoice.StatusPaid && !s.rejected
	if reject {
		s.rejected = true
	}
	s.mu.Unlock()
	if reject {
		return invoicing.ErrVersionConflict
	}
	return s.Store.UpdateInvoice(ctx, inv)
}

func TestChargePaymentSurvivesVersionConflict(t *testing.T) {
	ctx := context.Background()
	charger := delivery.ChargerFunc(func(_ context.Context, req delivery.ChargeRequest) (delivery.ChargeResult, error) {
		return delivery.ChargeResult{Outcome: delivery.OutcomePaid, Reference: "pi_" + req.Invoice.Number}, nil
	})
	s := &conflictOnFirstPayment{Store: memory.New()}
	e := invoicing.New(s, invoicing.WithDispatcher(delivery.NewDispatcher(delivery.WithCharger(charger))))
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	cust := seedCustomer(t, e)
	cfg := recurring.New(tenant, cust.ID, recurring.FrequencyMonthly, date(2025, 2, 1))
	cfg.Currency = "usd"
	cfg.Amount = types.USD(12000)
	cfg.AutoCharge = true
	require.NoError(t, e.CreateRecurring(ctx, cfg))

	report, err := e.RunDue(ctx, date(2025, 2, 1))
	require.NoError(t, err)
	require.Len(t, report.Generated, 1)
	invID := report.Generated[0].ID

	require.Eventually(t, func() bool {
		inv, err := e.GetInvoice(ctx, invID)
		return err == nil && inv.Status == invoice.StatusPaid
	}, 2*time.Second, 5*time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.True(t, s.rejected)
}

// ──────────────────────────────────────────────────
// Overdue and statistics
// ──────────────────────────────────────────────────

func TestReclassifyOverdue(t *testing.T) {
	ctx := context.Background()
	rec := &deliveryRecorder{}
	var (
		mu        sync.Mutex
		reminders []delivery.SendRequest
	)
	notifier := delivery.NotifierFunc(func(_ context.Context, req delivery.SendRequest) error {
		mu.Lock()
		defer mu.Unlock()
		reminders = append(reminders, req)
		return nil
	})
	d := delivery.NewDispatcher(delivery.WithNotifier(notifier))
	e, _ := newEngine(t,
		invoicing.WithDispatcher(d),
		invoicing.WithOverdueReminders(true),
		invoicing.WithPlugin(rec),
	)
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Stop() })

	cust := seedCustomer(t, e)
	draft, err := e.CreateDraft(ctx, tenant, cust.ID, "usd", invoice.TermsNet30, consultingItem())
	require.NoError(t, err)
	inv, err := e.IssueInvoice(ctx, draft.ID, date(2025, 1, 1))
	require.NoError(t, err)
	require.Equal(t, date(2025, 1, 31), inv.DueDate)

	changed, err := e.ReclassifyOverdue(ctx, tenant, date(2025, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, changed, "due today is not overdue")

	changed, err = e.ReclassifyOverdue(ctx, tenant, date(2025, 2, 3))
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, invoice.StatusOverdue, changed[0].Status)

	changed, err = e.ReclassifyOverdue(ctx, tenant, date(2025, 2, 3))
	require.NoError(t, err)
	assert.Empty(t, changed)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reminders) == 1
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, delivery.KindReminder, reminders[0].Kind)
	assert.Equal(t, 3, reminders[0].DaysOverdue)
	mu.Unlock()

	rec.mu.Lock()
	assert.Equal(t, 1, rec.overdue)
	rec.mu.Unlock()

	paid, err := e.RecordPayment(ctx, inv.ID, inv.Total, time.Now(), "wire-42")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	cust := seedCustomer(t, e)

	issue := func(item invoice.LineItem, currency string, on civil.Date) *invoice.Invoice {
		t.Helper()
		d, err := e.CreateDraft(ctx, tenant, cust.ID, currency, invoice.TermsNet15, item)
		require.NoError(t, err)
		inv, err := e.IssueInvoice(ctx, d.ID, on)
		require.NoError(t, err)
		return inv
	}

	usdItem := invoice.LineItem{Description: "A", Quantity: 1, UnitPrice: types.USD(10000)}
	eurItem := invoice.LineItem{Description: "B", Quantity: 3, UnitPrice: types.EUR(2500)}

	pending := issue(usdItem, "usd", date(2025, 3, 1))
	overdue := issue(usdItem, "usd", date(2025, 1, 1))
	paid := issue(eurItem, "eur", date(2025, 3, 1))
	_, err := e.RecordPayment(ctx, paid.ID, paid.Total, time.Now(), "pi_9")
	require.NoError(t, err)
	cancelled := issue(usdItem, "usd", date(2025, 3, 1))
	_, err = e.CancelInvoice(ctx, cancelled.ID, "void")
	require.NoError(t, err)
	_, err = e.CreateDraft(ctx, tenant, cust.ID, "usd", "", usdItem)
	require.NoError(t, err)

	stats, err := e.Statistics(ctx, invoice.ListOpts{TenantID: tenant}, date(2025, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 1, stats.Draft)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Overdue, "past due counts as overdue before the sweep")
	assert.Equal(t, 1, stats.Paid)
	assert.Equal(t, 1, stats.Cancelled)

	require.Len(t, stats.Totals, 2)
	eur, usd := stats.Totals[0], stats.Totals[1]
	assert.Equal(t, "eur", eur.Currency)
	assert.Equal(t, int64(7500), eur.Invoiced.Amount)
	assert.Equal(t, int64(7500), eur.Paid.Amount)
	assert.Equal(t, int64(0), eur.Outstanding.Amount)

	assert.Equal(t, "usd", usd.Currency)
	assert.Equal(t, pending.Total.Amount+overdue.Total.Amount, usd.Invoiced.Amount)
	assert.Equal(t, int64(20000), usd.Outstanding.Amount)
	assert.Equal(t, int64(10000), usd.Overdue.Amount)
}

func TestErrorClassification(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	_, err := e.GetInvoice(ctx, invoicing.ID{})
	assert.True(t, invoicing.IsNotFound(err))

	_, err = e.CreateDraft(ctx, tenant, customer.Customer{}.ID, "usd", "")
	assert.ErrorIs(t, err, invoicing.ErrCustomerNotFound)

	var multi invoicing.MultiError
	multi.Add(nil)
	assert.NoError(t, multi.ErrOrNil())
	multi.Add(invoicing.ErrVersionConflict)
	assert.True(t, invoicing.IsConflict(multi.ErrOrNil()))
	assert.True(t, invoicing.IsRetryable(multi.ErrOrNil()))
}
