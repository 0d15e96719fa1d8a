package audithook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/plugin"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/types"
)

type captured struct {
	mu     sync.Mutex
	events []*AuditEvent
}

func (c *captured) Record(_ context.Context, evt *AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captured) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Action
	}
	return out
}

func issuedInvoice() *invoice.Invoice {
	inv := invoice.NewDraft("acme", id.NewCustomerID(), "usd", invoice.TermsNet30)
	inv.Number = "INV-000042"
	inv.IssueDate = civil.Date{Year: 2025, Month: time.March, Day: 1}
	inv.DueDate = civil.Date{Year: 2025, Month: time.March, Day: 31}
	inv.Status = invoice.StatusPending
	inv.Total = types.USD(4900)
	return inv
}

func TestExtensionRecordsThroughRegistry(t *testing.T) {
	rec := &captured{}
	reg := plugin.NewRegistry()
	require.NoError(t, reg.Register(New(rec)))

	ctx := context.Background()
	inv := issuedInvoice()
	reg.EmitInvoiceIssued(ctx, inv)
	reg.EmitInvoiceOverdue(ctx, inv)

	require.Equal(t, []string{ActionInvoiceIssued, ActionInvoiceOverdue}, rec.actions())

	evt := rec.events[0]
	assert.Equal(t, ResourceInvoice, evt.Resource)
	assert.Equal(t, inv.ID.String(), evt.ResourceID)
	assert.Equal(t, OutcomeSuccess, evt.Outcome)
	assert.Equal(t, "INV-000042", evt.Metadata["number"])
	assert.Equal(t, "2025-03-31", rec.events[1].Metadata["due_date"])
}

func TestRecurringStatusActions(t *testing.T) {
	rec := &captured{}
	ext := New(rec)
	ctx := context.Background()
	cfg := &recurring.Config{ID: id.NewRecurringID()}

	cfg.Status = recurring.StatusPaused
	require.NoError(t, ext.OnRecurringStatusChanged(ctx, cfg, recurring.StatusActive))
	cfg.Status = recurring.StatusActive
	require.NoError(t, ext.OnRecurringStatusChanged(ctx, cfg, recurring.StatusPaused))
	cfg.Status = recurring.StatusCancelled
	require.NoError(t, ext.OnRecurringStatusChanged(ctx, cfg, recurring.StatusActive))

	assert.Equal(t, []string{
		ActionRecurringPaused,
		ActionRecurringResumed,
		ActionRecurringCancelled,
	}, rec.actions())
	assert.Equal(t, "active", rec.events[2].Metadata["from"])
}

func TestIdleCycleIsNotRecorded(t *testing.T) {
	rec := &captured{}
	ext := New(rec)
	cfg := &recurring.Config{ID: id.NewRecurringID()}

	require.NoError(t, ext.OnCycleCompleted(context.Background(), cfg, 0, time.Millisecond))
	require.NoError(t, ext.OnCycleCompleted(context.Background(), cfg, 2, time.Millisecond))

	assert.Equal(t, []string{ActionCycleCompleted}, rec.actions())
	assert.Equal(t, 2, rec.events[0].Metadata["issued"])
}

func TestDeliveryFailureCarriesReason(t *testing.T) {
	rec := &captured{}
	ext := New(rec)
	inv := issuedInvoice()
	job := delivery.Job{Charge: &delivery.ChargeRequest{Invoice: inv, Amount: inv.Total}}

	require.NoError(t, ext.OnDeliveryFailed(context.Background(), job, delivery.ErrDeclined))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, OutcomeFailure, evt.Outcome)
	assert.Equal(t, SeverityError, evt.Severity)
	assert.Equal(t, "INV-000042", evt.ResourceID)
	assert.Equal(t, "charge", evt.Metadata["kind"])
	assert.Equal(t, delivery.ErrDeclined.Error(), evt.Reason)
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	inv := issuedInvoice()

	t.Run("Enabled", func(t *testing.T) {
		rec := &captured{}
		ext := New(rec, WithEnabledActions(ActionInvoicePaid))
		require.NoError(t, ext.OnInvoiceIssued(ctx, inv))
		require.NoError(t, ext.OnInvoicePaid(ctx, inv))
		assert.Equal(t, []string{ActionInvoicePaid}, rec.actions())
	})

	t.Run("Disabled", func(t *testing.T) {
		rec := &captured{}
		ext := New(rec, WithDisabledActions(ActionInvoiceIssued))
		require.NoError(t, ext.OnInvoiceIssued(ctx, inv))
		require.NoError(t, ext.OnInvoiceCancelled(ctx, inv))
		assert.Equal(t, []string{ActionInvoiceCancelled}, rec.actions())
	})
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}))
	assert.NoError(t, ext.OnInvoicePaid(context.Background(), issuedInvoice()))
}
