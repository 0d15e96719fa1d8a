// Package audithook bridges invoicing lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/plugin"
	"github.com/xraph/invoicing/recurring"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                   = (*Extension)(nil)
	_ plugin.OnInvoiceDrafted         = (*Extension)(nil)
	_ plugin.OnInvoiceIssued          = (*Extension)(nil)
	_ plugin.OnInvoicePaid            = (*Extension)(nil)
	_ plugin.OnInvoiceCancelled       = (*Extension)(nil)
	_ plugin.OnInvoiceOverdue         = (*Extension)(nil)
	_ plugin.OnRecurringCreated       = (*Extension)(nil)
	_ plugin.OnRecurringStatusChanged = (*Extension)(nil)
	_ plugin.OnCycleCompleted         = (*Extension)(nil)
	_ plugin.OnDuplicateGeneration    = (*Extension)(nil)
	_ plugin.OnDeliveryFailed         = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single entry in the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges invoicing lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceDrafted implements plugin.OnInvoiceDrafted.
func (e *Extension) OnInvoiceDrafted(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceDrafted, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		"tenant_id", inv.TenantID,
		"customer_id", inv.CustomerID.String(),
		"currency", inv.Currency,
	)
}

// OnInvoiceIssued implements plugin.OnInvoiceIssued.
func (e *Extension) OnInvoiceIssued(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceIssued, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		invoiceFields(inv)...,
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		append(invoiceFields(inv), "payment_ref", inv.PaymentRef)...,
	)
}

// OnInvoiceCancelled implements plugin.OnInvoiceCancelled.
func (e *Extension) OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCancelled, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		append(invoiceFields(inv), "cancel_reason", inv.CancelReason)...,
	)
}

// OnInvoiceOverdue implements plugin.OnInvoiceOverdue.
func (e *Extension) OnInvoiceOverdue(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceOverdue, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		append(invoiceFields(inv), "due_date", inv.DueDate.String())...,
	)
}

// ──────────────────────────────────────────────────
// Recurring billing hooks
// ──────────────────────────────────────────────────

// OnRecurringCreated implements plugin.OnRecurringCreated.
func (e *Extension) OnRecurringCreated(ctx context.Context, cfg *recurring.Config) error {
	return e.record(ctx, ActionRecurringCreated, SeverityInfo, OutcomeSuccess,
		ResourceRecurring, cfg.ID.String(), CategoryRecurring, nil,
		"tenant_id", cfg.TenantID,
		"customer_id", cfg.CustomerID.String(),
		"frequency", string(cfg.Frequency),
		"start_date", cfg.StartDate.String(),
	)
}

// OnRecurringStatusChanged implements plugin.OnRecurringStatusChanged.
func (e *Extension) OnRecurringStatusChanged(ctx context.Context, cfg *recurring.Config, from recurring.Status) error {
	action := ActionRecurringResumed
	switch cfg.Status {
	case recurring.StatusPaused:
		action = ActionRecurringPaused
	case recurring.StatusCancelled:
		action = ActionRecurringCancelled
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceRecurring, cfg.ID.String(), CategoryRecurring, nil,
		"from", string(from),
		"to", string(cfg.Status),
		"next_invoice_date", cfg.NextInvoiceDate.String(),
	)
}

// OnCycleCompleted implements plugin.OnCycleCompleted. Runs that issued
// nothing are not recorded.
func (e *Extension) OnCycleCompleted(ctx context.Context, cfg *recurring.Config, issued int, elapsed time.Duration) error {
	if issued == 0 {
		return nil
	}
	return e.record(ctx, ActionCycleCompleted, SeverityInfo, OutcomeSuccess,
		ResourceRecurring, cfg.ID.String(), CategoryRecurring, nil,
		"issued", issued,
		"next_cycle", cfg.NextCycle,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnDuplicateGeneration implements plugin.OnDuplicateGeneration.
func (e *Extension) OnDuplicateGeneration(ctx context.Context, recurringID string, cycle int) error {
	return e.record(ctx, ActionDuplicateSkipped, SeverityWarning, OutcomePartial,
		ResourceRecurring, recurringID, CategoryRecurring, nil,
		"cycle", cycle,
	)
}

// ──────────────────────────────────────────────────
// Delivery hooks
// ──────────────────────────────────────────────────

// OnDeliveryFailed implements plugin.OnDeliveryFailed.
func (e *Extension) OnDeliveryFailed(ctx context.Context, job delivery.Job, err error) error {
	return e.record(ctx, ActionDeliveryFailed, SeverityError, OutcomeFailure,
		ResourceDelivery, job.InvoiceNumber(), CategoryDelivery, err,
		"kind", job.Kind(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

func invoiceFields(inv *invoice.Invoice) []any {
	return []any{
		"tenant_id", inv.TenantID,
		"number", inv.Number,
		"customer_id", inv.CustomerID.String(),
		"total", inv.Total.String(),
	}
}
