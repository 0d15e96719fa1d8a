// Package observability provides a metrics extension for invoicing that
// records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/plugin"
	"github.com/xraph/invoicing/recurring"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                   = (*MetricsExtension)(nil)
	_ plugin.OnInit                   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDrafted         = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceIssued          = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid            = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCancelled       = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceOverdue         = (*MetricsExtension)(nil)
	_ plugin.OnRecurringCreated       = (*MetricsExtension)(nil)
	_ plugin.OnRecurringStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnCycleCompleted         = (*MetricsExtension)(nil)
	_ plugin.OnDuplicateGeneration    = (*MetricsExtension)(nil)
	_ plugin.OnDeliveryFailed         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an invoicing plugin to track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceDrafted   Counter
	InvoiceIssued    Counter
	InvoicePaid      Counter
	InvoiceCancelled Counter
	InvoiceOverdue   Counter
	InvoiceTotal     Histogram

	// Recurring metrics
	RecurringCreated   Counter
	RecurringPaused    Counter
	RecurringResumed   Counter
	RecurringCancelled Counter
	CycleInvoices      Counter
	CycleLatency       Histogram
	DuplicatesSkipped  Counter

	// Delivery metrics
	SendFailures   Counter
	ChargeFailures Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Invoice metrics
		InvoiceDrafted:   factory.Counter("invoicing.invoice.drafted"),
		InvoiceIssued:    factory.Counter("invoicing.invoice.issued"),
		InvoicePaid:      factory.Counter("invoicing.invoice.paid"),
		InvoiceCancelled: factory.Counter("invoicing.invoice.cancelled"),
		InvoiceOverdue:   factory.Counter("invoicing.invoice.overdue"),
		InvoiceTotal:     factory.Histogram("invoicing.invoice.total_amount"),

		// Recurring metrics
		RecurringCreated:   factory.Counter("invoicing.recurring.created"),
		RecurringPaused:    factory.Counter("invoicing.recurring.paused"),
		RecurringResumed:   factory.Counter("invoicing.recurring.resumed"),
		RecurringCancelled: factory.Counter("invoicing.recurring.cancelled"),
		CycleInvoices:      factory.Counter("invoicing.cycle.invoices"),
		CycleLatency:       factory.Histogram("invoicing.cycle.latency_ms"),
		DuplicatesSkipped:  factory.Counter("invoicing.cycle.duplicates"),

		// Delivery metrics
		SendFailures:   factory.Counter("invoicing.delivery.send.failures"),
		ChargeFailures: factory.Counter("invoicing.delivery.charge.failures"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceDrafted implements plugin.OnInvoiceDrafted.
func (m *MetricsExtension) OnInvoiceDrafted(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceDrafted.Inc()
	return nil
}

// OnInvoiceIssued implements plugin.OnInvoiceIssued.
func (m *MetricsExtension) OnInvoiceIssued(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceIssued.Inc()
	m.InvoiceTotal.Observe(float64(inv.Total.Amount))
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceCancelled implements plugin.OnInvoiceCancelled.
func (m *MetricsExtension) OnInvoiceCancelled(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceCancelled.Inc()
	return nil
}

// OnInvoiceOverdue implements plugin.OnInvoiceOverdue.
func (m *MetricsExtension) OnInvoiceOverdue(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceOverdue.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Recurring billing hooks
// ──────────────────────────────────────────────────

// OnRecurringCreated implements plugin.OnRecurringCreated.
func (m *MetricsExtension) OnRecurringCreated(_ context.Context, _ *recurring.Config) error {
	m.RecurringCreated.Inc()
	return nil
}

// OnRecurringStatusChanged implements plugin.OnRecurringStatusChanged.
func (m *MetricsExtension) OnRecurringStatusChanged(_ context.Context, cfg *recurring.Config, _ recurring.Status) error {
	switch cfg.Status {
	case recurring.StatusPaused:
		m.RecurringPaused.Inc()
	case recurring.StatusActive:
		m.RecurringResumed.Inc()
	case recurring.StatusCancelled:
		m.RecurringCancelled.Inc()
	}
	return nil
}

// OnCycleCompleted implements plugin.OnCycleCompleted.
func (m *MetricsExtension) OnCycleCompleted(_ context.Context, _ *recurring.Config, issued int, elapsed time.Duration) error {
	m.CycleInvoices.Add(float64(issued))
	m.CycleLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnDuplicateGeneration implements plugin.OnDuplicateGeneration.
func (m *MetricsExtension) OnDuplicateGeneration(_ context.Context, _ string, _ int) error {
	m.DuplicatesSkipped.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Delivery hooks
// ──────────────────────────────────────────────────

// OnDeliveryFailed implements plugin.OnDeliveryFailed.
func (m *MetricsExtension) OnDeliveryFailed(_ context.Context, job delivery.Job, _ error) error {
	if job.Charge != nil {
		m.ChargeFailures.Inc()
	} else {
		m.SendFailures.Inc()
	}
	return nil
}
