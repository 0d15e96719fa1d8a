// Package plugin lets extensions observe invoicing events. A plugin
// implements Plugin plus any of the hook interfaces below; the Registry
// discovers the hooks at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *invoicing.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

type OnInvoiceDrafted interface {
	Plugin
	OnInvoiceDrafted(ctx context.Context, inv *invoice.Invoice) error
}

type OnInvoiceIssued interface {
	Plugin
	OnInvoiceIssued(ctx context.Context, inv *invoice.Invoice) error
}

type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

type OnInvoiceCancelled interface {
	Plugin
	OnInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) error
}

type OnInvoiceOverdue interface {
	Plugin
	OnInvoiceOverdue(ctx context.Context, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Recurring billing hooks
// ──────────────────────────────────────────────────

type OnRecurringCreated interface {
	Plugin
	OnRecurringCreated(ctx context.Context, cfg *recurring.Config) error
}

// OnRecurringStatusChanged is called after pause, resume or cancel.
type OnRecurringStatusChanged interface {
	Plugin
	OnRecurringStatusChanged(ctx context.Context, cfg *recurring.Config, from recurring.Status) error
}

// OnCycleCompleted is called after a billing run finished one configuration.
type OnCycleCompleted interface {
	Plugin
	OnCycleCompleted(ctx context.Context, cfg *recurring.Config, issued int, elapsed time.Duration) error
}

// OnDuplicateGeneration is called when a boundary turned out to be billed
// already, by an earlier run or a concurrent worker.
type OnDuplicateGeneration interface {
	Plugin
	OnDuplicateGeneration(ctx context.Context, recurringID string, cycle int) error
}

// ──────────────────────────────────────────────────
// Delivery hooks
// ──────────────────────────────────────────────────

// OnDeliveryFailed is called when a send or charge is given up on.
type OnDeliveryFailed interface {
	Plugin
	OnDeliveryFailed(ctx context.Context, job delivery.Job, err error) error
}
