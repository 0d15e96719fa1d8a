package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages registered plugins. Hook implementations are cached per
// interface at registration so dispatch does no type assertions.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                   []OnInit
	onShutdown               []OnShutdown
	onInvoiceDrafted         []OnInvoiceDrafted
	onInvoiceIssued          []OnInvoiceIssued
	onInvoicePaid            []OnInvoicePaid
	onInvoiceCancelled       []OnInvoiceCancelled
	onInvoiceOverdue         []OnInvoiceOverdue
	onRecurringCreated       []OnRecurringCreated
	onRecurringStatusChanged []OnRecurringStatusChanged
	onCycleCompleted         []OnCycleCompleted
	onDuplicateGeneration    []OnDuplicateGeneration
	onDeliveryFailed         []OnDeliveryFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default(), timeout: DefaultTimeout}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}
	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(ok bool, name string) {
		if ok {
			hooks = append(hooks, name)
		}
	}
	cache(add(&r.onInit, p), "OnInit")
	cache(add(&r.onShutdown, p), "OnShutdown")
	cache(add(&r.onInvoiceDrafted, p), "OnInvoiceDrafted")
	cache(add(&r.onInvoiceIssued, p), "OnInvoiceIssued")
	cache(add(&r.onInvoicePaid, p), "OnInvoicePaid")
	cache(add(&r.onInvoiceCancelled, p), "OnInvoiceCancelled")
	cache(add(&r.onInvoiceOverdue, p), "OnInvoiceOverdue")
	cache(add(&r.onRecurringCreated, p), "OnRecurringCreated")
	cache(add(&r.onRecurringStatusChanged, p), "OnRecurringStatusChanged")
	cache(add(&r.onCycleCompleted, p), "OnCycleCompleted")
	cache(add(&r.onDuplicateGeneration, p), "OnDuplicateGeneration")
	cache(add(&r.onDeliveryFailed, p), "OnDeliveryFailed")

	r.logger.Info("plugin registered", "name", p.Name(), "hooks", hooks)
	return nil
}

func add[T Plugin](list *[]T, p Plugin) bool {
	if v, ok := p.(T); ok {
		*list = append(*list, v)
		return true
	}
	return false
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(r, ctx, "OnInit", r.onInit, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitInvoiceDrafted(ctx context.Context, inv *invoice.Invoice) {
	emit(r, ctx, "OnInvoiceDrafted", r.onInvoiceDrafted, func(p OnInvoiceDrafted) error {
		return p.OnInvoiceDrafted(ctx, inv)
	})
}

func (r *Registry) EmitInvoiceIssued(ctx context.Context, inv *invoice.Invoice) {
	emit(r, ctx, "OnInvoiceIssued", r.onInvoiceIssued, func(p OnInvoiceIssued) error {
		return p.OnInvoiceIssued(ctx, inv)
	})
}

func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	emit(r, ctx, "OnInvoicePaid", r.onInvoicePaid, func(p OnInvoicePaid) error {
		return p.OnInvoicePaid(ctx, inv)
	})
}

func (r *Registry) EmitInvoiceCancelled(ctx context.Context, inv *invoice.Invoice) {
	emit(r, ctx, "OnInvoiceCancelled", r.onInvoiceCancelled, func(p OnInvoiceCancelled) error {
		return p.OnInvoiceCancelled(ctx, inv)
	})
}

func (r *Registry) EmitInvoiceOverdue(ctx context.Context, inv *invoice.Invoice) {
	emit(r, ctx, "OnInvoiceOverdue", r.onInvoiceOverdue, func(p OnInvoiceOverdue) error {
		return p.OnInvoiceOverdue(ctx, inv)
	})
}

func (r *Registry) EmitRecurringCreated(ctx context.Context, cfg *recurring.Config) {
	emit(r, ctx, "OnRecurringCreated", r.onRecurringCreated, func(p OnRecurringCreated) error {
		return p.OnRecurringCreated(ctx, cfg)
	})
}

func (r *Registry) EmitRecurringStatusChanged(ctx context.Context, cfg *recurring.Config, from recurring.Status) {
	emit(r, ctx, "OnRecurringStatusChanged", r.onRecurringStatusChanged, func(p OnRecurringStatusChanged) error {
		return p.OnRecurringStatusChanged(ctx, cfg, from)
	})
}

func (r *Registry) EmitCycleCompleted(ctx context.Context, cfg *recurring.Config, issued int, elapsed time.Duration) {
	emit(r, ctx, "OnCycleCompleted", r.onCycleCompleted, func(p OnCycleCompleted) error {
		return p.OnCycleCompleted(ctx, cfg, issued, elapsed)
	})
}

func (r *Registry) EmitDuplicateGeneration(ctx context.Context, recurringID string, cycle int) {
	emit(r, ctx, "OnDuplicateGeneration", r.onDuplicateGeneration, func(p OnDuplicateGeneration) error {
		return p.OnDuplicateGeneration(ctx, recurringID, cycle)
	})
}

func (r *Registry) EmitDeliveryFailed(ctx context.Context, job delivery.Job, cause error) {
	emit(r, ctx, "OnDeliveryFailed", r.onDeliveryFailed, func(p OnDeliveryFailed) error {
		return p.OnDeliveryFailed(ctx, job, cause)
	})
}

// emit calls fn for every plugin implementing a hook. Failures and
// timeouts are logged and never propagate to the billing pipeline.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, list []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list
	timeout := r.timeout
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := callWithTimeout(ctx, p.Name(), timeout, func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"plugin", p.Name(),
				"hook", hook,
				"error", err,
			)
		}
	}
}

func callWithTimeout(ctx context.Context, pluginName string, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
