package invoicing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/singleflight"

	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/lease"
	"github.com/xraph/invoicing/plugin"
	"github.com/xraph/invoicing/store"
)

// DefaultInvoicePrefix is prepended to every invoice sequence number.
const DefaultInvoicePrefix = "INV"

// Engine issues invoices, runs recurring billing and tracks overdue
// invoices on top of a Store.
type Engine struct {
	store      store.Store
	plugins    *plugin.Registry
	logger     *slog.Logger
	dispatcher *delivery.Dispatcher
	locker     lease.Locker
	flight     singleflight.Group

	// Background worker
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	clock            func() time.Time
	location         *time.Location
	tickInterval     time.Duration
	concurrency      int
	maxCatchUp       int
	leaseTTL         time.Duration
	invoicePrefix    string
	overdueReminders bool
}

// New creates a new Engine.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		locker:        lease.NewMemory(),
		stopChan:      make(chan struct{}),
		clock:         time.Now,
		location:      time.UTC,
		concurrency:   8,
		maxCatchUp:    24,
		leaseTTL:      2 * time.Minute,
		invoicePrefix: DefaultInvoicePrefix,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.dispatcher == nil {
		e.dispatcher = delivery.NewDispatcher(delivery.WithLogger(e.logger))
	}
	e.dispatcher.SetCallbacks(e.chargePaid, e.deliveryFailed)

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock sets the time source used by the background worker and for
// payment timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLocation sets the time zone that decides which calendar day "today" is
// for the background worker.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

// WithTickInterval enables the background worker. Zero disables it.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.tickInterval = d }
}

// WithConcurrency bounds how many configurations a billing run works on at
// once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxCatchUp caps the boundaries billed per configuration in one run.
// Boundaries past the cap stay due for the next run. Zero means no cap.
func WithMaxCatchUp(n int) Option {
	return func(e *Engine) { e.maxCatchUp = n }
}

// WithLeaseTTL sets how long a configuration lease is held at most.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.leaseTTL = ttl }
}

// WithLocker replaces the in-process locker, e.g. with a Redis locker when
// several processes bill from the same store.
func WithLocker(l lease.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithDispatcher sets the dispatcher that sends and charges invoices.
func WithDispatcher(d *delivery.Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithInvoicePrefix sets the invoice number prefix.
func WithInvoicePrefix(prefix string) Option {
	return func(e *Engine) { e.invoicePrefix = prefix }
}

// WithOverdueReminders makes the overdue sweep send a reminder for every
// invoice it marks overdue.
func WithOverdueReminders(enabled bool) Option {
	return func(e *Engine) { e.overdueReminders = enabled }
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Dispatcher returns the delivery dispatcher.
func (e *Engine) Dispatcher() *delivery.Dispatcher { return e.dispatcher }

// Today returns the current calendar date in the configured location.
func (e *Engine) Today() civil.Date {
	return civil.DateOf(e.clock().In(e.location))
}

// Start migrates the store, starts the dispatcher and, when a tick interval
// is set, the billing worker.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)
	e.dispatcher.Start(ctx)

	if e.tickInterval > 0 {
		e.wg.Add(1)
		go e.billingWorker(context.WithoutCancel(ctx))
	}

	e.logger.Info("invoicing started",
		"tick_interval", e.tickInterval,
		"concurrency", e.concurrency,
		"max_catch_up", e.maxCatchUp,
		"lease_ttl", e.leaseTTL,
	)

	return nil
}

// Stop shuts down the worker and the dispatcher and closes the store.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()
	e.dispatcher.Stop()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// billingWorker runs recurring billing and the overdue sweep on every tick.
func (e *Engine) billingWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	today := e.Today()

	report, err := e.RunDue(ctx, today)
	if err != nil {
		e.logger.Error("recurring billing failed", "as_of", today, "error", err)
	} else if report.Errors.HasErrors() {
		e.logger.Error("recurring billing finished with errors",
			"as_of", today, "errors", len(report.Errors.Errors), "error", report.Errors)
	}

	if _, err := e.ReclassifyOverdue(ctx, "", today); err != nil {
		e.logger.Error("overdue sweep failed", "today", today, "error", err)
	}
}
