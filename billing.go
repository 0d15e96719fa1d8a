package invoicing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/invoicing/customer"
	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/lease"
	"github.com/xraph/invoicing/recurring"
)

// duePageSize is the page size used to collect due configurations.
const duePageSize = 500

// MetaAutoDelivery is the invoice metadata key that tracks the automatic send
// and charge of a recurring invoice. It is AutoDeliveryPending from issue
// until both requests are queued. An adopted invoice that is still pending is
// delivered by the run that adopts it.
const (
	MetaAutoDelivery    = "invoicing.auto_delivery"
	AutoDeliveryPending = "pending"
	AutoDeliveryQueued  = "queued"
)

// CycleReport summarizes one billing run.
type CycleReport struct {
	AsOf civil.Date

	// Generated holds the invoices issued by this run.
	Generated []*invoice.Invoice
	// Adopted counts boundaries that already had an invoice, left behind by
	// an earlier run that stopped before advancing the schedule.
	Adopted int
	// Skipped counts configurations that were not active or were leased by
	// another worker.
	Skipped int
	// Deferred counts configurations that hit the catch-up cap and still
	// have boundaries due.
	Deferred int
	// Conflicts counts configurations whose schedule was changed
	// concurrently; they are retried on the next run.
	Conflicts int
	Errors    MultiError
}

// configResult is the outcome of billing one configuration.
type configResult struct {
	generated []*invoice.Invoice
	adopted   int
	skipped   bool
	deferred  bool
	conflict  bool
}

func (r *CycleReport) merge(res *configResult, err error) {
	if res != nil {
		r.Generated = append(r.Generated, res.generated...)
		r.Adopted += res.adopted
		if res.skipped {
			r.Skipped++
		}
		if res.deferred {
			r.Deferred++
		}
		if res.conflict {
			r.Conflicts++
		}
	}
	r.Errors.Add(err)
}

// RunDue bills every active configuration with a boundary on or before asOf.
func (e *Engine) RunDue(ctx context.Context, asOf civil.Date) (*CycleReport, error) {
	var configs []*recurring.Config
	for offset := 0; ; offset += duePageSize {
		page, err := e.store.ListRecurring(ctx, recurring.ListOpts{
			Status:    recurring.StatusActive,
			DueOnOrBy: asOf,
			Limit:     duePageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list due configurations: %w", err)
		}
		configs = append(configs, page...)
		if len(page) < duePageSize {
			break
		}
	}

	return e.RunCycle(ctx, configs, asOf)
}

// RunCycle issues the invoices due on or before asOf for each configuration.
//
// The configurations passed in only identify what to bill: every one is
// re-read from the store under an exclusive lease, so running the same
// stale list twice, or from two workers at once, issues each boundary once.
// Failures are collected per configuration in the report; the returned error
// is only set when ctx ends the run early.
func (e *Engine) RunCycle(ctx context.Context, configs []*recurring.Config, asOf civil.Date) (*CycleReport, error) {
	report := &CycleReport{AsOf: asOf}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		recID := cfg.ID
		g.Go(func() error {
			res, err := e.billShared(ctx, recID, asOf)
			mu.Lock()
			report.merge(res, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers report through the CycleReport

	e.logger.Info("billing run finished",
		"as_of", asOf,
		"configs", len(configs),
		"generated", len(report.Generated),
		"adopted", report.Adopted,
		"skipped", report.Skipped,
		"deferred", report.Deferred,
		"conflicts", report.Conflicts,
		"errors", len(report.Errors.Errors),
	)

	return report, ctx.Err()
}

// billShared collapses concurrent runs for the same configuration and date
// into one; every caller receives the same result.
func (e *Engine) billShared(ctx context.Context, recID id.RecurringID, asOf civil.Date) (*configResult, error) {
	key := recID.String() + "@" + asOf.String()
	v, err, shared := e.flight.Do(key, func() (any, error) {
		return e.billConfig(ctx, recID, asOf)
	})
	if shared {
		e.logger.Debug("shared in-flight billing", "recurring_id", recID.String(), "as_of", asOf)
	}
	res, _ := v.(*configResult)
	return res, err
}

func (e *Engine) billConfig(ctx context.Context, recID id.RecurringID, asOf civil.Date) (*configResult, error) {
	start := time.Now()
	res := &configResult{}

	l, err := e.locker.Acquire(ctx, "invoicing:recurring:"+recID.String(), e.leaseTTL)
	if errors.Is(err, lease.ErrHeld) {
		e.logger.Debug("configuration leased by another worker", "recurring_id", recID.String())
		res.skipped = true
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recurring %s: acquire lease: %w", recID, err)
	}
	defer func() {
		if rerr := l.Release(context.WithoutCancel(ctx)); rerr != nil {
			e.logger.Warn("lease release failed", "recurring_id", recID.String(), "error", rerr)
		}
	}()

	cfg, err := e.store.GetRecurring(ctx, recID)
	if err != nil {
		return nil, fmt.Errorf("recurring %s: %w", recID, err)
	}
	if cfg.Status != recurring.StatusActive {
		res.skipped = true
		return res, nil
	}

	bounds, err := recurring.DueBoundaries(cfg, asOf, e.maxCatchUp)
	if err != nil {
		return nil, fmt.Errorf("recurring %s: %w", recID, err)
	}
	if len(bounds) == 0 {
		return res, nil
	}

	cust, err := e.store.GetCustomer(ctx, cfg.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("recurring %s: %w", recID, err)
	}

	for _, b := range bounds {
		inv, created, err := e.generate(ctx, cfg, cust, b)
		if err != nil {
			return res, fmt.Errorf("recurring %s cycle %d: %w", recID, b.Cycle, err)
		}
		if created {
			e.deliver(ctx, cfg, cust, inv)
		}

		if err := cfg.Advance(b, inv.ID); err != nil {
			return res, fmt.Errorf("recurring %s cycle %d: %w", recID, b.Cycle, err)
		}
		if err := e.store.UpdateRecurring(ctx, cfg); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				e.logger.Warn("recurring configuration changed during billing",
					"recurring_id", recID.String(), "cycle", b.Cycle)
				res.conflict = true
				if created {
					res.generated = append(res.generated, inv)
				}
				return res, nil
			}
			return res, fmt.Errorf("recurring %s cycle %d: advance: %w", recID, b.Cycle, err)
		}

		if !created {
			res.adopted++
			continue
		}
		res.generated = append(res.generated, inv)
	}

	res.deferred = cfg.IsDue(asOf)
	if res.deferred {
		e.logger.Info("catch-up cap reached, remaining boundaries deferred",
			"recurring_id", recID.String(), "next_invoice_date", cfg.NextInvoiceDate)
	}

	e.plugins.EmitCycleCompleted(ctx, cfg, len(res.generated), time.Since(start))
	return res, nil
}

// generate returns the invoice for boundary b, issuing it unless one exists.
// created is false when an existing invoice was adopted.
func (e *Engine) generate(ctx context.Context, cfg *recurring.Config, cust *customer.Customer, b recurring.Boundary) (*invoice.Invoice, bool, error) {
	existing, err := e.store.GetInvoiceByCycle(ctx, cfg.ID, b.Cycle)
	if err == nil {
		e.plugins.EmitDuplicateGeneration(ctx, cfg.ID.String(), b.Cycle)
		if awaitingDelivery(existing) {
			e.deliver(ctx, cfg, cust, existing)
		}
		return existing, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	inv := invoice.NewDraft(cfg.TenantID, cfg.CustomerID, cfg.Currency, cfg.PaymentTerms)
	inv.RecurringID = cfg.ID
	inv.CycleIndex = b.Cycle
	inv.Notes = cfg.Notes
	inv.LineItems = cfg.BuildItems()
	if cfg.AutoSend || cfg.AutoCharge {
		inv.Metadata = map[string]string{MetaAutoDelivery: AutoDeliveryPending}
	}
	if err := inv.Issue(b.Date, cust.Snapshot()); err != nil {
		return nil, false, err
	}

	seq, err := e.store.NextInvoiceNumber(ctx, cfg.TenantID)
	if err != nil {
		return nil, false, fmt.Errorf("allocate invoice number: %w", err)
	}
	inv.AssignNumber(e.invoicePrefix, seq)

	if err := e.store.CreateInvoice(ctx, inv); err != nil {
		if !errors.Is(err, ErrDuplicateGeneration) {
			return nil, false, err
		}
		// Lost the race to another writer; use its invoice.
		e.plugins.EmitDuplicateGeneration(ctx, cfg.ID.String(), b.Cycle)
		existing, gerr := e.store.GetInvoiceByCycle(ctx, cfg.ID, b.Cycle)
		if gerr != nil {
			return nil, false, gerr
		}
		return existing, false, nil
	}

	e.logger.Info("recurring invoice issued",
		"recurring_id", cfg.ID.String(),
		"cycle", b.Cycle,
		"invoice_id", inv.ID.String(),
		"number", inv.Number,
		"issue_date", inv.IssueDate,
		"total", inv.Total.String(),
	)
	e.plugins.EmitInvoiceIssued(ctx, inv)
	return inv, true, nil
}

// deliver queues the automatic send and charge of a new invoice and marks
// it queued. Failing to queue never undoes the issue; the invoice stays
// pending and the next run that adopts it tries again.
func (e *Engine) deliver(ctx context.Context, cfg *recurring.Config, cust *customer.Customer, inv *invoice.Invoice) {
	queued := true
	if cfg.AutoSend {
		if err := e.dispatcher.EnqueueSend(ctx, sendRequest(inv, cust, delivery.KindInvoice, 0)); err != nil {
			e.logger.Warn("auto-send not queued", "invoice_id", inv.ID.String(), "error", err)
			queued = false
		}
	}
	if cfg.AutoCharge {
		if err := e.dispatcher.EnqueueCharge(ctx, chargeRequest(inv, cust)); err != nil {
			e.logger.Warn("auto-charge not queued", "invoice_id", inv.ID.String(), "error", err)
			queued = false
		}
	}
	if !queued || inv.Metadata[MetaAutoDelivery] != AutoDeliveryPending {
		return
	}

	updated, err := e.mutateInvoice(ctx, inv.ID, func(cur *invoice.Invoice) error {
		if cur.Metadata == nil {
			cur.Metadata = make(map[string]string, 1)
		}
		cur.Metadata[MetaAutoDelivery] = AutoDeliveryQueued
		return nil
	})
	if err != nil {
		e.logger.Warn("auto-delivery not marked queued", "invoice_id", inv.ID.String(), "error", err)
		return
	}
	inv.Metadata = updated.Metadata
	inv.Version = updated.Version
}

// awaitingDelivery reports whether an open invoice was issued with automatic
// delivery that was never queued.
func awaitingDelivery(inv *invoice.Invoice) bool {
	return inv.Status.IsOpen() && inv.Metadata[MetaAutoDelivery] == AutoDeliveryPending
}
