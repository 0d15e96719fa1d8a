package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/invoicing/invoice"
)

// PaidFunc is called after a charge reports OutcomePaid.
type PaidFunc func(ctx context.Context, inv *invoice.Invoice, result ChargeResult) error

// FailureFunc is called when a request is dropped or exhausts its retries.
type FailureFunc func(ctx context.Context, job Job, err error)

// Job is one queued send or charge. Exactly one of Send and Charge is set.
type Job struct {
	Send   *SendRequest
	Charge *ChargeRequest
}

// InvoiceNumber returns the number of the invoice the job refers to.
func (j Job) InvoiceNumber() string {
	switch {
	case j.Send != nil && j.Send.Invoice != nil:
		return j.Send.Invoice.Number
	case j.Charge != nil && j.Charge.Invoice != nil:
		return j.Charge.Invoice.Number
	}
	return ""
}

// Kind names the job for logs and hooks.
func (j Job) Kind() string {
	if j.Charge != nil {
		return "charge"
	}
	if j.Send != nil {
		return "send:" + string(j.Send.Kind)
	}
	return "unknown"
}

// Dispatcher runs send and charge jobs on background workers with
// exponential backoff. Enqueue never blocks: a full queue is reported to the
// caller and to the failure callback.
type Dispatcher struct {
	notifier Notifier
	charger  Charger
	renderer Renderer
	logger   *slog.Logger

	onPaid    PaidFunc
	onFailure FailureFunc

	queue    chan Job
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool

	workers         int
	maxTries        uint
	initialInterval time.Duration
	maxInterval     time.Duration
	attemptTimeout  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithNotifier(n Notifier) Option { return func(d *Dispatcher) { d.notifier = n } }
func WithCharger(c Charger) Option   { return func(d *Dispatcher) { d.charger = c } }
func WithRenderer(r Renderer) Option { return func(d *Dispatcher) { d.renderer = r } }

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithQueueSize sets the buffered queue capacity.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) { d.queue = make(chan Job, n) }
}

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

// WithRetry configures the backoff policy. maxTries counts the first attempt.
func WithRetry(maxTries uint, initial, maxInterval time.Duration) Option {
	return func(d *Dispatcher) {
		d.maxTries = maxTries
		d.initialInterval = initial
		d.maxInterval = maxInterval
	}
}

// WithAttemptTimeout bounds a single send or charge attempt.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.attemptTimeout = timeout }
}

// NewDispatcher creates a stopped Dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:          slog.Default(),
		queue:           make(chan Job, 1024),
		workers:         2,
		maxTries:        5,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     30 * time.Second,
		attemptTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetCallbacks installs the payment and failure callbacks. It must be called
// before Start.
func (d *Dispatcher) SetCallbacks(onPaid PaidFunc, onFailure FailureFunc) {
	d.onPaid = onPaid
	d.onFailure = onFailure
}

// CanSend reports whether a Notifier is configured.
func (d *Dispatcher) CanSend() bool { return d.notifier != nil }

// CanCharge reports whether a Charger is configured.
func (d *Dispatcher) CanCharge() bool { return d.charger != nil }

// Start launches the workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.stopChan = make(chan struct{})
	d.running = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(context.WithoutCancel(ctx))
	}
	d.logger.Info("delivery dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Stop drains queued jobs and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()
	d.wg.Wait()
}

// EnqueueSend queues a send request.
func (d *Dispatcher) EnqueueSend(ctx context.Context, req SendRequest) error {
	if d.notifier == nil {
		return ErrNoNotifier
	}
	return d.enqueue(ctx, Job{Send: &req})
}

// EnqueueCharge queues a charge request.
func (d *Dispatcher) EnqueueCharge(ctx context.Context, req ChargeRequest) error {
	if d.charger == nil {
		return ErrNoCharger
	}
	return d.enqueue(ctx, Job{Charge: &req})
}

func (d *Dispatcher) enqueue(ctx context.Context, job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		d.fail(ctx, job, ErrNotRunning)
		return ErrNotRunning
	}
	select {
	case d.queue <- job:
		return nil
	default:
		d.fail(ctx, job, ErrQueueFull)
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopChan:
			for {
				select {
				case job := <-d.queue:
					d.process(ctx, job)
				default:
					return
				}
			}
		case job := <-d.queue:
			d.process(ctx, job)
		}
	}
}

// Process runs a job synchronously with retries. Workers call it; tests and
// callers without background workers may call it directly.
func (d *Dispatcher) Process(ctx context.Context, job Job) error {
	return d.process(ctx, job)
}

func (d *Dispatcher) process(ctx context.Context, job Job) error {
	var err error
	switch {
	case job.Send != nil:
		err = d.send(ctx, job.Send)
	case job.Charge != nil:
		err = d.charge(ctx, job.Charge)
	default:
		err = errors.New("invoicing: empty delivery job")
	}
	if err != nil {
		d.fail(ctx, job, err)
	}
	return err
}

func (d *Dispatcher) send(ctx context.Context, req *SendRequest) error {
	if d.notifier == nil {
		return ErrNoNotifier
	}
	if d.renderer != nil && req.Document == nil && req.Invoice != nil {
		doc, err := d.renderer.Render(ctx, req.Invoice)
		if err != nil {
			d.logger.Warn("invoice render failed, sending without document",
				"invoice", req.Invoice.Number, "error", err)
		} else {
			req.Document = doc
			if req.DocumentName == "" {
				req.DocumentName = req.Invoice.Number + ".pdf"
			}
		}
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		actx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
		return struct{}{}, d.notifier.Send(actx, *req)
	}, d.retryOptions("send", req.Invoice)...)
	if err != nil {
		return fmt.Errorf("send %s: %w", req.Kind, err)
	}
	return nil
}

func (d *Dispatcher) charge(ctx context.Context, req *ChargeRequest) error {
	if d.charger == nil {
		return ErrNoCharger
	}
	result, err := backoff.Retry(ctx, func() (ChargeResult, error) {
		actx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
		res, err := d.charger.Charge(actx, *req)
		if err != nil {
			return res, err
		}
		switch res.Outcome {
		case OutcomePaid:
			return res, nil
		case OutcomeDeclined:
			return res, backoff.Permanent(fmt.Errorf("%w: %s", ErrDeclined, res.Message))
		default:
			return res, fmt.Errorf("charge error: %s", res.Message)
		}
	}, d.retryOptions("charge", req.Invoice)...)
	if err != nil {
		return fmt.Errorf("charge: %w", err)
	}

	d.logger.Info("invoice charged", "invoice", req.Invoice.Number, "reference", result.Reference)
	if d.onPaid != nil {
		if err := d.onPaid(ctx, req.Invoice, result); err != nil {
			return fmt.Errorf("record payment %s: %w", result.Reference, err)
		}
	}
	return nil
}

func (d *Dispatcher) retryOptions(op string, inv *invoice.Invoice) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialInterval
	b.MaxInterval = d.maxInterval

	number := ""
	if inv != nil {
		number = inv.Number
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("delivery attempt failed, retrying",
				"op", op, "invoice", number, "retry_in", next, "error", err)
		}),
	}
}

func (d *Dispatcher) fail(ctx context.Context, job Job, err error) {
	d.logger.Error("delivery failed", "job", job.Kind(), "invoice", job.InvoiceNumber(), "error", err)
	if d.onFailure != nil {
		d.onFailure(ctx, job, err)
	}
}
