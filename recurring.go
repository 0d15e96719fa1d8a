package invoicing

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/types"
)

// CreateRecurring validates and stores a recurring configuration. Its first
// boundary is the start date.
func (e *Engine) CreateRecurring(ctx context.Context, cfg *recurring.Config) error {
	if cfg.ID.IsNil() {
		cfg.ID = id.NewRecurringID()
	}
	cfg.Currency = types.NormalizeCurrency(cfg.Currency)
	if cfg.Currency == "" {
		cfg.Currency = cfg.Amount.Currency
	}
	if cfg.Status == "" {
		cfg.Status = recurring.StatusActive
	}
	cfg.NextCycle = 0
	cfg.NextInvoiceDate = cfg.StartDate
	cfg.Version = 0

	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := e.store.GetCustomer(ctx, cfg.CustomerID); err != nil {
		return err
	}

	cfg.Entity = types.NewEntity()
	if err := e.store.CreateRecurring(ctx, cfg); err != nil {
		return err
	}

	e.logger.Info("recurring configuration created",
		"recurring_id", cfg.ID.String(),
		"frequency", cfg.Frequency,
		"start_date", cfg.StartDate,
	)
	e.plugins.EmitRecurringCreated(ctx, cfg)
	return nil
}

// PauseRecurring stops future cycles of a configuration.
func (e *Engine) PauseRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Config, error) {
	return e.changeRecurring(ctx, recID, (*recurring.Config).Pause)
}

// ResumeRecurring reactivates a paused configuration. Boundaries that passed
// before asOf while it was paused are not billed.
func (e *Engine) ResumeRecurring(ctx context.Context, recID id.RecurringID, asOf civil.Date) (*recurring.Config, error) {
	return e.changeRecurring(ctx, recID, func(c *recurring.Config) error {
		return c.Resume(asOf)
	})
}

// CancelRecurring ends a configuration. Invoices it already issued are kept.
func (e *Engine) CancelRecurring(ctx context.Context, recID id.RecurringID) (*recurring.Config, error) {
	return e.changeRecurring(ctx, recID, (*recurring.Config).Cancel)
}

func (e *Engine) changeRecurring(ctx context.Context, recID id.RecurringID, fn func(*recurring.Config) error) (*recurring.Config, error) {
	cfg, err := e.store.GetRecurring(ctx, recID)
	if err != nil {
		return nil, err
	}
	from := cfg.Status
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := e.store.UpdateRecurring(ctx, cfg); err != nil {
		return nil, err
	}

	e.logger.Info("recurring status changed",
		"recurring_id", cfg.ID.String(),
		"from", from,
		"to", cfg.Status,
	)
	e.plugins.EmitRecurringStatusChanged(ctx, cfg, from)
	return cfg, nil
}
