package extension

import (
	"time"

	invoicing "github.com/xraph/invoicing"
	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/lease"
	"github.com/xraph/invoicing/plugin"
	"github.com/xraph/invoicing/store"
)

// Option configures the invoicing Forge extension.
type Option func(*Extension)

// WithStore sets the store for the invoicing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes an invoicing.Option through to the underlying engine.
func WithEngineOption(opt invoicing.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an invoicing plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, invoicing.WithPlugin(p))
	}
}

// WithNotifier sets the notifier used for invoice e-mails and reminders. It
// takes precedence over SendGrid settings in the config.
func WithNotifier(n delivery.Notifier) Option {
	return func(e *Extension) { e.notifier = n }
}

// WithCharger sets the charger used for automatic charges. It takes
// precedence over Stripe settings in the config.
func WithCharger(c delivery.Charger) Option {
	return func(e *Extension) { e.charger = c }
}

// WithRenderer sets the renderer that attaches a document to sent invoices.
func WithRenderer(r delivery.Renderer) Option {
	return func(e *Extension) { e.renderer = r }
}

// WithLocker sets the lease used to serialize billing of a configuration. It
// takes precedence over RedisAddr in the config.
func WithLocker(l lease.Locker) Option {
	return func(e *Extension) { e.locker = l }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTickInterval sets how often the billing worker runs.
func WithTickInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.TickInterval = d }
}

// WithTimezone sets the IANA location whose calendar decides "today".
func WithTimezone(name string) Option {
	return func(e *Extension) { e.config.Timezone = name }
}

// WithConcurrency bounds how many configurations are billed in parallel.
func WithConcurrency(n int) Option {
	return func(e *Extension) { e.config.Concurrency = n }
}

// WithInvoicePrefix sets the prefix of invoice numbers.
func WithInvoicePrefix(prefix string) Option {
	return func(e *Extension) { e.config.InvoicePrefix = prefix }
}

// WithOverdueReminders enables reminders for newly overdue invoices.
func WithOverdueReminders() Option {
	return func(e *Extension) { e.config.OverdueReminders = true }
}
