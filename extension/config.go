package extension

import "time"

// Config holds the invoicing extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.invoicing" or "invoicing" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start. The engine is not
	// started either, so no billing worker runs.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// TickInterval is how often due recurring configurations are billed and
	// the overdue sweep runs (default: 1h). Negative disables the worker.
	TickInterval time.Duration `json:"tick_interval" mapstructure:"tick_interval" yaml:"tick_interval"`

	// Timezone names the IANA location whose calendar decides "today"
	// (default: "UTC").
	Timezone string `json:"timezone" mapstructure:"timezone" yaml:"timezone"`

	// Concurrency bounds how many configurations are billed in parallel
	// (default: 8).
	Concurrency int `json:"concurrency" mapstructure:"concurrency" yaml:"concurrency"`

	// MaxCatchUp caps the boundaries billed for one configuration per run
	// (default: 24).
	MaxCatchUp int `json:"max_catch_up" mapstructure:"max_catch_up" yaml:"max_catch_up"`

	// LeaseTTL is how long a worker owns a configuration while billing it
	// (default: 2m).
	LeaseTTL time.Duration `json:"lease_ttl" mapstructure:"lease_ttl" yaml:"lease_ttl"`

	// RedisAddr enables the Redis lease so several processes can share the
	// billing work. Empty keeps the in-process lease.
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db" yaml:"redis_db"`

	// InvoicePrefix is prepended to invoice numbers (default: "INV").
	InvoicePrefix string `json:"invoice_prefix" mapstructure:"invoice_prefix" yaml:"invoice_prefix"`

	// OverdueReminders sends a reminder when an invoice becomes overdue.
	OverdueReminders bool `json:"overdue_reminders" mapstructure:"overdue_reminders" yaml:"overdue_reminders"`

	// QueueSize is the capacity of the delivery queue (default: 1024).
	QueueSize int `json:"queue_size" mapstructure:"queue_size" yaml:"queue_size"`

	// Workers is the number of delivery workers (default: 2).
	Workers int `json:"workers" mapstructure:"workers" yaml:"workers"`

	// MaxRetries counts the attempts made for one send or charge (default: 5).
	MaxRetries uint `json:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`

	// SendGridAPIKey enables e-mail delivery through SendGrid.
	SendGridAPIKey string `json:"-" mapstructure:"sendgrid_api_key" yaml:"sendgrid_api_key"`
	FromName       string `json:"from_name" mapstructure:"from_name" yaml:"from_name"`
	FromAddress    string `json:"from_address" mapstructure:"from_address" yaml:"from_address"`

	// StripeSecretKey enables automatic charges through Stripe.
	StripeSecretKey string `json:"-" mapstructure:"stripe_secret_key" yaml:"stripe_secret_key"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:  time.Hour,
		Timezone:      "UTC",
		Concurrency:   8,
		MaxCatchUp:    24,
		LeaseTTL:      2 * time.Minute,
		InvoicePrefix: "INV",
		QueueSize:     1024,
		Workers:       2,
		MaxRetries:    5,
	}
}
