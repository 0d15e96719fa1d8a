// Package extension provides the Forge extension adapter for invoicing.
//
// It implements the forge.Extension interface to integrate the invoicing
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.invoicing" or
// "invoicing" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	invoicing "github.com/xraph/invoicing"
	"github.com/xraph/invoicing/delivery"
	"github.com/xraph/invoicing/delivery/sendgrid"
	"github.com/xraph/invoicing/delivery/stripe"
	"github.com/xraph/invoicing/lease"
	redislease "github.com/xraph/invoicing/lease/redis"
	"github.com/xraph/invoicing/store"
	"github.com/xraph/invoicing/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "invoicing"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Invoice computation and recurring billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// connectTimeout bounds connecting to external services during Register.
const connectTimeout = 5 * time.Second

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the invoicing engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *invoicing.Engine
	store      store.Store
	engineOpts []invoicing.Option

	notifier    delivery.Notifier
	charger     delivery.Charger
	renderer    delivery.Renderer
	locker      lease.Locker
	redisLocker *redislease.Locker
}

// New creates a new invoicing Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying invoicing engine.
// This is nil until Register is called.
func (e *Extension) Engine() *invoicing.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the invoicing engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	e.engine = invoicing.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*invoicing.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("invoicing: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	defer e.MarkStopped()

	var errs []error
	if e.engine != nil && !e.config.DisableMigrate {
		errs = append(errs, e.engine.Stop())
	}
	if e.redisLocker != nil {
		errs = append(errs, e.redisLocker.Close())
	}
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("invoicing: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs invoicing.Option values from the resolved
// config. Pass-through engine options are applied last and win.
func (e *Extension) buildEngineOpts() ([]invoicing.Option, error) {
	loc, err := time.LoadLocation(e.config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invoicing: timezone %q: %w", e.config.Timezone, err)
	}

	tick := e.config.TickInterval
	if tick < 0 {
		tick = 0
	}

	opts := make([]invoicing.Option, 0, len(e.engineOpts)+10)
	opts = append(opts,
		invoicing.WithLogger(engineLogger()),
		invoicing.WithLocation(loc),
		invoicing.WithTickInterval(tick),
		invoicing.WithConcurrency(e.config.Concurrency),
		invoicing.WithMaxCatchUp(e.config.MaxCatchUp),
		invoicing.WithLeaseTTL(e.config.LeaseTTL),
		invoicing.WithInvoicePrefix(e.config.InvoicePrefix),
		invoicing.WithOverdueReminders(e.config.OverdueReminders),
	)

	locker, err := e.buildLocker()
	if err != nil {
		return nil, err
	}
	if locker != nil {
		opts = append(opts, invoicing.WithLocker(locker))
	}

	dispatcher, err := e.buildDispatcher()
	if err != nil {
		return nil, err
	}
	opts = append(opts, invoicing.WithDispatcher(dispatcher))

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

func (e *Extension) buildLocker() (lease.Locker, error) {
	if e.locker != nil {
		return e.locker, nil
	}
	if e.config.RedisAddr == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	l, err := redislease.Connect(ctx, e.config.RedisAddr, e.config.RedisPassword, e.config.RedisDB)
	if err != nil {
		return nil, err
	}
	e.redisLocker = l
	return l, nil
}

func (e *Extension) buildDispatcher() (*delivery.Dispatcher, error) {
	logger := engineLogger()
	opts := []delivery.Option{
		delivery.WithLogger(logger),
		delivery.WithQueueSize(e.config.QueueSize),
		delivery.WithWorkers(e.config.Workers),
		delivery.WithRetry(e.config.MaxRetries, 500*time.Millisecond, 30*time.Second),
	}

	switch {
	case e.notifier != nil:
		opts = append(opts, delivery.WithNotifier(e.notifier))
	case e.config.SendGridAPIKey != "":
		n, err := sendgrid.New(e.config.SendGridAPIKey, e.config.FromName, e.config.FromAddress,
			sendgrid.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, delivery.WithNotifier(n))
	}

	switch {
	case e.charger != nil:
		opts = append(opts, delivery.WithCharger(e.charger))
	case e.config.StripeSecretKey != "":
		opts = append(opts, delivery.WithCharger(stripe.New(e.config.StripeSecretKey, stripe.WithLogger(logger))))
	}

	if e.renderer != nil {
		opts = append(opts, delivery.WithRenderer(e.renderer))
	}

	return delivery.NewDispatcher(opts...), nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("invoicing: configuration is required but not found in config files; " +
				"ensure 'extensions.invoicing' or 'invoicing' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("invoicing: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("tick_interval", e.config.TickInterval),
		forge.F("timezone", e.config.Timezone),
		forge.F("concurrency", e.config.Concurrency),
		forge.F("max_catch_up", e.config.MaxCatchUp),
		forge.F("redis_lease", e.config.RedisAddr != ""),
		forge.F("sendgrid", e.config.SendGridAPIKey != ""),
		forge.F("stripe", e.config.StripeSecretKey != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.invoicing", "invoicing"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("invoicing: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("invoicing: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.Timezone == "" {
		cfg.Timezone = defaults.Timezone
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.MaxCatchUp == 0 {
		cfg.MaxCatchUp = defaults.MaxCatchUp
	}
	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = defaults.LeaseTTL
	}
	if cfg.InvoicePrefix == "" {
		cfg.InvoicePrefix = defaults.InvoicePrefix
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.OverdueReminders {
		yamlConfig.OverdueReminders = true
	}

	// String fields: YAML takes precedence.
	fillString(&yamlConfig.Timezone, programmaticConfig.Timezone)
	fillString(&yamlConfig.InvoicePrefix, programmaticConfig.InvoicePrefix)
	fillString(&yamlConfig.RedisAddr, programmaticConfig.RedisAddr)
	fillString(&yamlConfig.RedisPassword, programmaticConfig.RedisPassword)
	fillString(&yamlConfig.SendGridAPIKey, programmaticConfig.SendGridAPIKey)
	fillString(&yamlConfig.FromName, programmaticConfig.FromName)
	fillString(&yamlConfig.FromAddress, programmaticConfig.FromAddress)
	fillString(&yamlConfig.StripeSecretKey, programmaticConfig.StripeSecretKey)

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.TickInterval == 0 {
		yamlConfig.TickInterval = programmaticConfig.TickInterval
	}
	if yamlConfig.LeaseTTL == 0 {
		yamlConfig.LeaseTTL = programmaticConfig.LeaseTTL
	}
	if yamlConfig.Concurrency == 0 {
		yamlConfig.Concurrency = programmaticConfig.Concurrency
	}
	if yamlConfig.MaxCatchUp == 0 {
		yamlConfig.MaxCatchUp = programmaticConfig.MaxCatchUp
	}
	if yamlConfig.RedisDB == 0 {
		yamlConfig.RedisDB = programmaticConfig.RedisDB
	}
	if yamlConfig.QueueSize == 0 {
		yamlConfig.QueueSize = programmaticConfig.QueueSize
	}
	if yamlConfig.Workers == 0 {
		yamlConfig.Workers = programmaticConfig.Workers
	}
	if yamlConfig.MaxRetries == 0 {
		yamlConfig.MaxRetries = programmaticConfig.MaxRetries
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}

// engineLogger tags the process logger for the engine and its delivery
// workers.
func engineLogger() *slog.Logger {
	return slog.Default().With("extension", ExtensionName)
}

func fillString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}
