package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the invoicing store (SQLite).
var Migrations = migrate.NewGroup("invoicing")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_invoicing_customers",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS invoicing_customers (
    id          TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL DEFAULT '',
    email       TEXT NOT NULL DEFAULT '',
    address     TEXT NOT NULL DEFAULT '',
    tax_id      TEXT NOT NULL DEFAULT '',
    metadata    TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_invoicing_customers_tenant ON invoicing_customers (tenant_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS invoicing_customers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_invoicing_invoices",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS invoicing_invoices (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL DEFAULT '',
    number          TEXT NOT NULL DEFAULT '',
    sequence        INTEGER NOT NULL DEFAULT 0,
    customer_id     TEXT NOT NULL,
    customer        TEXT NOT NULL DEFAULT '{}',
    issue_date      TEXT NOT NULL DEFAULT '',
    due_date        TEXT NOT NULL DEFAULT '',
    currency        TEXT NOT NULL,
    line_items      TEXT NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL DEFAULT 'draft',
    payment_terms   TEXT NOT NULL DEFAULT '',
    recurring_id    TEXT NOT NULL DEFAULT '',
    cycle_index     INTEGER NOT NULL DEFAULT 0,
    notes           TEXT NOT NULL DEFAULT '',
    paid_at         TEXT,
    payment_ref     TEXT NOT NULL DEFAULT '',
    cancelled_at    TEXT,
    cancel_reason   TEXT NOT NULL DEFAULT '',
    subtotal        INTEGER NOT NULL DEFAULT 0,
    discount_amount INTEGER NOT NULL DEFAULT 0,
    tax_amount      INTEGER NOT NULL DEFAULT 0,
    total           INTEGER NOT NULL DEFAULT 0,
    version         INTEGER NOT NULL DEFAULT 0,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_invoicing_invoices_cycle ON invoicing_invoices (recurring_id, cycle_index) WHERE recurring_id != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_invoicing_invoices_number ON invoicing_invoices (tenant_id, number) WHERE number != '';
CREATE INDEX IF NOT EXISTS idx_invoicing_invoices_tenant_created ON invoicing_invoices (tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_invoicing_invoices_status_due ON invoicing_invoices (status, due_date);
CREATE INDEX IF NOT EXISTS idx_invoicing_invoices_customer ON invoicing_invoices (customer_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS invoicing_invoices`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_invoicing_recurring",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS invoicing_recurring (
    id                TEXT PRIMARY KEY,
    tenant_id         TEXT NOT NULL DEFAULT '',
    customer_id       TEXT NOT NULL,
    plan_description  TEXT NOT NULL DEFAULT '',
    currency          TEXT NOT NULL,
    items             TEXT NOT NULL DEFAULT '[]',
    amount            INTEGER NOT NULL DEFAULT 0,
    amount_currency   TEXT NOT NULL DEFAULT '',
    frequency         TEXT NOT NULL,
    start_date        TEXT NOT NULL,
    next_invoice_date TEXT NOT NULL,
    next_cycle        INTEGER NOT NULL DEFAULT 0,
    payment_terms     TEXT NOT NULL DEFAULT '',
    auto_send         INTEGER NOT NULL DEFAULT 0,
    auto_charge       INTEGER NOT NULL DEFAULT 0,
    status            TEXT NOT NULL DEFAULT 'active',
    last_invoice_id   TEXT NOT NULL DEFAULT '',
    last_invoice_date TEXT NOT NULL DEFAULT '',
    notes             TEXT NOT NULL DEFAULT '',
    version           INTEGER NOT NULL DEFAULT 0,
    metadata          TEXT NOT NULL DEFAULT '{}',
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_invoicing_recurring_due ON invoicing_recurring (status, next_invoice_date);
CREATE INDEX IF NOT EXISTS idx_invoicing_recurring_tenant ON invoicing_recurring (tenant_id);
CREATE INDEX IF NOT EXISTS idx_invoicing_recurring_customer ON invoicing_recurring (customer_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS invoicing_recurring`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_invoicing_sequences",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS invoicing_sequences (
    tenant_id TEXT PRIMARY KEY,
    value     INTEGER NOT NULL DEFAULT 0
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS invoicing_sequences`)
				return err
			},
		},
	)
}
