package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the invoicing store.
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
    metadata    JSONB NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    sequence        BIGINT NOT NULL DEFAULT 0,
    customer_id     TEXT NOT NULL,
    customer        JSONB NOT NULL DEFAULT '{}',
    issue_date      TEXT NOT NULL DEFAULT '',
    due_date        TEXT NOT NULL DEFAULT '',
    currency        TEXT NOT NULL,
    line_items      JSONB NOT NULL DEFAULT '[]',
    status          TEXT NOT NULL DEFAULT 'draft',
    payment_terms   TEXT NOT NULL DEFAULT '',
    recurring_id    TEXT NOT NULL DEFAULT '',
    cycle_index     INT NOT NULL DEFAULT 0,
    notes           TEXT NOT NULL DEFAULT '',
    paid_at         TIMESTAMPTZ,
    payment_ref     TEXT NOT NULL DEFAULT '',
    cancelled_at    TIMESTAMPTZ,
    cancel_reason   TEXT NOT NULL DEFAULT '',
    subtotal        BIGINT NOT NULL DEFAULT 0,
    discount_amount BIGINT NOT NULL DEFAULT 0,
    tax_amount      BIGINT NOT NULL DEFAULT 0,
    total           BIGINT NOT NULL DEFAULT 0,
    version         BIGINT NOT NULL DEFAULT 0,
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_invoicing_invoices_cycle ON invoicing_invoices (recurring_id, cycle_index) WHERE recurring_id <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_invoicing_invoices_number ON invoicing_invoices (tenant_id, number) WHERE number <> '';
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
    items             JSONB NOT NULL DEFAULT '[]',
    amount            BIGINT NOT NULL DEFAULT 0,
    amount_currency   TEXT NOT NULL DEFAULT '',
    frequency         TEXT NOT NULL,
    start_date        TEXT NOT NULL,
    next_invoice_date TEXT NOT NULL,
    next_cycle        INT NOT NULL DEFAULT 0,
    payment_terms     TEXT NOT NULL DEFAULT '',
    auto_send         BOOLEAN NOT NULL DEFAULT FALSE,
    auto_charge       BOOLEAN NOT NULL DEFAULT FALSE,
    status            TEXT NOT NULL DEFAULT 'active',
    last_invoice_id   TEXT NOT NULL DEFAULT '',
    last_invoice_date TEXT NOT NULL DEFAULT '',
    notes             TEXT NOT NULL DEFAULT '',
    version           BIGINT NOT NULL DEFAULT 0,
    metadata          JSONB NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    value     BIGINT NOT NULL DEFAULT 0
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
