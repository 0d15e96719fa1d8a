// Package invoicing is an invoice computation and recurring billing engine
// for Go applications.
//
// Invoicing is a library, not a service. It provides:
//
//   - Exact line and invoice pricing in integer minor units with
//     percentage discounts and taxes rounded half-up
//   - A strict invoice lifecycle: draft, pending, paid, overdue, cancelled
//   - Recurring configurations billed weekly, monthly, quarterly or yearly
//     with month-end clamping and catch-up after downtime
//   - Exactly-once issue per billing cycle, even across processes
//   - Overdue reclassification with optional reminders
//   - Pluggable delivery (SendGrid) and charging (Stripe)
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/invoicing"
//	    "github.com/xraph/invoicing/store/postgres"
//	)
//
//	s := postgres.New(db)
//	engine := invoicing.New(s, invoicing.WithTickInterval(time.Hour))
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Invoices
//
// A draft collects line items; issuing it freezes the totals, copies the
// customer's billing details and assigns the next number:
//
//	inv, err := engine.CreateDraft(ctx, tenantID, customerID, "usd", invoice.TermsNet30,
//	    invoice.LineItem{Description: "Consulting", Quantity: 2, UnitPrice: invoicing.USD(100000),
//	        TaxRate: decimal.NewFromInt(9), DiscountRate: decimal.NewFromInt(10)},
//	)
//	inv, err = engine.IssueInvoice(ctx, inv.ID, civil.DateOf(time.Now()))
//
// # Recurring billing
//
//	cfg := recurring.New(tenantID, customerID, recurring.FrequencyMonthly, start)
//	cfg.Amount = invoicing.USD(4900)
//	cfg.Currency = "usd"
//	cfg.AutoSend = true
//	err := engine.CreateRecurring(ctx, cfg)
//
//	report, err := engine.RunDue(ctx, civil.DateOf(time.Now()))
//
// RunDue and RunCycle may be called as often as convenient and from several
// workers at once: every boundary of a configuration is billed at most once.
// The boundary date, not the wall clock, is the issue date, so a run after
// downtime issues the missed invoices with their original dates.
//
// # Money
//
// Money carries int64 minor units and a lowercase ISO currency. Operations
// on different currencies return ErrCurrencyMismatch.
//
// # TypeID
//
// Records are identified by TypeIDs: inv_, li_, rec_, cus_, pay_, dlv_.
package invoicing
