package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceDrafted   = "invoice.drafted"
	ActionInvoiceIssued    = "invoice.issued"
	ActionInvoicePaid      = "invoice.paid"
	ActionInvoiceCancelled = "invoice.cancelled"
	ActionInvoiceOverdue   = "invoice.overdue"

	// Recurring actions
	ActionRecurringCreated   = "recurring.created"
	ActionRecurringPaused    = "recurring.paused"
	ActionRecurringResumed   = "recurring.resumed"
	ActionRecurringCancelled = "recurring.cancelled"
	ActionCycleCompleted     = "recurring.cycle_completed"
	ActionDuplicateSkipped   = "recurring.duplicate_skipped"

	// Delivery actions
	ActionDeliveryFailed = "delivery.failed"
)

// Resource constants for audit events.
const (
	ResourceInvoice   = "invoice"
	ResourceRecurring = "recurring"
	ResourceDelivery  = "delivery"
)

// Category constants for audit events.
const (
	CategoryBilling   = "billing"
	CategoryRecurring = "recurring"
	CategoryPayment   = "payment"
	CategoryDelivery  = "delivery"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
