package invoice

import "errors"

var (
	ErrInvalidQuantity     = errors.New("invoicing: quantity must be positive")
	ErrInvalidRate         = errors.New("invoicing: rate must be between 0 and 100")
	ErrInvalidUnitPrice    = errors.New("invoicing: unit price must not be negative")
	ErrEmptyInvoice        = errors.New("invoicing: invoice has no line items")
	ErrInvalidDueDate      = errors.New("invoicing: due date precedes issue date")
	ErrInvalidPaymentTerms = errors.New("invoicing: invalid payment terms")
	ErrInvalidTransition   = errors.New("invoicing: invalid status transition")
	ErrInvoiceNotDraft     = errors.New("invoicing: invoice is not a draft")
	ErrAmountMismatch      = errors.New("invoicing: payment amount does not match invoice total")
	ErrLineItemNotFound    = errors.New("invoicing: line item not found")
)
