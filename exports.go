package invoicing

import (
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/recurring"
	"github.com/xraph/invoicing/types"
)

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// ValidationError is re-exported from types package.
type ValidationError = types.ValidationError

// Invoice is re-exported from invoice package.
type Invoice = invoice.Invoice

// LineItem is re-exported from invoice package.
type LineItem = invoice.LineItem

// RecurringConfig is re-exported from recurring package.
type RecurringConfig = recurring.Config

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	GBP  = types.GBP
	JPY  = types.JPY
	Zero = types.Zero
	Sum  = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
