package invoice

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/invoicing/types"
)

var (
	zeroRate    = decimal.Zero
	hundredRate = decimal.NewFromInt(100)
)

// LineTotal holds the priced components of one line item.
type LineTotal struct {
	Gross    types.Money // quantity × unit price, exact
	Discount types.Money // rounded discount on gross
	Tax      types.Money // rounded tax on the unrounded discounted base
	Total    types.Money // round(gross × (1 − d/100) × (1 + t/100))
}

// ComputeLineTotal prices a line item. Rates are applied in decimal precision
// and each published component is rounded half-up once.
func ComputeLineTotal(item LineItem) (LineTotal, error) {
	if err := ValidateLineItem(item); err != nil {
		return LineTotal{}, err
	}

	cur := item.UnitPrice.Currency
	gross, err := item.UnitPrice.Multiply(item.Quantity)
	if err != nil {
		return LineTotal{}, amountOverflow("gross", err)
	}
	g := gross.Decimal()

	keep := hundredRate.Sub(item.DiscountRate).Div(hundredRate)
	base := g.Mul(keep)
	withTax := hundredRate.Add(item.TaxRate).Div(hundredRate)

	discount, err := types.RoundHalfUp(types.Percent(g, item.DiscountRate))
	if err != nil {
		return LineTotal{}, amountOverflow("discount", err)
	}
	tax, err := types.RoundHalfUp(types.Percent(base, item.TaxRate))
	if err != nil {
		return LineTotal{}, amountOverflow("tax", err)
	}
	total, err := types.RoundHalfUp(base.Mul(withTax))
	if err != nil {
		return LineTotal{}, amountOverflow("total", err)
	}

	return LineTotal{
		Gross:    gross,
		Discount: types.Money{Amount: discount, Currency: cur},
		Tax:      types.Money{Amount: tax, Currency: cur},
		Total:    types.Money{Amount: total, Currency: cur},
	}, nil
}

func amountOverflow(field string, err error) error {
	return types.NewValidationError(field, types.ErrAmountOverflow, "%v", err)
}

// ValidateLineItem checks quantity, unit price and rates.
func ValidateLineItem(item LineItem) error {
	if item.Quantity <= 0 {
		return types.NewValidationError("quantity", ErrInvalidQuantity, "must be positive, got %d", item.Quantity)
	}
	if item.UnitPrice.IsNegative() {
		return types.NewValidationError("unit_price", ErrInvalidUnitPrice, "got %s", item.UnitPrice)
	}
	if !validRate(item.TaxRate) {
		return types.NewValidationError("tax_rate", ErrInvalidRate, "got %s", item.TaxRate)
	}
	if !validRate(item.DiscountRate) {
		return types.NewValidationError("discount_rate", ErrInvalidRate, "got %s", item.DiscountRate)
	}
	return nil
}

func validRate(r decimal.Decimal) bool {
	return !r.LessThan(zeroRate) && !r.GreaterThan(hundredRate)
}

// Totals are the aggregate amounts of an invoice.
type Totals struct {
	Subtotal       types.Money
	DiscountAmount types.Money
	TaxAmount      types.Money
	Total          types.Money
}

// PriceOption configures PriceInvoice.
type PriceOption func(*priceOptions)

type priceOptions struct {
	requireItems bool
}

// RequireItems makes PriceInvoice reject an empty item list.
func RequireItems() PriceOption {
	return func(o *priceOptions) { o.requireItems = true }
}

// PriceInvoice prices items and aggregates them component-wise. Subtotal,
// discount and tax are sums of the per-line components and the total is
// derived from them, so the result does not depend on item order.
// The derived fields of each item are filled in place.
func PriceInvoice(currency string, items []LineItem, opts ...PriceOption) (Totals, error) {
	o := priceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	currency = types.NormalizeCurrency(currency)
	if o.requireItems && len(items) == 0 {
		return Totals{}, types.NewValidationError("line_items", ErrEmptyInvoice, "at least one line item is required")
	}

	gross, discount, tax := types.Zero(currency), types.Zero(currency), types.Zero(currency)
	for i := range items {
		if items[i].UnitPrice.Currency != currency {
			return Totals{}, fmt.Errorf("%w: item %d priced in %q, invoice in %q",
				types.ErrCurrencyMismatch, i, items[i].UnitPrice.Currency, currency)
		}
		lt, err := ComputeLineTotal(items[i])
		if err != nil {
			return Totals{}, err
		}
		items[i].Gross, items[i].Discount, items[i].Tax, items[i].Total = lt.Gross, lt.Discount, lt.Tax, lt.Total
		if gross, err = gross.Add(lt.Gross); err != nil {
			return Totals{}, amountOverflow("subtotal", err)
		}
		if discount, err = discount.Add(lt.Discount); err != nil {
			return Totals{}, amountOverflow("discount_amount", err)
		}
		if tax, err = tax.Add(lt.Tax); err != nil {
			return Totals{}, amountOverflow("tax_amount", err)
		}
	}

	net, err := gross.Subtract(discount)
	if err != nil {
		return Totals{}, amountOverflow("total", err)
	}
	total, err := net.Add(tax)
	if err != nil {
		return Totals{}, amountOverflow("total", err)
	}

	return Totals{
		Subtotal:       gross,
		DiscountAmount: discount,
		TaxAmount:      tax,
		Total:          total,
	}, nil
}
