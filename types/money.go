// Package types provides the value types shared across the invoicing engine.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in the smallest currency unit.
// All arithmetic on amounts is integer-only. Rates are applied with
// decimal precision and rounded half-up exactly once.
//
// Examples:
//   - USD(4900) = $49.00 (4900 cents)
//   - EUR(19900) = €199.00 (19900 cents)
//   - JPY(100) = ¥100
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents, pence, etc)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "gbp"
}

var (
	hundred  = decimal.NewFromInt(100)
	half     = decimal.New(5, -1)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence int64) Money { return Money{Amount: pence, Currency: "gbp"} }

// JPY creates a Money value in Japanese Yen (no decimal).
func JPY(yen int64) Money { return Money{Amount: yen, Currency: "jpy"} }

// New creates a Money value in the given currency, normalizing the code.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: NormalizeCurrency(currency)} }

// NormalizeCurrency lowercases and trims an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

// Add adds two Money values.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, mismatch(m, other)
	}
	sum := m.Amount + other.Amount
	if (other.Amount > 0 && sum < m.Amount) || (other.Amount < 0 && sum > m.Amount) {
		return Money{}, overflow("%s + %s", m, other)
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// Subtract subtracts another Money value.
func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, mismatch(m, other)
	}
	diff := m.Amount - other.Amount
	if (other.Amount > 0 && diff > m.Amount) || (other.Amount < 0 && diff < m.Amount) {
		return Money{}, overflow("%s - %s", m, other)
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

// Multiply multiplies the Money by an integer quantity. The result is exact
// or ErrAmountOverflow.
func (m Money) Multiply(qty int64) (Money, error) {
	amount, err := RoundHalfUp(m.Decimal().Mul(decimal.NewFromInt(qty)))
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// Scale multiplies the Money by an arbitrary factor and rounds half-up to the
// nearest minor unit.
func (m Money) Scale(factor decimal.Decimal) (Money, error) {
	amount, err := RoundHalfUp(m.Decimal().Mul(factor))
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// ApplyPercentage returns round_half_up(amount × pct / 100).
func (m Money) ApplyPercentage(pct decimal.Decimal) (Money, error) {
	amount, err := RoundHalfUp(Percent(m.Decimal(), pct))
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: m.Currency}, nil
}

// Decimal returns the amount in minor units as a decimal, for chaining
// rate computations before a single final rounding.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount)
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return Money{Amount: -m.Amount, Currency: m.Currency}
	}
	return m
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Compare returns -1, 0 or 1 as m is less than, equal to or greater than other.
func (m Money) Compare(other Money) (int, error) {
	if m.Currency != other.Currency {
		return 0, mismatch(m, other)
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	}
	return 0, nil
}

// FormatMajor returns the major unit string without currency symbol.
// For currencies with 2 decimal places: "49.00" for USD(4900).
// For currencies with 0 decimal places (JPY): "100" for JPY(100).
func (m Money) FormatMajor() string {
	decimals := CurrencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}
	return decimal.New(m.Amount, -int32(decimals)).StringFixed(int32(decimals))
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "£99.00", "¥100"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// Percent returns value × pct / 100 without rounding.
func Percent(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Div(hundred)
}

// RoundHalfUp rounds a minor-unit decimal to the nearest integer, ties
// toward positive infinity. Results outside the int64 range fail with
// ErrAmountOverflow.
func RoundHalfUp(d decimal.Decimal) (int64, error) {
	r := d.Add(half).Floor()
	if r.GreaterThan(maxMinor) || r.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %s minor units", ErrAmountOverflow, r)
	}
	return r.IntPart(), nil
}

// Sum adds Money values in the given currency. Every value must share it.
func Sum(currency string, values ...Money) (Money, error) {
	total := Zero(currency)
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
		"chf": "CHF ",
		"inr": "₹",
		"sek": "kr ",
		"nzd": "NZ$",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// CurrencyDecimals returns the number of minor-unit digits for a currency.
func CurrencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp", "pyg", "idr":
		return 0
	case "bhd", "kwd", "omr", "jod", "tnd":
		return 3
	}
	return 2
}
