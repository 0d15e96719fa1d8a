package invoice

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/invoicing/types"
)

func item(qty int64, unit types.Money, tax, discount string) LineItem {
	return LineItem{
		Description:  "Consulting",
		Quantity:     qty,
		UnitPrice:    unit,
		TaxRate:      decimal.RequireFromString(tax),
		DiscountRate: decimal.RequireFromString(discount),
	}
}

func TestComputeLineTotal(t *testing.T) {
	tests := []struct {
		name     string
		item     LineItem
		gross    int64
		discount int64
		tax      int64
		total    int64
	}{
		{"Discount and tax", item(2, types.USD(100000), "9", "10"), 200000, 20000, 16200, 196200},
		{"No rates", item(3, types.USD(1999), "0", "0"), 5997, 0, 0, 5997},
		{"Tax only", item(1, types.USD(1000), "7.5", "0"), 1000, 0, 75, 1075},
		{"Full discount", item(5, types.USD(1000), "20", "100"), 5000, 5000, 0, 0},
		{"Half cent rounds up", item(1, types.USD(5), "10", "0"), 5, 0, 1, 6},
		{"Zero price", item(4, types.USD(0), "9", "10"), 0, 0, 0, 0},
		{"Zero-decimal currency", item(3, types.JPY(333), "10", "0"), 999, 0, 100, 1099},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt, err := ComputeLineTotal(tt.item)
			require.NoError(t, err)
			assert.Equal(t, tt.gross, lt.Gross.Amount, "gross")
			assert.Equal(t, tt.discount, lt.Discount.Amount, "discount")
			assert.Equal(t, tt.tax, lt.Tax.Amount, "tax")
			assert.Equal(t, tt.total, lt.Total.Amount, "total")
			assert.Equal(t, tt.item.UnitPrice.Currency, lt.Total.Currency)
		})
	}
}

func TestComputeLineTotalValidation(t *testing.T) {
	tests := []struct {
		name  string
		item  LineItem
		field string
		err   error
	}{
		{"Zero quantity", item(0, types.USD(100), "0", "0"), "quantity", ErrInvalidQuantity},
		{"Negative quantity", item(-1, types.USD(100), "0", "0"), "quantity", ErrInvalidQuantity},
		{"Negative price", item(1, types.USD(-100), "0", "0"), "unit_price", ErrInvalidUnitPrice},
		{"Tax above 100", item(1, types.USD(100), "100.01", "0"), "tax_rate", ErrInvalidRate},
		{"Negative discount", item(1, types.USD(100), "0", "-5"), "discount_rate", ErrInvalidRate},
		{"Gross overflows", item(1_000_000, types.USD(10_000_000_000_000), "0", "0"), "gross", types.ErrAmountOverflow},
		{"Total overflows", item(1, types.USD(math.MaxInt64), "10", "0"), "total", types.ErrAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeLineTotal(tt.item)
			require.ErrorIs(t, err, tt.err)

			var ve *types.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestLineTotalIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		it := LineItem{
			Quantity:     rng.Int63n(500) + 1,
			UnitPrice:    types.USD(rng.Int63n(1_000_000)),
			TaxRate:      decimal.New(rng.Int63n(10001), -2),
			DiscountRate: decimal.New(rng.Int63n(10001), -2),
		}
		lt, err := ComputeLineTotal(it)
		require.NoError(t, err)

		derived := lt.Gross.Amount - lt.Discount.Amount + lt.Tax.Amount
		diff := lt.Total.Amount - derived
		require.LessOrEqualf(t, diff, int64(1), "item %+v", it)
		require.GreaterOrEqualf(t, diff, int64(-1), "item %+v", it)
		require.GreaterOrEqual(t, lt.Total.Amount, int64(0))
		require.LessOrEqual(t, lt.Discount.Amount, lt.Gross.Amount)
	}
}

func TestPriceInvoice(t *testing.T) {
	items := []LineItem{
		item(2, types.USD(100000), "9", "10"),
		item(1, types.USD(4999), "20", "0"),
		item(7, types.USD(333), "7.25", "12.5"),
	}

	totals, err := PriceInvoice("USD", items)
	require.NoError(t, err)

	var gross, discount, tax int64
	for _, it := range items {
		gross += it.Gross.Amount
		discount += it.Discount.Amount
		tax += it.Tax.Amount
	}
	assert.Equal(t, gross, totals.Subtotal.Amount)
	assert.Equal(t, discount, totals.DiscountAmount.Amount)
	assert.Equal(t, tax, totals.TaxAmount.Amount)
	assert.Equal(t, totals.Subtotal.Amount-totals.DiscountAmount.Amount+totals.TaxAmount.Amount, totals.Total.Amount)
	assert.Equal(t, "usd", totals.Total.Currency)
}

func TestPriceInvoiceOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	items := make([]LineItem, 12)
	for i := range items {
		items[i] = LineItem{
			Quantity:     rng.Int63n(20) + 1,
			UnitPrice:    types.EUR(rng.Int63n(50_000)),
			TaxRate:      decimal.New(rng.Int63n(2500), -2),
			DiscountRate: decimal.New(rng.Int63n(5000), -2),
		}
	}

	want, err := PriceInvoice("eur", append([]LineItem(nil), items...))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		shuffled := append([]LineItem(nil), items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := PriceInvoice("eur", shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPriceInvoiceErrors(t *testing.T) {
	t.Run("Empty allowed by default", func(t *testing.T) {
		totals, err := PriceInvoice("usd", nil)
		require.NoError(t, err)
		assert.True(t, totals.Total.IsZero())
	})

	t.Run("Empty rejected when required", func(t *testing.T) {
		_, err := PriceInvoice("usd", nil, RequireItems())
		assert.ErrorIs(t, err, ErrEmptyInvoice)
	})

	t.Run("Currency mismatch", func(t *testing.T) {
		_, err := PriceInvoice("usd", []LineItem{item(1, types.EUR(100), "0", "0")})
		assert.ErrorIs(t, err, types.ErrCurrencyMismatch)
	})

	t.Run("Sum overflows", func(t *testing.T) {
		big := item(1, types.USD(math.MaxInt64/2+1), "0", "0")
		_, err := PriceInvoice("usd", []LineItem{big, big})
		require.ErrorIs(t, err, types.ErrAmountOverflow)

		var ve *types.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "subtotal", ve.Field)
	})

	t.Run("Invalid item", func(t *testing.T) {
		_, err := PriceInvoice("usd", []LineItem{item(0, types.USD(100), "0", "0")})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})
}

func TestPaymentTerms(t *testing.T) {
	tests := []struct {
		terms PaymentTerms
		days  int
		err   bool
	}{
		{TermsNet30, 30, false},
		{"net15", 15, false},
		{"NET-45", 45, false},
		{" Net 7 ", 7, false},
		{TermsDueOnReceipt, 0, false},
		{"", 30, false},
		{Net(90), 90, false},
		{"Net", 0, true},
		{"2/10 net 30", 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.terms), func(t *testing.T) {
			days, err := tt.terms.Days()
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidPaymentTerms)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.days, days)
		})
	}
}

func BenchmarkComputeLineTotal(b *testing.B) {
	it := item(2, types.USD(100000), "9", "10")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ComputeLineTotal(it)
	}
}
