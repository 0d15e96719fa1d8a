package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"GBP", GBP(9900), 9900, "gbp", "£99.00"},
		{"JPY", JPY(100), 100, "jpy", "¥100"},
		{"New normalizes", New(2500, " INR "), 2500, "inr", "₹25.00"},
		{"Three decimals", New(12345, "KWD"), 12345, "kwd", "KWD 12.345"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	must := func(m Money, err error) Money {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return m
	}

	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return must(USD(100).Add(USD(200))) }, USD(300)},
		{"Subtract", func() Money { return must(USD(500).Subtract(USD(200))) }, USD(300)},
		{"Multiply", func() Money { return must(USD(100).Multiply(3)) }, USD(300)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"Abs negative", func() Money { return USD(-100).Abs() }, USD(100)},
		{"Chained", func() Money {
			return must(must(must(USD(1000).Add(USD(500))).Multiply(2)).Subtract(USD(1000)))
		}, USD(2000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.op(); !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	ops := map[string]func() error{
		"Add": func() error {
			_, err := USD(100).Add(EUR(100))
			return err
		},
		"Subtract": func() error {
			_, err := USD(100).Subtract(EUR(100))
			return err
		},
		"Compare": func() error {
			_, err := USD(100).Compare(EUR(100))
			return err
		},
		"Sum": func() error {
			_, err := Sum("usd", USD(1), EUR(1))
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrCurrencyMismatch) {
				t.Errorf("expected ErrCurrencyMismatch, got %v", err)
			}
		})
	}
}

func TestMoneyOverflow(t *testing.T) {
	huge := USD(math.MaxInt64)
	ops := map[string]func() error{
		"Add": func() error {
			_, err := huge.Add(USD(1))
			return err
		},
		"Subtract": func() error {
			_, err := USD(math.MinInt64).Subtract(USD(1))
			return err
		},
		"Multiply": func() error {
			_, err := USD(10_000_000_000_000).Multiply(1_000_000)
			return err
		},
		"Scale": func() error {
			_, err := huge.Scale(decimal.NewFromInt(2))
			return err
		},
		"ApplyPercentage": func() error {
			_, err := huge.ApplyPercentage(decimal.NewFromInt(100).Add(decimal.NewFromInt(1)))
			return err
		},
		"Sum": func() error {
			_, err := Sum("usd", huge, USD(1))
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrAmountOverflow) {
				t.Errorf("expected ErrAmountOverflow, got %v", err)
			}
		})
	}
}

func TestRoundHalfUpRange(t *testing.T) {
	if got, err := RoundHalfUp(decimal.NewFromInt(math.MaxInt64)); err != nil || got != math.MaxInt64 {
		t.Errorf("max int64: got %d, %v", got, err)
	}
	if _, err := RoundHalfUp(decimal.NewFromInt(math.MaxInt64).Add(decimal.NewFromInt(1))); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestMoneyApplyPercentage(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		pct      string
		expected int64
	}{
		{"Whole", USD(200000), "9", 18000},
		{"Half rounds up", USD(5), "10", 1},
		{"Below half rounds down", USD(4), "10", 0},
		{"One and a half", USD(15), "10", 2},
		{"Negative half rounds toward positive", USD(-15), "10", -1},
		{"Fractional rate", USD(12345), "7.25", 895},
		{"Zero rate", USD(999), "0", 0},
		{"Full rate", USD(999), "100", 999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.money.ApplyPercentage(decimal.RequireFromString(tt.pct))
			if err != nil {
				t.Fatalf("ApplyPercentage(%s): %v", tt.pct, err)
			}
			if got.Amount != tt.expected || got.Currency != tt.money.Currency {
				t.Errorf("ApplyPercentage(%s): got %v, want %d", tt.pct, got, tt.expected)
			}
		})
	}
}

func TestMoneyScale(t *testing.T) {
	got, err := USD(333).Scale(decimal.RequireFromString("0.5"))
	if err != nil || got.Amount != 167 {
		t.Errorf("Scale: got %d, want 167", got.Amount)
	}
}

func TestMoneyCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Money
		want int
	}{
		{"Equal", USD(100), USD(100), 0},
		{"Less", USD(50), USD(100), -1},
		{"Greater", USD(200), USD(100), 1},
		{"Negative less", USD(-100), USD(100), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Compare(tt.b)
			if err != nil {
				t.Fatalf("Compare: %v", err)
			}
			if got != tt.want {
				t.Errorf("Compare: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMoneyPredicates(t *testing.T) {
	tests := []struct {
		name       string
		money      Money
		isZero     bool
		isPositive bool
		isNegative bool
	}{
		{"Zero", USD(0), true, false, false},
		{"Positive", USD(100), false, true, false},
		{"Negative", USD(-100), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.IsZero(); got != tt.isZero {
				t.Errorf("IsZero: got %v, want %v", got, tt.isZero)
			}
			if got := tt.money.IsPositive(); got != tt.isPositive {
				t.Errorf("IsPositive: got %v, want %v", got, tt.isPositive)
			}
			if got := tt.money.IsNegative(); got != tt.isNegative {
				t.Errorf("IsNegative: got %v, want %v", got, tt.isNegative)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{USD(4900), "49.00"},
		{USD(1), "0.01"},
		{USD(0), "0.00"},
		{USD(-4900), "-49.00"},
		{USD(-1), "-0.01"},
		{New(1005, "bhd"), "1.005"},
		{JPY(12345), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(196200))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":196200,"currency":"usd","display":"$1962.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(USD(196200)) {
		t.Errorf("Unmarshal: got %v", back)
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		values   []Money
		expected Money
	}{
		{"Empty", nil, Zero("usd")},
		{"Single", []Money{USD(100)}, USD(100)},
		{"Multiple", []Money{USD(100), USD(200), USD(300)}, USD(600)},
		{"With negatives", []Money{USD(100), USD(-50), USD(200)}, USD(250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Sum("usd", tt.values...)
			if err != nil {
				t.Fatalf("Sum: %v", err)
			}
			if !result.Equal(tt.expected) {
				t.Errorf("Sum: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	sentinel := errors.New("bad")
	err := error(NewValidationError("quantity", sentinel, "must be positive, got %d", 0))

	if !errors.Is(err, sentinel) {
		t.Error("expected errors.Is to match the wrapped sentinel")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "quantity" {
		t.Errorf("expected ValidationError for quantity, got %v", err)
	}
}

func BenchmarkMoneyAdd(b *testing.B) {
	m1 := USD(100)
	m2 := USD(200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m1.Add(m2)
	}
}

func BenchmarkMoneyApplyPercentage(b *testing.B) {
	m := USD(4900)
	pct := decimal.NewFromInt(9)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.ApplyPercentage(pct)
	}
}
