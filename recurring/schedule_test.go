package recurring

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name  string
		start civil.Date
		freq  Frequency
		cycle int
		want  civil.Date
	}{
		{"Monthly start", date(2024, 1, 31), FrequencyMonthly, 0, date(2024, 1, 31)},
		{"Monthly clamps to leap February", date(2024, 1, 31), FrequencyMonthly, 1, date(2024, 2, 29)},
		{"Monthly recovers month end", date(2024, 1, 31), FrequencyMonthly, 2, date(2024, 3, 31)},
		{"Monthly April", date(2024, 1, 31), FrequencyMonthly, 3, date(2024, 4, 30)},
		{"Monthly crosses year", date(2024, 12, 1), FrequencyMonthly, 3, date(2025, 3, 1)},
		{"Monthly non-leap February", date(2025, 1, 30), FrequencyMonthly, 1, date(2025, 2, 28)},
		{"Weekly", date(2024, 12, 30), FrequencyWeekly, 1, date(2025, 1, 6)},
		{"Weekly many", date(2024, 1, 1), FrequencyWeekly, 52, date(2024, 12, 30)},
		{"Quarterly", date(2024, 11, 30), FrequencyQuarterly, 1, date(2025, 2, 28)},
		{"Quarterly recovers", date(2024, 11, 30), FrequencyQuarterly, 2, date(2025, 5, 30)},
		{"Yearly leap day", date(2024, 2, 29), FrequencyYearly, 1, date(2025, 2, 28)},
		{"Yearly back to leap day", date(2024, 2, 29), FrequencyYearly, 4, date(2028, 2, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextOccurrence(tt.start, tt.freq, tt.cycle)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextOccurrenceErrors(t *testing.T) {
	_, err := NextOccurrence(date(2024, 1, 1), "daily", 1)
	assert.ErrorIs(t, err, ErrInvalidFrequency)

	_, err = NextOccurrence(date(2024, 1, 1), FrequencyMonthly, -1)
	assert.ErrorIs(t, err, ErrInvalidCycle)
}

func TestNextOccurrenceMonotonic(t *testing.T) {
	starts := []civil.Date{date(2024, 1, 31), date(2024, 2, 29), date(2023, 8, 31), date(2025, 6, 15)}
	for _, start := range starts {
		for _, freq := range []Frequency{FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly} {
			prev, err := NextOccurrence(start, freq, 0)
			require.NoError(t, err)
			for k := 1; k < 60; k++ {
				next, err := NextOccurrence(start, freq, k)
				require.NoError(t, err)
				require.Truef(t, next.After(prev), "%s %s cycle %d: %s !> %s", start, freq, k, next, prev)
				prev = next
			}
		}
	}
}

func TestDueBoundaries(t *testing.T) {
	cfg := New("t1", id.NewCustomerID(), FrequencyMonthly, date(2024, 12, 1))

	got, err := DueBoundaries(cfg, date(2025, 3, 5), 0)
	require.NoError(t, err)
	assert.Equal(t, []Boundary{
		{0, date(2024, 12, 1)},
		{1, date(2025, 1, 1)},
		{2, date(2025, 2, 1)},
		{3, date(2025, 3, 1)},
	}, got)

	limited, err := DueBoundaries(cfg, date(2025, 3, 5), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := DueBoundaries(cfg, date(2024, 11, 30), 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	onBoundary, err := DueBoundaries(cfg, date(2024, 12, 1), 0)
	require.NoError(t, err)
	assert.Len(t, onBoundary, 1)
}

func TestAdvance(t *testing.T) {
	cfg := New("t1", id.NewCustomerID(), FrequencyMonthly, date(2024, 1, 31))
	invID := id.NewInvoiceID()

	require.NoError(t, cfg.Advance(Boundary{Cycle: 0, Date: date(2024, 1, 31)}, invID))
	assert.Equal(t, 1, cfg.NextCycle)
	assert.Equal(t, date(2024, 2, 29), cfg.NextInvoiceDate)
	assert.Equal(t, date(2024, 1, 31), cfg.LastInvoiceDate)
	assert.Equal(t, invID, cfg.LastInvoiceID)

	require.NoError(t, cfg.Advance(Boundary{Cycle: 1, Date: date(2024, 2, 29)}, invID))
	assert.Equal(t, date(2024, 3, 31), cfg.NextInvoiceDate, "boundaries derive from the start date")
}

func TestStatusTransitions(t *testing.T) {
	cfg := New("t1", id.NewCustomerID(), FrequencyMonthly, date(2025, 1, 1))

	assert.ErrorIs(t, cfg.Resume(date(2025, 1, 1)), ErrInvalidTransition)
	require.NoError(t, cfg.Pause())
	assert.False(t, cfg.IsDue(date(2025, 6, 1)))
	assert.ErrorIs(t, cfg.Pause(), ErrInvalidTransition)

	require.NoError(t, cfg.Resume(date(2025, 4, 1)))
	assert.Equal(t, StatusActive, cfg.Status)
	assert.Equal(t, 3, cfg.NextCycle)
	assert.Equal(t, date(2025, 4, 1), cfg.NextInvoiceDate)
	assert.True(t, cfg.IsDue(date(2025, 4, 1)))

	require.NoError(t, cfg.Cancel())
	assert.ErrorIs(t, cfg.Cancel(), ErrInvalidTransition)
	assert.ErrorIs(t, cfg.Pause(), ErrInvalidTransition)
	assert.False(t, cfg.IsDue(date(2030, 1, 1)))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := New("t1", id.NewCustomerID(), FrequencyMonthly, date(2025, 1, 1))
		cfg.PlanDescription = "Pro plan"
		cfg.Currency = "usd"
		cfg.Amount = types.USD(4900)
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"No customer", func(c *Config) { c.CustomerID = id.Nil }, ErrMissingCustomer},
		{"Bad frequency", func(c *Config) { c.Frequency = "hourly" }, ErrInvalidFrequency},
		{"No start", func(c *Config) { c.StartDate = civil.Date{} }, ErrMissingStartDate},
		{"Empty template", func(c *Config) { c.Amount = types.USD(0) }, ErrEmptyTemplate},
		{"Bad terms", func(c *Config) { c.PaymentTerms = "whenever" }, invoice.ErrInvalidPaymentTerms},
		{"Item currency", func(c *Config) {
			c.Items = []invoice.LineItem{{Description: "Seat", Quantity: 1, UnitPrice: types.EUR(100)}}
		}, types.ErrCurrencyMismatch},
		{"Item rate", func(c *Config) {
			c.Items = []invoice.LineItem{{Description: "Seat", Quantity: 1, UnitPrice: types.USD(100), TaxRate: decimal.NewFromInt(101)}}
		}, invoice.ErrInvalidRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.err)
		})
	}
}

func TestBuildItems(t *testing.T) {
	cfg := New("t1", id.NewCustomerID(), FrequencyMonthly, date(2025, 1, 1))
	cfg.PlanDescription = "Pro plan"
	cfg.Amount = types.USD(4900)

	flat := cfg.BuildItems()
	require.Len(t, flat, 1)
	assert.Equal(t, "Pro plan", flat[0].Description)
	assert.Equal(t, int64(1), flat[0].Quantity)

	cfg.Items = []invoice.LineItem{{Description: "Seat", Quantity: 3, UnitPrice: types.USD(1000), Total: types.USD(999)}}
	a, b := cfg.BuildItems(), cfg.BuildItems()
	assert.NotEqual(t, a[0].ID, b[0].ID, "each cycle gets fresh line item ids")
	assert.True(t, a[0].Total.IsZero(), "derived amounts are not copied from the template")
}
