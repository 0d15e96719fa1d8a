package mongo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

func TestLineItemModelsKeepRatePrecision(t *testing.T) {
	items := []invoice.LineItem{{
		ID:           id.NewLineItemID(),
		Description:  "Hosting",
		Quantity:     1,
		UnitPrice:    types.EUR(1999),
		TaxRate:      decimal.RequireFromString("19.125"),
		DiscountRate: decimal.Zero,
		Gross:        types.EUR(1999),
		Tax:          types.EUR(382),
		Total:        types.EUR(2381),
	}}

	models := toLineItemModels(items)
	require.Len(t, models, 1)
	assert.Equal(t, "19.125", models[0].TaxRate)
	assert.Equal(t, "eur", models[0].Currency)

	got, err := fromLineItemModels(models)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, items[0].ID, got[0].ID)
	assert.True(t, got[0].TaxRate.Equal(items[0].TaxRate))
	assert.Equal(t, types.EUR(2381), got[0].Total)
}

func TestLineItemModelsRejectBadRate(t *testing.T) {
	_, err := fromLineItemModels([]lineItemModel{{TaxRate: "x", DiscountRate: "0"}})
	assert.Error(t, err)
}

func TestInvoiceModelTotalsUseInvoiceCurrency(t *testing.T) {
	inv := invoice.NewDraft("acme", id.NewCustomerID(), "gbp", invoice.TermsNet15)
	inv.Total = types.GBP(1200)

	got, err := fromInvoiceModel(toInvoiceModel(inv))
	require.NoError(t, err)
	assert.Equal(t, types.GBP(1200), got.Total)
	assert.Equal(t, "gbp", got.Subtotal.Currency)
	assert.True(t, got.RecurringID.IsNil())
}

func TestCycleIndexIsNamed(t *testing.T) {
	idx := migrationIndexes()[colInvoices]
	require.NotEmpty(t, idx)
	assert.NotNil(t, idx[0].Options)
}
