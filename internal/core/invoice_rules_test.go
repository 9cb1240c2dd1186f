package core_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"darbar-billing/internal/core"
)

func nullDec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func validRetailInput() core.InvoiceInput {
	return core.InvoiceInput{
		Type:  core.InvoiceRetail,
		Lines: []core.LineInput{{ItemID: intp(1), Quantity: 2}},
	}
}

func TestValidateInvoiceInput_Valid(t *testing.T) {
	assert.NoError(t, core.ValidateInvoiceInput(validRetailInput()))

	manual := validRetailInput()
	manual.Lines = []core.LineInput{{ManualName: "Alteration", Quantity: 1, Rate: dec("150")}}
	assert.NoError(t, core.ValidateInvoiceInput(manual))

	wholesale := validRetailInput()
	wholesale.Type = core.InvoiceWholesale
	wholesale.PartyID = intp(3)
	assert.NoError(t, core.ValidateInvoiceInput(wholesale))
}

func TestValidateInvoiceInput_CollectsEveryFailure(t *testing.T) {
	limit := decimal.Zero
	in := core.InvoiceInput{
		Type:         core.InvoiceWholesale,
		LimitEnabled: true,
		LimitAmount:  &limit,
		Lines: []core.LineInput{
			{Quantity: 1},
			{ItemID: intp(2), Quantity: 0},
			{ItemID: intp(3), Quantity: 1, Rate: dec("-1")},
			{ItemID: intp(4), Quantity: 1, GSTPercent: nullDec("101")},
			{ItemID: intp(5), Quantity: 1, DiscountPercent: nullDec("-5")},
		},
	}

	err := core.ValidateInvoiceInput(in)
	require.Error(t, err)

	var verrs *core.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs.Errs, 7)
	assert.True(t, core.IsValidationError(err))

	var qtyErr *core.InvalidQuantityError
	require.True(t, errors.As(err, &qtyErr))
	assert.Equal(t, 2, qtyErr.Line)

	var amtErr *core.InvalidAmountError
	require.True(t, errors.As(err, &amtErr))
	assert.Equal(t, "limit_amount", amtErr.Field)
}

func TestValidateInvoiceInput_NoLines(t *testing.T) {
	in := validRetailInput()
	in.Lines = nil
	err := core.ValidateInvoiceInput(in)
	assert.True(t, errors.Is(err, core.ErrNoItems))
}

func TestResolveLine_CatalogDefaults(t *testing.T) {
	item := &core.Item{
		ID:              9,
		Name:            "Silk Kurta",
		PriceRetail:     dec("1200"),
		PriceWholesale:  dec("950"),
		GSTPercent:      dec("12"),
		DiscountPercent: dec("5"),
	}

	retail := core.ResolveLine(core.LineInput{ItemID: intp(9), Quantity: 2}, item, core.InvoiceRetail)
	assert.True(t, dec("1200").Equal(retail.Rate))
	assert.True(t, dec("12").Equal(retail.GSTPercent))
	assert.True(t, dec("5").Equal(retail.DiscountPercent))
	assert.Equal(t, "Silk Kurta", retail.ItemName)
	assert.True(t, dec("2400").Equal(retail.BaseAmount))
	assert.True(t, dec("2568").Equal(retail.Total), "total %s", retail.Total)

	wholesale := core.ResolveLine(core.LineInput{ItemID: intp(9), Quantity: 1}, item, core.InvoiceWholesale)
	assert.True(t, dec("950").Equal(wholesale.Rate))
}

func TestResolveLine_SubmittedValuesWin(t *testing.T) {
	item := &core.Item{ID: 9, PriceRetail: dec("1200"), GSTPercent: dec("12"), DiscountPercent: dec("5")}

	l := core.ResolveLine(core.LineInput{
		ItemID:          intp(9),
		Quantity:        1,
		Rate:            dec("1000"),
		GSTPercent:      nullDec("0"),
		DiscountPercent: nullDec("0"),
	}, item, core.InvoiceRetail)
	assert.True(t, dec("1000").Equal(l.Rate))
	assert.True(t, l.GSTPercent.IsZero())
	assert.True(t, l.DiscountPercent.IsZero())
	assert.True(t, dec("1000").Equal(l.Total))
}

func TestResolveLine_Manual(t *testing.T) {
	l := core.ResolveLine(core.LineInput{ManualName: "  Stitching ", Quantity: 3, Rate: dec("50")}, nil, core.InvoiceRetail)
	assert.Nil(t, l.ItemID)
	assert.Equal(t, "Stitching", l.ManualName)
	assert.True(t, dec("150").Equal(l.Total))
}

func TestLinkedReturnAmount(t *testing.T) {
	line := core.LineItem{Quantity: 3, LineAmounts: core.LineAmounts{Total: dec("100")}}
	assert.True(t, dec("33.33").Equal(core.LinkedReturnAmount(line, 1)))
	assert.True(t, dec("66.67").Equal(core.LinkedReturnAmount(line, 2)))
	assert.True(t, dec("100").Equal(core.LinkedReturnAmount(line, 3)))
	assert.True(t, core.LinkedReturnAmount(core.LineItem{}, 1).IsZero())
}

func TestEstimateProportionalRestoration(t *testing.T) {
	lines := []core.LineItem{
		{ItemID: intp(1), Quantity: 4, State: core.StateActive},
		{ItemID: intp(2), Quantity: 1, State: core.StateActive},
		{ManualName: "Stitching", Quantity: 2, State: core.StateActive},
		{ItemID: intp(3), Quantity: 5, State: core.StateDeleted},
		{ItemID: intp(1), Quantity: 2, State: core.StateActive},
	}

	got := core.EstimateProportionalRestoration(lines, dec("500"), dec("1000"))
	// item 1: round(4 × 0.5) + round(2 × 0.5) = 3; item 2: round(0.5) = 1
	assert.Equal(t, []core.StockRequest{req(1, 3), req(2, 1)}, got)

	small := core.EstimateProportionalRestoration(lines[:2], dec("1"), dec("1000"))
	assert.Equal(t, []core.StockRequest{req(1, 1), req(2, 1)}, small)

	capped := core.EstimateProportionalRestoration(lines[:1], dec("5000"), dec("1000"))
	assert.Equal(t, []core.StockRequest{req(1, 4)}, capped)

	assert.Nil(t, core.EstimateProportionalRestoration(lines, decimal.Zero, dec("1000")))
	assert.Nil(t, core.EstimateProportionalRestoration(lines, dec("10"), decimal.Zero))
}

func TestDeletionRestoreQuantities(t *testing.T) {
	lines := []core.LineItem{
		{ID: 1, ItemID: intp(1), Quantity: 5, State: core.StateActive},
		{ID: 2, ItemID: intp(2), Quantity: 2, State: core.StateActive},
		{ID: 3, ManualName: "Stitching", Quantity: 1, State: core.StateActive},
		{ID: 4, ItemID: intp(3), Quantity: 9, State: core.StateDeleted},
	}
	returns := []core.Return{
		{ID: 10, LineID: intp(1), Quantity: 2, State: core.StateActive},
		{ID: 11, LineID: intp(2), Quantity: 2, State: core.StateDeleted},
		{ID: 12, State: core.StateActive},
	}
	movements := []core.StockMovement{
		{ItemID: 1, Quantity: -5, Kind: core.MovementRetailSale},
		{ItemID: 1, Quantity: 2, Kind: core.MovementReturn, ReturnID: intp(10)},
		{ItemID: 2, Quantity: 2, Kind: core.MovementReturn, ReturnID: intp(11)},
		{ItemID: 2, Quantity: -2, Kind: core.MovementAdjustment, ReturnID: intp(11)},
		{ItemID: 2, Quantity: 5, Kind: core.MovementReturn, ReturnID: intp(12)},
	}

	got := core.DeletionRestoreQuantities(lines, returns, movements)
	// item 1: 5 - 2; item 2: 2 - 5 clamps to nothing.
	assert.Equal(t, []core.StockRequest{req(1, 3)}, got)
}

func TestNewStockInfo(t *testing.T) {
	it := &core.Item{ID: 1, Name: "Dupatta", Code: "HSN-0001", Quantity: 4, IsActive: true}

	info := core.NewStockInfo(it, 5)
	assert.Equal(t, 4, info.CurrentStock)
	assert.True(t, info.IsLowStock)
	assert.False(t, info.IsOutOfStock)

	it.Quantity = 0
	info = core.NewStockInfo(it, 5)
	assert.True(t, info.IsOutOfStock)

	it.Quantity = 50
	info = core.NewStockInfo(it, 5)
	assert.False(t, info.IsLowStock)
}
