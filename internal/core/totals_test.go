package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"darbar-billing/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intp(v int) *int { return &v }

func bootLine() core.LineItem {
	return core.LineItem{
		ID:          1,
		ItemID:      intp(7),
		Quantity:    2,
		Rate:        dec("800"),
		GSTPercent:  dec("12"),
		State:       core.StateActive,
		LineAmounts: core.ComputeLineAmounts(2, dec("800"), dec("12"), decimal.Zero),
	}
}

func TestComputeLineAmounts(t *testing.T) {
	tests := []struct {
		name     string
		qty      int
		rate     string
		gst      string
		discount string
		want     core.LineAmounts
	}{
		{
			name: "gst only",
			qty:  2, rate: "800", gst: "12", discount: "0",
			want: core.LineAmounts{BaseAmount: dec("1600"), GSTAmount: dec("192"), DiscountAmount: dec("0"), Total: dec("1792")},
		},
		{
			name: "gst and discount",
			qty:  3, rate: "99.99", gst: "5", discount: "10",
			want: core.LineAmounts{BaseAmount: dec("299.97"), GSTAmount: dec("15"), DiscountAmount: dec("30"), Total: dec("284.97")},
		},
		{
			name: "half cent rounds up",
			qty:  1, rate: "0.10", gst: "5", discount: "0",
			want: core.LineAmounts{BaseAmount: dec("0.10"), GSTAmount: dec("0.01"), DiscountAmount: dec("0"), Total: dec("0.11")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := core.ComputeLineAmounts(tt.qty, dec(tt.rate), dec(tt.gst), dec(tt.discount))
			assert.True(t, tt.want.BaseAmount.Equal(got.BaseAmount), "base: %s", got.BaseAmount)
			assert.True(t, tt.want.GSTAmount.Equal(got.GSTAmount), "gst: %s", got.GSTAmount)
			assert.True(t, tt.want.DiscountAmount.Equal(got.DiscountAmount), "discount: %s", got.DiscountAmount)
			assert.True(t, tt.want.Total.Equal(got.Total), "total: %s", got.Total)
		})
	}
}

func TestCalculateTotals_BootScenario(t *testing.T) {
	lines := []core.LineItem{bootLine()}

	totals := core.CalculateTotals(lines, nil, nil)
	assert.True(t, dec("1600").Equal(totals.Subtotal))
	assert.True(t, dec("192").Equal(totals.GSTTotal))
	assert.True(t, dec("1792").Equal(totals.GrossAmount))
	assert.True(t, dec("1792").Equal(totals.TotalAmount))
	assert.True(t, dec("1792").Equal(totals.BalanceDue))
	assert.False(t, totals.IsPaid)

	ret := core.LinkedReturnAmount(lines[0], 1)
	require.True(t, dec("896").Equal(ret), "return amount %s", ret)

	returns := []core.Return{{ID: 1, LineID: intp(1), Quantity: 1, Amount: ret, State: core.StateActive}}
	totals = core.CalculateTotals(lines, returns, nil)
	assert.True(t, dec("1792").Equal(totals.GrossAmount))
	assert.True(t, dec("896").Equal(totals.TotalReturns))
	assert.True(t, dec("896").Equal(totals.TotalAmount))

	payments := []core.Payment{{ID: 1, Amount: dec("896"), State: core.StateActive}}
	totals = core.CalculateTotals(lines, returns, payments)
	assert.True(t, totals.BalanceDue.IsZero())
	assert.True(t, totals.IsPaid)
}

func TestCalculateTotals_IgnoresDeletedRecords(t *testing.T) {
	deletedLine := bootLine()
	deletedLine.ID = 2
	deletedLine.State = core.StateDeleted

	lines := []core.LineItem{bootLine(), deletedLine}
	returns := []core.Return{{ID: 1, Amount: dec("100"), State: core.StateDeleted}}
	payments := []core.Payment{{ID: 1, Amount: dec("500"), State: core.StateDeleted}}

	totals := core.CalculateTotals(lines, returns, payments)
	assert.True(t, dec("1792").Equal(totals.GrossAmount))
	assert.True(t, totals.TotalReturns.IsZero())
	assert.True(t, totals.TotalPaid.IsZero())
}

func TestCalculateTotals_ClampsAtZero(t *testing.T) {
	lines := []core.LineItem{bootLine()}
	returns := []core.Return{{ID: 1, Amount: dec("2000"), State: core.StateActive}}
	payments := []core.Payment{{ID: 1, Amount: dec("50"), State: core.StateActive}}

	totals := core.CalculateTotals(lines, returns, payments)
	assert.True(t, totals.TotalAmount.IsZero())
	assert.True(t, totals.BalanceDue.IsZero())
	assert.True(t, totals.IsPaid)

	overpaid := core.CalculateTotals(lines, nil, []core.Payment{{Amount: dec("2000"), State: core.StateActive}})
	assert.True(t, overpaid.BalanceDue.IsZero())
	assert.True(t, dec("2000").Equal(overpaid.TotalPaid))
}

func TestCalculateTotals_Idempotent(t *testing.T) {
	lines := []core.LineItem{bootLine()}
	returns := []core.Return{{ID: 1, Amount: dec("10.005"), State: core.StateActive}}
	payments := []core.Payment{{ID: 1, Amount: dec("300"), State: core.StateActive}}

	first := core.CalculateTotals(lines, returns, payments)
	second := core.CalculateTotals(lines, returns, payments)
	assert.True(t, first.Equal(second))
}

func TestCalculateTotals_EmptyInvoice(t *testing.T) {
	totals := core.CalculateTotals(nil, nil, nil)
	assert.True(t, totals.TotalAmount.IsZero())
	assert.True(t, totals.IsPaid)
}
