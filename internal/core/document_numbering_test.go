package core_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"darbar-billing/internal/core"
)

func TestNumberSeries_Format(t *testing.T) {
	at := time.Date(2026, time.January, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		series core.NumberSeries
		seq    int
		want   string
	}{
		{core.RetailInvoiceSeries, 1, "RTL-20260115-001"},
		{core.WholesaleInvoiceSeries, 42, "WHL-20260115-042"},
		{core.ReturnSeries, 7, "RET-202601-0007"},
		{core.PaymentSeries, 1234, "PAY-202601-1234"},
		{core.ItemCodeSeries, 3, "HSN-0003"},
		{core.RetailInvoiceSeries, 1000, "RTL-20260115-1000"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.series.Format(at, tt.seq))
		})
	}
}

func TestInvoiceSeries(t *testing.T) {
	assert.Equal(t, "RTL", core.InvoiceSeries(core.InvoiceRetail).Prefix)
	assert.Equal(t, "WHL", core.InvoiceSeries(core.InvoiceWholesale).Prefix)
}

func TestParseSequence(t *testing.T) {
	stem := "RTL-20260115-"

	tests := []struct {
		number string
		want   int
		ok     bool
	}{
		{"RTL-20260115-001", 1, true},
		{"RTL-20260115-120", 120, true},
		{"RTL-20260115-003-918273645", 3, true},
		{"RTL-20260114-009", 0, false},
		{"WHL-20260115-001", 0, false},
		{"RTL-20260115-abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			got, ok := core.ParseSequence(stem, tt.number)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumberSeries_WithSuffix(t *testing.T) {
	at := time.Date(2026, time.January, 15, 10, 30, 0, 123456789, time.UTC)
	number := core.RetailInvoiceSeries.Format(at, 5)

	suffixed := core.RetailInvoiceSeries.WithSuffix(number, at)
	assert.True(t, strings.HasPrefix(suffixed, number+"-"))
	assert.NotEqual(t, number, suffixed)

	seq, ok := core.ParseSequence(core.RetailInvoiceSeries.Stem(at), suffixed)
	assert.True(t, ok)
	assert.Equal(t, 5, seq)
}
