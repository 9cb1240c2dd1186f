package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// roundMoney quantizes to 2 decimal places, half away from zero (half-up for
// the non-negative amounts handled here).
func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineAmounts are the derived monetary fields of a line item.
// Discount is a percentage of the line base amount.
type LineAmounts struct {
	BaseAmount     decimal.Decimal `json:"base_amount"`
	GSTAmount      decimal.Decimal `json:"gst_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
}

// ComputeLineAmounts derives a line's amounts:
//
//	base     = quantity × rate
//	gst      = base × gstPercent / 100
//	discount = base × discountPercent / 100
//	total    = base + gst − discount
//
// Each component is rounded to 2 places before the total is formed.
func ComputeLineAmounts(quantity int, rate, gstPercent, discountPercent decimal.Decimal) LineAmounts {
	base := roundMoney(decimal.NewFromInt(int64(quantity)).Mul(rate))
	gst := roundMoney(base.Mul(gstPercent).Div(hundred))
	discount := roundMoney(base.Mul(discountPercent).Div(hundred))
	return LineAmounts{
		BaseAmount:     base,
		GSTAmount:      gst,
		DiscountAmount: discount,
		Total:          roundMoney(base.Add(gst).Sub(discount)),
	}
}

// CalculateTotals derives an invoice's aggregates from its active lines,
// returns and payments. It is a pure function: same input, same output.
func CalculateTotals(lines []LineItem, returns []Return, payments []Payment) InvoiceTotals {
	var t InvoiceTotals
	for _, l := range lines {
		if l.State != StateActive {
			continue
		}
		t.Subtotal = t.Subtotal.Add(l.BaseAmount)
		t.GSTTotal = t.GSTTotal.Add(l.GSTAmount)
		t.DiscountTotal = t.DiscountTotal.Add(l.DiscountAmount)
		t.GrossAmount = t.GrossAmount.Add(l.Total)
	}
	for _, r := range returns {
		if r.State == StateActive {
			t.TotalReturns = t.TotalReturns.Add(r.Amount)
		}
	}
	for _, p := range payments {
		if p.State == StateActive {
			t.TotalPaid = t.TotalPaid.Add(p.Amount)
		}
	}

	t.Subtotal = roundMoney(t.Subtotal)
	t.GSTTotal = roundMoney(t.GSTTotal)
	t.DiscountTotal = roundMoney(t.DiscountTotal)
	t.GrossAmount = roundMoney(t.GrossAmount)
	t.TotalReturns = roundMoney(t.TotalReturns)
	t.TotalPaid = roundMoney(t.TotalPaid)
	t.TotalAmount = roundMoney(decimal.Max(t.GrossAmount.Sub(t.TotalReturns), decimal.Zero))
	t.BalanceDue = roundMoney(decimal.Max(t.TotalAmount.Sub(t.TotalPaid), decimal.Zero))
	t.IsPaid = t.TotalPaid.GreaterThanOrEqual(t.TotalAmount)
	return t
}

// Equal reports whether two totals carry identical values.
func (t InvoiceTotals) Equal(o InvoiceTotals) bool {
	return t.Subtotal.Equal(o.Subtotal) &&
		t.GSTTotal.Equal(o.GSTTotal) &&
		t.DiscountTotal.Equal(o.DiscountTotal) &&
		t.GrossAmount.Equal(o.GrossAmount) &&
		t.TotalReturns.Equal(o.TotalReturns) &&
		t.TotalAmount.Equal(o.TotalAmount) &&
		t.TotalPaid.Equal(o.TotalPaid) &&
		t.BalanceDue.Equal(o.BalanceDue) &&
		t.IsPaid == o.IsPaid
}

// checkLimit returns InvoiceLimitExceededError when an enabled limit is below the total.
func checkLimit(invoiceID int, totals InvoiceTotals, enabled bool, limit *decimal.Decimal) error {
	if !enabled || limit == nil {
		return nil
	}
	if totals.TotalAmount.GreaterThan(*limit) {
		return &InvoiceLimitExceededError{InvoiceID: invoiceID, Total: totals.TotalAmount, Limit: *limit}
	}
	return nil
}

// TotalsCalculator recomputes and persists an invoice's aggregates. Every
// operation that mutates lines, returns or payments calls RecalculateTx
// explicitly before committing.
type TotalsCalculator interface {
	RecalculateTx(ctx context.Context, tx pgx.Tx, invoiceID int) (*InvoiceTotals, error)
}

type totalsCalculator struct{}

func NewTotalsCalculator() TotalsCalculator {
	return &totalsCalculator{}
}

func (c *totalsCalculator) RecalculateTx(ctx context.Context, tx pgx.Tx, invoiceID int) (*InvoiceTotals, error) {
	lines, err := fetchLinesQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, err
	}
	returns, err := fetchReturnsQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, err
	}
	payments, err := fetchPaymentsQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, err
	}

	totals := CalculateTotals(lines, returns, payments)

	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET subtotal = $1, gst_total = $2, discount_total = $3, gross_amount = $4,
		    total_returns = $5, total_amount = $6, total_paid = $7, balance_due = $8,
		    is_paid = $9, updated_at = NOW()
		WHERE id = $10
	`, totals.Subtotal, totals.GSTTotal, totals.DiscountTotal, totals.GrossAmount,
		totals.TotalReturns, totals.TotalAmount, totals.TotalPaid, totals.BalanceDue,
		totals.IsPaid, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist totals for invoice %d: %w", invoiceID, err)
	}
	return &totals, nil
}
