package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReturnInput records goods or value coming back against an invoice.
// With LineID set the amount is derived from the line; otherwise Amount is
// required and stock restoration is estimated across the invoice's lines.
type ReturnInput struct {
	InvoiceID int
	LineID    *int
	Quantity  int
	Amount    decimal.Decimal
	Reason    string
	ImagePath string
	Date      time.Time
	Actor     string
}

type ReturnMutation struct {
	Return *Return        `json:"return"`
	Totals InvoiceTotals  `json:"totals"`
	Stock  *StockResult   `json:"stock,omitempty"`
	// Restored is the stock put back (or re-deducted on delete) per item.
	Restored []StockRequest `json:"restored"`
	// Estimated is set when Restored came from the proportional heuristic.
	Estimated bool `json:"estimated"`
}

// LinkedReturnAmount is the value of returning quantity units of a line:
// line total / line quantity × quantity, rounded to 2 places.
func LinkedReturnAmount(line LineItem, quantity int) decimal.Decimal {
	if line.Quantity <= 0 {
		return decimal.Zero
	}
	return roundMoney(line.Total.Mul(decimal.NewFromInt(int64(quantity))).Div(decimal.NewFromInt(int64(line.Quantity))))
}

// EstimateProportionalRestoration spreads a manual return across the tracked
// lines: round(line qty × amount / gross), at least 1 unit per line when the
// amount is positive. This is a heuristic and can mis-restore stock when an
// invoice mixes items of very different unit prices.
func EstimateProportionalRestoration(lines []LineItem, amount, gross decimal.Decimal) []StockRequest {
	if !amount.IsPositive() || !gross.IsPositive() {
		return nil
	}
	ratio := amount.Div(gross)
	var reqs []StockRequest
	for _, l := range lines {
		if l.State != StateActive || l.ItemID == nil {
			continue
		}
		qty := int(decimal.NewFromInt(int64(l.Quantity)).Mul(ratio).Round(0).IntPart())
		if qty < 1 {
			qty = 1
		}
		if qty > l.Quantity {
			qty = l.Quantity
		}
		reqs = append(reqs, StockRequest{ItemID: *l.ItemID, Quantity: qty})
	}
	return GroupRequests(reqs)
}

func (s *invoiceService) RecordReturn(ctx context.Context, in ReturnInput) (*ReturnMutation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, in.InvoiceID)
	if err != nil {
		return nil, s.fail("RecordReturn", in.InvoiceID, err)
	}
	lines, err := fetchLinesQ(ctx, tx, in.InvoiceID, true)
	if err != nil {
		return nil, s.fail("RecordReturn", in.InvoiceID, err)
	}
	returns, err := fetchReturnsQ(ctx, tx, in.InvoiceID, true)
	if err != nil {
		return nil, s.fail("RecordReturn", in.InvoiceID, err)
	}
	current := CalculateTotals(lines, returns, nil)

	var restore []StockRequest
	estimated := false
	amount := in.Amount

	if in.LineID != nil {
		var line *LineItem
		for i := range lines {
			if lines[i].ID == *in.LineID {
				line = &lines[i]
				break
			}
		}
		if line == nil {
			return nil, &RecordNotFoundError{Kind: "line", ID: *in.LineID}
		}
		if in.Quantity <= 0 {
			return nil, &InvalidQuantityError{Quantity: in.Quantity}
		}
		remaining := line.Quantity - returnedQuantities(returns)[line.ID]
		if in.Quantity > remaining {
			return nil, &ReturnExceedsAvailableError{
				InvoiceID: in.InvoiceID, LineID: line.ID,
				RequestedQuantity: in.Quantity, RemainingQuantity: remaining,
			}
		}
		amount = LinkedReturnAmount(*line, in.Quantity)
		if line.ItemID != nil {
			restore = []StockRequest{{ItemID: *line.ItemID, Quantity: in.Quantity}}
		}
	} else {
		if in.Quantity < 0 {
			return nil, &InvalidQuantityError{Quantity: in.Quantity}
		}
		amount = roundMoney(amount)
		if !amount.IsPositive() {
			return nil, &InvalidAmountError{Field: "amount", Amount: amount}
		}
	}

	if !amount.IsPositive() {
		return nil, &InvalidAmountError{Field: "amount", Amount: amount}
	}
	if remaining := current.GrossAmount.Sub(current.TotalReturns); amount.GreaterThan(remaining) {
		return nil, &ReturnExceedsAvailableError{
			InvoiceID:       in.InvoiceID,
			RequestedAmount: amount,
			RemainingAmount: remaining,
		}
	}
	if in.LineID == nil {
		restore = EstimateProportionalRestoration(lines, amount, current.GrossAmount)
		estimated = len(restore) > 0
		if estimated {
			s.log.WithFields(logrus.Fields{
				"invoice_id": in.InvoiceID,
				"amount":     amount.StringFixed(2),
				"gross":      current.GrossAmount.StringFixed(2),
				"restore":    restore,
			}).Warn("manual return: stock restoration estimated proportionally")
		}
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	var ret Return
	_, err = s.numberer.InsertWithNumberTx(ctx, tx, ReturnSeries, date, func(tx pgx.Tx, number string) error {
		return scanReturn(tx.QueryRow(ctx, `
			INSERT INTO invoice_returns (invoice_id, line_id, return_number, return_date, quantity, amount, reason, image_path, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+returnColumns,
			in.InvoiceID, in.LineID, number, date, in.Quantity, amount, in.Reason, in.ImagePath, in.Actor), &ret)
	})
	if err != nil {
		return nil, s.fail("RecordReturn", in.InvoiceID, fmt.Errorf("failed to insert return: %w", err))
	}

	var stock *StockResult
	if len(restore) > 0 {
		stock, err = s.reconciler.AddItemsForReturnTx(ctx, tx, restore, StockRef{
			InvoiceID: in.InvoiceID, InvoiceType: inv.Type, ReturnID: intPtr(ret.ID), Actor: in.Actor,
		})
		if err != nil {
			return nil, s.fail("RecordReturn", in.InvoiceID, err)
		}
	}

	totals, err := s.totals.RecalculateTx(ctx, tx, in.InvoiceID)
	if err != nil {
		return nil, s.fail("RecordReturn", in.InvoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail("RecordReturn", in.InvoiceID, fmt.Errorf("failed to commit return: %w", err))
	}
	if stock != nil {
		invalidateMovements(ctx, s.cache, stock.Movements)
	}

	s.log.WithFields(logrus.Fields{
		"invoice_id":    in.InvoiceID,
		"return_id":     ret.ID,
		"return_number": ret.Number,
		"amount":        ret.Amount.StringFixed(2),
		"estimated":     estimated,
	}).Info("return recorded")
	if restore == nil {
		restore = []StockRequest{}
	}
	return &ReturnMutation{Return: &ret, Totals: *totals, Stock: stock, Restored: restore, Estimated: estimated}, nil
}

// DeleteReturn soft-deletes a return and takes back the stock it restored.
// It fails with InsufficientStockError when that stock has been sold since.
func (s *invoiceService) DeleteReturn(ctx context.Context, returnID int, actor string) (*ReturnMutation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceID int
	err = tx.QueryRow(ctx, `
		SELECT invoice_id FROM invoice_returns WHERE id = $1 AND state = 'active'
	`, returnID).Scan(&invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &RecordNotFoundError{Kind: "return", ID: returnID}
		}
		return nil, fmt.Errorf("failed to fetch return %d: %w", returnID, err)
	}
	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("DeleteReturn", invoiceID, err)
	}

	var ret Return
	if err := scanReturn(tx.QueryRow(ctx, `
		UPDATE invoice_returns SET state = 'deleted'
		WHERE id = $1 AND state = 'active'
		RETURNING `+returnColumns, returnID), &ret); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &RecordNotFoundError{Kind: "return", ID: returnID}
		}
		return nil, s.fail("DeleteReturn", invoiceID, fmt.Errorf("failed to delete return %d: %w", returnID, err))
	}

	movements, err := movementsForReturnQ(ctx, tx, returnID)
	if err != nil {
		return nil, s.fail("DeleteReturn", invoiceID, err)
	}
	held := make(map[int]int)
	for _, m := range movements {
		held[m.ItemID] += m.Quantity
	}

	ref := StockRef{InvoiceID: invoiceID, InvoiceType: inv.Type, ReturnID: intPtr(returnID), Actor: actor}
	var batch []Movement
	var taken []StockRequest
	for _, r := range requestsFromMap(held) {
		if r.Quantity <= 0 {
			continue
		}
		batch = append(batch, ref.movement(r.ItemID, -r.Quantity, MovementAdjustment,
			fmt.Sprintf("Return %s deleted from %s invoice #%d", ret.Number, inv.Type, invoiceID)))
		taken = append(taken, r)
	}

	var stock *StockResult
	if len(batch) > 0 {
		applied, err := s.ledger.ApplyTx(ctx, tx, batch)
		if err != nil {
			return nil, s.fail("DeleteReturn", invoiceID, err)
		}
		stock = processedResult(applied)
		stock.Message = fmt.Sprintf("Re-deducted stock for %d item(s)", len(applied))
	}

	totals, err := s.totals.RecalculateTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("DeleteReturn", invoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail("DeleteReturn", invoiceID, fmt.Errorf("failed to commit return deletion: %w", err))
	}
	if stock != nil {
		invalidateMovements(ctx, s.cache, stock.Movements)
	}

	s.log.WithFields(logrus.Fields{
		"invoice_id": invoiceID,
		"return_id":  returnID,
		"actor":      actor,
	}).Info("return deleted")
	if taken == nil {
		taken = []StockRequest{}
	}
	return &ReturnMutation{Return: &ret, Totals: *totals, Stock: stock, Restored: taken}, nil
}
