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

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentUPI, PaymentCard, PaymentBank, PaymentCheque, PaymentOther:
		return true
	}
	return false
}

type PaymentInput struct {
	InvoiceID int
	Amount    decimal.Decimal
	Mode      PaymentMode
	Date      time.Time
	Notes     string
	Actor     string
}

type PaymentMutation struct {
	Payment *Payment      `json:"payment"`
	Totals  InvoiceTotals `json:"totals"`
}

func (s *invoiceService) RecordPayment(ctx context.Context, in PaymentInput) (*PaymentMutation, error) {
	var verrs ValidationErrors
	in.Amount = roundMoney(in.Amount)
	if !in.Amount.IsPositive() {
		verrs.add(&InvalidAmountError{Field: "amount", Amount: in.Amount})
	}
	if in.Mode == "" {
		in.Mode = PaymentCash
	}
	if !in.Mode.Valid() {
		verrs.add(fmt.Errorf("invalid payment mode %q", in.Mode))
	}
	if err := verrs.errOrNil(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockInvoiceTx(ctx, tx, in.InvoiceID); err != nil {
		return nil, s.fail("RecordPayment", in.InvoiceID, err)
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	var p Payment
	_, err = s.numberer.InsertWithNumberTx(ctx, tx, PaymentSeries, date, func(tx pgx.Tx, number string) error {
		return scanPayment(tx.QueryRow(ctx, `
			INSERT INTO invoice_payments (invoice_id, payment_number, payment_date, amount, mode, notes, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+paymentColumns,
			in.InvoiceID, number, date, in.Amount, string(in.Mode), in.Notes, in.Actor), &p)
	})
	if err != nil {
		return nil, s.fail("RecordPayment", in.InvoiceID, fmt.Errorf("failed to insert payment: %w", err))
	}

	totals, err := s.totals.RecalculateTx(ctx, tx, in.InvoiceID)
	if err != nil {
		return nil, s.fail("RecordPayment", in.InvoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail("RecordPayment", in.InvoiceID, fmt.Errorf("failed to commit payment: %w", err))
	}

	s.log.WithFields(logrus.Fields{
		"invoice_id":     in.InvoiceID,
		"payment_number": p.Number,
		"amount":         p.Amount.StringFixed(2),
		"balance_due":    totals.BalanceDue.StringFixed(2),
	}).Info("payment recorded")
	return &PaymentMutation{Payment: &p, Totals: *totals}, nil
}

func (s *invoiceService) DeletePayment(ctx context.Context, paymentID int, actor string) (*PaymentMutation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceID int
	if err := tx.QueryRow(ctx, `
		SELECT invoice_id FROM invoice_payments WHERE id = $1 AND state = 'active'
	`, paymentID).Scan(&invoiceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &RecordNotFoundError{Kind: "payment", ID: paymentID}
		}
		return nil, fmt.Errorf("failed to fetch payment %d: %w", paymentID, err)
	}
	if _, err := lockInvoiceTx(ctx, tx, invoiceID); err != nil {
		return nil, s.fail("DeletePayment", invoiceID, err)
	}

	var p Payment
	if err := scanPayment(tx.QueryRow(ctx, `
		UPDATE invoice_payments SET state = 'deleted'
		WHERE id = $1 AND state = 'active'
		RETURNING `+paymentColumns, paymentID), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &RecordNotFoundError{Kind: "payment", ID: paymentID}
		}
		return nil, s.fail("DeletePayment", invoiceID, fmt.Errorf("failed to delete payment %d: %w", paymentID, err))
	}

	totals, err := s.totals.RecalculateTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("DeletePayment", invoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail("DeletePayment", invoiceID, fmt.Errorf("failed to commit payment deletion: %w", err))
	}

	s.log.WithFields(logrus.Fields{
		"invoice_id": invoiceID,
		"payment_id": paymentID,
		"actor":      actor,
	}).Info("payment deleted")
	return &PaymentMutation{Payment: &p, Totals: *totals}, nil
}
