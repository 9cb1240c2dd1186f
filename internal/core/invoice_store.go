package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const invoiceColumns = `id, invoice_type, invoice_number, party_id, customer_name, customer_mobile, invoice_date,
	subtotal, gst_total, discount_total, gross_amount, total_returns, total_amount, total_paid, balance_due, is_paid,
	limit_enabled, limit_amount, notes, state, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row, inv *Invoice) error {
	t := &inv.Totals
	return row.Scan(&inv.ID, &inv.Type, &inv.Number, &inv.PartyID, &inv.CustomerName, &inv.CustomerMobile, &inv.Date,
		&t.Subtotal, &t.GSTTotal, &t.DiscountTotal, &t.GrossAmount, &t.TotalReturns, &t.TotalAmount, &t.TotalPaid,
		&t.BalanceDue, &t.IsPaid,
		&inv.LimitEnabled, &inv.LimitAmount, &inv.Notes, &inv.State, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
}

// lockInvoiceTx locks an active invoice row for the rest of the transaction.
func lockInvoiceTx(ctx context.Context, tx pgx.Tx, invoiceID int) (*Invoice, error) {
	var inv Invoice
	err := scanInvoice(tx.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1 AND state = 'active'
		FOR UPDATE
	`, invoiceID), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &InvoiceNotFoundError{InvoiceID: invoiceID}
		}
		return nil, fmt.Errorf("failed to lock invoice %d: %w", invoiceID, err)
	}
	return &inv, nil
}

func fetchInvoiceQ(ctx context.Context, q pgxQuerier, invoiceID int) (*Invoice, error) {
	var inv Invoice
	err := scanInvoice(q.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1 AND state = 'active'
	`, invoiceID), &inv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &InvoiceNotFoundError{InvoiceID: invoiceID}
		}
		return nil, fmt.Errorf("failed to fetch invoice %d: %w", invoiceID, err)
	}
	return &inv, nil
}

// loadInvoiceQ fetches an active invoice with its active lines, returns and payments.
func loadInvoiceQ(ctx context.Context, q pgxQuerier, invoiceID int) (*Invoice, error) {
	inv, err := fetchInvoiceQ(ctx, q, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Lines, err = fetchLinesQ(ctx, q, invoiceID, true); err != nil {
		return nil, err
	}
	if inv.Returns, err = fetchReturnsQ(ctx, q, invoiceID, true); err != nil {
		return nil, err
	}
	if inv.Payments, err = fetchPaymentsQ(ctx, q, invoiceID, true); err != nil {
		return nil, err
	}
	return inv, nil
}

func fetchLinesQ(ctx context.Context, q pgxQuerier, invoiceID int, activeOnly bool) ([]LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id, l.invoice_id, l.line_number, l.item_id, COALESCE(i.name, ''), l.manual_name,
		       l.quantity, l.rate, l.gst_percent, l.discount_percent,
		       l.base_amount, l.gst_amount, l.discount_amount, l.total, l.state
		FROM invoice_lines l
		LEFT JOIN items i ON i.id = l.item_id
		WHERE l.invoice_id = $1 AND (NOT $2 OR l.state = 'active')
		ORDER BY l.line_number, l.id
	`, invoiceID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var lines []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNumber, &l.ItemID, &l.ItemName, &l.ManualName,
			&l.Quantity, &l.Rate, &l.GSTPercent, &l.DiscountPercent,
			&l.BaseAmount, &l.GSTAmount, &l.DiscountAmount, &l.Total, &l.State); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice lines: %w", err)
	}
	return lines, nil
}

const returnColumns = `id, invoice_id, line_id, return_number, return_date, quantity, amount, reason, image_path, state, created_by, created_at`

func scanReturn(row pgx.Row, r *Return) error {
	return row.Scan(&r.ID, &r.InvoiceID, &r.LineID, &r.Number, &r.Date, &r.Quantity, &r.Amount,
		&r.Reason, &r.ImagePath, &r.State, &r.CreatedBy, &r.CreatedAt)
}

func fetchReturnsQ(ctx context.Context, q pgxQuerier, invoiceID int, activeOnly bool) ([]Return, error) {
	rows, err := q.Query(ctx, `
		SELECT `+returnColumns+`
		FROM invoice_returns
		WHERE invoice_id = $1 AND (NOT $2 OR state = 'active')
		ORDER BY id
	`, invoiceID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var out []Return
	for rows.Next() {
		var r Return
		if err := scanReturn(rows, &r); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating returns: %w", err)
	}
	return out, nil
}

const paymentColumns = `id, invoice_id, payment_number, payment_date, amount, mode, notes, state, created_by, created_at`

func scanPayment(row pgx.Row, p *Payment) error {
	return row.Scan(&p.ID, &p.InvoiceID, &p.Number, &p.Date, &p.Amount, &p.Mode, &p.Notes,
		&p.State, &p.CreatedBy, &p.CreatedAt)
}

func fetchPaymentsQ(ctx context.Context, q pgxQuerier, invoiceID int, activeOnly bool) ([]Payment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM invoice_payments
		WHERE invoice_id = $1 AND (NOT $2 OR state = 'active')
		ORDER BY id
	`, invoiceID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return out, nil
}

// stockRequests returns the inventory-tracked quantities of the active lines.
func stockRequests(lines []LineItem) []StockRequest {
	var out []StockRequest
	for _, l := range lines {
		if l.State == StateActive && l.ItemID != nil {
			out = append(out, StockRequest{ItemID: *l.ItemID, Quantity: l.Quantity})
		}
	}
	return out
}

// returnedQuantities sums active linked-return quantities per line id.
func returnedQuantities(returns []Return) map[int]int {
	out := make(map[int]int)
	for _, r := range returns {
		if r.State == StateActive && r.LineID != nil {
			out[*r.LineID] += r.Quantity
		}
	}
	return out
}
