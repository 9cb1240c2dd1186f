package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MovementLog reads the append-only stock movement log. Rows are written only
// by the QuantityLedger.
type MovementLog interface {
	ForItem(ctx context.Context, itemID, limit int) ([]StockMovement, error)
	ForInvoice(ctx context.Context, invoiceID int) ([]StockMovement, error)
	// Audit lists every item whose movement sum differs from quantity - initial_quantity.
	Audit(ctx context.Context) ([]StockDiscrepancy, error)
}

type movementLog struct {
	pool *pgxpool.Pool
}

func NewMovementLog(pool *pgxpool.Pool) MovementLog {
	return &movementLog{pool: pool}
}

const movementColumns = `id, item_id, quantity, movement_kind, invoice_id, invoice_type, return_id, actor, notes, created_at`

func scanMovements(rows pgx.Rows) ([]StockMovement, error) {
	defer rows.Close()
	var out []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Quantity, &m.Kind, &m.InvoiceID, &m.InvoiceType,
			&m.ReturnID, &m.Actor, &m.Notes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock movements: %w", err)
	}
	return out, nil
}

func (s *movementLog) ForItem(ctx context.Context, itemID, limit int) ([]StockMovement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE item_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements for item %d: %w", itemID, err)
	}
	return scanMovements(rows)
}

func (s *movementLog) ForInvoice(ctx context.Context, invoiceID int) ([]StockMovement, error) {
	return movementsForInvoiceQ(ctx, s.pool, invoiceID)
}

func movementsForInvoiceQ(ctx context.Context, q pgxQuerier, invoiceID int) ([]StockMovement, error) {
	rows, err := q.Query(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements for invoice %d: %w", invoiceID, err)
	}
	return scanMovements(rows)
}

func movementsForReturnQ(ctx context.Context, q pgxQuerier, returnID int) ([]StockMovement, error) {
	rows, err := q.Query(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE return_id = $1
		ORDER BY id
	`, returnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements for return %d: %w", returnID, err)
	}
	return scanMovements(rows)
}

func (s *movementLog) Audit(ctx context.Context) ([]StockDiscrepancy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.name, i.code, i.quantity, i.initial_quantity,
		       COALESCE(SUM(m.quantity), 0)::int AS movement_sum
		FROM items i
		LEFT JOIN stock_movements m ON m.item_id = i.id
		GROUP BY i.id, i.name, i.code, i.quantity, i.initial_quantity
		HAVING COALESCE(SUM(m.quantity), 0) <> i.quantity - i.initial_quantity
		ORDER BY i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to audit stock movements: %w", err)
	}
	defer rows.Close()

	var out []StockDiscrepancy
	for rows.Next() {
		var d StockDiscrepancy
		if err := rows.Scan(&d.ItemID, &d.Name, &d.Code, &d.Quantity, &d.InitialQuantity, &d.MovementSum); err != nil {
			return nil, fmt.Errorf("failed to scan stock discrepancy: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
