package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Movement is a requested stock change. Quantity is signed: positive adds
// stock, negative deducts it. The remaining fields tag the movement record.
type Movement struct {
	ItemID      int
	Quantity    int
	Kind        MovementKind
	InvoiceID   *int
	InvoiceType *InvoiceType
	ReturnID    *int
	Actor       string
	Notes       string
}

// AppliedMovement is the outcome of one ledger mutation: the item as it stands
// after the change and the movement record appended for it.
type AppliedMovement struct {
	Item     Item
	Movement StockMovement
}

// QuantityLedger is the only writer of items.quantity. Every mutation locks the
// item row, checks it, updates it and appends exactly one stock movement, all in
// the caller's transaction.
type QuantityLedger interface {
	// LockItemsTx takes row locks on the given items in ascending id order and
	// returns the rows found. Deleted items are returned with their state so the
	// caller can tell "deleted" from "missing".
	LockItemsTx(ctx context.Context, tx pgx.Tx, itemIDs []int) (map[int]*Item, error)

	// DeductTx removes quantity units from one item.
	DeductTx(ctx context.Context, tx pgx.Tx, m Movement) (*AppliedMovement, error)
	// AddTx puts quantity units back on one item. There is no upper bound.
	AddTx(ctx context.Context, tx pgx.Tx, m Movement) (*AppliedMovement, error)

	// ApplyTx validates the whole batch against the locked rows first and
	// returns every failure at once as *ValidationErrors. Nothing is written
	// unless the whole batch is valid.
	ApplyTx(ctx context.Context, tx pgx.Tx, batch []Movement) ([]AppliedMovement, error)
}

type quantityLedger struct {
	log logrus.FieldLogger
}

func NewQuantityLedger(log logrus.FieldLogger) QuantityLedger {
	return &quantityLedger{log: log}
}

const itemColumns = `id, name, code, quantity, initial_quantity, price_retail, price_wholesale,
	gst_percent, discount_percent, is_active, state, created_at, updated_at`

func scanItem(row pgx.Row, it *Item) error {
	return row.Scan(&it.ID, &it.Name, &it.Code, &it.Quantity, &it.InitialQuantity,
		&it.PriceRetail, &it.PriceWholesale, &it.GSTPercent, &it.DiscountPercent,
		&it.IsActive, &it.State, &it.CreatedAt, &it.UpdatedAt)
}

func (l *quantityLedger) LockItemsTx(ctx context.Context, tx pgx.Tx, itemIDs []int) (map[int]*Item, error) {
	ids := distinctSorted(itemIDs)
	items := make(map[int]*Item, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := scanItem(rows, &it); err != nil {
			return nil, fmt.Errorf("failed to scan locked item: %w", err)
		}
		items[it.ID] = &it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locked items: %w", err)
	}
	return items, nil
}

func (l *quantityLedger) DeductTx(ctx context.Context, tx pgx.Tx, m Movement) (*AppliedMovement, error) {
	if m.Quantity <= 0 {
		return nil, &InvalidQuantityError{ItemID: m.ItemID, Quantity: m.Quantity}
	}
	m.Quantity = -m.Quantity
	applied, err := l.ApplyTx(ctx, tx, []Movement{m})
	if err != nil {
		return nil, unwrapSingle(err)
	}
	return &applied[0], nil
}

func (l *quantityLedger) AddTx(ctx context.Context, tx pgx.Tx, m Movement) (*AppliedMovement, error) {
	if m.Quantity <= 0 {
		return nil, &InvalidQuantityError{ItemID: m.ItemID, Quantity: m.Quantity}
	}
	applied, err := l.ApplyTx(ctx, tx, []Movement{m})
	if err != nil {
		return nil, unwrapSingle(err)
	}
	return &applied[0], nil
}

func (l *quantityLedger) ApplyTx(ctx context.Context, tx pgx.Tx, batch []Movement) ([]AppliedMovement, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	ids := make([]int, 0, len(batch))
	for _, m := range batch {
		ids = append(ids, m.ItemID)
	}
	items, err := l.LockItemsTx(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	// Phase 1: validate the batch in order against a running balance per item.
	var verrs ValidationErrors
	running := make(map[int]int, len(items))
	for id, it := range items {
		running[id] = it.Quantity
	}
	reported := make(map[int]bool)
	for _, m := range batch {
		if m.Quantity == 0 {
			verrs.add(&InvalidQuantityError{ItemID: m.ItemID, Quantity: m.Quantity})
			continue
		}
		it, ok := items[m.ItemID]
		if !ok || it.State != StateActive {
			if !reported[m.ItemID] {
				verrs.add(&ItemNotFoundError{ItemID: m.ItemID})
				reported[m.ItemID] = true
			}
			continue
		}
		if m.Quantity > 0 {
			running[m.ItemID] += m.Quantity
			continue
		}
		if !it.IsActive {
			if !reported[m.ItemID] {
				verrs.add(&InactiveItemError{ItemID: it.ID, Name: it.Name, Code: it.Code})
				reported[m.ItemID] = true
			}
			continue
		}
		need := -m.Quantity
		if running[m.ItemID] < need {
			verrs.add(&InsufficientStockError{
				ItemID: it.ID, Name: it.Name, Code: it.Code,
				Available: running[m.ItemID], Requested: need,
			})
			continue
		}
		running[m.ItemID] -= need
	}
	if err := verrs.errOrNil(); err != nil {
		return nil, err
	}

	// Phase 2: apply. The CHECK (quantity >= 0) constraint backs the checks above.
	applied := make([]AppliedMovement, 0, len(batch))
	for _, m := range batch {
		it := items[m.ItemID]
		if err := tx.QueryRow(ctx, `
			UPDATE items SET quantity = quantity + $1, updated_at = NOW()
			WHERE id = $2
			RETURNING quantity, updated_at
		`, m.Quantity, m.ItemID).Scan(&it.Quantity, &it.UpdatedAt); err != nil {
			l.log.WithFields(logrus.Fields{
				"item_id":  m.ItemID,
				"delta":    m.Quantity,
				"invoice":  derefInt(m.InvoiceID),
				"function": "ApplyTx",
			}).WithError(err).Error("stock update failed")
			return nil, fmt.Errorf("failed to update quantity for item %d: %w", m.ItemID, err)
		}

		mv, err := appendMovementTx(ctx, tx, m)
		if err != nil {
			return nil, err
		}
		applied = append(applied, AppliedMovement{Item: *it, Movement: *mv})

		l.log.WithFields(logrus.Fields{
			"item_id":      it.ID,
			"code":         it.Code,
			"delta":        m.Quantity,
			"new_quantity": it.Quantity,
			"kind":         m.Kind,
			"invoice_id":   derefInt(m.InvoiceID),
			"return_id":    derefInt(m.ReturnID),
			"actor":        m.Actor,
		}).Info("stock movement applied")
	}
	return applied, nil
}

// appendMovementTx inserts one row into the append-only stock movement log.
func appendMovementTx(ctx context.Context, tx pgx.Tx, m Movement) (*StockMovement, error) {
	mv := StockMovement{
		ItemID:      m.ItemID,
		Quantity:    m.Quantity,
		Kind:        m.Kind,
		InvoiceID:   m.InvoiceID,
		InvoiceType: m.InvoiceType,
		ReturnID:    m.ReturnID,
		Actor:       m.Actor,
		Notes:       m.Notes,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_movements (item_id, quantity, movement_kind, invoice_id, invoice_type, return_id, actor, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, m.ItemID, m.Quantity, string(m.Kind), m.InvoiceID, m.InvoiceType, m.ReturnID, m.Actor, m.Notes).
		Scan(&mv.ID, &mv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert stock movement for item %d: %w", m.ItemID, err)
	}
	return &mv, nil
}

// unwrapSingle returns the lone member of a one-element ValidationErrors.
func unwrapSingle(err error) error {
	var ve *ValidationErrors
	if errors.As(err, &ve) && len(ve.Errs) == 1 {
		return ve.Errs[0]
	}
	return err
}

func distinctSorted(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func intPtr(v int) *int {
	return &v
}
