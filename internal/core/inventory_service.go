package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// StockInfoCache holds StockInfo snapshots keyed by item id. Implementations
// must treat backend failures as misses.
type StockInfoCache interface {
	Get(ctx context.Context, itemID int) (*StockInfo, bool)
	Set(ctx context.Context, info *StockInfo)
	Invalidate(ctx context.Context, itemIDs ...int)
}

// ErrDuplicateItemCode is returned when a caller-supplied item code is taken.
var ErrDuplicateItemCode = errors.New("item code already exists")

// NewItem is the input for creating a catalog item. An empty Code is
// generated from the HSN series. InitialQuantity is opening stock and is
// recorded on the item, not as a movement.
type NewItem struct {
	Name            string
	Code            string
	InitialQuantity int
	PriceRetail     decimal.Decimal
	PriceWholesale  decimal.Decimal
	GSTPercent      decimal.Decimal
	DiscountPercent decimal.Decimal
}

// InventoryService is the item catalog. Stock is only changed through the
// QuantityLedger; every method here that moves stock writes a movement.
type InventoryService interface {
	CreateItem(ctx context.Context, in NewItem) (*Item, error)
	GetItem(ctx context.Context, itemID int) (*Item, error)
	ListItems(ctx context.Context, includeInactive bool) ([]Item, error)
	SetItemActive(ctx context.Context, itemID int, active bool) error
	// DeleteItem soft-deletes the item. Its history stays in place.
	DeleteItem(ctx context.Context, itemID int) error

	Restock(ctx context.Context, itemID, quantity int, actor, notes string) (*AppliedMovement, error)
	// Adjust applies a signed correction, e.g. after a physical count.
	Adjust(ctx context.Context, itemID, delta int, actor, notes string) (*AppliedMovement, error)
	MarkDamaged(ctx context.Context, itemID, quantity int, actor, notes string) (*AppliedMovement, error)

	GetItemStockInfo(ctx context.Context, itemID int) (*StockInfo, error)
	Movements(ctx context.Context, itemID, limit int) ([]StockMovement, error)
}

type inventoryService struct {
	pool              *pgxpool.Pool
	ledger            QuantityLedger
	numberer          DocumentNumberer
	movements         MovementLog
	cache             StockInfoCache
	lowStockThreshold int
	log               logrus.FieldLogger
}

func NewInventoryService(pool *pgxpool.Pool, ledger QuantityLedger, numberer DocumentNumberer,
	movements MovementLog, cache StockInfoCache, lowStockThreshold int, log logrus.FieldLogger) InventoryService {
	return &inventoryService{
		pool:              pool,
		ledger:            ledger,
		numberer:          numberer,
		movements:         movements,
		cache:             cache,
		lowStockThreshold: lowStockThreshold,
		log:               log,
	}
}

// NewStockInfo builds the read view of an item.
func NewStockInfo(it *Item, lowStockThreshold int) StockInfo {
	return StockInfo{
		ItemID:          it.ID,
		Name:            it.Name,
		Code:            it.Code,
		CurrentStock:    it.Quantity,
		IsActive:        it.IsActive,
		IsLowStock:      it.Quantity <= lowStockThreshold,
		IsOutOfStock:    it.Quantity == 0,
		PriceRetail:     it.PriceRetail,
		PriceWholesale:  it.PriceWholesale,
		GSTPercent:      it.GSTPercent,
		DiscountPercent: it.DiscountPercent,
	}
}

func (s *inventoryService) CreateItem(ctx context.Context, in NewItem) (*Item, error) {
	var verrs ValidationErrors
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.TrimSpace(in.Code)
	if in.Name == "" {
		verrs.add(errors.New("item name is required"))
	}
	if in.InitialQuantity < 0 {
		verrs.add(&InvalidQuantityError{Quantity: in.InitialQuantity})
	}
	if in.PriceRetail.IsNegative() {
		verrs.add(fmt.Errorf("retail price cannot be negative, got %s", in.PriceRetail))
	}
	if in.PriceWholesale.IsNegative() {
		verrs.add(fmt.Errorf("wholesale price cannot be negative, got %s", in.PriceWholesale))
	}
	if err := verrs.errOrNil(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var it Item
	insert := func(tx pgx.Tx, code string) error {
		return scanItem(tx.QueryRow(ctx, `
			INSERT INTO items (name, code, quantity, initial_quantity, price_retail, price_wholesale, gst_percent, discount_percent)
			VALUES ($1, $2, $3, $3, $4, $5, $6, $7)
			RETURNING `+itemColumns,
			in.Name, code, in.InitialQuantity, in.PriceRetail, in.PriceWholesale, in.GSTPercent, in.DiscountPercent), &it)
	}

	if in.Code == "" {
		if _, err := s.numberer.InsertWithNumberTx(ctx, tx, ItemCodeSeries, time.Now(), insert); err != nil {
			return nil, fmt.Errorf("failed to create item: %w", err)
		}
	} else if err := insert(tx, in.Code); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%s: %w", in.Code, ErrDuplicateItemCode)
		}
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit item: %w", err)
	}
	s.log.WithFields(logrus.Fields{"item_id": it.ID, "code": it.Code, "initial_quantity": it.InitialQuantity}).
		Info("item created")
	return &it, nil
}

func (s *inventoryService) GetItem(ctx context.Context, itemID int) (*Item, error) {
	var it Item
	err := scanItem(s.pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1 AND state = 'active'
	`, itemID), &it)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ItemNotFoundError{ItemID: itemID}
		}
		return nil, fmt.Errorf("failed to fetch item %d: %w", itemID, err)
	}
	return &it, nil
}

func (s *inventoryService) ListItems(ctx context.Context, includeInactive bool) ([]Item, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE state = 'active' AND (is_active OR $1)
		ORDER BY name, id
	`, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := scanItem(rows, &it); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *inventoryService) SetItemActive(ctx context.Context, itemID int, active bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE items SET is_active = $1, updated_at = NOW()
		WHERE id = $2 AND state = 'active'
	`, active, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return &ItemNotFoundError{ItemID: itemID}
	}
	s.invalidate(ctx, itemID)
	return nil
}

func (s *inventoryService) DeleteItem(ctx context.Context, itemID int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE items SET state = 'deleted', is_active = false, updated_at = NOW()
		WHERE id = $1 AND state = 'active'
	`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete item %d: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return &ItemNotFoundError{ItemID: itemID}
	}
	s.invalidate(ctx, itemID)
	return nil
}

func (s *inventoryService) Restock(ctx context.Context, itemID, quantity int, actor, notes string) (*AppliedMovement, error) {
	if quantity <= 0 {
		return nil, &InvalidQuantityError{ItemID: itemID, Quantity: quantity}
	}
	if notes == "" {
		notes = "Manual restock"
	}
	return s.move(ctx, Movement{ItemID: itemID, Quantity: quantity, Kind: MovementRestock, Actor: actor, Notes: notes})
}

func (s *inventoryService) Adjust(ctx context.Context, itemID, delta int, actor, notes string) (*AppliedMovement, error) {
	if delta == 0 {
		return nil, &InvalidQuantityError{ItemID: itemID, Quantity: delta}
	}
	if notes == "" {
		notes = "Manual stock adjustment"
	}
	return s.move(ctx, Movement{ItemID: itemID, Quantity: delta, Kind: MovementAdjustment, Actor: actor, Notes: notes})
}

func (s *inventoryService) MarkDamaged(ctx context.Context, itemID, quantity int, actor, notes string) (*AppliedMovement, error) {
	if quantity <= 0 {
		return nil, &InvalidQuantityError{ItemID: itemID, Quantity: quantity}
	}
	if notes == "" {
		notes = "Marked damaged"
	}
	return s.move(ctx, Movement{ItemID: itemID, Quantity: -quantity, Kind: MovementDamaged, Actor: actor, Notes: notes})
}

func (s *inventoryService) move(ctx context.Context, m Movement) (*AppliedMovement, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	applied, err := s.ledger.ApplyTx(ctx, tx, []Movement{m})
	if err != nil {
		return nil, unwrapSingle(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock movement: %w", err)
	}
	s.invalidate(ctx, m.ItemID)
	return &applied[0], nil
}

func (s *inventoryService) GetItemStockInfo(ctx context.Context, itemID int) (*StockInfo, error) {
	if s.cache != nil {
		if info, ok := s.cache.Get(ctx, itemID); ok {
			return info, nil
		}
	}
	it, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	info := NewStockInfo(it, s.lowStockThreshold)
	if s.cache != nil {
		s.cache.Set(ctx, &info)
	}
	return &info, nil
}

func (s *inventoryService) Movements(ctx context.Context, itemID, limit int) ([]StockMovement, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.movements.ForItem(ctx, itemID, limit)
}

func (s *inventoryService) invalidate(ctx context.Context, itemIDs ...int) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, itemIDs...)
	}
}
