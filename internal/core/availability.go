package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UnavailableReason says why a requested item cannot be supplied.
type UnavailableReason string

const (
	ReasonItemNotFound      UnavailableReason = "item-not-found"
	ReasonItemInactive      UnavailableReason = "item-inactive"
	ReasonInsufficientStock UnavailableReason = "insufficient-stock"
)

type UnavailableItem struct {
	ItemID    int               `json:"item_id"`
	Name      string            `json:"name"`
	Code      string            `json:"code"`
	Available int               `json:"available"`
	Requested int               `json:"requested"`
	Reason    UnavailableReason `json:"reason"`
}

// AvailabilityResult lists every problem found, not just the first.
type AvailabilityResult struct {
	Available        bool              `json:"available"`
	UnavailableItems []UnavailableItem `json:"unavailable_items"`
	Message          string            `json:"message"`
}

// Err converts the problems into typed errors, or nil when everything is available.
func (r *AvailabilityResult) Err() error {
	var verrs ValidationErrors
	for _, u := range r.UnavailableItems {
		switch u.Reason {
		case ReasonItemNotFound:
			verrs.add(&ItemNotFoundError{ItemID: u.ItemID})
		case ReasonItemInactive:
			verrs.add(&InactiveItemError{ItemID: u.ItemID, Name: u.Name, Code: u.Code})
		default:
			verrs.add(&InsufficientStockError{
				ItemID: u.ItemID, Name: u.Name, Code: u.Code,
				Available: u.Available, Requested: u.Requested,
			})
		}
	}
	return verrs.errOrNil()
}

// AvailabilityChecker is a lock-free pre-flight read used to report every
// stock problem before a transaction starts mutating anything.
type AvailabilityChecker interface {
	Check(ctx context.Context, requests []StockRequest) (*AvailabilityResult, error)
	// CheckForUpdate only flags the net increase of each item: decreases and
	// removals give stock back and can never fail.
	CheckForUpdate(ctx context.Context, original, updated []StockRequest) (*AvailabilityResult, error)
}

type availabilityChecker struct {
	pool *pgxpool.Pool
}

func NewAvailabilityChecker(pool *pgxpool.Pool) AvailabilityChecker {
	return &availabilityChecker{pool: pool}
}

func (c *availabilityChecker) Check(ctx context.Context, requests []StockRequest) (*AvailabilityResult, error) {
	return checkAvailabilityQ(ctx, c.pool, GroupRequests(requests))
}

func (c *availabilityChecker) CheckForUpdate(ctx context.Context, original, updated []StockRequest) (*AvailabilityResult, error) {
	return checkAvailabilityQ(ctx, c.pool, NetIncrease(original, updated))
}

// GroupRequests sums quantities per item, dropping entries without an item or
// with a non-positive quantity. The result is ordered by item id.
func GroupRequests(requests []StockRequest) []StockRequest {
	sums := make(map[int]int)
	for _, r := range requests {
		if r.ItemID <= 0 || r.Quantity <= 0 {
			continue
		}
		sums[r.ItemID] += r.Quantity
	}
	return requestsFromMap(sums)
}

// NetIncrease returns, per item, updated - original where that is positive.
func NetIncrease(original, updated []StockRequest) []StockRequest {
	orig := make(map[int]int)
	for _, r := range GroupRequests(original) {
		orig[r.ItemID] = r.Quantity
	}
	need := make(map[int]int)
	for _, r := range GroupRequests(updated) {
		if extra := r.Quantity - orig[r.ItemID]; extra > 0 {
			need[r.ItemID] = extra
		}
	}
	return requestsFromMap(need)
}

func requestsFromMap(m map[int]int) []StockRequest {
	out := make([]StockRequest, 0, len(m))
	for id, qty := range m {
		out = append(out, StockRequest{ItemID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// checkAvailabilityQ expects grouped requests.
func checkAvailabilityQ(ctx context.Context, q pgxQuerier, grouped []StockRequest) (*AvailabilityResult, error) {
	result := &AvailabilityResult{Available: true, UnavailableItems: []UnavailableItem{}}
	if len(grouped) == 0 {
		result.Message = "All items available"
		return result, nil
	}

	ids := make([]int, len(grouped))
	for i, r := range grouped {
		ids[i] = r.ItemID
	}

	type stockRow struct {
		name, code string
		quantity   int
		active     bool
	}
	found := make(map[int]stockRow, len(ids))
	rows, err := q.Query(ctx, `
		SELECT id, name, code, quantity, is_active
		FROM items
		WHERE id = ANY($1) AND state = 'active'
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock levels: %w", err)
	}
	for rows.Next() {
		var id int
		var r stockRow
		if err := rows.Scan(&id, &r.name, &r.code, &r.quantity, &r.active); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		found[id] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock levels: %w", err)
	}

	for _, req := range grouped {
		r, ok := found[req.ItemID]
		switch {
		case !ok:
			result.UnavailableItems = append(result.UnavailableItems, UnavailableItem{
				ItemID: req.ItemID, Name: "Unknown", Code: "N/A",
				Requested: req.Quantity, Reason: ReasonItemNotFound,
			})
		case !r.active:
			result.UnavailableItems = append(result.UnavailableItems, UnavailableItem{
				ItemID: req.ItemID, Name: r.name, Code: r.code,
				Available: r.quantity, Requested: req.Quantity, Reason: ReasonItemInactive,
			})
		case r.quantity < req.Quantity:
			result.UnavailableItems = append(result.UnavailableItems, UnavailableItem{
				ItemID: req.ItemID, Name: r.name, Code: r.code,
				Available: r.quantity, Requested: req.Quantity, Reason: ReasonInsufficientStock,
			})
		}
	}

	if len(result.UnavailableItems) > 0 {
		result.Available = false
		result.Message = fmt.Sprintf("%d item(s) unavailable or insufficient stock", len(result.UnavailableItems))
	} else {
		result.Message = "All items available"
	}
	return result, nil
}
