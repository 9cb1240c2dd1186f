package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// StockRef tags the movements written by a reconciliation call.
type StockRef struct {
	InvoiceID   int
	InvoiceType InvoiceType
	ReturnID    *int
	Actor       string
}

func (r StockRef) movement(itemID, delta int, kind MovementKind, notes string) Movement {
	m := Movement{
		ItemID:   itemID,
		Quantity: delta,
		Kind:     kind,
		ReturnID: r.ReturnID,
		Actor:    r.Actor,
		Notes:    notes,
	}
	if r.InvoiceID > 0 {
		m.InvoiceID = intPtr(r.InvoiceID)
	}
	if r.InvoiceType.Valid() {
		t := r.InvoiceType
		m.InvoiceType = &t
	}
	return m
}

// StockResult is returned by the deduct, return and restore contracts.
type StockResult struct {
	Success        bool            `json:"success"`
	ItemsProcessed []string        `json:"items_processed"`
	Errors         []string        `json:"errors"`
	Message        string          `json:"message"`
	Movements      []StockMovement `json:"movements,omitempty"`
}

// StockUpdateResult is returned by the differential update contract.
type StockUpdateResult struct {
	Success        bool            `json:"success"`
	ItemsAdded     []string        `json:"items_added"`
	ItemsRemoved   []string        `json:"items_removed"`
	ItemsIncreased []string        `json:"items_increased"`
	ItemsDecreased []string        `json:"items_decreased"`
	Errors         []string        `json:"errors"`
	Message        string          `json:"message"`
	Movements      []StockMovement `json:"movements,omitempty"`
}

// StockReconciler turns invoice-level intents into ledger mutations.
//
// The standalone methods own their transaction: business failures come back as
// Success=false with every message listed, and only infrastructure failures are
// returned as an error. The Tx variants run in the caller's transaction and
// return business failures as typed errors so the caller can roll back.
type StockReconciler interface {
	CheckStockAvailability(ctx context.Context, items []StockRequest) (*AvailabilityResult, error)
	CheckStockForUpdate(ctx context.Context, original, updated []StockRequest) (*AvailabilityResult, error)

	DeductItemsForInvoice(ctx context.Context, items []StockRequest, ref StockRef) (*StockResult, error)
	AddItemsForReturn(ctx context.Context, items []StockRequest, ref StockRef) (*StockResult, error)
	UpdateItemsForInvoice(ctx context.Context, original, updated []StockRequest, ref StockRef) (*StockUpdateResult, error)
	RestoreItemsForInvoiceDeletion(ctx context.Context, items []StockRequest, ref StockRef) (*StockResult, error)

	DeductItemsForInvoiceTx(ctx context.Context, tx pgx.Tx, items []StockRequest, ref StockRef) (*StockResult, error)
	AddItemsForReturnTx(ctx context.Context, tx pgx.Tx, items []StockRequest, ref StockRef) (*StockResult, error)
	UpdateItemsForInvoiceTx(ctx context.Context, tx pgx.Tx, original, updated []StockRequest, ref StockRef) (*StockUpdateResult, error)
	// RestoreItemsForInvoiceDeletionTx never fails on a single item: each
	// restoration runs in its own savepoint and failures are logged and listed.
	RestoreItemsForInvoiceDeletionTx(ctx context.Context, tx pgx.Tx, items []StockRequest, ref StockRef) (*StockResult, error)
}

type stockReconciler struct {
	pool    *pgxpool.Pool
	ledger  QuantityLedger
	checker AvailabilityChecker
	cache   StockInfoCache
	log     logrus.FieldLogger
}

func NewStockReconciler(pool *pgxpool.Pool, ledger QuantityLedger, checker AvailabilityChecker,
	cache StockInfoCache, log logrus.FieldLogger) StockReconciler {
	return &stockReconciler{pool: pool, ledger: ledger, checker: checker, cache: cache, log: log}
}

func (s *stockReconciler) CheckStockAvailability(ctx context.Context, items []StockRequest) (*AvailabilityResult, error) {
	return s.checker.Check(ctx, items)
}

func (s *stockReconciler) CheckStockForUpdate(ctx context.Context, original, updated []StockRequest) (*AvailabilityResult, error) {
	return s.checker.CheckForUpdate(ctx, original, updated)
}

// validateEntries reports entries without an item id or with a non-positive quantity.
func validateEntries(items []StockRequest) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	var verrs ValidationErrors
	for _, it := range items {
		if it.ItemID <= 0 {
			verrs.add(ErrMissingItemID)
			continue
		}
		if it.Quantity <= 0 {
			verrs.add(&InvalidQuantityError{ItemID: it.ItemID, Quantity: it.Quantity})
		}
	}
	return verrs.errOrNil()
}

func (s *stockReconciler) DeductItemsForInvoiceTx(ctx context.Context, tx pgx.Tx, items []StockRequest, ref StockRef) (*StockResult, error) {
	if err := validateEntries(items); err != nil {
		return nil, err
	}
	kind := SaleMovementKind(ref.InvoiceType)
	var batch []Movement
	for _, it := range GroupRequests(items) {
		batch = append(batch, ref.movement(it.ItemID, -it.Quantity, kind,
			fmt.Sprintf("Stock deducted for %s invoice #%d", ref.InvoiceType, ref.InvoiceID)))
	}
	applied, err := s.ledger.ApplyTx(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	res := processedResult(applied)
	res.Message = fmt.Sprintf("Successfully deducted stock for %d item(s)", len(res.ItemsProcessed))
	return res, nil
}

func (s *stockReconciler) AddItemsForReturnTx(ctx context.Context, tx pgx.Tx, items []StockRequest, ref StockRef) (*StockResult, error) {
	if err := validateEntries(items); err != nil {
		return nil, err
	}
	notes := fmt.Sprintf("Stock returned from %s invoice #%d", ref.InvoiceType, ref.InvoiceID)
	if ref.ReturnID != nil {
		notes = fmt.Sprintf("%s (Return #%d)", notes, *ref.ReturnID)
	}
	var batch []Movement
	for _, it := range GroupRequests(items) {
		batch = append(batch, ref.movement(it.ItemID, it.Quantity, MovementReturn, notes))
	}
	applied, err := s.ledger.ApplyTx(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	res := processedResult(applied)
	res.Message = fmt.Sprintf("Successfully returned stock for %d item(s)", len(res.ItemsProcessed))
	return res, nil
}

func (s *stockReconciler) UpdateItemsForInvoiceTx(ctx context.Context, tx pgx.Tx, original, updated []StockRequest, ref StockRef) (*StockUpdateResult, error) {
	plan := PlanStockUpdate(original, updated)
	res := &StockUpdateResult{
		Success:        true,
		ItemsAdded:     []string{},
		ItemsRemoved:   []string{},
		ItemsIncreased: []string{},
		ItemsDecreased: []string{},
		Errors:         []string{},
	}
	if plan.Empty() {
		res.Message = "No stock changes required"
		return res, nil
	}

	// Additions first, then deductions. ApplyTx validates the whole batch
	// before writing, so a failing deduction leaves no addition behind.
	var batch []Movement
	var reasons []ChangeReason
	for _, c := range plan.Additions {
		notes := fmt.Sprintf("Quantity decreased in %s invoice #%d", ref.InvoiceType, ref.InvoiceID)
		if c.Reason == ChangeRemoved {
			notes = fmt.Sprintf("Item removed from %s invoice #%d", ref.InvoiceType, ref.InvoiceID)
		}
		batch = append(batch, ref.movement(c.ItemID, c.Quantity, MovementAdjustment, notes))
		reasons = append(reasons, c.Reason)
	}
	for _, c := range plan.Deductions {
		kind := MovementAdjustment
		notes := fmt.Sprintf("Quantity increased in %s invoice #%d", ref.InvoiceType, ref.InvoiceID)
		if c.Reason == ChangeAdded {
			kind = SaleMovementKind(ref.InvoiceType)
			notes = fmt.Sprintf("Item added to %s invoice #%d", ref.InvoiceType, ref.InvoiceID)
		}
		batch = append(batch, ref.movement(c.ItemID, -c.Quantity, kind, notes))
		reasons = append(reasons, c.Reason)
	}

	applied, err := s.ledger.ApplyTx(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	for i, a := range applied {
		switch reasons[i] {
		case ChangeAdded:
			res.ItemsAdded = append(res.ItemsAdded, a.Item.Name)
		case ChangeRemoved:
			res.ItemsRemoved = append(res.ItemsRemoved, a.Item.Name)
		case ChangeIncreased:
			res.ItemsIncreased = append(res.ItemsIncreased, a.Item.Name)
		case ChangeDecreased:
			res.ItemsDecreased = append(res.ItemsDecreased, a.Item.Name)
		}
		res.Movements = append(res.Movements, a.Movement)
	}
	res.Message = fmt.Sprintf("Successfully processed %d stock adjustment(s)", len(applied))
	return res, nil
}

func (s *stockReconciler) RestoreItemsForInvoiceDeletionTx(ctx context.Context, tx pgx.Tx, items []StockRequest, ref StockRef) (*StockResult, error) {
	res := &StockResult{Success: true, ItemsProcessed: []string{}, Errors: []string{}}
	grouped := GroupRequests(items)
	if len(grouped) == 0 {
		res.Message = "No items to restore"
		return res, nil
	}

	notes := fmt.Sprintf("Stock restored due to %s invoice #%d deletion", ref.InvoiceType, ref.InvoiceID)
	for _, it := range grouped {
		applied, err := s.restoreOne(ctx, tx, ref.movement(it.ItemID, it.Quantity, MovementReturn, notes))
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"invoice_id": ref.InvoiceID,
				"item_id":    it.ItemID,
				"quantity":   it.Quantity,
				"operation":  "restore_for_invoice_deletion",
			}).WithError(err).Warn("stock could not be restored; continuing with deletion")
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.ItemsProcessed = append(res.ItemsProcessed, applied.Item.Name)
		res.Movements = append(res.Movements, applied.Movement)
	}
	res.Message = fmt.Sprintf("Successfully restored stock for %d item(s)", len(res.ItemsProcessed))
	return res, nil
}

// restoreOne adds stock inside a savepoint so one failed item does not abort
// the enclosing transaction.
func (s *stockReconciler) restoreOne(ctx context.Context, tx pgx.Tx, m Movement) (*AppliedMovement, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open savepoint: %w", err)
	}
	defer sp.Rollback(ctx)

	applied, err := s.ledger.AddTx(ctx, sp, m)
	if err != nil {
		return nil, err
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return applied, nil
}

// ── Standalone variants ───────────────────────────────────────────────────────

func (s *stockReconciler) DeductItemsForInvoice(ctx context.Context, items []StockRequest, ref StockRef) (*StockResult, error) {
	return s.runStock(ctx, "DeductItemsForInvoice", ref, func(tx pgx.Tx) (*StockResult, error) {
		return s.DeductItemsForInvoiceTx(ctx, tx, items, ref)
	}, "Stock deduction failed. Transaction rolled back.")
}

func (s *stockReconciler) AddItemsForReturn(ctx context.Context, items []StockRequest, ref StockRef) (*StockResult, error) {
	return s.runStock(ctx, "AddItemsForReturn", ref, func(tx pgx.Tx) (*StockResult, error) {
		return s.AddItemsForReturnTx(ctx, tx, items, ref)
	}, "Stock return failed. Transaction rolled back.")
}

func (s *stockReconciler) RestoreItemsForInvoiceDeletion(ctx context.Context, items []StockRequest, ref StockRef) (*StockResult, error) {
	return s.runStock(ctx, "RestoreItemsForInvoiceDeletion", ref, func(tx pgx.Tx) (*StockResult, error) {
		return s.RestoreItemsForInvoiceDeletionTx(ctx, tx, items, ref)
	}, "Stock restoration failed. Transaction rolled back.")
}

func (s *stockReconciler) UpdateItemsForInvoice(ctx context.Context, original, updated []StockRequest, ref StockRef) (*StockUpdateResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := s.UpdateItemsForInvoiceTx(ctx, tx, original, updated, ref)
	if err != nil {
		if IsValidationError(err) {
			return &StockUpdateResult{
				ItemsAdded:     []string{},
				ItemsRemoved:   []string{},
				ItemsIncreased: []string{},
				ItemsDecreased: []string{},
				Errors:         errorMessages(err),
				Message:        "Invoice update failed. Transaction rolled back.",
			}, nil
		}
		s.logFailure("UpdateItemsForInvoice", ref, err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock update: %w", err)
	}
	s.invalidate(ctx, res.Movements)
	return res, nil
}

func (s *stockReconciler) runStock(ctx context.Context, op string, ref StockRef,
	fn func(tx pgx.Tx) (*StockResult, error), failMsg string) (*StockResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := fn(tx)
	if err != nil {
		if IsValidationError(err) {
			return &StockResult{
				ItemsProcessed: []string{},
				Errors:         errorMessages(err),
				Message:        failMsg,
			}, nil
		}
		s.logFailure(op, ref, err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", op, err)
	}
	s.invalidate(ctx, res.Movements)
	return res, nil
}

func (s *stockReconciler) logFailure(op string, ref StockRef, err error) {
	s.log.WithFields(logrus.Fields{
		"operation":    op,
		"invoice_id":   ref.InvoiceID,
		"invoice_type": ref.InvoiceType,
		"return_id":    derefInt(ref.ReturnID),
	}).WithError(err).Error("stock reconciliation failed")
}

func (s *stockReconciler) invalidate(ctx context.Context, movements []StockMovement) {
	invalidateMovements(ctx, s.cache, movements)
}

func invalidateMovements(ctx context.Context, cache StockInfoCache, movements []StockMovement) {
	if cache == nil || len(movements) == 0 {
		return
	}
	ids := make([]int, 0, len(movements))
	for _, m := range movements {
		ids = append(ids, m.ItemID)
	}
	cache.Invalidate(ctx, distinctSorted(ids)...)
}

func processedResult(applied []AppliedMovement) *StockResult {
	res := &StockResult{Success: true, ItemsProcessed: []string{}, Errors: []string{}}
	for _, a := range applied {
		res.ItemsProcessed = append(res.ItemsProcessed, a.Item.Name)
		res.Movements = append(res.Movements, a.Movement)
	}
	return res
}
