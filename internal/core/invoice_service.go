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

// LineInput is one submitted invoice line. ItemID links the line to the
// catalog; ManualName makes it an untracked line. A zero Rate and unset
// percentages fall back to the catalog values for tracked lines.
// LineID, on update, keeps an existing line in place.
type LineInput struct {
	LineID          *int
	ItemID          *int
	ManualName      string
	Quantity        int
	Rate            decimal.Decimal
	GSTPercent      decimal.NullDecimal
	DiscountPercent decimal.NullDecimal
}

// InvoiceInput is used for both create and update. Type is ignored on update.
type InvoiceInput struct {
	Type           InvoiceType
	PartyID        *int
	CustomerName   string
	CustomerMobile string
	Date           time.Time
	LimitEnabled   bool
	LimitAmount    *decimal.Decimal
	Notes          string
	Actor          string
	Lines          []LineInput
}

type InvoiceFilter struct {
	Type    *InvoiceType
	PartyID *int
	Limit   int
}

// InvoiceMutation is the outcome of a create or update. Totals is the result
// of the explicit recomputation step run before commit.
type InvoiceMutation struct {
	Invoice     *Invoice           `json:"invoice"`
	Totals      InvoiceTotals      `json:"totals"`
	Stock       *StockResult       `json:"stock,omitempty"`
	StockUpdate *StockUpdateResult `json:"stock_update,omitempty"`
}

type InvoiceDeletion struct {
	InvoiceID int          `json:"invoice_id"`
	Number    string       `json:"invoice_number"`
	Stock     *StockResult `json:"stock"`
}

// InvoiceService owns the invoice lifecycle. Every mutation runs in one
// transaction: availability is checked before anything is written, the ledger
// re-checks under row locks, and totals are recomputed before commit.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, in InvoiceInput) (*InvoiceMutation, error)
	UpdateInvoice(ctx context.Context, invoiceID int, in InvoiceInput) (*InvoiceMutation, error)
	// DeleteInvoice restores stock best-effort and soft-deletes the invoice
	// with its lines, returns and payments.
	DeleteInvoice(ctx context.Context, invoiceID int, actor string) (*InvoiceDeletion, error)

	GetInvoice(ctx context.Context, invoiceID int) (*Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	RecalculateInvoice(ctx context.Context, invoiceID int) (*InvoiceTotals, error)

	RecordReturn(ctx context.Context, in ReturnInput) (*ReturnMutation, error)
	DeleteReturn(ctx context.Context, returnID int, actor string) (*ReturnMutation, error)

	RecordPayment(ctx context.Context, in PaymentInput) (*PaymentMutation, error)
	DeletePayment(ctx context.Context, paymentID int, actor string) (*PaymentMutation, error)
}

type invoiceService struct {
	pool       *pgxpool.Pool
	ledger     QuantityLedger
	reconciler StockReconciler
	totals     TotalsCalculator
	numberer   DocumentNumberer
	cache      StockInfoCache
	log        logrus.FieldLogger
}

func NewInvoiceService(pool *pgxpool.Pool, ledger QuantityLedger, reconciler StockReconciler, totals TotalsCalculator,
	numberer DocumentNumberer, cache StockInfoCache, log logrus.FieldLogger) InvoiceService {
	return &invoiceService{
		pool:       pool,
		ledger:     ledger,
		reconciler: reconciler,
		totals:     totals,
		numberer:   numberer,
		cache:      cache,
		log:        log,
	}
}

// ── Validation and line resolution ───────────────────────────────────────────

// ValidateInvoiceInput checks the header and every line, returning all failures at once.
func ValidateInvoiceInput(in InvoiceInput) error {
	var verrs ValidationErrors
	if !in.Type.Valid() {
		verrs.add(fmt.Errorf("invalid invoice type %q", in.Type))
	}
	if in.Type == InvoiceWholesale && (in.PartyID == nil || *in.PartyID <= 0) {
		verrs.add(errors.New("wholesale invoice requires a party"))
	}
	if in.LimitEnabled && (in.LimitAmount == nil || !in.LimitAmount.IsPositive()) {
		amt := decimal.Zero
		if in.LimitAmount != nil {
			amt = *in.LimitAmount
		}
		verrs.add(&InvalidAmountError{Field: "limit_amount", Amount: amt})
	}
	if len(in.Lines) == 0 {
		verrs.add(ErrNoItems)
	}

	for i, li := range in.Lines {
		n := i + 1
		switch {
		case li.ItemID == nil && strings.TrimSpace(li.ManualName) == "":
			verrs.add(&LineError{Line: n, Msg: "select an item or enter a manual name"})
		case li.ItemID != nil && *li.ItemID <= 0:
			verrs.add(&LineError{Line: n, Msg: fmt.Sprintf("invalid item id %d", *li.ItemID)})
		}
		if li.Quantity <= 0 {
			verrs.add(&InvalidQuantityError{Line: n, Quantity: li.Quantity})
		}
		if li.Rate.IsNegative() {
			verrs.add(&LineError{Line: n, Msg: fmt.Sprintf("rate cannot be negative, got %s", li.Rate)})
		}
		if !validPercent(li.GSTPercent) {
			verrs.add(&LineError{Line: n, Msg: fmt.Sprintf("gst percent must be between 0 and 100, got %s", li.GSTPercent.Decimal)})
		}
		if !validPercent(li.DiscountPercent) {
			verrs.add(&LineError{Line: n, Msg: fmt.Sprintf("discount percent must be between 0 and 100, got %s", li.DiscountPercent.Decimal)})
		}
	}
	return verrs.errOrNil()
}

func validPercent(p decimal.NullDecimal) bool {
	return !p.Valid || (!p.Decimal.IsNegative() && p.Decimal.LessThanOrEqual(hundred))
}

// ResolveLine applies catalog defaults to a submitted line and computes its amounts.
// item is nil for manual lines.
func ResolveLine(in LineInput, item *Item, t InvoiceType) LineItem {
	l := LineItem{
		ItemID:     in.ItemID,
		ManualName: strings.TrimSpace(in.ManualName),
		Quantity:   in.Quantity,
		Rate:       in.Rate,
		State:      StateActive,
	}
	if in.LineID != nil {
		l.ID = *in.LineID
	}
	if in.GSTPercent.Valid {
		l.GSTPercent = in.GSTPercent.Decimal
	}
	if in.DiscountPercent.Valid {
		l.DiscountPercent = in.DiscountPercent.Decimal
	}
	if item != nil {
		l.ItemName = item.Name
		if l.Rate.IsZero() {
			l.Rate = item.UnitPrice(t)
		}
		if !in.GSTPercent.Valid {
			l.GSTPercent = item.GSTPercent
		}
		if !in.DiscountPercent.Valid {
			l.DiscountPercent = item.DiscountPercent
		}
	}
	l.LineAmounts = ComputeLineAmounts(l.Quantity, l.Rate, l.GSTPercent, l.DiscountPercent)
	return l
}

func lineRequests(lines []LineInput) []StockRequest {
	var out []StockRequest
	for _, l := range lines {
		if l.ItemID != nil {
			out = append(out, StockRequest{ItemID: *l.ItemID, Quantity: l.Quantity})
		}
	}
	return out
}

func fetchItemsQ(ctx context.Context, q pgxQuerier, ids []int) (map[int]*Item, error) {
	items := make(map[int]*Item)
	if len(ids) == 0 {
		return items, nil
	}
	rows, err := q.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = ANY($1) AND state = 'active'
	`, distinctSorted(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := scanItem(rows, &it); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items[it.ID] = &it
	}
	return items, rows.Err()
}

func (s *invoiceService) resolveLinesQ(ctx context.Context, q pgxQuerier, inputs []LineInput, t InvoiceType) ([]LineItem, error) {
	var ids []int
	for _, r := range lineRequests(inputs) {
		ids = append(ids, r.ItemID)
	}
	items, err := fetchItemsQ(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	lines := make([]LineItem, len(inputs))
	for i, in := range inputs {
		var item *Item
		if in.ItemID != nil {
			item = items[*in.ItemID]
		}
		lines[i] = ResolveLine(in, item, t)
		lines[i].LineNumber = i + 1
	}
	return lines, nil
}

func ensurePartyQ(ctx context.Context, q pgxQuerier, partyID int) error {
	var id int
	err := q.QueryRow(ctx, "SELECT id FROM parties WHERE id = $1 AND state = 'active'", partyID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &RecordNotFoundError{Kind: "party", ID: partyID}
		}
		return fmt.Errorf("failed to resolve party %d: %w", partyID, err)
	}
	return nil
}

func checkAvailable(ctx context.Context, q pgxQuerier, grouped []StockRequest) error {
	if len(grouped) == 0 {
		return nil
	}
	avail, err := checkAvailabilityQ(ctx, q, grouped)
	if err != nil {
		return err
	}
	return avail.Err()
}

func insertLineTx(ctx context.Context, tx pgx.Tx, invoiceID int, l *LineItem) error {
	l.InvoiceID = invoiceID
	err := tx.QueryRow(ctx, `
		INSERT INTO invoice_lines (invoice_id, line_number, item_id, manual_name, quantity, rate, gst_percent,
		                           discount_percent, base_amount, gst_amount, discount_amount, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, invoiceID, l.LineNumber, l.ItemID, l.ManualName, l.Quantity, l.Rate, l.GSTPercent,
		l.DiscountPercent, l.BaseAmount, l.GSTAmount, l.DiscountAmount, l.Total).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to insert line %d: %w", l.LineNumber, err)
	}
	return nil
}

func updateLineTx(ctx context.Context, tx pgx.Tx, l *LineItem) error {
	_, err := tx.Exec(ctx, `
		UPDATE invoice_lines
		SET line_number = $1, item_id = $2, manual_name = $3, quantity = $4, rate = $5, gst_percent = $6,
		    discount_percent = $7, base_amount = $8, gst_amount = $9, discount_amount = $10, total = $11,
		    updated_at = NOW()
		WHERE id = $12
	`, l.LineNumber, l.ItemID, l.ManualName, l.Quantity, l.Rate, l.GSTPercent,
		l.DiscountPercent, l.BaseAmount, l.GSTAmount, l.DiscountAmount, l.Total, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update line %d: %w", l.ID, err)
	}
	return nil
}

// fail logs infrastructure failures with their context. Business failures pass through quietly.
func (s *invoiceService) fail(op string, invoiceID int, err error) error {
	var nf *InvoiceNotFoundError
	var rnf *RecordNotFoundError
	if IsValidationError(err) || errors.As(err, &nf) || errors.As(err, &rnf) {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"operation":  op,
		"invoice_id": invoiceID,
	}).WithError(err).Error("invoice operation failed")
	return err
}

// ── Create ───────────────────────────────────────────────────────────────────

func (s *invoiceService) CreateInvoice(ctx context.Context, in InvoiceInput) (*InvoiceMutation, error) {
	if in.Type == InvoiceRetail && strings.TrimSpace(in.CustomerName) == "" {
		in.CustomerName = "Walk-in Customer"
	}
	if err := ValidateInvoiceInput(in); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if in.Type == InvoiceWholesale {
		if err := ensurePartyQ(ctx, tx, *in.PartyID); err != nil {
			return nil, s.fail("CreateInvoice", 0, err)
		}
	}

	// Pre-flight: report every unavailable item before writing anything.
	requests := lineRequests(in.Lines)
	if err := checkAvailable(ctx, tx, GroupRequests(requests)); err != nil {
		return nil, s.fail("CreateInvoice", 0, err)
	}

	lines, err := s.resolveLinesQ(ctx, tx, in.Lines, in.Type)
	if err != nil {
		return nil, s.fail("CreateInvoice", 0, err)
	}
	if err := checkLimit(0, CalculateTotals(lines, nil, nil), in.LimitEnabled, in.LimitAmount); err != nil {
		return nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	var invoiceID int
	_, err = s.numberer.InsertWithNumberTx(ctx, tx, InvoiceSeries(in.Type), date, func(tx pgx.Tx, number string) error {
		return tx.QueryRow(ctx, `
			INSERT INTO invoices (invoice_type, invoice_number, party_id, customer_name, customer_mobile, invoice_date,
			                      limit_enabled, limit_amount, notes, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`, string(in.Type), number, in.PartyID, strings.TrimSpace(in.CustomerName), strings.TrimSpace(in.CustomerMobile),
			date, in.LimitEnabled, in.LimitAmount, in.Notes, in.Actor).Scan(&invoiceID)
	})
	if err != nil {
		return nil, s.fail("CreateInvoice", 0, fmt.Errorf("failed to insert invoice: %w", err))
	}

	for i := range lines {
		if err := insertLineTx(ctx, tx, invoiceID, &lines[i]); err != nil {
			return nil, s.fail("CreateInvoice", invoiceID, err)
		}
	}

	var stock *StockResult
	if len(requests) > 0 {
		stock, err = s.reconciler.DeductItemsForInvoiceTx(ctx, tx, requests,
			StockRef{InvoiceID: invoiceID, InvoiceType: in.Type, Actor: in.Actor})
		if err != nil {
			return nil, s.fail("CreateInvoice", invoiceID, err)
		}
	}

	totals, err := s.totals.RecalculateTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("CreateInvoice", invoiceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail("CreateInvoice", invoiceID, fmt.Errorf("failed to commit invoice: %w", err))
	}
	if stock != nil {
		invalidateMovements(ctx, s.cache, stock.Movements)
	}

	inv, err := loadInvoiceQ(ctx, s.pool, invoiceID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"invoice_id":     inv.ID,
		"invoice_number": inv.Number,
		"invoice_type":   inv.Type,
		"lines":          len(inv.Lines),
		"total_amount":   totals.TotalAmount.StringFixed(2),
	}).Info("invoice created")
	return &InvoiceMutation{Invoice: inv, Totals: *totals, Stock: stock}, nil
}

// ── Update ───────────────────────────────────────────────────────────────────

func (s *invoiceService) UpdateInvoice(ctx context.Context, invoiceID int, in InvoiceInput) (*InvoiceMutation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}
	in.Type = inv.Type
	if err := ValidateInvoiceInput(in); err != nil {
		return nil, err
	}
	if in.Type == InvoiceWholesale {
		if err := ensurePartyQ(ctx, tx, *in.PartyID); err != nil {
			return nil, s.fail("UpdateInvoice", invoiceID, err)
		}
	}

	current, err := fetchLinesQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}
	returns, err := fetchReturnsQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}
	payments, err := fetchPaymentsQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}

	if err := checkLineEdits(invoiceID, current, returns, in.Lines); err != nil {
		return nil, err
	}

	original := stockRequests(current)
	updated := lineRequests(in.Lines)
	if err := checkAvailable(ctx, tx, NetIncrease(original, updated)); err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}

	lines, err := s.resolveLinesQ(ctx, tx, in.Lines, in.Type)
	if err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}
	preview := CalculateTotals(lines, returns, payments)
	if preview.GrossAmount.LessThan(preview.TotalReturns) {
		return nil, &ReturnExceedsAvailableError{
			InvoiceID:       invoiceID,
			RequestedAmount: preview.TotalReturns,
			RemainingAmount: preview.GrossAmount,
		}
	}
	if err := checkLimit(invoiceID, preview, in.LimitEnabled, in.LimitAmount); err != nil {
		return nil, err
	}

	// Line writes: kept lines in place, new lines inserted, the rest soft-deleted.
	kept := make(map[int]bool)
	for i := range lines {
		if lines[i].ID > 0 {
			kept[lines[i].ID] = true
			lines[i].InvoiceID = invoiceID
			if err := updateLineTx(ctx, tx, &lines[i]); err != nil {
				return nil, s.fail("UpdateInvoice", invoiceID, err)
			}
			continue
		}
		if err := insertLineTx(ctx, tx, invoiceID, &lines[i]); err != nil {
			return nil, s.fail("UpdateInvoice", invoiceID, err)
		}
	}
	for _, cur := range current {
		if kept[cur.ID] {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE invoice_lines SET state = 'deleted', updated_at = NOW() WHERE id = $1
		`, cur.ID); err != nil {
			return nil, s.fail("UpdateInvoice", invoiceID, fmt.Errorf("failed to remove line %d: %w", cur.ID, err))
		}
	}

	date := in.Date
	if date.IsZero() {
		date = inv.Date
	}
	if _, err := tx.Exec(ctx, `
		UPDATE invoices
		SET party_id = $1, customer_name = $2, customer_mobile = $3, invoice_date = $4,
		    limit_enabled = $5, limit_amount = $6, notes = $7, updated_at = NOW()
		WHERE id = $8
	`, in.PartyID, strings.TrimSpace(in.CustomerName), strings.TrimSpace(in.CustomerMobile), date,
		in.LimitEnabled, in.LimitAmount, in.Notes, invoiceID); err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, fmt.Errorf("failed to update invoice header: %w", err))
	}

	stockUpd, err := s.reconciler.UpdateItemsForInvoiceTx(ctx, tx, original, updated,
		StockRef{InvoiceID: invoiceID, InvoiceType: inv.Type, Actor: in.Actor})
	if err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}

	totals, err := s.totals.RecalculateTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, err)
	}
	if err := checkLimit(invoiceID, *totals, in.LimitEnabled, in.LimitAmount); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail("UpdateInvoice", invoiceID, fmt.Errorf("failed to commit invoice update: %w", err))
	}
	invalidateMovements(ctx, s.cache, stockUpd.Movements)

	out, err := loadInvoiceQ(ctx, s.pool, invoiceID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"invoice_id":      invoiceID,
		"items_added":     len(stockUpd.ItemsAdded),
		"items_removed":   len(stockUpd.ItemsRemoved),
		"items_increased": len(stockUpd.ItemsIncreased),
		"items_decreased": len(stockUpd.ItemsDecreased),
		"total_amount":    totals.TotalAmount.StringFixed(2),
	}).Info("invoice updated")
	return &InvoiceMutation{Invoice: out, Totals: *totals, StockUpdate: stockUpd}, nil
}

// checkLineEdits rejects edits that would leave a line with fewer units than
// have already been returned against it.
func checkLineEdits(invoiceID int, current []LineItem, returns []Return, inputs []LineInput) error {
	byID := make(map[int]LineItem, len(current))
	for _, l := range current {
		byID[l.ID] = l
	}
	returned := returnedQuantities(returns)

	var verrs ValidationErrors
	kept := make(map[int]bool)
	for i, in := range inputs {
		if in.LineID == nil {
			continue
		}
		id := *in.LineID
		cur, ok := byID[id]
		if !ok || kept[id] {
			verrs.add(&LineError{Line: i + 1, Msg: fmt.Sprintf("line %d is not an active line of invoice %d", id, invoiceID)})
			continue
		}
		kept[id] = true
		r := returned[id]
		if r == 0 {
			continue
		}
		switch {
		case !sameItem(cur.ItemID, in.ItemID):
			verrs.add(&ReturnExceedsAvailableError{InvoiceID: invoiceID, LineID: id, RequestedQuantity: r})
		case in.Quantity < r:
			verrs.add(&ReturnExceedsAvailableError{InvoiceID: invoiceID, LineID: id, RequestedQuantity: r, RemainingQuantity: in.Quantity})
		}
	}
	for _, cur := range current {
		if r := returned[cur.ID]; r > 0 && !kept[cur.ID] {
			verrs.add(&ReturnExceedsAvailableError{InvoiceID: invoiceID, LineID: cur.ID, RequestedQuantity: r})
		}
	}
	return verrs.errOrNil()
}

func sameItem(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ── Delete ───────────────────────────────────────────────────────────────────

// DeletionRestoreQuantities returns, per item, the stock still held by an
// invoice: the active line quantities minus what active returns already put
// back. Quantities never go below zero.
func DeletionRestoreQuantities(lines []LineItem, returns []Return, movements []StockMovement) []StockRequest {
	active := make(map[int]bool)
	for _, r := range returns {
		if r.State == StateActive {
			active[r.ID] = true
		}
	}
	held := make(map[int]int)
	for _, r := range GroupRequests(stockRequests(lines)) {
		held[r.ItemID] = r.Quantity
	}
	for _, m := range movements {
		if m.Kind == MovementReturn && m.ReturnID != nil && active[*m.ReturnID] {
			held[m.ItemID] -= m.Quantity
		}
	}
	var out []StockRequest
	for _, r := range requestsFromMap(held) {
		if r.Quantity > 0 {
			out = append(out, r)
		}
	}
	return out
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, invoiceID int, actor string) (*InvoiceDeletion, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := lockInvoiceTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("DeleteInvoice", invoiceID, err)
	}
	lines, err := fetchLinesQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, s.fail("DeleteInvoice", invoiceID, err)
	}
	returns, err := fetchReturnsQ(ctx, tx, invoiceID, true)
	if err != nil {
		return nil, s.fail("DeleteInvoice", invoiceID, err)
	}
	movements, err := movementsForInvoiceQ(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("DeleteInvoice", invoiceID, err)
	}

	stock, err := s.reconciler.RestoreItemsForInvoiceDeletionTx(ctx, tx,
		DeletionRestoreQuantities(lines, returns, movements),
		StockRef{InvoiceID: invoiceID, InvoiceType: inv.Type, Actor: actor})
	if err != nil {
		return nil, s.fail("DeleteInvoice", invoiceID, err)
	}

	for _, stmt := range []string{
		`UPDATE invoice_lines SET state = 'deleted', updated_at = NOW() WHERE invoice_id = $1 AND state = 'active'`,
		`UPDATE invoice_returns SET state = 'deleted' WHERE invoice_id = $1 AND state = 'active'`,
		`UPDATE invoice_payments SET state = 'deleted' WHERE invoice_id = $1 AND state = 'active'`,
		`UPDATE invoices SET state = 'deleted', updated_at = NOW() WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, invoiceID); err != nil {
			return nil, s.fail("DeleteInvoice", invoiceID, fmt.Errorf("failed to soft-delete invoice: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail("DeleteInvoice", invoiceID, fmt.Errorf("failed to commit invoice deletion: %w", err))
	}
	invalidateMovements(ctx, s.cache, stock.Movements)

	s.log.WithFields(logrus.Fields{
		"invoice_id":     invoiceID,
		"invoice_number": inv.Number,
		"restored":       len(stock.ItemsProcessed),
		"restore_errors": len(stock.Errors),
		"actor":          actor,
	}).Info("invoice deleted")
	return &InvoiceDeletion{InvoiceID: invoiceID, Number: inv.Number, Stock: stock}, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID int) (*Invoice, error) {
	return loadInvoiceQ(ctx, s.pool, invoiceID)
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var invType *string
	if filter.Type != nil {
		t := string(*filter.Type)
		invType = &t
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE state = 'active'
		  AND ($1::text IS NULL OR invoice_type = $1)
		  AND ($2::int IS NULL OR party_id = $2)
		ORDER BY invoice_date DESC, id DESC
		LIMIT $3
	`, invType, filter.PartyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := scanInvoice(rows, &inv); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *invoiceService) RecalculateInvoice(ctx context.Context, invoiceID int) (*InvoiceTotals, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := lockInvoiceTx(ctx, tx, invoiceID); err != nil {
		return nil, err
	}
	totals, err := s.totals.RecalculateTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, s.fail("RecalculateInvoice", invoiceID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit totals: %w", err)
	}
	return totals, nil
}
