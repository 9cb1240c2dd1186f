package core_test

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"darbar-billing/internal/core"
)

type billingEnv struct {
	ctx        context.Context
	pool       *pgxpool.Pool
	inventory  core.InventoryService
	reconciler core.StockReconciler
	invoices   core.InvoiceService
	parties    core.PartyService
	movements  core.MovementLog
}

// setupBillingDB applies the schema to TEST_DATABASE_URL, truncates every
// table and wires the services without a cache.
func setupBillingDB(t *testing.T) *billingEnv {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/001_inventory_schema.sql")
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		TRUNCATE TABLE stock_movements, invoice_payments, invoice_returns, invoice_lines,
		               invoices, items, parties RESTART IDENTITY CASCADE
	`); err != nil {
		t.Fatalf("Failed to truncate test database: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	ledger := core.NewQuantityLedger(log)
	numberer := core.NewDocumentNumberer(10, log)
	movements := core.NewMovementLog(pool)
	reconciler := core.NewStockReconciler(pool, ledger, core.NewAvailabilityChecker(pool), nil, log)
	return &billingEnv{
		ctx:        ctx,
		pool:       pool,
		inventory:  core.NewInventoryService(pool, ledger, numberer, movements, nil, 10, log),
		reconciler: reconciler,
		invoices:   core.NewInvoiceService(pool, ledger, reconciler, core.NewTotalsCalculator(), numberer, nil, log),
		parties:    core.NewPartyService(pool),
		movements:  movements,
	}
}

func (e *billingEnv) createItem(t *testing.T, name string, qty int, price string) *core.Item {
	t.Helper()
	item, err := e.inventory.CreateItem(e.ctx, core.NewItem{
		Name:            name,
		InitialQuantity: qty,
		PriceRetail:     dec(price),
		PriceWholesale:  dec(price),
	})
	if err != nil {
		t.Fatalf("CreateItem %s failed: %v", name, err)
	}
	return item
}

func (e *billingEnv) quantity(t *testing.T, itemID int) int {
	t.Helper()
	var qty int
	if err := e.pool.QueryRow(e.ctx, "SELECT quantity FROM items WHERE id = $1", itemID).Scan(&qty); err != nil {
		t.Fatalf("Failed to read quantity of item %d: %v", itemID, err)
	}
	return qty
}

// assertLedgerConsistent checks quantity = initial + Σ movements for every item.
func (e *billingEnv) assertLedgerConsistent(t *testing.T) {
	t.Helper()
	discrepancies, err := e.movements.Audit(e.ctx)
	if err != nil {
		t.Fatalf("Audit failed: %v", err)
	}
	for _, d := range discrepancies {
		t.Errorf("item %d: quantity %d, initial %d, movement sum %d", d.ItemID, d.Quantity, d.InitialQuantity, d.MovementSum)
	}
}

func retailInvoice(lines ...core.LineInput) core.InvoiceInput {
	return core.InvoiceInput{Type: core.InvoiceRetail, Actor: "tester", Lines: lines}
}

func itemLine(itemID, qty int) core.LineInput {
	return core.LineInput{ItemID: intp(itemID), Quantity: qty}
}

// ── Stock contracts ──────────────────────────────────────────────────────────

func TestReconciler_DeductBoundary(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Cotton Saree", 10, "500")

	res, err := e.reconciler.DeductItemsForInvoice(e.ctx, []core.StockRequest{{ItemID: item.ID, Quantity: 10}}, core.StockRef{Actor: "tester"})
	if err != nil {
		t.Fatalf("DeductItemsForInvoice failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected exact-quantity deduction to succeed, got %v", res.Errors)
	}
	if got := e.quantity(t, item.ID); got != 0 {
		t.Errorf("expected quantity 0, got %d", got)
	}

	res, err = e.reconciler.DeductItemsForInvoice(e.ctx, []core.StockRequest{{ItemID: item.ID, Quantity: 1}}, core.StockRef{Actor: "tester"})
	if err != nil {
		t.Fatalf("DeductItemsForInvoice failed: %v", err)
	}
	if res.Success || len(res.Errors) != 1 {
		t.Fatalf("expected one insufficient-stock error, got success=%v errors=%v", res.Success, res.Errors)
	}
	if got := e.quantity(t, item.ID); got != 0 {
		t.Errorf("failed deduction changed quantity to %d", got)
	}
	e.assertLedgerConsistent(t)
}

func TestReconciler_BatchIsAllOrNothing(t *testing.T) {
	e := setupBillingDB(t)
	a := e.createItem(t, "Item A", 5, "100")
	b := e.createItem(t, "Item B", 1, "100")

	res, err := e.reconciler.DeductItemsForInvoice(e.ctx, []core.StockRequest{
		{ItemID: a.ID, Quantity: 2},
		{ItemID: b.ID, Quantity: 3},
		{ItemID: 9999, Quantity: 1},
	}, core.StockRef{Actor: "tester"})
	if err != nil {
		t.Fatalf("DeductItemsForInvoice failed: %v", err)
	}
	if res.Success || len(res.Errors) != 2 {
		t.Fatalf("expected two errors, got %v", res.Errors)
	}
	if got := e.quantity(t, a.ID); got != 5 {
		t.Errorf("item A should be untouched, got %d", got)
	}
}

func TestReconciler_ConcurrentDeductions(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Last Lehenga", 5, "9000")

	var wg sync.WaitGroup
	results := make([]*core.StockResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.reconciler.DeductItemsForInvoice(e.ctx,
				[]core.StockRequest{{ItemID: item.ID, Quantity: 3}}, core.StockRef{Actor: "tester"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("goroutine %d failed: %v", i, errs[i])
		}
		if results[i].Success {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one deduction to succeed, got %d", succeeded)
	}
	if got := e.quantity(t, item.ID); got != 2 {
		t.Errorf("expected quantity 2, got %d", got)
	}
	e.assertLedgerConsistent(t)
}

func TestReconciler_UpdateDiff(t *testing.T) {
	e := setupBillingDB(t)
	a := e.createItem(t, "Item A", 10, "100")
	b := e.createItem(t, "Item B", 10, "100")

	if _, err := e.reconciler.DeductItemsForInvoice(e.ctx, []core.StockRequest{{ItemID: a.ID, Quantity: 5}}, core.StockRef{Actor: "tester"}); err != nil {
		t.Fatalf("DeductItemsForInvoice failed: %v", err)
	}

	res, err := e.reconciler.UpdateItemsForInvoice(e.ctx,
		[]core.StockRequest{{ItemID: a.ID, Quantity: 5}},
		[]core.StockRequest{{ItemID: a.ID, Quantity: 2}, {ItemID: b.ID, Quantity: 4}},
		core.StockRef{Actor: "tester"})
	if err != nil {
		t.Fatalf("UpdateItemsForInvoice failed: %v", err)
	}
	if !res.Success || len(res.ItemsDecreased) != 1 || len(res.ItemsAdded) != 1 {
		t.Fatalf("unexpected update result: %+v", res)
	}
	if got := e.quantity(t, a.ID); got != 8 {
		t.Errorf("expected item A at 8, got %d", got)
	}
	if got := e.quantity(t, b.ID); got != 6 {
		t.Errorf("expected item B at 6, got %d", got)
	}
	e.assertLedgerConsistent(t)
}

func TestReconciler_CheckDoesNotMutate(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Item A", 2, "100")

	res, err := e.reconciler.CheckStockAvailability(e.ctx, []core.StockRequest{{ItemID: item.ID, Quantity: 3}, {ItemID: 4242, Quantity: 1}})
	if err != nil {
		t.Fatalf("CheckStockAvailability failed: %v", err)
	}
	if res.Available || len(res.UnavailableItems) != 2 {
		t.Fatalf("expected two unavailable items, got %+v", res)
	}
	if got := e.quantity(t, item.ID); got != 2 {
		t.Errorf("check changed quantity to %d", got)
	}
}

// ── Invoice lifecycle ────────────────────────────────────────────────────────

func TestInvoice_CreateDeleteRoundTrip(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Kurta", 10, "1000")

	created, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(item.ID, 3)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if created.Invoice.CustomerName != "Walk-in Customer" {
		t.Errorf("expected default customer name, got %q", created.Invoice.CustomerName)
	}
	if got := e.quantity(t, item.ID); got != 7 {
		t.Errorf("expected 7 after sale, got %d", got)
	}

	deleted, err := e.invoices.DeleteInvoice(e.ctx, created.Invoice.ID, "tester")
	if err != nil {
		t.Fatalf("DeleteInvoice failed: %v", err)
	}
	if !deleted.Stock.Success || len(deleted.Stock.Errors) != 0 {
		t.Fatalf("unexpected restore result: %+v", deleted.Stock)
	}
	if got := e.quantity(t, item.ID); got != 10 {
		t.Errorf("expected 10 after delete, got %d", got)
	}

	_, err = e.invoices.GetInvoice(e.ctx, created.Invoice.ID)
	var nf *core.InvoiceNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected InvoiceNotFoundError for deleted invoice, got %v", err)
	}
	e.assertLedgerConsistent(t)
}

func TestInvoice_SequentialNumbers(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Kurta", 10, "1000")

	first, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(item.ID, 1)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	second, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(item.ID, 1)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	stem := core.RetailInvoiceSeries.Stem(first.Invoice.Date)
	n1, ok1 := core.ParseSequence(stem, first.Invoice.Number)
	n2, ok2 := core.ParseSequence(stem, second.Invoice.Number)
	if !ok1 || !ok2 || n2 != n1+1 {
		t.Errorf("expected consecutive numbers, got %s and %s", first.Invoice.Number, second.Invoice.Number)
	}
}

func TestInvoice_InsufficientStockWritesNothing(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Kurta", 2, "1000")

	_, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(item.ID, 3)))
	var short *core.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if short.Available != 2 || short.Requested != 3 {
		t.Errorf("unexpected error detail: %+v", short)
	}

	var count int
	if err := e.pool.QueryRow(e.ctx, "SELECT COUNT(*) FROM invoices").Scan(&count); err != nil {
		t.Fatalf("count invoices: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no invoice rows, got %d", count)
	}
}

func TestInvoice_LimitExceeded(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Kurta", 10, "1000")

	in := retailInvoice(itemLine(item.ID, 2))
	limit := dec("1500")
	in.LimitEnabled = true
	in.LimitAmount = &limit

	_, err := e.invoices.CreateInvoice(e.ctx, in)
	var lerr *core.InvoiceLimitExceededError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected InvoiceLimitExceededError, got %v", err)
	}
	if got := e.quantity(t, item.ID); got != 10 {
		t.Errorf("rejected invoice changed stock to %d", got)
	}
}

func TestInvoice_UpdateReconcilesStock(t *testing.T) {
	e := setupBillingDB(t)
	a := e.createItem(t, "Item A", 10, "100")
	b := e.createItem(t, "Item B", 10, "200")

	created, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(a.ID, 5)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	lineID := created.Invoice.Lines[0].ID

	updated, err := e.invoices.UpdateInvoice(e.ctx, created.Invoice.ID, retailInvoice(
		core.LineInput{LineID: intp(lineID), ItemID: intp(a.ID), Quantity: 2},
		itemLine(b.ID, 4),
	))
	if err != nil {
		t.Fatalf("UpdateInvoice failed: %v", err)
	}
	if got := e.quantity(t, a.ID); got != 8 {
		t.Errorf("expected item A at 8, got %d", got)
	}
	if got := e.quantity(t, b.ID); got != 6 {
		t.Errorf("expected item B at 6, got %d", got)
	}
	if !dec("1000").Equal(updated.Totals.TotalAmount) {
		t.Errorf("expected total 1000, got %s", updated.Totals.TotalAmount)
	}
	e.assertLedgerConsistent(t)
}

// ── Returns and payments ─────────────────────────────────────────────────────

func TestInvoice_ReturnScenario(t *testing.T) {
	e := setupBillingDB(t)
	boot, err := e.inventory.CreateItem(e.ctx, core.NewItem{
		Name:            "Boot-X",
		InitialQuantity: 10,
		PriceRetail:     dec("800"),
		PriceWholesale:  dec("700"),
		GSTPercent:      dec("12"),
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	created, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(boot.ID, 2)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if !dec("1792").Equal(created.Totals.TotalAmount) {
		t.Fatalf("expected total 1792, got %s", created.Totals.TotalAmount)
	}
	lineID := created.Invoice.Lines[0].ID

	ret, err := e.invoices.RecordReturn(e.ctx, core.ReturnInput{
		InvoiceID: created.Invoice.ID,
		LineID:    intp(lineID),
		Quantity:  1,
		Actor:     "tester",
	})
	if err != nil {
		t.Fatalf("RecordReturn failed: %v", err)
	}
	if !dec("896").Equal(ret.Return.Amount) || !dec("896").Equal(ret.Totals.TotalAmount) {
		t.Errorf("expected return and total of 896, got %s and %s", ret.Return.Amount, ret.Totals.TotalAmount)
	}
	if got := e.quantity(t, boot.ID); got != 9 {
		t.Errorf("expected 9 after return, got %d", got)
	}

	_, err = e.invoices.RecordReturn(e.ctx, core.ReturnInput{
		InvoiceID: created.Invoice.ID,
		LineID:    intp(lineID),
		Quantity:  2,
		Actor:     "tester",
	})
	var rerr *core.ReturnExceedsAvailableError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ReturnExceedsAvailableError, got %v", err)
	}

	pay, err := e.invoices.RecordPayment(e.ctx, core.PaymentInput{
		InvoiceID: created.Invoice.ID,
		Amount:    dec("896"),
		Mode:      core.PaymentUPI,
		Actor:     "tester",
	})
	if err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}
	if !pay.Totals.IsPaid || !pay.Totals.BalanceDue.IsZero() {
		t.Errorf("expected invoice paid, got %+v", pay.Totals)
	}

	undone, err := e.invoices.DeleteReturn(e.ctx, ret.Return.ID, "tester")
	if err != nil {
		t.Fatalf("DeleteReturn failed: %v", err)
	}
	if !dec("1792").Equal(undone.Totals.TotalAmount) || undone.Totals.IsPaid {
		t.Errorf("expected total back at 1792 and unpaid, got %+v", undone.Totals)
	}
	if got := e.quantity(t, boot.ID); got != 8 {
		t.Errorf("expected 8 after return deletion, got %d", got)
	}
	e.assertLedgerConsistent(t)
}

func TestInvoice_ManualReturnIsEstimated(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Shawl", 10, "500")

	created, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(item.ID, 4)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}

	ret, err := e.invoices.RecordReturn(e.ctx, core.ReturnInput{
		InvoiceID: created.Invoice.ID,
		Amount:    dec("1000"),
		Reason:    "damaged on delivery",
		Actor:     "tester",
	})
	if err != nil {
		t.Fatalf("RecordReturn failed: %v", err)
	}
	if !ret.Estimated || len(ret.Restored) != 1 || ret.Restored[0].Quantity != 2 {
		t.Errorf("expected estimated restoration of 2, got %+v", ret.Restored)
	}
	if got := e.quantity(t, item.ID); got != 8 {
		t.Errorf("expected 8, got %d", got)
	}

	_, err = e.invoices.RecordReturn(e.ctx, core.ReturnInput{
		InvoiceID: created.Invoice.ID,
		Amount:    dec("1500"),
		Actor:     "tester",
	})
	if !core.IsValidationError(err) {
		t.Errorf("expected over-return to be rejected, got %v", err)
	}

	// Deleting the invoice restores only what the return did not.
	if _, err := e.invoices.DeleteInvoice(e.ctx, created.Invoice.ID, "tester"); err != nil {
		t.Fatalf("DeleteInvoice failed: %v", err)
	}
	if got := e.quantity(t, item.ID); got != 10 {
		t.Errorf("expected 10 after delete, got %d", got)
	}
	e.assertLedgerConsistent(t)
}

func TestInvoice_DeleteIsBestEffort(t *testing.T) {
	e := setupBillingDB(t)
	keep := e.createItem(t, "Kept", 10, "100")
	gone := e.createItem(t, "Discontinued", 10, "100")

	created, err := e.invoices.CreateInvoice(e.ctx, retailInvoice(itemLine(keep.ID, 2), itemLine(gone.ID, 3)))
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if err := e.inventory.DeleteItem(e.ctx, gone.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}

	deleted, err := e.invoices.DeleteInvoice(e.ctx, created.Invoice.ID, "tester")
	if err != nil {
		t.Fatalf("DeleteInvoice failed: %v", err)
	}
	if !deleted.Stock.Success || len(deleted.Stock.Errors) != 1 || len(deleted.Stock.ItemsProcessed) != 1 {
		t.Fatalf("expected one restored item and one error, got %+v", deleted.Stock)
	}
	if got := e.quantity(t, keep.ID); got != 10 {
		t.Errorf("expected kept item back at 10, got %d", got)
	}
	if got := e.quantity(t, gone.ID); got != 7 {
		t.Errorf("deleted item should stay at 7, got %d", got)
	}
}

func TestParty_Balance(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Bulk Fabric", 100, "250")

	party, err := e.parties.CreateParty(e.ctx, "Sharma Textiles", "9876543210", "")
	if err != nil {
		t.Fatalf("CreateParty failed: %v", err)
	}

	in := core.InvoiceInput{
		Type:    core.InvoiceWholesale,
		PartyID: intp(party.ID),
		Actor:   "tester",
		Lines:   []core.LineInput{itemLine(item.ID, 10)},
	}
	created, err := e.invoices.CreateInvoice(e.ctx, in)
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if _, err := e.invoices.RecordPayment(e.ctx, core.PaymentInput{
		InvoiceID: created.Invoice.ID,
		Amount:    dec("1000"),
		Actor:     "tester",
	}); err != nil {
		t.Fatalf("RecordPayment failed: %v", err)
	}

	bal, err := e.parties.GetPartyBalance(e.ctx, party.ID)
	if err != nil {
		t.Fatalf("GetPartyBalance failed: %v", err)
	}
	if !dec("2500").Equal(bal.TotalInvoiced) || !dec("1000").Equal(bal.TotalPaid) || !dec("1500").Equal(bal.Pending) {
		t.Errorf("unexpected balance: %+v", bal)
	}

	_, err = e.invoices.CreateInvoice(e.ctx, core.InvoiceInput{
		Type:    core.InvoiceWholesale,
		PartyID: intp(9999),
		Lines:   []core.LineInput{itemLine(item.ID, 1)},
	})
	var nf *core.RecordNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected RecordNotFoundError for unknown party, got %v", err)
	}
}

func TestInventory_ManualMovements(t *testing.T) {
	e := setupBillingDB(t)
	item := e.createItem(t, "Stole", 5, "300")

	if _, err := e.inventory.Restock(e.ctx, item.ID, 10, "tester", ""); err != nil {
		t.Fatalf("Restock failed: %v", err)
	}
	if _, err := e.inventory.MarkDamaged(e.ctx, item.ID, 2, "tester", "water damage"); err != nil {
		t.Fatalf("MarkDamaged failed: %v", err)
	}
	if _, err := e.inventory.Adjust(e.ctx, item.ID, -20, "tester", ""); !core.IsValidationError(err) {
		t.Errorf("expected negative adjustment beyond stock to fail, got %v", err)
	}
	if got := e.quantity(t, item.ID); got != 13 {
		t.Errorf("expected 13, got %d", got)
	}

	moves, err := e.inventory.Movements(e.ctx, item.ID, 10)
	if err != nil {
		t.Fatalf("Movements failed: %v", err)
	}
	if len(moves) != 2 {
		t.Errorf("expected 2 movements, got %d", len(moves))
	}
	e.assertLedgerConsistent(t)
}
