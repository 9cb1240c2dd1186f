package app

import (
	"context"

	"darbar-billing/internal/core"
)

// ApplicationService is the single interface the HTTP adapter and the
// command-line tools call. It validates request shapes, resolves the acting
// user and hands off to the core services. It holds no presentation logic.
type ApplicationService interface {
	// ── Catalog ──────────────────────────────────────────────────────────────

	// ListItems returns catalog items. Inactive items are included on request;
	// deleted items never are.
	ListItems(ctx context.Context, includeInactive bool) (*ItemListResult, error)

	// GetItem returns one item by id.
	GetItem(ctx context.Context, itemID int) (*core.Item, error)

	// CreateItem adds an item with its opening stock.
	CreateItem(ctx context.Context, req CreateItemRequest) (*core.Item, error)

	// SetItemActive toggles whether an item can be sold.
	SetItemActive(ctx context.Context, itemID int, active bool) error

	// DeleteItem soft-deletes an item.
	DeleteItem(ctx context.Context, itemID int) error

	// GetItemStockInfo returns the stock view of an item, served from cache when possible.
	GetItemStockInfo(ctx context.Context, itemID int) (*core.StockInfo, error)

	// Restock, AdjustStock and MarkDamaged write a single ledger movement.
	Restock(ctx context.Context, itemID int, req StockChangeRequest) (*core.AppliedMovement, error)
	AdjustStock(ctx context.Context, itemID int, req StockChangeRequest) (*core.AppliedMovement, error)
	MarkDamaged(ctx context.Context, itemID int, req StockChangeRequest) (*core.AppliedMovement, error)

	// ItemMovements returns the newest movements of an item.
	ItemMovements(ctx context.Context, itemID, limit int) (*MovementListResult, error)

	// ── Stock contracts ──────────────────────────────────────────────────────

	// CheckStock reports whether every requested quantity is available. No locks are taken.
	CheckStock(ctx context.Context, req StockCheckRequest) (*core.AvailabilityResult, error)

	// CheckStockForUpdate checks only the net increase between two line sets.
	CheckStockForUpdate(ctx context.Context, req StockUpdateRequest) (*core.AvailabilityResult, error)

	// DeductStock, ReturnStock, UpdateStock and RestoreStock run the four
	// mutation contracts in their own transaction.
	DeductStock(ctx context.Context, req StockMutationRequest) (*core.StockResult, error)
	ReturnStock(ctx context.Context, req StockMutationRequest) (*core.StockResult, error)
	UpdateStock(ctx context.Context, req StockUpdateRequest) (*core.StockUpdateResult, error)
	RestoreStock(ctx context.Context, req StockMutationRequest) (*core.StockResult, error)

	// AuditStock lists items whose movement log does not explain their quantity.
	AuditStock(ctx context.Context) (*AuditResult, error)

	// ── Invoices ─────────────────────────────────────────────────────────────

	ListInvoices(ctx context.Context, req ListInvoicesRequest) (*InvoiceListResult, error)
	GetInvoice(ctx context.Context, invoiceID int) (*core.Invoice, error)

	// CreateInvoice numbers, prices and stores an invoice and deducts its stock.
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*core.InvoiceMutation, error)

	// UpdateInvoice replaces an invoice's header and lines and reconciles the stock difference.
	UpdateInvoice(ctx context.Context, invoiceID int, req UpdateInvoiceRequest) (*core.InvoiceMutation, error)

	// DeleteInvoice soft-deletes an invoice and restores its stock best-effort.
	DeleteInvoice(ctx context.Context, invoiceID int, actor string) (*core.InvoiceDeletion, error)

	// InvoiceMovements returns every stock movement written for an invoice,
	// including those of its returns.
	InvoiceMovements(ctx context.Context, invoiceID int) (*InvoiceMovementsResult, error)

	// RecalculateInvoice recomputes and stores the derived totals of an invoice.
	RecalculateInvoice(ctx context.Context, invoiceID int) (*core.InvoiceTotals, error)

	// ── Returns and payments ─────────────────────────────────────────────────

	RecordReturn(ctx context.Context, invoiceID int, req ReturnRequest) (*core.ReturnMutation, error)
	DeleteReturn(ctx context.Context, returnID int, actor string) (*core.ReturnMutation, error)
	RecordPayment(ctx context.Context, invoiceID int, req PaymentRequest) (*core.PaymentMutation, error)
	DeletePayment(ctx context.Context, paymentID int, actor string) (*core.PaymentMutation, error)

	// ── Parties ──────────────────────────────────────────────────────────────

	ListParties(ctx context.Context) (*PartyListResult, error)
	GetParty(ctx context.Context, partyID int) (*core.Party, error)
	CreateParty(ctx context.Context, req CreatePartyRequest) (*core.Party, error)
	GetPartyBalance(ctx context.Context, partyID int) (*core.PartyBalance, error)
}
