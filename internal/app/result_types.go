package app

import "darbar-billing/internal/core"

// ItemListResult is returned by ListItems.
type ItemListResult struct {
	Items []core.Item `json:"items"`
}

// MovementListResult is returned by ItemMovements.
type MovementListResult struct {
	ItemID    int                  `json:"item_id"`
	Movements []core.StockMovement `json:"movements"`
}

// InvoiceMovementsResult is returned by InvoiceMovements.
type InvoiceMovementsResult struct {
	InvoiceID int                  `json:"invoice_id"`
	Movements []core.StockMovement `json:"movements"`
}

// AuditResult is returned by AuditStock. Consistent is true when no item
// disagrees with its movement log.
type AuditResult struct {
	Consistent    bool                    `json:"consistent"`
	Discrepancies []core.StockDiscrepancy `json:"discrepancies"`
}

// InvoiceListResult is returned by ListInvoices.
type InvoiceListResult struct {
	Invoices []core.Invoice `json:"invoices"`
}

// PartyListResult is returned by ListParties.
type PartyListResult struct {
	Parties []core.Party `json:"parties"`
}
