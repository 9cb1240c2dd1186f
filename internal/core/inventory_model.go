package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordState is the soft-delete tag carried by every mutable record.
// Core queries always filter on it explicitly.
type RecordState string

const (
	StateActive  RecordState = "active"
	StateDeleted RecordState = "deleted"
)

// InvoiceType distinguishes the retail (B2C) and wholesale (party) invoice variants.
type InvoiceType string

const (
	InvoiceRetail    InvoiceType = "retail"
	InvoiceWholesale InvoiceType = "wholesale"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceRetail || t == InvoiceWholesale
}

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementRetailSale    MovementKind = "retail_sale"
	MovementWholesaleSale MovementKind = "wholesale_sale"
	MovementReturn        MovementKind = "return"
	MovementRestock       MovementKind = "restock"
	MovementAdjustment    MovementKind = "adjustment"
	MovementDamaged       MovementKind = "damaged"
)

// SaleMovementKind returns the movement kind used when stock leaves for an invoice of type t.
func SaleMovementKind(t InvoiceType) MovementKind {
	if t == InvoiceWholesale {
		return MovementWholesaleSale
	}
	return MovementRetailSale
}

// Item is an inventory unit in the catalog. Quantity is only ever changed
// through the QuantityLedger.
type Item struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	Code            string          `json:"code"`
	Quantity        int             `json:"quantity"`
	InitialQuantity int             `json:"initial_quantity"`
	PriceRetail     decimal.Decimal `json:"price_retail"`
	PriceWholesale  decimal.Decimal `json:"price_wholesale"`
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	IsActive        bool            `json:"is_active"`
	State           RecordState     `json:"state"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// UnitPrice returns the catalog price for the given invoice type.
func (i *Item) UnitPrice(t InvoiceType) decimal.Decimal {
	if t == InvoiceWholesale {
		return i.PriceWholesale
	}
	return i.PriceRetail
}

// StockMovement is one immutable entry of the stock movement log.
// Quantity is signed: positive adds stock, negative deducts it.
type StockMovement struct {
	ID          int64        `json:"id"`
	ItemID      int          `json:"item_id"`
	Quantity    int          `json:"quantity"`
	Kind        MovementKind `json:"kind"`
	InvoiceID   *int         `json:"invoice_id,omitempty"`
	InvoiceType *InvoiceType `json:"invoice_type,omitempty"`
	ReturnID    *int         `json:"return_id,omitempty"`
	Actor       string       `json:"actor"`
	Notes       string       `json:"notes"`
	CreatedAt   time.Time    `json:"created_at"`
}

// StockRequest is an (item, quantity) pair as passed across the inventory contracts.
type StockRequest struct {
	ItemID   int `json:"item_id"`
	Quantity int `json:"quantity"`
}

// StockInfo is a read view of an item's stock position and pricing.
type StockInfo struct {
	ItemID          int             `json:"item_id"`
	Name            string          `json:"name"`
	Code            string          `json:"code"`
	CurrentStock    int             `json:"current_stock"`
	IsActive        bool            `json:"is_active"`
	IsLowStock      bool            `json:"is_low_stock"`
	IsOutOfStock    bool            `json:"is_out_of_stock"`
	PriceRetail     decimal.Decimal `json:"price_retail"`
	PriceWholesale  decimal.Decimal `json:"price_wholesale"`
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// StockDiscrepancy reports an item whose movement log does not explain its quantity.
type StockDiscrepancy struct {
	ItemID          int    `json:"item_id"`
	Name            string `json:"name"`
	Code            string `json:"code"`
	Quantity        int    `json:"quantity"`
	InitialQuantity int    `json:"initial_quantity"`
	MovementSum     int    `json:"movement_sum"`
}
