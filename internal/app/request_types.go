package app

import (
	"github.com/shopspring/decimal"
)

// Request types carry the JSON shape accepted by the HTTP adapter together
// with the structural rules checked by the validator. Business rules (stock,
// limits, return caps) stay in core.

// CreateItemRequest is the input for adding a catalog item.
type CreateItemRequest struct {
	Name            string          `json:"name" validate:"required,max=200"`
	Code            string          `json:"code" validate:"omitempty,max=50"`
	InitialQuantity int             `json:"initial_quantity" validate:"gte=0"`
	PriceRetail     decimal.Decimal `json:"price_retail"`
	PriceWholesale  decimal.Decimal `json:"price_wholesale"`
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// StockChangeRequest is a manual stock movement. Quantity is a positive count
// for restock and damage, and a signed delta for adjustments.
type StockChangeRequest struct {
	Quantity int    `json:"quantity" validate:"required"`
	Notes    string `json:"notes" validate:"max=500"`
	Actor    string `json:"-"`
}

// StockItemRequest is one (item, quantity) pair.
type StockItemRequest struct {
	ItemID   int `json:"item_id" validate:"required,gt=0"`
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type StockCheckRequest struct {
	Items []StockItemRequest `json:"items" validate:"required,min=1,dive"`
}

// StockMutationRequest drives the deduct, return and restore contracts.
// InvoiceID tags the written movements; zero leaves them untagged.
type StockMutationRequest struct {
	InvoiceID   int                `json:"invoice_id" validate:"gte=0"`
	InvoiceType string             `json:"invoice_type" validate:"omitempty,oneof=retail wholesale"`
	Items       []StockItemRequest `json:"items" validate:"required,min=1,dive"`
	Actor       string             `json:"-"`
}

// StockUpdateRequest carries the line sets before and after an edit.
// Either side may be empty.
type StockUpdateRequest struct {
	InvoiceID   int                `json:"invoice_id" validate:"gte=0"`
	InvoiceType string             `json:"invoice_type" validate:"omitempty,oneof=retail wholesale"`
	Original    []StockItemRequest `json:"original" validate:"dive"`
	Updated     []StockItemRequest `json:"updated" validate:"dive"`
	Actor       string             `json:"-"`
}

// LineRequest is one invoice line. Exactly one of ItemID and ManualName is
// expected; core rejects lines with neither.
type LineRequest struct {
	LineID          *int                `json:"line_id" validate:"omitempty,gt=0"`
	ItemID          *int                `json:"item_id" validate:"omitempty,gt=0"`
	ManualName      string              `json:"manual_name" validate:"max=200"`
	Quantity        int                 `json:"quantity" validate:"required,gt=0"`
	Rate            decimal.Decimal     `json:"rate"`
	GSTPercent      decimal.NullDecimal `json:"gst_percent"`
	DiscountPercent decimal.NullDecimal `json:"discount_percent"`
}

// InvoiceHeader holds the fields shared by create and update.
type InvoiceHeader struct {
	PartyID        *int             `json:"party_id" validate:"omitempty,gt=0"`
	CustomerName   string           `json:"customer_name" validate:"max=200"`
	CustomerMobile string           `json:"customer_mobile" validate:"omitempty,numeric,min=10,max=15"`
	Date           string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	LimitEnabled   bool             `json:"limit_enabled"`
	LimitAmount    *decimal.Decimal `json:"limit_amount"`
	Notes          string           `json:"notes" validate:"max=1000"`
	Lines          []LineRequest    `json:"lines" validate:"required,min=1,dive"`
	Actor          string           `json:"-"`
}

type CreateInvoiceRequest struct {
	Type string `json:"invoice_type" validate:"required,oneof=retail wholesale"`
	InvoiceHeader
}

// UpdateInvoiceRequest has no type: an invoice keeps its type for life.
type UpdateInvoiceRequest struct {
	InvoiceHeader
}

type ListInvoicesRequest struct {
	Type    string `validate:"omitempty,oneof=retail wholesale"`
	PartyID int    `validate:"gte=0"`
	Limit   int    `validate:"gte=0,lte=500"`
}

// ReturnRequest records a return against an invoice. With LineID set the
// amount is derived from the line and Quantity is required.
type ReturnRequest struct {
	LineID    *int            `json:"line_id" validate:"omitempty,gt=0"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason" validate:"max=500"`
	ImagePath string          `json:"image_path" validate:"max=500"`
	Date      string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Actor     string          `json:"-"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Mode   string          `json:"mode" validate:"omitempty,oneof=cash upi card bank cheque other"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes  string          `json:"notes" validate:"max=500"`
	Actor  string          `json:"-"`
}

type CreatePartyRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
	Email string `json:"email" validate:"omitempty,email"`
}
