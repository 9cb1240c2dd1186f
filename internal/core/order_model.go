package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Party is a wholesale customer with a running ledger.
type Party struct {
	ID        int         `json:"id"`
	Name      string      `json:"name"`
	Phone     string      `json:"phone"`
	Email     string      `json:"email"`
	State     RecordState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

// PartyBalance is derived on read from the party's active invoices and payments.
type PartyBalance struct {
	PartyID       int             `json:"party_id"`
	PartyName     string          `json:"party_name"`
	TotalInvoiced decimal.Decimal `json:"total_invoiced"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	Pending       decimal.Decimal `json:"pending"`
}

// Invoice is a retail or wholesale sale document. The monetary fields are
// persisted aggregates recomputed by the TotalsCalculator and never edited directly.
type Invoice struct {
	ID             int              `json:"id"`
	Type           InvoiceType      `json:"invoice_type"`
	Number         string           `json:"invoice_number"`
	PartyID        *int             `json:"party_id,omitempty"`
	CustomerName   string           `json:"customer_name"`
	CustomerMobile string           `json:"customer_mobile"`
	Date           time.Time        `json:"date"`
	Totals         InvoiceTotals    `json:"totals"`
	LimitEnabled   bool             `json:"limit_enabled"`
	LimitAmount    *decimal.Decimal `json:"limit_amount,omitempty"`
	Notes          string           `json:"notes"`
	State          RecordState      `json:"state"`
	CreatedBy      string           `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`

	Lines    []LineItem `json:"lines,omitempty"`
	Returns  []Return   `json:"returns,omitempty"`
	Payments []Payment  `json:"payments,omitempty"`
}

// InvoiceTotals holds the derived monetary aggregates of an invoice.
//
//	GrossAmount = Σ line total (active lines)
//	TotalAmount = max(GrossAmount - TotalReturns, 0)
//	BalanceDue  = max(TotalAmount - TotalPaid, 0)
type InvoiceTotals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	GSTTotal      decimal.Decimal `json:"gst_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	TotalReturns  decimal.Decimal `json:"total_returns"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	IsPaid        bool            `json:"is_paid"`
}

// LineItem belongs to one invoice. ItemID is nil for untracked manual lines.
type LineItem struct {
	ID              int             `json:"id"`
	InvoiceID       int             `json:"invoice_id"`
	LineNumber      int             `json:"line_number"`
	ItemID          *int            `json:"item_id,omitempty"`
	ItemName        string          `json:"item_name"`
	ManualName      string          `json:"manual_name,omitempty"`
	Quantity        int             `json:"quantity"`
	Rate            decimal.Decimal `json:"rate"`
	GSTPercent      decimal.Decimal `json:"gst_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	LineAmounts
	State RecordState `json:"state"`
}

// DisplayName is the catalog name for tracked lines and the free text otherwise.
func (l *LineItem) DisplayName() string {
	if l.ItemName != "" {
		return l.ItemName
	}
	if l.ManualName != "" {
		return l.ManualName
	}
	return "Manual Item"
}

// Return records goods (or value) returned against an invoice.
// LineID is nil for manual returns against the invoice as a whole.
type Return struct {
	ID        int             `json:"id"`
	InvoiceID int             `json:"invoice_id"`
	LineID    *int            `json:"line_id,omitempty"`
	Number    string          `json:"return_number"`
	Date      time.Time       `json:"date"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	ImagePath string          `json:"image_path,omitempty"`
	State     RecordState     `json:"state"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentMode is how a payment was received.
type PaymentMode string

const (
	PaymentCash   PaymentMode = "cash"
	PaymentUPI    PaymentMode = "upi"
	PaymentCard   PaymentMode = "card"
	PaymentBank   PaymentMode = "bank"
	PaymentCheque PaymentMode = "cheque"
	PaymentOther  PaymentMode = "other"
)

// Payment is money received against an invoice.
type Payment struct {
	ID        int             `json:"id"`
	InvoiceID int             `json:"invoice_id"`
	Number    string          `json:"payment_number"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Mode      PaymentMode     `json:"mode"`
	Notes     string          `json:"notes"`
	State     RecordState     `json:"state"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}
