package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoItems is returned when an inventory operation receives an empty batch.
var ErrNoItems = errors.New("no items provided")

// ErrMissingItemID is returned for a stock entry that carries no item id.
var ErrMissingItemID = errors.New("missing item_id in item data")

// ItemNotFoundError means the item id does not exist or the item is soft-deleted.
type ItemNotFoundError struct {
	ItemID int
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %d not found or deleted", e.ItemID)
}

// InactiveItemError means the item exists but is flagged inactive.
type InactiveItemError struct {
	ItemID int
	Name   string
	Code   string
}

func (e *InactiveItemError) Error() string {
	return fmt.Sprintf("%s (%s) is not active", e.Name, e.Code)
}

// InsufficientStockError means a deduction exceeds the current stock.
type InsufficientStockError struct {
	ItemID    int
	Name      string
	Code      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): available %d, requested %d",
		e.Name, e.Code, e.Available, e.Requested)
}

// InvalidQuantityError means a zero or negative quantity was submitted.
type InvalidQuantityError struct {
	ItemID   int
	Line     int
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("line %d: invalid quantity %d", e.Line, e.Quantity)
	case e.ItemID > 0:
		return fmt.Sprintf("invalid quantity %d for item %d", e.Quantity, e.ItemID)
	default:
		return fmt.Sprintf("invalid quantity %d", e.Quantity)
	}
}

// LineError is a validation failure on one submitted line, numbered from 1.
type LineError struct {
	Line int
	Msg  string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// InvalidAmountError means a monetary input was missing, zero or negative where a positive value is required.
type InvalidAmountError struct {
	Field  string
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("%s must be greater than zero, got %s", e.Field, e.Amount.StringFixed(2))
}

// ReturnExceedsAvailableError means a return would take more quantity (against a line)
// or more value (against an invoice) than remains returnable.
type ReturnExceedsAvailableError struct {
	InvoiceID int
	LineID    int

	RequestedQuantity int
	RemainingQuantity int

	RequestedAmount decimal.Decimal
	RemainingAmount decimal.Decimal
}

func (e *ReturnExceedsAvailableError) Error() string {
	if e.LineID > 0 {
		return fmt.Sprintf("return quantity %d exceeds returnable quantity %d for line %d",
			e.RequestedQuantity, e.RemainingQuantity, e.LineID)
	}
	return fmt.Sprintf("return amount %s exceeds maximum returnable amount %s for invoice %d",
		e.RequestedAmount.StringFixed(2), e.RemainingAmount.StringFixed(2), e.InvoiceID)
}

// InvoiceLimitExceededError means the computed total is above the invoice's enabled spend limit.
type InvoiceLimitExceededError struct {
	InvoiceID int
	Total     decimal.Decimal
	Limit     decimal.Decimal
}

func (e *InvoiceLimitExceededError) Error() string {
	return fmt.Sprintf("invoice total %s exceeds limit %s", e.Total.StringFixed(2), e.Limit.StringFixed(2))
}

// InvoiceNotFoundError means the invoice (or a record that must belong to it) does not exist or is deleted.
type InvoiceNotFoundError struct {
	InvoiceID int
}

func (e *InvoiceNotFoundError) Error() string {
	return fmt.Sprintf("invoice %d not found", e.InvoiceID)
}

// RecordNotFoundError is the not-found error for returns, payments, lines and parties.
type RecordNotFoundError struct {
	Kind string
	ID   int
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// ValidationErrors collects every validation failure of a batch so the caller
// can fix them in one pass. errors.As and errors.Is see each member.
type ValidationErrors struct {
	Errs []error
}

func (v *ValidationErrors) Error() string {
	msgs := make([]string, len(v.Errs))
	for i, err := range v.Errs {
		msgs[i] = err.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (v *ValidationErrors) Unwrap() []error {
	return v.Errs
}

// Messages returns one message per failure, in order.
func (v *ValidationErrors) Messages() []string {
	msgs := make([]string, len(v.Errs))
	for i, err := range v.Errs {
		msgs[i] = err.Error()
	}
	return msgs
}

func (v *ValidationErrors) add(err error) {
	v.Errs = append(v.Errs, err)
}

// errOrNil returns v when it holds at least one failure.
func (v *ValidationErrors) errOrNil() error {
	if len(v.Errs) == 0 {
		return nil
	}
	return v
}

// IsValidationError reports whether err is a business-rule failure the caller can
// correct, as opposed to an infrastructure failure.
func IsValidationError(err error) bool {
	var (
		ve  *ValidationErrors
		nf  *ItemNotFoundError
		ia  *InactiveItemError
		is  *InsufficientStockError
		iq  *InvalidQuantityError
		iam *InvalidAmountError
		re  *ReturnExceedsAvailableError
		le  *InvoiceLimitExceededError
		lne *LineError
	)
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ia) ||
		errors.As(err, &is) || errors.As(err, &iq) || errors.As(err, &iam) ||
		errors.As(err, &re) || errors.As(err, &le) || errors.As(err, &lne) || errors.Is(err, ErrNoItems) ||
		errors.Is(err, ErrMissingItemID)
}

// errorMessages flattens err into user-facing messages.
func errorMessages(err error) []string {
	var ve *ValidationErrors
	if errors.As(err, &ve) {
		return ve.Messages()
	}
	return []string{err.Error()}
}
