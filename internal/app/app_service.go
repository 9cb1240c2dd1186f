package app

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"darbar-billing/internal/core"
)

// DefaultActor is recorded on movements and invoices when the caller does not name one.
const DefaultActor = "system"

const dateLayout = "2006-01-02"

// RequestError reports request fields that failed structural validation,
// keyed by JSON path and mapped to the failed rule.
type RequestError struct {
	Fields map[string]string
}

func (e *RequestError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// ProcessValidationErrors flattens validator errors into a field → tag map.
func ProcessValidationErrors(err error) map[string]string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"request": err.Error()}
	}

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		field := ve.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		errorResponse[field] = ve.Tag()
	}
	return errorResponse
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

type appService struct {
	inventory  core.InventoryService
	reconciler core.StockReconciler
	invoices   core.InvoiceService
	parties    core.PartyService
	movements  core.MovementLog
	validate   *validator.Validate
	log        logrus.FieldLogger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	inventory core.InventoryService,
	reconciler core.StockReconciler,
	invoices core.InvoiceService,
	parties core.PartyService,
	movements core.MovementLog,
	log logrus.FieldLogger,
) ApplicationService {
	return &appService{
		inventory:  inventory,
		reconciler: reconciler,
		invoices:   invoices,
		parties:    parties,
		movements:  movements,
		validate:   newValidator(),
		log:        log,
	}
}

func (s *appService) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return &RequestError{Fields: ProcessValidationErrors(err)}
	}
	return nil
}

func actorOrDefault(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return DefaultActor
}

// parseDate accepts an empty string as "now" (the zero time, defaulted in core).
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &RequestError{Fields: map[string]string{field: "datetime"}}
	}
	return t, nil
}

func toStockRequests(items []StockItemRequest) []core.StockRequest {
	out := make([]core.StockRequest, len(items))
	for i, it := range items {
		out[i] = core.StockRequest{ItemID: it.ItemID, Quantity: it.Quantity}
	}
	return out
}

func stockRef(invoiceID int, invoiceType, actor string) core.StockRef {
	return core.StockRef{
		InvoiceID:   invoiceID,
		InvoiceType: core.InvoiceType(invoiceType),
		Actor:       actorOrDefault(actor),
	}
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *appService) ListItems(ctx context.Context, includeInactive bool) (*ItemListResult, error) {
	items, err := s.inventory.ListItems(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	return &ItemListResult{Items: items}, nil
}

func (s *appService) GetItem(ctx context.Context, itemID int) (*core.Item, error) {
	return s.inventory.GetItem(ctx, itemID)
}

func (s *appService) CreateItem(ctx context.Context, req CreateItemRequest) (*core.Item, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.inventory.CreateItem(ctx, core.NewItem{
		Name:            req.Name,
		Code:            req.Code,
		InitialQuantity: req.InitialQuantity,
		PriceRetail:     req.PriceRetail,
		PriceWholesale:  req.PriceWholesale,
		GSTPercent:      req.GSTPercent,
		DiscountPercent: req.DiscountPercent,
	})
}

func (s *appService) SetItemActive(ctx context.Context, itemID int, active bool) error {
	return s.inventory.SetItemActive(ctx, itemID, active)
}

func (s *appService) DeleteItem(ctx context.Context, itemID int) error {
	return s.inventory.DeleteItem(ctx, itemID)
}

func (s *appService) GetItemStockInfo(ctx context.Context, itemID int) (*core.StockInfo, error) {
	return s.inventory.GetItemStockInfo(ctx, itemID)
}

func (s *appService) Restock(ctx context.Context, itemID int, req StockChangeRequest) (*core.AppliedMovement, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.inventory.Restock(ctx, itemID, req.Quantity, actorOrDefault(req.Actor), req.Notes)
}

func (s *appService) AdjustStock(ctx context.Context, itemID int, req StockChangeRequest) (*core.AppliedMovement, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.inventory.Adjust(ctx, itemID, req.Quantity, actorOrDefault(req.Actor), req.Notes)
}

func (s *appService) MarkDamaged(ctx context.Context, itemID int, req StockChangeRequest) (*core.AppliedMovement, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.inventory.MarkDamaged(ctx, itemID, req.Quantity, actorOrDefault(req.Actor), req.Notes)
}

func (s *appService) ItemMovements(ctx context.Context, itemID, limit int) (*MovementListResult, error) {
	movements, err := s.inventory.Movements(ctx, itemID, limit)
	if err != nil {
		return nil, err
	}
	return &MovementListResult{ItemID: itemID, Movements: movements}, nil
}

// ── Stock contracts ──────────────────────────────────────────────────────────

func (s *appService) CheckStock(ctx context.Context, req StockCheckRequest) (*core.AvailabilityResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.reconciler.CheckStockAvailability(ctx, toStockRequests(req.Items))
}

func (s *appService) CheckStockForUpdate(ctx context.Context, req StockUpdateRequest) (*core.AvailabilityResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.reconciler.CheckStockForUpdate(ctx, toStockRequests(req.Original), toStockRequests(req.Updated))
}

func (s *appService) DeductStock(ctx context.Context, req StockMutationRequest) (*core.StockResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.reconciler.DeductItemsForInvoice(ctx, toStockRequests(req.Items),
		stockRef(req.InvoiceID, req.InvoiceType, req.Actor))
}

func (s *appService) ReturnStock(ctx context.Context, req StockMutationRequest) (*core.StockResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.reconciler.AddItemsForReturn(ctx, toStockRequests(req.Items),
		stockRef(req.InvoiceID, req.InvoiceType, req.Actor))
}

func (s *appService) UpdateStock(ctx context.Context, req StockUpdateRequest) (*core.StockUpdateResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.reconciler.UpdateItemsForInvoice(ctx, toStockRequests(req.Original), toStockRequests(req.Updated),
		stockRef(req.InvoiceID, req.InvoiceType, req.Actor))
}

func (s *appService) RestoreStock(ctx context.Context, req StockMutationRequest) (*core.StockResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.reconciler.RestoreItemsForInvoiceDeletion(ctx, toStockRequests(req.Items),
		stockRef(req.InvoiceID, req.InvoiceType, req.Actor))
}

func (s *appService) AuditStock(ctx context.Context) (*AuditResult, error) {
	discrepancies, err := s.movements.Audit(ctx)
	if err != nil {
		return nil, err
	}
	if len(discrepancies) > 0 {
		s.log.WithField("items", len(discrepancies)).Warn("stock audit found discrepancies")
	}
	return &AuditResult{Consistent: len(discrepancies) == 0, Discrepancies: discrepancies}, nil
}

// ── Invoices ─────────────────────────────────────────────────────────────────

func (s *appService) ListInvoices(ctx context.Context, req ListInvoicesRequest) (*InvoiceListResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	var filter core.InvoiceFilter
	if req.Type != "" {
		t := core.InvoiceType(req.Type)
		filter.Type = &t
	}
	if req.PartyID > 0 {
		id := req.PartyID
		filter.PartyID = &id
	}
	filter.Limit = req.Limit
	invoices, err := s.invoices.ListInvoices(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &InvoiceListResult{Invoices: invoices}, nil
}

func (s *appService) GetInvoice(ctx context.Context, invoiceID int) (*core.Invoice, error) {
	return s.invoices.GetInvoice(ctx, invoiceID)
}

func (s *appService) invoiceInput(t core.InvoiceType, h InvoiceHeader) (core.InvoiceInput, error) {
	date, err := parseDate("date", h.Date)
	if err != nil {
		return core.InvoiceInput{}, err
	}
	in := core.InvoiceInput{
		Type:           t,
		PartyID:        h.PartyID,
		CustomerName:   h.CustomerName,
		CustomerMobile: h.CustomerMobile,
		Date:           date,
		LimitEnabled:   h.LimitEnabled,
		LimitAmount:    h.LimitAmount,
		Notes:          h.Notes,
		Actor:          actorOrDefault(h.Actor),
		Lines:          make([]core.LineInput, len(h.Lines)),
	}
	for i, l := range h.Lines {
		in.Lines[i] = core.LineInput{
			LineID:          l.LineID,
			ItemID:          l.ItemID,
			ManualName:      l.ManualName,
			Quantity:        l.Quantity,
			Rate:            l.Rate,
			GSTPercent:      l.GSTPercent,
			DiscountPercent: l.DiscountPercent,
		}
	}
	return in, nil
}

func (s *appService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*core.InvoiceMutation, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	in, err := s.invoiceInput(core.InvoiceType(req.Type), req.InvoiceHeader)
	if err != nil {
		return nil, err
	}
	return s.invoices.CreateInvoice(ctx, in)
}

func (s *appService) UpdateInvoice(ctx context.Context, invoiceID int, req UpdateInvoiceRequest) (*core.InvoiceMutation, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	in, err := s.invoiceInput("", req.InvoiceHeader)
	if err != nil {
		return nil, err
	}
	return s.invoices.UpdateInvoice(ctx, invoiceID, in)
}

func (s *appService) DeleteInvoice(ctx context.Context, invoiceID int, actor string) (*core.InvoiceDeletion, error) {
	return s.invoices.DeleteInvoice(ctx, invoiceID, actorOrDefault(actor))
}

func (s *appService) InvoiceMovements(ctx context.Context, invoiceID int) (*InvoiceMovementsResult, error) {
	if _, err := s.invoices.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	movements, err := s.movements.ForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &InvoiceMovementsResult{InvoiceID: invoiceID, Movements: movements}, nil
}

func (s *appService) RecalculateInvoice(ctx context.Context, invoiceID int) (*core.InvoiceTotals, error) {
	return s.invoices.RecalculateInvoice(ctx, invoiceID)
}

// ── Returns and payments ─────────────────────────────────────────────────────

func (s *appService) RecordReturn(ctx context.Context, invoiceID int, req ReturnRequest) (*core.ReturnMutation, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	return s.invoices.RecordReturn(ctx, core.ReturnInput{
		InvoiceID: invoiceID,
		LineID:    req.LineID,
		Quantity:  req.Quantity,
		Amount:    req.Amount,
		Reason:    req.Reason,
		ImagePath: req.ImagePath,
		Date:      date,
		Actor:     actorOrDefault(req.Actor),
	})
}

func (s *appService) DeleteReturn(ctx context.Context, returnID int, actor string) (*core.ReturnMutation, error) {
	return s.invoices.DeleteReturn(ctx, returnID, actorOrDefault(actor))
}

func (s *appService) RecordPayment(ctx context.Context, invoiceID int, req PaymentRequest) (*core.PaymentMutation, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	return s.invoices.RecordPayment(ctx, core.PaymentInput{
		InvoiceID: invoiceID,
		Amount:    req.Amount,
		Mode:      core.PaymentMode(req.Mode),
		Date:      date,
		Notes:     req.Notes,
		Actor:     actorOrDefault(req.Actor),
	})
}

func (s *appService) DeletePayment(ctx context.Context, paymentID int, actor string) (*core.PaymentMutation, error) {
	return s.invoices.DeletePayment(ctx, paymentID, actorOrDefault(actor))
}

// ── Parties ──────────────────────────────────────────────────────────────────

func (s *appService) ListParties(ctx context.Context) (*PartyListResult, error) {
	parties, err := s.parties.ListParties(ctx)
	if err != nil {
		return nil, err
	}
	return &PartyListResult{Parties: parties}, nil
}

func (s *appService) GetParty(ctx context.Context, partyID int) (*core.Party, error) {
	return s.parties.GetParty(ctx, partyID)
}

func (s *appService) CreateParty(ctx context.Context, req CreatePartyRequest) (*core.Party, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	return s.parties.CreateParty(ctx, req.Name, req.Phone, req.Email)
}

func (s *appService) GetPartyBalance(ctx context.Context, partyID int) (*core.PartyBalance, error) {
	return s.parties.GetPartyBalance(ctx, partyID)
}
