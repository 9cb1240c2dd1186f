package web

import (
	"net/http"

	"darbar-billing/internal/app"
)

// apiListInvoices handles GET /api/invoices?type=retail&party_id=N&limit=N.
func (h *Handler) apiListInvoices(w http.ResponseWriter, r *http.Request) {
	partyID, ok := queryInt(w, r, "party_id")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := h.svc.ListInvoices(r.Context(), app.ListInvoicesRequest{
		Type:    r.URL.Query().Get("type"),
		PartyID: partyID,
		Limit:   limit,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateInvoice handles POST /api/invoices.
func (h *Handler) apiCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req app.CreateInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.CreateInvoice(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, result)
}

// apiGetInvoice handles GET /api/invoices/{id}.
func (h *Handler) apiGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inv, err := h.svc.GetInvoice(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

// apiUpdateInvoice handles PUT /api/invoices/{id}.
func (h *Handler) apiUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.UpdateInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.UpdateInvoice(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiDeleteInvoice handles DELETE /api/invoices/{id}.
func (h *Handler) apiDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.DeleteInvoice(r.Context(), id, actorFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiRecalculateInvoice handles POST /api/invoices/{id}/recalculate.
func (h *Handler) apiRecalculateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	totals, err := h.svc.RecalculateInvoice(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, totals)
}

// apiInvoiceMovements handles GET /api/invoices/{id}/movements.
func (h *Handler) apiInvoiceMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.InvoiceMovements(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiRecordReturn handles POST /api/invoices/{id}/returns.
func (h *Handler) apiRecordReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.ReturnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.RecordReturn(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, result)
}

// apiDeleteReturn handles DELETE /api/returns/{id}.
func (h *Handler) apiDeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.DeleteReturn(r.Context(), id, actorFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiRecordPayment handles POST /api/invoices/{id}/payments.
func (h *Handler) apiRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req app.PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.RecordPayment(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, result)
}

// apiDeletePayment handles DELETE /api/payments/{id}.
func (h *Handler) apiDeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	result, err := h.svc.DeletePayment(r.Context(), id, actorFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
