package web

import (
	"net/http"

	"darbar-billing/internal/app"
)

// apiListItems handles GET /api/items?include_inactive=true.
func (h *Handler) apiListItems(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	result, err := h.svc.ListItems(r.Context(), includeInactive)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateItem handles POST /api/items.
func (h *Handler) apiCreateItem(w http.ResponseWriter, r *http.Request) {
	var req app.CreateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.svc.CreateItem(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, item)
}

// apiGetItem handles GET /api/items/{id}.
func (h *Handler) apiGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	item, err := h.svc.GetItem(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, item)
}

// apiDeleteItem handles DELETE /api/items/{id}.
func (h *Handler) apiDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteItem(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiSetItemActive handles PUT /api/items/{id}/active.
func (h *Handler) apiSetItemActive(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Active == nil {
		writeError(w, r, "active is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.SetItemActive(r.Context(), id, *body.Active); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiItemStockInfo handles GET /api/items/{id}/stock.
func (h *Handler) apiItemStockInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	info, err := h.svc.GetItemStockInfo(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, info)
}

// apiItemMovements handles GET /api/items/{id}/movements?limit=N.
func (h *Handler) apiItemMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	result, err := h.svc.ItemMovements(r.Context(), id, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type stockChangeFunc func(h *Handler, r *http.Request, id int, req app.StockChangeRequest) (any, error)

// stockChange decodes a StockChangeRequest for item {id} and runs fn.
func (h *Handler) stockChange(fn stockChangeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		var req app.StockChangeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.Actor = actorFromContext(r.Context())
		result, err := fn(h, r, id, req)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeCreated(w, result)
	}
}

// apiRestock handles POST /api/items/{id}/restock.
func (h *Handler) apiRestock(w http.ResponseWriter, r *http.Request) {
	h.stockChange(func(h *Handler, r *http.Request, id int, req app.StockChangeRequest) (any, error) {
		return h.svc.Restock(r.Context(), id, req)
	})(w, r)
}

// apiAdjustStock handles POST /api/items/{id}/adjust. Quantity is a signed delta.
func (h *Handler) apiAdjustStock(w http.ResponseWriter, r *http.Request) {
	h.stockChange(func(h *Handler, r *http.Request, id int, req app.StockChangeRequest) (any, error) {
		return h.svc.AdjustStock(r.Context(), id, req)
	})(w, r)
}

// apiMarkDamaged handles POST /api/items/{id}/damaged.
func (h *Handler) apiMarkDamaged(w http.ResponseWriter, r *http.Request) {
	h.stockChange(func(h *Handler, r *http.Request, id int, req app.StockChangeRequest) (any, error) {
		return h.svc.MarkDamaged(r.Context(), id, req)
	})(w, r)
}
