package web

import (
	"encoding/json"
	"net/http"

	"darbar-billing/internal/app"
)

// Stock contract responses carry the full result body. A result with
// success=false is a business rejection and is sent with 409.

func writeStockResult(w http.ResponseWriter, success bool, v any) {
	if !success {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(v)
		return
	}
	writeJSON(w, v)
}

// apiCheckStock handles POST /api/stock/check.
func (h *Handler) apiCheckStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.CheckStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCheckStockForUpdate handles POST /api/stock/check-update.
func (h *Handler) apiCheckStockForUpdate(w http.ResponseWriter, r *http.Request) {
	var req app.StockUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.CheckStockForUpdate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiDeductStock handles POST /api/stock/deduct.
func (h *Handler) apiDeductStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockMutationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.DeductStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeStockResult(w, result.Success, result)
}

// apiReturnStock handles POST /api/stock/return.
func (h *Handler) apiReturnStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockMutationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.ReturnStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeStockResult(w, result.Success, result)
}

// apiUpdateStock handles POST /api/stock/update.
func (h *Handler) apiUpdateStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.UpdateStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeStockResult(w, result.Success, result)
}

// apiRestoreStock handles POST /api/stock/restore.
func (h *Handler) apiRestoreStock(w http.ResponseWriter, r *http.Request) {
	var req app.StockMutationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Actor = actorFromContext(r.Context())
	result, err := h.svc.RestoreStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeStockResult(w, result.Success, result)
}

// apiAuditStock handles GET /api/stock/audit.
func (h *Handler) apiAuditStock(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.AuditStock(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}
