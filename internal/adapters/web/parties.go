package web

import (
	"net/http"

	"darbar-billing/internal/app"
)

// apiListParties handles GET /api/parties.
func (h *Handler) apiListParties(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListParties(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiCreateParty handles POST /api/parties.
func (h *Handler) apiCreateParty(w http.ResponseWriter, r *http.Request) {
	var req app.CreatePartyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	party, err := h.svc.CreateParty(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeCreated(w, party)
}

// apiGetParty handles GET /api/parties/{id}.
func (h *Handler) apiGetParty(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	party, err := h.svc.GetParty(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, party)
}

// apiPartyBalance handles GET /api/parties/{id}/balance.
func (h *Handler) apiPartyBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	balance, err := h.svc.GetPartyBalance(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, balance)
}
