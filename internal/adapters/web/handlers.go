package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"darbar-billing/internal/app"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc    app.ApplicationService
	router chi.Router
	log    logrus.FieldLogger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string, log logrus.FieldLogger) http.Handler {
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))
	r.Use(Actor)

	// ── Health ───────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		// ── Catalog ──────────────────────────────────────────────────────────
		r.Get("/api/items", h.apiListItems)
		r.Post("/api/items", h.apiCreateItem)
		r.Get("/api/items/{id}", h.apiGetItem)
		r.Delete("/api/items/{id}", h.apiDeleteItem)
		r.Put("/api/items/{id}/active", h.apiSetItemActive)
		r.Get("/api/items/{id}/stock", h.apiItemStockInfo)
		r.Get("/api/items/{id}/movements", h.apiItemMovements)
		r.Post("/api/items/{id}/restock", h.apiRestock)
		r.Post("/api/items/{id}/adjust", h.apiAdjustStock)
		r.Post("/api/items/{id}/damaged", h.apiMarkDamaged)

		// ── Stock contracts ──────────────────────────────────────────────────
		r.Post("/api/stock/check", h.apiCheckStock)
		r.Post("/api/stock/check-update", h.apiCheckStockForUpdate)
		r.Post("/api/stock/deduct", h.apiDeductStock)
		r.Post("/api/stock/return", h.apiReturnStock)
		r.Post("/api/stock/update", h.apiUpdateStock)
		r.Post("/api/stock/restore", h.apiRestoreStock)
		r.Get("/api/stock/audit", h.apiAuditStock)

		// ── Invoices ─────────────────────────────────────────────────────────
		r.Get("/api/invoices", h.apiListInvoices)
		r.Post("/api/invoices", h.apiCreateInvoice)
		r.Get("/api/invoices/{id}", h.apiGetInvoice)
		r.Put("/api/invoices/{id}", h.apiUpdateInvoice)
		r.Delete("/api/invoices/{id}", h.apiDeleteInvoice)
		r.Post("/api/invoices/{id}/recalculate", h.apiRecalculateInvoice)
		r.Get("/api/invoices/{id}/movements", h.apiInvoiceMovements)
		r.Post("/api/invoices/{id}/returns", h.apiRecordReturn)
		r.Delete("/api/returns/{id}", h.apiDeleteReturn)
		r.Post("/api/invoices/{id}/payments", h.apiRecordPayment)
		r.Delete("/api/payments/{id}", h.apiDeletePayment)

		// ── Parties ──────────────────────────────────────────────────────────
		r.Get("/api/parties", h.apiListParties)
		r.Post("/api/parties", h.apiCreateParty)
		r.Get("/api/parties/{id}", h.apiGetParty)
		r.Get("/api/parties/{id}/balance", h.apiPartyBalance)
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// health handles GET /api/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// idParam parses the {id} URL parameter. It writes a 400 and returns false
// when the value is not a positive integer.
func idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, r, "id must be a positive integer", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, r, name+" must be a non-negative integer", "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
