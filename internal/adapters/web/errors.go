package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"darbar-billing/internal/app"
	"darbar-billing/internal/core"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Details   []string          `json:"details,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, r, errorResponse{Error: message, Code: code}, status)
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, resp errorResponse, status int) {
	resp.RequestID = requestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError maps a service error to an HTTP status and error code.
func statusForError(err error) (int, string) {
	var (
		reqErr      *app.RequestError
		verrs       *core.ValidationErrors
		invNotFound *core.InvoiceNotFoundError
		recNotFound *core.RecordNotFoundError
		itemMissing *core.ItemNotFoundError
		limitErr    *core.InvoiceLimitExceededError
		shortErr    *core.InsufficientStockError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, core.ErrDuplicateItemCode):
		return http.StatusConflict, "DUPLICATE_CODE"
	case errors.As(err, &shortErr):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED"
	case errors.As(err, &invNotFound), errors.As(err, &recNotFound), errors.As(err, &itemMissing):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &limitErr):
		return http.StatusUnprocessableEntity, "LIMIT_EXCEEDED"
	case core.IsValidationError(err):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeServiceError maps err to a response. Internal errors are logged and
// their text is not sent to the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{
			"request_id": requestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error(err.Error())
		writeError(w, r, "internal server error", code, status)
		return
	}

	resp := errorResponse{Error: err.Error(), Code: code}
	var reqErr *app.RequestError
	var verrs *core.ValidationErrors
	switch {
	case errors.As(err, &reqErr):
		resp.Fields = reqErr.Fields
	case errors.As(err, &verrs):
		resp.Details = verrs.Messages()
	}
	writeErrorResponse(w, r, resp, status)
}
