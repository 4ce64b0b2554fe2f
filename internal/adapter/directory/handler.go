package directory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fieldnote/internal/domain"
)

// Handler serves the lookup service's HTTP surface. POST /lookup mirrors
// the Lambda contract (statusCode in the HTTP response, identity JSON in the
// body); the /customers routes handle enrollment.
type Handler struct {
	store  *SQLiteDirectory
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates the lookup service handler.
func NewHandler(store *SQLiteDirectory, logger *slog.Logger) *Handler {
	h := &Handler{store: store, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /lookup", h.handleLookup)
	h.mux.HandleFunc("PUT /customers", h.handleUpsert)
	h.mux.HandleFunc("DELETE /customers/{phone}", h.handleRemove)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PhoneNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing phone_number parameter"})
		return
	}

	clean := strings.TrimPrefix(req.PhoneNumber, "whatsapp:")
	identity, err := h.store.FindByPhone(r.Context(), clean)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Customer not found for phone: " + clean})
			return
		}
		h.logger.Error("lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, identity)
}

func (h *Handler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		domain.TenantIdentity
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	clean := strings.TrimPrefix(req.PhoneNumber, "whatsapp:")
	if err := h.store.Upsert(r.Context(), clean, req.TenantIdentity); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("enrollment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimPrefix(r.PathValue("phone"), "whatsapp:")
	if err := h.store.Remove(r.Context(), phone); err != nil {
		h.logger.Error("removal failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
