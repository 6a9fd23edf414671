package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Handler exposes read and operator endpoints over the stock ledger. Regular
// reservations never go through HTTP; they happen inside the storefront's
// checkout transaction.
type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		logger: logger,
	}
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.ledger.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	stock, err := h.ledger.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

type releaseRequest struct {
	Quantity int `json:"quantity"`
}

// HandleRelease is an operator escape hatch for reservations orphaned by a
// crash between marking an order failed and restocking. Normal compensation
// runs inside the reconciler transaction and never calls this endpoint.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Quantity <= 0 {
		h.writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	if err := h.ledger.Release(r.Context(), productID, req.Quantity); err != nil {
		if errors.Is(err, ErrNothingReserved) {
			h.writeError(w, http.StatusConflict, "insufficient reserved stock")
			return
		}
		h.logger.Error("failed to release stock", "error", err, "product_id", productID, "quantity", req.Quantity)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	stock, err := h.ledger.GetStock(r.Context(), productID)
	if err != nil {
		h.logger.Error("failed to get updated stock", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock released", "product_id", productID, "quantity", req.Quantity)
	h.writeJSON(w, http.StatusOK, stock)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
