package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

type Handler struct {
	repo   *OrderRepository
	logger *slog.Logger
}

func NewHandler(repo *OrderRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

// HandleUpdateStatus drives the fulfillment progression
// (confirmed -> preparing -> shipped -> delivered). Payment outcomes never
// flow through here; those belong to the webhook reconciler.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.repo.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("failed to update order status", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	h.writeJSON(w, http.StatusOK, order)
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
