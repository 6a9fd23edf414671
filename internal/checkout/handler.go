package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopflow/internal/inventory"
	"github.com/joao-fontenele/shopflow/internal/telemetry"
)

// customerHeader carries the authenticated customer id, set by the auth
// layer in front of this service. The value is opaque here.
const customerHeader = "X-Customer-ID"

type Handler struct {
	service *Service
	metrics *telemetry.CheckoutMetrics
	logger  *slog.Logger
}

func NewHandler(service *Service, metrics *telemetry.CheckoutMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

type checkoutRequest struct {
	AddressID string     `json:"address_id"`
	Items     []CartLine `json:"items"`
}

type checkoutError struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get(customerHeader)
	if customerID == "" {
		h.writeJSON(w, http.StatusUnauthorized, checkoutError{Error: "missing customer identity"})
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, checkoutError{Error: "invalid request body"})
		return
	}

	result, err := h.service.Checkout(r.Context(), customerID, req.AddressID, req.Items)
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	h.metrics.RecordCheckout(r.Context(), "success")
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var unavailable *ProductUnavailableError
	var insufficient *inventory.InsufficientStockError

	switch {
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidQuantity):
		h.metrics.RecordCheckout(r.Context(), "invalid_cart")
		h.writeJSON(w, http.StatusBadRequest, checkoutError{Error: err.Error()})
	case errors.Is(err, ErrInvalidAddress):
		h.metrics.RecordCheckout(r.Context(), "invalid_address")
		h.writeJSON(w, http.StatusUnprocessableEntity, checkoutError{Error: "invalid address"})
	case errors.As(err, &unavailable):
		h.metrics.RecordCheckout(r.Context(), "product_unavailable")
		h.writeJSON(w, http.StatusUnprocessableEntity, checkoutError{Error: "product unavailable", ProductID: unavailable.ProductID})
	case errors.As(err, &insufficient):
		// Expected contention, not an error condition worth an error log.
		h.metrics.RecordCheckout(r.Context(), "insufficient_stock")
		h.logger.Info("checkout rejected, insufficient stock", "product_id", insufficient.ProductID)
		h.writeJSON(w, http.StatusConflict, checkoutError{Error: "insufficient stock", ProductID: insufficient.ProductID})
	case errors.Is(err, ErrPaymentGateway):
		h.metrics.RecordCheckout(r.Context(), "gateway_error")
		h.writeJSON(w, http.StatusBadGateway, checkoutError{Error: "payment gateway unavailable, please retry"})
	default:
		h.metrics.RecordCheckout(r.Context(), "internal_error")
		h.logger.Error("checkout failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, checkoutError{Error: "internal server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
