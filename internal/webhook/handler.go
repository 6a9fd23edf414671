// Package webhook reconciles asynchronous payment-provider notifications
// with order state. Deliveries may arrive duplicated, concurrently, or out
// of order; safety comes from the terminal-state short-circuit plus
// conditional state transitions, never from delivery ordering.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/payment"
	"github.com/joao-fontenele/shopflow/internal/telemetry"
)

// SignatureHeader is the request header carrying the provider's signature
// envelope.
const SignatureHeader = "Provider-Signature"

const maxBodyBytes = 64 << 10

type OrderStore interface {
	GetByPaymentIntentID(ctx context.Context, intentID string) (*domain.Order, error)
	MarkPaid(ctx context.Context, intentID string) (bool, error)
	CancelAndRestock(ctx context.Context, intentID string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	store    OrderStore
	verifier payment.Verifier
	// publisher may be nil; settlement notifications are fire-and-forget.
	publisher EventPublisher
	metrics   *telemetry.WebhookMetrics
	logger    *slog.Logger
}

func NewHandler(store OrderStore, verifier payment.Verifier, publisher EventPublisher, metrics *telemetry.WebhookMetrics, logger *slog.Logger) *Handler {
	return &Handler{
		store:     store,
		verifier:  verifier,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// HandleWebhook is the single authentication boundary for provider
// callbacks. Response semantics matter: 2xx acks the delivery, 4xx tells
// the provider the delivery is bad and must not be retried as-is, 5xx asks
// for redelivery. Dropping a payment_succeeded without retry would leave a
// paid order looking unpaid, so storage trouble is always answered with a
// retryable status.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	event, err := h.verifier.VerifyWebhookSignature(body, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.metrics.RecordDelivery(r.Context(), "unknown", "rejected")
			h.logger.Warn("webhook signature rejected", "error", err)
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
			return
		}
		// Authenticated but unparseable; retrying the same payload cannot
		// succeed either.
		h.metrics.RecordDelivery(r.Context(), "unknown", "rejected")
		h.logger.Warn("webhook payload rejected", "error", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	switch event.Type {
	case payment.EventPaymentSucceeded:
		h.reconcile(w, r, event, h.applySucceeded)
	case payment.EventPaymentFailed:
		h.reconcile(w, r, event, h.applyFailed)
	default:
		// Unknown event types are acked so new provider features never turn
		// into retry storms.
		h.metrics.RecordDelivery(r.Context(), string(event.Type), "ignored")
		h.logger.Info("ignoring webhook event type", "event_type", event.Type, "event_id", event.ID)
		h.ack(w)
	}
}

type applyFunc func(ctx context.Context, event *payment.Event, order *domain.Order) (applied bool, err error)

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, event *payment.Event, apply applyFunc) {
	ctx := r.Context()
	eventType := string(event.Type)

	order, err := h.store.GetByPaymentIntentID(ctx, event.PaymentIntentID)
	if err != nil {
		h.retryable(w, r, event, err)
		return
	}
	if order == nil {
		// Intents are only handed out after the order row is committed, so
		// an unknown intent is foreign or stale, not an ordering race.
		h.metrics.RecordDelivery(ctx, eventType, "unknown_intent")
		h.logger.Warn("webhook for unknown payment intent", "payment_intent_id", event.PaymentIntentID, "event_id", event.ID)
		h.ack(w)
		return
	}

	// Idempotence dispatch: terminal payment states are never revisited,
	// which also guarantees compensation runs at most once per order.
	if order.PaymentState.Terminal() {
		h.metrics.RecordDelivery(ctx, eventType, "duplicate")
		h.logger.Info("webhook redelivery ignored, payment already settled",
			"order_id", order.ID, "payment_state", order.PaymentState, "event_id", event.ID)
		h.ack(w)
		return
	}

	applied, err := apply(ctx, event, order)
	if err != nil {
		h.retryable(w, r, event, err)
		return
	}

	if !applied {
		// Lost a concurrent race for the same intent. Confirm the winner
		// reached a terminal state and treat the no-op as success.
		current, err := h.store.GetByPaymentIntentID(ctx, event.PaymentIntentID)
		if err != nil {
			h.retryable(w, r, event, err)
			return
		}
		if current == nil || !current.PaymentState.Terminal() {
			h.retryable(w, r, event, errors.New("conditional update applied nothing and payment is not settled"))
			return
		}
		h.metrics.RecordDelivery(ctx, eventType, "duplicate")
		h.ack(w)
		return
	}

	h.metrics.RecordDelivery(ctx, eventType, "applied")
	h.ack(w)
}

func (h *Handler) applySucceeded(ctx context.Context, event *payment.Event, order *domain.Order) (bool, error) {
	// A settled amount that disagrees with the order total is a fatal
	// mismatch: surface it for manual reconciliation instead of coercing.
	if event.AmountMinor != 0 && event.AmountMinor != order.Total {
		h.logger.Error("webhook amount mismatch, manual reconciliation required",
			"order_id", order.ID,
			"order_total", order.Total,
			"event_amount", event.AmountMinor,
			"event_id", event.ID,
		)
		return false, errors.New("settled amount does not match order total")
	}

	applied, err := h.store.MarkPaid(ctx, event.PaymentIntentID)
	if err != nil {
		return false, err
	}
	if applied {
		h.logger.Info("payment confirmed", "order_id", order.ID, "order_number", order.Number, "event_id", event.ID)
		h.publishSettled(ctx, order, domain.SettlementOutcomeConfirmed)
	}
	return applied, nil
}

func (h *Handler) applyFailed(ctx context.Context, event *payment.Event, order *domain.Order) (bool, error) {
	applied, err := h.store.CancelAndRestock(ctx, event.PaymentIntentID)
	if err != nil {
		return false, err
	}
	if applied {
		h.logger.Info("payment failed, order cancelled and stock released",
			"order_id", order.ID, "order_number", order.Number, "event_id", event.ID)
		h.publishSettled(ctx, order, domain.SettlementOutcomeCancelled)
	}
	return applied, nil
}

func (h *Handler) publishSettled(ctx context.Context, order *domain.Order, outcome domain.SettlementOutcome) {
	if h.publisher == nil {
		return
	}

	event := domain.OrderSettledEvent{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		CustomerID:  order.CustomerID,
		Outcome:     outcome,
		Lines:       order.Lines,
		Total:       order.Total,
		Timestamp:   time.Now().UTC(),
	}
	if err := h.publisher.Publish(ctx, order.ID, event); err != nil {
		// Notification delivery never blocks reconciliation.
		h.logger.Error("failed to publish order settled event", "error", err, "order_id", order.ID)
	}
}

func (h *Handler) retryable(w http.ResponseWriter, r *http.Request, event *payment.Event, err error) {
	h.metrics.RecordDelivery(r.Context(), string(event.Type), "retryable")
	h.logger.Error("webhook processing failed, requesting redelivery", "error", err, "event_id", event.ID)
	h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporary failure, retry"})
}

func (h *Handler) ack(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
