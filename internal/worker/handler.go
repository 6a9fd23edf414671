package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

// NotificationHandler turns order settlement events into customer emails.
// The storefront treats notification as fire-and-forget; a failed send only
// makes the consumer redeliver the event, it never touches order state.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderSettledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order settled event: %w", err)
	}

	h.logger.Info("processing order settled event",
		"order_id", event.OrderID, "outcome", event.Outcome, "customer_id", event.CustomerID)

	var subject, body string
	switch event.Outcome {
	case domain.SettlementOutcomeConfirmed:
		subject = "Order Confirmed: " + event.OrderNumber
		body = fmt.Sprintf("Your order %s with %d items has been paid and confirmed.", event.OrderNumber, len(event.Lines))
	case domain.SettlementOutcomeCancelled:
		subject = "Order Cancelled: " + event.OrderNumber
		body = fmt.Sprintf("Payment for order %s did not complete, so it was cancelled. You have not been charged.", event.OrderNumber)
	default:
		// Unknown outcomes are dropped, not retried; redelivery cannot fix
		// a payload this consumer does not understand.
		h.logger.Warn("dropping order settled event with unknown outcome", "outcome", event.Outcome, "order_id", event.OrderID)
		return nil
	}

	if err := h.sendEmail(ctx, map[string]string{
		"to":      event.CustomerID + "@example.com",
		"subject": subject,
		"body":    body,
	}); err != nil {
		h.logger.Error("failed to send notification email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send notification email: %w", err)
	}

	h.logger.Info("notification sent", "order_id", event.OrderID, "outcome", event.Outcome)
	return nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
