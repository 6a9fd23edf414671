package domain

import "time"

type SettlementOutcome string

const (
	SettlementOutcomeConfirmed SettlementOutcome = "confirmed"
	SettlementOutcomeCancelled SettlementOutcome = "cancelled"
)

// OrderSettledEvent is published once per order when the payment outcome
// lands, and drives the notification worker.
type OrderSettledEvent struct {
	OrderID     string            `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	CustomerID  string            `json:"customer_id"`
	Outcome     SettlementOutcome `json:"outcome"`
	Lines       []OrderLine       `json:"lines"`
	Total       int64             `json:"total"`
	Timestamp   time.Time         `json:"timestamp"`
}
