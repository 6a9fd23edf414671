package domain

import "time"

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions lists the legal fulfillment progressions. Cancellation is
// only reachable while the order has not started preparation.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusShipped},
	OrderStatusShipped:   {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type PaymentState string

const (
	PaymentStatePending    PaymentState = "pending"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStatePaid       PaymentState = "paid"
	PaymentStateFailed     PaymentState = "failed"
)

// Terminal reports whether the payment outcome is settled. Terminal states
// are never left again; in particular "paid" can never become "failed".
func (s PaymentState) Terminal() bool {
	return s == PaymentStatePaid || s == PaymentStateFailed
}

type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	// UnitPrice is the minor-unit price snapshotted at checkout time. It is
	// never re-read from the catalog after the order exists.
	UnitPrice    int64 `json:"unit_price"`
	LineSubtotal int64 `json:"line_subtotal"`
}

type Order struct {
	ID           string       `json:"id"`
	Number       string       `json:"number"`
	CustomerID   string       `json:"customer_id"`
	AddressID    string       `json:"address_id"`
	Lines        []OrderLine  `json:"lines"`
	Subtotal     int64        `json:"subtotal"`
	Tax          int64        `json:"tax"`
	ShippingCost int64        `json:"shipping_cost"`
	Total        int64        `json:"total"`
	Status       OrderStatus  `json:"status"`
	PaymentState PaymentState `json:"payment_state"`
	// PaymentIntentID is empty until the gateway intent exists. It is unique
	// per order and is the only correlation key for webhook deliveries.
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
