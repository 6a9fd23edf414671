// Package payment is the boundary with the external payment provider: it
// creates payment intents for checkouts and authenticates inbound webhook
// deliveries. No card data ever passes through this service; the client
// finishes payment entry directly with the provider using the intent's
// client secret.
package payment

import "context"

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type Metadata map[string]string

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
)

// Event is a provider webhook notification. Unknown Type values are passed
// through untouched; the reconciler acks them without effect.
type Event struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	PaymentIntentID string    `json:"payment_intent_id"`
	// AmountMinor is the settled amount in minor currency units; zero when
	// the provider omits it.
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type IntentCreator interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata Metadata) (*Intent, error)
}

type Verifier interface {
	VerifyWebhookSignature(body []byte, header string) (*Event, error)
}

type Gateway interface {
	IntentCreator
	Verifier
}
