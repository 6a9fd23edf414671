package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client talks to the provider's REST API. It implements Gateway.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

func NewClient(baseURL, apiKey, webhookSecret string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		httpClient:    httpClient,
	}
}

type createIntentRequest struct {
	Amount   int64    `json:"amount"`
	Currency string   `json:"currency"`
	Metadata Metadata `json:"metadata,omitempty"`
}

func (c *Client) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata Metadata) (*Intent, error) {
	data, err := json.Marshal(createIntentRequest{
		Amount:   amountMinor,
		Currency: currency,
		Metadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("payment provider returned status %d: %s", resp.StatusCode, body)
	}

	var intent Intent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}

	if intent.ID == "" || intent.ClientSecret == "" {
		return nil, fmt.Errorf("payment provider returned incomplete intent")
	}

	return &intent, nil
}
