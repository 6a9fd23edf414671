package checkout

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joao-fontenele/shopflow/internal/payment"
)

func newTestHandler(store *fakeOrderStore, gw *fakeGateway) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(newTestService(defaultCatalog(), store, gw), nil, logger)
}

func postCheckout(h *Handler, customerID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if customerID != "" {
		req.Header.Set("X-Customer-ID", customerID)
	}
	rec := httptest.NewRecorder()
	h.HandleCheckout(rec, req)
	return rec
}

func TestHandler_HandleCheckout(t *testing.T) {
	validBody := `{"address_id":"ADDR-001","items":[{"product_id":"PROD-001","quantity":1}]}`

	t.Run("returns 201 with order and client secret", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-001": 5}, attachResult: true}
		gw := &fakeGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret"}}
		h := newTestHandler(store, gw)

		rec := postCheckout(h, "CUST-001", validBody)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var result Result
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if result.OrderID == "" || result.ClientSecret != "pi_1_secret" {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("returns 401 without customer identity", func(t *testing.T) {
		h := newTestHandler(&fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		if rec := postCheckout(h, "", validBody); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on malformed body", func(t *testing.T) {
		h := newTestHandler(&fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		if rec := postCheckout(h, "CUST-001", "{"); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 400 on empty cart", func(t *testing.T) {
		h := newTestHandler(&fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		rec := postCheckout(h, "CUST-001", `{"address_id":"ADDR-001","items":[]}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 422 on invalid address", func(t *testing.T) {
		h := newTestHandler(&fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		rec := postCheckout(h, "CUST-OTHER", validBody)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("returns 409 with the product on insufficient stock", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-001": 0}}
		h := newTestHandler(store, &fakeGateway{})

		rec := postCheckout(h, "CUST-001", validBody)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp checkoutError
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.ProductID != "PROD-001" {
			t.Errorf("expected product id PROD-001, got %q", resp.ProductID)
		}
	})

	t.Run("returns 502 on gateway failure", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-001": 5}}
		gw := &fakeGateway{err: io.ErrUnexpectedEOF}
		h := newTestHandler(store, gw)

		rec := postCheckout(h, "CUST-001", validBody)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		if store.created == nil || len(store.compensated) != 1 {
			t.Error("expected the order to be created then compensated")
		}
	})
}
