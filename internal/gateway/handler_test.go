package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleStorefront(t *testing.T) {
	t.Run("proxies POST /checkout with identity header", func(t *testing.T) {
		storefrontServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/checkout" {
				t.Errorf("expected /checkout, got %s", r.URL.Path)
			}
			if r.Header.Get("X-Customer-ID") != "CUST-001" {
				t.Errorf("expected identity header forwarded, got %q", r.Header.Get("X-Customer-ID"))
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"address_id":"ADDR-001","lines":[{"product_id":"PROD-001","quantity":1}]}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"order_id":"ord_1"}`))
		}))
		defer storefrontServer.Close()

		handler := NewHandler(
			NewServiceProxy(storefrontServer.URL, storefrontServer.Client()),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodPost, "/checkout",
			strings.NewReader(`{"address_id":"ADDR-001","lines":[{"product_id":"PROD-001","quantity":1}]}`))
		req.Header.Set("X-Customer-ID", "CUST-001")
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != `{"order_id":"ord_1"}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("forwards webhook signature header", func(t *testing.T) {
		storefrontServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/webhooks/payment" {
				t.Errorf("expected /webhooks/payment, got %s", r.URL.Path)
			}
			if r.Header.Get("Provider-Signature") != "t=1,v1=abc" {
				t.Errorf("expected signature header forwarded, got %q", r.Header.Get("Provider-Signature"))
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer storefrontServer.Close()

		handler := NewHandler(
			NewServiceProxy(storefrontServer.URL, storefrontServer.Client()),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{}`))
		req.Header.Set("Provider-Signature", "t=1,v1=abc")
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("preserves downstream error status", func(t *testing.T) {
		storefrontServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"insufficient stock"}`))
		}))
		defer storefrontServer.Close()

		handler := NewHandler(
			NewServiceProxy(storefrontServer.URL, storefrontServer.Client()),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when storefront service unavailable", func(t *testing.T) {
		handler := NewHandler(
			NewServiceProxy("http://localhost:99999", &http.Client{}),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleStorefront(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_HandleInventory(t *testing.T) {
	t.Run("rewrites /inventory prefix for the stock service", func(t *testing.T) {
		inventoryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/stock/PROD-001" {
				t.Errorf("expected /stock/PROD-001, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"product_id":"PROD-001","available":10,"reserved":2}`))
		}))
		defer inventoryServer.Close()

		handler := NewHandler(
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy(inventoryServer.URL, inventoryServer.Client()),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodGet, "/inventory/PROD-001", nil)
		rec := httptest.NewRecorder()

		handler.HandleInventory(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("maps the bare /inventory path to the stock listing", func(t *testing.T) {
		inventoryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/stock" {
				t.Errorf("expected /stock, got %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[]`))
		}))
		defer inventoryServer.Close()

		handler := NewHandler(
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy(inventoryServer.URL, inventoryServer.Client()),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodGet, "/inventory", nil)
		rec := httptest.NewRecorder()

		handler.HandleInventory(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when inventory service unavailable", func(t *testing.T) {
		handler := NewHandler(
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy("http://localhost:99999", &http.Client{}),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodGet, "/inventory/PROD-001", nil)
		rec := httptest.NewRecorder()

		handler.HandleInventory(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}
	})
}
