package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/inventory"
	"github.com/joao-fontenele/shopflow/internal/payment"
)

type fakeCatalog struct {
	products  map[string]*domain.Product
	addresses map[string]*domain.Address
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	return f.products[id], nil
}

func (f *fakeCatalog) GetAddress(_ context.Context, id string) (*domain.Address, error) {
	return f.addresses[id], nil
}

type fakeOrderStore struct {
	stock        map[string]int
	created      *domain.Order
	attachedTo   string
	intentID     string
	compensated  []string
	attachResult bool
	attachErr    error
}

func (f *fakeOrderStore) CreateReserving(_ context.Context, order *domain.Order) error {
	for _, line := range order.Lines {
		if f.stock[line.ProductID] < line.Quantity {
			return &inventory.InsufficientStockError{ProductID: line.ProductID}
		}
	}
	for _, line := range order.Lines {
		f.stock[line.ProductID] -= line.Quantity
	}
	order.ID = "ord_1"
	order.Number = "SO-20260831-TEST0001"
	order.Status = domain.OrderStatusCreated
	order.PaymentState = domain.PaymentStatePending
	f.created = order
	return nil
}

func (f *fakeOrderStore) AttachPaymentIntent(_ context.Context, orderID, intentID string) (bool, error) {
	if f.attachErr != nil {
		return false, f.attachErr
	}
	f.attachedTo = orderID
	f.intentID = intentID
	return f.attachResult, nil
}

func (f *fakeOrderStore) CancelForGatewayFailure(_ context.Context, orderID string) error {
	f.compensated = append(f.compensated, orderID)
	if f.created != nil && f.created.ID == orderID {
		for _, line := range f.created.Lines {
			f.stock[line.ProductID] += line.Quantity
		}
	}
	return nil
}

type fakeGateway struct {
	intent *payment.Intent
	err    error
	calls  int
}

func (f *fakeGateway) CreateIntent(_ context.Context, _ int64, _ string, _ payment.Metadata) (*payment.Intent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.intent, nil
}

func testPricing() Pricing {
	return Pricing{
		TaxRate:               decimal.NewFromFloat(0.10),
		FreeShippingThreshold: 10000,
		FlatShippingFee:       500,
		Currency:              "usd",
	}
}

func newTestService(catalog *fakeCatalog, store *fakeOrderStore, gw *fakeGateway) *Service {
	return NewService(catalog, store, gw, testPricing(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func defaultCatalog() *fakeCatalog {
	return &fakeCatalog{
		products: map[string]*domain.Product{
			"PROD-001": {ID: "PROD-001", Name: "Organizer", Active: true, ListPrice: 4500, SalePrice: 3900, OnSale: true},
			"PROD-002": {ID: "PROD-002", Name: "Lamp", Active: true, ListPrice: 12900},
			"PROD-003": {ID: "PROD-003", Name: "Tray", Active: false, ListPrice: 2400},
		},
		addresses: map[string]*domain.Address{
			"ADDR-001": {ID: "ADDR-001", CustomerID: "CUST-001"},
		},
	}
}

func TestService_Checkout(t *testing.T) {
	ctx := context.Background()

	t.Run("computes snapshot prices and totals", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-001": 10}, attachResult: true}
		gw := &fakeGateway{intent: &payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret"}}
		svc := newTestService(defaultCatalog(), store, gw)

		result, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", []CartLine{{ProductID: "PROD-001", Quantity: 2}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		order := store.created
		if order == nil {
			t.Fatal("expected order to be created")
		}
		// Sale price 3900 snapshotted, not the 4500 list price.
		if order.Lines[0].UnitPrice != 3900 {
			t.Errorf("expected unit price 3900, got %d", order.Lines[0].UnitPrice)
		}
		if order.Subtotal != 7800 {
			t.Errorf("expected subtotal 7800, got %d", order.Subtotal)
		}
		if order.Tax != 780 {
			t.Errorf("expected tax 780, got %d", order.Tax)
		}
		if order.ShippingCost != 500 {
			t.Errorf("expected flat shipping 500, got %d", order.ShippingCost)
		}
		if order.Total != order.Subtotal+order.Tax+order.ShippingCost {
			t.Errorf("total %d does not equal subtotal+tax+shipping", order.Total)
		}
		if result.ClientSecret != "pi_1_secret" {
			t.Errorf("expected client secret from gateway, got %q", result.ClientSecret)
		}
		if store.intentID != "pi_1" {
			t.Errorf("expected intent pi_1 attached, got %q", store.intentID)
		}
	})

	t.Run("free shipping above threshold", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-002": 5}, attachResult: true}
		gw := &fakeGateway{intent: &payment.Intent{ID: "pi_2", ClientSecret: "s"}}
		svc := newTestService(defaultCatalog(), store, gw)

		if _, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", []CartLine{{ProductID: "PROD-002", Quantity: 1}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.created.ShippingCost != 0 {
			t.Errorf("expected free shipping, got %d", store.created.ShippingCost)
		}
	})

	t.Run("rejects empty cart", func(t *testing.T) {
		svc := newTestService(defaultCatalog(), &fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		if _, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", nil); !errors.Is(err, ErrEmptyCart) {
			t.Fatalf("expected ErrEmptyCart, got %v", err)
		}
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		svc := newTestService(defaultCatalog(), &fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		_, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", []CartLine{{ProductID: "PROD-001", Quantity: 0}})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("rejects an address owned by someone else", func(t *testing.T) {
		svc := newTestService(defaultCatalog(), &fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		_, err := svc.Checkout(ctx, "CUST-OTHER", "ADDR-001", []CartLine{{ProductID: "PROD-001", Quantity: 1}})
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress, got %v", err)
		}
	})

	t.Run("rejects unknown address", func(t *testing.T) {
		svc := newTestService(defaultCatalog(), &fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		_, err := svc.Checkout(ctx, "CUST-001", "ADDR-MISSING", []CartLine{{ProductID: "PROD-001", Quantity: 1}})
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress, got %v", err)
		}
	})

	t.Run("rejects inactive and unknown products", func(t *testing.T) {
		svc := newTestService(defaultCatalog(), &fakeOrderStore{stock: map[string]int{}}, &fakeGateway{})

		for _, productID := range []string{"PROD-003", "PROD-MISSING"} {
			_, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", []CartLine{{ProductID: productID, Quantity: 1}})
			var unavailable *ProductUnavailableError
			if !errors.As(err, &unavailable) {
				t.Fatalf("product %s: expected ProductUnavailableError, got %v", productID, err)
			}
			if unavailable.ProductID != productID {
				t.Errorf("expected product id %s, got %s", productID, unavailable.ProductID)
			}
		}
	})

	t.Run("insufficient stock aborts before the gateway is called", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-001": 1}}
		gw := &fakeGateway{intent: &payment.Intent{ID: "pi", ClientSecret: "s"}}
		svc := newTestService(defaultCatalog(), store, gw)

		_, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", []CartLine{{ProductID: "PROD-001", Quantity: 2}})
		if !errors.Is(err, inventory.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		if gw.calls != 0 {
			t.Errorf("gateway must not be called, got %d calls", gw.calls)
		}
		if store.stock["PROD-001"] != 1 {
			t.Errorf("stock must be unchanged, got %d", store.stock["PROD-001"])
		}
	})

	t.Run("gateway failure compensates and releases stock", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-001": 5}}
		gw := &fakeGateway{err: errors.New("connection refused")}
		svc := newTestService(defaultCatalog(), store, gw)

		_, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", []CartLine{{ProductID: "PROD-001", Quantity: 3}})
		if !errors.Is(err, ErrPaymentGateway) {
			t.Fatalf("expected ErrPaymentGateway, got %v", err)
		}
		if len(store.compensated) != 1 || store.compensated[0] != "ord_1" {
			t.Errorf("expected one compensation for ord_1, got %v", store.compensated)
		}
		if store.stock["PROD-001"] != 5 {
			t.Errorf("expected stock restored to 5, got %d", store.stock["PROD-001"])
		}
	})

	t.Run("attach failure compensates", func(t *testing.T) {
		store := &fakeOrderStore{stock: map[string]int{"PROD-001": 5}, attachErr: errors.New("storage down")}
		gw := &fakeGateway{intent: &payment.Intent{ID: "pi", ClientSecret: "s"}}
		svc := newTestService(defaultCatalog(), store, gw)

		if _, err := svc.Checkout(ctx, "CUST-001", "ADDR-001", []CartLine{{ProductID: "PROD-001", Quantity: 1}}); err == nil {
			t.Fatal("expected error")
		}
		if len(store.compensated) != 1 {
			t.Errorf("expected compensation, got %v", store.compensated)
		}
	})
}
