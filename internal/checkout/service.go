package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/payment"
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrEmptyCart       = errors.New("empty cart")
	ErrInvalidQuantity = errors.New("line quantity must be positive")
	ErrPaymentGateway  = errors.New("payment gateway error")
)

// ProductUnavailableError covers unknown and inactive products alike; the
// caller has no business knowing which.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return "product unavailable: " + e.ProductID
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CatalogStore interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetAddress(ctx context.Context, id string) (*domain.Address, error)
}

type OrderStore interface {
	CreateReserving(ctx context.Context, order *domain.Order) error
	AttachPaymentIntent(ctx context.Context, orderID, intentID string) (bool, error)
	CancelForGatewayFailure(ctx context.Context, orderID string) error
}

type Result struct {
	OrderID      string `json:"order_id"`
	OrderNumber  string `json:"order_number"`
	ClientSecret string `json:"client_secret"`
}

// Service runs the checkout sequence: validate the cart, snapshot prices,
// reserve stock and persist the order atomically, then request a payment
// intent. The order row always exists before the provider side does, so a
// gateway intent can never be orphaned without an order to reconcile it to.
type Service struct {
	catalog CatalogStore
	orders  OrderStore
	gateway payment.IntentCreator
	pricing Pricing
	logger  *slog.Logger
}

func NewService(catalog CatalogStore, orders OrderStore, gateway payment.IntentCreator, pricing Pricing, logger *slog.Logger) *Service {
	return &Service{
		catalog: catalog,
		orders:  orders,
		gateway: gateway,
		pricing: pricing,
		logger:  logger,
	}
}

func (s *Service) Checkout(ctx context.Context, customerID, addressID string, cart []CartLine) (*Result, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range cart {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, line.ProductID)
		}
	}

	address, err := s.catalog.GetAddress(ctx, addressID)
	if err != nil {
		return nil, fmt.Errorf("load address: %w", err)
	}
	if address == nil || address.CustomerID != customerID {
		return nil, ErrInvalidAddress
	}

	lines := make([]domain.OrderLine, 0, len(cart))
	var subtotal int64
	for _, item := range cart {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if product == nil || !product.Active {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}

		unitPrice := product.CurrentPrice()
		line := domain.OrderLine{
			ProductID:    product.ID,
			Quantity:     item.Quantity,
			UnitPrice:    unitPrice,
			LineSubtotal: unitPrice * int64(item.Quantity),
		}
		subtotal += line.LineSubtotal
		lines = append(lines, line)
	}

	tax := s.pricing.Tax(subtotal)
	shipping := s.pricing.Shipping(subtotal)

	order := &domain.Order{
		CustomerID:   customerID,
		AddressID:    addressID,
		Lines:        lines,
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		Total:        subtotal + tax + shipping,
		CreatedAt:    time.Now().UTC(),
	}

	// Reservation and order insert commit together; on any failure the
	// transaction rolls back and no reservation is left outstanding.
	if err := s.orders.CreateReserving(ctx, order); err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, order.Total, s.pricing.Currency, payment.Metadata{
		"order_id":     order.ID,
		"order_number": order.Number,
		"customer_id":  customerID,
	})
	if err != nil {
		// Timeouts compensate the same way as explicit gateway errors: the
		// customer must never be left with a half-open order.
		s.compensate(ctx, order.ID)
		s.logger.Error("payment intent creation failed", "error", err, "order_id", order.ID)
		return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	attached, err := s.orders.AttachPaymentIntent(ctx, order.ID, intent.ID)
	if err != nil {
		s.compensate(ctx, order.ID)
		return nil, fmt.Errorf("attach payment intent: %w", err)
	}
	if !attached {
		// The order left the pending state underneath us; the unconfirmed
		// provider intent simply expires on their side.
		s.compensate(ctx, order.ID)
		return nil, fmt.Errorf("%w: order %s no longer pending", ErrPaymentGateway, order.ID)
	}

	s.logger.Info("checkout complete",
		"order_id", order.ID,
		"order_number", order.Number,
		"customer_id", customerID,
		"total", order.Total,
		"payment_intent_id", intent.ID,
	)

	return &Result{
		OrderID:      order.ID,
		OrderNumber:  order.Number,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (s *Service) compensate(ctx context.Context, orderID string) {
	if err := s.orders.CancelForGatewayFailure(ctx, orderID); err != nil {
		// Reservations stay held until an operator releases them; surfaced
		// loudly instead of silently dropped.
		s.logger.Error("checkout compensation failed, manual release required", "error", err, "order_id", orderID)
	}
}
