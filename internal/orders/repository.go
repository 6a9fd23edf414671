package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/inventory"
)

var ErrIllegalTransition = errors.New("illegal order status transition")

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// newOrderNumber builds the human-readable unique order number. Uniqueness
// is ultimately enforced by the column constraint.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("SO-%s-%s", now.UTC().Format("20060102"), suffix)
}

// CreateReserving inserts the order and its lines and reserves stock for
// every line in one transaction. If any line cannot be reserved the whole
// transaction rolls back, so no partial reservation ever survives an error.
func (r *OrderRepository) CreateReserving(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ledger := inventory.NewLedger(tx)
	for _, line := range order.Lines {
		if err := ledger.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}

	order.ID = uuid.New().String()
	order.Number = newOrderNumber(order.CreatedAt)
	order.Status = domain.OrderStatusCreated
	order.PaymentState = domain.PaymentStatePending

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, number, customer_id, address_id, status, payment_state, subtotal, tax, shipping_cost, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, order.ID, order.Number, order.CustomerID, order.AddressID, order.Status, order.PaymentState,
		order.Subtotal, order.Tax, order.ShippingCost, order.Total, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		lineID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, line_subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, lineID, order.ID, line.ProductID, line.Quantity, line.UnitPrice, line.LineSubtotal)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const orderColumns = `id, number, customer_id, address_id, status, payment_state, payment_intent_id, subtotal, tax, shipping_cost, total, created_at, updated_at`

func scanOrder(row *sql.Row) (*domain.Order, error) {
	order := &domain.Order{}
	var intentID sql.NullString

	err := row.Scan(&order.ID, &order.Number, &order.CustomerID, &order.AddressID,
		&order.Status, &order.PaymentState, &intentID,
		&order.Subtotal, &order.Tax, &order.ShippingCost, &order.Total,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	order.PaymentIntentID = intentID.String
	return order, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, order *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price, line_subtotal
		FROM order_lines
		WHERE order_id = $1
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineSubtotal); err != nil {
			return err
		}
		order.Lines = append(order.Lines, line)
	}

	return rows.Err()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil || order == nil {
		return order, err
	}

	if err := r.loadLines(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// GetByPaymentIntentID resolves webhook deliveries; the intent id is the
// sole correlation key between the checkout and webhook flows.
func (r *OrderRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE payment_intent_id = $1
	`, intentID))
	if err != nil || order == nil {
		return order, err
	}

	if err := r.loadLines(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// AttachPaymentIntent records the gateway intent and moves the payment to
// processing. Conditional on pending so a late or duplicate attach never
// clobbers a settled order.
func (r *OrderRepository) AttachPaymentIntent(ctx context.Context, orderID, intentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_intent_id = $2, payment_state = $3, updated_at = NOW()
		WHERE id = $1 AND payment_state = $4
	`, orderID, intentID, domain.PaymentStateProcessing, domain.PaymentStatePending)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// MarkPaid is the payment_succeeded transition: processing -> paid, order
// confirmed. The WHERE clause makes concurrent deliveries race on the row;
// exactly one wins and the rest see zero rows affected.
func (r *OrderRepository) MarkPaid(ctx context.Context, intentID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = $2, status = $3, updated_at = NOW()
		WHERE payment_intent_id = $1 AND payment_state = $4
	`, intentID, domain.PaymentStatePaid, domain.OrderStatusConfirmed, domain.PaymentStateProcessing)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// CancelAndRestock is the payment_failed transition: processing -> failed,
// order cancelled, every reserved line released. The conditional update and
// the restock share one transaction, so compensation runs exactly once no
// matter how often the event is redelivered.
func (r *OrderRepository) CancelAndRestock(ctx context.Context, intentID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var orderID string
	err = tx.QueryRowContext(ctx, `
		UPDATE orders
		SET payment_state = $2, status = $3, updated_at = NOW()
		WHERE payment_intent_id = $1 AND payment_state = $4
		RETURNING id
	`, intentID, domain.PaymentStateFailed, domain.OrderStatusCancelled, domain.PaymentStateProcessing).Scan(&orderID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	if err := r.restockLines(ctx, tx, orderID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// CancelForGatewayFailure compensates a checkout whose gateway call failed:
// the order is cancelled with payment marked failed and all reservations are
// released. Conditional on the payment not being settled yet.
func (r *OrderRepository) CancelForGatewayFailure(ctx context.Context, orderID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_state IN ($4, $5)
	`, orderID, domain.PaymentStateFailed, domain.OrderStatusCancelled,
		domain.PaymentStatePending, domain.PaymentStateProcessing)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		// Already settled; nothing to compensate.
		return nil
	}

	if err := r.restockLines(ctx, tx, orderID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *OrderRepository) restockLines(ctx context.Context, tx *sql.Tx, orderID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM order_lines
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return err
	}

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
			_ = rows.Close()
			return err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	ledger := inventory.NewLedger(tx)
	for _, line := range lines {
		if err := ledger.Release(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}

	return nil
}

// UpdateStatus advances the fulfillment lifecycle. The current status is
// locked while the transition table is checked, so two concurrent updates
// cannot both apply.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if !current.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, next)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2
	`, next, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		var intentID sql.NullString
		if err := rows.Scan(&order.ID, &order.Number, &order.CustomerID, &order.AddressID,
			&order.Status, &order.PaymentState, &intentID,
			&order.Subtotal, &order.Tax, &order.ShippingCost, &order.Total,
			&order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.PaymentIntentID = intentID.String
		order.Lines = []domain.OrderLine{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	lineRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price, line_subtotal
		FROM order_lines
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = lineRows.Close() }()

	for lineRows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := lineRows.Scan(&orderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.LineSubtotal); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Lines = append(order.Lines, line)
	}

	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}
