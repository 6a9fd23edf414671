package inventory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

// ErrInsufficientStock is the expected outcome of reserving more units than
// are available. It aborts the whole checkout; it is not an infrastructure
// error.
var ErrInsufficientStock = errors.New("insufficient stock")

var ErrNothingReserved = errors.New("insufficient reserved stock to release")

// InsufficientStockError names the product that could not be reserved.
// errors.Is(err, ErrInsufficientStock) matches it.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock for product " + e.ProductID
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// DBTX is satisfied by both *sql.DB and *sql.Tx, so ledger operations can
// join a caller-owned transaction (checkout reserves and inserts the order
// atomically; reconciliation restocks and cancels atomically).
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Ledger struct {
	db DBTX
}

func NewLedger(db DBTX) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) ListAll(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, available, reserved
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var levels []domain.StockLevel
	for rows.Next() {
		var stock domain.StockLevel
		if err := rows.Scan(&stock.ProductID, &stock.Available, &stock.Reserved); err != nil {
			return nil, err
		}
		levels = append(levels, stock)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return levels, nil
}

func (l *Ledger) GetStock(ctx context.Context, productID string) (*domain.StockLevel, error) {
	stock := &domain.StockLevel{}

	err := l.db.QueryRowContext(ctx, `
		SELECT id, available, reserved
		FROM products
		WHERE id = $1
	`, productID).Scan(&stock.ProductID, &stock.Available, &stock.Reserved)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return stock, nil
}

// Reserve decrements available stock only if enough is left, in a single
// conditional update. Concurrent reservations on the same product race on
// the row, never on a stale read.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE products
		SET available = available - $2, reserved = reserved + $2
		WHERE id = $1 AND available >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return &InsufficientStockError{ProductID: productID}
	}

	return nil
}

// Release returns previously reserved units. Callers are responsible for
// invoking it at most once per logical reservation; the reserved >= quantity
// guard only protects against releasing units that were never reserved.
func (l *Ledger) Release(ctx context.Context, productID string, quantity int) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE products
		SET available = available + $2, reserved = reserved - $2
		WHERE id = $1 AND reserved >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNothingReserved
	}

	return nil
}
