package catalog

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

// Repository provides the read-only catalog lookups checkout needs. Product
// and address management live elsewhere; nothing here mutates.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, active, list_price, sale_price, on_sale
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Active, &product.ListPrice, &product.SalePrice, &product.OnSale)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return product, nil
}

func (r *Repository) GetAddress(ctx context.Context, id string) (*domain.Address, error) {
	address := &domain.Address{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, line1, city, postal_code, country
		FROM addresses
		WHERE id = $1
	`, id).Scan(&address.ID, &address.CustomerID, &address.Line1, &address.City, &address.PostalCode, &address.Country)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return address, nil
}
