package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// Upsert creates the product or overwrites its name and stock.
	Upsert(ctx context.Context, p Product) (*Product, error)
	// Restock adds qty units to the current stock.
	Restock(ctx context.Context, id string, qty int) (*Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Upsert(ctx context.Context, p Product) (*Product, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%w: id and name are required", ErrInvalidProduct)
	}
	if p.Stock < 0 {
		return nil, fmt.Errorf("%w: negative stock %d", ErrInvalidProduct, p.Stock)
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, stock)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			stock = EXCLUDED.stock,
			updated_at = now()
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Stock).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Restock(ctx context.Context, id string, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be positive", ErrInvalidProduct)
	}

	var p Product
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2,
			updated_at = now()
		WHERE id = $1
		RETURNING id, name, stock, created_at, updated_at
	`, id, qty).Scan(&p.ID, &p.Name, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
