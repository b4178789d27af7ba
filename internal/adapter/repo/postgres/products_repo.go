package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fairyhunter13/db-degradation-demo/internal/dbquery"
	"github.com/fairyhunter13/db-degradation-demo/internal/domain"
)

// ProductRepo serves the demo workload. Every call goes through the
// instrumented executor, so each one produces a fully attributed client
// span and honors fault-injection state.
type ProductRepo struct{ Exec *dbquery.Executor }

// NewProductRepo constructs a ProductRepo over the executor.
func NewProductRepo(exec *dbquery.Executor) *ProductRepo { return &ProductRepo{Exec: exec} }

// List returns up to limit products ordered by id.
func (r *ProductRepo) List(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.Exec.Query(ctx,
		`SELECT id, name, sku, price_cents, created_at FROM products ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, scanProduct(row))
	}
	return out, nil
}

// Get loads one product by id.
func (r *ProductRepo) Get(ctx context.Context, id int64) (domain.Product, error) {
	rows, err := r.Exec.Query(ctx,
		`SELECT id, name, sku, price_cents, created_at FROM products WHERE id = $1`, id)
	if err != nil {
		return domain.Product{}, err
	}
	if len(rows) == 0 {
		return domain.Product{}, fmt.Errorf("op=products.get id=%d: %w", id, domain.ErrNotFound)
	}
	return scanProduct(rows[0]), nil
}

func scanProduct(row dbquery.Row) domain.Product {
	var p domain.Product
	p.ID = asInt64(row["id"])
	p.Name, _ = row["name"].(string)
	p.SKU, _ = row["sku"].(string)
	p.PriceCents = asInt64(row["price_cents"])
	if t, ok := row["created_at"].(time.Time); ok {
		p.CreatedAt = t
	}
	return p
}

// asInt64 normalizes the integer widths pgx hands back for int columns.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
