package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velora-shop/checkout/internal/checkout"
)

type CatalogRepo struct{ DB *pgxpool.Pool }

// Resolve reads price/stock/name snapshots for the given product ids.
// Missing ids are simply absent from the result; the orchestrator treats
// that as a fatal validation error.
func (r *CatalogRepo) Resolve(ctx context.Context, ids []string) (map[string]checkout.ProductSnapshot, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, price, stock, image_url FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]checkout.ProductSnapshot, len(ids))
	for rows.Next() {
		var p checkout.ProductSnapshot
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.ImageURL); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}
