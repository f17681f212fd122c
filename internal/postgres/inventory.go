package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velora-shop/checkout/internal/checkout"
)

type InventoryRepo struct{ DB *pgxpool.Pool }

// aggregateByProduct merges line items that share a product id, e.g. the
// same shirt in two colors. Stock math and reservation rows must both see
// the combined quantity or ReleaseAll restores less than was taken.
func aggregateByProduct(items []checkout.LineItem) []checkout.LineItem {
	idx := make(map[string]int, len(items))
	out := make([]checkout.LineItem, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// ReserveAll decrements stock for every line item inside one transaction.
// The conditional UPDATE (stock >= qty) is the race-safety: two concurrent
// reservations can never both succeed when only one fits. Any shortfall
// rolls the whole transaction back, so a failed checkout leaves no item
// partially reserved.
func (r *InventoryRepo) ReserveAll(ctx context.Context, orderID string, items []checkout.LineItem) (bool, []checkout.Shortage, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var shortages []checkout.Shortage
	for _, it := range aggregateByProduct(items) {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2
			WHERE id = $1 AND stock >= $2`, it.ProductID, it.Quantity)
		if err != nil {
			return false, nil, err
		}
		if ct.RowsAffected() == 0 {
			var avail int
			err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, it.ProductID).Scan(&avail)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return false, nil, err
			}
			shortages = append(shortages, checkout.Shortage{
				ProductID: it.ProductID, Requested: it.Quantity, Available: avail,
			})
			continue
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, product_id, quantity, status)
			VALUES ($1,$2,$3,'RESERVED')
			ON CONFLICT (order_id, product_id) DO NOTHING`, orderID, it.ProductID, it.Quantity); err != nil {
			return false, nil, err
		}
	}

	if len(shortages) > 0 {
		return false, shortages, nil // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// ReleaseAll returns reserved stock for an order. Used when the payment
// session cannot be opened and by the stale-order reconciliation sweep.
func (r *InventoryRepo) ReleaseAll(ctx context.Context, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT product_id, quantity FROM reservations
		WHERE order_id = $1 AND status = 'RESERVED'`, orderID)
	if err != nil {
		return err
	}

	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id = $1`, x.pid, x.qty); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status = 'RELEASED'
		WHERE order_id = $1 AND status = 'RESERVED'`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
