package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velora-shop/checkout/internal/checkout"
)

type OrderRepo struct{ DB *pgxpool.Pool }

const uniqueViolation = "23505"

// Create inserts the order header and its line items in one transaction.
// The partial unique index on (user_id, coupon_id) among non-cancelled
// orders enforces coupon single use at commit time; a violation surfaces
// as checkout.ErrCouponReused. Rollback on any failure means no
// header-only order is ever observable.
func (r *OrderRepo) Create(ctx context.Context, o *checkout.Order, items []checkout.LineItem) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var couponID any
	if o.CouponID != "" {
		couponID = o.CouponID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, subtotal, discount_amount, tax_amount, shipping_amount, total, status, coupon_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.UserID, o.Subtotal, o.Discount, o.Tax, o.Shipping, o.Total, string(o.Status), couponID, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return checkout.ErrCouponReused
		}
		return err
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, price_at_time, color, size)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, it.Quantity, it.PriceAtTime, it.Color, it.Size,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Delete removes the order and its items entirely. Used as the
// compensation when stock reservation fails after the order was written.
func (r *OrderRepo) Delete(ctx context.Context, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Cancel and Complete are the only status transitions an order permits
// once its items are attached. Both are idempotent: the WHERE clause
// skips orders that already left the pending state.
func (r *OrderRepo) Cancel(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`, orderID)
	return err
}

func (r *OrderRepo) Complete(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET status = 'completed' WHERE id = $1 AND status = 'pending'`, orderID)
	return err
}

func (r *OrderRepo) GetStatus(ctx context.Context, orderID string) (checkout.Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&s)
	if err != nil {
		return "", err
	}
	return checkout.Status(s), nil
}

// StalePending lists pending orders created before the cutoff, oldest
// first. Feed for the reconciliation sweep.
func (r *OrderRepo) StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
