package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velora-shop/checkout/internal/checkout"
)

type CouponRepo struct{ DB *pgxpool.Pool }

// FindActive looks a coupon up by exact, case-sensitive code. No match
// returns (nil, nil): an unknown code means "no discount", not an error.
func (r *CouponRepo) FindActive(ctx context.Context, code string) (*checkout.Coupon, error) {
	var c checkout.Coupon
	err := r.DB.QueryRow(ctx, `
		SELECT id, code, discount_type, value, is_active, expires_at, created_at
		FROM coupons WHERE code = $1 AND is_active = true`, code).
		Scan(&c.ID, &c.Code, &c.Kind, &c.Value, &c.Active, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Redeemed reports whether the user already owns a non-cancelled order
// referencing the coupon. Advisory only; OrderRepo.Create re-checks via
// the uniqueness constraint.
func (r *CouponRepo) Redeemed(ctx context.Context, couponID, userID string) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE user_id = $1 AND coupon_id = $2 AND status <> 'cancelled'`, userID, couponID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
