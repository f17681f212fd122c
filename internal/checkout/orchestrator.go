package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogReader resolves authoritative product snapshots. Every requested
// id must be present in the result or the checkout fails as a whole.
type CatalogReader interface {
	Resolve(ctx context.Context, ids []string) (map[string]ProductSnapshot, error)
}

// CouponStore looks up active coupons and answers the advisory
// single-use question. The binding check happens inside OrderStore.Create.
type CouponStore interface {
	FindActive(ctx context.Context, code string) (*Coupon, error)
	Redeemed(ctx context.Context, couponID, userID string) (bool, error)
}

// OrderStore persists the order header and its line items as one unit.
// Create returns ErrCouponReused when the (user, coupon) uniqueness check
// fails at commit time.
type OrderStore interface {
	Create(ctx context.Context, o *Order, items []LineItem) error
	Delete(ctx context.Context, orderID string) error
	Cancel(ctx context.Context, orderID string) error
}

type Shortage struct {
	ProductID string
	Requested int
	Available int
}

// InventoryStore decrements stock with compare-and-swap semantics. A
// shortfall on any item must leave no decrement applied.
type InventoryStore interface {
	ReserveAll(ctx context.Context, orderID string, items []LineItem) (ok bool, shortages []Shortage, err error)
	ReleaseAll(ctx context.Context, orderID string) error
}

type Session struct {
	URL string
	ID  string
}

type PaymentGateway interface {
	Open(ctx context.Context, o *Order, items []LineItem) (Session, error)
}

type Result struct {
	OrderID   string
	URL       string
	SessionID string
	Total     string
}

// Service sequences a checkout: resolve catalog, validate coupon, price,
// persist order+items, reserve stock, open the payment session. Stock is
// reserved before the session is opened so a gateway failure never
// strands inventory; the reservation is released if the session fails.
type Service struct {
	Catalog   CatalogReader
	Coupons   CouponStore
	Orders    OrderStore
	Inventory InventoryStore
	Payments  PaymentGateway
	Logger    *zap.Logger
}

func (s *Service) Checkout(ctx context.Context, userID string, items []CartItem, couponCode string) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrEmptyCart
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	snaps, err := s.Catalog.Resolve(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("resolve catalog: %w", err)
	}

	line := make([]LineItem, 0, len(items))
	for _, it := range items {
		p, ok := snaps[it.ProductID]
		if !ok {
			return Result{}, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if it.Quantity <= 0 {
			return Result{}, fmt.Errorf("%w: invalid quantity for product %s", ErrValidation, it.ProductID)
		}
		// advisory stock check against the snapshot; the reservation
		// below is the authoritative one
		if p.Stock < it.Quantity {
			return Result{}, &InsufficientStockError{ProductID: p.ID, Requested: it.Quantity, Available: p.Stock}
		}
		line = append(line, LineItem{
			ProductID:   p.ID,
			Name:        p.Name,
			Quantity:    it.Quantity,
			PriceAtTime: p.Price,
			Color:       it.Color,
			Size:        it.Size,
			ImageURL:    p.ImageURL,
		})
	}

	// A missing or inactive coupon is not an error: checkout proceeds at
	// full price.
	var coupon *Coupon
	if couponCode != "" {
		c, err := s.Coupons.FindActive(ctx, couponCode)
		if err != nil {
			return Result{}, fmt.Errorf("coupon lookup: %w", err)
		}
		if c.Usable(time.Now()) {
			used, err := s.Coupons.Redeemed(ctx, c.ID, userID)
			if err != nil {
				return Result{}, fmt.Errorf("coupon usage check: %w", err)
			}
			if used {
				return Result{}, ErrCouponReused
			}
			coupon = c
		}
	}

	bd, err := Price(line, coupon)
	if err != nil {
		return Result{}, err
	}

	o := &Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Subtotal:  bd.Subtotal,
		Discount:  bd.Discount,
		Tax:       bd.Tax,
		Shipping:  bd.Shipping,
		Total:     bd.Total,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if coupon != nil {
		o.CouponID = coupon.ID
	}
	if err := s.Orders.Create(ctx, o, line); err != nil {
		if errors.Is(err, ErrCouponReused) {
			return Result{}, ErrCouponReused
		}
		return Result{}, fmt.Errorf("create order: %w", err)
	}

	ok, shortages, err := s.Inventory.ReserveAll(ctx, o.ID, line)
	if err != nil {
		s.compensateDelete(ctx, o.ID)
		return Result{}, fmt.Errorf("reserve stock: %w", err)
	}
	if !ok {
		// a concurrent checkout won the stock; remove the order so no
		// trace of the failed attempt remains
		s.compensateDelete(ctx, o.ID)
		sh := shortages[0]
		return Result{}, &InsufficientStockError{ProductID: sh.ProductID, Requested: sh.Requested, Available: sh.Available}
	}

	sess, err := s.Payments.Open(ctx, o, line)
	if err != nil {
		if rerr := s.Inventory.ReleaseAll(ctx, o.ID); rerr != nil {
			s.Logger.Error("release reservation", zap.String("order_id", o.ID), zap.Error(rerr))
		}
		if cerr := s.Orders.Cancel(ctx, o.ID); cerr != nil {
			s.Logger.Error("cancel order", zap.String("order_id", o.ID), zap.Error(cerr))
		}
		return Result{}, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}

	s.Logger.Info("checkout completed",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return Result{OrderID: o.ID, URL: sess.URL, SessionID: sess.ID, Total: o.Total.StringFixed(2)}, nil
}

func (s *Service) compensateDelete(ctx context.Context, orderID string) {
	if err := s.Orders.Delete(ctx, orderID); err != nil {
		s.Logger.Error("compensating delete", zap.String("order_id", orderID), zap.Error(err))
	}
}
