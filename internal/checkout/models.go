package checkout

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductSnapshot is the catalog state read once at checkout time. The
// pipeline never re-reads price or stock after this point.
type ProductSnapshot struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Stock    int
	ImageURL string
}

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

type Coupon struct {
	ID        string
	Code      string
	Kind      DiscountKind
	Value     decimal.Decimal
	Active    bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Usable reports whether the coupon may be applied at the given instant.
func (c *Coupon) Usable(now time.Time) bool {
	if c == nil || !c.Active {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// CartItem is what the client sends: ids and quantities only. Prices are
// always resolved server-side.
type CartItem struct {
	ProductID string `json:"id"`
	Quantity  int    `json:"quantity"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

// LineItem is a cart item joined with its price snapshot. Immutable once
// the order is written.
type LineItem struct {
	ProductID   string
	Name        string
	Quantity    int
	PriceAtTime decimal.Decimal
	Color       string
	Size        string
	ImageURL    string
}

type Breakdown struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

type Order struct {
	ID        string
	UserID    string
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Tax       decimal.Decimal
	Shipping  decimal.Decimal
	Total     decimal.Decimal
	Status    Status
	CouponID  string // empty when no coupon was applied
	CreatedAt time.Time
}
