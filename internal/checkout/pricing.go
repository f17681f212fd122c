package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Storewide rates. Decimals so intermediate math stays exact; only the
// final total is rounded to minor units.
var (
	TaxRate      = decimal.NewFromFloat(0.08)
	ShippingFlat = decimal.NewFromInt(15)
)

var oneHundred = decimal.NewFromInt(100)

// Price derives the order totals from server-resolved line items and an
// optional coupon. A fixed discount is clamped to the subtotal so the net
// can never go negative. Tax applies to the post-discount subtotal.
func Price(items []LineItem, coupon *Coupon) (Breakdown, error) {
	if len(items) == 0 {
		return Breakdown{}, ErrEmptyCart
	}

	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return Breakdown{}, fmt.Errorf("%w: invalid quantity for product %s", ErrValidation, it.ProductID)
		}
		subtotal = subtotal.Add(it.PriceAtTime.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	discount := decimal.Zero
	if coupon != nil {
		switch coupon.Kind {
		case DiscountPercentage:
			discount = subtotal.Mul(coupon.Value).Div(oneHundred)
		case DiscountFixed:
			discount = decimal.Min(coupon.Value, subtotal)
		default:
			return Breakdown{}, fmt.Errorf("%w: unknown discount kind %q", ErrValidation, coupon.Kind)
		}
	}

	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(TaxRate)
	total := taxable.Add(tax).Add(ShippingFlat)

	return Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: ShippingFlat,
		Total:    total.Round(2), // half-up, final step only
	}, nil
}
