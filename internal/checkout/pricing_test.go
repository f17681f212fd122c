package checkout

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func li(id, price string, qty int) LineItem {
	return LineItem{ProductID: id, Name: id, Quantity: qty, PriceAtTime: d(price)}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name     string
		items    []LineItem
		coupon   *Coupon
		subtotal string
		discount string
		tax      string
		total    string
	}{
		{
			name:     "no coupon",
			items:    []LineItem{li("P1", "10.00", 2)},
			subtotal: "20",
			discount: "0",
			tax:      "1.6",
			total:    "36.6",
		},
		{
			name:     "percentage coupon",
			items:    []LineItem{li("P1", "10.00", 2)},
			coupon:   &Coupon{Kind: DiscountPercentage, Value: d("10"), Active: true},
			subtotal: "20",
			discount: "2",
			tax:      "1.44",
			total:    "34.44",
		},
		{
			name:     "fixed coupon",
			items:    []LineItem{li("P1", "25.00", 2)},
			coupon:   &Coupon{Kind: DiscountFixed, Value: d("5"), Active: true},
			subtotal: "50",
			discount: "5",
			tax:      "3.6",
			total:    "63.6",
		},
		{
			name:     "fixed coupon clamped to subtotal",
			items:    []LineItem{li("P1", "10.00", 2)},
			coupon:   &Coupon{Kind: DiscountFixed, Value: d("50"), Active: true},
			subtotal: "20",
			discount: "20",
			tax:      "0",
			total:    "15",
		},
		{
			name:     "multiple items",
			items:    []LineItem{li("P1", "10.00", 2), li("P2", "5.50", 3)},
			subtotal: "36.5",
			discount: "0",
			tax:      "2.92",
			total:    "54.42",
		},
		{
			name: "half cent rounds up at the final step",
			// taxable 0.125, tax 0.01, total 15.135 -> 15.14
			items:    []LineItem{li("P1", "0.25", 1)},
			coupon:   &Coupon{Kind: DiscountPercentage, Value: d("50"), Active: true},
			subtotal: "0.25",
			discount: "0.125",
			tax:      "0.01",
			total:    "15.14",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bd, err := Price(tt.items, tt.coupon)
			require.NoError(t, err)
			assert.True(t, d(tt.subtotal).Equal(bd.Subtotal), "subtotal: got %s", bd.Subtotal)
			assert.True(t, d(tt.discount).Equal(bd.Discount), "discount: got %s", bd.Discount)
			assert.True(t, d(tt.tax).Equal(bd.Tax), "tax: got %s", bd.Tax)
			assert.True(t, ShippingFlat.Equal(bd.Shipping), "shipping: got %s", bd.Shipping)
			assert.True(t, d(tt.total).Equal(bd.Total), "total: got %s", bd.Total)

			// total == subtotal - discount + tax + shipping (rounded once)
			recomposed := bd.Subtotal.Sub(bd.Discount).Add(bd.Tax).Add(bd.Shipping).Round(2)
			assert.True(t, recomposed.Equal(bd.Total))
			assert.True(t, bd.Discount.LessThanOrEqual(bd.Subtotal))
		})
	}
}

func TestPriceEmptyCart(t *testing.T) {
	_, err := Price(nil, nil)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestPriceInvalidQuantity(t *testing.T) {
	_, err := Price([]LineItem{li("P1", "10.00", 0)}, nil)
	require.ErrorIs(t, err, ErrValidation)

	_, err = Price([]LineItem{li("P1", "10.00", -1)}, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCouponUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	var nilCoupon *Coupon
	assert.False(t, nilCoupon.Usable(now))
	assert.False(t, (&Coupon{Active: false}).Usable(now))
	assert.True(t, (&Coupon{Active: true}).Usable(now))
	assert.False(t, (&Coupon{Active: true, ExpiresAt: &past}).Usable(now))
	assert.True(t, (&Coupon{Active: true, ExpiresAt: &future}).Usable(now))
}
