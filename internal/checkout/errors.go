package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("user not authenticated")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrValidation      = errors.New("invalid checkout request")
	ErrCouponReused    = errors.New("coupon already used")
	ErrPaymentGateway  = errors.New("payment gateway error")
)

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s", e.ProductID)
}

// IsUserError reports whether err should surface as a caller mistake
// (HTTP 400) rather than a server-side failure.
func IsUserError(err error) bool {
	var notFound *ProductNotFoundError
	var noStock *InsufficientStockError
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCouponReused) ||
		errors.As(err, &notFound) ||
		errors.As(err, &noStock)
}
