package redisx

import "time"

const (
	// Checkout response replay: idem:checkout:{user_id}:{key} -> response
	// JSON. Scoped per user so one caller can never replay another's key.
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
