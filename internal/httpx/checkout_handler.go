package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/velora-shop/checkout/internal/checkout"
	kafkax "github.com/velora-shop/checkout/internal/kafka"
	"github.com/velora-shop/checkout/internal/metrics"
	"github.com/velora-shop/checkout/internal/redisx"
)

// IdempotencyHeader lets a caller replay a checkout safely: the first
// successful response is cached and returned verbatim for the same key.
const IdempotencyHeader = "Idempotency-Key"

type Checkouter interface {
	Checkout(ctx context.Context, userID string, items []checkout.CartItem, couponCode string) (checkout.Result, error)
}

type Identity interface {
	UserID(r *http.Request) (string, error)
}

type OrderReader interface {
	GetStatus(ctx context.Context, orderID string) (checkout.Status, error)
}

type CheckoutHandler struct {
	Service  Checkouter
	Auth     Identity
	Orders   OrderReader
	Redis    *redis.Client    // optional
	Producer *kafkax.Producer // optional
	Logger   *zap.Logger
	Name     string // producer name in event envelopes
}

type checkoutReq struct {
	Items      []checkout.CartItem `json:"items"`
	CouponCode string              `json:"coupon_code,omitempty"`
}

type checkoutResp struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
	OrderID   string `json:"order_id"`
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/api/checkout", h.createCheckout)
	r.Get("/api/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (h *CheckoutHandler) createCheckout(w http.ResponseWriter, r *http.Request) {
	// reject unauthenticated callers before any other work
	userID, err := h.Auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, checkout.ErrUnauthenticated.Error())
		return
	}

	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	idemKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if idemKey != "" && h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemCheckout, userID, idemKey)
		if cached, err := h.Redis.Get(ctx, key).Result(); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	res, err := h.Service.Checkout(ctx, userID, req.Items, req.CouponCode)
	if err != nil {
		code, outcome := classify(err)
		if code >= http.StatusInternalServerError {
			h.Logger.Error("checkout failed", zap.String("user_id", userID), zap.Error(err))
		}
		metrics.RecordCheckout(outcome)
		writeError(w, code, err.Error())
		return
	}
	metrics.RecordCheckout("success")

	resp := checkoutResp{URL: res.URL, SessionID: res.SessionID, OrderID: res.OrderID}
	body, _ := json.Marshal(resp)

	if h.Redis != nil {
		if idemKey != "" {
			key := fmt.Sprintf(redisx.KeyIdemCheckout, userID, idemKey)
			_ = h.Redis.Set(ctx, key, body, redisx.TTLIdempotency).Err()
		}
		statusKey := fmt.Sprintf(redisx.KeyOrderStatus, res.OrderID)
		_ = h.Redis.Set(ctx, statusKey, `{"status":"pending"}`, redisx.TTLStatusCache).Err()
	}

	h.publishCreated(r, userID, req.Items, res)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *CheckoutHandler) publishCreated(r *http.Request, userID string, items []checkout.CartItem, res checkout.Result) {
	if h.Producer == nil {
		return
	}
	evItems := make([]checkout.EventItem, 0, len(items))
	for _, it := range items {
		evItems = append(evItems, checkout.EventItem{ProductID: it.ProductID, Qty: it.Quantity})
	}
	ev := checkout.Envelope{
		EventID:       uuid.NewString(),
		EventType:     checkout.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Name,
		TraceID:       chimw.GetReqID(r.Context()),
		CorrelationID: res.OrderID,
		Payload: kafkax.MustMarshal(checkout.OrderCreatedPayload{
			OrderID: res.OrderID,
			UserID:  userID,
			Items:   evItems,
			Total:   res.Total,
		}),
	}
	h.Producer.Publish(checkout.PartitionKey(res.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *CheckoutHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	status, err := h.Orders.GetStatus(ctx, orderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	b, _ := json.Marshal(map[string]any{"status": status})
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func classify(err error) (code int, outcome string) {
	switch {
	case checkout.IsUserError(err):
		return http.StatusBadRequest, "rejected"
	case errors.Is(err, checkout.ErrPaymentGateway):
		return http.StatusBadGateway, "gateway_error"
	default:
		return http.StatusInternalServerError, "error"
	}
}
