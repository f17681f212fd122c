package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velora-shop/checkout/internal/checkout"
)

type fakeCheckouter struct {
	res   checkout.Result
	err   error
	calls int
	user  string
	items []checkout.CartItem
	code  string
}

func (f *fakeCheckouter) Checkout(_ context.Context, userID string, items []checkout.CartItem, couponCode string) (checkout.Result, error) {
	f.calls++
	f.user = userID
	f.items = items
	f.code = couponCode
	return f.res, f.err
}

type fakeIdentity struct {
	userID string
	err    error
}

func (f *fakeIdentity) UserID(*http.Request) (string, error) { return f.userID, f.err }

type fakeOrderReader struct {
	status checkout.Status
	err    error
}

func (f *fakeOrderReader) GetStatus(context.Context, string) (checkout.Status, error) {
	return f.status, f.err
}

func newTestHandler(svc *fakeCheckouter, id *fakeIdentity, rd *fakeOrderReader) http.Handler {
	r := NewRouter(zap.NewNop())
	h := &CheckoutHandler{
		Service: svc,
		Auth:    id,
		Orders:  rd,
		Logger:  zap.NewNop(),
		Name:    "checkout-api-test",
	}
	h.Register(r)
	return r
}

func newTestHandlerRedis(t *testing.T, svc *fakeCheckouter, id *fakeIdentity) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	r := NewRouter(zap.NewNop())
	h := &CheckoutHandler{
		Service: svc,
		Auth:    id,
		Orders:  &fakeOrderReader{},
		Redis:   rdb,
		Logger:  zap.NewNop(),
		Name:    "checkout-api-test",
	}
	h.Register(r)
	return r
}

func doCheckout(t *testing.T, h http.Handler, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer token")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCheckoutEndpointSuccess(t *testing.T) {
	svc := &fakeCheckouter{res: checkout.Result{
		OrderID: "ord-1", URL: "https://pay.example/ord-1", SessionID: "sess_1", Total: "34.44",
	}}
	h := newTestHandler(svc, &fakeIdentity{userID: "u1"}, &fakeOrderReader{})

	w := doCheckout(t, h,
		`{"items":[{"id":"P1","quantity":2,"color":"navy"}],"coupon_code":"SAVE10"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://pay.example/ord-1", resp["url"])
	assert.Equal(t, "sess_1", resp["sessionId"])
	assert.Equal(t, "ord-1", resp["order_id"])

	assert.Equal(t, "u1", svc.user)
	assert.Equal(t, "SAVE10", svc.code)
	require.Len(t, svc.items, 1)
	assert.Equal(t, "P1", svc.items[0].ProductID)
	assert.Equal(t, "navy", svc.items[0].Color)
}

func doCheckoutKey(t *testing.T, h http.Handler, body, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set(IdempotencyHeader, key)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	svc := &fakeCheckouter{res: checkout.Result{
		OrderID: "ord-1", URL: "https://pay.example/ord-1", SessionID: "sess_1", Total: "34.44",
	}}
	h := newTestHandlerRedis(t, svc, &fakeIdentity{userID: "u1"})

	body := `{"items":[{"id":"P1","quantity":1}]}`
	w1 := doCheckoutKey(t, h, body, "k-1")
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := doCheckoutKey(t, h, body, "k-1")
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
	assert.Equal(t, 1, svc.calls, "replay served from cache")
}

func TestCheckoutIdempotencyScopedPerUser(t *testing.T) {
	svc := &fakeCheckouter{res: checkout.Result{
		OrderID: "ord-1", URL: "https://pay.example/ord-1", SessionID: "sess_1", Total: "34.44",
	}}
	id := &fakeIdentity{userID: "u1"}
	h := newTestHandlerRedis(t, svc, id)

	body := `{"items":[{"id":"P1","quantity":1}]}`
	w1 := doCheckoutKey(t, h, body, "k-1")
	require.Equal(t, http.StatusOK, w1.Code)

	// another user presenting the same key must not receive the first
	// user's cached session
	id.userID = "u2"
	svc.res = checkout.Result{
		OrderID: "ord-2", URL: "https://pay.example/ord-2", SessionID: "sess_2", Total: "12.00",
	}
	w2 := doCheckoutKey(t, h, body, "k-1")
	require.Equal(t, http.StatusOK, w2.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &resp))
	assert.Equal(t, "ord-2", resp["order_id"])
	assert.Equal(t, 2, svc.calls)
}

func TestCheckoutEndpointUnauthenticated(t *testing.T) {
	svc := &fakeCheckouter{}
	h := newTestHandler(svc, &fakeIdentity{err: checkout.ErrUnauthenticated}, &fakeOrderReader{})

	w := doCheckout(t, h, `{"items":[{"id":"P1","quantity":1}]}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, svc.calls, "rejected before any pipeline work")
}

func TestCheckoutEndpointInvalidJSON(t *testing.T) {
	svc := &fakeCheckouter{}
	h := newTestHandler(svc, &fakeIdentity{userID: "u1"}, &fakeOrderReader{})

	w := doCheckout(t, h, `{notjson`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.calls)
}

func TestCheckoutEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"empty cart", checkout.ErrEmptyCart, http.StatusBadRequest},
		{"unknown product", &checkout.ProductNotFoundError{ProductID: "P9"}, http.StatusBadRequest},
		{"insufficient stock", &checkout.InsufficientStockError{ProductID: "P2", Requested: 5, Available: 2}, http.StatusBadRequest},
		{"coupon reused", checkout.ErrCouponReused, http.StatusBadRequest},
		{"persistence", errors.New("create order: connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeCheckouter{err: tt.err}
			h := newTestHandler(svc, &fakeIdentity{userID: "u1"}, &fakeOrderReader{})

			w := doCheckout(t, h, `{"items":[{"id":"P1","quantity":1}]}`, true)
			assert.Equal(t, tt.code, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestCheckoutEndpointGatewayError(t *testing.T) {
	svc := &fakeCheckouter{err: checkout.ErrPaymentGateway}
	h := newTestHandler(svc, &fakeIdentity{userID: "u1"}, &fakeOrderReader{})

	w := doCheckout(t, h, `{"items":[{"id":"P1","quantity":1}]}`, true)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetOrderStatus(t *testing.T) {
	h := newTestHandler(&fakeCheckouter{}, &fakeIdentity{userID: "u1"},
		&fakeOrderReader{status: checkout.StatusPending})

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
}

func TestGetOrderStatusNotFound(t *testing.T) {
	h := newTestHandler(&fakeCheckouter{}, &fakeIdentity{userID: "u1"},
		&fakeOrderReader{err: errors.New("no rows")})

	req := httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
