package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/velora-shop/checkout/internal/checkout"
)

const defaultBaseURL = "https://api.stripe.com"

type Config struct {
	SecretKey  string // empty = offline mode
	SuccessURL string
	CancelURL  string
	BaseURL    string // overridable for tests
}

// Gateway opens Stripe Checkout Sessions over the REST API. With no
// secret key configured it degrades to an offline mode that returns a
// deterministic success redirect, so local checkouts still complete.
type Gateway struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Gateway{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Gateway) Offline() bool { return g.cfg.SecretKey == "" }

func (g *Gateway) Open(ctx context.Context, o *checkout.Order, items []checkout.LineItem) (checkout.Session, error) {
	if g.Offline() {
		return checkout.Session{
			URL: fmt.Sprintf("%s?order_id=%s", g.cfg.SuccessURL, o.ID),
			ID:  "offline_" + o.ID,
		}, nil
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", fmt.Sprintf("%s?step=success&order_id=%s", g.cfg.SuccessURL, o.ID))
	form.Set("cancel_url", g.cfg.CancelURL)
	form.Set("metadata[order_id]", o.ID)

	i := 0
	for _, it := range items {
		setLine(form, i, it.Name, minorUnits(it.PriceAtTime), it.Quantity)
		p := fmt.Sprintf("line_items[%d][price_data][product_data]", i)
		if it.ImageURL != "" {
			form.Set(p+"[images][0]", it.ImageURL)
		}
		if it.Color != "" {
			form.Set(p+"[metadata][color]", it.Color)
		}
		if it.Size != "" {
			form.Set(p+"[metadata][size]", it.Size)
		}
		i++
	}
	// receipt lines for discount and shipping+tax, mirroring the order breakdown
	if o.Discount.IsPositive() {
		setLine(form, i, "Discount", -minorUnits(o.Discount), 1)
		i++
	}
	setLine(form, i, "Express Shipping & Tax", minorUnits(o.Shipping.Add(o.Tax)), 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return checkout.Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.http.Do(req)
	if err != nil {
		return checkout.Session{}, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return checkout.Session{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return checkout.Session{}, fmt.Errorf("create session: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return checkout.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return checkout.Session{URL: out.URL, ID: out.ID}, nil
}

func setLine(form url.Values, i int, name string, unitAmount int64, qty int) {
	p := fmt.Sprintf("line_items[%d]", i)
	form.Set(p+"[price_data][currency]", "usd")
	form.Set(p+"[price_data][product_data][name]", name)
	form.Set(p+"[price_data][unit_amount]", strconv.FormatInt(unitAmount, 10))
	form.Set(p+"[quantity]", strconv.Itoa(qty))
}

func minorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
