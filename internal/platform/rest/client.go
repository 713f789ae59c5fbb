// Package rest is the venue connector for exchanges reached over a signed
// JSON REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/lazywhale/internal/crypto"
	"github.com/alanyoungcy/lazywhale/internal/domain"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	FeeCoef decimal.Decimal
}

// Client implements domain.Venue against the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
	feeCoef    decimal.Decimal
}

// NewClient creates a REST venue client. auth may be nil for public-only use.
func NewClient(cfg Config, auth *crypto.HMACAuth) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fee := cfg.FeeCoef
	if fee.IsZero() {
		fee = decimal.NewFromInt(1)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		auth:       auth,
		feeCoef:    fee,
	}
}

func (c *Client) Name() string { return "rest" }

// OpenOrders returns the account's open orders on market.
func (c *Client) OpenOrders(ctx context.Context, market string) ([]domain.Order, error) {
	q := url.Values{"market": {market}, "status": {"open"}}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/orders?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("rest: open orders: %w", err)
	}
	var apiOrders []APIOrder
	if err := json.Unmarshal(body, &apiOrders); err != nil {
		return nil, fmt.Errorf("rest: decode orders: %w", err)
	}
	out := make([]domain.Order, 0, len(apiOrders))
	for _, a := range apiOrders {
		out = append(out, a.ToDomainOrder(c.feeCoef))
	}
	return out, nil
}

// PlaceLimitOrder submits a limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, market string, side domain.Side, amount, price decimal.Decimal) (domain.Order, error) {
	req := placeRequest{
		Market: market,
		Side:   string(side),
		Type:   "limit",
		Amount: amount.String(),
		Price:  price.String(),

		ClientOrderID: domain.ClientOrderID(ctx),
	}
	body, err := c.do(ctx, http.MethodPost, "/api/v1/orders", req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("rest: place %s %s@%s: %w", side, amount, price, err)
	}
	var a APIOrder
	if err := json.Unmarshal(body, &a); err != nil {
		return domain.Order{}, fmt.Errorf("rest: decode placed order: %w", err)
	}
	if a.ID == "" {
		return domain.Order{}, fmt.Errorf("rest: place: %w: empty order id", domain.ErrTransientVenue)
	}
	if a.Side == "" {
		a.Side = string(side)
	}
	return a.ToDomainOrder(c.feeCoef), nil
}

// CancelOrder cancels one order. A 404 means the order is gone already and
// is reported as false without error.
func (c *Client) CancelOrder(ctx context.Context, market, orderID string) (bool, error) {
	q := url.Values{"market": {market}}
	body, err := c.do(ctx, http.MethodDelete, "/api/v1/orders/"+url.PathEscape(orderID)+"?"+q.Encode(), nil)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("rest: cancel %s: %w", orderID, err)
	}
	var res cancelResponse
	if len(body) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return false, fmt.Errorf("rest: decode cancel response: %w", err)
	}
	return res.Success, nil
}

func (c *Client) TradeHistory(ctx context.Context, market string) ([]domain.Trade, error) {
	q := url.Values{"market": {market}}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/trades?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("rest: trades: %w", err)
	}
	var apiTrades []APITrade
	if err := json.Unmarshal(body, &apiTrades); err != nil {
		return nil, fmt.Errorf("rest: decode trades: %w", err)
	}
	out := make([]domain.Trade, 0, len(apiTrades))
	for _, a := range apiTrades {
		out = append(out, a.ToDomainTrade())
	}
	return out, nil
}

func (c *Client) LastPrice(ctx context.Context, market string) (decimal.Decimal, error) {
	q := url.Values{"market": {market}}
	body, err := c.do(ctx, http.MethodGet, "/api/v1/ticker?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rest: ticker: %w", err)
	}
	var t apiTicker
	if err := json.Unmarshal(body, &t); err != nil {
		return decimal.Zero, fmt.Errorf("rest: decode ticker: %w", err)
	}
	return t.Last, nil
}

func (c *Client) Balances(ctx context.Context) (map[string]domain.Balance, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/balances", nil)
	if err != nil {
		return nil, fmt.Errorf("rest: balances: %w", err)
	}
	var raw map[string]apiBalance
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("rest: decode balances: %w", err)
	}
	out := make(map[string]domain.Balance, len(raw))
	for asset, b := range raw {
		out[strings.ToUpper(asset)] = domain.Balance{Free: b.Free, Used: b.Used, Total: b.Total}
	}
	return out, nil
}

// do builds, signs, sends and reads one request.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.Transient(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("read response: %w", err))
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransientVenue, domain.ErrRateLimited, msg)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, msg)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransientVenue, statusCode, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
