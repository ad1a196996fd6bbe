// Package broker talks to the execution gateway over REST and streams quotes
// over its websocket feed. The client implements both the market data and
// order execution boundaries of the coordinator.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/live"
	"sweep-trading-bot/internal/market"
	"sweep-trading-bot/internal/plan"
)

// Client is the REST gateway client.
type Client struct {
	baseURL    string
	apiKey     string
	accountID  string
	httpClient *http.Client
}

// NewClient builds a client from broker config.
func NewClient(cfg config.BrokerConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		accountID:  cfg.AccountID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

var (
	_ market.DataProvider = (*Client)(nil)
	_ live.Broker         = (*Client)(nil)
)

type candleRow struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

type quoteResponse struct {
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Offer     float64 `json:"offer"`
	UpdatedAt int64   `json:"updatedAt"`
}

type orderResponse struct {
	Accepted bool   `json:"accepted"`
	OrderID  string `json:"orderId"`
	Reason   string `json:"reason"`
}

type positionRow struct {
	DealID     string  `json:"dealId"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entryPrice"`
	Size       float64 `json:"size"`
}

// FetchCandles fetches up to limit closed candles, oldest first.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", string(tf))
	params.Set("limit", strconv.Itoa(limit))

	var rows []candleRow
	if err := c.get(ctx, "/v1/candles?"+params.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("error fetching candles: %w", err)
	}

	candles := make([]market.Candle, len(rows))
	for i, row := range rows {
		candles[i] = market.Candle{
			OpenTime: row.OpenTime,
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			Volume:   row.Volume,
		}
	}
	return candles, nil
}

// FetchQuote fetches the current quote for a symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*market.Quote, error) {
	var q quoteResponse
	if err := c.get(ctx, "/v1/quote/"+url.PathEscape(symbol), &q); err != nil {
		return nil, fmt.Errorf("error fetching quote: %w", err)
	}
	return &market.Quote{
		Price:     q.Price,
		Bid:       q.Bid,
		Offer:     q.Offer,
		UpdatedAt: q.UpdatedAt,
	}, nil
}

// PlaceOrder submits the plan. The idempotency reference makes a retried
// submit of the same setup a no-op on the gateway side.
func (c *Client) PlaceOrder(ctx context.Context, p *plan.Plan) (*live.OrderResult, error) {
	payload := map[string]interface{}{
		"idempotencyRef": p.IdempotencyRef,
		"symbol":         p.Symbol,
		"side":           p.Side,
		"orderType":      string(p.OrderType),
		"limitPrice":     p.LimitPrice,
		"stopPrice":      p.StopPrice,
		"targetPrice":    p.TargetPrice,
		"notional":       p.Notional,
		"leverage":       p.Leverage,
	}

	var resp orderResponse
	if err := c.post(ctx, "/v1/orders", payload, &resp); err != nil {
		return nil, fmt.Errorf("error placing order: %w", err)
	}
	return &live.OrderResult{
		Accepted:      resp.Accepted,
		BrokerOrderID: resp.OrderID,
		Reason:        resp.Reason,
	}, nil
}

// ListOpenPositions returns the gateway's open positions for a symbol.
func (c *Client) ListOpenPositions(ctx context.Context, symbol string) ([]live.Position, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var rows []positionRow
	if err := c.get(ctx, "/v1/positions?"+params.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("error listing positions: %w", err)
	}

	positions := make([]live.Position, len(rows))
	for i, row := range rows {
		positions[i] = live.Position{
			DealID:     row.DealID,
			Side:       row.Side,
			EntryPrice: row.EntryPrice,
			Size:       row.Size,
		}
	}
	return positions, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-ACCOUNT-ID", c.accountID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	return nil
}
