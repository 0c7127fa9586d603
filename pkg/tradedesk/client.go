// Package tradedesk provides a Go SDK for the tradedesk-server API.
package tradedesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client talks to a running tradedesk-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client for the given base URL, for example
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Result is the outcome of an order or parameter operation.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Operation is the server's record of a symbol's most recent operation.
type Operation struct {
	Symbol     string    `json:"symbol"`
	Kind       string    `json:"order_type"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Adjustment is one quantity change on an open trade.
type Adjustment struct {
	At    time.Time `json:"at"`
	Kind  string    `json:"kind"`
	Qty   int       `json:"qty"`
	Price float64   `json:"price"`
}

// Trade is an open position.
type Trade struct {
	ID          string       `json:"trade_id"`
	Symbol      string       `json:"symbol"`
	EntryTime   time.Time    `json:"entry_time"`
	EntryPrice  float64      `json:"entry_price"`
	InitialStop float64      `json:"initial_stop"`
	StopLoss    float64      `json:"stop_loss"`
	Target      float64      `json:"target"`
	InitialQty  int          `json:"initial_qty"`
	CurrentQty  int          `json:"current_qty"`
	BookedPnL   float64      `json:"booked_pnl"`
	AutoExit    bool         `json:"auto_exit"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

// HistoricalTrade is a closed position.
type HistoricalTrade struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	FinalPnL   float64   `json:"final_pnl"`
	HighestQty int       `json:"highest_qty"`
}

// RiskPool is the server's risk accounting state.
type RiskPool struct {
	Used      float64 `json:"used"`
	Available float64 `json:"available"`
	Combined  float64 `json:"combined"`
}

// Buy opens a new position.
func (c *Client) Buy(ctx context.Context, symbol string, qty int) (Result, error) {
	return c.postResult(ctx, "/api/trades/buy",
		map[string]any{"symbol": symbol, "quantity": qty})
}

// Sell exits the full open position for a symbol.
func (c *Client) Sell(ctx context.Context, symbol string) (Result, error) {
	return c.postResult(ctx, "/api/trades/sell", map[string]any{"symbol": symbol})
}

// Adjust changes the open quantity. direction is "increase" or "decrease".
func (c *Client) Adjust(ctx context.Context, symbol string, qty int, direction string) (Result, error) {
	return c.postResult(ctx, "/api/trades/adjust",
		map[string]any{"symbol": symbol, "quantity": qty, "direction": direction})
}

// ChangeStopLoss moves the trade's stop-loss.
func (c *Client) ChangeStopLoss(ctx context.Context, symbol string, value float64) (Result, error) {
	return c.postResult(ctx, "/api/trades/stoploss",
		map[string]any{"symbol": symbol, "value": value})
}

// ChangeTarget moves the trade's profit target.
func (c *Client) ChangeTarget(ctx context.Context, symbol string, value float64) (Result, error) {
	return c.postResult(ctx, "/api/trades/target",
		map[string]any{"symbol": symbol, "value": value})
}

// ToggleAutoExit flips the auto-exit flag of a trade by ID.
func (c *Client) ToggleAutoExit(ctx context.Context, tradeID string, enabled bool) (Result, error) {
	return c.postResult(ctx, "/api/trades/autoexit",
		map[string]any{"trade_id": tradeID, "enabled": enabled})
}

// Status returns the most recent operation for a symbol. found is false
// when the server has no record for it.
func (c *Client) Status(ctx context.Context, symbol string) (op Operation, found bool, err error) {
	var resp struct {
		Found     bool       `json:"found"`
		Operation *Operation `json:"operation"`
	}
	if err := c.getJSON(ctx, "/api/status/"+symbol, &resp); err != nil {
		return Operation{}, false, err
	}
	if !resp.Found || resp.Operation == nil {
		return Operation{}, false, nil
	}
	return *resp.Operation, true, nil
}

// Trades lists the open positions.
func (c *Client) Trades(ctx context.Context) ([]Trade, error) {
	var resp struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.getJSON(ctx, "/api/trades", &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// History lists closed positions, newest first, up to limit (0 uses the
// server default).
func (c *Client) History(ctx context.Context, limit int) ([]HistoricalTrade, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Trades []HistoricalTrade `json:"trades"`
	}
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Trades, nil
}

// Risk returns the risk pool.
func (c *Client) Risk(ctx context.Context) (RiskPool, error) {
	var pool RiskPool
	err := c.getJSON(ctx, "/api/risk", &pool)
	return pool, err
}

// postResult sends a JSON body and decodes the operation result. Server
// side rejections (4xx) still carry a Result body, which is returned
// alongside a nil error so callers can inspect the message.
func (c *Client) postResult(ctx context.Context, path string, body any) (Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decoding %s response: %w", path, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return result, fmt.Errorf("%s: server error %d: %s", path, resp.StatusCode, result.Message)
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, data)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
