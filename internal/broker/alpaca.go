package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"tradedesk/internal/util"
)

// Compile-time interface check.
var _ Gateway = (*AlpacaGateway)(nil)

// AlpacaGateway implements the Gateway interface using the Alpaca brokerage
// and market-data APIs. All calls are paced through a shared token-bucket
// rate limiter so the monitor's polling does not exhaust the API quota.
type AlpacaGateway struct {
	trading *alpaca.Client
	data    *marketdata.Client
	limiter *util.RateLimiter
}

// NewAlpacaGateway creates an AlpacaGateway configured with the given
// credentials and endpoints. ratePerMin bounds the total number of API calls
// per minute.
func NewAlpacaGateway(apiKey, apiSecret, baseURL, dataURL string, ratePerMin int) *AlpacaGateway {
	tradingOpts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		tradingOpts.BaseURL = baseURL
	}

	dataOpts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		dataOpts.BaseURL = dataURL
	}

	return &AlpacaGateway{
		trading: alpaca.NewClient(tradingOpts),
		data:    marketdata.NewClient(dataOpts),
		limiter: util.NewRateLimiter(ratePerMin),
	}
}

// Name returns "alpaca".
func (g *AlpacaGateway) Name() string { return "alpaca" }

// PlaceOrder submits a day market order and returns the Alpaca order ID.
func (g *AlpacaGateway) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	qty := decimal.NewFromInt(int64(req.Qty))
	side := alpaca.Buy
	if req.Side == SideSell {
		side = alpaca.Sell
	}

	order, err := g.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		return "", fmt.Errorf("placing %s order for %s: %w", req.Side, req.Symbol, err)
	}
	return order.ID, nil
}

// OrderHistory fetches the current order snapshot and returns it as a
// single-element history; Alpaca exposes only the latest state per order.
func (g *AlpacaGateway) OrderHistory(ctx context.Context, orderID string) ([]OrderEvent, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	order, err := g.trading.GetOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("fetching order %s: %w", orderID, err)
	}

	event := OrderEvent{
		Status:  normalizeStatus(order.Status),
		At:      order.UpdatedAt,
		Message: order.Status,
		Symbol:  order.Symbol,
		Token:   order.AssetID,
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	if order.FilledAvgPrice != nil {
		event.AvgPrice, _ = order.FilledAvgPrice.Float64()
	}

	return []OrderEvent{event}, nil
}

// Quote returns the last traded price for the symbol from the market-data API.
func (g *AlpacaGateway) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	trade, err := g.data.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return 0, fmt.Errorf("quoting %s: %w", symbol, err)
	}
	return trade.Price, nil
}

// normalizeStatus maps Alpaca order statuses onto the engine's terminal /
// non-terminal classification.
func normalizeStatus(status string) OrderStatus {
	switch strings.ToLower(status) {
	case "filled":
		return OrderComplete
	case "rejected", "suspended":
		return OrderRejected
	case "canceled", "expired", "stopped", "replaced":
		return OrderCancelled
	default:
		// new, accepted, partially_filled, pending_* and friends are all
		// still in flight.
		return OrderOpen
	}
}
