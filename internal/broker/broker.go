// Package broker defines the brokerage Gateway interface consumed by the
// order engine and provides implementations for Alpaca and for an in-memory
// simulator used in paper mode and tests.
package broker

import (
	"context"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the normalized broker order status. Complete, Rejected, and
// Cancelled are terminal; Open covers everything the broker may still move.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderComplete  OrderStatus = "complete"
	OrderRejected  OrderStatus = "rejected"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further status transition can occur.
func (s OrderStatus) Terminal() bool {
	return s == OrderComplete || s == OrderRejected || s == OrderCancelled
}

// OrderRequest describes a market order to be submitted.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Qty           int
	ClientOrderID string
}

// OrderEvent is one entry of an order's status history. AvgPrice is the
// average fill price and is only meaningful once the status is complete.
type OrderEvent struct {
	Status   OrderStatus
	AvgPrice float64
	At       time.Time
	Message  string
	Symbol   string
	Token    string // broker instrument identifier
}

// Gateway abstracts the brokerage operations the engine depends on. Calls
// may block on network I/O and may fail transiently; the engine only invokes
// them from pooled workers.
type Gateway interface {
	// Name returns the gateway identifier (e.g. "alpaca", "simulator").
	Name() string

	// PlaceOrder submits a market order and returns the broker order ID.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// OrderHistory returns the known status history of an order, oldest
	// first; the last element is the most recent.
	OrderHistory(ctx context.Context, orderID string) ([]OrderEvent, error)

	// Quote returns the last traded price for the symbol.
	Quote(ctx context.Context, symbol string) (float64, error)
}
