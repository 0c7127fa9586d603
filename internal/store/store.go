// Package store defines the persistence interfaces for open trades, the
// risk pool, and the historical trade log, with a SQLite implementation and
// a Parquet archive for exited trades.
package store

import (
	"context"

	"tradedesk/internal/domain"
)

// TradeStore persists open positions and their adjustment logs. Lookup
// methods return (nil, nil) when no matching trade exists.
type TradeStore interface {
	// SaveTrade inserts a new open trade with its (usually empty)
	// adjustment log.
	SaveTrade(ctx context.Context, trade *domain.Trade) error

	// GetTrade retrieves a trade by its durable ID.
	GetTrade(ctx context.Context, id string) (*domain.Trade, error)

	// GetTradeBySymbol retrieves the open trade for a symbol, of which
	// there is at most one.
	GetTradeBySymbol(ctx context.Context, symbol string) (*domain.Trade, error)

	// ListTrades returns all open trades.
	ListTrades(ctx context.Context) ([]domain.Trade, error)

	// UpdateTrade persists changes to quantity, stop-loss, target, booked
	// P&L, and the auto-exit flag of an existing trade.
	UpdateTrade(ctx context.Context, trade *domain.Trade) error

	// AppendAdjustment appends one entry to a trade's adjustment log.
	AppendAdjustment(ctx context.Context, tradeID string, adj domain.Adjustment) error

	// CloseTrade deletes the open trade and writes its historical record in
	// a single transaction.
	CloseTrade(ctx context.Context, tradeID string, rec domain.HistoricalTrade) error
}

// RiskStore owns the singleton risk-pool row. All mutations go through
// UpdateRiskPool so the read-modify-write happens inside one transaction.
type RiskStore interface {
	// RiskPool returns the current pool state.
	RiskPool(ctx context.Context) (domain.RiskPool, error)

	// UpdateRiskPool runs fn on the current pool inside a transaction and
	// persists the returned value. If fn returns an error the transaction is
	// rolled back and the pool is left untouched.
	UpdateRiskPool(ctx context.Context, fn func(domain.RiskPool) (domain.RiskPool, error)) (domain.RiskPool, error)
}

// HistoryStore reads the append-only record of exited trades.
type HistoryStore interface {
	// ListHistory returns the most recent exited trades, newest first, up
	// to limit (0 means no limit).
	ListHistory(ctx context.Context, limit int) ([]domain.HistoricalTrade, error)
}
