// Package httpapi exposes the trading engine over an HTTP REST API plus a
// server-sent-events stream of trade updates.
package httpapi

import (
	"tradedesk/internal/domain"
	"tradedesk/internal/engine"
)

// TradeRequest is the body of the order endpoints. Quantity is ignored by
// sell; Direction is only used by adjust.
type TradeRequest struct {
	Symbol    string `json:"symbol"`
	Quantity  int    `json:"quantity,omitempty"`
	Direction string `json:"direction,omitempty"` // "increase" or "decrease"
}

// ParamRequest is the body of the stop-loss and target endpoints.
type ParamRequest struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

// AutoExitRequest is the body of the auto-exit toggle endpoint.
type AutoExitRequest struct {
	TradeID string `json:"trade_id"`
	Enabled bool   `json:"enabled"`
}

// ResultResponse mirrors a domain.Result.
type ResultResponse struct {
	Status  domain.Status `json:"status"`
	Message string        `json:"message"`
}

// StatusResponse reports the most recent operation for a symbol.
type StatusResponse struct {
	Found     bool              `json:"found"`
	Operation *engine.Operation `json:"operation,omitempty"`
}

// TradesResponse lists the open trades.
type TradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// HistoryResponse lists closed trades, most recent first.
type HistoryResponse struct {
	Trades []domain.HistoricalTrade `json:"trades"`
}

// RiskResponse reports the risk pool.
type RiskResponse struct {
	Used      float64 `json:"used"`
	Available float64 `json:"available"`
	Combined  float64 `json:"combined"`
}

func toResult(r domain.Result) ResultResponse {
	return ResultResponse{Status: r.Status, Message: r.Message}
}
