package engine

import (
	"context"
	"fmt"

	"tradedesk/internal/domain"
	"tradedesk/internal/notify"
)

// Parameter changes mutate the open trade record directly, without placing
// a brokerage order. They still go through admission so they cannot
// interleave with an in-flight order on the same symbol.

// ChangeStopLoss moves the trade's stop-loss and shifts the corresponding
// risk between the used and available pools. Tightening the stop releases
// risk; widening it needs availability and fails when the pool cannot
// cover the delta.
func (e *Engine) ChangeStopLoss(ctx context.Context, symbol string, value float64) domain.Result {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errResult("%w: symbol is required", domain.ErrValidation)
	}
	if value <= 0 {
		return errResult("%w: stop-loss must be positive, got %.2f", domain.ErrValidation, value)
	}

	if !e.admission.TryAcquire(symbol) {
		return errResult("%w for %s", domain.ErrConflict, symbol)
	}
	defer e.admission.Release(symbol)

	trade, err := e.trades.GetTradeBySymbol(ctx, symbol)
	if err != nil {
		return errResult("%w: %v", domain.ErrPersistence, err)
	}
	if trade == nil {
		return errResult("%w: no open trade for %s", domain.ErrValidation, symbol)
	}
	if trade.StopLoss == value {
		return domain.Result{
			Status:  domain.StatusSuccess,
			Message: fmt.Sprintf("stop-loss for %s already %.2f", symbol, value),
		}
	}

	if err := e.ledger.ApplyStopChange(ctx, trade.StopLoss, value, trade.EntryPrice, trade.CurrentQty); err != nil {
		return errResult("stop-loss change refused: %w", err)
	}

	old := trade.StopLoss
	trade.StopLoss = value
	if err := e.trades.UpdateTrade(ctx, trade); err != nil {
		// The ledger already moved; surface the split-brain loudly.
		e.log.Error("stop-loss applied to ledger but not persisted",
			"symbol", symbol, "old", old, "new", value, "error", err)
		return errResult("%w: %v", domain.ErrPersistence, err)
	}

	e.notifyParam(symbol, "stoploss")
	return domain.Result{
		Status:  domain.StatusSuccess,
		Message: fmt.Sprintf("stop-loss for %s moved %.2f -> %.2f", symbol, old, value),
	}
}

// ChangeTarget moves the trade's profit target. Targets carry no risk
// allocation, so no ledger mutation is involved.
func (e *Engine) ChangeTarget(ctx context.Context, symbol string, value float64) domain.Result {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errResult("%w: symbol is required", domain.ErrValidation)
	}
	if value <= 0 {
		return errResult("%w: target must be positive, got %.2f", domain.ErrValidation, value)
	}

	if !e.admission.TryAcquire(symbol) {
		return errResult("%w for %s", domain.ErrConflict, symbol)
	}
	defer e.admission.Release(symbol)

	trade, err := e.trades.GetTradeBySymbol(ctx, symbol)
	if err != nil {
		return errResult("%w: %v", domain.ErrPersistence, err)
	}
	if trade == nil {
		return errResult("%w: no open trade for %s", domain.ErrValidation, symbol)
	}

	old := trade.Target
	trade.Target = value
	if err := e.trades.UpdateTrade(ctx, trade); err != nil {
		return errResult("%w: %v", domain.ErrPersistence, err)
	}

	e.notifyParam(symbol, "target")
	return domain.Result{
		Status:  domain.StatusSuccess,
		Message: fmt.Sprintf("target for %s moved %.2f -> %.2f", symbol, old, value),
	}
}

// ToggleAutoExit flips the trade's auto-exit flag. The trade is addressed
// by ID rather than symbol, matching the dashboard's per-row control.
func (e *Engine) ToggleAutoExit(ctx context.Context, tradeID string, enabled bool) domain.Result {
	if tradeID == "" {
		return errResult("%w: trade id is required", domain.ErrValidation)
	}

	trade, err := e.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return errResult("%w: %v", domain.ErrPersistence, err)
	}
	if trade == nil {
		return errResult("%w: no trade with id %s", domain.ErrValidation, tradeID)
	}

	if !e.admission.TryAcquire(trade.Symbol) {
		return errResult("%w for %s", domain.ErrConflict, trade.Symbol)
	}
	defer e.admission.Release(trade.Symbol)

	// Re-read under the slot; the first lookup only resolved the symbol.
	trade, err = e.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return errResult("%w: %v", domain.ErrPersistence, err)
	}
	if trade == nil {
		return errResult("%w: trade %s closed meanwhile", domain.ErrValidation, tradeID)
	}

	trade.AutoExit = enabled
	if err := e.trades.UpdateTrade(ctx, trade); err != nil {
		return errResult("%w: %v", domain.ErrPersistence, err)
	}

	e.notifyParam(trade.Symbol, "autoexit")
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return domain.Result{
		Status:  domain.StatusSuccess,
		Message: fmt.Sprintf("auto-exit %s for %s", state, trade.Symbol),
	}
}

func (e *Engine) notifyParam(symbol, kind string) {
	go func() {
		e.hub.Broadcast(notify.Event{Type: "trade_update", Symbol: symbol, Kind: kind})
		if e.onUpdate != nil {
			e.onUpdate()
		}
	}()
}
