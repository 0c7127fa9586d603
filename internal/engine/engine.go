// Package engine implements the order execution core: per-symbol admission
// control, asynchronous order submission on a bounded worker pool, the
// order monitor state machine, and the post-fill accounting against the
// risk ledger and trade store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradedesk/internal/broker"
	"tradedesk/internal/domain"
	"tradedesk/internal/notify"
	"tradedesk/internal/risk"
	"tradedesk/internal/store"
)

// Config holds the engine's execution parameters. Zero values fall back to
// the production defaults.
type Config struct {
	Workers       int           // pooled workers running submissions and monitors
	PollInterval  time.Duration // delay between order status polls
	BuyTimeout    time.Duration // monitor deadline for buys
	AdjustTimeout time.Duration // monitor deadline for increases/decreases
	ExitTimeout   time.Duration // monitor deadline for exits
	StopLossPct   float64       // initial stop distance as a fraction of entry
	TargetPct     float64       // initial target distance as a fraction of entry
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BuyTimeout <= 0 {
		c.BuyTimeout = 60 * time.Second
	}
	if c.AdjustTimeout <= 0 {
		c.AdjustTimeout = 120 * time.Second
	}
	if c.ExitTimeout <= 0 {
		c.ExitTimeout = 300 * time.Second
	}
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.05
	}
	if c.TargetPct <= 0 {
		c.TargetPct = 0.10
	}
	return c
}

// Operation is the externally visible record of a symbol's most recent
// order operation.
type Operation struct {
	Symbol     string               `json:"symbol"`
	Kind       domain.OperationKind `json:"order_type"`
	Status     domain.Status        `json:"status"`
	Message    string               `json:"message,omitempty"`
	OrderID    string               `json:"order_id,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at,omitzero"`
}

// job is one queued order operation, executed end-to-end on a pooled
// worker. The worker owns the symbol's admission slot for the whole run.
type job struct {
	symbol string
	kind   domain.OperationKind
	qty    int
}

// Engine coordinates the order lifecycle: validate, admit, submit, monitor
// to a terminal state, account, persist, notify.
type Engine struct {
	gateway   broker.Gateway
	trades    store.TradeStore
	archive   *store.ArchiveStore // optional exit mirror
	ledger    *risk.Ledger
	admission *Admission
	hub       *notify.Hub
	cfg       Config
	log       *slog.Logger

	onUpdate func() // optional hook fired after each successful terminal order

	jobs chan job
	wg   sync.WaitGroup

	mu  sync.Mutex
	ops map[string]*Operation
}

// New creates an Engine wired with the given dependencies. archive may be
// nil to disable the Parquet exit mirror.
func New(
	gw broker.Gateway,
	trades store.TradeStore,
	archive *store.ArchiveStore,
	ledger *risk.Ledger,
	hub *notify.Hub,
	cfg Config,
	log *slog.Logger,
) *Engine {
	cfg = cfg.normalized()
	return &Engine{
		gateway:   gw,
		trades:    trades,
		archive:   archive,
		ledger:    ledger,
		admission: NewAdmission(),
		hub:       hub,
		cfg:       cfg,
		log:       log.With("component", "engine"),
		jobs:      make(chan job, cfg.Workers),
		ops:       make(map[string]*Operation),
	}
}

// SetUpdateHook registers a zero-argument callback invoked asynchronously
// once per successful terminal order, in addition to the hub broadcast.
// Must be called before Start.
func (e *Engine) SetUpdateHook(fn func()) {
	e.onUpdate = fn
}

// Start launches the worker pool. Workers exit when ctx is cancelled; Stop
// waits for in-flight operations to finish.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-e.jobs:
					e.run(ctx, j)
				}
			}
		}()
	}
	e.log.Info("engine started", "workers", e.cfg.Workers, "gateway", e.gateway.Name())
}

// Stop waits for the workers to drain after their context is cancelled.
func (e *Engine) Stop() {
	e.wg.Wait()
}

// ---------------------------------------------------------------------------
// Public operations
// ---------------------------------------------------------------------------

// Buy opens a new position for the symbol. The call returns a processing
// result immediately; quoting, the risk precheck, submission, and
// monitoring run on a pooled worker.
func (e *Engine) Buy(ctx context.Context, symbol string, qty int) domain.Result {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errResult("%w: symbol is required", domain.ErrValidation)
	}
	if qty <= 0 {
		return errResult("%w: quantity must be positive, got %d", domain.ErrValidation, qty)
	}

	if !e.admission.TryAcquire(symbol) {
		return errResult("%w for %s", domain.ErrConflict, symbol)
	}

	existing, err := e.trades.GetTradeBySymbol(ctx, symbol)
	if err != nil {
		e.admission.Release(symbol)
		return errResult("%w: %v", domain.ErrPersistence, err)
	}
	if existing != nil {
		e.admission.Release(symbol)
		return errResult("%w: open trade already exists for %s", domain.ErrValidation, symbol)
	}

	return e.dispatch(job{symbol: symbol, kind: domain.OpBuy, qty: qty})
}

// Sell exits the full open position for the symbol.
func (e *Engine) Sell(ctx context.Context, symbol string) domain.Result {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errResult("%w: symbol is required", domain.ErrValidation)
	}

	if !e.admission.TryAcquire(symbol) {
		return errResult("%w for %s", domain.ErrConflict, symbol)
	}

	trade, err := e.trades.GetTradeBySymbol(ctx, symbol)
	if err != nil {
		e.admission.Release(symbol)
		return errResult("%w: %v", domain.ErrPersistence, err)
	}
	if trade == nil {
		e.admission.Release(symbol)
		return errResult("%w: no open trade for %s", domain.ErrValidation, symbol)
	}
	if trade.CurrentQty <= 0 {
		e.admission.Release(symbol)
		return errResult("%w: nothing to exit for %s", domain.ErrValidation, symbol)
	}

	return e.dispatch(job{symbol: symbol, kind: domain.OpExit, qty: trade.CurrentQty})
}

// Adjust changes the open position's quantity without closing it.
// direction is "increase" or "decrease"; a decrease must leave a positive
// quantity open, full exits go through Sell.
func (e *Engine) Adjust(ctx context.Context, symbol string, qty int, direction string) domain.Result {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errResult("%w: symbol is required", domain.ErrValidation)
	}
	if qty <= 0 {
		return errResult("%w: quantity must be positive, got %d", domain.ErrValidation, qty)
	}

	var kind domain.OperationKind
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "increase":
		kind = domain.OpIncrease
	case "decrease":
		kind = domain.OpDecrease
	default:
		return errResult("%w: direction must be increase or decrease, got %q",
			domain.ErrValidation, direction)
	}

	if !e.admission.TryAcquire(symbol) {
		return errResult("%w for %s", domain.ErrConflict, symbol)
	}

	trade, err := e.trades.GetTradeBySymbol(ctx, symbol)
	if err != nil {
		e.admission.Release(symbol)
		return errResult("%w: %v", domain.ErrPersistence, err)
	}
	if trade == nil {
		e.admission.Release(symbol)
		return errResult("%w: no open trade for %s", domain.ErrValidation, symbol)
	}
	if kind == domain.OpDecrease && qty >= trade.CurrentQty {
		e.admission.Release(symbol)
		return errResult("%w: decrease of %d must be smaller than the open quantity %d; use sell to exit",
			domain.ErrValidation, qty, trade.CurrentQty)
	}

	return e.dispatch(job{symbol: symbol, kind: kind, qty: qty})
}

// OrderStatus returns the most recent operation record for the symbol.
func (e *Engine) OrderStatus(symbol string) (Operation, bool) {
	symbol = normalizeSymbol(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.ops[symbol]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// ---------------------------------------------------------------------------
// Dispatch and worker execution
// ---------------------------------------------------------------------------

// dispatch records the processing status and hands the job to the pool. The
// caller already holds the admission slot; on a saturated pool the slot is
// released and an error result returned.
func (e *Engine) dispatch(j job) domain.Result {
	e.setStatus(j.symbol, &Operation{
		Symbol:    j.symbol,
		Kind:      j.kind,
		Status:    domain.StatusProcessing,
		Message:   "order queued",
		StartedAt: time.Now(),
	})

	select {
	case e.jobs <- j:
		return domain.Result{
			Status:  domain.StatusProcessing,
			Message: fmt.Sprintf("%s for %s accepted", j.kind, j.symbol),
		}
	default:
		e.admission.Release(j.symbol)
		e.finishStatus(j.symbol, domain.StatusError, "worker pool saturated")
		return domain.Result{
			Status:  domain.StatusError,
			Message: "worker pool saturated, try again",
		}
	}
}

// run executes one order operation end-to-end on a worker. The admission
// slot is held until every post-fill mutation and the status update are
// done, so subsequent operations on the symbol observe a consistent store.
func (e *Engine) run(ctx context.Context, j job) {
	defer e.admission.Release(j.symbol)
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("operation panicked", "symbol", j.symbol, "kind", j.kind, "panic", r)
			e.finishStatus(j.symbol, domain.StatusError, "internal error")
		}
	}()

	log := e.log.With("symbol", j.symbol, "kind", j.kind)

	pending, err := e.submit(ctx, j)
	if err != nil {
		log.Warn("submission failed", "error", err)
		e.finishStatus(j.symbol, domain.StatusError, err.Error())
		return
	}
	e.setOrderID(j.symbol, pending.OrderID)
	log = log.With("orderID", pending.OrderID)
	log.Info("order submitted", "qty", pending.Qty)

	fill, err := e.monitor(ctx, pending)
	if err != nil {
		log.Warn("order did not complete", "error", err)
		e.finishStatus(j.symbol, domain.StatusError, err.Error())
		return
	}
	log.Info("order complete", "avgPrice", fill.price)

	msg, err := e.applyFill(ctx, j, fill)
	if err != nil {
		// The brokerage fill already happened; nothing here can undo it.
		log.Error("post-fill accounting failed", "error", err)
		e.finishStatus(j.symbol, domain.StatusError, err.Error())
		return
	}

	e.finishStatus(j.symbol, domain.StatusSuccess, msg)
	e.notifyAsync(j)
}

// submit validates the remaining preconditions that need the brokerage
// (quote, risk precheck) and places exactly one order.
func (e *Engine) submit(ctx context.Context, j job) (domain.PendingOrder, error) {
	pending := domain.PendingOrder{
		Symbol: j.symbol,
		Kind:   j.kind,
		Qty:    j.qty,
	}

	side := broker.SideSell
	if j.kind == domain.OpBuy || j.kind == domain.OpIncrease {
		side = broker.SideBuy
	}

	if j.kind == domain.OpBuy {
		quote, err := e.gateway.Quote(ctx, j.symbol)
		if err != nil {
			return pending, fmt.Errorf("%w: no quote for %s: %v", domain.ErrValidation, j.symbol, err)
		}
		pending.EntryHint = quote
		pending.StopHint = quote * (1 - e.cfg.StopLossPct)
		if err := e.ledger.CheckBuy(ctx, pending.EntryHint, pending.StopHint, j.qty); err != nil {
			return pending, err
		}
	}

	orderID, err := e.gateway.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:        j.symbol,
		Side:          side,
		Qty:           j.qty,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return pending, err
	}
	pending.OrderID = orderID
	return pending, nil
}

// applyFill performs the post-fill mutations for a completed order: ledger
// first, then the trade store, then the archive. It returns the
// human-readable success message.
func (e *Engine) applyFill(ctx context.Context, j job, f fill) (string, error) {
	switch j.kind {
	case domain.OpBuy:
		return e.applyBuyFill(ctx, j, f)
	case domain.OpIncrease:
		return e.applyIncreaseFill(ctx, j, f)
	case domain.OpDecrease:
		return e.applyDecreaseFill(ctx, j, f)
	case domain.OpExit:
		return e.applyExitFill(ctx, j, f)
	default:
		return "", fmt.Errorf("unknown operation kind %q", j.kind)
	}
}

func (e *Engine) applyBuyFill(ctx context.Context, j job, f fill) (string, error) {
	stop := f.price * (1 - e.cfg.StopLossPct)
	target := f.price * (1 + e.cfg.TargetPct)

	if err := e.ledger.ApplyBuy(ctx, f.price, stop, j.qty); err != nil {
		return "", fmt.Errorf("buy filled at %.2f but ledger refused: %w", f.price, err)
	}

	trade := &domain.Trade{
		ID:          uuid.NewString(),
		Symbol:      j.symbol,
		Token:       f.token,
		EntryTime:   f.at,
		EntryPrice:  f.price,
		InitialStop: stop,
		StopLoss:    stop,
		Target:      target,
		InitialQty:  j.qty,
		CurrentQty:  j.qty,
	}
	if err := e.trades.SaveTrade(ctx, trade); err != nil {
		return "", fmt.Errorf("%w: buy filled at %.2f but trade not persisted: %v",
			domain.ErrPersistence, f.price, err)
	}
	return fmt.Sprintf("bought %d %s at %.2f (stop %.2f, target %.2f)",
		j.qty, j.symbol, f.price, stop, target), nil
}

func (e *Engine) applyIncreaseFill(ctx context.Context, j job, f fill) (string, error) {
	trade, err := e.mustTrade(ctx, j.symbol)
	if err != nil {
		return "", err
	}

	// The availability check runs here, after the fill; a failure is a
	// fill/ledger inconsistency that cannot be undone, only surfaced.
	if err := e.ledger.ApplyIncrease(ctx, trade.StopLoss, f.price, j.qty); err != nil {
		return "", fmt.Errorf("increase filled at %.2f but ledger refused: %w", f.price, err)
	}

	trade.CurrentQty += j.qty
	if err := e.trades.UpdateTrade(ctx, trade); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	adj := domain.Adjustment{At: f.at, Kind: domain.AdjustIncrease, Qty: j.qty, Price: f.price}
	if err := e.trades.AppendAdjustment(ctx, trade.ID, adj); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return fmt.Sprintf("increased %s by %d at %.2f (now %d)",
		j.symbol, j.qty, f.price, trade.CurrentQty), nil
}

func (e *Engine) applyDecreaseFill(ctx context.Context, j job, f fill) (string, error) {
	trade, err := e.mustTrade(ctx, j.symbol)
	if err != nil {
		return "", err
	}

	if err := e.ledger.ApplyDecrease(ctx, trade.InitialStop, trade.EntryPrice, f.price, j.qty); err != nil {
		return "", err
	}

	trade.CurrentQty -= j.qty
	trade.BookedPnL += (f.price - trade.EntryPrice) * float64(j.qty)
	if err := e.trades.UpdateTrade(ctx, trade); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	adj := domain.Adjustment{At: f.at, Kind: domain.AdjustDecrease, Qty: j.qty, Price: f.price}
	if err := e.trades.AppendAdjustment(ctx, trade.ID, adj); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return fmt.Sprintf("decreased %s by %d at %.2f (now %d, booked %.2f)",
		j.symbol, j.qty, f.price, trade.CurrentQty, trade.BookedPnL), nil
}

func (e *Engine) applyExitFill(ctx context.Context, j job, f fill) (string, error) {
	trade, err := e.mustTrade(ctx, j.symbol)
	if err != nil {
		return "", err
	}
	qty := trade.CurrentQty

	if err := e.ledger.ApplyExit(ctx, trade.InitialStop, trade.EntryPrice, f.price, qty); err != nil {
		return "", err
	}

	rec := domain.HistoricalTrade{
		Symbol:     trade.Symbol,
		EntryTime:  trade.EntryTime,
		EntryPrice: trade.EntryPrice,
		ExitTime:   f.at,
		ExitPrice:  f.price,
		FinalPnL:   trade.BookedPnL + (f.price-trade.EntryPrice)*float64(qty),
		HighestQty: trade.HighestQty(),
	}
	if err := e.trades.CloseTrade(ctx, trade.ID, rec); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if e.archive != nil {
		if err := e.archive.Append(rec); err != nil {
			// The durable record is the historical_trades row; the Parquet
			// mirror is best effort.
			e.log.Warn("archiving exit failed", "symbol", trade.Symbol, "error", err)
		}
	}
	return fmt.Sprintf("exited %d %s at %.2f (pnl %.2f)", qty, j.symbol, f.price, rec.FinalPnL), nil
}

func (e *Engine) mustTrade(ctx context.Context, symbol string) (*domain.Trade, error) {
	trade, err := e.trades.GetTradeBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if trade == nil {
		return nil, fmt.Errorf("%w: open trade for %s disappeared", domain.ErrValidation, symbol)
	}
	return trade, nil
}

// ---------------------------------------------------------------------------
// Status tracking and notifications
// ---------------------------------------------------------------------------

func (e *Engine) setStatus(symbol string, op *Operation) {
	e.mu.Lock()
	e.ops[symbol] = op
	e.mu.Unlock()
}

func (e *Engine) setOrderID(symbol, orderID string) {
	e.mu.Lock()
	if op, ok := e.ops[symbol]; ok {
		op.OrderID = orderID
	}
	e.mu.Unlock()
}

func (e *Engine) finishStatus(symbol string, status domain.Status, msg string) {
	e.mu.Lock()
	if op, ok := e.ops[symbol]; ok {
		op.Status = status
		op.Message = msg
		op.FinishedAt = time.Now()
	}
	e.mu.Unlock()
}

// notifyAsync fires the trade-update broadcast and the optional hook
// without blocking the worker.
func (e *Engine) notifyAsync(j job) {
	go func() {
		e.hub.Broadcast(notify.Event{
			Type:   "trade_update",
			Symbol: j.symbol,
			Kind:   string(j.kind),
		})
		if e.onUpdate != nil {
			e.onUpdate()
		}
	}()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func errResult(format string, args ...any) domain.Result {
	err := fmt.Errorf(format, args...)
	return domain.Result{Status: domain.StatusError, Message: err.Error()}
}
