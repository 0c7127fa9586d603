package engine

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradedesk/internal/broker"
	"tradedesk/internal/domain"
	"tradedesk/internal/notify"
	"tradedesk/internal/risk"
	"tradedesk/internal/store"
)

func testConfig() Config {
	return Config{
		Workers:       2,
		PollInterval:  5 * time.Millisecond,
		BuyTimeout:    2 * time.Second,
		AdjustTimeout: 2 * time.Second,
		ExitTimeout:   2 * time.Second,
	}
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *broker.SimulatorGateway, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"), 150000)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := broker.NewSimulatorGateway()
	e := New(gw, st, nil, risk.NewLedger(st, risk.DefaultLimits(), log), notify.NewHub(log), cfg, log)
	return e, gw, st
}

func startEngine(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	t.Cleanup(func() {
		cancel()
		e.Stop()
	})
}

// waitDone polls until the symbol's operation leaves processing and its
// admission slot is released again.
func waitDone(t *testing.T, e *Engine, symbol string) Operation {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		op, ok := e.OrderStatus(symbol)
		if ok && op.Status != domain.StatusProcessing && !e.admission.Active(symbol) {
			return op
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("operation for %s never finished", symbol)
	return Operation{}
}

func pool(t *testing.T, st *store.SQLiteStore) domain.RiskPool {
	t.Helper()
	p, err := st.RiskPool(context.Background())
	if err != nil {
		t.Fatalf("RiskPool: %v", err)
	}
	return p
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

func TestBuySuccess(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	gw.SetQuote("AAPL", 100)

	res := e.Buy(context.Background(), "aapl", 20)
	if res.Status != domain.StatusProcessing {
		t.Fatalf("Buy = %+v, want processing", res)
	}

	op := waitDone(t, e, "AAPL")
	if op.Status != domain.StatusSuccess {
		t.Fatalf("operation = %+v, want success", op)
	}
	if op.OrderID == "" {
		t.Error("operation is missing the order id")
	}

	trade, err := st.GetTradeBySymbol(context.Background(), "AAPL")
	if err != nil || trade == nil {
		t.Fatalf("GetTradeBySymbol = %v, %v", trade, err)
	}
	if trade.CurrentQty != 20 || trade.EntryPrice != 100 {
		t.Errorf("trade = qty %d entry %.2f, want 20 at 100", trade.CurrentQty, trade.EntryPrice)
	}
	if !approx(trade.StopLoss, 95) || !approx(trade.Target, 110) {
		t.Errorf("stop %.2f target %.2f, want 95 and 110", trade.StopLoss, trade.Target)
	}
	if trade.InitialStop != trade.StopLoss {
		t.Errorf("initial stop %.2f != stop %.2f at entry", trade.InitialStop, trade.StopLoss)
	}

	// 20 shares risking |100-95| each.
	p := pool(t, st)
	if !approx(p.Used, 100) || !approx(p.Available, 149900) {
		t.Errorf("pool = %+v, want {100 149900}", p)
	}
}

func TestBuyValidation(t *testing.T) {
	e, gw, _ := newTestEngine(t, testConfig())
	startEngine(t, e)

	if res := e.Buy(context.Background(), "", 10); res.Status != domain.StatusError {
		t.Errorf("empty symbol accepted: %+v", res)
	}
	if res := e.Buy(context.Background(), "AAPL", 0); res.Status != domain.StatusError {
		t.Errorf("zero quantity accepted: %+v", res)
	}
	if res := e.Buy(context.Background(), "AAPL", -5); res.Status != domain.StatusError {
		t.Errorf("negative quantity accepted: %+v", res)
	}
	if n := gw.Placed(); n != 0 {
		t.Errorf("validation failures reached the gateway, %d orders placed", n)
	}
}

func TestBuyDuplicatePosition(t *testing.T) {
	e, gw, _ := newTestEngine(t, testConfig())
	startEngine(t, e)
	gw.SetQuote("MSFT", 50)

	e.Buy(context.Background(), "MSFT", 10)
	waitDone(t, e, "MSFT")

	res := e.Buy(context.Background(), "MSFT", 10)
	if res.Status != domain.StatusError || !strings.Contains(res.Message, "already exists") {
		t.Errorf("second buy = %+v, want duplicate-position error", res)
	}
	if n := gw.Placed(); n != 1 {
		t.Errorf("gateway saw %d orders, want 1", n)
	}
}

func TestBuyInsufficientRisk(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	gw.SetQuote("TSLA", 100)

	// 100000 shares at 5 risk each needs 500000, far above the pool.
	e.Buy(context.Background(), "TSLA", 100000)
	op := waitDone(t, e, "TSLA")
	if op.Status != domain.StatusError || !strings.Contains(op.Message, "insufficient") {
		t.Errorf("operation = %+v, want insufficient-risk error", op)
	}
	if n := gw.Placed(); n != 0 {
		t.Errorf("precheck failure still placed %d orders", n)
	}
	p := pool(t, st)
	if !approx(p.Used, 0) || !approx(p.Available, 150000) {
		t.Errorf("pool mutated on failed precheck: %+v", p)
	}
}

func TestBuyRejectedByBroker(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	gw.SetQuote("NVDA", 200)
	gw.ScriptNext(broker.Script{Outcome: broker.OrderRejected, Message: "outside trading hours"})

	e.Buy(context.Background(), "NVDA", 5)
	op := waitDone(t, e, "NVDA")
	if op.Status != domain.StatusError || !strings.Contains(op.Message, "outside trading hours") {
		t.Errorf("operation = %+v, want rejection with broker message", op)
	}

	trade, _ := st.GetTradeBySymbol(context.Background(), "NVDA")
	if trade != nil {
		t.Error("rejected buy still persisted a trade")
	}
	p := pool(t, st)
	if !approx(p.Used, 0) || !approx(p.Available, 150000) {
		t.Errorf("pool mutated on rejection: %+v", p)
	}
}

func TestBuyTimeoutLeavesStateUntouched(t *testing.T) {
	cfg := testConfig()
	cfg.BuyTimeout = 60 * time.Millisecond
	e, gw, st := newTestEngine(t, cfg)
	startEngine(t, e)
	gw.SetQuote("AMD", 80)
	gw.ScriptNext(broker.Script{}) // never terminal

	e.Buy(context.Background(), "AMD", 10)
	op := waitDone(t, e, "AMD")
	if op.Status != domain.StatusError || !strings.Contains(op.Message, "timed out") {
		t.Errorf("operation = %+v, want timeout error", op)
	}

	trade, _ := st.GetTradeBySymbol(context.Background(), "AMD")
	if trade != nil {
		t.Error("timed-out buy persisted a trade")
	}
	p := pool(t, st)
	if !approx(p.Used, 0) || !approx(p.Available, 150000) {
		t.Errorf("pool mutated on timeout: %+v", p)
	}
}

func TestTransientPollErrorsAreRetried(t *testing.T) {
	e, gw, _ := newTestEngine(t, testConfig())
	startEngine(t, e)
	gw.SetQuote("INTC", 40)
	gw.ScriptNext(broker.Script{Outcome: broker.OrderComplete, PollErrs: 2})

	e.Buy(context.Background(), "INTC", 10)
	op := waitDone(t, e, "INTC")
	if op.Status != domain.StatusSuccess {
		t.Errorf("operation = %+v, want success after transient poll errors", op)
	}
}

func TestConflictWhileOrderInFlight(t *testing.T) {
	e, gw, _ := newTestEngine(t, testConfig())
	startEngine(t, e)
	gw.SetQuote("META", 300)
	gw.ScriptNext(broker.Script{Outcome: broker.OrderComplete, AfterPolls: 20})

	first := e.Buy(context.Background(), "META", 5)
	if first.Status != domain.StatusProcessing {
		t.Fatalf("first buy = %+v", first)
	}

	second := e.Buy(context.Background(), "META", 5)
	if second.Status != domain.StatusError || !strings.Contains(second.Message, "operation already in progress") {
		t.Errorf("second buy = %+v, want conflict", second)
	}

	if op := waitDone(t, e, "META"); op.Status != domain.StatusSuccess {
		t.Errorf("first buy finished as %+v", op)
	}
}

func TestSellWithoutPosition(t *testing.T) {
	e, gw, _ := newTestEngine(t, testConfig())
	startEngine(t, e)

	res := e.Sell(context.Background(), "GOOG")
	if res.Status != domain.StatusError || !strings.Contains(res.Message, "no open trade") {
		t.Errorf("Sell = %+v, want no-open-trade error", res)
	}
	if n := gw.Placed(); n != 0 {
		t.Errorf("sell without a position placed %d orders", n)
	}
}

func TestDecreaseMustLeavePosition(t *testing.T) {
	e, gw, _ := newTestEngine(t, testConfig())
	startEngine(t, e)
	gw.SetQuote("IBM", 100)

	e.Buy(context.Background(), "IBM", 10)
	waitDone(t, e, "IBM")
	placed := gw.Placed()

	res := e.Adjust(context.Background(), "IBM", 10, "decrease")
	if res.Status != domain.StatusError || !strings.Contains(res.Message, "use sell") {
		t.Errorf("full decrease = %+v, want validation error", res)
	}
	if n := gw.Placed(); n != placed {
		t.Errorf("rejected decrease still placed an order")
	}
}

func TestAdjustDirectionValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, testConfig())
	startEngine(t, e)

	res := e.Adjust(context.Background(), "IBM", 5, "sideways")
	if res.Status != domain.StatusError || !strings.Contains(res.Message, "increase or decrease") {
		t.Errorf("Adjust = %+v, want direction validation error", res)
	}
}

// TestLifecycle walks one position through buy, increase, decrease, and
// exit, checking the ledger accounting at each step.
func TestLifecycle(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	ctx := context.Background()

	// Buy 10 at 100, stop 95: used 50.
	gw.SetQuote("ORCL", 100)
	e.Buy(ctx, "ORCL", 10)
	if op := waitDone(t, e, "ORCL"); op.Status != domain.StatusSuccess {
		t.Fatalf("buy: %+v", op)
	}
	if p := pool(t, st); !approx(p.Used, 50) || !approx(p.Available, 149950) {
		t.Fatalf("after buy pool = %+v, want {50 149950}", p)
	}

	// Increase 5 at 102 against the current stop 95: +35 used.
	gw.ScriptNext(broker.Script{Outcome: broker.OrderComplete, FillPrice: 102})
	e.Adjust(ctx, "ORCL", 5, "increase")
	if op := waitDone(t, e, "ORCL"); op.Status != domain.StatusSuccess {
		t.Fatalf("increase: %+v", op)
	}
	if p := pool(t, st); !approx(p.Used, 85) || !approx(p.Available, 149915) {
		t.Fatalf("after increase pool = %+v, want {85 149915}", p)
	}

	// Decrease 5 at 110: releases 25 at the entry stop, profit 50 added once.
	gw.ScriptNext(broker.Script{Outcome: broker.OrderComplete, FillPrice: 110})
	e.Adjust(ctx, "ORCL", 5, "decrease")
	if op := waitDone(t, e, "ORCL"); op.Status != domain.StatusSuccess {
		t.Fatalf("decrease: %+v", op)
	}
	if p := pool(t, st); !approx(p.Used, 60) || !approx(p.Available, 149990) {
		t.Fatalf("after decrease pool = %+v, want {60 149990}", p)
	}
	trade, _ := st.GetTradeBySymbol(ctx, "ORCL")
	if trade.CurrentQty != 10 || !approx(trade.BookedPnL, 50) {
		t.Fatalf("after decrease trade = qty %d booked %.2f, want 10 and 50", trade.CurrentQty, trade.BookedPnL)
	}

	// Exit 10 at 90: releases 50, loss 100 subtracted twice.
	gw.ScriptNext(broker.Script{Outcome: broker.OrderComplete, FillPrice: 90})
	e.Sell(ctx, "ORCL")
	if op := waitDone(t, e, "ORCL"); op.Status != domain.StatusSuccess {
		t.Fatalf("exit: %+v", op)
	}
	if p := pool(t, st); !approx(p.Used, 10) || !approx(p.Available, 149840) {
		t.Fatalf("after exit pool = %+v, want {10 149840}", p)
	}

	if trade, _ := st.GetTradeBySymbol(ctx, "ORCL"); trade != nil {
		t.Error("trade still open after exit")
	}
	hist, err := st.ListHistory(ctx, 10)
	if err != nil || len(hist) != 1 {
		t.Fatalf("ListHistory = %v, %v, want one record", hist, err)
	}
	h := hist[0]
	if !approx(h.FinalPnL, -50) || h.HighestQty != 15 {
		t.Errorf("history = pnl %.2f highest %d, want -50 and 15", h.FinalPnL, h.HighestQty)
	}
}

func TestChangeStopLoss(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	ctx := context.Background()
	gw.SetQuote("CRM", 100)

	e.Buy(ctx, "CRM", 10)
	waitDone(t, e, "CRM")

	// Tightening 95 -> 98 releases 30 of the 50 committed.
	res := e.ChangeStopLoss(ctx, "CRM", 98)
	if res.Status != domain.StatusSuccess {
		t.Fatalf("ChangeStopLoss = %+v", res)
	}
	if p := pool(t, st); !approx(p.Used, 20) || !approx(p.Available, 149980) {
		t.Errorf("pool = %+v, want {20 149980}", p)
	}
	trade, _ := st.GetTradeBySymbol(ctx, "CRM")
	if !approx(trade.StopLoss, 98) {
		t.Errorf("stop = %.2f, want 98", trade.StopLoss)
	}
	if !approx(trade.InitialStop, 95) {
		t.Errorf("initial stop = %.2f, must stay 95", trade.InitialStop)
	}

	// Same value again is a no-op.
	if res := e.ChangeStopLoss(ctx, "CRM", 98); res.Status != domain.StatusSuccess {
		t.Errorf("idempotent change = %+v", res)
	}

	// No open trade.
	if res := e.ChangeStopLoss(ctx, "XYZ", 50); res.Status != domain.StatusError {
		t.Errorf("missing trade = %+v, want error", res)
	}
}

func TestChangeStopLossInsufficientRisk(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	ctx := context.Background()
	gw.SetQuote("UBER", 1000)

	// 100 shares at 1000, stop 950: used 5000, available 145000.
	e.Buy(ctx, "UBER", 100)
	waitDone(t, e, "UBER")

	// Moving the stop 1600 away from entry asks for 155000 more.
	res := e.ChangeStopLoss(ctx, "UBER", 2600)
	if res.Status != domain.StatusError || !strings.Contains(res.Message, "insufficient") {
		t.Fatalf("ChangeStopLoss = %+v, want insufficient-risk error", res)
	}

	trade, _ := st.GetTradeBySymbol(ctx, "UBER")
	if !approx(trade.StopLoss, 950) {
		t.Errorf("stop = %.2f, refused change must not persist", trade.StopLoss)
	}
	if p := pool(t, st); !approx(p.Used, 5000) || !approx(p.Available, 145000) {
		t.Errorf("pool = %+v, want {5000 145000}", p)
	}
}

func TestChangeTarget(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	ctx := context.Background()
	gw.SetQuote("SHOP", 100)

	e.Buy(ctx, "SHOP", 10)
	waitDone(t, e, "SHOP")
	before := pool(t, st)

	res := e.ChangeTarget(ctx, "SHOP", 130)
	if res.Status != domain.StatusSuccess {
		t.Fatalf("ChangeTarget = %+v", res)
	}
	trade, _ := st.GetTradeBySymbol(ctx, "SHOP")
	if !approx(trade.Target, 130) {
		t.Errorf("target = %.2f, want 130", trade.Target)
	}

	// Targets never move risk.
	after := pool(t, st)
	if !approx(after.Used, before.Used) || !approx(after.Available, before.Available) {
		t.Errorf("pool changed on target move: %+v -> %+v", before, after)
	}
}

func TestToggleAutoExit(t *testing.T) {
	e, gw, st := newTestEngine(t, testConfig())
	startEngine(t, e)
	ctx := context.Background()
	gw.SetQuote("PLTR", 30)

	e.Buy(ctx, "PLTR", 10)
	waitDone(t, e, "PLTR")
	trade, _ := st.GetTradeBySymbol(ctx, "PLTR")

	if res := e.ToggleAutoExit(ctx, trade.ID, true); res.Status != domain.StatusSuccess {
		t.Fatalf("ToggleAutoExit = %+v", res)
	}
	trade, _ = st.GetTrade(ctx, trade.ID)
	if !trade.AutoExit {
		t.Error("auto-exit flag not persisted")
	}

	if res := e.ToggleAutoExit(ctx, "nope", true); res.Status != domain.StatusError {
		t.Errorf("unknown trade id = %+v, want error", res)
	}
}
