package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Gateway = (*SimulatorGateway)(nil)

// Script controls how the simulator resolves the next placed order. The
// zero Outcome means the order never reaches a terminal state, which is how
// monitor timeouts are exercised.
type Script struct {
	Outcome    OrderStatus // terminal status to report, or "" for never
	FillPrice  float64     // average price reported on OrderComplete; 0 falls back to the quote
	AfterPolls int         // number of OrderHistory calls reporting "open" first
	Message    string      // broker status message for the terminal event
	PollErrs   int         // transient errors returned before any status
}

type simOrder struct {
	script  Script
	symbol  string
	side    Side
	qty     int
	placed  time.Time
	polls   int
	pollErr int
}

// SimulatorGateway implements the Gateway interface in memory for paper
// trading and tests. Orders resolve according to queued Scripts; without a
// script an order fills at the current quote on the first poll.
type SimulatorGateway struct {
	mu      sync.Mutex
	quotes  map[string]float64
	orders  map[string]*simOrder
	scripts []Script
	seq     int
}

// NewSimulatorGateway creates an empty SimulatorGateway.
func NewSimulatorGateway() *SimulatorGateway {
	return &SimulatorGateway{
		quotes: make(map[string]float64),
		orders: make(map[string]*simOrder),
	}
}

// Name returns "simulator".
func (g *SimulatorGateway) Name() string { return "simulator" }

// SetQuote sets the last traded price reported for a symbol.
func (g *SimulatorGateway) SetQuote(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[symbol] = price
}

// ScriptNext queues a Script consumed by the next PlaceOrder call. Scripts
// are consumed FIFO.
func (g *SimulatorGateway) ScriptNext(s Script) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts = append(g.scripts, s)
}

// Placed returns the number of orders submitted so far.
func (g *SimulatorGateway) Placed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// PlaceOrder records the order and assigns it the next queued script.
func (g *SimulatorGateway) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	script := Script{Outcome: OrderComplete}
	if len(g.scripts) > 0 {
		script = g.scripts[0]
		g.scripts = g.scripts[1:]
	}

	g.seq++
	id := fmt.Sprintf("SIM-%d", g.seq)
	g.orders[id] = &simOrder{
		script: script,
		symbol: req.Symbol,
		side:   req.Side,
		qty:    req.Qty,
		placed: time.Now(),
	}
	return id, nil
}

// OrderHistory advances the order through its script and reports the result.
func (g *SimulatorGateway) OrderHistory(_ context.Context, orderID string) ([]OrderEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", orderID)
	}

	if o.pollErr < o.script.PollErrs {
		o.pollErr++
		return nil, fmt.Errorf("simulated network failure (%d/%d)", o.pollErr, o.script.PollErrs)
	}

	event := OrderEvent{
		At:     time.Now(),
		Symbol: o.symbol,
		Token:  "sim-" + o.symbol,
	}

	o.polls++
	if o.script.Outcome == "" || o.polls <= o.script.AfterPolls {
		event.Status = OrderOpen
		event.Message = "open"
		return []OrderEvent{event}, nil
	}

	event.Status = o.script.Outcome
	event.Message = o.script.Message
	if event.Status == OrderComplete {
		event.AvgPrice = o.script.FillPrice
		if event.AvgPrice == 0 {
			event.AvgPrice = g.quotes[o.symbol]
		}
		if event.Message == "" {
			event.Message = "filled"
		}
	}
	return []OrderEvent{event}, nil
}

// Quote returns the configured last traded price for the symbol.
func (g *SimulatorGateway) Quote(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote available for %s", symbol)
	}
	return price, nil
}
