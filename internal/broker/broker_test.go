package broker

import (
	"context"
	"testing"
)

func TestAlpacaGatewayName(t *testing.T) {
	g := NewAlpacaGateway("key", "secret", "https://paper-api.alpaca.markets",
		"https://data.alpaca.markets", 180)
	if got := g.Name(); got != "alpaca" {
		t.Errorf("AlpacaGateway.Name() = %q, want %q", got, "alpaca")
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		in   string
		want OrderStatus
	}{
		{"filled", OrderComplete},
		{"FILLED", OrderComplete},
		{"rejected", OrderRejected},
		{"canceled", OrderCancelled},
		{"expired", OrderCancelled},
		{"new", OrderOpen},
		{"partially_filled", OrderOpen},
		{"pending_new", OrderOpen},
	}
	for _, c := range cases {
		if got := normalizeStatus(c.in); got != c.want {
			t.Errorf("normalizeStatus(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderComplete, OrderRejected, OrderCancelled} {
		if !s.Terminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	if OrderOpen.Terminal() {
		t.Error("open should not be terminal")
	}
}

func TestSimulatorDefaultFill(t *testing.T) {
	g := NewSimulatorGateway()
	g.SetQuote("AAPL", 185.5)
	ctx := context.Background()

	id, err := g.PlaceOrder(ctx, OrderRequest{Symbol: "AAPL", Side: SideBuy, Qty: 10})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	events, err := g.OrderHistory(ctx, id)
	if err != nil {
		t.Fatalf("OrderHistory: %v", err)
	}
	last := events[len(events)-1]
	if last.Status != OrderComplete {
		t.Errorf("status = %q, want complete", last.Status)
	}
	if last.AvgPrice != 185.5 {
		t.Errorf("AvgPrice = %v, want 185.5 (the quote)", last.AvgPrice)
	}
}

func TestSimulatorScriptedRejection(t *testing.T) {
	g := NewSimulatorGateway()
	g.ScriptNext(Script{Outcome: OrderRejected, AfterPolls: 2, Message: "insufficient funds"})
	ctx := context.Background()

	id, _ := g.PlaceOrder(ctx, OrderRequest{Symbol: "TSLA", Side: SideBuy, Qty: 5})

	for i := 0; i < 2; i++ {
		events, err := g.OrderHistory(ctx, id)
		if err != nil {
			t.Fatalf("OrderHistory poll %d: %v", i, err)
		}
		if events[0].Status != OrderOpen {
			t.Fatalf("poll %d status = %q, want open", i, events[0].Status)
		}
	}

	events, err := g.OrderHistory(ctx, id)
	if err != nil {
		t.Fatalf("OrderHistory: %v", err)
	}
	if events[0].Status != OrderRejected {
		t.Errorf("status = %q, want rejected", events[0].Status)
	}
	if events[0].Message != "insufficient funds" {
		t.Errorf("message = %q, want broker reason", events[0].Message)
	}
}

func TestSimulatorTransientPollErrors(t *testing.T) {
	g := NewSimulatorGateway()
	g.SetQuote("MSFT", 400)
	g.ScriptNext(Script{Outcome: OrderComplete, PollErrs: 2})
	ctx := context.Background()

	id, _ := g.PlaceOrder(ctx, OrderRequest{Symbol: "MSFT", Side: SideBuy, Qty: 1})

	for i := 0; i < 2; i++ {
		if _, err := g.OrderHistory(ctx, id); err == nil {
			t.Fatalf("poll %d should have failed transiently", i)
		}
	}
	events, err := g.OrderHistory(ctx, id)
	if err != nil {
		t.Fatalf("OrderHistory after transient errors: %v", err)
	}
	if events[0].Status != OrderComplete {
		t.Errorf("status = %q, want complete", events[0].Status)
	}
}

func TestSimulatorQuoteMissing(t *testing.T) {
	g := NewSimulatorGateway()
	if _, err := g.Quote(context.Background(), "NOPE"); err == nil {
		t.Error("Quote for unknown symbol should fail")
	}
}
