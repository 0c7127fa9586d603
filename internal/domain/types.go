// Package domain defines the core types shared across the trading
// operations engine: open trades, the risk pool, operation results, and the
// transient order bookkeeping used while an order is being monitored.
package domain

import "time"

// ---------------------------------------------------------------------------
// Operation kinds and statuses
// ---------------------------------------------------------------------------

// OperationKind identifies a logical order operation.
type OperationKind string

const (
	OpBuy      OperationKind = "buy"
	OpExit     OperationKind = "exit"
	OpIncrease OperationKind = "increase"
	OpDecrease OperationKind = "decrease"
)

// Status is the outcome classification returned by every public operation.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusProcessing Status = "processing"
)

// Result is the structured reply for every operation exposed to callers.
// Nothing propagates past the operation boundary as a raw failure; errors
// are converted into a Result with StatusError.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// AdjustmentKind classifies a post-entry quantity change.
type AdjustmentKind string

const (
	AdjustIncrease AdjustmentKind = "increase"
	AdjustDecrease AdjustmentKind = "decrease"
)

// ---------------------------------------------------------------------------
// Persistent records
// ---------------------------------------------------------------------------

// Adjustment is one entry in a trade's append-only quantity-change log.
type Adjustment struct {
	At    time.Time      `json:"at"`
	Kind  AdjustmentKind `json:"kind"`
	Qty   int            `json:"qty"`
	Price float64        `json:"price"`
}

// Trade is one open position. At most one Trade exists per symbol, and
// CurrentQty stays positive for as long as the row exists.
//
// InitialStop is the stop-loss recorded at entry and never mutated; risk
// released on decrease/exit is always computed against it, not against any
// later trailing value of StopLoss.
type Trade struct {
	ID          string       `json:"trade_id"`
	Symbol      string       `json:"symbol"`
	Token       string       `json:"token"` // broker instrument/asset identifier
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

// HighestQty replays the adjustment log and returns the largest quantity the
// position ever held.
func (t *Trade) HighestQty() int {
	qty := t.InitialQty
	highest := qty
	for _, a := range t.Adjustments {
		switch a.Kind {
		case AdjustIncrease:
			qty += a.Qty
		case AdjustDecrease:
			qty -= a.Qty
		}
		if qty > highest {
			highest = qty
		}
	}
	return highest
}

// RiskPool is the singleton risk-budget record. Used is capital committed to
// open positions; Available is free to allocate to new ones.
type RiskPool struct {
	Used      float64 `json:"used_risk"`
	Available float64 `json:"available_risk"`
}

// HistoricalTrade is the append-only record written when a position exits.
type HistoricalTrade struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	FinalPnL   float64   `json:"final_pnl"`
	HighestQty int       `json:"highest_qty"`
}

// ---------------------------------------------------------------------------
// Transient records
// ---------------------------------------------------------------------------

// PendingOrder tracks a brokerage order from submission until the monitor
// reaches a terminal outcome. It is never persisted.
type PendingOrder struct {
	OrderID   string
	Symbol    string
	Kind      OperationKind
	Qty       int
	EntryHint float64 // estimated entry used for the pre-submit risk check
	StopHint  float64 // estimated stop used for the pre-submit risk check
}
