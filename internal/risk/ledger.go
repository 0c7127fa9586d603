// Package risk implements the shared risk ledger: the accounting of
// capital-at-risk across all open positions, split into a used and an
// available pool with a combined floor and an availability cap.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"tradedesk/internal/domain"
	"tradedesk/internal/store"
)

// Limits are the ledger invariants enforced after every mutation.
type Limits struct {
	// MinCombined is the floor for used+available. When a mutation would
	// breach it, available is raised (never used) to restore the floor.
	MinCombined float64

	// MaxAvailable caps the available pool.
	MaxAvailable float64
}

// DefaultLimits returns the production floor and cap.
func DefaultLimits() Limits {
	return Limits{MinCombined: 100000, MaxAvailable: 450000}
}

// Ledger is the single writer of the risk pool. Every mutation is
// serialized through one mutex and executed as a transactional
// read-modify-write in the store, so operations on different symbols can
// never interleave a stale read with a write.
type Ledger struct {
	mu     sync.Mutex
	store  store.RiskStore
	limits Limits
	log    *slog.Logger
}

// NewLedger creates a Ledger over the given risk store.
func NewLedger(rs store.RiskStore, limits Limits, log *slog.Logger) *Ledger {
	return &Ledger{
		store:  rs,
		limits: limits,
		log:    log.With("component", "ledger"),
	}
}

// Pool returns the current risk pool state.
func (l *Ledger) Pool(ctx context.Context) (domain.RiskPool, error) {
	return l.store.RiskPool(ctx)
}

// CheckBuy verifies, before any order is placed, that the available pool
// covers the risk a buy would commit.
func (l *Ledger) CheckBuy(ctx context.Context, entry, stop float64, qty int) error {
	pool, err := l.store.RiskPool(ctx)
	if err != nil {
		return err
	}
	needed := positionRisk(entry, stop, qty)
	if needed > pool.Available {
		return fmt.Errorf("%w: need %.2f, have %.2f",
			domain.ErrInsufficientRisk, needed, pool.Available)
	}
	return nil
}

// ApplyBuy commits the risk of a filled buy: used grows and available
// shrinks by qty*|avgPrice-stop|. Fails without mutating when the available
// pool cannot cover it.
func (l *Ledger) ApplyBuy(ctx context.Context, avgPrice, stop float64, qty int) error {
	return l.apply(ctx, "buy", func(p domain.RiskPool) (domain.RiskPool, error) {
		needed := positionRisk(avgPrice, stop, qty)
		if needed > p.Available {
			return p, fmt.Errorf("%w: need %.2f, have %.2f",
				domain.ErrInsufficientRisk, needed, p.Available)
		}
		p.Used += needed
		p.Available -= needed
		return p, nil
	})
}

// ApplyIncrease commits the risk of an added quantity after its fill. The
// availability check happens here, after the order has already completed;
// a failure therefore signals a fill/ledger inconsistency to the caller.
func (l *Ledger) ApplyIncrease(ctx context.Context, currentStop, fillPrice float64, qty int) error {
	return l.apply(ctx, "increase", func(p domain.RiskPool) (domain.RiskPool, error) {
		needed := positionRisk(fillPrice, currentStop, qty)
		if needed > p.Available {
			return p, fmt.Errorf("%w: need %.2f, have %.2f",
				domain.ErrInsufficientRisk, needed, p.Available)
		}
		p.Used += needed
		p.Available -= needed
		return p, nil
	})
}

// ApplyDecrease releases the risk originally allocated to the reduced
// quantity and applies the realized P&L adjustment.
func (l *Ledger) ApplyDecrease(ctx context.Context, initialStop, entryPrice, fillPrice float64, qty int) error {
	return l.apply(ctx, "decrease", releaseFunc(initialStop, entryPrice, fillPrice, qty))
}

// ApplyExit releases the risk of the full remaining quantity and applies
// the realized P&L adjustment.
func (l *Ledger) ApplyExit(ctx context.Context, initialStop, entryPrice, fillPrice float64, qty int) error {
	return l.apply(ctx, "exit", releaseFunc(initialStop, entryPrice, fillPrice, qty))
}

// releaseFunc returns the shared decrease/exit mutation. The released risk
// is computed against the stop-loss recorded at entry, not any later
// trailing value. Realized profit is added to available once; realized loss
// is subtracted twice. The doubled loss penalty is a deliberate
// conservative-risk rule carried over from the original accounting.
func releaseFunc(initialStop, entryPrice, fillPrice float64, qty int) func(domain.RiskPool) (domain.RiskPool, error) {
	return func(p domain.RiskPool) (domain.RiskPool, error) {
		released := positionRisk(entryPrice, initialStop, qty)
		p.Used -= released
		p.Available += released

		if fillPrice > entryPrice {
			p.Available += (fillPrice - entryPrice) * float64(qty)
		} else {
			p.Available -= 2 * (entryPrice - fillPrice) * float64(qty)
		}
		return p, nil
	}
}

// ApplyStopChange shifts used/available by the risk delta between the old
// and new stop-loss. A positive delta larger than the available pool fails
// with ErrInsufficientRisk.
func (l *Ledger) ApplyStopChange(ctx context.Context, currentStop, newStop, entryPrice float64, qty int) error {
	return l.apply(ctx, "stop-change", func(p domain.RiskPool) (domain.RiskPool, error) {
		oldRisk := positionRisk(entryPrice, currentStop, qty)
		newRisk := positionRisk(entryPrice, newStop, qty)
		delta := newRisk - oldRisk
		if delta > 0 && delta > p.Available {
			return p, fmt.Errorf("%w: need %.2f more, have %.2f",
				domain.ErrInsufficientRisk, delta, p.Available)
		}
		p.Used += delta
		p.Available -= delta
		return p, nil
	})
}

// apply runs one ledger mutation: serialize, read-modify-write in a store
// transaction, clamp to the invariants, log the result.
func (l *Ledger) apply(ctx context.Context, op string, fn func(domain.RiskPool) (domain.RiskPool, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := l.store.UpdateRiskPool(ctx, func(p domain.RiskPool) (domain.RiskPool, error) {
		np, err := fn(p)
		if err != nil {
			return p, err
		}
		return l.clamp(np), nil
	})
	if err != nil {
		return err
	}

	l.log.Info("risk pool updated", "op", op,
		"used", next.Used, "available", next.Available)
	return nil
}

// clamp enforces the ledger invariants: available in [0, MaxAvailable],
// used >= 0, then used+available >= MinCombined restored by raising
// available.
func (l *Ledger) clamp(p domain.RiskPool) domain.RiskPool {
	p.Available = math.Max(p.Available, 0)
	p.Available = math.Min(p.Available, l.limits.MaxAvailable)
	p.Used = math.Max(p.Used, 0)
	if p.Used+p.Available < l.limits.MinCombined {
		p.Available = l.limits.MinCombined - p.Used
	}
	return p
}

// positionRisk is the capital at risk for qty units between a price and its
// stop.
func positionRisk(price, stop float64, qty int) float64 {
	return float64(qty) * math.Abs(price-stop)
}
