package engine

import "sync"

// Admission serializes order operations per symbol: at most one buy, sell,
// adjust, or parameter change is active for a symbol at any time. Symbols
// appear dynamically, so the set of active symbols is guarded by one coarse
// mutex.
type Admission struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewAdmission creates an empty Admission controller.
func NewAdmission() *Admission {
	return &Admission{active: make(map[string]struct{})}
}

// TryAcquire attempts to claim the symbol. It never blocks: if another
// operation is active for the symbol it returns false immediately.
func (a *Admission) TryAcquire(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.active[symbol]; busy {
		return false
	}
	a.active[symbol] = struct{}{}
	return true
}

// Release frees the symbol. It must be called exactly once per successful
// TryAcquire; callers defer it so the slot is freed on every path.
func (a *Admission) Release(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, symbol)
}

// Active reports whether an operation currently holds the symbol.
func (a *Admission) Active(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, busy := a.active[symbol]
	return busy
}
