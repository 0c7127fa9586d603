package domain

import "errors"

// Error taxonomy for order operations. Callers classify failures with
// errors.Is; operation boundaries convert them into a Result.
var (
	// ErrValidation covers bad quantities, bad prices, and missing trades,
	// detected before any brokerage call.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when an operation is already in progress for
	// the symbol. The caller is never blocked waiting for the other
	// operation to finish.
	ErrConflict = errors.New("operation already in progress")

	// ErrInsufficientRisk is returned when the risk pool cannot cover the
	// capital a mutation would commit.
	ErrInsufficientRisk = errors.New("insufficient risk available")

	// ErrBrokerRejected and ErrBrokerCancelled carry terminal negative
	// broker statuses. Neither mutates the ledger or the trade store.
	ErrBrokerRejected  = errors.New("order rejected by broker")
	ErrBrokerCancelled = errors.New("order cancelled by broker")

	// ErrBrokerTimeout means the monitor deadline elapsed without a terminal
	// status. The broker-side order may still resolve later without further
	// observation by this system.
	ErrBrokerTimeout = errors.New("order monitoring timed out")

	// ErrPersistence wraps trade-store write failures.
	ErrPersistence = errors.New("persistence failed")
)
