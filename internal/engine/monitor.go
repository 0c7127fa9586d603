package engine

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/broker"
	"tradedesk/internal/domain"
	"tradedesk/internal/util"
)

// Poll-failure retry policy. A transient polling error (network, 5xx) is
// retried a few times with backoff before the whole operation is reported
// as failed; this is distinct from a broker-reported terminal status.
const (
	pollRetryAttempts = 3
	pollRetryBase     = 500 * time.Millisecond
)

// fill is the outcome of a completed order.
type fill struct {
	price float64
	token string
	at    time.Time
}

// monitor polls the gateway until the order reaches a terminal status or
// the per-kind deadline elapses.
//
// SUBMITTED -> COMPLETE | REJECTED | CANCELLED | TIMEOUT
//
// On timeout no cancellation is sent to the brokerage: the broker-side
// order may still resolve later without further observation by this
// system.
func (e *Engine) monitor(ctx context.Context, pending domain.PendingOrder) (fill, error) {
	deadline := time.Now().Add(e.timeoutFor(pending.Kind))

	for {
		if time.Now().After(deadline) {
			return fill{}, fmt.Errorf("%w: order %s for %s still not terminal",
				domain.ErrBrokerTimeout, pending.OrderID, pending.Symbol)
		}

		var events []broker.OrderEvent
		err := util.Retry(ctx, pollRetryAttempts, pollRetryBase, func() error {
			var pollErr error
			events, pollErr = e.gateway.OrderHistory(ctx, pending.OrderID)
			return pollErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return fill{}, ctx.Err()
			}
			return fill{}, fmt.Errorf("polling order %s: %w", pending.OrderID, err)
		}
		if len(events) == 0 {
			return fill{}, fmt.Errorf("polling order %s: empty history", pending.OrderID)
		}

		last := events[len(events)-1]
		switch last.Status {
		case broker.OrderComplete:
			if last.AvgPrice <= 0 {
				return fill{}, fmt.Errorf("order %s complete with no fill price", pending.OrderID)
			}
			at := last.At
			if at.IsZero() {
				at = time.Now()
			}
			return fill{price: last.AvgPrice, token: last.Token, at: at}, nil

		case broker.OrderRejected:
			return fill{}, fmt.Errorf("%w: %s", domain.ErrBrokerRejected, brokerReason(last))

		case broker.OrderCancelled:
			return fill{}, fmt.Errorf("%w: %s", domain.ErrBrokerCancelled, brokerReason(last))
		}

		select {
		case <-ctx.Done():
			return fill{}, ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// timeoutFor returns the monitor deadline for an operation kind.
func (e *Engine) timeoutFor(kind domain.OperationKind) time.Duration {
	switch kind {
	case domain.OpBuy:
		return e.cfg.BuyTimeout
	case domain.OpExit:
		return e.cfg.ExitTimeout
	default:
		return e.cfg.AdjustTimeout
	}
}

func brokerReason(event broker.OrderEvent) string {
	if event.Message != "" {
		return event.Message
	}
	return string(event.Status)
}
