// Package execution implements the execution coordinator (C9): the
// per-alert orchestrator that drives an Alert through validation,
// routing, placement, and terminal disposition, owning retry/backoff and
// idempotency for adapter placement.
//
// Grounded on the teacher's internal/execution/tracker.go fill/position
// bookkeeping shape (kept in internal/paper's simAccount) plus
// AlejandroRuiz99-polybot's doWithRetry exponential-backoff-with-jitter
// pattern for adapter placement retries.
package execution

import (
	"context"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"tradecore/internal/broker"
	"tradecore/internal/domain"
	"tradecore/internal/registry"
	"tradecore/internal/risk"
	"tradecore/internal/routing"
	"tradecore/internal/strategy"
)

// RetryConfig bounds the exponential backoff applied to retryable
// placement failures.
type RetryConfig struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 4, BaseWait: 250 * time.Millisecond, MaxWait: 5 * time.Second}
}

// AdapterResolver returns the broker.Adapter responsible for a
// Destination, and resolves an account id's risk Manager (nil if the
// account carries no funded-account rules).
type AdapterResolver interface {
	Adapter(dest routing.Destination) (broker.Adapter, bool)
	RiskManager(accountID string) (*risk.Manager, bool)
}

// Broadcaster fans out terminal and intermediate Alert status events,
// matching the hub's Publish(topic, data) shape.
type Broadcaster interface {
	PublishAlertStatus(alert domain.Alert, status domain.AlertStatus)
	PublishViolation(v domain.Violation)
}

// Ledger persists the alert's terminal disposition for durability.
type Ledger interface {
	Record(alertID, source string, receivedAt time.Time, destination, terminalStatus string)
}

// Coordinator drives each accepted Alert through the full lifecycle.
// Safe for concurrent use; each Process call is independent apart from
// shared, already-synchronized collaborators (registry, risk, strategy,
// adapters).
type Coordinator struct {
	reg       *registry.Registry
	strategy  *strategy.Tracker
	resolver  AdapterResolver
	broadcast Broadcaster
	ledger    Ledger
	lookupPos routing.PositionLookup
	retry     RetryConfig

	mu   sync.Mutex
	seen map[string]bool // clientOrderTag -> placed, for idempotent collapse
}

// New builds a Coordinator.
func New(reg *registry.Registry, strategyTracker *strategy.Tracker, resolver AdapterResolver, broadcast Broadcaster, ledger Ledger, lookupPos routing.PositionLookup, retry RetryConfig) *Coordinator {
	if retry.MaxAttempts <= 0 {
		retry = defaultRetryConfig()
	}
	return &Coordinator{
		reg:       reg,
		strategy:  strategyTracker,
		resolver:  resolver,
		broadcast: broadcast,
		ledger:    ledger,
		lookupPos: lookupPos,
		retry:     retry,
		seen:      make(map[string]bool),
	}
}

// Process runs one Alert through received -> validating -> routing ->
// placing -> working -> terminal. It is the only entry point; the
// webhook receiver's onAlert callback should call this directly (or via
// a bounded work queue — Process itself does not enqueue).
func (c *Coordinator) Process(ctx context.Context, alert domain.Alert) {
	c.broadcast.PublishAlertStatus(alert, domain.AlertValidated)

	mode := c.strategy.Mode(alert.StrategyID)
	dest, err := routing.Decide(alert, mode)
	if err != nil {
		c.terminal(alert, domain.AlertRejected, string(dest.Kind))
		return
	}
	c.broadcast.PublishAlertStatus(alert, domain.AlertRouting)

	spec, err := routing.Materialize(alert, dest, c.reg, c.lookupPos)
	if err == routing.ErrNoPosition {
		c.terminal(alert, domain.AlertIgnored, string(dest.Kind))
		return
	}
	if err != nil {
		c.terminal(alert, domain.AlertRejected, string(dest.Kind))
		return
	}

	if mgr, ok := c.resolver.RiskManager(dest.AccountID); ok {
		result := mgr.Validate(risk.ProposedOrder{
			Symbol:                 spec.Instrument.Symbol,
			Quantity:               spec.Quantity,
			Multiplier:             spec.Instrument.Multiplier,
			ReferencePrice:         derefOrZero(spec.Price),
			Now:                    time.Now().UTC(),
			ClosesBeforeSessionEnd: true,
		})
		if !result.OK() {
			c.terminal(alert, domain.AlertRejected, string(dest.Kind))
			return
		}
	}

	if c.alreadyPlaced(spec.ClientOrderTag) {
		c.terminal(alert, domain.AlertWorking, string(dest.Kind))
		return
	}

	adapter, ok := c.resolver.Adapter(dest)
	if !ok {
		c.terminal(alert, domain.AlertFailed, string(dest.Kind))
		return
	}

	c.broadcast.PublishAlertStatus(alert, domain.AlertPlacing)
	if _, err := c.placeWithRetry(ctx, adapter, spec); err != nil {
		// Partial failure: validation passed but placement failed
		// terminally. No strategy trade recorded, no position attributed.
		c.terminal(alert, domain.AlertFailed, string(dest.Kind))
		return
	}

	c.markPlaced(spec.ClientOrderTag)
	c.terminal(alert, domain.AlertWorking, string(dest.Kind))
}

func derefOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func (c *Coordinator) alreadyPlaced(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[tag]
}

func (c *Coordinator) markPlaced(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[tag] = true
}

func (c *Coordinator) terminal(alert domain.Alert, status domain.AlertStatus, destination string) {
	c.broadcast.PublishAlertStatus(alert, status)
	if c.ledger != nil {
		c.ledger.Record(alert.ID, alert.Source, alert.ReceivedAt, destination, string(status))
	}
}

// placeWithRetry places spec via adapter, retrying retryable
// (network/timeout/server-error) failures with exponential backoff plus
// jitter up to c.retry.MaxAttempts. Client-error rejections are returned
// immediately without retrying.
func (c *Coordinator) placeWithRetry(ctx context.Context, adapter broker.Adapter, spec broker.OrderSpec) (broker.OrderAck, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		ack, err := adapter.PlaceOrder(ctx, spec)
		if err == nil {
			return ack, nil
		}
		lastErr = err

		adapterErr, ok := err.(*broker.AdapterError)
		if !ok || !adapterErr.Reason.Retryable() {
			return broker.OrderAck{}, err
		}
		if attempt == c.retry.MaxAttempts-1 {
			break
		}
		wait := backoff(attempt, c.retry.BaseWait, c.retry.MaxWait)
		select {
		case <-ctx.Done():
			return broker.OrderAck{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	log.Printf("execution: placement exhausted retries for tag=%s: %v", spec.ClientOrderTag, lastErr)
	return broker.OrderAck{}, lastErr
}

func backoff(attempt int, base, max time.Duration) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt))) * base
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(base)))
	return wait + jitter
}

// FlattenAccount issues synthetic close orders for every open position of
// accountID via adapter, used on an emergency-flatten request raised by
// the risk engine.
func (c *Coordinator) FlattenAccount(ctx context.Context, adapter broker.Adapter, accountID string) {
	positions, err := adapter.GetPositions(ctx, accountID)
	if err != nil {
		log.Printf("execution: flatten %s: could not list positions: %v", accountID, err)
		return
	}
	for _, pos := range positions {
		if pos.NetQty == 0 {
			continue
		}
		side := domain.SideSell
		qty := pos.NetQty
		if pos.NetQty < 0 {
			side = domain.SideBuy
			qty = -pos.NetQty
		}
		spec := broker.OrderSpec{
			AccountID:      accountID,
			Instrument:     pos.Instrument,
			Side:           side,
			Quantity:       qty,
			OrderType:      domain.OrderTypeMarket,
			TIF:            domain.TIFIOC,
			ClientOrderTag: "flatten-" + accountID + "-" + pos.Instrument.Symbol,
		}
		if _, err := c.placeWithRetry(ctx, adapter, spec); err != nil {
			log.Printf("execution: flatten %s/%s failed: %v", accountID, pos.Instrument.Symbol, err)
		}
	}
}
