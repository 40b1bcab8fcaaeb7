// Package routing selects an execution destination for an Alert and
// materializes it into a broker.OrderSpec. It performs no I/O of its
// own — grounded on the teacher's strategy.SelectMarkets/autoSelectMarkets
// pure-decision-function style, generalized from market selection to
// destination + order-spec selection.
package routing

import (
	"errors"
	"strings"

	"tradecore/internal/broker"
	"tradecore/internal/domain"
	"tradecore/internal/registry"
)

// DestinationKind is the class of execution venue a routed Alert lands on.
type DestinationKind string

const (
	DestinationSimulator DestinationKind = "simulator"
	DestinationSandbox   DestinationKind = "sandbox"
	DestinationLive      DestinationKind = "live"
)

// Destination is a routing decision: which adapter pool to use and which
// account within it.
type Destination struct {
	Kind       DestinationKind
	AdapterKey string // sandbox name, or the live account group
	AccountID  string
}

// ErrSuspended is returned when the alert's strategy is suspended: the
// alert must be rejected outright, never routed to paper.
var ErrSuspended = errors.New("routing: strategy suspended")

// ErrNoPosition is returned by Materialize for a close alert against an
// account with no open position for the symbol — resolved per spec as a
// silent no-op (callers should mark the alert ignored, not failed).
var ErrNoPosition = errors.New("routing: close requested with no open position")

// Decide chooses a Destination for alert given the current mode of its
// strategy (domain.StrategyLive if the strategy is unknown or unset).
func Decide(alert domain.Alert, strategyMode domain.StrategyMode) (Destination, error) {
	if strategyMode == domain.StrategySuspended {
		return Destination{}, ErrSuspended
	}

	forcePaper := strategyMode == domain.StrategyPaper
	isPaperGroup := strings.HasPrefix(alert.AccountGroup, "paper_")

	if isPaperGroup || forcePaper {
		suffix := strings.TrimPrefix(alert.AccountGroup, "paper_")
		if !isPaperGroup || suffix == "sim" || suffix == "" {
			return Destination{Kind: DestinationSimulator, AdapterKey: "simulator", AccountID: alert.AccountGroup}, nil
		}
		return Destination{Kind: DestinationSandbox, AdapterKey: suffix, AccountID: alert.AccountGroup}, nil
	}

	return Destination{Kind: DestinationLive, AdapterKey: alert.AccountGroup, AccountID: alert.AccountGroup}, nil
}

// PositionLookup resolves an account's current signed quantity for a
// symbol, used to expand `close` alerts into an opposing-side order of
// the exact size needed to flatten.
type PositionLookup func(accountID, symbol string) (float64, error)

// Materialize resolves alert's instrument via reg and expands it into a
// broker.OrderSpec for the chosen destination. `close` alerts look up the
// current position and flip to the opposing side at that quantity;
// ErrNoPosition is returned (not a hard failure) when there is nothing to
// close.
func Materialize(alert domain.Alert, dest Destination, reg *registry.Registry, lookupPosition PositionLookup) (broker.OrderSpec, error) {
	instrument, err := reg.Resolve(alert.Symbol)
	if err != nil {
		return broker.OrderSpec{}, err
	}

	side := alert.Side
	quantity := alert.Quantity

	if alert.Side == domain.SideClose {
		netQty, err := lookupPosition(dest.AccountID, instrument.Symbol)
		if err != nil {
			return broker.OrderSpec{}, err
		}
		if netQty == 0 {
			return broker.OrderSpec{}, ErrNoPosition
		}
		if netQty > 0 {
			side = domain.SideSell
			quantity = netQty
		} else {
			side = domain.SideBuy
			quantity = -netQty
		}
	}

	spec := broker.OrderSpec{
		AccountID:      dest.AccountID,
		Instrument:     instrument,
		Side:           side,
		Quantity:       quantity,
		OrderType:      alert.OrderType,
		TIF:            alert.TimeInForce,
		ClientOrderTag: alert.ID,
	}
	if alert.Price != nil {
		rounded := registry.TickRound(instrument, *alert.Price)
		spec.Price = &rounded
	}
	if alert.StopPrice != nil {
		rounded := registry.TickRound(instrument, *alert.StopPrice)
		spec.StopPrice = &rounded
	}
	return spec, nil
}
