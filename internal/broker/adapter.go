// Package broker defines the capability-set contract every execution
// venue (a live broker, a broker sandbox, or the internal simulator)
// must satisfy, so the routing and execution layers can treat them
// uniformly.
package broker

import (
	"context"
	"time"

	"tradecore/internal/domain"
)

// OrderSpec is the venue-agnostic order request the coordinator submits
// to an Adapter.
type OrderSpec struct {
	AccountID     string
	Instrument    domain.Instrument
	Side          domain.Side
	Quantity      float64
	OrderType     domain.OrderType
	Price         *float64
	StopPrice     *float64
	TIF           domain.TimeInForce
	ClientOrderTag string // idempotency key, derived from Alert.ID
}

// OrderAck is returned by a successful PlaceOrder call.
type OrderAck struct {
	BrokerRef  string
	AcceptedAt time.Time
}

// ReasonCode is a stable machine-readable rejection or failure reason an
// adapter attaches to errors, so the routing/execution layer can
// classify retryable vs fatal without parsing prose.
type ReasonCode string

const (
	ReasonNone            ReasonCode = ""
	ReasonNoBuyingPower   ReasonCode = "NO_BP"
	ReasonClosed          ReasonCode = "CLOSED"
	ReasonSymbol          ReasonCode = "SYMBOL"
	ReasonNetwork         ReasonCode = "NETWORK"
	ReasonTimeout         ReasonCode = "TIMEOUT"
	ReasonServerError     ReasonCode = "SERVER_ERROR"
	ReasonClientRejected  ReasonCode = "CLIENT_REJECTED"
	ReasonNotFound        ReasonCode = "NOT_FOUND"
	ReasonTerminal        ReasonCode = "TERMINAL"
)

// Retryable reports whether the reason code represents a transient
// failure worth retrying with backoff, per spec: network errors and
// timeouts are retryable; 4xx-shaped client rejections are not.
func (r ReasonCode) Retryable() bool {
	switch r {
	case ReasonNetwork, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// AdapterError wraps a rejection or failure with its stable reason code.
type AdapterError struct {
	Reason  ReasonCode
	Message string
}

func (e *AdapterError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Message
}

// Update is one element of an account's update stream. Several pointer
// fields may be set together (a fill arrives with the position it
// changed), and the paper engine delivers an account reset as an Update
// with every field nil.
type Update struct {
	Order    *domain.Order
	Fill     *domain.Fill
	Position *domain.Position
	Account  *domain.Account
}

// Adapter is the uniform contract over heterogeneous execution venues.
// Implementations: internal/paper (simulator), internal/broker/sandbox
// (HTTP sandbox venue). A live broker wire client would implement the
// same contract but lives outside this core per spec's BrokerAdapter
// boundary.
type Adapter interface {
	// PlaceOrder submits spec and returns an ack, or an *AdapterError
	// carrying a stable ReasonCode the caller can classify.
	PlaceOrder(ctx context.Context, spec OrderSpec) (OrderAck, error)

	// CancelOrder cancels a previously placed order by its brokerRef.
	CancelOrder(ctx context.Context, brokerRef string) error

	// GetAccount returns the adapter's current view of accountID.
	GetAccount(ctx context.Context, accountID string) (domain.Account, error)

	// GetPositions returns all open and recently-closed positions for
	// accountID.
	GetPositions(ctx context.Context, accountID string) ([]domain.Position, error)

	// StreamUpdates returns a channel of Updates for accountID. The
	// channel is closed when ctx is cancelled. Order is per-account
	// total; there is no cross-restart replay guarantee.
	StreamUpdates(ctx context.Context, accountID string) (<-chan Update, error)
}
