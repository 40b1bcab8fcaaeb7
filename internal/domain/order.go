package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle stage of an Order. Transitions are
// monotonic: pending -> working -> (partiallyFilled)* -> {filled|cancelled}.
// rejected is terminal from pending; cancelled is reachable only from
// pending, working, or partiallyFilled.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderWorking         OrderStatus = "working"
	OrderPartiallyFilled OrderStatus = "partiallyFilled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
)

// CanTransitionTo reports whether moving from s to next is a legal,
// monotonic status transition per the Order lifecycle invariant.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		switch next {
		case OrderWorking, OrderPartiallyFilled, OrderFilled, OrderCancelled, OrderRejected:
			return true
		}
	case OrderWorking:
		switch next {
		case OrderPartiallyFilled, OrderFilled, OrderCancelled:
			return true
		}
	case OrderPartiallyFilled:
		switch next {
		case OrderPartiallyFilled, OrderFilled, OrderCancelled:
			return true
		}
	}
	return false
}

// Order is a single order instance owned by the account's engine (C2/C3).
type Order struct {
	ID            string
	AccountID     string
	BrokerRef     string
	Instrument    Instrument
	Side          Side
	Quantity      float64
	OrderType     OrderType
	Price         *float64
	StopPrice     *float64
	TIF           TimeInForce
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FilledQty     float64
	AvgFillPrice  decimal.Decimal
	RejectReason  string
	ClientTag     string // idempotency key derived from Alert.ID
}
