package domain

import "time"

// Side is the direction of an Alert or Order.
type Side string

const (
	SideBuy   Side = "buy"
	SideSell  Side = "sell"
	SideClose Side = "close"
)

// OrderType is the execution style requested.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// TimeInForce controls how long a resting order remains eligible to fill.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

// Alert is the canonical inbound signal, normalized and server-stamped by
// the webhook receiver. Never mutated after creation.
type Alert struct {
	ID           string
	Source       string
	ReceivedAt   time.Time
	StrategyID   string
	AccountGroup string
	Symbol       string
	Side         Side
	Quantity     float64
	OrderType    OrderType
	Price        *float64
	StopPrice    *float64
	TimeInForce  TimeInForce
	ClientNonce  string
}

// AlertStatus is the terminal (or intermediate) disposition broadcast on
// /stream for a given Alert id.
type AlertStatus string

const (
	AlertReceived  AlertStatus = "received"
	AlertDuplicate AlertStatus = "duplicate"
	AlertValidated AlertStatus = "validating"
	AlertRouting   AlertStatus = "routing"
	AlertPlacing   AlertStatus = "placing"
	AlertWorking   AlertStatus = "working"
	AlertFilled    AlertStatus = "filled"
	AlertCancelled AlertStatus = "cancelled"
	AlertRejected  AlertStatus = "rejected"
	AlertFailed    AlertStatus = "failed"
	AlertIgnored   AlertStatus = "ignored"
)
