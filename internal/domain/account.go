package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind distinguishes the venue an Account lives on.
type AccountKind string

const (
	AccountLive      AccountKind = "live"
	AccountSandbox   AccountKind = "sandbox"
	AccountSimulator AccountKind = "simulator"
	AccountFunded    AccountKind = "funded"
)

// Account is the bookkeeping record for one trading account. For
// simulator accounts this engine (C3) owns the record outright; for
// broker accounts it is a cached projection refreshed via the adapter.
type Account struct {
	ID                 string
	Kind               AccountKind
	Broker             string
	InitialBalance     decimal.Decimal
	CurrentBalance     decimal.Decimal
	BuyingPower        decimal.Decimal
	DailyPnL           decimal.Decimal
	TotalPnL           decimal.Decimal
	OpenPositionsCount int
	Currency           string
	UpdatedAt          time.Time
}
