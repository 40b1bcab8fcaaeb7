package domain

import "time"

// TradingWindow restricts new-order admission to an hour-of-day range in
// the account's session-local time, expressed in UTC hours for simplicity.
type TradingWindow struct {
	OpenHourUTC  int
	CloseHourUTC int
}

// Admits reports whether ts falls inside the window. A zero-value window
// admits everything.
func (w TradingWindow) Admits(ts time.Time) bool {
	if w.OpenHourUTC == 0 && w.CloseHourUTC == 0 {
		return true
	}
	h := ts.UTC().Hour()
	if w.OpenHourUTC <= w.CloseHourUTC {
		return h >= w.OpenHourUTC && h < w.CloseHourUTC
	}
	return h >= w.OpenHourUTC || h < w.CloseHourUTC
}

// FundedAccountRules holds the immutable limits for one funded-account
// evaluation period. A new period is a new record, never a mutation.
type FundedAccountRules struct {
	AccountID          string
	MaxDailyLoss       float64
	TrailingDrawdown   float64
	MaxContracts       float64
	ProfitTarget       *float64
	MinTradingDays     *int
	RestrictedSymbols  map[string]bool
	AllowOvernight     bool
	AllowNewsTrading   bool
	TradingWindow      TradingWindow
	RiskPct            float64 // configured worst-case-loss risk fraction
}

// FundedMetrics is the live, mutable metrics snapshot tracked alongside
// FundedAccountRules for the same account and period.
type FundedMetrics struct {
	AccountID        string
	DailyPnL         float64
	CurrentDrawdown  float64
	PeakEquity       float64
	TotalContracts   float64 // open, absolute
	TradingDays      int
	WinRate          float64
	ProfitFactor     float64
	OpenPositions    int
}

// ViolationKind classifies a funded-account rule breach.
type ViolationKind string

const (
	ViolationDailyLoss     ViolationKind = "dailyLoss"
	ViolationDrawdown      ViolationKind = "drawdown"
	ViolationContractLimit ViolationKind = "contractLimit"
	ViolationSymbol        ViolationKind = "symbol"
	ViolationWindow        ViolationKind = "window"
	ViolationOvernight     ViolationKind = "overnight"
)

// Violation records a single rule breach raised by post-trade monitoring.
type Violation struct {
	ID          string
	AccountID   string
	Kind        ViolationKind
	TriggeredAt time.Time
	RuleLimit   float64
	ActualValue float64
	Resolved    bool
	Message     string
}
