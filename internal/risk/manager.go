// Package risk implements the funded-account rule engine: one actor per
// funded account holding its rules and live metrics, offering pre-trade
// validation and post-trade monitoring. Grounded on the teacher's
// single-mutex-per-subsystem risk.Manager, generalized from a single
// process-wide account to one Manager per account and from a
// short-circuiting Allow() to a multi-reason ValidationResult.
package risk

import (
	"sync"
	"time"

	"tradecore/internal/domain"
)

// RejectCode is a stable pre-trade rejection reason, one per failing
// rule. ValidationResult may carry more than one: every failing reason
// is reported, not just the first.
type RejectCode string

const (
	RejectContractLimit RejectCode = "CONTRACT_LIMIT"
	RejectSymbol        RejectCode = "SYMBOL"
	RejectWindow        RejectCode = "WINDOW"
	RejectOvernight     RejectCode = "OVERNIGHT"
	RejectDailyLoss     RejectCode = "DAILY_LOSS"
	RejectDrawdown      RejectCode = "DRAWDOWN"
)

// ValidationResult is the pre-trade validation verdict: OK when Reasons
// is empty.
type ValidationResult struct {
	Reasons []RejectCode
}

// OK reports whether the proposed order passed every rule.
func (v ValidationResult) OK() bool { return len(v.Reasons) == 0 }

// ProposedOrder is the minimal shape pre-trade validation needs.
type ProposedOrder struct {
	Symbol         string
	Quantity       float64
	Multiplier     float64
	ReferencePrice float64
	Now            time.Time
	// ClosesBeforeSessionEnd is false when placing this order would
	// leave the position open past the instrument's session end, i.e.
	// an overnight hold.
	ClosesBeforeSessionEnd bool
}

// Manager is one funded account's rule-engine actor: it owns
// FundedAccountRules and the live FundedMetrics for the current period,
// serialized behind a single mutex.
type Manager struct {
	mu      sync.Mutex
	rules   domain.FundedAccountRules
	metrics domain.FundedMetrics

	// equity is the cumulative realized-PnL baseline carried across
	// rollovers: yesterday's DailyPnL is folded in before it resets to
	// zero, so it (not PeakEquity) is the source of truth for "where
	// does the account stand right now". PeakEquity/CurrentDrawdown are
	// both derived from equity + the in-progress day's DailyPnL.
	equity float64

	onViolation func(domain.Violation)
	onFlatten   func(accountID string)
}

// New builds a Manager for one funded account period.
func New(rules domain.FundedAccountRules, onViolation func(domain.Violation), onFlatten func(accountID string)) *Manager {
	return &Manager{
		rules: rules,
		metrics: domain.FundedMetrics{
			AccountID: rules.AccountID,
		},
		onViolation: onViolation,
		onFlatten:   onFlatten,
	}
}

// Validate runs the six pre-trade checks in spec order, collecting
// every failing reason rather than short-circuiting on the first.
func (m *Manager) Validate(order ProposedOrder) ValidationResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reasons []RejectCode

	// 1. contract limit
	if m.metrics.TotalContracts+order.Quantity > m.rules.MaxContracts {
		reasons = append(reasons, RejectContractLimit)
	}
	// 2. restricted symbol
	if m.rules.RestrictedSymbols[order.Symbol] {
		reasons = append(reasons, RejectSymbol)
	}
	// 3. trading window
	if !m.rules.TradingWindow.Admits(order.Now) {
		reasons = append(reasons, RejectWindow)
	}
	// 4. overnight policy
	if !m.rules.AllowOvernight && !order.ClosesBeforeSessionEnd {
		reasons = append(reasons, RejectOvernight)
	}
	// 5. worst-case-loss probe against the daily loss cap
	worstCase := order.Quantity * order.Multiplier * order.ReferencePrice * m.rules.RiskPct
	if m.metrics.DailyPnL-worstCase < -m.rules.MaxDailyLoss {
		reasons = append(reasons, RejectDailyLoss)
	}
	// 6. trailing drawdown probe
	if m.metrics.CurrentDrawdown+worstCase > m.rules.TrailingDrawdown {
		reasons = append(reasons, RejectDrawdown)
	}

	return ValidationResult{Reasons: reasons}
}

// OnFill recomputes metrics from a closing fill's realized PnL delta,
// updates peak equity and drawdown, and raises a Violation plus an
// emergency-flatten request if a hard limit is breached.
func (m *Manager) OnFill(realizedPnLDelta float64, netContractsDelta float64) {
	m.mu.Lock()
	m.metrics.DailyPnL += realizedPnLDelta
	m.metrics.TotalContracts += netContractsDelta
	if m.metrics.TotalContracts < 0 {
		m.metrics.TotalContracts = 0
	}

	currentEquity := m.equity + m.metrics.DailyPnL
	if currentEquity > m.metrics.PeakEquity {
		m.metrics.PeakEquity = currentEquity
	}
	dd := m.metrics.PeakEquity - currentEquity
	if dd < 0 {
		dd = 0
	}
	m.metrics.CurrentDrawdown = dd

	var violation *domain.Violation
	switch {
	case m.metrics.DailyPnL <= -m.rules.MaxDailyLoss:
		violation = &domain.Violation{
			AccountID:   m.rules.AccountID,
			Kind:        domain.ViolationDailyLoss,
			TriggeredAt: time.Now().UTC(),
			RuleLimit:   m.rules.MaxDailyLoss,
			ActualValue: m.metrics.DailyPnL,
			Message:     "daily loss limit breached",
		}
	case m.metrics.CurrentDrawdown >= m.rules.TrailingDrawdown:
		violation = &domain.Violation{
			AccountID:   m.rules.AccountID,
			Kind:        domain.ViolationDrawdown,
			TriggeredAt: time.Now().UTC(),
			RuleLimit:   m.rules.TrailingDrawdown,
			ActualValue: m.metrics.CurrentDrawdown,
			Message:     "trailing drawdown breached",
		}
	}
	m.mu.Unlock()

	if violation == nil {
		return
	}
	violation.ID = string(violation.Kind) + "-" + violation.AccountID + "-" + violation.TriggeredAt.Format(time.RFC3339Nano)
	if m.onViolation != nil {
		m.onViolation(*violation)
	}
	if m.onFlatten != nil {
		m.onFlatten(m.rules.AccountID)
	}
}

// Rollover performs the daily reset: today's DailyPnL is folded into
// the cumulative equity baseline before it resets to zero, so tomorrow's
// OnFill computations stay anchored to the account's true running
// balance instead of silently re-basing off PeakEquity. tradingDays
// increments if any trade occurred (the Manager has no trade counter of
// its own; callers pass tradeOccurred explicitly).
func (m *Manager) Rollover(tradeOccurred bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity += m.metrics.DailyPnL
	m.metrics.DailyPnL = 0
	if tradeOccurred {
		m.metrics.TradingDays++
	}
}

// Metrics returns a snapshot of the account's live metrics.
func (m *Manager) Metrics() domain.FundedMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Rules returns the account's immutable rule set for this period.
func (m *Manager) Rules() domain.FundedAccountRules {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules
}

// SetPerformanceStats lets the strategy tracker push externally computed
// win-rate/profit-factor figures into FundedMetrics for display; the
// rule engine itself does not derive them.
func (m *Manager) SetPerformanceStats(winRate, profitFactor float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.WinRate = winRate
	m.metrics.ProfitFactor = profitFactor
}
