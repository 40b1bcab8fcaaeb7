package risk

import (
	"testing"
	"time"

	"tradecore/internal/domain"
)

func baseRules() domain.FundedAccountRules {
	return domain.FundedAccountRules{
		AccountID:        "ftmo-1",
		MaxDailyLoss:     1000,
		TrailingDrawdown: 2000,
		MaxContracts:     5,
		AllowOvernight:   true,
		RiskPct:          0.02,
	}
}

func baseOrder() ProposedOrder {
	return ProposedOrder{
		Symbol:                 "ES",
		Quantity:               1,
		Multiplier:             50,
		ReferencePrice:         5000,
		Now:                    time.Now().UTC(),
		ClosesBeforeSessionEnd: true,
	}
}

func TestValidatePasses(t *testing.T) {
	m := New(baseRules(), nil, nil)
	result := m.Validate(baseOrder())
	if !result.OK() {
		t.Fatalf("expected OK, got reasons %v", result.Reasons)
	}
}

func TestValidateContractLimit(t *testing.T) {
	rules := baseRules()
	rules.MaxContracts = 0
	m := New(rules, nil, nil)
	result := m.Validate(baseOrder())
	if result.OK() {
		t.Fatal("expected contract limit rejection")
	}
	if !containsReason(result.Reasons, RejectContractLimit) {
		t.Fatalf("expected CONTRACT_LIMIT, got %v", result.Reasons)
	}
}

func TestValidateRestrictedSymbol(t *testing.T) {
	rules := baseRules()
	rules.RestrictedSymbols = map[string]bool{"ES": true}
	m := New(rules, nil, nil)
	result := m.Validate(baseOrder())
	if !containsReason(result.Reasons, RejectSymbol) {
		t.Fatalf("expected SYMBOL, got %v", result.Reasons)
	}
}

func TestValidateOvernightDisallowed(t *testing.T) {
	rules := baseRules()
	rules.AllowOvernight = false
	m := New(rules, nil, nil)
	order := baseOrder()
	order.ClosesBeforeSessionEnd = false
	result := m.Validate(order)
	if !containsReason(result.Reasons, RejectOvernight) {
		t.Fatalf("expected OVERNIGHT, got %v", result.Reasons)
	}
}

func TestValidateCollectsMultipleReasons(t *testing.T) {
	rules := baseRules()
	rules.MaxContracts = 0
	rules.RestrictedSymbols = map[string]bool{"ES": true}
	m := New(rules, nil, nil)
	result := m.Validate(baseOrder())
	if len(result.Reasons) < 2 {
		t.Fatalf("expected multiple reasons, got %v", result.Reasons)
	}
	if !containsReason(result.Reasons, RejectContractLimit) || !containsReason(result.Reasons, RejectSymbol) {
		t.Fatalf("expected both CONTRACT_LIMIT and SYMBOL, got %v", result.Reasons)
	}
}

func TestOnFillRaisesDailyLossViolation(t *testing.T) {
	var got domain.Violation
	var flattened string
	rules := baseRules()
	rules.MaxDailyLoss = 100
	m := New(rules, func(v domain.Violation) { got = v }, func(acct string) { flattened = acct })

	m.OnFill(-150, 0)

	if got.Kind != domain.ViolationDailyLoss {
		t.Fatalf("expected dailyLoss violation, got %+v", got)
	}
	if flattened != "ftmo-1" {
		t.Fatalf("expected emergency flatten for ftmo-1, got %q", flattened)
	}
}

func TestOnFillTracksPeakAndDrawdown(t *testing.T) {
	rules := baseRules()
	m := New(rules, nil, nil)

	m.OnFill(500, 0)
	if m.Metrics().PeakEquity != 500 {
		t.Fatalf("expected peak 500, got %v", m.Metrics().PeakEquity)
	}

	m.OnFill(-200, 0)
	metrics := m.Metrics()
	if metrics.PeakEquity != 500 {
		t.Fatalf("expected peak to stay at 500, got %v", metrics.PeakEquity)
	}
	if metrics.CurrentDrawdown != 200 {
		t.Fatalf("expected drawdown 200, got %v", metrics.CurrentDrawdown)
	}
}

func TestRolloverResetsDailyPnLOnly(t *testing.T) {
	m := New(baseRules(), nil, nil)
	m.OnFill(-50, 1)
	m.Rollover(true)

	metrics := m.Metrics()
	if metrics.DailyPnL != 0 {
		t.Fatalf("expected dailyPnL reset to 0, got %v", metrics.DailyPnL)
	}
	if metrics.TradingDays != 1 {
		t.Fatalf("expected tradingDays incremented, got %v", metrics.TradingDays)
	}
	if metrics.TotalContracts != 1 {
		t.Fatalf("expected contracts untouched by rollover, got %v", metrics.TotalContracts)
	}
}

func TestRolloverCarriesEquityAcrossUnrecoveredLossDay(t *testing.T) {
	m := New(baseRules(), nil, nil)

	// Day 1: +1000, closes at a new peak.
	m.OnFill(1000, 0)
	m.Rollover(true)
	if metrics := m.Metrics(); metrics.PeakEquity != 1000 || metrics.CurrentDrawdown != 0 {
		t.Fatalf("after day 1 expected peak 1000 drawdown 0, got %+v", metrics)
	}

	// Day 2: -1500, a loss day that is not recovered before rollover.
	m.OnFill(-1500, 0)
	m.Rollover(true)
	if metrics := m.Metrics(); metrics.PeakEquity != 1000 || metrics.CurrentDrawdown != 1500 {
		t.Fatalf("after day 2 expected peak 1000 drawdown 1500, got %+v", metrics)
	}

	// Day 3: +100. True equity is -500+100 = -400, a $1400 drawdown from
	// the day-1 peak of 1000, not the stale peak+dailyPnL=1100 the old
	// formula produced.
	m.OnFill(100, 0)
	metrics := m.Metrics()
	if metrics.PeakEquity != 1000 {
		t.Fatalf("expected peak to stay at 1000 across the unrecovered loss day, got %v", metrics.PeakEquity)
	}
	if metrics.CurrentDrawdown != 1400 {
		t.Fatalf("expected drawdown 1400, got %v", metrics.CurrentDrawdown)
	}
}

func containsReason(reasons []RejectCode, target RejectCode) bool {
	for _, r := range reasons {
		if r == target {
			return true
		}
	}
	return false
}
