package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"tradecore/internal/broker"
	"tradecore/internal/domain"
	"tradecore/internal/registry"
	"tradecore/internal/risk"
	"tradecore/internal/routing"
	"tradecore/internal/strategy"
)

type fakeAdapter struct {
	mu       sync.Mutex
	placed   []broker.OrderSpec
	failWith error
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (broker.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return broker.OrderAck{}, f.failWith
	}
	f.placed = append(f.placed, spec)
	return broker.OrderAck{BrokerRef: "ref-1", AcceptedAt: time.Now()}, nil
}

func (f *fakeAdapter) CancelOrder(ctx context.Context, brokerRef string) error { return nil }
func (f *fakeAdapter) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	return domain.Account{}, nil
}
func (f *fakeAdapter) GetPositions(ctx context.Context, accountID string) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakeAdapter) StreamUpdates(ctx context.Context, accountID string) (<-chan broker.Update, error) {
	ch := make(chan broker.Update)
	close(ch)
	return ch, nil
}

type fakeResolver struct {
	adapter *fakeAdapter
	riskMgr *risk.Manager
}

func (r *fakeResolver) Adapter(dest routing.Destination) (broker.Adapter, bool) { return r.adapter, true }
func (r *fakeResolver) RiskManager(accountID string) (*risk.Manager, bool) {
	if r.riskMgr == nil {
		return nil, false
	}
	return r.riskMgr, true
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	statuses []domain.AlertStatus
}

func (b *fakeBroadcaster) PublishAlertStatus(alert domain.Alert, status domain.AlertStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, status)
}
func (b *fakeBroadcaster) PublishViolation(v domain.Violation) {}

func (b *fakeBroadcaster) last() domain.AlertStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.statuses) == 0 {
		return ""
	}
	return b.statuses[len(b.statuses)-1]
}

type fakeLedger struct {
	mu      sync.Mutex
	records int
}

func (l *fakeLedger) Record(alertID, source string, receivedAt time.Time, destination, terminalStatus string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records++
}

func esRegistry() *registry.Registry {
	return registry.New([]domain.Instrument{
		{Symbol: "ES", AssetClass: domain.AssetFuture, TickSize: 0.25, Multiplier: 50},
	}, nil, nil)
}

func testAlert() domain.Alert {
	return domain.Alert{
		ID: "alert-1", Source: "tradingview", ReceivedAt: time.Now().UTC(),
		AccountGroup: "paper_sim", Symbol: "ES", Side: domain.SideBuy,
		Quantity: 1, OrderType: domain.OrderTypeMarket, ClientNonce: "n1",
	}
}

func TestProcessHappyPathPlacesOrder(t *testing.T) {
	adapter := &fakeAdapter{}
	resolver := &fakeResolver{adapter: adapter}
	broadcaster := &fakeBroadcaster{}
	ledger := &fakeLedger{}
	tracker := strategy.NewTracker(nil)

	coord := New(esRegistry(), tracker, resolver, broadcaster, ledger, nil, RetryConfig{MaxAttempts: 1})
	coord.Process(context.Background(), testAlert())

	if len(adapter.placed) != 1 {
		t.Fatalf("expected 1 order placed, got %d", len(adapter.placed))
	}
	if broadcaster.last() != domain.AlertWorking {
		t.Fatalf("expected terminal working, got %v", broadcaster.last())
	}
	if ledger.records != 1 {
		t.Fatalf("expected 1 ledger record, got %d", ledger.records)
	}
}

func TestProcessSuspendedStrategyRejected(t *testing.T) {
	adapter := &fakeAdapter{}
	resolver := &fakeResolver{adapter: adapter}
	broadcaster := &fakeBroadcaster{}
	tracker := strategy.NewTracker(nil)
	tracker.Register("s1", "test", 20, 0.5)
	tracker.Override("s1", domain.StrategySuspended, "manual")

	alert := testAlert()
	alert.StrategyID = "s1"

	coord := New(esRegistry(), tracker, resolver, broadcaster, &fakeLedger{}, nil, RetryConfig{MaxAttempts: 1})
	coord.Process(context.Background(), alert)

	if len(adapter.placed) != 0 {
		t.Fatal("expected no order placed for suspended strategy")
	}
	if broadcaster.last() != domain.AlertRejected {
		t.Fatalf("expected rejected, got %v", broadcaster.last())
	}
}

func TestProcessPlacementFailureIsTerminalFailed(t *testing.T) {
	adapter := &fakeAdapter{failWith: &broker.AdapterError{Reason: broker.ReasonClientRejected}}
	resolver := &fakeResolver{adapter: adapter}
	broadcaster := &fakeBroadcaster{}
	tracker := strategy.NewTracker(nil)

	coord := New(esRegistry(), tracker, resolver, broadcaster, &fakeLedger{}, nil, RetryConfig{MaxAttempts: 2, BaseWait: time.Millisecond, MaxWait: 10 * time.Millisecond})
	coord.Process(context.Background(), testAlert())

	if len(adapter.placed) != 0 {
		t.Fatal("expected no successful placement")
	}
	if broadcaster.last() != domain.AlertFailed {
		t.Fatalf("expected failed, got %v", broadcaster.last())
	}
}

func TestProcessCloseWithNoPositionIsIgnored(t *testing.T) {
	adapter := &fakeAdapter{}
	resolver := &fakeResolver{adapter: adapter}
	broadcaster := &fakeBroadcaster{}
	tracker := strategy.NewTracker(nil)
	lookup := func(accountID, symbol string) (float64, error) { return 0, nil }

	alert := testAlert()
	alert.Side = domain.SideClose

	coord := New(esRegistry(), tracker, resolver, broadcaster, &fakeLedger{}, lookup, RetryConfig{MaxAttempts: 1})
	coord.Process(context.Background(), alert)

	if broadcaster.last() != domain.AlertIgnored {
		t.Fatalf("expected ignored, got %v", broadcaster.last())
	}
}

func TestProcessRiskRejectionBlocksPlacement(t *testing.T) {
	adapter := &fakeAdapter{}
	rules := domain.FundedAccountRules{AccountID: "paper_sim", MaxContracts: 0}
	mgr := risk.New(rules, nil, nil)
	resolver := &fakeResolver{adapter: adapter, riskMgr: mgr}
	broadcaster := &fakeBroadcaster{}
	tracker := strategy.NewTracker(nil)

	coord := New(esRegistry(), tracker, resolver, broadcaster, &fakeLedger{}, nil, RetryConfig{MaxAttempts: 1})
	coord.Process(context.Background(), testAlert())

	if len(adapter.placed) != 0 {
		t.Fatal("expected risk rejection to block placement")
	}
	if broadcaster.last() != domain.AlertRejected {
		t.Fatalf("expected rejected, got %v", broadcaster.last())
	}
}
