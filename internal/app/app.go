// Package app wires every component into the running server: the
// signal-to-execution pipeline, the funded-account rule engines, the
// strategy performance tracker, the broadcast hub, and the HTTP/WS
// front door, plus the supervising task loop and graceful shutdown.
//
// Grounded on the teacher's internal/app/app.go App struct and its
// Run select-loop-over-channels-and-tickers shape, generalized from one
// God-object owning quoting/arb logic directly to a thin composition
// root: each spec component is its own actor behind a small interface,
// and App's job is wiring plus the background loops nothing else owns.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/api"
	"tradecore/internal/broker"
	"tradecore/internal/broker/sandbox"
	"tradecore/internal/config"
	"tradecore/internal/domain"
	"tradecore/internal/execution"
	"tradecore/internal/hub"
	"tradecore/internal/ledger"
	"tradecore/internal/notify"
	"tradecore/internal/paper"
	"tradecore/internal/registry"
	"tradecore/internal/risk"
	"tradecore/internal/routing"
	"tradecore/internal/strategy"
	"tradecore/internal/webhook"
)

// alertWorkers is the number of goroutines draining the inbound alert
// queue concurrently. Process() can block briefly on placement retry
// backoff, so a single consumer would stall every other account behind
// a slow sandbox venue.
const alertWorkers = 8

// defaultArmMid is the starting reference price the paper engine is
// armed with for every instrument at startup. The simulator's own
// random walk takes over from there; nothing in config supplies a real
// market price, so this is an arbitrary but stable anchor.
const defaultArmMid = 100.0

// ErrBindFailed wraps a failure to bind the HTTP/WS listening address,
// so the entrypoint can map it to its own exit code without string
// matching.
var ErrBindFailed = errors.New("app: bind failed")

// App is the single top-level wiring point: it owns every component's
// constructor output and the goroutines that drive them, but contains
// no trading logic of its own.
type App struct {
	cfg config.Config

	reg             *registry.Registry
	hub             *hub.Hub
	paperEngine     *paper.Engine
	sandboxAdapters map[string]broker.Adapter
	riskManagers    map[string]*risk.Manager
	strategyTracker *strategy.Tracker
	coordinator     *execution.Coordinator
	webhookHandler  *webhook.Handler
	ledgerStore     *ledger.Ledger
	notifier        *notify.Notifier
	apiServer       *api.Server

	alertCh  chan domain.Alert
	stop     chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	running   bool
	startedAt time.Time

	// linkMu guards the four maps below. orderAlert and alertStrategy
	// thread a fill back to the strategy it belongs to, since domain.Fill
	// carries an order id but no strategy or alert id: the path is
	// alert.ID -> order.ClientTag -> order.ID -> fill.OrderID.
	// lastRealized and tradedToday hold per-account fill bookkeeping.
	linkMu        sync.Mutex
	orderAlert    map[string]string                     // order id -> alert id
	alertStrategy map[string]string                     // alert id -> strategy id
	lastRealized  map[string]map[string]decimal.Decimal // account id -> symbol -> cumulative realized PnL
	tradedToday   map[string]bool
}

// New constructs every component from cfg and wires their callbacks
// together. It performs no I/O beyond opening the ledger database.
func New(cfg config.Config) (*App, error) {
	a := &App{
		cfg:             cfg,
		sandboxAdapters: make(map[string]broker.Adapter, len(cfg.Sandbox)),
		riskManagers:    make(map[string]*risk.Manager, len(cfg.Accounts)),
		alertCh:         make(chan domain.Alert, 1024),
		stop:            make(chan struct{}),
		orderAlert:      make(map[string]string),
		alertStrategy:   make(map[string]string),
		lastRealized:    make(map[string]map[string]decimal.Decimal),
		tradedToday:     make(map[string]bool),
	}

	instruments := make([]domain.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		instruments = append(instruments, domain.Instrument{
			Symbol:     ic.Symbol,
			AssetClass: domain.AssetClass(ic.AssetClass),
			TickSize:   ic.TickSize,
			Multiplier: ic.Multiplier,
			Session:    domain.Session{OpenHourUTC: ic.OpenHourUTC, CloseHourUTC: ic.CloseHourUTC},
		})
	}
	a.reg = registry.New(instruments, nil, nil)

	ledgerStore, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	a.ledgerStore = ledgerStore

	botToken, chatID := cfg.Telegram.BotToken, cfg.Telegram.ChatID
	if !cfg.Telegram.Enabled {
		botToken, chatID = "", ""
	}
	a.notifier = notify.NewNotifier(botToken, chatID)

	a.hub = hub.New(cfg.Hub.HeartbeatInterval, nil)

	a.paperEngine = paper.New(paper.Config(cfg.Paper), time.Now().UnixNano())
	for _, ins := range instruments {
		a.paperEngine.Arm(ins, defaultArmMid)
	}

	for name, sb := range cfg.Sandbox {
		a.sandboxAdapters[name] = sandbox.New(sandbox.Config{
			BaseURL:         sb.BaseURL,
			CredentialsRef:  sb.CredentialsRef,
			TimeoutMs:       sb.TimeoutMs,
			RateLimitPerMin: sb.RateLimitPerMin,
		})
	}

	for accountID, acc := range cfg.Accounts {
		rules := domain.FundedAccountRules{
			AccountID:         accountID,
			MaxDailyLoss:      acc.MaxDailyLoss,
			TrailingDrawdown:  acc.TrailingDrawdown,
			MaxContracts:      acc.MaxContracts,
			ProfitTarget:      acc.ProfitTarget,
			MinTradingDays:    acc.MinTradingDays,
			RestrictedSymbols: toSymbolSet(acc.RestrictedSymbols),
			AllowOvernight:    acc.AllowOvernight,
			AllowNewsTrading:  acc.AllowNewsTrading,
			TradingWindow:     domain.TradingWindow{OpenHourUTC: acc.OpenHourUTC, CloseHourUTC: acc.CloseHourUTC},
			RiskPct:           acc.RiskPct,
		}
		a.riskManagers[accountID] = risk.New(rules, a.onViolation, a.onFlatten)
	}

	a.strategyTracker = strategy.NewTracker(a.onStrategyTransition)

	a.coordinator = execution.New(a.reg, a.strategyTracker, a, a, a.ledgerStore, a.lookupPosition, execution.RetryConfig{})

	webhookCfg := webhook.Config{
		Sources:    make(map[string]webhook.SourceConfig, len(cfg.Webhook.Sources)),
		DedupTTL:   cfg.Webhook.DedupTTL,
		SweepEvery: cfg.Webhook.SweepEvery,
	}
	for name, src := range cfg.Webhook.Sources {
		webhookCfg.Sources[name] = webhook.SourceConfig{Secret: src.Secret, RateLimitPerMin: src.RateLimitPerMin}
	}
	a.webhookHandler = webhook.NewHandler(webhookCfg, a.onAlert)

	if cfg.API.Enabled {
		a.apiServer = api.NewServer(cfg.API.Addr, a, a.hub, a.webhookHandler, a.ledgerStore)
	}

	return a, nil
}

func toSymbolSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return set
}

// onAlert is the webhook receiver's sink: it must not block. A full
// queue drops the alert and logs it rather than stalling the HTTP
// handler; the source's own retry/backoff is the recovery path.
func (a *App) onAlert(alert domain.Alert) {
	a.linkMu.Lock()
	a.alertStrategy[alert.ID] = alert.StrategyID
	a.linkMu.Unlock()

	select {
	case a.alertCh <- alert:
	default:
		log.Printf("app: alert queue full, dropping alert %s (source=%s)", alert.ID, alert.Source)
	}
}

// Run starts every background loop and blocks until ctx is cancelled,
// then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.startedAt = time.Now()
	a.mu.Unlock()

	go a.hub.Run(a.stop)
	go a.paperEngine.Run(ctx)
	go a.runDailyRollover(ctx)

	var wg sync.WaitGroup
	for i := 0; i < alertWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.drainAlerts(ctx)
		}()
	}

	for accountID := range a.riskManagers {
		adapter, ok := a.adapterForAccount(accountID)
		if !ok {
			log.Printf("app: account %s has no resolvable destination adapter, fill tracking disabled", accountID)
			continue
		}
		go a.watchAccountFills(ctx, accountID, adapter)
	}

	if a.apiServer != nil {
		if err := a.apiServer.Start(ctx); err != nil {
			a.Shutdown(context.Background())
			wg.Wait()
			return fmt.Errorf("%w: %v", ErrBindFailed, err)
		}
	}

	<-ctx.Done()
	a.Shutdown(context.Background())
	wg.Wait()
	return nil
}

func (a *App) drainAlerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert, ok := <-a.alertCh:
			if !ok {
				return
			}
			a.coordinator.Process(ctx, alert)
		}
	}
}

// Shutdown stops every background loop and closes owned resources.
// Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.stopOnce.Do(func() {
		close(a.stop)
		close(a.alertCh)
		a.webhookHandler.Close()
		if a.apiServer != nil {
			if err := a.apiServer.Shutdown(ctx); err != nil {
				log.Printf("app: api server shutdown: %v", err)
			}
		}
		if err := a.ledgerStore.Close(); err != nil {
			log.Printf("app: ledger close: %v", err)
		}
	})
}

// IsRunning implements api.AppState.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// TradingMode implements api.AppState.
func (a *App) TradingMode() string { return a.cfg.TradingMode }

// StrategySnapshot implements api.AppState.
func (a *App) StrategySnapshot(strategyID string) (domain.StrategyRecord, bool) {
	return a.strategyTracker.Snapshot(strategyID)
}

// Risk implements api.AppState.
func (a *App) Risk() api.RiskSnapshotProvider { return a }

// Metrics implements api.RiskSnapshotProvider.
func (a *App) Metrics(accountID string) (domain.FundedMetrics, bool) {
	mgr, ok := a.riskManager(accountID)
	if !ok {
		return domain.FundedMetrics{}, false
	}
	return mgr.Metrics(), true
}

// Rules implements api.RiskSnapshotProvider.
func (a *App) Rules(accountID string) (domain.FundedAccountRules, bool) {
	mgr, ok := a.riskManager(accountID)
	if !ok {
		return domain.FundedAccountRules{}, false
	}
	return mgr.Rules(), true
}

func (a *App) riskManager(accountID string) (*risk.Manager, bool) {
	mgr, ok := a.riskManagers[accountID]
	return mgr, ok
}

// Adapter implements execution.AdapterResolver.
func (a *App) Adapter(dest routing.Destination) (broker.Adapter, bool) {
	switch dest.Kind {
	case routing.DestinationSimulator:
		return a.paperEngine, true
	case routing.DestinationSandbox:
		adp, ok := a.sandboxAdapters[dest.AdapterKey]
		return adp, ok
	default:
		// Live-venue adapters are outside this module's scope: no live
		// broker SDK is wired, only the simulator and sandbox venues a
		// funded account's destination can actually name.
		return nil, false
	}
}

// RiskManager implements execution.AdapterResolver.
func (a *App) RiskManager(accountID string) (*risk.Manager, bool) {
	return a.riskManager(accountID)
}

// PublishAlertStatus implements execution.Broadcaster.
func (a *App) PublishAlertStatus(alert domain.Alert, status domain.AlertStatus) {
	a.hub.Publish(domain.Topic{Kind: domain.TopicAlert, Selector: alert.ID}, map[string]any{
		"alertId":      alert.ID,
		"status":       status,
		"symbol":       alert.Symbol,
		"accountGroup": alert.AccountGroup,
	})
	if status == domain.AlertFailed && a.notifier.Enabled() {
		go a.notifier.NotifyAlertFailed(context.Background(), alert.ID, string(status))
	}
}

// PublishViolation implements execution.Broadcaster.
func (a *App) PublishViolation(v domain.Violation) {
	a.hub.Publish(domain.Topic{Kind: domain.TopicViolation, Selector: v.AccountID}, v)
}

// adapterForAccount resolves accountID's configured destination adapter,
// the same resolution routing.Decide performs for an inbound alert but
// keyed directly off config rather than an alert's account group.
func (a *App) adapterForAccount(accountID string) (broker.Adapter, bool) {
	acc, ok := a.cfg.Accounts[accountID]
	if !ok {
		return nil, false
	}
	if acc.Destination == "paper" {
		return a.paperEngine, true
	}
	adp, ok := a.sandboxAdapters[acc.Destination]
	return adp, ok
}

// lookupPosition implements routing.PositionLookup.
func (a *App) lookupPosition(accountID, symbol string) (float64, error) {
	adapter, ok := a.adapterForAccount(accountID)
	if !ok {
		return 0, fmt.Errorf("app: no adapter for account %s", accountID)
	}
	positions, err := adapter.GetPositions(context.Background(), accountID)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.Instrument.Symbol == symbol {
			return p.NetQty, nil
		}
	}
	return 0, nil
}

// onViolation is wired as every risk.Manager's onViolation callback.
func (a *App) onViolation(v domain.Violation) {
	a.PublishViolation(v)
	if a.notifier.Enabled() {
		go a.notifier.NotifyViolation(context.Background(), v)
	}
}

// onFlatten is wired as every risk.Manager's onFlatten callback: it
// issues synthetic closing orders for the breached account and alerts
// the operator once the flatten attempt has been made.
func (a *App) onFlatten(accountID string) {
	adapter, ok := a.adapterForAccount(accountID)
	if !ok {
		log.Printf("app: emergency flatten requested for %s but no adapter is resolvable", accountID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.coordinator.FlattenAccount(ctx, adapter, accountID)
		if a.notifier.Enabled() {
			_ = a.notifier.NotifyEmergencyFlatten(ctx, accountID)
		}
	}()
}

// onStrategyTransition is wired as the strategy tracker's onTransition
// callback.
func (a *App) onStrategyTransition(transition domain.ModeTransition, strategyID string) {
	a.hub.Publish(domain.Topic{Kind: domain.TopicStrategy, Selector: strategyID}, map[string]any{
		"strategyId": strategyID,
		"transition": transition,
	})
	if a.notifier.Enabled() {
		go a.notifier.NotifyStrategyModeChange(context.Background(), strategyID, transition.From, transition.To)
	}
}

// watchAccountFills subscribes to accountID's update stream and feeds
// closing fills into both the account's risk.Manager (realized PnL,
// net contracts) and, when the fill can be traced back to an alert's
// strategy, the strategy tracker's evaluation set.
func (a *App) watchAccountFills(ctx context.Context, accountID string, adapter broker.Adapter) {
	ch, err := adapter.StreamUpdates(ctx, accountID)
	if err != nil {
		log.Printf("app: stream updates for %s: %v", accountID, err)
		return
	}
	for upd := range ch {
		if upd.Order != nil && upd.Order.ClientTag != "" {
			a.linkMu.Lock()
			a.orderAlert[upd.Order.ID] = upd.Order.ClientTag
			a.linkMu.Unlock()
		}
		if upd.Position == nil {
			continue
		}

		symbol := upd.Position.Instrument.Symbol
		a.linkMu.Lock()
		bySymbol, ok := a.lastRealized[accountID]
		if !ok {
			bySymbol = make(map[string]decimal.Decimal)
			a.lastRealized[accountID] = bySymbol
		}
		prior := bySymbol[symbol]
		current := upd.Position.RealizedPnL
		bySymbol[symbol] = current
		a.linkMu.Unlock()

		delta, _ := current.Sub(prior).Float64()

		var netDelta float64
		if upd.Fill != nil {
			netDelta = upd.Fill.Quantity
			if upd.Fill.Side == domain.SideSell {
				netDelta = -netDelta
			}
			a.linkMu.Lock()
			a.tradedToday[accountID] = true
			a.linkMu.Unlock()
		}

		if mgr, ok := a.riskManager(accountID); ok {
			mgr.OnFill(delta, netDelta)
		}

		if delta == 0 || upd.Fill == nil {
			continue
		}
		a.recordStrategyOutcome(upd.Fill.OrderID, delta)
	}
}

// recordStrategyOutcome resolves orderID back to the strategy that
// originated it and records the closing trade's outcome, if the
// correlation is still known.
func (a *App) recordStrategyOutcome(orderID string, pnlDelta float64) {
	a.linkMu.Lock()
	alertID, ok := a.orderAlert[orderID]
	var strategyID string
	if ok {
		strategyID, ok = a.alertStrategy[alertID]
	}
	a.linkMu.Unlock()
	if !ok || strategyID == "" {
		return
	}
	a.strategyTracker.Record(strategyID, domain.TradeOutcome{
		Win:      pnlDelta > 0,
		PnL:      pnlDelta,
		ClosedAt: time.Now().UTC(),
	})
}

// runDailyRollover resets every account's daily PnL at each UTC
// midnight boundary, mirroring the teacher's ticker-driven background
// loop shape.
func (a *App) runDailyRollover(ctx context.Context) {
	timer := time.NewTimer(time.Until(nextUTCMidnight(time.Now())))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			a.rolloverAll()
			timer.Reset(24 * time.Hour)
		}
	}
}

func (a *App) rolloverAll() {
	for accountID, mgr := range a.riskManagers {
		a.linkMu.Lock()
		traded := a.tradedToday[accountID]
		a.tradedToday[accountID] = false
		a.linkMu.Unlock()

		before := mgr.Metrics()
		mgr.Rollover(traded)
		if a.notifier.Enabled() {
			go a.notifier.NotifyDailySummary(context.Background(), accountID, before.DailyPnL, 0)
		}
	}
}

func nextUTCMidnight(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
