// Package paper implements the internal paper-trading simulator: C3 in
// the component table. It exposes the same broker.Adapter surface as a
// live venue (C2) so the routing/execution layers never special-case it.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/broker"
	"tradecore/internal/domain"
)

// Engine owns every simulated account and instrument quote, and runs
// the tick loop that advances quotes and matches resting orders,
// mirroring the teacher's app.Run ticker-driven select loop pattern:
// one ticker steps every armed instrument.
type Engine struct {
	cfg Config

	mu       sync.RWMutex
	accounts map[string]*simAccount
	quotes   map[string]*quoteState

	rngMu sync.Mutex
	rng   *rand.Rand

	subs   map[string][]chan broker.Update
	subsMu sync.Mutex
}

// New builds an Engine. seed fixes the quote random walk for
// deterministic tests; pass time.Now().UnixNano() in production.
func New(cfg Config, seed int64) *Engine {
	if cfg.TickInterval <= 0 {
		cfg = Default()
	}
	return &Engine{
		cfg:      cfg,
		accounts: make(map[string]*simAccount),
		quotes:   make(map[string]*quoteState),
		rng:      rand.New(rand.NewSource(seed)),
		subs:     make(map[string][]chan broker.Update),
	}
}

// Account returns (creating if necessary) the simulated account for id.
func (e *Engine) Account(id string) *simAccount {
	e.mu.Lock()
	defer e.mu.Unlock()
	acct, ok := e.accounts[id]
	if !ok {
		acct = newSimAccount(id, e.cfg, e.publish)
		e.accounts[id] = acct
	}
	return acct
}

// Arm seeds a starting mid for instrument so market/limit orders and the
// background tick loop have a reference price. Calling Arm again is a
// no-op if the instrument is already armed.
func (e *Engine) Arm(instrument domain.Instrument, startMid float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.quotes[instrument.Symbol]; ok {
		return
	}
	// Each instrument gets its own rand.Rand (seeded from the engine's
	// shared generator) rather than sharing one: *rand.Rand is not safe
	// for concurrent use, and step() runs on the tick-loop goroutine
	// while order placement runs on request goroutines.
	instrumentSeed := e.randInt63()
	e.quotes[instrument.Symbol] = newQuoteState(instrument, startMid, e.cfg.SpreadBps, e.cfg.WalkBps, rand.New(rand.NewSource(instrumentSeed)))
}

func (e *Engine) quoteFor(symbol string) (*quoteState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	q, ok := e.quotes[symbol]
	return q, ok
}

// Run drives the background tick loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	e.mu.RLock()
	quotes := make([]*quoteState, 0, len(e.quotes))
	for _, q := range e.quotes {
		quotes = append(quotes, q)
	}
	accounts := make([]*simAccount, 0, len(e.accounts))
	for _, a := range e.accounts {
		accounts = append(accounts, a)
	}
	e.mu.RUnlock()

	for _, q := range quotes {
		q.step()
	}
	now := time.Now().UTC()
	for _, acct := range accounts {
		e.matchAccount(acct, now)
	}
}

// publish fans an event out to every StreamUpdates subscriber of its
// account; a full subscriber channel drops the update.
func (e *Engine) publish(ev AccountEvent) {
	e.subsMu.Lock()
	chans := append([]chan broker.Update(nil), e.subs[ev.AccountID]...)
	e.subsMu.Unlock()

	update := broker.Update{Order: ev.Order, Fill: ev.Fill, Position: ev.Position}
	if ev.Order == nil && ev.Fill == nil && ev.Position == nil && !ev.Reset {
		return
	}
	for _, ch := range chans {
		select {
		case ch <- update:
		default:
		}
	}
}

// PlaceOrder implements broker.Adapter. See matching rules on
// fillMarket, submitLimit and submitStop, and spec §4.3.
func (e *Engine) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (broker.OrderAck, error) {
	q, armed := e.quoteFor(spec.Instrument.Symbol)
	if !armed {
		return broker.OrderAck{}, &broker.AdapterError{Reason: broker.ReasonSymbol, Message: "instrument not armed"}
	}
	if e.cfg.MarketHoursOnly && !spec.Instrument.Open(time.Now().UTC()) {
		return broker.OrderAck{}, &broker.AdapterError{Reason: broker.ReasonClosed}
	}

	acct := e.Account(spec.AccountID)

	order := &domain.Order{
		ID:         fmt.Sprintf("paper-%s-%d", spec.AccountID, time.Now().UnixNano()),
		AccountID:  spec.AccountID,
		Instrument: spec.Instrument,
		Side:       spec.Side,
		Quantity:   spec.Quantity,
		OrderType:  spec.OrderType,
		Price:      spec.Price,
		StopPrice:  spec.StopPrice,
		TIF:        spec.TIF,
		Status:     domain.OrderPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
		ClientTag:  spec.ClientOrderTag,
	}

	acct.mu.Lock()
	acct.orders[order.ID] = order
	acct.mu.Unlock()

	var err error
	switch spec.OrderType {
	case domain.OrderTypeMarket:
		err = e.fillMarket(acct, order, q)
	case domain.OrderTypeLimit:
		err = e.submitLimit(acct, order, q)
	case domain.OrderTypeStop, domain.OrderTypeStopLimit:
		err = e.submitStop(acct, order, q)
	default:
		err = &broker.AdapterError{Reason: broker.ReasonClientRejected, Message: "unknown order type"}
	}
	if err != nil {
		acct.mu.Lock()
		order.Status = domain.OrderRejected
		if ae, ok := err.(*broker.AdapterError); ok {
			order.RejectReason = string(ae.Reason)
		}
		acct.mu.Unlock()
		acct.emit(AccountEvent{Order: order})
		return broker.OrderAck{}, err
	}
	acct.emit(AccountEvent{Order: order})
	return broker.OrderAck{BrokerRef: order.ID, AcceptedAt: order.CreatedAt}, nil
}

// fillMarket executes a market order immediately against the current
// quote, splitting into two fills when the partial-fill probability
// triggers. The fill price is slippage applied to the simulated mid,
// not the bid/ask: bid/ask exist only to decide whether a resting limit
// order is marketable, per the reference price spec.md §4.3 defines.
func (e *Engine) fillMarket(acct *simAccount, order *domain.Order, q *quoteState) error {
	_, _, mid := q.snapshot()
	price := applySlippage(mid, order.Side, e.cfg.SlippageBps)

	acct.mu.Lock()
	defer acct.mu.Unlock()

	if err := e.checkBuyingPowerLocked(acct, order, price); err != nil {
		return err
	}

	if e.cfg.PartialFillProbability > 0 && e.randFloat64() < e.cfg.PartialFillProbability && order.Quantity > 1 {
		half := order.Quantity / 2
		f1 := acct.applyFillLocked(order, order.Side, half, decimal.NewFromFloat(price))
		acct.emit(AccountEvent{Fill: &f1, Position: acct.positions[order.Instrument.Symbol]})
		f2 := acct.applyFillLocked(order, order.Side, order.Quantity-half, decimal.NewFromFloat(price))
		acct.emit(AccountEvent{Fill: &f2, Position: acct.positions[order.Instrument.Symbol]})
		return nil
	}
	f := acct.applyFillLocked(order, order.Side, order.Quantity, decimal.NewFromFloat(price))
	acct.emit(AccountEvent{Fill: &f, Position: acct.positions[order.Instrument.Symbol]})
	return nil
}

// checkBuyingPowerLocked enforces rejectOnInsufficientBuyingPower; must
// be called with acct.mu held.
func (e *Engine) checkBuyingPowerLocked(acct *simAccount, order *domain.Order, price float64) error {
	if !e.cfg.RejectOnInsufficientBuyingPower {
		return nil
	}
	notional := decimal.NewFromFloat(price * order.Quantity * order.Instrument.Multiplier)
	if order.Side == domain.SideBuy && notional.GreaterThan(acct.buyingPowerLocked()) {
		return &broker.AdapterError{Reason: broker.ReasonNoBuyingPower}
	}
	return nil
}

// submitLimit handles a newly placed limit order: fills immediately if
// marketable, otherwise applies TIF semantics (ioc/fok resolve now; day
// and gtc rest on the FIFO queue for the tick loop to match later).
func (e *Engine) submitLimit(acct *simAccount, order *domain.Order, q *quoteState) error {
	if order.Price == nil {
		return &broker.AdapterError{Reason: broker.ReasonClientRejected, Message: "limit order requires price"}
	}
	bid, ask, _ := q.snapshot()
	marketable, execPrice := limitMarketable(order.Side, *order.Price, bid, ask)

	if marketable {
		price := applySlippage(execPrice, order.Side, e.cfg.SlippageBps)
		acct.mu.Lock()
		defer acct.mu.Unlock()
		if err := e.checkBuyingPowerLocked(acct, order, price); err != nil {
			return err
		}
		f := acct.applyFillLocked(order, order.Side, order.Quantity, decimal.NewFromFloat(price))
		acct.emit(AccountEvent{Fill: &f, Position: acct.positions[order.Instrument.Symbol]})
		return nil
	}

	switch order.TIF {
	case domain.TIFFOK:
		return &broker.AdapterError{Reason: broker.ReasonClientRejected, Message: "fill-or-kill could not fill"}
	case domain.TIFIOC:
		acct.mu.Lock()
		order.Status = domain.OrderCancelled
		acct.mu.Unlock()
		return nil
	default: // day, gtc: rest on the book
		acct.mu.Lock()
		order.Status = domain.OrderWorking
		acct.sequence++
		key := queueKey{symbol: order.Instrument.Symbol, side: order.Side}
		acct.resting[key] = append(acct.resting[key], &restingOrder{order: order, sequence: acct.sequence})
		acct.mu.Unlock()
		return nil
	}
}

// submitStop arms a stop or stop-limit order, or converts it immediately
// if the current quote has already crossed stopPrice.
func (e *Engine) submitStop(acct *simAccount, order *domain.Order, q *quoteState) error {
	if order.StopPrice == nil {
		return &broker.AdapterError{Reason: broker.ReasonClientRejected, Message: "stop order requires stopPrice"}
	}
	bid, ask, _ := q.snapshot()
	if stopTriggered(order.Side, *order.StopPrice, bid, ask) {
		return e.convertTriggeredStop(acct, order, q)
	}
	acct.mu.Lock()
	order.Status = domain.OrderWorking
	acct.stops = append(acct.stops, &restingOrder{order: order})
	acct.mu.Unlock()
	return nil
}

func (e *Engine) convertTriggeredStop(acct *simAccount, order *domain.Order, q *quoteState) error {
	if order.OrderType == domain.OrderTypeStop {
		order.OrderType = domain.OrderTypeMarket
		return e.fillMarket(acct, order, q)
	}
	order.OrderType = domain.OrderTypeLimit
	return e.submitLimit(acct, order, q)
}

// limitMarketable reports whether a limit order crosses the current
// quote, and the price it would execute at.
func limitMarketable(side domain.Side, limit, bid, ask float64) (bool, float64) {
	switch side {
	case domain.SideBuy:
		if ask <= limit {
			return true, ask
		}
	case domain.SideSell:
		if bid >= limit {
			return true, bid
		}
	}
	return false, limit
}

func stopTriggered(side domain.Side, stop, bid, ask float64) bool {
	switch side {
	case domain.SideBuy:
		return ask >= stop
	case domain.SideSell:
		return bid <= stop
	}
	return false
}

func applySlippage(price float64, side domain.Side, slippageBps float64) float64 {
	if slippageBps <= 0 {
		return price
	}
	mult := slippageBps / 10000
	if side == domain.SideBuy {
		return price * (1 + mult)
	}
	return price * (1 - mult)
}

// matchAccount runs one tick's worth of stop-trigger checks, resting
// limit-order matching, and day-order session expiry for acct.
func (e *Engine) matchAccount(acct *simAccount, now time.Time) {
	acct.mu.Lock()
	stops := acct.stops
	acct.stops = nil
	acct.mu.Unlock()

	for _, s := range stops {
		q, ok := e.quoteFor(s.order.Instrument.Symbol)
		if !ok {
			continue
		}
		bid, ask, _ := q.snapshot()
		if stopTriggered(s.order.Side, *s.order.StopPrice, bid, ask) {
			_ = e.convertTriggeredStop(acct, s.order, q)
			acct.emit(AccountEvent{Order: s.order})
		} else {
			acct.mu.Lock()
			acct.stops = append(acct.stops, s)
			acct.mu.Unlock()
		}
	}

	acct.mu.Lock()
	keys := make([]queueKey, 0, len(acct.resting))
	for k := range acct.resting {
		keys = append(keys, k)
	}
	acct.mu.Unlock()

	for _, key := range keys {
		e.matchQueue(acct, key, now)
	}
}

// matchQueue walks one (instrument, side) FIFO queue in insertion order,
// filling every order the current quote touches and expiring day orders
// past session close.
func (e *Engine) matchQueue(acct *simAccount, key queueKey, now time.Time) {
	q, ok := e.quoteFor(key.symbol)
	if !ok {
		return
	}
	bid, ask, _ := q.snapshot()

	// Held for the whole read-match-write cycle so an order submitted
	// concurrently by submitLimit can never be clobbered by the final
	// write-back below (lock order is always quote-then-account, same
	// as fillMarket, so this cannot deadlock against it).
	acct.mu.Lock()
	defer acct.mu.Unlock()

	queue := acct.resting[key]
	remaining := queue[:0:0]
	var events []AccountEvent
	for _, r := range queue {
		o := r.order
		if o.Status != domain.OrderWorking {
			continue
		}
		if o.TIF == domain.TIFDay && !o.Instrument.Open(now) {
			o.Status = domain.OrderCancelled
			events = append(events, AccountEvent{Order: o})
			continue
		}
		marketable, execPrice := limitMarketable(o.Side, *o.Price, bid, ask)
		if !marketable {
			remaining = append(remaining, r)
			continue
		}
		f := acct.applyFillLocked(o, o.Side, o.Quantity, decimal.NewFromFloat(execPrice))
		events = append(events, AccountEvent{Fill: &f, Position: acct.positions[o.Instrument.Symbol]})
	}

	if len(remaining) == 0 {
		delete(acct.resting, key)
	} else {
		acct.resting[key] = remaining
	}

	for _, ev := range events {
		acct.emit(ev)
	}
}

// CancelOrder implements broker.Adapter.
func (e *Engine) CancelOrder(ctx context.Context, brokerRef string) error {
	e.mu.RLock()
	accounts := make([]*simAccount, 0, len(e.accounts))
	for _, a := range e.accounts {
		accounts = append(accounts, a)
	}
	e.mu.RUnlock()

	for _, acct := range accounts {
		acct.mu.Lock()
		order, ok := acct.orders[brokerRef]
		if !ok {
			acct.mu.Unlock()
			continue
		}
		if order.Status != domain.OrderPending && order.Status != domain.OrderWorking && order.Status != domain.OrderPartiallyFilled {
			acct.mu.Unlock()
			return &broker.AdapterError{Reason: broker.ReasonTerminal}
		}
		order.Status = domain.OrderCancelled
		order.UpdatedAt = time.Now().UTC()
		acct.mu.Unlock()
		acct.emit(AccountEvent{Order: order})
		return nil
	}
	return &broker.AdapterError{Reason: broker.ReasonNotFound}
}

// GetAccount implements broker.Adapter.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	return e.Account(accountID).snapshotAccount(), nil
}

// GetPositions implements broker.Adapter.
func (e *Engine) GetPositions(ctx context.Context, accountID string) ([]domain.Position, error) {
	return e.Account(accountID).snapshotPositions(), nil
}

// StreamUpdates implements broker.Adapter.
func (e *Engine) StreamUpdates(ctx context.Context, accountID string) (<-chan broker.Update, error) {
	ch := make(chan broker.Update, 256)
	e.subsMu.Lock()
	e.subs[accountID] = append(e.subs[accountID], ch)
	e.subsMu.Unlock()
	go func() {
		<-ctx.Done()
		e.subsMu.Lock()
		defer e.subsMu.Unlock()
		list := e.subs[accountID]
		for i, c := range list {
			if c == ch {
				e.subs[accountID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// randFloat64 serializes access to the engine's shared RNG: math/rand's
// *Rand is not safe for concurrent use, and the tick loop and order
// placement run on different goroutines.
func (e *Engine) randFloat64() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) randInt63() int64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Int63()
}

// Metrics returns the performance metrics for accountID.
func (e *Engine) Metrics(accountID string) Metrics {
	acct := e.Account(accountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.metricsLocked()
}

// ResetAccount cancels all working orders, discards positions and
// history, and restores initialBalance for accountID.
func (e *Engine) ResetAccount(accountID string) {
	e.Account(accountID).reset()
}
