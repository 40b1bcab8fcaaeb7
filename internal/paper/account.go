package paper

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// Metrics is the performance-metrics snapshot recomputed on each fill,
// per spec: winRate, profitFactor, maxDrawdown, avgWin, avgLoss over
// closing trades only.
type Metrics struct {
	WinRate      float64
	ProfitFactor float64
	MaxDrawdown  float64
	AvgWin       float64
	AvgLoss      float64
}

// closingTradeStat is recorded for every fill that closes or reduces a
// position, the input to Metrics.
type closingTradeStat struct {
	pnl float64
}

// queueKey identifies one FIFO priority queue of resting limit orders.
type queueKey struct {
	symbol string
	side   domain.Side
}

// restingOrder augments a domain.Order with the simulator-internal state
// needed for matching: FIFO sequence, stop arming, session expiry.
type restingOrder struct {
	order    *domain.Order
	sequence int64
	armed    bool // stop/stop-limit: becomes true once triggered
}

// simAccount is one simulated account's complete bookkeeping: balance,
// positions, orders, fills, resting-order queues, and derived metrics.
// All mutation happens under mu, mirroring the teacher's
// execution.Tracker single-mutex-per-subsystem style.
type simAccount struct {
	mu sync.Mutex

	id             string
	cfg            Config
	initialBalance decimal.Decimal
	balance        decimal.Decimal
	feesPaid       decimal.Decimal

	positions map[string]*domain.Position // keyed by instrument symbol
	orders    map[string]*domain.Order
	fills     []domain.Fill

	resting map[queueKey][]*restingOrder
	stops   []*restingOrder

	sequence int64

	closingTrades []closingTradeStat
	runningEquity float64
	peakEquity    float64
	maxDrawdown   float64

	onEvent func(AccountEvent)
}

// AccountEvent is emitted by a simAccount and delivered to the engine's
// StreamUpdates subscribers: order/fill/position updates and the
// terminal AccountReset event.
type AccountEvent struct {
	AccountID string
	Order     *domain.Order
	Fill      *domain.Fill
	Position  *domain.Position
	Reset     bool
}

func newSimAccount(id string, cfg Config, onEvent func(AccountEvent)) *simAccount {
	initial := decimal.NewFromFloat(cfg.InitialBalance)
	return &simAccount{
		id:             id,
		cfg:            cfg,
		initialBalance: initial,
		balance:        initial,
		positions:      make(map[string]*domain.Position),
		orders:         make(map[string]*domain.Order),
		resting:        make(map[queueKey][]*restingOrder),
		runningEquity:  cfg.InitialBalance,
		peakEquity:     cfg.InitialBalance,
		onEvent:        onEvent,
	}
}

func (a *simAccount) emit(ev AccountEvent) {
	if a.onEvent != nil {
		ev.AccountID = a.id
		a.onEvent(ev)
	}
}

// nextID returns a monotonically increasing, account-scoped id prefix.
func (a *simAccount) nextID(prefix string) string {
	a.sequence++
	return fmt.Sprintf("%s-%s-%06d", prefix, a.id, a.sequence)
}

// buyingPower recomputes `currentBalance * multiplier - sum(|netQty| * marketPrice * multiplier)`.
func (a *simAccount) buyingPowerLocked() decimal.Decimal {
	mult := a.cfg.BuyingPowerMultiplier
	if mult <= 0 {
		mult = 1
	}
	bp := a.balance.Mul(decimal.NewFromFloat(mult))
	for _, pos := range a.positions {
		if pos.NetQty == 0 {
			continue
		}
		exposure := decimal.NewFromFloat(absFloat(pos.NetQty) * pos.Instrument.Multiplier).Mul(pos.MarketPrice)
		bp = bp.Sub(exposure)
	}
	return bp
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// snapshotAccount builds a domain.Account projection under the lock.
func (a *simAccount) snapshotAccount() domain.Account {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.Account{
		ID:             a.id,
		Kind:           domain.AccountSimulator,
		Broker:         "simulator",
		InitialBalance: a.initialBalance,
		CurrentBalance: a.balance,
		BuyingPower:    a.buyingPowerLocked(),
		DailyPnL:       a.totalRealizedLocked(),
		TotalPnL:       a.totalRealizedLocked(),
		Currency:       "USD",
		UpdatedAt:      time.Now().UTC(),
	}
}

func (a *simAccount) totalRealizedLocked() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range a.positions {
		total = total.Add(pos.RealizedPnL)
	}
	return total
}

func (a *simAccount) snapshotPositions() []domain.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Position, 0, len(a.positions))
	for _, pos := range a.positions {
		if pos.Reportable() {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument.Symbol < out[j].Instrument.Symbol })
	return out
}

func (a *simAccount) metricsLocked() Metrics {
	var wins, losses int
	var sumWin, sumLoss float64
	for _, t := range a.closingTrades {
		if t.pnl >= 0 {
			wins++
			sumWin += t.pnl
		} else {
			losses++
			sumLoss += -t.pnl
		}
	}
	total := wins + losses
	m := Metrics{MaxDrawdown: a.maxDrawdown}
	if total > 0 {
		m.WinRate = float64(wins) / float64(total)
	}
	if sumLoss > 0 {
		m.ProfitFactor = sumWin / sumLoss
	} else if sumWin > 0 {
		m.ProfitFactor = posInf()
	}
	if wins > 0 {
		m.AvgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = sumLoss / float64(losses)
	}
	return m
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}

// applyFill debits/credits cash, updates the position with the
// side-aware average-cost method, records the closing-trade stat when
// the fill reduces an open position, and recomputes running/peak
// equity and drawdown. Must be called with a.mu held.
func (a *simAccount) applyFillLocked(order *domain.Order, side domain.Side, qty float64, price decimal.Decimal) domain.Fill {
	instrument := order.Instrument
	pos, ok := a.positions[instrument.Symbol]
	if !ok {
		pos = &domain.Position{AccountID: a.id, Instrument: instrument}
		a.positions[instrument.Symbol] = pos
	}

	commission := decimal.NewFromFloat(a.cfg.CommissionPerSide)
	notional := price.Mul(decimal.NewFromFloat(qty * instrument.Multiplier))

	signedQty := qty
	if side == domain.SideSell {
		signedQty = -qty
	}

	var realized decimal.Decimal
	switch {
	case pos.NetQty == 0 || sameSign(pos.NetQty, signedQty):
		// Opening or adding to a position: blend the average cost.
		oldQty := pos.NetQty
		newQty := oldQty + signedQty
		oldCostTotal := pos.AvgCost.Mul(decimal.NewFromFloat(absFloat(oldQty)))
		addedCostTotal := price.Mul(decimal.NewFromFloat(qty))
		if newQty != 0 {
			pos.AvgCost = oldCostTotal.Add(addedCostTotal).Div(decimal.NewFromFloat(absFloat(newQty)))
		}
		pos.NetQty = newQty
	default:
		// Reducing or flipping: realize PnL on the closed portion.
		closing := minFloat(absFloat(pos.NetQty), qty)
		sign := 1.0
		if pos.NetQty < 0 {
			sign = -1.0
		}
		realized = price.Sub(pos.AvgCost).Mul(decimal.NewFromFloat(closing * sign * instrument.Multiplier))
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		a.closingTrades = append(a.closingTrades, closingTradeStat{pnl: mustFloat(realized.Sub(commission))})

		remaining := qty - closing
		newQty := pos.NetQty + signedQty
		pos.NetQty = newQty
		if remaining > 0 && newQty != 0 {
			// Flipped through zero: the remainder opens a fresh position at this fill's price.
			pos.AvgCost = price
		}
	}
	pos.MarketPrice = price
	pos.UpdatedAt = time.Now().UTC()

	// Cash settlement: buying debits notional+commission; selling credits notional-commission.
	if side == domain.SideBuy {
		a.balance = a.balance.Sub(notional).Sub(commission)
	} else {
		a.balance = a.balance.Add(notional).Sub(commission)
	}
	a.feesPaid = a.feesPaid.Add(commission)

	a.runningEquity = mustFloat(a.totalRealizedLocked().Sub(a.feesPaid))
	if a.runningEquity > a.peakEquity {
		a.peakEquity = a.runningEquity
	}
	if dd := a.peakEquity - a.runningEquity; dd > a.maxDrawdown {
		a.maxDrawdown = dd
	}

	order.FilledQty += qty
	fillPrice := price
	if order.FilledQty >= order.Quantity {
		order.Status = domain.OrderFilled
	} else {
		order.Status = domain.OrderPartiallyFilled
	}
	order.AvgFillPrice = fillPrice
	order.UpdatedAt = time.Now().UTC()

	fill := domain.Fill{
		ID:         a.nextID("fill"),
		OrderID:    order.ID,
		AccountID:  a.id,
		Instrument: instrument,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Commission: commission,
		Timestamp:  time.Now().UTC(),
	}
	a.fills = append(a.fills, fill)
	return fill
}

func sameSign(a, b float64) bool {
	return (a >= 0 && b >= 0) || (a <= 0 && b <= 0)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// reset discards all positions, orders, fills, and performance history,
// and restores initialBalance. Idempotent: calling twice in a row leaves
// identical state.
func (a *simAccount) reset() {
	a.mu.Lock()
	a.balance = a.initialBalance
	a.feesPaid = decimal.Zero
	a.positions = make(map[string]*domain.Position)
	a.orders = make(map[string]*domain.Order)
	a.resting = make(map[queueKey][]*restingOrder)
	a.stops = nil
	a.fills = nil
	a.closingTrades = nil
	a.runningEquity = a.cfg.InitialBalance
	a.peakEquity = a.cfg.InitialBalance
	a.maxDrawdown = 0
	a.mu.Unlock()
	a.emit(AccountEvent{Reset: true})
}
