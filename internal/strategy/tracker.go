// Package strategy tracks each strategy's live win rate over fixed-size
// evaluation sets and transitions its execution mode between live, paper,
// and suspended accordingly. Grounded on the mutex-guarded,
// map-keyed-registry shape of the teacher's execution.Tracker — here one
// record per strategy instead of one position per asset.
package strategy

import (
	"sync"
	"time"

	"tradecore/internal/domain"
)

// Tracker owns every known strategy's StrategyRecord.
type Tracker struct {
	mu           sync.RWMutex
	records      map[string]*domain.StrategyRecord
	onTransition func(transition domain.ModeTransition, strategyID string)
}

// NewTracker creates a Tracker ready to use. onTransition, if non-nil, is
// invoked after every automatic or manual mode change.
func NewTracker(onTransition func(transition domain.ModeTransition, strategyID string)) *Tracker {
	return &Tracker{
		records:      make(map[string]*domain.StrategyRecord),
		onTransition: onTransition,
	}
}

// Register adds a new strategy under live mode with the given evaluation
// parameters. A strategy already registered is left untouched.
func (t *Tracker) Register(strategyID, name string, evaluationPeriod int, minWinRate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[strategyID]; ok {
		return
	}
	t.records[strategyID] = &domain.StrategyRecord{
		StrategyID:       strategyID,
		Name:             name,
		Mode:             domain.StrategyLive,
		MinWinRate:       minWinRate,
		EvaluationPeriod: evaluationPeriod,
	}
}

// Mode returns the strategy's current mode, defaulting to live for an
// unregistered strategy (routing treats unknown strategies as live).
func (t *Tracker) Mode(strategyID string) domain.StrategyMode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[strategyID]
	if !ok {
		return domain.StrategyLive
	}
	return rec.Mode
}

// Record appends a closing-trade outcome to the strategy's current
// evaluation set. When the set reaches EvaluationPeriod trades it closes
// atomically: winRate is computed, the set is appended to CompletedSets,
// a mode transition is evaluated, and CurrentSet resets to empty.
func (t *Tracker) Record(strategyID string, outcome domain.TradeOutcome) {
	t.mu.Lock()
	rec, ok := t.records[strategyID]
	if !ok {
		rec = &domain.StrategyRecord{
			StrategyID:       strategyID,
			Mode:             domain.StrategyLive,
			MinWinRate:       0.5,
			EvaluationPeriod: 20,
		}
		t.records[strategyID] = rec
	}

	rec.CurrentSet = append(rec.CurrentSet, outcome)
	var transition *domain.ModeTransition
	if rec.EvaluationPeriod > 0 && len(rec.CurrentSet) == rec.EvaluationPeriod {
		set := closeSet(rec)
		rec.CompletedSets = append(rec.CompletedSets, set)
		rec.CurrentSet = nil
		transition = evaluateTransition(rec, set)
		if transition != nil {
			rec.Mode = transition.To
			rec.Transitions = append(rec.Transitions, *transition)
		}
	}
	t.mu.Unlock()

	if transition != nil && t.onTransition != nil {
		t.onTransition(*transition, strategyID)
	}
}

// closeSet computes the SetResult for rec's just-filled CurrentSet.
// Caller must hold t.mu.
func closeSet(rec *domain.StrategyRecord) domain.SetResult {
	trades := rec.CurrentSet
	var wins int
	var totalPnL float64
	for _, tr := range trades {
		if tr.Win {
			wins++
		}
		totalPnL += tr.PnL
	}
	return domain.SetResult{
		SetNumber: len(rec.CompletedSets) + 1,
		Trades:    trades,
		WinRate:   float64(wins) / float64(len(trades)),
		TotalPnL:  totalPnL,
		StartedAt: trades[0].ClosedAt,
		EndedAt:   trades[len(trades)-1].ClosedAt,
		Mode:      rec.Mode,
	}
}

// evaluateTransition applies the spec's three transition rules in order
// against rec's just-closed set and completed-set history. Caller must
// hold t.mu. Returns nil when no transition applies.
func evaluateTransition(rec *domain.StrategyRecord, closed domain.SetResult) *domain.ModeTransition {
	now := time.Now().UTC()

	switch rec.Mode {
	case domain.StrategyLive:
		if closed.WinRate < rec.MinWinRate {
			return &domain.ModeTransition{
				From: domain.StrategyLive, To: domain.StrategyPaper,
				At: now, Reason: "evaluation set win rate below threshold", Automatic: true,
			}
		}
	case domain.StrategyPaper:
		n := len(rec.CompletedSets)
		if n >= 2 {
			last := rec.CompletedSets[n-1]
			prev := rec.CompletedSets[n-2]
			if last.WinRate >= rec.MinWinRate && prev.WinRate >= rec.MinWinRate {
				return &domain.ModeTransition{
					From: domain.StrategyPaper, To: domain.StrategyLive,
					At: now, Reason: "two consecutive passing evaluation sets", Automatic: true,
				}
			}
			if last.WinRate < rec.MinWinRate && prev.WinRate < rec.MinWinRate {
				return &domain.ModeTransition{
					From: domain.StrategyPaper, To: domain.StrategySuspended,
					At: now, Reason: "two consecutive failing evaluation sets", Automatic: true,
				}
			}
		}
	}
	return nil
}

// Override forces strategyID into mode with a recorded manual reason.
// Every call logs a transition, even an override to the current mode (the
// reason is new information even when the mode does not change).
func (t *Tracker) Override(strategyID string, mode domain.StrategyMode, reason string) {
	t.mu.Lock()
	rec, ok := t.records[strategyID]
	if !ok {
		rec = &domain.StrategyRecord{StrategyID: strategyID, Mode: domain.StrategyLive, EvaluationPeriod: 20, MinWinRate: 0.5}
		t.records[strategyID] = rec
	}
	transition := domain.ModeTransition{
		From: rec.Mode, To: mode, At: time.Now().UTC(), Reason: reason, Automatic: false,
	}
	rec.Mode = mode
	rec.Transitions = append(rec.Transitions, transition)
	t.mu.Unlock()

	if t.onTransition != nil {
		t.onTransition(transition, strategyID)
	}
}

// Snapshot returns a copy of a strategy's current record, or false if
// unregistered.
func (t *Tracker) Snapshot(strategyID string) (domain.StrategyRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[strategyID]
	if !ok {
		return domain.StrategyRecord{}, false
	}
	return *rec, true
}
