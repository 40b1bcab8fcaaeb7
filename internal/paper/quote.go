package paper

import (
	"math/rand"
	"sync"

	"tradecore/internal/domain"
)

// quoteState is the simulator's own authoritative mid/bid/ask for one
// instrument, advanced by a bounded random walk on each tick. The
// simulator never reads an external book.
type quoteState struct {
	mu         sync.RWMutex
	instrument domain.Instrument
	mid        float64
	spreadBps  float64
	walkBps    float64
	rng        *rand.Rand
}

func newQuoteState(instrument domain.Instrument, startMid, spreadBps, walkBps float64, rng *rand.Rand) *quoteState {
	return &quoteState{
		instrument: instrument,
		mid:        startMid,
		spreadBps:  spreadBps,
		walkBps:    walkBps,
		rng:        rng,
	}
}

// snapshot returns the current bid/ask/mid.
func (q *quoteState) snapshot() (bid, ask, mid float64) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	half := q.mid * q.spreadBps / 20000
	return q.mid - half, q.mid + half, q.mid
}

// step advances the mid by one bounded random-walk tick: a uniform draw
// in [-walkBps, +walkBps] applied multiplicatively, floored above zero.
func (q *quoteState) step() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.walkBps <= 0 {
		return
	}
	drawBps := (q.rng.Float64()*2 - 1) * q.walkBps
	next := q.mid * (1 + drawBps/10000)
	if next > 0 {
		q.mid = next
	}
}

// setMid forcibly sets the mid, used only by tests.
func (q *quoteState) setMid(mid float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mid = mid
}
