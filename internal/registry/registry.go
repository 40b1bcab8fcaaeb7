// Package registry resolves user-facing symbol strings to canonical
// Instrument descriptors, and implements the tick-rounding and session
// rules those descriptors carry.
package registry

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/domain"
)

// ErrNotFound is returned by Resolve for a symbol with no registered
// instrument and no applicable passthrough rule.
var ErrNotFound = errors.New("registry: symbol not found")

// futureRoot is a continuous-futures contract root: its contract specs
// plus the static quarterly month-code cycle it rolls on.
type futureRoot struct {
	instrument domain.Instrument
	cycle      []byte // month codes in roll order, e.g. H,M,U,Z
}

// Registry holds the in-memory symbol table seeded at startup from
// config. Safe for concurrent read-only use after construction; callers
// needing to add instruments at runtime should build a new Registry and
// swap it in (the teacher's config is otherwise immutable post-load).
type Registry struct {
	instruments map[string]domain.Instrument // exact symbols, keyed upper-case
	futures     map[string]futureRoot        // continuous-contract roots, keyed upper-case
	now         func() time.Time             // injectable clock for front-month tests
}

// New builds a Registry from explicit instrument and futures-root tables.
// A nil now defaults to time.Now.
func New(instruments []domain.Instrument, futuresRoots map[string][]byte, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	r := &Registry{
		instruments: make(map[string]domain.Instrument, len(instruments)),
		futures:     make(map[string]futureRoot, len(futuresRoots)),
		now:         now,
	}
	for _, ins := range instruments {
		r.instruments[strings.ToUpper(ins.Symbol)] = ins
	}
	for root, cycle := range futuresRoots {
		key := strings.ToUpper(root)
		ins, ok := r.instruments[key]
		if !ok {
			continue
		}
		r.futures[key] = futureRoot{instrument: ins, cycle: cycle}
	}
	return r
}

// monthCodes maps the standard CME month-code letters to calendar months.
var monthCodes = map[byte]time.Month{
	'F': time.January, 'G': time.February, 'H': time.March,
	'J': time.April, 'K': time.May, 'M': time.June,
	'N': time.July, 'Q': time.August, 'U': time.September,
	'V': time.October, 'X': time.November, 'Z': time.December,
}

// Resolve normalizes userSymbol case-insensitively and maps it to a
// canonical Instrument. Continuous-futures roots (e.g. "ES") resolve to
// the front month per the root's static roll cycle. Unknown symbols that
// look like plain equity tickers pass through with default tick/multiplier.
func (r *Registry) Resolve(userSymbol string) (domain.Instrument, error) {
	key := strings.ToUpper(strings.TrimSpace(userSymbol))
	if key == "" {
		return domain.Instrument{}, ErrNotFound
	}
	if fr, ok := r.futures[key]; ok {
		return r.frontMonth(fr), nil
	}
	if ins, ok := r.instruments[key]; ok {
		return ins, nil
	}
	if isPlainEquitySymbol(key) {
		return domain.Instrument{
			Symbol:     key,
			AssetClass: domain.AssetEquity,
			TickSize:   0.01,
			Multiplier: 1,
		}, nil
	}
	return domain.Instrument{}, ErrNotFound
}

// frontMonth picks the nearest upcoming month in the root's roll cycle
// relative to the registry's clock, and labels the resolved instrument
// with that month's contract code (e.g. "ESH26").
func (r *Registry) frontMonth(fr futureRoot) domain.Instrument {
	now := r.now().UTC()
	best := time.Time{}
	bestCode := byte(0)
	for _, code := range fr.cycle {
		month, ok := monthCodes[code]
		if !ok {
			continue
		}
		year := now.Year()
		candidate := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		if candidate.Before(now) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
			bestCode = code
		}
	}
	ins := fr.instrument
	if bestCode != 0 {
		ins.Symbol = ins.Symbol + string(bestCode) + yearSuffix(best.Year())
	}
	return ins
}

func yearSuffix(year int) string {
	y := year % 100
	if y < 10 {
		return "0" + itoa(y)
	}
	return itoa(y)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [2]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

// isPlainEquitySymbol is a conservative check for tickers the registry
// should pass through rather than reject: 1-5 uppercase letters only.
func isPlainEquitySymbol(s string) bool {
	if len(s) == 0 || len(s) > 5 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// TickRound rounds price to the instrument's tick size, half-away-from-zero.
func TickRound(instrument domain.Instrument, price float64) float64 {
	if instrument.TickSize <= 0 {
		return price
	}
	ticks := decimal.NewFromFloat(price).Div(decimal.NewFromFloat(instrument.TickSize))
	rounded := ticks.Round(0)
	result, _ := rounded.Mul(decimal.NewFromFloat(instrument.TickSize)).Float64()
	return result
}

// SessionOpen reports whether the instrument is inside its trading
// session at tsUTC.
func SessionOpen(instrument domain.Instrument, tsUTC time.Time) bool {
	return instrument.Open(tsUTC)
}
