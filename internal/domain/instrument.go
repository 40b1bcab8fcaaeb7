package domain

import "time"

// AssetClass identifies the market an Instrument trades in.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetOption AssetClass = "option"
	AssetFuture AssetClass = "future"
	AssetCrypto AssetClass = "crypto"
	AssetFX     AssetClass = "fx"
)

// Session describes an instrument's active trading window in UTC
// hour-of-day terms. A zero-value Session means "always open".
type Session struct {
	OpenHourUTC  int
	CloseHourUTC int
}

// Instrument is the canonical, immutable descriptor a user-facing symbol
// resolves to. Created once by the registry at startup.
type Instrument struct {
	Symbol     string
	AssetClass AssetClass
	TickSize   float64
	Multiplier float64
	Session    Session
}

// Open reports whether ts (UTC) falls inside the instrument's session.
func (i Instrument) Open(ts time.Time) bool {
	if i.Session.OpenHourUTC == 0 && i.Session.CloseHourUTC == 0 {
		return true
	}
	h := ts.UTC().Hour()
	if i.Session.OpenHourUTC <= i.Session.CloseHourUTC {
		return h >= i.Session.OpenHourUTC && h < i.Session.CloseHourUTC
	}
	// Session wraps midnight (e.g. overnight futures session).
	return h >= i.Session.OpenHourUTC || h < i.Session.CloseHourUTC
}
