package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is derived state for one (account, instrument) pair, computed
// incrementally from the fill stream. NetQty == 0 implies the position is
// closed; zero-qty entries may be retained internally for realized PnL but
// are not reported to UIs (see Position.Reportable).
type Position struct {
	AccountID     string
	Instrument    Instrument
	NetQty        float64 // signed: positive long, negative short
	AvgCost       decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	MarketPrice   decimal.Decimal
	UpdatedAt     time.Time
}

// Reportable reports whether this position should be surfaced to UIs.
func (p Position) Reportable() bool {
	return p.NetQty != 0
}
