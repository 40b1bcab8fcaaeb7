package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is a single, immutable, append-only trade execution.
type Fill struct {
	ID         string
	OrderID    string
	AccountID  string
	Instrument Instrument
	Side       Side
	Quantity   float64
	Price      decimal.Decimal
	Commission decimal.Decimal
	Timestamp  time.Time
}
