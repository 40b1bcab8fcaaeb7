package webhook

import (
	"errors"

	"tradecore/internal/domain"
)

// ErrSchema is returned by normalize for a schema-invalid body.
var ErrSchema = errors.New("webhook: invalid alert body")

// rawAlert is the wire shape of an inbound webhook body, per spec §6.
type rawAlert struct {
	StrategyID   string   `json:"strategyId"`
	AccountGroup string   `json:"accountGroup"`
	Symbol       string   `json:"symbol"`
	Side         string   `json:"side"`
	Quantity     float64  `json:"quantity"`
	OrderType    string   `json:"orderType"`
	Price        *float64 `json:"price,omitempty"`
	StopPrice    *float64 `json:"stopPrice,omitempty"`
	TimeInForce  string   `json:"timeInForce,omitempty"`
	ClientNonce  string   `json:"clientNonce"`
}

var validSides = map[string]domain.Side{
	"buy":   domain.SideBuy,
	"sell":  domain.SideSell,
	"close": domain.SideClose,
}

var validOrderTypes = map[string]domain.OrderType{
	"market":     domain.OrderTypeMarket,
	"limit":      domain.OrderTypeLimit,
	"stop":       domain.OrderTypeStop,
	"stop_limit": domain.OrderTypeStopLimit,
}

var validTIFs = map[string]domain.TimeInForce{
	"":    domain.TIFDay,
	"day": domain.TIFDay,
	"gtc": domain.TIFGTC,
	"ioc": domain.TIFIOC,
	"fok": domain.TIFFOK,
}

// normalize validates raw per the body schema and converts it into a
// partially-filled domain.Alert (missing ID/Source/ReceivedAt, which the
// handler stamps after dedup).
func (r rawAlert) normalize(source string) (domain.Alert, error) {
	side, ok := validSides[r.Side]
	if !ok {
		return domain.Alert{}, ErrSchema
	}
	orderType, ok := validOrderTypes[r.OrderType]
	if !ok {
		return domain.Alert{}, ErrSchema
	}
	tif, ok := validTIFs[r.TimeInForce]
	if !ok {
		return domain.Alert{}, ErrSchema
	}
	if r.Symbol == "" || r.ClientNonce == "" {
		return domain.Alert{}, ErrSchema
	}
	if r.Quantity <= 0 {
		return domain.Alert{}, ErrSchema
	}
	if (orderType == domain.OrderTypeLimit || orderType == domain.OrderTypeStopLimit) && r.Price == nil {
		return domain.Alert{}, ErrSchema
	}
	if (orderType == domain.OrderTypeStop || orderType == domain.OrderTypeStopLimit) && r.StopPrice == nil {
		return domain.Alert{}, ErrSchema
	}

	return domain.Alert{
		Source:       source,
		StrategyID:   r.StrategyID,
		AccountGroup: r.AccountGroup,
		Symbol:       r.Symbol,
		Side:         side,
		Quantity:     r.Quantity,
		OrderType:    orderType,
		Price:        r.Price,
		StopPrice:    r.StopPrice,
		TimeInForce:  tif,
		ClientNonce:  r.ClientNonce,
	}, nil
}
