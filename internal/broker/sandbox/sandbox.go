// Package sandbox implements a BrokerAdapter backed by a generic HTTP
// sandbox venue, for account groups configured with a named sandbox
// suffix rather than the live broker or the internal simulator.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"tradecore/internal/broker"
	"tradecore/internal/domain"
)

// Config controls one sandbox venue connection.
type Config struct {
	BaseURL        string
	CredentialsRef string
	TimeoutMs      int
	RateLimitPerMin int
}

// Adapter is an HTTP-backed broker.Adapter for a sandbox venue. It
// mirrors the request shape of a real broker REST client closely enough
// that swapping a live wire client in later is a drop-in change.
type Adapter struct {
	http *resty.Client
}

// New builds a sandbox Adapter from cfg.
func New(cfg Config) *Adapter {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(0). // retry/backoff policy belongs to the execution coordinator, not the transport
		SetHeader("Content-Type", "application/json")
	if cfg.CredentialsRef != "" {
		client.SetHeader("X-Credentials-Ref", cfg.CredentialsRef)
	}
	return &Adapter{http: client}
}

type placeOrderRequest struct {
	AccountID      string  `json:"accountId"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Quantity       float64 `json:"quantity"`
	OrderType      string  `json:"orderType"`
	Price          float64 `json:"price,omitempty"`
	StopPrice      float64 `json:"stopPrice,omitempty"`
	TIF            string  `json:"tif"`
	ClientOrderTag string  `json:"clientOrderTag"`
}

type placeOrderResponse struct {
	BrokerRef  string `json:"brokerRef"`
	Rejected   bool   `json:"rejected"`
	ReasonCode string `json:"reasonCode"`
	Message    string `json:"message"`
}

func classify(statusCode int, reasonCode string) broker.ReasonCode {
	if reasonCode != "" {
		return broker.ReasonCode(reasonCode)
	}
	switch {
	case statusCode >= 500:
		return broker.ReasonServerError
	case statusCode >= 400:
		return broker.ReasonClientRejected
	default:
		return broker.ReasonNone
	}
}

// PlaceOrder submits spec to the sandbox venue.
func (a *Adapter) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (broker.OrderAck, error) {
	req := placeOrderRequest{
		AccountID:      spec.AccountID,
		Symbol:         spec.Instrument.Symbol,
		Side:           string(spec.Side),
		Quantity:       spec.Quantity,
		OrderType:      string(spec.OrderType),
		TIF:            string(spec.TIF),
		ClientOrderTag: spec.ClientOrderTag,
	}
	if spec.Price != nil {
		req.Price = *spec.Price
	}
	if spec.StopPrice != nil {
		req.StopPrice = *spec.StopPrice
	}

	var result placeOrderResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(req).
		ForceContentType("application/json").
		SetResult(&result).
		SetError(&result).
		Post("/orders")
	if err != nil {
		return broker.OrderAck{}, &broker.AdapterError{Reason: broker.ReasonNetwork, Message: err.Error()}
	}
	if result.Rejected || resp.StatusCode() >= 400 {
		return broker.OrderAck{}, &broker.AdapterError{
			Reason:  classify(resp.StatusCode(), result.ReasonCode),
			Message: result.Message,
		}
	}
	return broker.OrderAck{BrokerRef: result.BrokerRef, AcceptedAt: time.Now()}, nil
}

// CancelOrder cancels brokerRef on the sandbox venue.
func (a *Adapter) CancelOrder(ctx context.Context, brokerRef string) error {
	resp, err := a.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/orders/%s", brokerRef))
	if err != nil {
		return &broker.AdapterError{Reason: broker.ReasonNetwork, Message: err.Error()}
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return &broker.AdapterError{Reason: broker.ReasonNotFound}
	default:
		return &broker.AdapterError{Reason: classify(resp.StatusCode(), "")}
	}
}

// GetAccount fetches the sandbox venue's account projection.
func (a *Adapter) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var acct domain.Account
	resp, err := a.http.R().
		SetContext(ctx).
		SetResult(&acct).
		Get(fmt.Sprintf("/accounts/%s", accountID))
	if err != nil {
		return domain.Account{}, &broker.AdapterError{Reason: broker.ReasonNetwork, Message: err.Error()}
	}
	if resp.StatusCode() >= 400 {
		return domain.Account{}, &broker.AdapterError{Reason: classify(resp.StatusCode(), "")}
	}
	acct.UpdatedAt = time.Now()
	return acct, nil
}

// GetPositions fetches open and recently-closed positions for accountID.
func (a *Adapter) GetPositions(ctx context.Context, accountID string) ([]domain.Position, error) {
	var positions []domain.Position
	resp, err := a.http.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&positions).
		Get(fmt.Sprintf("/accounts/%s/positions", accountID))
	if err != nil {
		return nil, &broker.AdapterError{Reason: broker.ReasonNetwork, Message: err.Error()}
	}
	if resp.StatusCode() >= 400 {
		return nil, &broker.AdapterError{Reason: classify(resp.StatusCode(), "")}
	}
	return positions, nil
}

// StreamUpdates is not implemented for the HTTP sandbox venue: it has no
// push transport, only request/response. A polling shim could be added
// if a sandbox venue needs live stream semantics; none has so far.
func (a *Adapter) StreamUpdates(ctx context.Context, accountID string) (<-chan broker.Update, error) {
	ch := make(chan broker.Update)
	close(ch)
	return ch, nil
}
