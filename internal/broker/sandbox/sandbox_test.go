package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradecore/internal/broker"
	"tradecore/internal/domain"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, TimeoutMs: 1000})
}

func TestPlaceOrderAccepted(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["symbol"] != "ES" {
			t.Errorf("expected symbol ES in request body, got %v", body["symbol"])
		}
		json.NewEncoder(w).Encode(map[string]any{"brokerRef": "broker-123"})
	})

	ack, err := a.PlaceOrder(context.Background(), broker.OrderSpec{
		AccountID:  "ftmo-1",
		Instrument: domain.Instrument{Symbol: "ES"},
		Side:       domain.SideBuy,
		Quantity:   1,
		OrderType:  domain.OrderTypeMarket,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if ack.BrokerRef != "broker-123" {
		t.Fatalf("expected brokerRef broker-123, got %q", ack.BrokerRef)
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"rejected": true, "reasonCode": "NO_BP", "message": "insufficient buying power"})
	})

	_, err := a.PlaceOrder(context.Background(), broker.OrderSpec{Instrument: domain.Instrument{Symbol: "ES"}})
	if err == nil {
		t.Fatal("expected an error for a rejected order")
	}
	adapterErr, ok := err.(*broker.AdapterError)
	if !ok {
		t.Fatalf("expected *broker.AdapterError, got %T", err)
	}
	if adapterErr.Reason != broker.ReasonNoBuyingPower {
		t.Fatalf("expected reason NO_BP, got %q", adapterErr.Reason)
	}
}

func TestPlaceOrderServerErrorIsRetryable(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"rejected": true})
	})

	_, err := a.PlaceOrder(context.Background(), broker.OrderSpec{Instrument: domain.Instrument{Symbol: "ES"}})
	adapterErr, ok := err.(*broker.AdapterError)
	if !ok {
		t.Fatalf("expected *broker.AdapterError, got %T", err)
	}
	if !adapterErr.Reason.Retryable() {
		t.Fatalf("expected a 5xx failure to be retryable, got reason %q", adapterErr.Reason)
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := a.CancelOrder(context.Background(), "missing-ref")
	adapterErr, ok := err.(*broker.AdapterError)
	if !ok {
		t.Fatalf("expected *broker.AdapterError, got %T", err)
	}
	if adapterErr.Reason != broker.ReasonNotFound {
		t.Fatalf("expected reason NOT_FOUND, got %q", adapterErr.Reason)
	}
}

func TestCancelOrderSuccess(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if err := a.CancelOrder(context.Background(), "ref-1"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
}

func TestGetPositions(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]domain.Position{
			{AccountID: "ftmo-1", Instrument: domain.Instrument{Symbol: "ES"}, NetQty: 2},
		})
	})

	positions, err := a.GetPositions(context.Background(), "ftmo-1")
	if err != nil {
		t.Fatalf("GetPositions: %v", err)
	}
	if len(positions) != 1 || positions[0].NetQty != 2 {
		t.Fatalf("unexpected positions: %+v", positions)
	}
}

func TestStreamUpdatesReturnsClosedChannel(t *testing.T) {
	a := New(Config{BaseURL: "http://unused.invalid"})
	ch, err := a.StreamUpdates(context.Background(), "ftmo-1")
	if err != nil {
		t.Fatalf("StreamUpdates: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected a pre-closed channel, no push transport is implemented")
	}
}
