package registry

import (
	"testing"
	"time"

	"tradecore/internal/domain"
)

func testInstruments() []domain.Instrument {
	return []domain.Instrument{
		{Symbol: "ES", AssetClass: domain.AssetFuture, TickSize: 0.25, Multiplier: 50, Session: domain.Session{OpenHourUTC: 0, CloseHourUTC: 23}},
		{Symbol: "MSFT", AssetClass: domain.AssetEquity, TickSize: 0.01, Multiplier: 1, Session: domain.Session{OpenHourUTC: 13, CloseHourUTC: 20}},
	}
}

func TestResolveExactSymbolCaseInsensitive(t *testing.T) {
	r := New(testInstruments(), nil, nil)

	ins, err := r.Resolve("msft")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ins.Symbol != "MSFT" {
		t.Fatalf("expected MSFT, got %q", ins.Symbol)
	}
}

func TestResolveUnknownSymbol(t *testing.T) {
	r := New(testInstruments(), nil, nil)
	if _, err := r.Resolve("ZZZZZZ"); err == nil {
		t.Fatal("expected ErrNotFound for an overlong unknown symbol")
	}
	if _, err := r.Resolve(""); err == nil {
		t.Fatal("expected ErrNotFound for an empty symbol")
	}
}

func TestResolvePlainEquityPassthrough(t *testing.T) {
	r := New(testInstruments(), nil, nil)
	ins, err := r.Resolve("AAPL")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ins.AssetClass != domain.AssetEquity || ins.TickSize != 0.01 || ins.Multiplier != 1 {
		t.Fatalf("unexpected passthrough instrument: %+v", ins)
	}
}

func TestResolveContinuousFutureFrontMonth(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) }
	r := New(testInstruments(), map[string][]byte{"ES": []byte("HMUZ")}, clock)

	ins, err := r.Resolve("es")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ins.Symbol != "ESH26" {
		t.Fatalf("expected front month ESH26, got %q", ins.Symbol)
	}
}

func TestResolveContinuousFutureRollsToNextYear(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC) }
	r := New(testInstruments(), map[string][]byte{"ES": []byte("HMUZ")}, clock)

	ins, err := r.Resolve("ES")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ins.Symbol != "ESH27" {
		t.Fatalf("expected roll to next year's March contract, got %q", ins.Symbol)
	}
}

func TestTickRound(t *testing.T) {
	instrument := domain.Instrument{TickSize: 0.25}
	cases := []struct {
		price float64
		want  float64
	}{
		{100.10, 100.00},
		{100.13, 100.25},
		{100.375, 100.50},
	}
	for _, c := range cases {
		if got := TickRound(instrument, c.price); got != c.want {
			t.Errorf("TickRound(%f) = %f, want %f", c.price, got, c.want)
		}
	}
}

func TestTickRoundZeroTickSizeIsNoop(t *testing.T) {
	instrument := domain.Instrument{TickSize: 0}
	if got := TickRound(instrument, 12.345); got != 12.345 {
		t.Fatalf("expected passthrough for zero tick size, got %f", got)
	}
}

func TestSessionOpen(t *testing.T) {
	instrument := domain.Instrument{Session: domain.Session{OpenHourUTC: 13, CloseHourUTC: 20}}
	inside := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)

	if !SessionOpen(instrument, inside) {
		t.Fatal("expected session to be open at 15:00 UTC")
	}
	if SessionOpen(instrument, outside) {
		t.Fatal("expected session to be closed at 22:00 UTC")
	}
}
