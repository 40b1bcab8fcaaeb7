package ledger

import (
	"context"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndLookup(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	l.Record("alert-1", "tradingview", now, "simulator", "working")

	entry, ok, err := l.Lookup(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.Source != "tradingview" || entry.Destination != "simulator" || entry.TerminalStatus != "working" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLookupMissingReturnsFalse(t *testing.T) {
	l := newTestLedger(t)
	_, ok, err := l.Lookup(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if ok {
		t.Fatal("expected no entry")
	}
}

func TestRecordOverwritesLatestDisposition(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	l.Record("alert-1", "tradingview", now, "simulator", "placing")
	l.Record("alert-1", "tradingview", now, "simulator", "working")

	entry, ok, err := l.Lookup(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.TerminalStatus != "working" {
		t.Fatalf("expected latest status to win, got %s", entry.TerminalStatus)
	}

	n, err := l.CountByStatus(context.Background(), "working")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 row after overwrite, got %d", n)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	l := newTestLedger(t)
	base := time.Now().UTC()

	l.Record("alert-1", "tradingview", base.Add(-2*time.Minute), "simulator", "working")
	l.Record("alert-2", "tradingview", base.Add(-1*time.Minute), "simulator", "rejected")
	l.Record("alert-3", "tradingview", base, "simulator", "working")

	entries, err := l.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != "alert-3" {
		t.Fatalf("expected newest first, got %s", entries[0].ID)
	}
}

func TestCountByStatus(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now().UTC()

	l.Record("alert-1", "tradingview", now, "simulator", "rejected")
	l.Record("alert-2", "tradingview", now, "simulator", "rejected")
	l.Record("alert-3", "tradingview", now, "simulator", "working")

	n, err := l.CountByStatus(context.Background(), "rejected")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rejected entries, got %d", n)
	}
}
