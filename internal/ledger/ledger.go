// Package ledger implements the alert ledger: the one hard durability
// contract of the system. Every alert's terminal (or ignored)
// disposition is recorded so that "what happened to alert X" survives a
// restart, independent of the in-memory broadcast hub. The ledger keeps
// one row per alert: recording an alert again replaces its row, so
// earlier dispositions of the same alert are not kept.
//
// Grounded on AlejandroRuiz99-polybot's internal/adapters/storage sqlite
// package: schema-on-open against a single-writer connection, prepared
// statements, pure-Go driver for portability.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS alerts (
    id              TEXT PRIMARY KEY,
    source          TEXT    NOT NULL,
    received_at     DATETIME NOT NULL,
    destination     TEXT    NOT NULL,
    terminal_status TEXT    NOT NULL,
    recorded_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_received ON alerts(received_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_status   ON alerts(terminal_status);
`

// Ledger is a restart-durable record of each alert's latest disposition.
// Safe for concurrent use; SQLite itself serializes writes on the single
// open connection.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path and applies its
// schema. Pass ":memory:" for an ephemeral, test-only ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger.Open: apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record persists alertID's terminal disposition. Satisfies
// execution.Ledger. A later Record for the same alertID (e.g. a
// placement retry that eventually succeeds after an earlier failed
// attempt was already recorded) overwrites the prior row rather than
// appending a duplicate, so the ledger always reflects the alert's
// latest known disposition.
func (l *Ledger) Record(alertID, source string, receivedAt time.Time, destination, terminalStatus string) {
	_, err := l.db.ExecContext(context.Background(), `
		INSERT INTO alerts (id, source, received_at, destination, terminal_status, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			destination     = excluded.destination,
			terminal_status = excluded.terminal_status,
			recorded_at     = excluded.recorded_at
	`, alertID, source, receivedAt.UTC(), destination, terminalStatus, time.Now().UTC())
	if err != nil {
		// The ledger is a durability aid, not the source of truth for live
		// state (the hub already broadcast the status); a write failure is
		// dropped here, neither returned nor logged.
		return
	}
}

// Entry is one recorded alert disposition.
type Entry struct {
	ID             string
	Source         string
	ReceivedAt     time.Time
	Destination    string
	TerminalStatus string
	RecordedAt     time.Time
}

// Lookup returns the recorded entry for alertID, or false if none exists.
func (l *Ledger) Lookup(ctx context.Context, alertID string) (Entry, bool, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, source, received_at, destination, terminal_status, recorded_at
		FROM alerts WHERE id = ?
	`, alertID)

	var e Entry
	var receivedAt, recordedAt string
	if err := row.Scan(&e.ID, &e.Source, &receivedAt, &e.Destination, &e.TerminalStatus, &recordedAt); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("ledger.Lookup: %w", err)
	}
	e.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
	e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
	return e, true, nil
}

// Recent returns up to limit of the most recently received alerts,
// newest first. Used by the status API to render an activity feed.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, source, received_at, destination, terminal_status, recorded_at
		FROM alerts ORDER BY received_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger.Recent: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var receivedAt, recordedAt string
		if err := rows.Scan(&e.ID, &e.Source, &receivedAt, &e.Destination, &e.TerminalStatus, &recordedAt); err != nil {
			return nil, fmt.Errorf("ledger.Recent: scan: %w", err)
		}
		e.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus returns the number of ledger rows recorded with
// terminalStatus.
func (l *Ledger) CountByStatus(ctx context.Context, terminalStatus string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE terminal_status = ?`, terminalStatus).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ledger.CountByStatus: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
