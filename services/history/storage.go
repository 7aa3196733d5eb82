// Package history persists the market event stream to sqlite so operators
// can query past activity after the in-memory bus window has rolled over.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"lendcore/core/events"
)

// ErrPathRequired is returned when Open is invoked without a database path.
var ErrPathRequired = errors.New("history: database path required")

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS market_events (
    sequence INTEGER PRIMARY KEY,
    event_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    symbol TEXT NOT NULL,
    attributes TEXT NOT NULL,
    observed_at TIMESTAMP NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_market_events_type ON market_events(event_type, sequence);
CREATE INDEX IF NOT EXISTS idx_market_events_symbol ON market_events(symbol, sequence);
CREATE TABLE IF NOT EXISTS market_event_accounts (
    sequence INTEGER NOT NULL,
    account TEXT NOT NULL,
    PRIMARY KEY (sequence, account)
);
CREATE INDEX IF NOT EXISTS idx_market_event_accounts_account ON market_event_accounts(account, sequence);
`

// accountAttributes are the envelope attribute keys that name an involved
// account. Every non-empty value is indexed so queries can filter by any
// participant, not just the primary actor.
var accountAttributes = []string{"supplier", "borrower", "payer", "account", "from", "to", "liquidator", "admin"}

// Storage wraps the sqlite database holding indexed market events.
type Storage struct {
	db *sql.DB
}

// Open initialises the event database at the provided path and applies the
// schema.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record is one persisted market event.
type Record struct {
	Sequence   uint64
	EventID    string
	Type       string
	Symbol     string
	Attributes map[string]string
	ObservedAt time.Time
	RecordedAt time.Time
}

// Query filters persisted events. Zero-value fields are ignored.
type Query struct {
	Type    string
	Symbol  string
	Account string
	After   uint64
	Limit   int
}

// InsertEvent stores the envelope, ignoring sequences that were already
// recorded. It reports whether a new row was written.
func (s *Storage) InsertEvent(ctx context.Context, env events.Envelope) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("history: storage not configured")
	}
	if env.Sequence == 0 {
		return false, fmt.Errorf("history: envelope missing sequence")
	}
	attrs, err := json.Marshal(env.Event.Attributes)
	if err != nil {
		return false, fmt.Errorf("history: encode attributes: %w", err)
	}
	observed := env.Timestamp.UTC()
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("history: begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
INSERT INTO market_events (sequence, event_id, event_type, symbol, attributes, observed_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(sequence) DO NOTHING
`, env.Sequence, env.ID, env.Event.Type, eventSymbol(env.Event.Attributes), string(attrs), observed, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("history: insert event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("history: insert event: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	for _, account := range eventAccounts(env.Event.Attributes) {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO market_event_accounts (sequence, account)
VALUES (?, ?)
ON CONFLICT(sequence, account) DO NOTHING
`, env.Sequence, account); err != nil {
			return false, fmt.Errorf("history: index account: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("history: commit event: %w", err)
	}
	return true, nil
}

// LatestSequence returns the highest persisted sequence, or zero when the
// database is empty.
func (s *Storage) LatestSequence(ctx context.Context) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("history: storage not configured")
	}
	var latest uint64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM market_events`).Scan(&latest); err != nil {
		return 0, fmt.Errorf("history: query latest sequence: %w", err)
	}
	return latest, nil
}

// Events returns persisted events matching the query in ascending sequence
// order.
func (s *Storage) Events(ctx context.Context, q Query) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history: storage not configured")
	}
	query := `SELECT e.sequence, e.event_id, e.event_type, e.symbol, e.attributes, e.observed_at, e.recorded_at FROM market_events e`
	var (
		clauses []string
		args    []any
	)
	if account := strings.TrimSpace(q.Account); account != "" {
		query += ` JOIN market_event_accounts a ON a.sequence = e.sequence`
		clauses = append(clauses, "a.account = ?")
		args = append(args, account)
	}
	if eventType := strings.TrimSpace(q.Type); eventType != "" {
		clauses = append(clauses, "e.event_type = ?")
		args = append(args, eventType)
	}
	if symbol := strings.ToUpper(strings.TrimSpace(q.Symbol)); symbol != "" {
		clauses = append(clauses, "e.symbol = ?")
		args = append(args, symbol)
	}
	if q.After > 0 {
		clauses = append(clauses, "e.sequence > ?")
		args = append(args, q.After)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	query += " ORDER BY e.sequence ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec   Record
			attrs string
		)
		if err := rows.Scan(&rec.Sequence, &rec.EventID, &rec.Type, &rec.Symbol, &attrs, &rec.ObservedAt, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("history: scan event: %w", err)
		}
		if attrs != "" {
			if err := json.Unmarshal([]byte(attrs), &rec.Attributes); err != nil {
				return nil, fmt.Errorf("history: decode attributes: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate events: %w", err)
	}
	return records, nil
}

// Prune removes events observed before the cutoff together with their account
// index rows. It returns the number of events deleted.
func (s *Storage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("history: storage not configured")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("history: begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `
DELETE FROM market_event_accounts
WHERE sequence IN (SELECT sequence FROM market_events WHERE observed_at < ?)
`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("history: prune account index: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM market_events WHERE observed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: prune events: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: prune events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("history: commit prune: %w", err)
	}
	return removed, nil
}

func eventSymbol(attrs map[string]string) string {
	if attrs == nil {
		return ""
	}
	if symbol := attrs["symbol"]; symbol != "" {
		return symbol
	}
	return attrs["debt_symbol"]
}

func eventAccounts(attrs map[string]string) []string {
	if len(attrs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(accountAttributes))
	var accounts []string
	for _, key := range accountAttributes {
		value := strings.TrimSpace(attrs[key])
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		accounts = append(accounts, value)
	}
	return accounts
}
