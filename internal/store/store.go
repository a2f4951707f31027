// Package store implements sqlite-backed persistence for users, their
// BotConfig/BotState, positions, trades, signals, and alerts (spec.md §6,
// §9). Map-valued BotState fields (LastPairSignalTimes, PlaybookBCounters)
// are persisted in their own keyed tables so a single symbol's update never
// requires rewriting the whole state row.
//
// Grounded on the teacher's atomic-rename JSON persistence (trader.go
// saveStateFrom: write-temp-then-rename) for the "never leave a half-written
// state file" discipline, reimplemented via stadam23-Eve-flipper's donated
// driver (modernc.org/sqlite, pure Go, no cgo) and transactions instead of
// file renames.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"spotengine/internal/domain"
)

// Store wraps a *sql.DB opened against a modernc.org/sqlite file.
type Store struct {
	db *sql.DB
}

// Open creates/migrates the database at path and returns a ready Store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer at a time, matches the single-writer actor model
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS bot_configs (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	config_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bot_states (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	state_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pair_signal_times (
	user_id TEXT NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	last_signal_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS playbook_b_counters (
	user_id TEXT NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	status TEXT NOT NULL,
	position_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_user_status ON positions(user_id, status);
CREATE INDEX IF NOT EXISTS idx_positions_user_symbol ON positions(user_id, symbol);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	date TIMESTAMP NOT NULL,
	trade_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_user_date ON trades(user_id, date);

CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	symbol TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	signal_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_user_time ON signals(user_id, timestamp);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	level TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	alert_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_user_time ON alerts(user_id, timestamp);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// EnsureUser inserts user if it does not already exist.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (id) VALUES (?)`, userID)
	return err
}

// SaveBotConfig upserts a user's config as JSON, matching the teacher's
// whole-document persistence approach for immutable-between-ticks config.
func (s *Store) SaveBotConfig(ctx context.Context, cfg domain.BotConfig) error {
	blob, err := marshalJSON(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_configs (user_id, config_json) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET config_json = excluded.config_json`,
		cfg.UserID, blob)
	return err
}

// LoadBotConfig reads a user's persisted config.
func (s *Store) LoadBotConfig(ctx context.Context, userID string) (domain.BotConfig, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT config_json FROM bot_configs WHERE user_id = ?`, userID).Scan(&blob)
	if err != nil {
		return domain.BotConfig{}, err
	}
	var cfg domain.BotConfig
	if err := unmarshalJSON(blob, &cfg); err != nil {
		return domain.BotConfig{}, err
	}
	return cfg, nil
}

// SaveBotState upserts a user's whole state as one JSON blob. The map-valued
// fields are also persisted separately by key, and LoadBotState takes them
// from those keyed tables rather than from the blob.
func (s *Store) SaveBotState(ctx context.Context, state *domain.BotState) error {
	blob, err := marshalJSON(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_states (user_id, state_json) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET state_json = excluded.state_json`,
		state.UserID, blob)
	return err
}

// LoadBotState reads a user's state, rehydrating the map-valued fields from
// their keyed tables.
func (s *Store) LoadBotState(ctx context.Context, userID string) (*domain.BotState, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT state_json FROM bot_states WHERE user_id = ?`, userID).Scan(&blob)
	if err != nil {
		return nil, err
	}
	var state domain.BotState
	if err := unmarshalJSON(blob, &state); err != nil {
		return nil, err
	}

	state.LastPairSignalTimes, err = s.loadPairSignalTimes(ctx, userID)
	if err != nil {
		return nil, err
	}
	state.PlaybookBCounters, err = s.loadPlaybookBCounters(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SetPairSignalTime atomically updates a single symbol's last-signal
// timestamp without rewriting the whole BotState row (spec.md §9 "atomic
// per-key updates for BotState's map-valued fields").
func (s *Store) SetPairSignalTime(ctx context.Context, userID, symbol string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pair_signal_times (user_id, symbol, last_signal_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, symbol) DO UPDATE SET last_signal_at = excluded.last_signal_at`,
		userID, symbol, at)
	return err
}

func (s *Store) loadPairSignalTimes(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, last_signal_at FROM pair_signal_times WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var symbol string
		var at time.Time
		if err := rows.Scan(&symbol, &at); err != nil {
			return nil, err
		}
		out[symbol] = at
	}
	return out, rows.Err()
}

// IncrementPlaybookBCounter atomically bumps one symbol's session counter.
func (s *Store) IncrementPlaybookBCounter(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playbook_b_counters (user_id, symbol, count) VALUES (?, ?, 1)
		ON CONFLICT(user_id, symbol) DO UPDATE SET count = count + 1`,
		userID, symbol)
	return err
}

// ResetPlaybookBCounters clears every symbol's counter for userID, called on
// session rollover (spec.md §3 "On crossing sessionStartDate... zero... and
// Playbook-B counters").
func (s *Store) ResetPlaybookBCounters(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM playbook_b_counters WHERE user_id = ?`, userID)
	return err
}

func (s *Store) loadPlaybookBCounters(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, count FROM playbook_b_counters WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var symbol string
		var count int
		if err := rows.Scan(&symbol, &count); err != nil {
			return nil, err
		}
		out[symbol] = count
	}
	return out, rows.Err()
}

// SavePosition upserts a position by ID.
func (s *Store) SavePosition(ctx context.Context, p *domain.Position) error {
	blob, err := marshalJSON(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO positions (id, user_id, symbol, status, position_json) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, position_json = excluded.position_json`,
		p.ID, p.UserID, p.Symbol, string(p.Status), blob)
	return err
}

// LoadOpenPositions returns every OPEN position for userID.
func (s *Store) LoadOpenPositions(ctx context.Context, userID string) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position_json FROM positions WHERE user_id = ? AND status = ?`, userID, string(domain.PositionOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Position
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var p domain.Position
		if err := unmarshalJSON(blob, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// InsertTrade appends one immutable closed-position record.
func (s *Store) InsertTrade(ctx context.Context, t *domain.Trade) error {
	blob, err := marshalJSON(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO trades (id, user_id, symbol, date, trade_json) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Symbol, t.Date, blob)
	return err
}

// InsertSignal appends one scan-cycle decision row (spec.md §3 "Signal").
func (s *Store) InsertSignal(ctx context.Context, sig *domain.Signal) error {
	blob, err := marshalJSON(sig)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO signals (id, user_id, symbol, timestamp, signal_json) VALUES (?, ?, ?, ?, ?)`,
		sig.ID, sig.UserID, sig.Symbol, sig.Timestamp, blob)
	return err
}

// InsertAlert appends one notification-log row.
func (s *Store) InsertAlert(ctx context.Context, a *domain.Alert) error {
	blob, err := marshalJSON(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO alerts (id, user_id, level, timestamp, alert_json) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Level), a.Timestamp, blob)
	return err
}
