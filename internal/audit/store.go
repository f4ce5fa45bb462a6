// Package audit persists whitelist mutations and security events in SQLite.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TheMich157/whitelisthub/internal/clock"
)

// Actions recorded by the daemon.
const (
	ActionAdd         = "ADD_WHITELIST"
	ActionRemove      = "REMOVE_WHITELIST"
	ActionStatus      = "STATUS_CHECK"
	ActionAuthFailed  = "AUTH_FAILED"
	ActionRateLimited = "RATE_LIMIT_EXCEEDED"
)

// Event represents a single audit log entry.
type Event struct {
	ID        int64          `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"` // api, bridge, cli
	Action    string         `json:"action"`
	Player    string         `json:"player,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
	IP        string         `json:"ip,omitempty"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Since  time.Time
	Until  time.Time
	Action string
	Player string
	Limit  int
}

// Store provides persistent storage for audit events.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	clock         clock.Clock
	retentionDays int
}

// NewStore opens (creating if needed) the audit database at dbPath.
// Use ":memory:" for an ephemeral store.
func NewStore(dbPath string, retentionDays int, c clock.Clock) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			source TEXT NOT NULL,
			action TEXT NOT NULL,
			player TEXT,
			details TEXT,
			success INTEGER NOT NULL DEFAULT 0,
			ip TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_events(ts);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action);
		CREATE INDEX IF NOT EXISTS idx_audit_player ON audit_events(player);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}
	if c == nil {
		c = &clock.RealClock{}
	}

	return &Store{db: db, clock: c, retentionDays: retentionDays}, nil
}

// Write persists an audit event. A zero timestamp is stamped with the store clock.
func (s *Store) Write(ctx context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock.Now()
	}

	var details []byte
	if evt.Details != nil {
		var err error
		details, err = json.Marshal(evt.Details)
		if err != nil {
			details = []byte("{}")
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (ts, source, action, player, details, success, ip)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.Timestamp.UnixMilli(), evt.Source, evt.Action, evt.Player, string(details), evt.Success, evt.IP)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns events matching f, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if !f.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, f.Until.UnixMilli())
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.Player != "" {
		where = append(where, "player = ? COLLATE NOCASE")
		args = append(args, f.Player)
	}

	query := `SELECT id, ts, source, action, player, details, success, ip FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			evt     Event
			ts      int64
			player  sql.NullString
			details sql.NullString
			ip      sql.NullString
		)
		if err := rows.Scan(&evt.ID, &ts, &evt.Source, &evt.Action, &player, &details, &evt.Success, &ip); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = time.UnixMilli(ts).UTC()
		evt.Player = player.String
		evt.IP = ip.String
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &evt.Details)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// Prune removes events older than the retention period.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE ts < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of events in the store.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

// Ping checks the database is reachable. Used by the health checker.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
