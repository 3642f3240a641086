// Package repository persists members, bot accounts, actions and activities
// in SQLite.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// tsLayout is fixed width so stored timestamps sort as strings.
const tsLayout = "2006-01-02T15:04:05.000000Z"

const defaultBusyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS members (
	username    TEXT PRIMARY KEY,
	email       TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	plan        TEXT NOT NULL DEFAULT 'basic',
	status      TEXT NOT NULL DEFAULT 'active',
	permissions TEXT NOT NULL DEFAULT '[]',
	join_date   TEXT NOT NULL,
	last_login  TEXT,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS member_activity (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL REFERENCES members(username) ON DELETE CASCADE,
	activity   TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_member_activity_user ON member_activity(username, created_at);
CREATE TABLE IF NOT EXISTS member_targets (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	username   TEXT NOT NULL REFERENCES members(username) ON DELETE CASCADE,
	platform   TEXT NOT NULL,
	url        TEXT NOT NULL,
	added_at   TEXT NOT NULL,
	UNIQUE(username, platform, url)
);
CREATE TABLE IF NOT EXISTS bot_accounts (
	id             TEXT PRIMARY KEY,
	platform       TEXT NOT NULL,
	username       TEXT NOT NULL,
	password_hash  TEXT NOT NULL,
	email          TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active',
	added_date     TEXT NOT NULL,
	last_used      TEXT,
	success_rate   REAL NOT NULL DEFAULT 100.0,
	total_actions  INTEGER NOT NULL DEFAULT 0,
	failed_actions INTEGER NOT NULL DEFAULT 0,
	updated_at     TEXT NOT NULL,
	UNIQUE(platform, username)
);
CREATE TABLE IF NOT EXISTS activities (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	action_id     TEXT NOT NULL DEFAULT '',
	member        TEXT NOT NULL DEFAULT '',
	bot_id        TEXT NOT NULL DEFAULT '',
	activity_type TEXT NOT NULL,
	platform      TEXT NOT NULL,
	target_url    TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL DEFAULT 1,
	response_time REAL NOT NULL DEFAULT 0,
	details       TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at);
CREATE TABLE IF NOT EXISTS actions (
	id         TEXT PRIMARY KEY,
	platform   TEXT NOT NULL,
	type       TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	bot_id     TEXT NOT NULL DEFAULT '',
	member     TEXT NOT NULL DEFAULT '',
	callback   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	result_id  TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS system_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	log_level  TEXT NOT NULL,
	module     TEXT NOT NULL,
	message    TEXT NOT NULL,
	details    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS safety_events (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	event            TEXT NOT NULL,
	action           TEXT NOT NULL DEFAULT '',
	duration_seconds REAL NOT NULL DEFAULT 0,
	details          TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL
);
`

// SQLiteStore is the sqlite-backed store.
type SQLiteStore struct {
	db          *sql.DB
	path        string
	now         func() time.Time
	busyTimeout time.Duration
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is empty")
	}
	s := &SQLiteStore{
		path:        path,
		now:         time.Now,
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers; sqlite allows a single writer anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s.db = db
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying DB.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(v string) time.Time {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTS(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTS(*t), Valid: true}
}

func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTS(v.String)
	return &t
}

// affected turns a zero-row update into ErrNotFound.
func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
