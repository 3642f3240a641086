package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/smmbot/internal/domain/safety"
)

// SystemLog is a persisted system message.
type SystemLog struct {
	ID      int64     `json:"id"`
	Level   string    `json:"log_level"`
	Module  string    `json:"module"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	At      time.Time `json:"created_at"`
}

// AppendSystemLog stores a system message.
func (s *SQLiteStore) AppendSystemLog(ctx context.Context, l SystemLog) error {
	if l.At.IsZero() {
		l.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_logs (log_level, module, message, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.Level, l.Module, l.Message, l.Details, formatTS(l.At),
	)
	if err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}

// ListSystemLogs returns the newest system messages first.
func (s *SQLiteStore) ListSystemLogs(ctx context.Context, limit int) ([]SystemLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, log_level, module, message, details, created_at FROM system_logs
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list system logs: %w", err)
	}
	defer rows.Close()

	out := []SystemLog{}
	for rows.Next() {
		var (
			l  SystemLog
			at string
		)
		if err := rows.Scan(&l.ID, &l.Level, &l.Module, &l.Message, &l.Details, &at); err != nil {
			return nil, fmt.Errorf("scan system log: %w", err)
		}
		l.At = parseTS(at)
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveSafetyEvent persists a safety event. It satisfies safety.EventSink.
func (s *SQLiteStore) SaveSafetyEvent(ctx context.Context, e safety.Event) error {
	if e.At.IsZero() {
		e.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO safety_events (event, action, duration_seconds, details, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Event, e.Action, e.Duration.Seconds(), e.Details, formatTS(e.At),
	)
	if err != nil {
		return fmt.Errorf("insert safety event: %w", err)
	}
	return nil
}

// ListSafetyEvents returns the newest safety events first.
func (s *SQLiteStore) ListSafetyEvents(ctx context.Context, limit int) ([]safety.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event, action, duration_seconds, details, created_at FROM safety_events
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list safety events: %w", err)
	}
	defer rows.Close()

	out := []safety.Event{}
	for rows.Next() {
		var (
			e       safety.Event
			seconds float64
			at      string
		)
		if err := rows.Scan(&e.Event, &e.Action, &seconds, &e.Details, &at); err != nil {
			return nil, fmt.Errorf("scan safety event: %w", err)
		}
		e.Duration = time.Duration(seconds * float64(time.Second))
		e.At = parseTS(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ safety.EventSink = (*SQLiteStore)(nil)
