package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
)

// ActivityFilter narrows ListActivities. Zero fields match everything.
type ActivityFilter struct {
	Since    time.Time
	Until    time.Time
	Platform model.Platform
	BotID    string
	Limit    int
}

// RecordActivity stores an activity and, when it names a bot account, updates
// that account's counters and success rate in the same transaction.
func (s *SQLiteStore) RecordActivity(ctx context.Context, a model.Activity) (int64, error) {
	if a.At.IsZero() {
		a.At = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin activity: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO activities (action_id, member, bot_id, activity_type, platform, target_url, success, response_time, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ActionID, a.Member, a.BotID, a.Kind, string(a.Platform), a.Target,
		boolInt(a.Success), a.ResponseTime.Seconds(), a.Details, formatTS(a.At),
	)
	if err != nil {
		return 0, fmt.Errorf("insert activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("activity id: %w", err)
	}

	if a.BotID != "" {
		failed := 0
		if !a.Success {
			failed = 1
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bot_accounts SET
				total_actions  = total_actions + 1,
				failed_actions = failed_actions + ?,
				success_rate   = CAST(total_actions + 1 - failed_actions - ? AS REAL) * 100.0 / (total_actions + 1),
				updated_at     = ?
			 WHERE id = ?`,
			failed, failed, formatTS(a.At), a.BotID,
		); err != nil {
			return 0, fmt.Errorf("update bot counters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit activity: %w", err)
	}
	return id, nil
}

// ListActivities returns matching activities, newest first.
func (s *SQLiteStore) ListActivities(ctx context.Context, f ActivityFilter) ([]model.Activity, error) {
	query := `SELECT id, action_id, member, bot_id, activity_type, platform, target_url, success, response_time, details, created_at
		FROM activities WHERE 1 = 1`
	var args []any
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTS(f.Since))
	}
	if !f.Until.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, formatTS(f.Until))
	}
	if f.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, string(f.Platform))
	}
	if f.BotID != "" {
		query += ` AND bot_id = ?`
		args = append(args, f.BotID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	out := []model.Activity{}
	for rows.Next() {
		var (
			a        model.Activity
			platform string
			success  int
			seconds  float64
			at       string
		)
		if err := rows.Scan(&a.ID, &a.ActionID, &a.Member, &a.BotID, &a.Kind, &platform,
			&a.Target, &success, &seconds, &a.Details, &at); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Platform = model.Platform(platform)
		a.Success = success != 0
		a.ResponseTime = time.Duration(seconds * float64(time.Second))
		a.At = parseTS(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// PurgeActivitiesBefore deletes activities older than cutoff.
func (s *SQLiteStore) PurgeActivitiesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE created_at < ?`, formatTS(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge activities: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PlatformStats aggregates activities of one platform.
type PlatformStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
}

// Stats aggregates activities over a time range.
type Stats struct {
	From            time.Time                        `json:"from"`
	To              time.Time                        `json:"to"`
	Total           int                              `json:"total_activities"`
	Successful      int                              `json:"successful_activities"`
	Failed          int                              `json:"failed_activities"`
	SuccessRate     float64                          `json:"success_rate"`
	AvgResponseTime float64                          `json:"avg_response_time"`
	Platforms       map[model.Platform]PlatformStats `json:"platform_breakdown"`
}

// StatsBetween aggregates activities created in [from, to).
func (s *SQLiteStore) StatsBetween(ctx context.Context, from, to time.Time) (Stats, error) {
	st := Stats{From: from, To: to, Platforms: map[model.Platform]PlatformStats{}}

	var avg sql.NullFloat64
	var successful sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(success), AVG(response_time) FROM activities WHERE created_at >= ? AND created_at < ?`,
		formatTS(from), formatTS(to),
	).Scan(&st.Total, &successful, &avg); err != nil {
		return Stats{}, fmt.Errorf("aggregate activities: %w", err)
	}
	st.Successful = int(successful.Int64)
	st.Failed = st.Total - st.Successful
	st.AvgResponseTime = avg.Float64
	if st.Total > 0 {
		st.SuccessRate = float64(st.Successful) / float64(st.Total) * 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, COUNT(*), SUM(success) FROM activities
		 WHERE created_at >= ? AND created_at < ? GROUP BY platform`,
		formatTS(from), formatTS(to),
	)
	if err != nil {
		return Stats{}, fmt.Errorf("platform breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			platform string
			ps       PlatformStats
		)
		if err := rows.Scan(&platform, &ps.Total, &ps.Successful); err != nil {
			return Stats{}, fmt.Errorf("scan breakdown: %w", err)
		}
		st.Platforms[model.Platform(platform)] = ps
	}
	return st, rows.Err()
}

// DailyStats aggregates the calendar day containing day, in day's location.
func (s *SQLiteStore) DailyStats(ctx context.Context, day time.Time) (Stats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return s.StatsBetween(ctx, start, start.AddDate(0, 0, 1))
}

const actionColumns = `id, platform, type, target, content, bot_id, member, callback, status, result_id, error, created_at, updated_at`

// SaveAction inserts a newly submitted action.
func (s *SQLiteStore) SaveAction(ctx context.Context, a model.Action) error {
	now := s.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Platform), string(a.Type), a.Target, a.Content, a.BotID, a.Member, a.Callback,
		string(a.Status), a.ResultID, a.Error, formatTS(a.CreatedAt), formatTS(a.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("action %s: %w", a.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// UpdateAction stores the execution outcome fields of an action.
func (s *SQLiteStore) UpdateAction(ctx context.Context, a model.Action) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = ?, bot_id = ?, result_id = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(a.Status), a.BotID, a.ResultID, a.Error, formatTS(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	return affected(res, "action "+a.ID)
}

// DeleteAction removes an action.
func (s *SQLiteStore) DeleteAction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	return affected(res, "action "+id)
}

// GetAction returns the action with the given ID.
func (s *SQLiteStore) GetAction(ctx context.Context, id string) (model.Action, error) {
	var (
		a                      model.Action
		platform, kind, status string
		created, updated       string
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id).Scan(
		&a.ID, &platform, &kind, &a.Target, &a.Content, &a.BotID, &a.Member, &a.Callback,
		&status, &a.ResultID, &a.Error, &created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Action{}, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Action{}, fmt.Errorf("get action: %w", err)
	}
	a.Platform = model.Platform(platform)
	a.Type = model.ActionType(kind)
	a.Status = model.ActionStatus(status)
	a.CreatedAt = parseTS(created)
	a.UpdatedAt = parseTS(updated)
	return a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
