package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
)

const memberColumns = `username, email, phone, plan, status, permissions, join_date, last_login, updated_at`

// AddMember inserts a new member.
func (s *SQLiteStore) AddMember(ctx context.Context, m model.Member) error {
	perms, err := json.Marshal(m.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.JoinedAt
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO members (`+memberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Username, m.Email, m.Phone, m.Plan, string(m.Status), string(perms),
		formatTS(m.JoinedAt), nullTS(m.LastLogin), formatTS(m.UpdatedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("member %s: %w", m.Username, ErrAlreadyExists)
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (model.Member, error) {
	var (
		m               model.Member
		status, perms   string
		joined, updated string
		lastLogin       sql.NullString
	)
	if err := row.Scan(&m.Username, &m.Email, &m.Phone, &m.Plan, &status, &perms, &joined, &lastLogin, &updated); err != nil {
		return model.Member{}, err
	}
	m.Status = model.MemberStatus(status)
	if err := json.Unmarshal([]byte(perms), &m.Permissions); err != nil {
		return model.Member{}, fmt.Errorf("decode permissions: %w", err)
	}
	m.JoinedAt = parseTS(joined)
	m.UpdatedAt = parseTS(updated)
	m.LastLogin = parseNullTS(lastLogin)
	return m, nil
}

// GetMember returns the member with the given username.
func (s *SQLiteStore) GetMember(ctx context.Context, username string) (model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE username = ?`, username)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Member{}, fmt.Errorf("member %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return model.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// ListMembers returns members ordered by join date. An empty status lists all.
func (s *SQLiteStore) ListMembers(ctx context.Context, status model.MemberStatus) ([]model.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY join_date ASC, username ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := []model.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMembers returns the number of stored members.
func (s *SQLiteStore) CountMembers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// UpdateMemberStatus changes a member's status.
func (s *SQLiteStore) UpdateMemberStatus(ctx context.Context, username string, status model.MemberStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET status = ?, updated_at = ? WHERE username = ?`,
		string(status), formatTS(s.now()), username,
	)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return affected(res, "member "+username)
}

// TouchMemberLogin stamps the member's last login.
func (s *SQLiteStore) TouchMemberLogin(ctx context.Context, username string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET last_login = ?, updated_at = ? WHERE username = ?`,
		formatTS(at), formatTS(at), username,
	)
	if err != nil {
		return fmt.Errorf("update member login: %w", err)
	}
	return affected(res, "member "+username)
}

// DeleteMember removes a member together with its activity and targets.
func (s *SQLiteStore) DeleteMember(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return affected(res, "member "+username)
}

// LogMemberActivity appends to a member's activity log.
func (s *SQLiteStore) LogMemberActivity(ctx context.Context, a model.MemberActivity) (int64, error) {
	if a.At.IsZero() {
		a.At = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO member_activity (username, activity, details, created_at) VALUES (?, ?, ?, ?)`,
		a.Username, a.Kind, a.Details, formatTS(a.At),
	)
	if err != nil {
		return 0, fmt.Errorf("insert member activity: %w", err)
	}
	return res.LastInsertId()
}

// ListMemberActivity returns the newest entries of a member's log first.
func (s *SQLiteStore) ListMemberActivity(ctx context.Context, username string, limit int) ([]model.MemberActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, activity, details, created_at FROM member_activity
		 WHERE username = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		username, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list member activity: %w", err)
	}
	defer rows.Close()

	out := []model.MemberActivity{}
	for rows.Next() {
		var (
			a  model.MemberActivity
			at string
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.Kind, &a.Details, &at); err != nil {
			return nil, fmt.Errorf("scan member activity: %w", err)
		}
		a.At = parseTS(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddTarget stores a target URL for a member.
func (s *SQLiteStore) AddTarget(ctx context.Context, t model.Target) (int64, error) {
	if t.AddedAt.IsZero() {
		t.AddedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO member_targets (username, platform, url, added_at) VALUES (?, ?, ?, ?)`,
		t.Username, string(t.Platform), t.URL, formatTS(t.AddedAt),
	)
	if err != nil {
		if isConstraint(err) {
			return 0, fmt.Errorf("target %s: %w", t.URL, ErrAlreadyExists)
		}
		return 0, fmt.Errorf("insert target: %w", err)
	}
	return res.LastInsertId()
}

// ListTargets returns a member's targets in insertion order.
func (s *SQLiteStore) ListTargets(ctx context.Context, username string) ([]model.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, platform, url, added_at FROM member_targets WHERE username = ? ORDER BY id ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	out := []model.Target{}
	for rows.Next() {
		var (
			t        model.Target
			platform string
			at       string
		)
		if err := rows.Scan(&t.ID, &t.Username, &platform, &t.URL, &at); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.Platform = model.Platform(platform)
		t.AddedAt = parseTS(at)
		out = append(out, t)
	}
	return out, rows.Err()
}
