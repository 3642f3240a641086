package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
)

const botColumns = `id, platform, username, password_hash, email, status, added_date, last_used, success_rate, total_actions, failed_actions`

// BotFilter narrows ListBots. Zero fields match everything.
type BotFilter struct {
	Platform model.Platform
	Status   model.BotStatus
}

// AddBot inserts a bot account. The ID must be unique and so must the
// platform and username pair.
func (s *SQLiteStore) AddBot(ctx context.Context, b model.BotAccount) error {
	if b.AddedAt.IsZero() {
		b.AddedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_accounts (`+botColumns+`, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.Platform), b.Username, b.PasswordHash, b.Email, string(b.Status),
		formatTS(b.AddedAt), nullTS(b.LastUsed), b.SuccessRate, b.TotalActions, b.FailedActions,
		formatTS(s.now()),
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("bot %s: %w", b.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert bot: %w", err)
	}
	return nil
}

func scanBot(row scanner) (model.BotAccount, error) {
	var (
		b                model.BotAccount
		platform, status string
		added            string
		lastUsed         sql.NullString
	)
	if err := row.Scan(&b.ID, &platform, &b.Username, &b.PasswordHash, &b.Email, &status,
		&added, &lastUsed, &b.SuccessRate, &b.TotalActions, &b.FailedActions); err != nil {
		return model.BotAccount{}, err
	}
	b.Platform = model.Platform(platform)
	b.Status = model.BotStatus(status)
	b.AddedAt = parseTS(added)
	b.LastUsed = parseNullTS(lastUsed)
	return b, nil
}

// GetBot returns the bot account with the given ID.
func (s *SQLiteStore) GetBot(ctx context.Context, id string) (model.BotAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+botColumns+` FROM bot_accounts WHERE id = ?`, id)
	b, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BotAccount{}, fmt.Errorf("bot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.BotAccount{}, fmt.Errorf("get bot: %w", err)
	}
	return b, nil
}

// ListBots returns bot accounts ordered by platform then username.
func (s *SQLiteStore) ListBots(ctx context.Context, f BotFilter) ([]model.BotAccount, error) {
	query := `SELECT ` + botColumns + ` FROM bot_accounts WHERE 1 = 1`
	var args []any
	if f.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, string(f.Platform))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY platform ASC, username ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	out := []model.BotAccount{}
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountBots returns the number of stored bot accounts.
func (s *SQLiteStore) CountBots(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bots: %w", err)
	}
	return n, nil
}

// UpdateBotStatus changes a bot account's status.
func (s *SQLiteStore) UpdateBotStatus(ctx context.Context, id string, status model.BotStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bot_accounts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTS(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("update bot: %w", err)
	}
	return affected(res, "bot "+id)
}

// RemoveBot deletes a bot account.
func (s *SQLiteStore) RemoveBot(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bot: %w", err)
	}
	return affected(res, "bot "+id)
}

// RemoveBotsByStatus deletes every bot account in status and returns how many
// were removed.
func (s *SQLiteStore) RemoveBotsByStatus(ctx context.Context, status model.BotStatus) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_accounts WHERE status = ?`, string(status))
	if err != nil {
		return 0, fmt.Errorf("delete bots: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MarkBotUsed stamps the last use of a bot account.
func (s *SQLiteStore) MarkBotUsed(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bot_accounts SET last_used = ?, updated_at = ? WHERE id = ?`,
		formatTS(at), formatTS(at), id,
	)
	if err != nil {
		return fmt.Errorf("mark bot used: %w", err)
	}
	return affected(res, "bot "+id)
}

// RotateBot picks the least recently used active account of platform and
// marks it used at the given time. Accounts never used come first.
func (s *SQLiteStore) RotateBot(ctx context.Context, platform model.Platform, at time.Time) (model.BotAccount, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.BotAccount{}, fmt.Errorf("begin rotation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+botColumns+` FROM bot_accounts WHERE platform = ? AND status = ?
		 ORDER BY last_used IS NOT NULL, last_used ASC, added_date ASC, id ASC LIMIT 1`,
		string(platform), string(model.BotActive),
	)
	b, err := scanBot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BotAccount{}, fmt.Errorf("active %s bot: %w", platform, ErrNotFound)
	}
	if err != nil {
		return model.BotAccount{}, fmt.Errorf("select bot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bot_accounts SET last_used = ?, updated_at = ? WHERE id = ?`,
		formatTS(at), formatTS(at), b.ID,
	); err != nil {
		return model.BotAccount{}, fmt.Errorf("mark bot used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.BotAccount{}, fmt.Errorf("commit rotation: %w", err)
	}
	used := at.UTC()
	b.LastUsed = &used
	return b, nil
}
