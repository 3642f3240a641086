package repository

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

const backupStampLayout = "20060102_150405"

// BackupPattern matches database backup file names.
const BackupPattern = "smm_bot_backup_*.db"

var backupGlob = glob.MustCompile(BackupPattern)

// exportQueries whitelists the tables ExportCSV accepts. Password hashes
// never leave the database.
var exportQueries = map[string]string{
	"members":         `SELECT ` + memberColumns + ` FROM members ORDER BY username`,
	"member_activity": `SELECT id, username, activity, details, created_at FROM member_activity ORDER BY id`,
	"member_targets":  `SELECT id, username, platform, url, added_at FROM member_targets ORDER BY id`,
	"bot_accounts": `SELECT id, platform, username, email, status, added_date, last_used, success_rate, total_actions, failed_actions
		FROM bot_accounts ORDER BY platform, username`,
	"activities":    `SELECT * FROM activities ORDER BY id`,
	"actions":       `SELECT ` + actionColumns + ` FROM actions ORDER BY created_at`,
	"system_logs":   `SELECT * FROM system_logs ORDER BY id`,
	"safety_events": `SELECT * FROM safety_events ORDER BY id`,
}

// ExportTables lists the tables ExportCSV accepts.
func ExportTables() []string {
	return []string{"activities", "actions", "bot_accounts", "member_activity", "member_targets", "members", "safety_events", "system_logs"}
}

// ValidTable reports an ErrInvalidTable error unless ExportCSV accepts table.
func ValidTable(table string) error {
	if _, ok := exportQueries[table]; !ok {
		return fmt.Errorf("%q: %w", table, ErrInvalidTable)
	}
	return nil
}

// ExportCSV writes table to w as CSV with a header row and returns the number
// of data rows written.
func (s *SQLiteStore) ExportCSV(ctx context.Context, table string, w io.Writer) (int, error) {
	if err := ValidTable(table); err != nil {
		return 0, err
	}
	query := exportQueries[table]
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("export columns: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	record := make([]string, len(cols))
	n := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return n, fmt.Errorf("scan %s: %w", table, err)
		}
		for i, v := range values {
			record[i] = v.String
		}
		if err := cw.Write(record); err != nil {
			return n, fmt.Errorf("write row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

// Backup writes a consistent copy of the database into dir and returns its
// path.
func (s *SQLiteStore) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := strings.Replace(BackupPattern, "*", s.now().Format(backupStampLayout), 1)
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("backup %s: %w", name, ErrAlreadyExists)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", name, err)
	}
	return path, nil
}

// CleanupBackups removes database backups in dir last modified before
// now minus days and returns how many were removed.
func CleanupBackups(dir string, days int, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read backups: %w", err)
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !backupGlob.Match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
