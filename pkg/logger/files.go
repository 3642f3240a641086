package logger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
)

const (
	exportPermission = 0o644
	maxLineBytes     = 1 << 20
)

// rotatedPattern matches backups written by lumberjack, e.g.
// system-2024-01-02T15-04-05.000.log or the same name with .gz.
var rotatedPattern = glob.MustCompile("{system,errors,activity}-*.log*")

// Stats summarizes one log file.
type Stats struct {
	TotalEntries int       `json:"total_entries"`
	Errors       int       `json:"errors"`
	Warnings     int       `json:"warnings"`
	Info         int       `json:"info"`
	LastActivity time.Time `json:"last_activity"`
}

type fileRecord map[string]any

func (r fileRecord) level() string {
	s, _ := r["level"].(string)
	return s
}

func (r fileRecord) time() time.Time {
	s, _ := r["time"].(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// checkKind refuses anything but the three log files Init writes.
func checkKind(kind string) error {
	switch kind {
	case SystemLog, ErrorsLog, ActivityLog:
		return nil
	}
	return fmt.Errorf("%q: %w", kind, ErrUnknownKind)
}

// readRecords decodes a JSON-lines log file, skipping lines that are not JSON.
func readRecords(path string, fn func(fileRecord)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", filepath.Base(path), ErrLogNotFound)
		}
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		var rec fileRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		fn(rec)
	}
	return sc.Err()
}

// LogStats counts entries by level in <dir>/<kind>.log.
func LogStats(dir, kind string) (Stats, error) {
	var st Stats
	if err := checkKind(kind); err != nil {
		return st, err
	}
	err := readRecords(filepath.Join(dir, kind+".log"), func(rec fileRecord) {
		st.TotalEntries++
		switch rec.level() {
		case "ERROR":
			st.Errors++
		case "WARN":
			st.Warnings++
		default:
			st.Info++
		}
		if t := rec.time(); t.After(st.LastActivity) {
			st.LastActivity = t
		}
	})
	return st, err
}

// ExportLogs writes the records of <dir>/<kind>.log to a new export file in
// dir and returns its path. format is "json" or "text".
func ExportLogs(dir, kind, format string, now time.Time) (string, error) {
	if err := checkKind(kind); err != nil {
		return "", err
	}
	var ext string
	switch format {
	case "json":
		ext = "json"
	case "text":
		ext = "txt"
	default:
		return "", fmt.Errorf("%q: %w", format, ErrUnknownFormat)
	}

	var records []fileRecord
	if err := readRecords(filepath.Join(dir, kind+".log"), func(rec fileRecord) {
		records = append(records, rec)
	}); err != nil {
		return "", err
	}

	out := filepath.Join(dir, fmt.Sprintf("export_%s_%s.%s", kind, now.Format("20060102_150405"), ext))
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, exportPermission)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []fileRecord{}
		}
		if err := enc.Encode(records); err != nil {
			return "", fmt.Errorf("encode export: %w", err)
		}
	} else {
		for _, rec := range records {
			msg, _ := rec["msg"].(string)
			fmt.Fprintf(w, "%s - %s\n", rec.time().Format(time.RFC3339), msg)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return out, nil
}

// CleanupOldLogs removes rotated log files in dir last modified more than
// days ago. It returns the number of files removed.
func CleanupOldLogs(dir string, days int, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read logs dir: %w", err)
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !rotatedPattern.Match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}
