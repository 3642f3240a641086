package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/otiai10/copy"
	"gopkg.in/yaml.v3"
)

const backupStampLayout = "20060102_150405"

// MainFile is the settings file that holds the daemon configuration.
const MainFile = "smmbot.yaml"

// Backup describes one saved copy of a settings file.
type Backup struct {
	Filename string    `json:"filename"`
	Created  time.Time `json:"created"`
	Size     int64     `json:"size"`
}

// Settings manages YAML settings files in a config directory and their
// timestamped backups.
type Settings struct {
	configDir string
	backupDir string
	main      string
	now       func() time.Time
}

// SettingsOption applies a configuration option to Settings.
type SettingsOption func(*Settings)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) SettingsOption {
	return func(s *Settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMainFile names the file that UpdateSchedule and UpdateSafetyRules
// edit. It defaults to MainFile.
func WithMainFile(name string) SettingsOption {
	return func(s *Settings) {
		if name != "" {
			s.main = filepath.Base(name)
		}
	}
}

// NewSettings manages files in configDir and keeps backups in backupDir.
func NewSettings(configDir, backupDir string, opts ...SettingsOption) *Settings {
	s := &Settings{
		configDir: configDir,
		backupDir: backupDir,
		main:      MainFile,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Main returns the name of the file holding the daemon configuration.
func (s *Settings) Main() string { return s.main }

func (s *Settings) path(name string) string {
	return filepath.Join(s.configDir, filepath.Base(name))
}

// Load reads a settings file into a generic map.
func (s *Settings) Load(name string) (map[string]any, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrSettingsNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", name, ErrInvalidConfig, err)
	}
	return out, nil
}

// Save backs up the current file, if any, and writes data as YAML.
func (s *Settings) Save(name string, data map[string]any) error {
	if err := os.MkdirAll(s.configDir, dirPermission); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if _, err := s.Backup(name); err != nil {
		return err
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(s.path(name), out, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Backup copies the named file into the backup directory and returns the
// backup's file name. A missing source yields an empty name and no error.
func (s *Settings) Backup(name string) (string, error) {
	src := s.path(name)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	backup := fmt.Sprintf("%s.backup_%s", filepath.Base(name), s.now().Format(backupStampLayout))
	if err := copy.Copy(src, filepath.Join(s.backupDir, backup)); err != nil {
		return "", fmt.Errorf("backup %s: %w", name, err)
	}
	return backup, nil
}

// Restore replaces the named file with a backup, backing up the current
// version first.
func (s *Settings) Restore(name, backup string) error {
	src := filepath.Join(s.backupDir, filepath.Base(backup))
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", backup, ErrBackupNotFound)
		}
		return fmt.Errorf("stat %s: %w", backup, err)
	}
	if _, err := s.Backup(name); err != nil {
		return err
	}
	if err := copy.Copy(src, s.path(name)); err != nil {
		return fmt.Errorf("restore %s: %w", name, err)
	}
	return nil
}

// ListBackups returns the backups of name, newest first.
func (s *Settings) ListBackups(name string) ([]Backup, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Backup{}, nil
		}
		return nil, fmt.Errorf("read backups: %w", err)
	}
	prefix := filepath.Base(name) + ".backup_"
	backups := []Backup{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		created := info.ModTime()
		if t, err := time.ParseInLocation(backupStampLayout, strings.TrimPrefix(e.Name(), prefix), time.Local); err == nil {
			created = t
		}
		backups = append(backups, Backup{Filename: e.Name(), Created: created, Size: info.Size()})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Created.After(backups[j].Created)
	})
	return backups, nil
}

// UpdateSchedule merges partial into the schedule section of the main file.
// Unknown keys and a result that would not load are rejected with
// ErrInvalidConfig and leave the file untouched.
func (s *Settings) UpdateSchedule(partial map[string]any) error {
	return s.updateSection(s.main, "schedule", reflect.TypeFor[Schedule](), partial)
}

// UpdateSafetyRules merges partial into the safety section of the main file.
// Numeric durations are taken as seconds.
func (s *Settings) UpdateSafetyRules(partial map[string]any) error {
	return s.updateSection(s.main, "safety", reflect.TypeFor[Safety](), partial)
}

func (s *Settings) updateSection(name, section string, shape reflect.Type, partial map[string]any) error {
	normalized, err := normalizeSection(section, shape, partial)
	if err != nil {
		return err
	}
	current, err := s.Load(name)
	if err != nil && !errors.Is(err, ErrSettingsNotFound) {
		return err
	}
	if current == nil {
		current = map[string]any{}
	}
	merged, _ := current[section].(map[string]any)
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range normalized {
		merged[k] = v
	}
	current[section] = merged
	current["last_updated"] = s.now().Format(time.RFC3339)
	if err := checkLoadable(current); err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	return s.Save(name, current)
}

var durationType = reflect.TypeFor[time.Duration]()

// normalizeSection keeps only keys that shape declares and rewrites numeric
// durations as seconds.
func normalizeSection(section string, shape reflect.Type, partial map[string]any) (map[string]any, error) {
	fields := make(map[string]reflect.Type, shape.NumField())
	for i := range shape.NumField() {
		f := shape.Field(i)
		if tag := f.Tag.Get("koanf"); tag != "" {
			fields[tag] = f.Type
		}
	}
	out := make(map[string]any, len(partial))
	for k, v := range partial {
		typ, ok := fields[k]
		if !ok {
			return nil, fmt.Errorf("%s.%s is not a setting: %w", section, k, ErrInvalidConfig)
		}
		if typ == durationType {
			d, err := toDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", section, k, err)
			}
			v = d.String()
		}
		out[k] = v
	}
	return out, nil
}

func toDuration(v any) (time.Duration, error) {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second)), nil
	case float32:
		return time.Duration(float64(n) * float64(time.Second)), nil
	case int:
		return time.Duration(n) * time.Second, nil
	case int64:
		return time.Duration(n) * time.Second, nil
	case string:
		d, err := time.ParseDuration(n)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", n, ErrInvalidConfig)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("invalid duration %v: %w", v, ErrInvalidConfig)
	}
}

// checkLoadable writes data to a scratch file and loads it the way the
// daemon would.
func checkLoadable(data map[string]any) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	f, err := os.CreateTemp("", "smmbot-check-*.yaml")
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(out); err != nil {
		_ = f.Close()
		return fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close scratch file: %w", err)
	}
	if _, err := LoadFile(context.Background(), f.Name()); err != nil {
		if errors.Is(err, ErrInvalidConfig) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// CleanupOldBackups removes backups last modified more than days ago.
func (s *Settings) CleanupOldBackups(days int) (int, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read backups: %w", err)
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), ".backup_") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.backupDir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
