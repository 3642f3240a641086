package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/smmbot/internal/adapters/repository"
	"github.com/okian/smmbot/internal/domain/platform"
	"github.com/okian/smmbot/pkg/logger"
)

// Maintenance task names and intervals.
const (
	TaskHealthCheck = "api_health_check"
	TaskBackup      = "database_backup"
	TaskCleanup     = "cleanup"
	TaskDashboard   = "dashboard_snapshot"
	TaskDeadBots    = "dead_bot_cleanup"

	healthCheckEvery = 30 * time.Minute
	backupEvery      = 120 * time.Minute
	cleanupEvery     = 240 * time.Minute
	dashboardEvery   = 5 * time.Minute
	deadBotsEvery    = 60 * time.Minute
)

// Retention in days.
const (
	logRetentionDays      = 7
	backupRetentionDays   = 7
	activityRetentionDays = 90
)

const exportStampLayout = "20060102_150405"

func (s *Service) registerTasks() error {
	tasks := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context) error
	}{
		{TaskHealthCheck, healthCheckEvery, s.checkPlatforms},
		{TaskBackup, backupEvery, s.backupTask},
		{TaskCleanup, cleanupEvery, s.cleanupTask},
		{TaskDashboard, dashboardEvery, s.dashboardTask},
		{TaskDeadBots, deadBotsEvery, s.deadBotsTask},
	}
	for _, t := range tasks {
		if err := s.scheduler.AddTask(t.name, t.interval, t.fn); err != nil {
			return fmt.Errorf("register %s: %w", t.name, err)
		}
	}
	return nil
}

// checkPlatforms probes every registered platform API.
func (s *Service) checkPlatforms(ctx context.Context) error {
	var errs []error
	for _, p := range s.registry.Platforms() {
		h, err := s.registry.CheckHealth(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		if !h.Healthy {
			s.logger.Warn(ctx, "platform unhealthy", logger.String("platform", string(p)), logger.String("status", h.Status))
			errs = append(errs, fmt.Errorf("%s: %w", p, platform.ErrRequestFailed))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) backupTask(ctx context.Context) error {
	path, err := s.store.Backup(ctx, s.backupDir())
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "database backup created", logger.String("path", path))
	return nil
}

// cleanupTask drops old log files, settings backups, database backups and
// activities.
func (s *Service) cleanupTask(ctx context.Context) error {
	now := s.now()
	var errs []error

	logs, err := logger.CleanupOldLogs(s.logsDir, logRetentionDays, now)
	if err != nil {
		errs = append(errs, err)
	}
	settings, err := s.settings.CleanupOldBackups(backupRetentionDays)
	if err != nil {
		errs = append(errs, err)
	}
	dbs, err := repository.CleanupBackups(s.backupDir(), backupRetentionDays, now)
	if err != nil {
		errs = append(errs, err)
	}
	acts, err := s.store.PurgeActivitiesBefore(ctx, now.AddDate(0, 0, -activityRetentionDays))
	if err != nil {
		errs = append(errs, err)
	}

	s.logger.Info(ctx, "cleanup finished",
		logger.Int("logs", logs),
		logger.Int("settings_backups", settings),
		logger.Int("database_backups", dbs),
		logger.Int("activities", acts),
	)
	return errors.Join(errs...)
}

func (s *Service) dashboardTask(ctx context.Context) error {
	_, err := s.analytics.SaveDashboard(ctx)
	return err
}

func (s *Service) deadBotsTask(ctx context.Context) error {
	_, err := s.bots.CleanDead(ctx)
	return err
}

// exportTable writes table as CSV into the analytics exports directory.
func (s *Service) exportTable(ctx context.Context, table string) (string, error) {
	// The name becomes part of the file path.
	if err := repository.ValidTable(table); err != nil {
		return "", err
	}
	dir := s.analytics.ExportDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create exports dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", table, s.now().Format(exportStampLayout)))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	rows, err := s.store.ExportCSV(ctx, table, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	s.logger.Info(ctx, "table exported", logger.String("table", table), logger.Int("rows", rows), logger.String("path", path))
	return path, nil
}
