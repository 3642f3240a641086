// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions that touch the filesystem accept context.Context first.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Platform names with built-in driver profiles.
const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTwitter   = "twitter"
)

// clockLayout is the HH:MM format used for operating hours.
const clockLayout = "15:04"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9090".
	Addr string `koanf:"addr"`

	// DataDir holds the database, backups and analytics exports.
	DataDir string `koanf:"data_dir"`

	// LogsDir holds the rotating log files.
	LogsDir string `koanf:"logs_dir"`

	// ConfigDir holds settings files managed at runtime.
	ConfigDir string `koanf:"config_dir"`

	// QueueSize bounds the in-memory action queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of action workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many action IDs are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	Schedule  Schedule            `koanf:"schedule"`
	Safety    Safety              `koanf:"safety"`
	Platforms map[string]Platform `koanf:"platforms"`
	System    System              `koanf:"system"`
	Logging   Logging             `koanf:"logging"`
}

// Schedule configures operating hours and breaks.
type Schedule struct {
	Enabled       bool          `koanf:"enabled"`
	StartTime     string        `koanf:"start_time"`
	EndTime       string        `koanf:"end_time"`
	CheckInterval time.Duration `koanf:"check_interval"`
	Breaks        []Break       `koanf:"breaks"`
}

// Break pauses operations for BreakMinutes after AfterMinutes of running.
type Break struct {
	AfterMinutes int  `koanf:"after_minutes"`
	BreakMinutes int  `koanf:"break_minutes"`
	Enabled      bool `koanf:"enabled"`
}

// Safety holds operation limits and detection settings.
type Safety struct {
	MaxPostsPerDay              int           `koanf:"max_posts_per_day"`
	MinDelayBetweenActions      time.Duration `koanf:"min_delay_between_actions"`
	MaxActionsPerHour           int           `koanf:"max_actions_per_hour"`
	MaxConcurrentActions        int           `koanf:"max_concurrent_actions"`
	SuspiciousActivityThreshold int           `koanf:"suspicious_activity_threshold"`
	AutoSuspendOnDetection      bool          `koanf:"auto_suspend_on_detection"`
	RateLimiting                bool          `koanf:"rate_limiting"`
	Suspension                  time.Duration `koanf:"suspension"`
	WindowSize                  int           `koanf:"window_size"`
}

// Platform configures the simulated driver of one platform.
type Platform struct {
	SuccessRate       float64       `koanf:"success_rate"`
	HealthRate        float64       `koanf:"health_rate"`
	AccountHealthRate float64       `koanf:"account_health_rate"`
	MinLatency        time.Duration `koanf:"min_latency"`
	MaxLatency        time.Duration `koanf:"max_latency"`
	RequestsPerHour   int           `koanf:"requests_per_hour"`
	RequestsPerDay    int           `koanf:"requests_per_day"`
	ActionsPerMinute  int           `koanf:"actions_per_minute"`
}

// System caps the number of managed entities.
type System struct {
	MaxMembers     int `koanf:"max_members"`
	MaxBotAccounts int `koanf:"max_bot_accounts"`
}

// Logging configures rotation of the three log files under LogsDir.
type Logging struct {
	System   LogFile `koanf:"system"`
	Errors   LogFile `koanf:"errors"`
	Activity LogFile `koanf:"activity"`
}

// LogFile rotates one log file by size.
type LogFile struct {
	MaxSizeMB  int  `koanf:"max_size_mb"`
	MaxBackups int  `koanf:"max_backups"`
	MaxAgeDays int  `koanf:"max_age_days"`
	Compress   bool `koanf:"compress"`
}

// New creates a Config populated with defaults. The context is accepted
// first to satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:    "info",
		Addr:        ":9090",
		DataDir:     "data",
		LogsDir:     "logs",
		ConfigDir:   "config",
		QueueSize:   10_000,
		WorkerCount: runtime.NumCPU(),
		DedupeSize:  100_000,
		Schedule: Schedule{
			Enabled:       true,
			StartTime:     "06:00",
			EndTime:       "23:00",
			CheckInterval: time.Minute,
			Breaks: []Break{
				{AfterMinutes: 60, BreakMinutes: 15, Enabled: true},
			},
		},
		Safety: Safety{
			MaxPostsPerDay:              50,
			MinDelayBetweenActions:      30 * time.Second,
			MaxActionsPerHour:           20,
			MaxConcurrentActions:        5,
			SuspiciousActivityThreshold: 10,
			AutoSuspendOnDetection:      true,
			RateLimiting:                true,
			Suspension:                  30 * time.Minute,
			WindowSize:                  1000,
		},
		Platforms: map[string]Platform{
			PlatformFacebook: {
				SuccessRate: 0.90, HealthRate: 0.95, AccountHealthRate: 0.75,
				MinLatency: time.Second, MaxLatency: 3 * time.Second,
				RequestsPerHour: 200, RequestsPerDay: 5000, ActionsPerMinute: 60,
			},
			PlatformInstagram: {
				SuccessRate: 0.85, HealthRate: 0.95, AccountHealthRate: 0.75,
				MinLatency: time.Second, MaxLatency: 4 * time.Second,
				RequestsPerHour: 150, RequestsPerDay: 4000, ActionsPerMinute: 50,
			},
			PlatformTwitter: {
				SuccessRate: 0.80, HealthRate: 0.95, AccountHealthRate: 0.75,
				MinLatency: time.Second, MaxLatency: 2 * time.Second,
				RequestsPerHour: 300, RequestsPerDay: 10000, ActionsPerMinute: 80,
			},
		},
		System: System{
			MaxMembers:     100,
			MaxBotAccounts: 500,
		},
		Logging: Logging{
			System:   LogFile{MaxSizeMB: 10, MaxBackups: 5},
			Errors:   LogFile{MaxSizeMB: 5, MaxBackups: 3},
			Activity: LogFile{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Compress: true},
		},
	}
}

// Validate reports the first invalid setting, wrapped with ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("addr must not be empty: %w", ErrInvalidConfig)
	case c.DataDir == "":
		return fmt.Errorf("data_dir must not be empty: %w", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("queue_size must be positive: %w", ErrInvalidConfig)
	case c.WorkerCount < 1:
		return fmt.Errorf("worker_count must be positive: %w", ErrInvalidConfig)
	case c.DedupeSize < 1:
		return fmt.Errorf("dedupe_size must be positive: %w", ErrInvalidConfig)
	case c.Safety.MaxActionsPerHour < 1:
		return fmt.Errorf("safety.max_actions_per_hour must be positive: %w", ErrInvalidConfig)
	case c.Safety.MaxPostsPerDay < 1:
		return fmt.Errorf("safety.max_posts_per_day must be positive: %w", ErrInvalidConfig)
	case c.Safety.MinDelayBetweenActions < 0:
		return fmt.Errorf("safety.min_delay_between_actions must not be negative: %w", ErrInvalidConfig)
	case c.Safety.Suspension < 0:
		return fmt.Errorf("safety.suspension must not be negative: %w", ErrInvalidConfig)
	case c.Safety.MaxConcurrentActions < 1:
		return fmt.Errorf("safety.max_concurrent_actions must be positive: %w", ErrInvalidConfig)
	case c.Safety.SuspiciousActivityThreshold < 1:
		return fmt.Errorf("safety.suspicious_activity_threshold must be positive: %w", ErrInvalidConfig)
	case c.Safety.WindowSize < 1:
		return fmt.Errorf("safety.window_size must be positive: %w", ErrInvalidConfig)
	}
	for name, f := range map[string]LogFile{"system": c.Logging.System, "errors": c.Logging.Errors, "activity": c.Logging.Activity} {
		if f.MaxSizeMB < 0 || f.MaxBackups < 0 || f.MaxAgeDays < 0 {
			return fmt.Errorf("logging.%s values must not be negative: %w", name, ErrInvalidConfig)
		}
	}
	if _, err := ParseClock(c.Schedule.StartTime); err != nil {
		return fmt.Errorf("schedule.start_time: %w", err)
	}
	if _, err := ParseClock(c.Schedule.EndTime); err != nil {
		return fmt.Errorf("schedule.end_time: %w", err)
	}
	for i, b := range c.Schedule.Breaks {
		if b.Enabled && (b.AfterMinutes < 1 || b.BreakMinutes < 1) {
			return fmt.Errorf("schedule.breaks[%d] needs positive minutes: %w", i, ErrInvalidConfig)
		}
	}
	for name, p := range c.Platforms {
		for _, rate := range []float64{p.SuccessRate, p.HealthRate, p.AccountHealthRate} {
			if rate < 0 || rate > 1 {
				return fmt.Errorf("platforms.%s rates must be within [0,1]: %w", name, ErrInvalidConfig)
			}
		}
		if p.MaxLatency < p.MinLatency {
			return fmt.Errorf("platforms.%s max_latency below min_latency: %w", name, ErrInvalidConfig)
		}
	}
	return nil
}

// ParseClock parses an HH:MM value into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, ErrInvalidConfig)
	}
	return t.Hour()*60 + t.Minute(), nil
}
