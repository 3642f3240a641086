package logger

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation describes size-based rotation for a single log file.
type Rotation struct {
	MaxSizeMB  int // rotate after this many megabytes
	MaxBackups int // rotated files to keep
	MaxAgeDays int // 0 keeps rotated files regardless of age
	Compress   bool
}

type options struct {
	dir      string
	console  io.Writer
	system   Rotation
	errors   Rotation
	activity Rotation
}

func defaultOptions() options {
	return options{
		console:  os.Stdout,
		system:   Rotation{MaxSizeMB: 10, MaxBackups: 5},
		errors:   Rotation{MaxSizeMB: 5, MaxBackups: 3},
		activity: Rotation{MaxSizeMB: 10, MaxBackups: 5},
	}
}

// Option applies a configuration option to Init.
type Option func(*options)

// WithDir enables the rotating file sinks under dir.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithConsole redirects console output.
func WithConsole(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.console = w
		}
	}
}

// WithSystemRotation overrides rotation for system.log.
func WithSystemRotation(r Rotation) Option {
	return func(o *options) {
		if r.MaxSizeMB > 0 {
			o.system = r
		}
	}
}

// WithErrorsRotation overrides rotation for errors.log.
func WithErrorsRotation(r Rotation) Option {
	return func(o *options) {
		if r.MaxSizeMB > 0 {
			o.errors = r
		}
	}
}

// WithActivityRotation overrides rotation for activity.log.
func WithActivityRotation(r Rotation) Option {
	return func(o *options) {
		if r.MaxSizeMB > 0 {
			o.activity = r
		}
	}
}

func newRotator(path string, r Rotation) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
	}
}
