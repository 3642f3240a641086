package analytics

import (
	"context"
	"time"

	"github.com/okian/smmbot/pkg/logger"
)

// Probe reports the health of one component. A nil error means healthy.
type Probe func(ctx context.Context) error

// Option applies a configuration option to the Analytics.
type Option func(*Analytics)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Analytics) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analytics) {
		if l != nil {
			a.log = l
		}
	}
}

// WithComponent adds a component to the system health report.
func WithComponent(name string, p Probe) Option {
	return func(a *Analytics) {
		a.components = append(a.components, component{name: name, probe: p})
	}
}

// WithStatus sets the function reporting the daemon status on the dashboard.
func WithStatus(fn func() string) Option {
	return func(a *Analytics) {
		if fn != nil {
			a.status = fn
		}
	}
}

// WithStartTime sets the process start used for uptime.
func WithStartTime(t time.Time) Option {
	return func(a *Analytics) {
		a.started = t
	}
}

// WithMinFreeDisk sets the free space below which health recommends cleanup.
func WithMinFreeDisk(bytes uint64) Option {
	return func(a *Analytics) {
		a.minFree = bytes
	}
}
