package worker

import (
	"time"

	"github.com/okian/smmbot/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithActivityLogger sets where executed actions are logged.
func WithActivityLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.activity = l
		}
	}
}

// WithPermitRetry sets how often and for how long a worker retries a permit
// refused for a transient reason before rejecting the action.
func WithPermitRetry(every, upTo time.Duration) Option {
	return func(w *InMemoryWorker) {
		if every > 0 {
			w.retryEvery = every
		}
		if upTo >= 0 {
			w.retryUpTo = upTo
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *InMemoryWorker) {
		if now != nil {
			w.now = now
		}
	}
}
