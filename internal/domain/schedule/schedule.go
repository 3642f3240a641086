// Package schedule decides when actions may run: inside operating hours and
// outside breaks. It also runs periodic maintenance tasks.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/smmbot/pkg/logger"
	"github.com/okian/smmbot/pkg/metrics"
)

const defaultCheckInterval = time.Minute

// ErrDuplicateTask is returned when a task name is registered twice.
var ErrDuplicateTask = errors.New("task already registered")

// Break pauses operations for Length once the scheduler has been running
// for After.
type Break struct {
	After   time.Duration
	Length  time.Duration
	Enabled bool
}

// Config describes operating hours as minutes after midnight. When Start is
// greater than End the window wraps midnight. A disabled config keeps the
// scheduler always active.
type Config struct {
	Enabled bool
	Start   int
	End     int
	Breaks  []Break
}

// DefaultConfig is 06:00 to 23:00 with a 15 minute break every hour.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Start:   6 * 60,
		End:     23 * 60,
		Breaks:  []Break{{After: time.Hour, Length: 15 * time.Minute, Enabled: true}},
	}
}

// TaskFunc is a periodic job.
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	lastRun  time.Time
	lastErr  error
	runs     int
}

// TaskState is the public view of a task.
type TaskState struct {
	Name     string     `json:"name"`
	Interval string     `json:"interval"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	Runs     int        `json:"runs"`
}

// State is a snapshot of the scheduler.
type State struct {
	Enabled      bool        `json:"enabled"`
	Active       bool        `json:"active"`
	WithinHours  bool        `json:"within_hours"`
	OnBreak      bool        `json:"on_break"`
	BreakUntil   *time.Time  `json:"break_until,omitempty"`
	RunningSince *time.Time  `json:"running_since,omitempty"`
	Tasks        []TaskState `json:"tasks"`
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithConfig sets the initial configuration.
func WithConfig(c Config) Option {
	return func(s *Scheduler) {
		s.cfg = c
	}
}

// WithCheckInterval sets how often Start ticks.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for Start.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler tracks operating hours and breaks and runs due tasks.
type Scheduler struct {
	mu           sync.Mutex
	cfg          Config
	tasks        []*task
	active       bool
	ticked       bool
	within       bool
	runningSince time.Time
	breakUntil   time.Time
	changed      chan struct{}

	log      logger.Logger
	now      func() time.Time
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. It is inactive until the first Tick.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      DefaultConfig(),
		changed:  make(chan struct{}),
		log:      logger.Nop(),
		now:      time.Now,
		interval: defaultCheckInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetConfig replaces the configuration; it applies on the next Tick.
func (s *Scheduler) SetConfig(c Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = c
}

// AddTask registers fn to run every interval while the scheduler is active.
// A new task is due on the first active tick.
func (s *Scheduler) AddTask(name string, interval time.Duration, fn TaskFunc) error {
	if interval <= 0 || fn == nil {
		return fmt.Errorf("task %q needs a positive interval and a function", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.name == name {
			return fmt.Errorf("%s: %w", name, ErrDuplicateTask)
		}
	}
	s.tasks = append(s.tasks, &task{name: name, interval: interval, fn: fn})
	return nil
}

// WithinHours reports whether t falls inside the operating hours of c.
func WithinHours(c Config, t time.Time) bool {
	if !c.Enabled {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	if c.Start <= c.End {
		return c.Start <= m && m <= c.End
	}
	return m >= c.Start || m <= c.End
}

// Tick advances the scheduler to now and runs due tasks. Tasks run on the
// caller's goroutine, outside the lock.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	cfg := s.cfg
	within := WithinHours(cfg, now)

	var events []string
	if !s.breakUntil.IsZero() && !now.Before(s.breakUntil) {
		s.breakUntil = time.Time{}
		s.runningSince = now
		events = append(events, "break completed, resuming operations")
	}
	if !cfg.Enabled {
		s.breakUntil = time.Time{}
	}
	switch {
	case !within:
		s.runningSince = time.Time{}
	case s.breakUntil.IsZero():
		if s.runningSince.IsZero() {
			s.runningSince = now
		}
		if cfg.Enabled {
			running := now.Sub(s.runningSince)
			for _, b := range cfg.Breaks {
				if b.Enabled && b.After > 0 && running >= b.After {
					s.breakUntil = now.Add(b.Length)
					metrics.RecordScheduleBreak()
					events = append(events, fmt.Sprintf("taking scheduled break for %s", b.Length))
					break
				}
			}
		}
	}
	if within != s.within || !s.ticked {
		if within {
			events = append(events, "inside operating hours")
		} else {
			events = append(events, "outside operating hours, waiting")
		}
	}
	s.within = within
	s.ticked = true

	active := within && s.breakUntil.IsZero()
	if active != s.active {
		s.active = active
		close(s.changed)
		s.changed = make(chan struct{})
	}
	metrics.UpdateScheduleActive(active)

	var due []*task
	if active {
		for _, t := range s.tasks {
			if t.lastRun.IsZero() || now.Sub(t.lastRun) >= t.interval {
				t.lastRun = now
				due = append(due, t)
			}
		}
	}
	s.mu.Unlock()

	for _, e := range events {
		s.log.Info(ctx, e)
	}
	for _, t := range due {
		s.run(ctx, t)
	}
}

func (s *Scheduler) run(ctx context.Context, t *task) {
	s.log.Debug(ctx, "running task", logger.String("task", t.name))
	err := t.fn(ctx)
	metrics.RecordScheduleTaskRun(t.name, err == nil)
	if err != nil {
		s.log.Error(ctx, "task failed", logger.String("task", t.name), logger.Error(err))
	}
	s.mu.Lock()
	t.lastErr = err
	t.runs++
	s.mu.Unlock()
}

// Active reports whether actions may run.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// WaitActive blocks until the scheduler is active or ctx is done.
func (s *Scheduler) WaitActive(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.active {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-ch:
		}
	}
}

// State returns a snapshot.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Enabled:     s.cfg.Enabled,
		Active:      s.active,
		WithinHours: s.within,
		OnBreak:     !s.breakUntil.IsZero(),
		Tasks:       make([]TaskState, 0, len(s.tasks)),
	}
	if st.OnBreak {
		until := s.breakUntil
		st.BreakUntil = &until
	}
	if !s.runningSince.IsZero() {
		since := s.runningSince
		st.RunningSince = &since
	}
	for _, t := range s.tasks {
		ts := TaskState{Name: t.name, Interval: t.interval.String(), Runs: t.runs}
		if !t.lastRun.IsZero() {
			last := t.lastRun
			ts.LastRun = &last
		}
		if t.lastErr != nil {
			ts.LastErr = t.lastErr.Error()
		}
		st.Tasks = append(st.Tasks, ts)
	}
	sort.Slice(st.Tasks, func(i, j int) bool { return st.Tasks[i].Name < st.Tasks[j].Name })
	return st
}

// Start ticks immediately and then every check interval until Stop or ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info(ctx, "scheduler started", logger.Duration("check_interval", s.interval))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(ctx, s.now())
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Tick(ctx, s.now())
			}
		}
	}()
}

// Stop ends the ticking loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
		s.log.Info(context.Background(), "scheduler stopped")
	}
}
