// Package safety gates action execution behind operation limits and watches
// the recent activity for suspicious bursts.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/pkg/logger"
	"github.com/okian/smmbot/pkg/metrics"
)

// Report statuses.
const (
	StatusNormal            = "normal"
	StatusAttentionRequired = "attention_required"
	StatusHighActivity      = "high_activity"
)

// Finding and event names.
const (
	FindingHighFrequency  = "high_frequency_activity"
	EventProtocolActive   = "safety_protocol_activated"
	EventSuspensionLifted = "suspension_lifted"
	EventMonitorReset     = "monitor_reset"
)

const (
	highActivityPerHour = 50
	recentFindings      = 5
	maxFindings         = 100
	defaultCheckEvery   = time.Minute
	statusLogEvery      = 30 * time.Minute
)

// Rules are the operation limits enforced by the monitor.
type Rules struct {
	MaxPerDay           int
	MaxPerHour          int
	MaxConcurrent       int
	MinDelay            time.Duration
	SuspiciousThreshold int
	AutoSuspend         bool
	RateLimiting        bool
	Suspension          time.Duration
	WindowSize          int
}

// DefaultRules mirrors the shipped configuration.
func DefaultRules() Rules {
	return Rules{
		MaxPerDay:           50,
		MaxPerHour:          20,
		MaxConcurrent:       5,
		MinDelay:            30 * time.Second,
		SuspiciousThreshold: 10,
		AutoSuspend:         true,
		RateLimiting:        true,
		Suspension:          30 * time.Minute,
		WindowSize:          1000,
	}
}

// Entry is one monitored activity.
type Entry struct {
	Kind     string         `json:"type"`
	Platform model.Platform `json:"platform"`
	Details  string         `json:"details,omitempty"`
	At       time.Time      `json:"timestamp"`
}

// Finding is a detected suspicious pattern.
type Finding struct {
	DetectedAt     time.Time `json:"detected_at"`
	Type           string    `json:"type"`
	Count          int       `json:"activities_count"`
	Recommendation string    `json:"recommendation"`
}

// Event is a safety event worth persisting.
type Event struct {
	At       time.Time     `json:"timestamp"`
	Event    string        `json:"event"`
	Action   string        `json:"action,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Details  string        `json:"details,omitempty"`
}

// EventSink persists safety events.
type EventSink interface {
	SaveSafetyEvent(ctx context.Context, e Event) error
}

// Report summarises the monitor state.
type Report struct {
	GeneratedAt        time.Time  `json:"generated_at"`
	TotalMonitored     int        `json:"total_activities_monitored"`
	SuspiciousDetected int        `json:"suspicious_activities_detected"`
	Recent             []Finding  `json:"recent_suspicious_activities"`
	Status             string     `json:"safety_status"`
	Recommendations    []string   `json:"recommendations"`
	LastHour           int        `json:"activities_last_hour"`
	Today              int        `json:"activities_today"`
	InFlight           int        `json:"in_flight"`
	Suspended          bool       `json:"suspended"`
	SuspendedUntil     *time.Time `json:"suspended_until,omitempty"`
}

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithRules sets the initial rules.
func WithRules(r Rules) Option {
	return func(m *Monitor) {
		m.rules = r
	}
}

// WithSink sets where safety events are persisted.
func WithSink(s EventSink) Option {
	return func(m *Monitor) {
		m.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCheckInterval sets how often the background loop runs.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.checkEvery = d
		}
	}
}

// Monitor enforces Rules and detects bursts of activity.
type Monitor struct {
	mu             sync.Mutex
	rules          Rules
	window         []Entry
	findings       []Finding
	detected       int
	suspendedUntil time.Time
	lastUse        map[string]time.Time
	inFlight       int
	day            string
	dayCount       int
	lastStatusLog  time.Time

	sink       EventSink
	log        logger.Logger
	now        func() time.Time
	checkEvery time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor with DefaultRules unless overridden.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		rules:      DefaultRules(),
		lastUse:    make(map[string]time.Time),
		log:        logger.Nop(),
		now:        time.Now,
		checkEvery: defaultCheckEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rules returns the rules in force.
func (m *Monitor) Rules() Rules {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rules
}

// SetRules replaces the rules. A suspension in force is kept.
func (m *Monitor) SetRules(r Rules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = r
	m.trimLocked()
}

// Permit is a granted slot to execute one action.
type Permit struct {
	once sync.Once
	m    *Monitor
}

// Release frees the concurrency slot. Calling it twice is harmless.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.m.mu.Lock()
		p.m.inFlight--
		p.m.mu.Unlock()
	})
}

// Acquire asks for permission to execute one action on platform with the bot
// account botID. botID may be empty when no account is involved.
func (m *Monitor) Acquire(ctx context.Context, platform model.Platform, botID string) (*Permit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Before(m.suspendedUntil) {
		return nil, m.reject(fmt.Errorf("until %s: %w", m.suspendedUntil.Format(time.RFC3339), ErrSuspended))
	}

	r := m.rules
	if r.RateLimiting {
		if last, ok := m.lastUse[botID]; ok && botID != "" && now.Sub(last) < r.MinDelay {
			return nil, m.reject(fmt.Errorf("bot %s used %s ago: %w", botID, now.Sub(last).Round(time.Second), ErrTooSoon))
		}
		if r.MaxPerHour > 0 && m.countSinceLocked(now.Add(-time.Hour))+m.inFlight >= r.MaxPerHour {
			return nil, m.reject(fmt.Errorf("%d per hour: %w", r.MaxPerHour, ErrHourlyLimit))
		}
		if r.MaxPerDay > 0 && m.todayLocked(now)+m.inFlight >= r.MaxPerDay {
			return nil, m.reject(fmt.Errorf("%d per day: %w", r.MaxPerDay, ErrDailyLimit))
		}
	}
	if r.MaxConcurrent > 0 && m.inFlight >= r.MaxConcurrent {
		return nil, m.reject(fmt.Errorf("%d concurrent on %s: %w", r.MaxConcurrent, platform, ErrConcurrencyLimit))
	}

	m.inFlight++
	if botID != "" {
		m.lastUse[botID] = now
	}
	return &Permit{m: m}, nil
}

func (m *Monitor) reject(err error) error {
	metrics.RecordSafetyRejection(Reason(err))
	return err
}

// LogActivity appends an executed activity to the window and runs detection.
// It reports whether suspicious activity was found.
func (m *Monitor) LogActivity(ctx context.Context, kind string, platform model.Platform, details string) bool {
	m.mu.Lock()
	now := m.now()
	m.window = append(m.window, Entry{Kind: kind, Platform: platform, Details: details, At: now})
	m.trimLocked()
	m.todayLocked(now)
	m.dayCount++

	recent := m.countSinceLocked(now.Add(-time.Hour))
	if recent <= m.rules.SuspiciousThreshold {
		m.mu.Unlock()
		return false
	}

	f := Finding{
		DetectedAt:     now,
		Type:           FindingHighFrequency,
		Count:          recent,
		Recommendation: "Suspend operations temporarily",
	}
	m.findings = append(m.findings, f)
	if len(m.findings) > maxFindings {
		m.findings = m.findings[len(m.findings)-maxFindings:]
	}
	m.detected++

	var event *Event
	if m.rules.AutoSuspend && !now.Before(m.suspendedUntil) {
		m.suspendedUntil = now.Add(m.rules.Suspension)
		event = &Event{
			At:       now,
			Event:    EventProtocolActive,
			Action:   "temporary_suspension",
			Duration: m.rules.Suspension,
			Details:  fmt.Sprintf("%d activities in the last hour", recent),
		}
	}
	m.mu.Unlock()

	m.log.Warn(ctx, "suspicious activity detected",
		logger.String("type", f.Type),
		logger.Int("activities_count", recent),
	)
	if event != nil {
		metrics.RecordSafetySuspension()
		metrics.UpdateSafetySuspended(true)
		m.log.Warn(ctx, "safety protocol activated", logger.Duration("suspension", event.Duration))
		m.persist(ctx, *event)
	}
	return true
}

func (m *Monitor) persist(ctx context.Context, e Event) {
	if m.sink == nil {
		return
	}
	if err := m.sink.SaveSafetyEvent(ctx, e); err != nil {
		m.log.Error(ctx, "failed to persist safety event", logger.String("event", e.Event), logger.Error(err))
	}
}

// Suspended reports whether operations are suspended and until when.
func (m *Monitor) Suspended() (bool, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.suspendedUntil), m.suspendedUntil
}

// Report summarises the current state.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	start := len(m.findings) - recentFindings
	if start < 0 {
		start = 0
	}
	r := Report{
		GeneratedAt:        now,
		TotalMonitored:     len(m.window),
		SuspiciousDetected: m.detected,
		Recent:             append([]Finding{}, m.findings[start:]...),
		Status:             StatusNormal,
		Recommendations:    []string{},
		LastHour:           m.countSinceLocked(now.Add(-time.Hour)),
		Today:              m.todayLocked(now),
		InFlight:           m.inFlight,
		Suspended:          now.Before(m.suspendedUntil),
	}
	if r.Suspended {
		until := m.suspendedUntil
		r.SuspendedUntil = &until
	}
	if m.detected > 0 {
		r.Status = StatusAttentionRequired
		r.Recommendations = append(r.Recommendations, "Review recent suspicious activities")
	}
	if r.LastHour > highActivityPerHour {
		r.Status = StatusHighActivity
		r.Recommendations = append(r.Recommendations, "Consider increasing delay between actions")
	}
	return r
}

// Reset clears the window, findings, per-bot delays and any suspension.
func (m *Monitor) Reset(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	m.window = nil
	m.findings = nil
	m.detected = 0
	m.lastUse = make(map[string]time.Time)
	m.suspendedUntil = time.Time{}
	m.mu.Unlock()

	metrics.UpdateSafetySuspended(false)
	m.log.Info(ctx, "safety monitoring data reset")
	m.persist(ctx, Event{At: now, Event: EventMonitorReset})
}

// Check lifts an expired suspension and logs the status every 30 minutes.
func (m *Monitor) Check(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	lifted := !m.suspendedUntil.IsZero() && !now.Before(m.suspendedUntil)
	if lifted {
		m.suspendedUntil = time.Time{}
	}
	logStatus := now.Sub(m.lastStatusLog) >= statusLogEvery
	if logStatus {
		m.lastStatusLog = now
	}
	m.mu.Unlock()

	if lifted {
		metrics.UpdateSafetySuspended(false)
		m.log.Info(ctx, "suspension lifted")
		m.persist(ctx, Event{At: now, Event: EventSuspensionLifted})
	}
	if logStatus {
		r := m.Report()
		m.log.Info(ctx, "safety status",
			logger.String("status", r.Status),
			logger.Int("last_hour", r.LastHour),
			logger.Bool("suspended", r.Suspended),
		)
	}
}

// Start runs Check periodically until Stop or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.log.Info(ctx, "safety monitoring started")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.checkEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop ends the background loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
}

func (m *Monitor) trimLocked() {
	size := m.rules.WindowSize
	if size > 0 && len(m.window) > size {
		m.window = append([]Entry(nil), m.window[len(m.window)-size:]...)
	}
}

func (m *Monitor) countSinceLocked(since time.Time) int {
	n := 0
	for i := len(m.window) - 1; i >= 0; i-- {
		if !m.window[i].At.After(since) {
			break
		}
		n++
	}
	return n
}

// todayLocked rolls the daily counter over at midnight and returns it.
func (m *Monitor) todayLocked(now time.Time) int {
	day := now.Format(time.DateOnly)
	if day != m.day {
		m.day = day
		m.dayCount = 0
	}
	return m.dayCount
}
