package platform

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
)

// Default simulation constants.
const (
	defaultSuccessRate       = 0.9
	defaultHealthRate        = 0.95
	defaultAccountHealthRate = 0.75
	defaultMinLatency        = time.Second
	defaultMaxLatency        = 3 * time.Second
	defaultHealthDelay       = time.Second
	minHealthResponse        = 500 * time.Millisecond
	maxHealthResponse        = 2 * time.Second
)

// Option applies a configuration option to the SimulatedDriver.
type Option func(*SimulatedDriver)

// WithLatencyRange sets the simulated latency range. Zero disables the delay.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(d *SimulatedDriver) {
		if minLatency >= 0 && maxLatency >= minLatency {
			d.minLatency = minLatency
			d.maxLatency = maxLatency
		}
	}
}

// WithSuccessRate sets the probability that Execute succeeds.
func WithSuccessRate(rate float64) Option {
	return func(d *SimulatedDriver) {
		if rate >= 0 && rate <= 1 {
			d.successRate = rate
		}
	}
}

// WithHealthRate sets the probability that CheckHealth reports healthy.
func WithHealthRate(rate float64) Option {
	return func(d *SimulatedDriver) {
		if rate >= 0 && rate <= 1 {
			d.healthRate = rate
		}
	}
}

// WithAccountHealthRate sets the probability that CheckAccount reports healthy.
func WithAccountHealthRate(rate float64) Option {
	return func(d *SimulatedDriver) {
		if rate >= 0 && rate <= 1 {
			d.accountHealthRate = rate
		}
	}
}

// WithHealthDelay sets how long a health probe takes.
func WithHealthDelay(delay time.Duration) Option {
	return func(d *SimulatedDriver) {
		if delay >= 0 {
			d.healthDelay = delay
		}
	}
}

// WithRateLimits sets the limits returned by RateLimits.
func WithRateLimits(limits RateLimits) Option {
	return func(d *SimulatedDriver) {
		d.limits = limits
	}
}

// WithSeed makes the simulation deterministic.
func WithSeed(seed int64) Option {
	return func(d *SimulatedDriver) {
		d.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // simulation only
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *SimulatedDriver) {
		if now != nil {
			d.now = now
		}
	}
}

// SimulatedDriver implements Driver with simulated latency and outcomes.
type SimulatedDriver struct {
	platform          model.Platform
	idPrefix          string
	successRate       float64
	healthRate        float64
	accountHealthRate float64
	minLatency        time.Duration
	maxLatency        time.Duration
	healthDelay       time.Duration
	limits            RateLimits
	now               func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedDriver creates a simulated driver for p.
func NewSimulatedDriver(p model.Platform, opts ...Option) *SimulatedDriver {
	d := &SimulatedDriver{
		platform:          p,
		idPrefix:          IDPrefix(p),
		successRate:       defaultSuccessRate,
		healthRate:        defaultHealthRate,
		accountHealthRate: defaultAccountHealthRate,
		minLatency:        defaultMinLatency,
		maxLatency:        defaultMaxLatency,
		healthDelay:       defaultHealthDelay,
		now:               time.Now,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // simulation only
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IDPrefix returns the short prefix used in result IDs, e.g. "fb".
func IDPrefix(p model.Platform) string {
	switch p {
	case model.Facebook:
		return "fb"
	case model.Instagram:
		return "ig"
	case model.Twitter:
		return "tw"
	case model.YouTube:
		return "yt"
	case model.TikTok:
		return "tt"
	}
	return string(p)
}

// Execute simulates the action after a random delay.
func (d *SimulatedDriver) Execute(ctx context.Context, req Request) (Response, error) {
	start := d.now()
	if err := sleep(ctx, d.between(d.minLatency, d.maxLatency)); err != nil {
		return Response{}, err
	}
	ok := d.roll(d.successRate)
	at := d.now()
	resp := Response{
		Success:      ok,
		Action:       req.Type,
		ResponseTime: at.Sub(start),
		At:           at,
	}
	if ok {
		resp.ID = fmt.Sprintf("%s_%d", d.idPrefix, at.Unix())
	} else {
		resp.Code = CodeAPIError
		resp.Message = "simulated API error"
	}
	return resp, nil
}

// CheckHealth simulates a health probe.
func (d *SimulatedDriver) CheckHealth(ctx context.Context) (Health, error) {
	if err := sleep(ctx, d.healthDelay); err != nil {
		return Health{}, err
	}
	h := Health{
		Platform:     d.platform,
		Healthy:      d.roll(d.healthRate),
		ResponseTime: d.between(minHealthResponse, maxHealthResponse),
		CheckedAt:    d.now(),
	}
	h.Status = StatusUnhealthy
	if h.Healthy {
		h.Status = StatusHealthy
	}
	return h, nil
}

// CheckAccount simulates a probe of a bot account.
func (d *SimulatedDriver) CheckAccount(ctx context.Context, _ model.BotAccount) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context cancelled: %w", err)
	}
	return d.roll(d.accountHealthRate), nil
}

// RateLimits returns the configured limits.
func (d *SimulatedDriver) RateLimits() RateLimits {
	return d.limits
}

func (d *SimulatedDriver) roll(p float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() < p
}

func (d *SimulatedDriver) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo + time.Duration(d.rng.Int63n(int64(hi-lo)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
