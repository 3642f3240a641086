package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/smmbot/internal/domain/model"
)

// Registry routes requests to the driver of their platform.
type Registry struct {
	mu      sync.RWMutex
	drivers map[model.Platform]Driver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[model.Platform]Driver)}
}

// Register adds or replaces the driver of p.
func (r *Registry) Register(p model.Platform, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[p] = d
}

// Driver returns the driver of p.
func (r *Registry) Driver(p model.Platform) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[p]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrUnsupportedPlatform)
	}
	return d, nil
}

// Platforms lists the platforms with a driver, sorted.
func (r *Registry) Platforms() []model.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Platform, 0, len(r.drivers))
	for p := range r.drivers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs req on its platform's driver.
func (r *Registry) Execute(ctx context.Context, req Request) (Response, error) {
	d, err := r.Driver(req.Platform)
	if err != nil {
		return Response{}, err
	}
	return d.Execute(ctx, req)
}

// CheckHealth probes p.
func (r *Registry) CheckHealth(ctx context.Context, p model.Platform) (Health, error) {
	d, err := r.Driver(p)
	if err != nil {
		return Health{}, err
	}
	return d.CheckHealth(ctx)
}

// CheckAccount probes a bot account on its platform.
func (r *Registry) CheckAccount(ctx context.Context, bot model.BotAccount) (bool, error) {
	d, err := r.Driver(bot.Platform)
	if err != nil {
		return false, err
	}
	return d.CheckAccount(ctx, bot)
}

// RateLimits returns the limits of p.
func (r *Registry) RateLimits(p model.Platform) (RateLimits, error) {
	d, err := r.Driver(p)
	if err != nil {
		return RateLimits{}, err
	}
	return d.RateLimits(), nil
}
