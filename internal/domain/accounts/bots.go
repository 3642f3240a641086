// Package accounts manages bot accounts and members on top of the store.
package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/okian/smmbot/internal/adapters/repository"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/pkg/logger"
	"github.com/okian/smmbot/pkg/metrics"
)

const (
	defaultMaxBots          = 500
	defaultCheckConcurrency = 5
)

// BotStore is the persistence used by BotManager.
type BotStore interface {
	AddBot(ctx context.Context, b model.BotAccount) error
	GetBot(ctx context.Context, id string) (model.BotAccount, error)
	ListBots(ctx context.Context, f repository.BotFilter) ([]model.BotAccount, error)
	CountBots(ctx context.Context) (int, error)
	UpdateBotStatus(ctx context.Context, id string, status model.BotStatus) error
	RemoveBot(ctx context.Context, id string) error
	RemoveBotsByStatus(ctx context.Context, status model.BotStatus) (int, error)
	RotateBot(ctx context.Context, p model.Platform, at time.Time) (model.BotAccount, error)
}

// AccountChecker probes whether a bot account still works.
type AccountChecker interface {
	CheckAccount(ctx context.Context, bot model.BotAccount) (bool, error)
}

// NewBot is the input of BotManager.Add.
type NewBot struct {
	Platform string `json:"platform"`
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// BotHealth is the outcome of checking one bot account.
type BotHealth struct {
	ID        string          `json:"id"`
	Healthy   bool            `json:"healthy"`
	Status    model.BotStatus `json:"status"`
	Error     string          `json:"error,omitempty"`
	CheckedAt time.Time       `json:"last_checked"`
}

// BotStats summarises all bot accounts.
type BotStats struct {
	Total          int                    `json:"total_accounts"`
	Active         int                    `json:"active_accounts"`
	Dead           int                    `json:"dead_accounts"`
	Suspended      int                    `json:"suspended_accounts"`
	ByPlatform     map[model.Platform]int `json:"platform_breakdown"`
	TotalActions   int                    `json:"total_actions"`
	AvgSuccessRate float64                `json:"average_success_rate"`
}

// BotOption applies a configuration option to the BotManager.
type BotOption func(*BotManager)

// WithMaxBots caps the number of stored bot accounts.
func WithMaxBots(n int) BotOption {
	return func(m *BotManager) {
		if n > 0 {
			m.maxBots = n
		}
	}
}

// WithCheckConcurrency bounds parallel account checks in CheckAll.
func WithCheckConcurrency(n int) BotOption {
	return func(m *BotManager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) BotOption {
	return func(m *BotManager) {
		m.cost = cost
	}
}

// WithBotLogger sets the logger.
func WithBotLogger(l logger.Logger) BotOption {
	return func(m *BotManager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithBotClock replaces time.Now.
func WithBotClock(now func() time.Time) BotOption {
	return func(m *BotManager) {
		if now != nil {
			m.now = now
		}
	}
}

// BotManager adds, checks and rotates bot accounts.
type BotManager struct {
	store       BotStore
	checker     AccountChecker
	maxBots     int
	concurrency int
	cost        int
	log         logger.Logger
	now         func() time.Time
}

// NewBotManager creates a manager backed by store. checker may be nil, in
// which case health checks report every account healthy.
func NewBotManager(store BotStore, checker AccountChecker, opts ...BotOption) *BotManager {
	m := &BotManager{
		store:       store,
		checker:     checker,
		maxBots:     defaultMaxBots,
		concurrency: defaultCheckConcurrency,
		cost:        bcrypt.DefaultCost,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add validates and stores a new bot account with a hashed password.
func (m *BotManager) Add(ctx context.Context, in NewBot) (model.BotAccount, error) {
	p, err := model.ParsePlatform(strings.ToLower(strings.TrimSpace(in.Platform)))
	if err != nil {
		return model.BotAccount{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return model.BotAccount{}, fmt.Errorf("username and password are required: %w", ErrInvalidInput)
	}

	n, err := m.store.CountBots(ctx)
	if err != nil {
		return model.BotAccount{}, err
	}
	if n >= m.maxBots {
		return model.BotAccount{}, fmt.Errorf("%d bot accounts: %w", n, ErrLimitReached)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), m.cost)
	if err != nil {
		return model.BotAccount{}, fmt.Errorf("hash password: %w", err)
	}
	b := model.BotAccount{
		ID:           model.BotID(p, username),
		Platform:     p,
		Username:     username,
		PasswordHash: string(hash),
		Email:        strings.TrimSpace(in.Email),
		Status:       model.BotActive,
		AddedAt:      m.now(),
		SuccessRate:  100,
	}
	if err := m.store.AddBot(ctx, b); err != nil {
		return model.BotAccount{}, err
	}
	m.log.Info(ctx, "bot account added", logger.String("bot_id", b.ID), logger.String("platform", string(p)))
	return b, nil
}

// VerifyPassword reports whether password matches the stored hash.
func (m *BotManager) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	b, err := m.store.GetBot(ctx, id)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte(password)) == nil, nil
}

// Get returns one bot account.
func (m *BotManager) Get(ctx context.Context, id string) (model.BotAccount, error) {
	return m.store.GetBot(ctx, id)
}

// List returns bot accounts matching f.
func (m *BotManager) List(ctx context.Context, f repository.BotFilter) ([]model.BotAccount, error) {
	return m.store.ListBots(ctx, f)
}

// Remove deletes a bot account.
func (m *BotManager) Remove(ctx context.Context, id string) error {
	if err := m.store.RemoveBot(ctx, id); err != nil {
		return err
	}
	m.log.Info(ctx, "bot account removed", logger.String("bot_id", id))
	return nil
}

// UpdateStatus changes a bot account's status.
func (m *BotManager) UpdateStatus(ctx context.Context, id string, status model.BotStatus) error {
	return m.store.UpdateBotStatus(ctx, id, status)
}

// CheckHealth probes one account and marks it dead when it no longer works.
func (m *BotManager) CheckHealth(ctx context.Context, id string) (BotHealth, error) {
	b, err := m.store.GetBot(ctx, id)
	if err != nil {
		return BotHealth{}, err
	}
	return m.check(ctx, b)
}

func (m *BotManager) check(ctx context.Context, b model.BotAccount) (BotHealth, error) {
	h := BotHealth{ID: b.ID, Healthy: true, Status: b.Status, CheckedAt: m.now()}
	if m.checker != nil {
		ok, err := m.checker.CheckAccount(ctx, b)
		if err != nil {
			return BotHealth{}, fmt.Errorf("check %s: %w", b.ID, err)
		}
		h.Healthy = ok
	}
	if !h.Healthy && b.Status != model.BotDead {
		if err := m.store.UpdateBotStatus(ctx, b.ID, model.BotDead); err != nil {
			return BotHealth{}, err
		}
		h.Status = model.BotDead
		m.log.Warn(ctx, "bot account marked dead", logger.String("bot_id", b.ID))
	}
	return h, nil
}

// CheckAll probes every active account with bounded concurrency. Failures of
// single checks are reported in the result; only cancellation aborts.
func (m *BotManager) CheckAll(ctx context.Context) ([]BotHealth, error) {
	bots, err := m.store.ListBots(ctx, repository.BotFilter{Status: model.BotActive})
	if err != nil {
		return nil, err
	}
	results := make([]BotHealth, len(bots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, b := range bots {
		g.Go(func() error {
			h, err := m.check(gctx, b)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				h = BotHealth{ID: b.ID, Status: b.Status, Error: err.Error(), CheckedAt: m.now()}
			}
			results[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("check accounts: %w", err)
	}
	return results, nil
}

// CleanDead removes every dead account and returns how many were removed.
func (m *BotManager) CleanDead(ctx context.Context) (int, error) {
	n, err := m.store.RemoveBotsByStatus(ctx, model.BotDead)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Info(ctx, "dead bot accounts removed", logger.Int("count", n))
	}
	return n, nil
}

// Rotate returns the least recently used active account of p and marks it used.
func (m *BotManager) Rotate(ctx context.Context, p model.Platform) (model.BotAccount, error) {
	return m.store.RotateBot(ctx, p, m.now())
}

// Stats summarises all accounts and refreshes the account gauges.
func (m *BotManager) Stats(ctx context.Context) (BotStats, error) {
	bots, err := m.store.ListBots(ctx, repository.BotFilter{})
	if err != nil {
		return BotStats{}, err
	}
	st := BotStats{ByPlatform: map[model.Platform]int{}}
	gauges := map[model.Platform]map[model.BotStatus]int{}
	for _, p := range model.Platforms {
		gauges[p] = map[model.BotStatus]int{model.BotActive: 0, model.BotDead: 0, model.BotSuspended: 0}
	}
	var rateSum float64
	for _, b := range bots {
		st.Total++
		switch b.Status {
		case model.BotActive:
			st.Active++
		case model.BotDead:
			st.Dead++
		case model.BotSuspended:
			st.Suspended++
		}
		st.ByPlatform[b.Platform]++
		st.TotalActions += b.TotalActions
		rateSum += b.SuccessRate
		if g, ok := gauges[b.Platform]; ok {
			g[b.Status]++
		}
	}
	if st.Total > 0 {
		st.AvgSuccessRate = rateSum / float64(st.Total)
	}
	for p, byStatus := range gauges {
		for status, n := range byStatus {
			metrics.UpdateBotAccounts(string(p), string(status), n)
		}
	}
	return st, nil
}
