// Package service wires storage, the action pipeline, safety, scheduling and
// account management into the daemon used by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/smmbot/internal/adapters/mq/queue"
	"github.com/okian/smmbot/internal/adapters/mq/worker"
	"github.com/okian/smmbot/internal/adapters/repository"
	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/analytics"
	"github.com/okian/smmbot/internal/domain/dedupe"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	"github.com/okian/smmbot/internal/domain/safety"
	"github.com/okian/smmbot/internal/domain/schedule"
	"github.com/okian/smmbot/pkg/logger"
	"github.com/okian/smmbot/pkg/metrics"
)

// DBFile is the database file name inside the data directory.
const DBFile = "smm_bot.db"

// callbackAgent identifies result callbacks to the receiving endpoint.
const callbackAgent = "smmbot-callback/1"

// Daemon statuses shown on the dashboard.
const (
	StatusOnline    = "online"
	StatusPaused    = "paused"
	StatusSuspended = "suspended"
	StatusStopped   = "stopped"
)

// Service implements the API dependencies of the daemon.
type Service struct {
	mu sync.RWMutex

	cfg        *config.Config
	configPath string
	dataDir    string
	logsDir    string

	store     *repository.SQLiteStore
	deduper   dedupe.Deduper
	queue     queue.Queue
	registry  *platform.Registry
	monitor   *safety.Monitor
	scheduler *schedule.Scheduler
	bots      *accounts.BotManager
	members   *accounts.MemberManager
	analytics *analytics.Analytics
	settings  *config.Settings
	pool      *worker.Pool

	retryEvery time.Duration
	retryUpTo  time.Duration

	started   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc

	logger   logger.Logger
	activity logger.Logger
	now      func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Without it defaults are used.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithConfigPath watches path and applies changes while running.
func WithConfigPath(path string) Option {
	return func(s *Service) {
		s.configPath = path
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithActivityLogger sets where executed actions are logged.
func WithActivityLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.activity = l
		}
	}
}

// WithRegistry replaces the simulated drivers built from configuration.
func WithRegistry(r *platform.Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithPermitRetry tunes how workers wait out transient safety refusals.
func WithPermitRetry(every, upTo time.Duration) Option {
	return func(s *Service) {
		s.retryEvery = every
		s.retryUpTo = upTo
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service. Components are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:      config.New(context.Background()),
		logger:   logger.Nop(),
		activity: logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the workers, the safety monitor and the
// scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.Load() {
		return nil
	}
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.logger.Info(ctx, "starting smmbot service...")
	s.dataDir, s.logsDir = cfg.DataDir, cfg.LogsDir

	store, err := repository.Open(ctx, filepath.Join(cfg.DataDir, DBFile), repository.WithClock(s.now))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = store
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	if s.registry == nil {
		s.registry = buildRegistry(ctx, cfg, s.logger)
	}
	// Runtime edits must land in the file that is watched.
	if s.configPath != "" {
		s.settings = config.NewSettings(filepath.Dir(s.configPath), s.backupDir(),
			config.WithMainFile(filepath.Base(s.configPath)))
	} else {
		s.settings = config.NewSettings(cfg.ConfigDir, s.backupDir())
	}

	// Components outlive the Start ctx; they stop on Stop.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.monitor = safety.NewMonitor(
		safety.WithRules(safetyRules(cfg.Safety)),
		safety.WithSink(store),
		safety.WithLogger(s.logger.Named("safety")),
		safety.WithClock(s.now),
	)
	s.scheduler = schedule.New(
		schedule.WithConfig(scheduleConfig(cfg.Schedule)),
		schedule.WithCheckInterval(cfg.Schedule.CheckInterval),
		schedule.WithLogger(s.logger.Named("scheduler")),
		schedule.WithClock(s.now),
	)
	s.bots = accounts.NewBotManager(store, s.registry,
		accounts.WithMaxBots(cfg.System.MaxBotAccounts),
		accounts.WithBotLogger(s.logger.Named("bots")),
		accounts.WithBotClock(s.now),
	)
	s.members = accounts.NewMemberManager(store,
		accounts.WithMaxMembers(cfg.System.MaxMembers),
		accounts.WithMemberLogger(s.logger.Named("members")),
		accounts.WithMemberClock(s.now),
	)
	s.startedAt = s.now()
	s.analytics = analytics.New(store, cfg.DataDir,
		analytics.WithClock(s.now),
		analytics.WithLogger(s.logger.Named("analytics")),
		analytics.WithStartTime(s.startedAt),
		analytics.WithStatus(s.status),
		analytics.WithComponent("database", store.Ping),
		analytics.WithComponent("safety_monitor", s.safetyProbe),
		analytics.WithComponent("queue", s.queueProbe),
	)
	if err := s.registerTasks(); err != nil {
		cancel()
		_ = store.Close()
		return err
	}

	wopts := []worker.Option{
		worker.WithLogger(s.logger),
		worker.WithActivityLogger(s.activity),
	}
	if s.retryEvery > 0 {
		wopts = append(wopts, worker.WithPermitRetry(s.retryEvery, s.retryUpTo))
	}
	s.pool = worker.NewPool(cfg.WorkerCount, s.queue, worker.Deps{
		Gate:     s.scheduler,
		Rotator:  s.bots,
		Guard:    s.monitor,
		Executor: s.registry,
		Recorder: store,
		Notifier: platform.NewHTTPClient(platform.WithHeader("User-Agent", callbackAgent)),
	}, wopts...)

	s.monitor.Start(runCtx)
	s.scheduler.Start(runCtx)
	s.pool.Start(runCtx)

	if s.configPath != "" {
		if err := config.Watch(runCtx, s.configPath, s.applyConfig); err != nil {
			s.logger.Warn(ctx, "config hot reload disabled", logger.Error(err))
		}
	}

	s.started.Store(true)
	s.logger.Info(ctx, "smmbot service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", cfg.QueueSize),
		logger.Int("dedupe_size", cfg.DedupeSize),
		logger.String("data_dir", cfg.DataDir),
	)
	_ = store.AppendSystemLog(ctx, repository.SystemLog{Level: "INFO", Module: "service", Message: "service started"})
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started.Swap(false) {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping smmbot service...")

	// Workers parked outside operating hours only return on cancellation.
	if !s.scheduler.Active() {
		s.cancel()
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.scheduler.Stop()
	s.monitor.Stop()
	s.cancel()
	_ = s.store.AppendSystemLog(ctx, repository.SystemLog{Level: "INFO", Module: "service", Message: "service stopped"})
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}
	s.logger.Info(ctx, "smmbot service stopped")
}

// applyConfig installs a reloaded configuration.
func (s *Service) applyConfig(cfg *config.Config, err error) {
	ctx := context.Background()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.RecordSystemEvent(ctx, s.logger, "warning", "config reload rejected",
			map[string]any{"path": s.configPath, "error": err.Error()})
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	monitor, scheduler := s.monitor, s.scheduler
	s.mu.Unlock()

	if monitor != nil {
		monitor.SetRules(safetyRules(cfg.Safety))
	}
	if scheduler != nil {
		scheduler.SetConfig(scheduleConfig(cfg.Schedule))
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		s.logger.Warn(ctx, "invalid log level", logger.Error(err))
	}
	logger.RecordSystemEvent(ctx, s.logger, "config", "configuration reloaded",
		map[string]any{"path": s.configPath, "log_level": cfg.LogLevel})
}

// Config returns the configuration in force.
func (s *Service) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Started reports whether Start completed and Stop has not been called.
func (s *Service) Started() bool { return s.started.Load() }

func (s *Service) running() error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	return nil
}

// Submit validates req, deduplicates it by ID and queues it.
func (s *Service) Submit(ctx context.Context, req model.ActionRequest) (model.Action, error) {
	if err := s.running(); err != nil {
		return model.Action{}, err
	}
	a, err := s.newAction(req)
	if err != nil {
		return model.Action{}, err
	}

	if s.deduper.SeenAndRecord(ctx, a.ID) {
		metrics.RecordActionDuplicate()
		return model.Action{}, fmt.Errorf("%s: %w", a.ID, ErrDuplicate)
	}
	if err := s.store.SaveAction(ctx, a); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			metrics.RecordActionDuplicate()
			return model.Action{}, fmt.Errorf("%s: %w", a.ID, ErrDuplicate)
		}
		s.deduper.Unrecord(ctx, a.ID)
		return model.Action{}, err
	}
	if err := s.queue.Enqueue(ctx, a); err != nil {
		s.deduper.Unrecord(ctx, a.ID)
		if derr := s.store.DeleteAction(ctx, a.ID); derr != nil {
			s.logger.Warn(ctx, "dropping unqueued action", logger.String("action_id", a.ID), logger.Error(derr))
		}
		if errors.Is(err, queue.ErrFull) {
			return model.Action{}, fmt.Errorf("%s: %w", a.ID, ErrQueueFull)
		}
		return model.Action{}, fmt.Errorf("enqueue %s: %w", a.ID, err)
	}
	s.logger.Debug(ctx, "action queued",
		logger.String("action_id", a.ID),
		logger.String("platform", string(a.Platform)),
		logger.String("type", string(a.Type)),
	)
	return a, nil
}

// SubmitBatch submits every request and reports each outcome. It stops early
// only when ctx is done.
func (s *Service) SubmitBatch(ctx context.Context, reqs []model.ActionRequest) ([]model.BatchItem, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	out := make([]model.BatchItem, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		a, err := s.Submit(ctx, req)
		if err != nil {
			out = append(out, model.BatchItem{Error: err.Error()})
			continue
		}
		out = append(out, model.BatchItem{Action: &a})
	}
	return out, nil
}

func (s *Service) newAction(req model.ActionRequest) (model.Action, error) {
	p, err := model.ParsePlatform(strings.ToLower(strings.TrimSpace(req.Platform)))
	if err != nil {
		return model.Action{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}
	t, err := model.ParseActionType(strings.ToLower(strings.TrimSpace(req.Type)))
	if err != nil {
		return model.Action{}, fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}
	target := strings.TrimSpace(req.Target)
	if target == "" && t != model.Post {
		return model.Action{}, fmt.Errorf("target is required for %s: %w", t, ErrInvalidAction)
	}
	if (t == model.Post || t == model.Comment) && strings.TrimSpace(req.Content) == "" {
		return model.Action{}, fmt.Errorf("content is required for %s: %w", t, ErrInvalidAction)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	return model.Action{
		ID:        id,
		Platform:  p,
		Type:      t,
		Target:    target,
		Content:   req.Content,
		BotID:     strings.TrimSpace(req.BotID),
		Member:    strings.TrimSpace(req.Member),
		Callback:  strings.TrimSpace(req.Callback),
		Status:    model.ActionQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Action returns a submitted action with its current status.
func (s *Service) Action(ctx context.Context, id string) (model.Action, error) {
	if err := s.running(); err != nil {
		return model.Action{}, err
	}
	return s.store.GetAction(ctx, id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started.Load(),
		"status":      s.status(),
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.QueueSize,
		"dedupeSize":  s.cfg.DedupeSize,
	}
	if s.started.Load() {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["dedupeEntries"] = s.deduper.Size()
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
		stats["platforms"] = s.registry.Platforms()
		stats["scheduleActive"] = s.scheduler.Active()
		suspended, _ := s.monitor.Suspended()
		stats["suspended"] = suspended
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}

// status is called from scheduler tasks and must not take s.mu.
func (s *Service) status() string {
	if !s.started.Load() {
		return StatusStopped
	}
	if suspended, _ := s.monitor.Suspended(); suspended {
		return StatusSuspended
	}
	if !s.scheduler.Active() {
		return StatusPaused
	}
	return StatusOnline
}

func (s *Service) safetyProbe(context.Context) error {
	if suspended, until := s.monitor.Suspended(); suspended {
		return fmt.Errorf("operations suspended until %s", until.Format(time.RFC3339))
	}
	return nil
}

func (s *Service) queueProbe(context.Context) error {
	if s.queue.IsClosed() {
		return queue.ErrClosed
	}
	return nil
}

// Members returns the member manager.
func (s *Service) Members() *accounts.MemberManager { return s.members }

// Bots returns the bot account manager.
func (s *Service) Bots() *accounts.BotManager { return s.bots }

// Analytics returns the reporting component.
func (s *Service) Analytics() *analytics.Analytics { return s.analytics }

// Safety returns the safety monitor.
func (s *Service) Safety() *safety.Monitor { return s.monitor }

// Settings returns the settings file manager.
func (s *Service) Settings() *config.Settings { return s.settings }

// Schedule returns the scheduler state.
func (s *Service) Schedule() schedule.State { return s.scheduler.State() }

// SafetyEvents returns the newest persisted safety events.
func (s *Service) SafetyEvents(ctx context.Context, limit int) ([]safety.Event, error) {
	return s.store.ListSafetyEvents(ctx, limit)
}

// SystemLogs returns the newest persisted system messages.
func (s *Service) SystemLogs(ctx context.Context, limit int) ([]repository.SystemLog, error) {
	return s.store.ListSystemLogs(ctx, limit)
}

// LogStats summarizes one of the daemon's log files.
func (s *Service) LogStats(kind string) (logger.Stats, error) {
	return logger.LogStats(s.logsDir, kind)
}

// ExportLogs copies one log file into an export next to it and returns the
// export path.
func (s *Service) ExportLogs(kind, format string) (string, error) {
	return logger.ExportLogs(s.logsDir, kind, format, s.now())
}

// PlatformHealth probes one platform.
func (s *Service) PlatformHealth(ctx context.Context, p model.Platform) (platform.Health, error) {
	return s.registry.CheckHealth(ctx, p)
}

// PlatformLimits returns the published limits of one platform.
func (s *Service) PlatformLimits(p model.Platform) (platform.RateLimits, error) {
	return s.registry.RateLimits(p)
}

// Backup writes a database backup and returns its path.
func (s *Service) Backup(ctx context.Context) (string, error) {
	if err := s.running(); err != nil {
		return "", err
	}
	return s.store.Backup(ctx, s.backupDir())
}

// ExportTable writes a database table as CSV under the exports directory.
func (s *Service) ExportTable(ctx context.Context, table string) (string, error) {
	if err := s.running(); err != nil {
		return "", err
	}
	return s.exportTable(ctx, table)
}

func (s *Service) backupDir() string {
	return filepath.Join(s.dataDir, "backups")
}
