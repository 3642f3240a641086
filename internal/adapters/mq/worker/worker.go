// Package worker executes queued actions against the platforms.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	"github.com/okian/smmbot/internal/domain/safety"
	"github.com/okian/smmbot/pkg/logger"
	"github.com/okian/smmbot/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultRetryEvery   = 2 * time.Second
	defaultRetryUpTo    = time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// ErrStopped is returned by Process when the worker shuts down while the
// action waits for a permit. The action keeps its stored status.
var ErrStopped = errors.New("worker stopped")

// Queue defines how workers receive actions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Action
}

// Gate blocks until operations are allowed by the schedule.
type Gate interface {
	WaitActive(ctx context.Context) error
}

// Rotator picks a bot account for an action that names none.
type Rotator interface {
	Rotate(ctx context.Context, p model.Platform) (model.BotAccount, error)
}

// Guard grants permits and watches executed activity.
type Guard interface {
	Acquire(ctx context.Context, p model.Platform, botID string) (*safety.Permit, error)
	LogActivity(ctx context.Context, kind string, p model.Platform, details string) bool
}

// Executor performs a request on its platform.
type Executor interface {
	Execute(ctx context.Context, req platform.Request) (platform.Response, error)
}

// Recorder persists outcomes.
type Recorder interface {
	RecordActivity(ctx context.Context, a model.Activity) (int64, error)
	UpdateAction(ctx context.Context, a model.Action) error
}

// Notifier delivers results to callback URLs.
type Notifier interface {
	Do(ctx context.Context, method, url string, body, out any) error
}

// Deps are the collaborators of a worker. Gate, Rotator and Notifier are
// optional.
type Deps struct {
	Gate     Gate
	Rotator  Rotator
	Guard    Guard
	Executor Executor
	Recorder Recorder
	Notifier Notifier
}

// Worker processes actions from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue Queue
	deps  Deps
	name  string

	retryEvery time.Duration
	retryUpTo  time.Duration
	now        func() time.Time

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger   logger.Logger
	activity logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, deps Deps, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		deps:       deps,
		name:       "worker",
		retryEvery: defaultRetryEvery,
		retryUpTo:  defaultRetryUpTo,
		now:        time.Now,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Nop(),
		activity:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	actions := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case a, ok := <-actions:
			if !ok {
				return
			}
			if _, err := w.Process(ctx, a); err != nil && !errors.Is(err, ErrStopped) {
				metrics.RecordWorkerError()
				w.logger.Error(ctx, "error processing action", logger.String("action_id", a.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// stop signals the worker loop; it is safe to call more than once.
func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// Process executes one action and returns it with its final status. An error
// is returned only when the outcome could not be determined or stored.
func (w *InMemoryWorker) Process(ctx context.Context, a model.Action) (model.Action, error) { //nolint:gocritic // hugeParam: actions travel by value
	if w.deps.Gate != nil {
		if err := w.deps.Gate.WaitActive(ctx); err != nil {
			return a, fmt.Errorf("waiting for operating hours: %w", err)
		}
	}

	if a.BotID == "" && w.deps.Rotator != nil {
		bot, err := w.deps.Rotator.Rotate(ctx, a.Platform)
		if err != nil {
			if ctx.Err() != nil {
				return a, ctx.Err()
			}
			return w.finish(ctx, a, model.ActionFailed, "", fmt.Sprintf("no bot account available: %v", err))
		}
		a.BotID = bot.ID
	}

	permit, err := w.acquire(ctx, a)
	if err != nil {
		if ctx.Err() != nil {
			return a, ctx.Err()
		}
		if errors.Is(err, ErrStopped) {
			return a, fmt.Errorf("acquire permit for %s: %w", a.ID, err)
		}
		return w.finish(ctx, a, model.ActionRejected, "", err.Error())
	}
	defer permit.Release()

	start := w.now()
	resp, err := w.deps.Executor.Execute(ctx, platform.Request{
		ActionID: a.ID,
		Platform: a.Platform,
		Type:     a.Type,
		Target:   a.Target,
		Content:  a.Content,
	})
	if err != nil && ctx.Err() != nil {
		return a, fmt.Errorf("execute %s: %w", a.ID, err)
	}
	if err != nil {
		resp = platform.Response{Success: false, Action: a.Type, Code: platform.CodeAPIError, Message: err.Error()}
	}
	if resp.ResponseTime == 0 {
		resp.ResponseTime = w.now().Sub(start)
	}

	details := resp.ID
	if !resp.Success {
		details = resp.Message
	}
	if _, err := w.deps.Recorder.RecordActivity(ctx, model.Activity{
		ActionID:     a.ID,
		Member:       a.Member,
		BotID:        a.BotID,
		Kind:         string(a.Type),
		Platform:     a.Platform,
		Target:       a.Target,
		Success:      resp.Success,
		ResponseTime: resp.ResponseTime,
		Details:      details,
		At:           w.now(),
	}); err != nil {
		w.logger.Error(ctx, "activity not recorded", logger.String("action_id", a.ID), logger.Error(err))
	}
	w.deps.Guard.LogActivity(ctx, string(a.Type), a.Platform, a.Target)
	metrics.RecordActionLatency(string(a.Platform), float64(resp.ResponseTime.Milliseconds()))

	logger.RecordActivity(ctx, w.activity, string(a.Type), string(a.Platform), a.Member, map[string]any{
		"action_id": a.ID,
		"bot_id":    a.BotID,
		"target":    a.Target,
		"success":   resp.Success,
	})
	logger.RecordPerformance(ctx, w.activity, "execute_"+string(a.Type), resp.ResponseTime, resp.Success,
		map[string]any{"platform": string(a.Platform)})

	if resp.Success {
		return w.finish(ctx, a, model.ActionSucceeded, resp.ID, "")
	}
	return w.finish(ctx, a, model.ActionFailed, "", resp.Message)
}

// acquire asks the guard for a permit, waiting out transient refusals.
func (w *InMemoryWorker) acquire(ctx context.Context, a model.Action) (*safety.Permit, error) { //nolint:gocritic // hugeParam: actions travel by value
	deadline := w.now().Add(w.retryUpTo)
	for {
		permit, err := w.deps.Guard.Acquire(ctx, a.Platform, a.BotID)
		if err == nil {
			return permit, nil
		}
		if !safety.Transient(err) || !w.now().Add(w.retryEvery).Before(deadline) {
			return nil, err
		}
		w.logger.Debug(ctx, "permit refused, retrying",
			logger.String("action_id", a.ID), logger.String("reason", safety.Reason(err)))
		timer := time.NewTimer(w.retryEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-w.shutdown:
			timer.Stop()
			return nil, ErrStopped
		case <-timer.C:
		}
	}
}

// finish stores the final status, updates metrics and notifies the callback.
func (w *InMemoryWorker) finish(ctx context.Context, a model.Action, status model.ActionStatus, resultID, msg string) (model.Action, error) { //nolint:gocritic // hugeParam: actions travel by value
	a.Status = status
	a.ResultID = resultID
	a.Error = msg
	a.UpdatedAt = w.now()

	result := metrics.ResultSucceeded
	switch status {
	case model.ActionFailed:
		result = metrics.ResultFailed
	case model.ActionRejected:
		result = metrics.ResultRejected
	}
	metrics.RecordActionExecuted(string(a.Platform), string(a.Type), result)

	if err := w.deps.Recorder.UpdateAction(ctx, a); err != nil {
		return a, fmt.Errorf("store outcome of %s: %w", a.ID, err)
	}
	w.logger.Debug(ctx, "action finished",
		logger.String("action_id", a.ID), logger.String("status", string(status)), logger.String("bot_id", a.BotID))

	if a.Callback != "" && w.deps.Notifier != nil {
		res := model.ActionResult{
			ActionID: a.ID,
			Platform: a.Platform,
			Type:     a.Type,
			BotID:    a.BotID,
			Success:  status == model.ActionSucceeded,
			ResultID: resultID,
			Message:  msg,
			At:       a.UpdatedAt,
		}
		if err := w.deps.Notifier.Do(ctx, http.MethodPost, a.Callback, res, nil); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn(ctx, "callback failed", logger.String("action_id", a.ID), logger.Error(err))
		}
	}
	return a, nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers sharing deps. Options apply
// to every worker.
func NewPool(workerCount int, queue Queue, deps Deps, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Nop(),
	}
	probe := &InMemoryWorker{logger: p.logger}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger.Named("worker-pool")

	for i := range p.workers {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(queue, deps, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, stops the workers and waits for them or ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	for _, w := range p.workers {
		w.stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
