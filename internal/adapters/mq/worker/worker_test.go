package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/smmbot/internal/adapters/mq/queue"
	"github.com/okian/smmbot/internal/adapters/mq/worker"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	"github.com/okian/smmbot/internal/domain/safety"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRotator struct {
	bot model.BotAccount
	err error
}

func (f *fakeRotator) Rotate(_ context.Context, p model.Platform) (model.BotAccount, error) {
	if f.err != nil {
		return model.BotAccount{}, f.err
	}
	b := f.bot
	b.Platform = p
	return b, nil
}

type fakeExecutor struct {
	mu    sync.Mutex
	resp  platform.Response
	err   error
	calls []platform.Request
}

func (f *fakeExecutor) Execute(_ context.Context, req platform.Request) (platform.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRecorder struct {
	mu         sync.Mutex
	activities []model.Activity
	actions    map[string]model.Action
}

func newRecorder() *fakeRecorder {
	return &fakeRecorder{actions: map[string]model.Action{}}
}

func (f *fakeRecorder) RecordActivity(_ context.Context, a model.Activity) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, a)
	return int64(len(f.activities)), nil
}

func (f *fakeRecorder) UpdateAction(_ context.Context, a model.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions[a.ID] = a
	return nil
}

func (f *fakeRecorder) action(id string) (model.Action, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	return a, ok
}

type fakeNotifier struct {
	mu   sync.Mutex
	urls []string
	body []model.ActionResult
}

func (f *fakeNotifier) Do(_ context.Context, _, url string, body, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.body = append(f.body, body.(model.ActionResult))
	return nil
}

func newAction(id string) model.Action {
	return model.Action{ID: id, Platform: model.Twitter, Type: model.Like, Target: "https://twitter.com/x/1", Member: "alice", Status: model.ActionQueued}
}

func TestInMemoryWorker(t *testing.T) {
	Convey("Given a worker with a safety monitor and fakes", t, func() {
		ctx := context.Background()
		rules := safety.DefaultRules()
		rules.MinDelay = 0
		monitor := safety.NewMonitor(safety.WithRules(rules))
		exec := &fakeExecutor{resp: platform.Response{ID: "tw_1", Success: true, Action: model.Like, ResponseTime: 1500 * time.Millisecond}}
		rec := newRecorder()
		notifier := &fakeNotifier{}
		deps := worker.Deps{
			Rotator:  &fakeRotator{bot: model.BotAccount{ID: "twitter_bot"}},
			Guard:    monitor,
			Executor: exec,
			Recorder: rec,
			Notifier: notifier,
		}
		w := worker.NewInMemoryWorker(nil, deps, worker.WithPermitRetry(5*time.Millisecond, time.Second))

		Convey("When the platform accepts the action", func() {
			a := newAction("a-1")
			a.Callback = "http://callback.local/hook"
			got, err := w.Process(ctx, a)

			Convey("Then it succeeds with a rotated bot and everything is recorded", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.ActionSucceeded)
				So(got.BotID, ShouldEqual, "twitter_bot")
				So(got.ResultID, ShouldEqual, "tw_1")

				stored, ok := rec.action("a-1")
				So(ok, ShouldBeTrue)
				So(stored.Status, ShouldEqual, model.ActionSucceeded)
				So(len(rec.activities), ShouldEqual, 1)
				So(rec.activities[0].Success, ShouldBeTrue)
				So(rec.activities[0].ResponseTime, ShouldEqual, 1500*time.Millisecond)
				So(monitor.Report().TotalMonitored, ShouldEqual, 1)

				So(notifier.urls, ShouldResemble, []string{"http://callback.local/hook"})
				So(notifier.body[0].Success, ShouldBeTrue)
			})
		})

		Convey("When the platform rejects the action", func() {
			exec.resp = platform.Response{Success: false, Code: platform.CodeAPIError, Message: "rate limited by platform"}
			got, err := w.Process(ctx, newAction("a-2"))

			Convey("Then it fails and the failure is recorded", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.ActionFailed)
				So(got.Error, ShouldEqual, "rate limited by platform")
				So(rec.activities[0].Success, ShouldBeFalse)
			})
		})

		Convey("When the platform has no driver", func() {
			exec.err = platform.ErrUnsupportedPlatform
			got, err := w.Process(ctx, newAction("a-3"))

			Convey("Then the action fails with the driver error", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.ActionFailed)
				So(got.Error, ShouldContainSubstring, "unsupported platform")
			})
		})

		Convey("When the hourly limit is reached", func() {
			strict := safety.DefaultRules()
			strict.MinDelay = 0
			strict.MaxPerHour = 1
			monitor.SetRules(strict)
			_, err := w.Process(ctx, newAction("a-4"))
			So(err, ShouldBeNil)
			got, err := w.Process(ctx, newAction("a-5"))

			Convey("Then the action is rejected without executing or recording activity", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.ActionRejected)
				So(got.Error, ShouldContainSubstring, "hourly")
				So(exec.count(), ShouldEqual, 1)
				So(len(rec.activities), ShouldEqual, 1)
			})
		})

		Convey("When the concurrency limit is briefly exhausted", func() {
			strict := safety.DefaultRules()
			strict.MinDelay = 0
			strict.MaxConcurrent = 1
			monitor.SetRules(strict)
			held, err := monitor.Acquire(ctx, model.Twitter, "")
			So(err, ShouldBeNil)
			time.AfterFunc(30*time.Millisecond, held.Release)

			got, err := w.Process(ctx, newAction("a-6"))

			Convey("Then the worker waits for the permit", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.ActionSucceeded)
			})
		})

		Convey("When no bot account is available", func() {
			deps.Rotator = &fakeRotator{err: errors.New("no active twitter bot")}
			w := worker.NewInMemoryWorker(nil, deps)
			got, err := w.Process(ctx, newAction("a-7"))

			Convey("Then the action fails without executing", func() {
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.ActionFailed)
				So(got.Error, ShouldContainSubstring, "no bot account")
				So(exec.count(), ShouldEqual, 0)
			})
		})

		Convey("When running against a queue", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			pool := worker.NewPool(2, q, deps)
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			pool.Start(runCtx)

			So(q.Enqueue(ctx, newAction("q-1")), ShouldBeNil)
			So(q.Enqueue(ctx, newAction("q-2")), ShouldBeNil)

			Convey("Then queued actions are processed", func() {
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					_, ok1 := rec.action("q-1")
					_, ok2 := rec.action("q-2")
					if ok1 && ok2 {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				a1, ok1 := rec.action("q-1")
				_, ok2 := rec.action("q-2")
				So(ok1 && ok2, ShouldBeTrue)
				So(a1.Status, ShouldEqual, model.ActionSucceeded)
				So(pool.Size(), ShouldEqual, 2)
				So(pool.Shutdown(ctx), ShouldBeNil)
			})
		})

		Convey("When shutting down while an action waits for a permit", func() {
			strict := safety.DefaultRules()
			strict.MinDelay = 0
			strict.MaxConcurrent = 1
			monitor.SetRules(strict)
			held, err := monitor.Acquire(ctx, model.Twitter, "")
			So(err, ShouldBeNil)
			defer held.Release()

			q := queue.NewInMemoryQueue(queue.WithCapacity(4))
			pool := worker.NewPool(1, q, deps, worker.WithPermitRetry(5*time.Millisecond, 10*time.Second))
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			pool.Start(runCtx)
			So(q.Enqueue(ctx, newAction("w-1")), ShouldBeNil)
			time.Sleep(50 * time.Millisecond)

			stopCtx, stop := context.WithTimeout(ctx, 2*time.Second)
			defer stop()
			start := time.Now()
			So(pool.Shutdown(stopCtx), ShouldBeNil)
			elapsed := time.Since(start)

			Convey("Then the worker leaves the retry loop without settling the action", func() {
				So(elapsed, ShouldBeLessThan, time.Second)
				_, stored := rec.action("w-1")
				So(stored, ShouldBeFalse)
				So(exec.count(), ShouldEqual, 0)
			})

			Convey("Then shutting down again is harmless", func() {
				So(func() { _ = pool.Shutdown(stopCtx) }, ShouldNotPanic)
			})
		})
	})
}
