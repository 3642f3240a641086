package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	service "github.com/okian/smmbot/internal/app"
	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	. "github.com/smartystreets/goconvey/convey"
)

// testConfig returns a configuration rooted in temp dirs with limits that
// never get in the way.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New(context.Background())
	cfg.DataDir = t.TempDir()
	cfg.LogsDir = t.TempDir()
	cfg.ConfigDir = t.TempDir()
	cfg.WorkerCount = 2
	cfg.QueueSize = 100
	cfg.DedupeSize = 1000
	cfg.Schedule.Enabled = false
	cfg.Safety.MinDelayBetweenActions = 0
	cfg.Safety.MaxActionsPerHour = 1000
	cfg.Safety.MaxPostsPerDay = 1000
	cfg.Safety.SuspiciousActivityThreshold = 1000
	return cfg
}

// instantRegistry answers immediately and always succeeds.
func instantRegistry() *platform.Registry {
	reg := platform.NewRegistry()
	for _, p := range []model.Platform{model.Facebook, model.Instagram, model.Twitter} {
		reg.Register(p, platform.NewSimulatedDriver(p,
			platform.WithLatencyRange(0, 0),
			platform.WithSuccessRate(1),
			platform.WithHealthRate(1),
			platform.WithAccountHealthRate(1),
			platform.WithHealthDelay(0),
		))
	}
	return reg
}

func startService(t *testing.T, cfg *config.Config, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append([]service.Option{
		service.WithConfig(cfg),
		service.WithRegistry(instantRegistry()),
		service.WithPermitRetry(10*time.Millisecond, 100*time.Millisecond),
	}, opts...)
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	return svc
}

// eventually polls cond for up to five seconds.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// waitDone polls until the action leaves the queued state.
func waitDone(ctx context.Context, svc *service.Service, id string) model.Action {
	deadline := time.Now().Add(5 * time.Second)
	for {
		a, err := svc.Action(ctx, id)
		if err == nil && a.Status != model.ActionQueued {
			return a
		}
		if time.Now().After(deadline) {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that has not been started", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithConfig(testConfig(t)))

		Convey("Then operations report it is not running", func() {
			_, err := svc.Submit(ctx, model.ActionRequest{Platform: "facebook", Type: "like", Target: "https://fb.example/p/1"})
			So(err, ShouldWrap, service.ErrNotStarted)
			_, err = svc.Backup(ctx)
			So(err, ShouldWrap, service.ErrNotStarted)
			So(svc.GetStats()["status"], ShouldEqual, service.StatusStopped)
		})

		Convey("Then Stop is a no-op", func() {
			So(func() { svc.Stop() }, ShouldNotPanic)
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := testConfig(t)
		cfg.Addr = ""
		svc := service.New(service.WithConfig(cfg))

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldWrap, config.ErrInvalidConfig)
		})
	})

	Convey("Given a started service", t, func() {
		svc := startService(t, testConfig(t))
		defer svc.Stop()

		Convey("Then it reports online with its components", func() {
			So(eventually(func() bool { return svc.Schedule().Active }), ShouldBeTrue)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["status"], ShouldEqual, service.StatusOnline)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["platforms"], ShouldHaveLength, 3)
			So(svc.Members(), ShouldNotBeNil)
			So(svc.Bots(), ShouldNotBeNil)
			So(svc.Analytics(), ShouldNotBeNil)
			So(svc.Safety(), ShouldNotBeNil)
			So(svc.Settings(), ShouldNotBeNil)
		})

		Convey("Then the maintenance tasks are registered", func() {
			names := []string{}
			for _, ts := range svc.Schedule().Tasks {
				names = append(names, ts.Name)
			}
			So(names, ShouldContain, service.TaskHealthCheck)
			So(names, ShouldContain, service.TaskBackup)
			So(names, ShouldContain, service.TaskCleanup)
			So(names, ShouldContain, service.TaskDashboard)
			So(names, ShouldContain, service.TaskDeadBots)
		})

		Convey("When stopped", func() {
			svc.Stop()

			Convey("Then it is no longer running", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				_, err := svc.Action(context.Background(), "x")
				So(err, ShouldWrap, service.ErrNotStarted)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a started service with a facebook bot", t, func() {
		ctx := context.Background()
		svc := startService(t, testConfig(t))
		defer svc.Stop()

		bot, err := svc.Bots().Add(ctx, accounts.NewBot{Platform: "facebook", Username: "fb_one", Password: "secret"})
		So(err, ShouldBeNil)

		Convey("When submitting a valid action without an ID", func() {
			a, err := svc.Submit(ctx, model.ActionRequest{Platform: "Facebook", Type: "like", Target: " https://fb.example/p/1 "})
			So(err, ShouldBeNil)

			Convey("Then it is queued under a generated ID", func() {
				So(a.ID, ShouldNotBeEmpty)
				So(a.Status, ShouldEqual, model.ActionQueued)
				So(a.Platform, ShouldEqual, model.Facebook)
				So(a.Target, ShouldEqual, "https://fb.example/p/1")
			})

			Convey("Then a worker executes it with the rotated bot", func() {
				done := waitDone(ctx, svc, a.ID)
				So(done.Status, ShouldEqual, model.ActionSucceeded)
				So(done.BotID, ShouldEqual, bot.ID)
				So(done.ResultID, ShouldStartWith, "fb_")

				st, err := svc.Analytics().Daily(ctx, time.Now())
				So(err, ShouldBeNil)
				So(st.Total, ShouldEqual, 1)
				So(st.Successful, ShouldEqual, 1)
			})
		})

		Convey("When submitting with a callback URL", func() {
			got := make(chan model.ActionResult, 1)
			agent := make(chan string, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var res model.ActionResult
				_ = json.NewDecoder(r.Body).Decode(&res)
				agent <- r.Header.Get("User-Agent")
				got <- res
			}))
			defer srv.Close()

			a, err := svc.Submit(ctx, model.ActionRequest{Platform: "facebook", Type: "like", Target: "https://fb.example/p/9", Callback: srv.URL})
			So(err, ShouldBeNil)

			Convey("Then the result is posted to it", func() {
				select {
				case res := <-got:
					So(res.ActionID, ShouldEqual, a.ID)
					So(res.Success, ShouldBeTrue)
					So(<-agent, ShouldStartWith, "smmbot-callback")
				case <-time.After(5 * time.Second):
					So("callback", ShouldEqual, "delivered")
				}
			})
		})

		Convey("When submitting the same ID twice", func() {
			req := model.ActionRequest{ID: "a-1", Platform: "facebook", Type: "follow", Target: "https://fb.example/u/1"}
			_, err := svc.Submit(ctx, req)
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, req)

			Convey("Then the second is a duplicate", func() {
				So(err, ShouldWrap, service.ErrDuplicate)
			})
		})

		Convey("When submitting invalid actions", func() {
			cases := []model.ActionRequest{
				{Platform: "myspace", Type: "like", Target: "x"},
				{Platform: "facebook", Type: "poke", Target: "x"},
				{Platform: "facebook", Type: "like"},
				{Platform: "facebook", Type: "comment", Target: "x"},
				{Platform: "facebook", Type: "post"},
			}

			Convey("Then each is rejected as invalid", func() {
				for _, req := range cases {
					_, err := svc.Submit(ctx, req)
					So(err, ShouldWrap, service.ErrInvalidAction)
				}
			})
		})

		Convey("When submitting for a platform without active bots", func() {
			a, err := svc.Submit(ctx, model.ActionRequest{Platform: "twitter", Type: "like", Target: "https://x.example/1"})
			So(err, ShouldBeNil)

			Convey("Then the action fails", func() {
				done := waitDone(ctx, svc, a.ID)
				So(done.Status, ShouldEqual, model.ActionFailed)
				So(done.Error, ShouldContainSubstring, "no bot account")
			})
		})

		Convey("When submitting a batch", func() {
			items, err := svc.SubmitBatch(ctx, []model.ActionRequest{
				{ID: "b-1", Platform: "facebook", Type: "share", Target: "https://fb.example/p/2"},
				{ID: "b-1", Platform: "facebook", Type: "share", Target: "https://fb.example/p/2"},
				{Platform: "facebook", Type: "nope", Target: "x"},
			})
			So(err, ShouldBeNil)

			Convey("Then every request has an outcome", func() {
				So(items, ShouldHaveLength, 3)
				So(items[0].Action, ShouldNotBeNil)
				So(items[0].Error, ShouldBeEmpty)
				So(items[1].Action, ShouldBeNil)
				So(items[1].Error, ShouldContainSubstring, "duplicate")
				So(items[2].Error, ShouldContainSubstring, "invalid action")
			})
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	Convey("Given a paused service with a one-slot queue", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.WorkerCount = 1
		cfg.QueueSize = 1
		cfg.Schedule.Enabled = true
		cfg.Schedule.StartTime = "06:00"
		cfg.Schedule.EndTime = "23:00"
		night := time.Date(2026, 6, 15, 3, 0, 0, 0, time.Local)
		svc := startService(t, cfg, service.WithClock(func() time.Time { return night }))
		defer svc.Stop()

		Convey("When submitting more actions than workers and queue hold", func() {
			var full error
			var fullID string
			for i := range 5 {
				req := model.ActionRequest{ID: "q-" + string(rune('a'+i)), Platform: "facebook", Type: "like", Target: "https://fb.example/p"}
				if _, err := svc.Submit(ctx, req); err != nil {
					full, fullID = err, req.ID
				}
			}

			Convey("Then the overflow is refused and not stored", func() {
				So(full, ShouldWrap, service.ErrQueueFull)
				_, err := svc.Action(ctx, fullID)
				So(err, ShouldNotBeNil)

				_, err = svc.Submit(ctx, model.ActionRequest{ID: fullID, Platform: "facebook", Type: "like", Target: "https://fb.example/p"})
				So(errors.Is(err, service.ErrDuplicate), ShouldBeFalse)
			})

			Convey("Then the service reports it is paused", func() {
				So(eventually(func() bool { return svc.Schedule().Enabled && !svc.Schedule().WithinHours }), ShouldBeTrue)
				So(svc.GetStats()["status"], ShouldEqual, service.StatusPaused)
			})
		})
	})
}
