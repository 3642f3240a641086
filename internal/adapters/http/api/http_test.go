package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/smmbot/internal/adapters/http/api"
	service "github.com/okian/smmbot/internal/app"
	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	. "github.com/smartystreets/goconvey/convey"
)

var _ api.Dependencies = (*service.Service)(nil)

func testService(t *testing.T) *service.Service {
	t.Helper()
	cfg := config.New(context.Background())
	cfg.DataDir = t.TempDir()
	cfg.LogsDir = t.TempDir()
	cfg.ConfigDir = t.TempDir()
	cfg.WorkerCount = 1
	cfg.Schedule.Enabled = false
	cfg.Safety.MinDelayBetweenActions = 0

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
	return service.New(service.WithConfig(cfg), service.WithRegistry(reg))
}

type client struct {
	mux *http.ServeMux
}

func (c client) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	c.mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](w *httptest.ResponseRecorder) T {
	var v T
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	return v
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// settle waits for the maintenance tasks of the first scheduler tick.
func settle(svc *service.Service) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done := true
		for _, ts := range svc.Schedule().Tasks {
			if ts.Runs == 0 {
				done = false
			}
		}
		if done {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newClient(svc *service.Service) client {
	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	return client{mux: mux}
}

func TestServer_NotStarted(t *testing.T) {
	Convey("Given an API over a service that is not running", t, func() {
		c := newClient(testService(t))

		Convey("Then health reports starting and stats stay available", func() {
			So(c.do("GET", "/healthz", nil).Code, ShouldEqual, http.StatusServiceUnavailable)
			So(c.do("GET", "/stats", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/metrics", nil).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then component routes answer 503", func() {
			w := c.do("GET", "/members", nil)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeBody[apiError](w).Code, ShouldEqual, "unavailable")
		})
	})
}

func TestServer_Actions(t *testing.T) {
	Convey("Given a running API with a facebook bot", t, func() {
		svc := testService(t)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		c := newClient(svc)

		w := c.do("POST", "/bots", map[string]string{"platform": "facebook", "username": "fb1", "password": "pw"})
		So(w.Code, ShouldEqual, http.StatusCreated)
		So(w.Body.String(), ShouldNotContainSubstring, "pw")

		Convey("When posting an action", func() {
			w := c.do("POST", "/actions", model.ActionRequest{ID: "act-1", Platform: "facebook", Type: "like", Target: "https://fb.example/p/1"})

			Convey("Then it is accepted and eventually succeeds", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decodeBody[model.Action](w).Status, ShouldEqual, model.ActionQueued)

				var got model.Action
				deadline := time.Now().Add(5 * time.Second)
				for time.Now().Before(deadline) {
					got = decodeBody[model.Action](c.do("GET", "/actions/act-1", nil))
					if got.Status != model.ActionQueued {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(got.Status, ShouldEqual, model.ActionSucceeded)
				So(got.BotID, ShouldEqual, "facebook_fb1")
			})

			Convey("Then posting it again conflicts", func() {
				again := c.do("POST", "/actions", model.ActionRequest{ID: "act-1", Platform: "facebook", Type: "like", Target: "https://fb.example/p/1"})
				So(again.Code, ShouldEqual, http.StatusConflict)
				So(decodeBody[apiError](again).Code, ShouldEqual, "duplicate")
			})
		})

		Convey("When posting invalid input", func() {
			Convey("Then malformed JSON is a bad request", func() {
				So(c.do("POST", "/actions", "{").Code, ShouldEqual, http.StatusBadRequest)
			})
			Convey("Then an unknown platform is a bad request", func() {
				w := c.do("POST", "/actions", model.ActionRequest{Platform: "myspace", Type: "like", Target: "x"})
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody[apiError](w).Code, ShouldEqual, "bad_request")
			})
			Convey("Then an empty batch is a bad request", func() {
				So(c.do("POST", "/actions/batch", map[string]any{"actions": []any{}}).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When posting a batch", func() {
			w := c.do("POST", "/actions/batch", map[string]any{"actions": []model.ActionRequest{
				{Platform: "facebook", Type: "share", Target: "https://fb.example/p/2"},
				{Platform: "facebook", Type: "comment", Target: "https://fb.example/p/2"},
			}})

			Convey("Then accepted and rejected requests are counted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				resp := decodeBody[struct {
					Accepted int               `json:"accepted"`
					Rejected int               `json:"rejected"`
					Results  []model.BatchItem `json:"results"`
				}](w)
				So(resp.Accepted, ShouldEqual, 1)
				So(resp.Rejected, ShouldEqual, 1)
				So(resp.Results, ShouldHaveLength, 2)
			})
		})

		Convey("When getting an unknown action", func() {
			Convey("Then it is not found", func() {
				So(c.do("GET", "/actions/nope", nil).Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestServer_MembersAndBots(t *testing.T) {
	Convey("Given a running API", t, func() {
		svc := testService(t)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		settle(svc)
		c := newClient(svc)

		Convey("When managing a member", func() {
			So(c.do("POST", "/members", map[string]string{"username": "alice", "plan": "pro"}).Code, ShouldEqual, http.StatusCreated)

			Convey("Then duplicates conflict and missing names are rejected", func() {
				So(c.do("POST", "/members", map[string]string{"username": "alice"}).Code, ShouldEqual, http.StatusConflict)
				So(c.do("POST", "/members", map[string]string{"username": " "}).Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then status, targets and activity round-trip", func() {
				w := c.do("PUT", "/members/alice/status", map[string]string{"status": "suspended"})
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[model.Member](w).Status, ShouldEqual, model.MemberSuspended)
				So(c.do("PUT", "/members/alice/status", map[string]string{"status": "gone"}).Code, ShouldEqual, http.StatusBadRequest)

				So(c.do("POST", "/members/alice/targets", map[string]string{"platform": "instagram", "url": "https://ig.example/p"}).Code, ShouldEqual, http.StatusCreated)
				So(decodeBody[[]model.Target](c.do("GET", "/members/alice/targets", nil)), ShouldHaveLength, 1)

				acts := decodeBody[[]model.MemberActivity](c.do("GET", "/members/alice/activity?limit=10", nil))
				So(len(acts), ShouldBeGreaterThanOrEqualTo, 3)
				So(c.do("GET", "/members/alice/activity?limit=0", nil).Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then list filters by status and stats count the member", func() {
				So(decodeBody[[]model.Member](c.do("GET", "/members?status=active", nil)), ShouldHaveLength, 1)
				So(decodeBody[[]model.Member](c.do("GET", "/members?status=inactive", nil)), ShouldHaveLength, 0)
				st := decodeBody[map[string]any](c.do("GET", "/members/stats", nil))
				So(st["total_members"], ShouldNotBeNil)
			})

			Convey("Then it can be deleted once", func() {
				So(c.do("DELETE", "/members/alice", nil).Code, ShouldEqual, http.StatusNoContent)
				So(c.do("GET", "/members/alice", nil).Code, ShouldEqual, http.StatusNotFound)
				So(c.do("DELETE", "/members/alice", nil).Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When managing bot accounts", func() {
			So(c.do("POST", "/bots", map[string]string{"platform": "twitter", "username": "tw1", "password": "pw"}).Code, ShouldEqual, http.StatusCreated)
			So(c.do("POST", "/bots", map[string]string{"platform": "youtube", "username": "yt1", "password": "pw"}).Code, ShouldEqual, http.StatusCreated)

			Convey("Then list filters by platform", func() {
				So(decodeBody[[]model.BotAccount](c.do("GET", "/bots?platform=twitter", nil)), ShouldHaveLength, 1)
				So(c.do("GET", "/bots?platform=myspace", nil).Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then rotation picks an active account", func() {
				w := c.do("POST", "/bots/rotate", map[string]string{"platform": "twitter"})
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[model.BotAccount](w).ID, ShouldEqual, "twitter_tw1")
				So(c.do("POST", "/bots/rotate", map[string]string{"platform": "instagram"}).Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then a dead account is cleaned", func() {
				So(c.do("PUT", "/bots/twitter_tw1/status", map[string]string{"status": "dead"}).Code, ShouldEqual, http.StatusOK)
				w := c.do("POST", "/bots/clean", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[map[string]int](w)["removed"], ShouldEqual, 1)
				So(c.do("GET", "/bots/twitter_tw1", nil).Code, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then health checks report per account", func() {
				w := c.do("POST", "/bots/twitter_tw1/health", nil)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody[map[string]any](w)["healthy"], ShouldEqual, true)

				all := decodeBody[[]map[string]any](c.do("POST", "/bots/health", nil))
				So(all, ShouldHaveLength, 2)
			})
		})
	})
}

func TestServer_System(t *testing.T) {
	Convey("Given a running API", t, func() {
		svc := testService(t)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		c := newClient(svc)

		Convey("Then reporting endpoints answer", func() {
			So(c.do("GET", "/healthz", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/analytics/daily", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/analytics/daily?date=yesterday", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(c.do("GET", "/analytics/weekly", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/dashboard", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/health/system", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/system/info", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/schedule", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/safety/report", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("POST", "/safety/reset", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/safety/events", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/logs?limit=5", nil).Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then exports and backups write files", func() {
			So(c.do("POST", "/analytics/export", map[string]string{"report": "weekly", "format": "csv"}).Code, ShouldEqual, http.StatusCreated)
			So(c.do("POST", "/analytics/export", map[string]string{"report": "weekly", "format": "xml"}).Code, ShouldEqual, http.StatusBadRequest)
			So(c.do("POST", "/backup", nil).Code, ShouldEqual, http.StatusCreated)
			So(c.do("POST", "/export/members", nil).Code, ShouldEqual, http.StatusCreated)
			So(c.do("POST", "/export/sqlite_master", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then log files are summarized and exported", func() {
			line := `{"time":"2024-05-01T10:00:00Z","level":"ERROR","msg":"database unavailable"}` + "\n"
			So(os.WriteFile(filepath.Join(svc.Config().LogsDir, "system.log"), []byte(line), 0o644), ShouldBeNil)

			w := c.do("GET", "/logs/system/stats", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			st := decodeBody[map[string]any](w)
			So(st["total_entries"], ShouldEqual, 1.0)
			So(st["errors"], ShouldEqual, 1.0)

			So(c.do("POST", "/logs/system/export?format=text", nil).Code, ShouldEqual, http.StatusCreated)
			So(c.do("POST", "/logs/system/export?format=xml", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(c.do("GET", "/logs/activity/stats", nil).Code, ShouldEqual, http.StatusNotFound)
			So(c.do("GET", "/logs/performance/stats", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then platforms are checked by name", func() {
			w := c.do("GET", "/platforms/facebook/limits", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody[platform.RateLimits](w).RequestsPerHour, ShouldBeGreaterThan, 0)
			So(c.do("GET", "/platforms/facebook/health", nil).Code, ShouldEqual, http.StatusOK)
			So(c.do("GET", "/platforms/tiktok/health", nil).Code, ShouldEqual, http.StatusNotFound)
			So(c.do("GET", "/platforms/myspace/health", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then settings sections are merged and backed up", func() {
			So(c.do("PATCH", "/settings/safety", map[string]any{"max_actions_per_hour": 15}).Code, ShouldEqual, http.StatusOK)
			So(c.do("PATCH", "/settings/safety", map[string]any{"max_actions_per_hour": 16}).Code, ShouldEqual, http.StatusOK)
			So(c.do("PATCH", "/settings/schedule", map[string]any{}).Code, ShouldEqual, http.StatusBadRequest)
			So(c.do("PATCH", "/settings/schedule", map[string]any{"start_time": "25:99"}).Code, ShouldEqual, http.StatusBadRequest)
			So(c.do("PATCH", "/settings/safety", map[string]any{"no_such_rule": 1}).Code, ShouldEqual, http.StatusBadRequest)
			So(c.do("PATCH", "/settings/safety", map[string]any{"min_delay_between_actions": 30}).Code, ShouldEqual, http.StatusOK)
			saved, err := svc.Settings().Load(svc.Settings().Main())
			So(err, ShouldBeNil)
			So(saved["safety"].(map[string]any)["min_delay_between_actions"], ShouldEqual, "30s")
			backups := decodeBody[[]config.Backup](c.do("GET", "/settings/backups", nil))
			So(len(backups), ShouldBeGreaterThanOrEqualTo, 1)
			So(c.do("POST", "/settings/restore", map[string]string{"backup": "missing"}).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
