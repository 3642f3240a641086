package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/smmbot/internal/adapters/http/api"
	service "github.com/okian/smmbot/internal/app"
	"github.com/okian/smmbot/internal/client"
	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	. "github.com/smartystreets/goconvey/convey"
)

func daemonURL(t *testing.T) string {
	t.Helper()
	cfg := config.New(context.Background())
	cfg.DataDir = t.TempDir()
	cfg.LogsDir = t.TempDir()
	cfg.ConfigDir = t.TempDir()
	cfg.WorkerCount = 2
	cfg.Schedule.Enabled = false
	cfg.Safety.MinDelayBetweenActions = 0
	cfg.Safety.MaxActionsPerHour = 10_000
	cfg.Safety.MaxPostsPerDay = 10_000
	cfg.Safety.SuspiciousActivityThreshold = 10_000

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
	svc := service.New(service.WithConfig(cfg), service.WithRegistry(reg))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

// execute runs smmctl with args and returns its combined output.
func execute(url string, args ...string) (string, error) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--url", url}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	Convey("Given smmctl pointed at a running daemon", t, func() {
		url := daemonURL(t)

		Convey("Members can be managed", func() {
			out, err := execute(url, "member", "add", "alice", "--plan", "premium")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "member alice added (premium plan)")

			out, err = execute(url, "member", "list")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Members (1)")
			So(out, ShouldContainSubstring, "alice")

			out, err = execute(url, "member", "status", "alice", "inactive")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "inactive")

			out, err = execute(url, "member", "stats")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "plan premium")

			_, err = execute(url, "member", "remove", "bob")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "not_found")
		})

		Convey("Bots and actions can be driven", func() {
			out, err := execute(url, "bot", "add", "facebook", "fb1", "--password", "secret")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "facebook_fb1")

			out, err = execute(url, "bot", "list", "--platform", "facebook")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Bot accounts (1)")
			So(out, ShouldNotContainSubstring, "secret")

			out, err = execute(url, "action", "submit", "facebook", "like", "https://fb.example/p/1", "--id", "a1", "--wait", "5s")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "action a1 queued")
			So(out, ShouldContainSubstring, "succeeded")

			_, err = execute(url, "action", "submit", "facebook", "like", "https://fb.example/p/1", "--id", "a1")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "duplicate")

			out, err = execute(url, "bot", "stats")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "platform facebook")
		})

		Convey("Reports, safety, settings and backups answer", func() {
			out, err := execute(url, "analytics", "daily")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Daily statistics")

			out, err = execute(url, "safety", "report")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Safety report")

			out, err = execute(url, "settings", "safety", "max_actions_per_hour=15")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "safety settings updated")

			out, err = execute(url, "backup")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "database backed up to")

			out, err = execute(url, "status")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Schedule")

			out, err = execute(url, "logs", "--limit", "5")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "service started")

			_, err = execute(url, "logs", "stats", "performance")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "bad_request")
		})
	})
}

func TestRunLoad(t *testing.T) {
	Convey("Given a daemon with one bot per platform", t, func() {
		url := daemonURL(t)
		c := client.New(url)
		for _, p := range []string{"facebook", "instagram"} {
			_, err := execute(url, "bot", "add", p, p+"_bot", "--password", "pw")
			So(err, ShouldBeNil)
		}

		Convey("When a load run submits generated actions", func() {
			var out bytes.Buffer
			stats, err := RunLoad(context.Background(), c, LoadConfig{
				Count:     25,
				Workers:   4,
				Platforms: []model.Platform{model.Facebook, model.Instagram},
				Types:     []model.ActionType{model.Like, model.Comment},
			}, &out)

			Convey("Then every action is accepted", func() {
				So(err, ShouldBeNil)
				So(stats.Generated, ShouldEqual, 25)
				So(stats.Submitted, ShouldEqual, 25)
				So(stats.Accepted, ShouldEqual, 25)
				So(stats.Failed, ShouldEqual, 0)
			})
		})

		Convey("Invalid configs are refused", func() {
			_, err := RunLoad(context.Background(), c, LoadConfig{Count: 0, Workers: 1}, &bytes.Buffer{})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestInit(t *testing.T) {
	Convey("Given an empty directory", t, func() {
		dir := t.TempDir()

		Convey("When init runs twice", func() {
			out, err := execute("http://unused", "init", "--dir", dir)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "wrote default configuration")

			out, err = execute("http://unused", "init", "--dir", dir)
			So(err, ShouldBeNil)

			Convey("Then the layout exists and the config is kept", func() {
				So(out, ShouldContainSubstring, "kept existing")
				for _, d := range []string{"config", "logs", "data/backups", "data/analytics/exports"} {
					info, err := os.Stat(filepath.Join(dir, d))
					So(err, ShouldBeNil)
					So(info.IsDir(), ShouldBeTrue)
				}
				cfg, err := config.LoadFile(context.Background(), filepath.Join(dir, "config", config.MainFile))
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9090")
			})
		})
	})
}

func TestHelpers(t *testing.T) {
	Convey("parseAssignments keeps scalar types", t, func() {
		got, err := parseAssignments([]string{"max_actions_per_hour=15", "enabled=false", "start_time=07:30"})
		So(err, ShouldBeNil)
		So(got["max_actions_per_hour"], ShouldEqual, 15)
		So(got["enabled"], ShouldEqual, false)
		So(got["start_time"], ShouldEqual, "07:30")

		_, err = parseAssignments([]string{"novalue"})
		So(err, ShouldNotBeNil)
	})

	Convey("collectArgs builds positional and flag arguments", t, func() {
		item := menuItem{args: []string{"member", "add"}, prompts: []prompt{{label: "Username"}, {label: "Plan", flag: "plan"}, {label: "Email", flag: "email"}}}
		answers := map[string]string{"Username": "carol", "Plan": "gold"}
		args, ok := collectArgs(item, func(label string) string { return answers[label] })
		So(ok, ShouldBeTrue)
		So(args, ShouldResemble, []string{"member", "add", "carol", "--plan=gold"})

		_, ok = collectArgs(item, func(string) string { return "" })
		So(ok, ShouldBeFalse)
	})

	Convey("renderMap flattens nested objects", t, func() {
		var out bytes.Buffer
		renderMap(&out, "", map[string]any{"a": map[string]any{"b": 1.0}, "list": []any{"x", "y"}, "none": nil})
		So(out.String(), ShouldContainSubstring, "a.b")
		So(out.String(), ShouldContainSubstring, "[x, y]")
	})

	Convey("Every panel menu item maps onto a real command", t, func() {
		root := NewRootCommand()
		for _, m := range panelMenus {
			for _, it := range m.items {
				cmd, _, err := root.Find(it.args)
				So(err, ShouldBeNil)
				So(cmd, ShouldNotEqual, root)
			}
		}
	})
}
