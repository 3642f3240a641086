package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/okian/smmbot/internal/adapters/http/api"
	"github.com/okian/smmbot/internal/adapters/http/site"
	"github.com/okian/smmbot/internal/adapters/http/swagger"
	service "github.com/okian/smmbot/internal/app"
	"github.com/okian/smmbot/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConfigPath(t *testing.T) {
	Convey("Given a loaded configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.ConfigDir = filepath.Join("etc", "smmbot")

		Convey("When SMMBOT_CONFIG is unset it watches the main settings file", func() {
			t.Setenv(config.EnvConfigPath, "")
			So(configPath(cfg), ShouldEqual, filepath.Join("etc", "smmbot", config.MainFile))
		})

		Convey("When SMMBOT_CONFIG is set it wins", func() {
			t.Setenv(config.EnvConfigPath, "/tmp/custom.yaml")
			So(configPath(cfg), ShouldEqual, "/tmp/custom.yaml")
		})
	})
}

func TestRotation(t *testing.T) {
	Convey("Given the default logging section", t, func() {
		cfg := config.New(context.Background())

		Convey("Then every file gets its own rotation", func() {
			So(rotation(cfg.Logging.Errors).MaxSizeMB, ShouldEqual, 5)
			So(rotation(cfg.Logging.System).MaxBackups, ShouldEqual, 5)
			r := rotation(config.LogFile{MaxSizeMB: 1, MaxAgeDays: 2, Compress: true})
			So(r.MaxAgeDays, ShouldEqual, 2)
			So(r.Compress, ShouldBeTrue)
		})
	})
}

func TestConfigFromEnv(t *testing.T) {
	Convey("Given environment overrides", t, func() {
		t.Setenv(config.EnvConfigPath, "")
		t.Setenv("SMMBOT_ADDR", ":8080")
		t.Setenv("SMMBOT_QUEUE_SIZE", "1000")
		t.Setenv("SMMBOT_WORKER_COUNT", "4")

		Convey("Then configuration should be loadable", func() {
			cfg, err := config.LoadFile(context.Background(), "")
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":8080")
			So(cfg.QueueSize, ShouldEqual, 1000)
			So(cfg.WorkerCount, ShouldEqual, 4)
		})
	})
}

func TestRoutesWiring(t *testing.T) {
	Convey("Given the daemon mux before the service starts", t, func() {
		ctx := context.Background()
		svc := service.New()
		mux := http.NewServeMux()
		site.Register(ctx, mux)
		swagger.Register(ctx, mux)
		api.NewServer(svc).Register(ctx, mux)

		srv := httptest.NewServer(mux)
		defer srv.Close()

		get := func(path string) int {
			resp, err := http.Get(srv.URL + path)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			return resp.StatusCode
		}

		Convey("Then the landing page and docs are served", func() {
			So(get("/"), ShouldEqual, http.StatusOK)
			So(get("/api-docs"), ShouldEqual, http.StatusOK)
			So(get("/openapi.yaml"), ShouldEqual, http.StatusOK)
		})

		Convey("And health reports starting", func() {
			So(get("/healthz"), ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("And component routes are unavailable", func() {
			So(get("/members"), ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
