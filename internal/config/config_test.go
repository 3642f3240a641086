package config_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/okian/smmbot/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.Safety.MaxActionsPerHour, convey.ShouldEqual, 20)
			convey.So(cfg.Safety.MinDelayBetweenActions, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Safety.Suspension, convey.ShouldEqual, 30*time.Minute)
			convey.So(cfg.Schedule.StartTime, convey.ShouldEqual, "06:00")
			convey.So(cfg.Schedule.EndTime, convey.ShouldEqual, "23:00")
			convey.So(cfg.Platforms, convey.ShouldContainKey, config.PlatformTwitter)
			convey.So(cfg.System.MaxMembers, convey.ShouldEqual, 100)
		})

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When the start time is malformed", func() {
			cfg.Schedule.StartTime = "25:99"

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})

		convey.Convey("When a success rate is outside [0,1]", func() {
			p := cfg.Platforms[config.PlatformFacebook]
			p.SuccessRate = 1.5
			cfg.Platforms[config.PlatformFacebook] = p

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})

		convey.Convey("When a log rotation value is negative", func() {
			cfg.Logging.Errors.MaxBackups = -1

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})

		convey.Convey("When the address is empty", func() {
			cfg.Addr = ""

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})

		convey.Convey("When concurrency is zero", func() {
			cfg.Safety.MaxConcurrentActions = 0

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
			})
		})

		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"max_actions_per_hour is zero", func(c *config.Config) { c.Safety.MaxActionsPerHour = 0 }},
			{"max_posts_per_day is zero", func(c *config.Config) { c.Safety.MaxPostsPerDay = 0 }},
			{"worker_count is zero", func(c *config.Config) { c.WorkerCount = 0 }},
			{"dedupe_size is zero", func(c *config.Config) { c.DedupeSize = 0 }},
			{"min_delay_between_actions is negative", func(c *config.Config) { c.Safety.MinDelayBetweenActions = -time.Second }},
			{"suspension is negative", func(c *config.Config) { c.Safety.Suspension = -time.Minute }},
		}
		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				tc.mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(cfg.Validate(), convey.ShouldWrap, config.ErrInvalidConfig)
				})
			})
		}

		convey.Convey("When the minimum delay is zero", func() {
			cfg.Safety.MinDelayBetweenActions = 0

			convey.Convey("Then it still validates", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}

func TestParseClock(t *testing.T) {
	convey.Convey("Given HH:MM values", t, func() {
		m, err := config.ParseClock("06:30")
		convey.So(err, convey.ShouldBeNil)
		convey.So(m, convey.ShouldEqual, 390)

		m, err = config.ParseClock("23:59")
		convey.So(err, convey.ShouldBeNil)
		convey.So(m, convey.ShouldEqual, 23*60+59)

		_, err = config.ParseClock("noon")
		convey.So(err, convey.ShouldWrap, config.ErrInvalidConfig)
	})
}
