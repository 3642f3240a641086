package service

import (
	"context"
	"time"

	"github.com/okian/smmbot/internal/config"
	"github.com/okian/smmbot/internal/domain/model"
	"github.com/okian/smmbot/internal/domain/platform"
	"github.com/okian/smmbot/internal/domain/safety"
	"github.com/okian/smmbot/internal/domain/schedule"
	"github.com/okian/smmbot/pkg/logger"
)

func safetyRules(c config.Safety) safety.Rules {
	return safety.Rules{
		MaxPerDay:           c.MaxPostsPerDay,
		MaxPerHour:          c.MaxActionsPerHour,
		MaxConcurrent:       c.MaxConcurrentActions,
		MinDelay:            c.MinDelayBetweenActions,
		SuspiciousThreshold: c.SuspiciousActivityThreshold,
		AutoSuspend:         c.AutoSuspendOnDetection,
		RateLimiting:        c.RateLimiting,
		Suspension:          c.Suspension,
		WindowSize:          c.WindowSize,
	}
}

// scheduleConfig assumes c passed config.Validate.
func scheduleConfig(c config.Schedule) schedule.Config {
	start, _ := config.ParseClock(c.StartTime)
	end, _ := config.ParseClock(c.EndTime)
	out := schedule.Config{Enabled: c.Enabled, Start: start, End: end}
	for _, b := range c.Breaks {
		out.Breaks = append(out.Breaks, schedule.Break{
			After:   time.Duration(b.AfterMinutes) * time.Minute,
			Length:  time.Duration(b.BreakMinutes) * time.Minute,
			Enabled: b.Enabled,
		})
	}
	return out
}

// buildRegistry creates a simulated driver for every configured platform.
func buildRegistry(ctx context.Context, cfg *config.Config, log logger.Logger) *platform.Registry {
	reg := platform.NewRegistry()
	for name, pc := range cfg.Platforms {
		p, err := model.ParsePlatform(name)
		if err != nil {
			log.Warn(ctx, "skipping unknown platform", logger.String("platform", name))
			continue
		}
		reg.Register(p, platform.NewSimulatedDriver(p,
			platform.WithSuccessRate(pc.SuccessRate),
			platform.WithHealthRate(pc.HealthRate),
			platform.WithAccountHealthRate(pc.AccountHealthRate),
			platform.WithLatencyRange(pc.MinLatency, pc.MaxLatency),
			platform.WithRateLimits(platform.RateLimits{
				RequestsPerHour:  pc.RequestsPerHour,
				RequestsPerDay:   pc.RequestsPerDay,
				ActionsPerMinute: pc.ActionsPerMinute,
			}),
		))
	}
	return reg
}
