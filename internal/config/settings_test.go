package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/smmbot/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestSettings(t *testing.T) {
	convey.Convey("Given a settings manager with a fixed clock", t, func() {
		root := t.TempDir()
		configDir := filepath.Join(root, "config")
		backupDir := filepath.Join(root, "backups")
		now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
		s := config.NewSettings(configDir, backupDir, config.WithClock(func() time.Time { return now }))

		convey.Convey("When loading a missing file", func() {
			_, err := s.Load("absent.yaml")

			convey.Convey("Then ErrSettingsNotFound is returned", func() {
				convey.So(err, convey.ShouldWrap, config.ErrSettingsNotFound)
			})
		})

		convey.Convey("When saving a new file", func() {
			err := s.Save("panel.yaml", map[string]any{"theme": "dark"})

			convey.Convey("Then it can be loaded back without a backup", func() {
				convey.So(err, convey.ShouldBeNil)
				data, err := s.Load("panel.yaml")
				convey.So(err, convey.ShouldBeNil)
				convey.So(data["theme"], convey.ShouldEqual, "dark")

				backups, err := s.ListBackups("panel.yaml")
				convey.So(err, convey.ShouldBeNil)
				convey.So(backups, convey.ShouldBeEmpty)
			})

			convey.Convey("And saving it again backs up the previous version", func() {
				now = now.Add(time.Minute)
				convey.So(s.Save("panel.yaml", map[string]any{"theme": "light"}), convey.ShouldBeNil)

				backups, err := s.ListBackups("panel.yaml")
				convey.So(err, convey.ShouldBeNil)
				convey.So(backups, convey.ShouldHaveLength, 1)
				convey.So(backups[0].Filename, convey.ShouldEqual, "panel.yaml.backup_20240501_100100")

				convey.Convey("Then restoring brings the old value back", func() {
					now = now.Add(time.Minute)
					convey.So(s.Restore("panel.yaml", backups[0].Filename), convey.ShouldBeNil)
					data, err := s.Load("panel.yaml")
					convey.So(err, convey.ShouldBeNil)
					convey.So(data["theme"], convey.ShouldEqual, "dark")

					all, err := s.ListBackups("panel.yaml")
					convey.So(err, convey.ShouldBeNil)
					convey.So(all, convey.ShouldHaveLength, 2)
					convey.So(all[0].Filename, convey.ShouldEqual, "panel.yaml.backup_20240501_100200")
				})
			})
		})

		convey.Convey("When restoring an unknown backup", func() {
			err := s.Restore("panel.yaml", "panel.yaml.backup_19990101_000000")

			convey.Convey("Then ErrBackupNotFound is returned", func() {
				convey.So(err, convey.ShouldWrap, config.ErrBackupNotFound)
			})
		})

		convey.Convey("When updating schedule and safety sections", func() {
			convey.So(s.UpdateSchedule(map[string]any{"start_time": "07:00"}), convey.ShouldBeNil)
			convey.So(s.UpdateSafetyRules(map[string]any{"max_actions_per_hour": 12}), convey.ShouldBeNil)
			convey.So(s.UpdateSchedule(map[string]any{"end_time": "21:00"}), convey.ShouldBeNil)

			convey.Convey("Then the sections merge and the file is stamped", func() {
				data, err := s.Load(config.MainFile)
				convey.So(err, convey.ShouldBeNil)
				schedule := data["schedule"].(map[string]any)
				convey.So(schedule["start_time"], convey.ShouldEqual, "07:00")
				convey.So(schedule["end_time"], convey.ShouldEqual, "21:00")
				safety := data["safety"].(map[string]any)
				convey.So(safety["max_actions_per_hour"], convey.ShouldEqual, 12)
				convey.So(data["last_updated"], convey.ShouldEqual, now.Format(time.RFC3339))
			})

			convey.Convey("Then the result still loads as a Config", func() {
				cfg, err := config.LoadFile(t.Context(), filepath.Join(configDir, config.MainFile))
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Schedule.StartTime, convey.ShouldEqual, "07:00")
				convey.So(cfg.Safety.MaxActionsPerHour, convey.ShouldEqual, 12)
			})
		})

		convey.Convey("When a duration arrives as a bare number", func() {
			err := s.UpdateSafetyRules(map[string]any{"min_delay_between_actions": float64(30), "suspension": 90})

			convey.Convey("Then it is stored and loaded as seconds", func() {
				convey.So(err, convey.ShouldBeNil)
				data, err := s.Load(config.MainFile)
				convey.So(err, convey.ShouldBeNil)
				convey.So(data["safety"].(map[string]any)["min_delay_between_actions"], convey.ShouldEqual, "30s")

				cfg, err := config.LoadFile(t.Context(), filepath.Join(configDir, config.MainFile))
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Safety.MinDelayBetweenActions, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.Safety.Suspension, convey.ShouldEqual, 90*time.Second)
			})
		})

		convey.Convey("When an update would make the file invalid", func() {
			convey.So(s.UpdateSchedule(map[string]any{"start_time": "07:00"}), convey.ShouldBeNil)
			path := filepath.Join(configDir, config.MainFile)
			before, err := os.ReadFile(path)
			convey.So(err, convey.ShouldBeNil)

			badClock := s.UpdateSchedule(map[string]any{"start_time": "25:99"})
			unknown := s.UpdateSafetyRules(map[string]any{"max_actions_per_hr": 5})
			zero := s.UpdateSafetyRules(map[string]any{"max_actions_per_hour": 0})
			badDuration := s.UpdateSafetyRules(map[string]any{"suspension": "soon"})

			convey.Convey("Then ErrInvalidConfig is returned and the file is unchanged", func() {
				convey.So(badClock, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(unknown, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(zero, convey.ShouldWrap, config.ErrInvalidConfig)
				convey.So(badDuration, convey.ShouldWrap, config.ErrInvalidConfig)

				after, err := os.ReadFile(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(after), convey.ShouldEqual, string(before))

				backups, err := s.ListBackups(config.MainFile)
				convey.So(err, convey.ShouldBeNil)
				convey.So(backups, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the main file is renamed", func() {
			custom := config.NewSettings(configDir, backupDir, config.WithMainFile("/etc/smmbot/daemon.yaml"))
			convey.So(custom.UpdateSchedule(map[string]any{"end_time": "20:00"}), convey.ShouldBeNil)

			convey.Convey("Then updates go to that file", func() {
				convey.So(custom.Main(), convey.ShouldEqual, "daemon.yaml")
				data, err := custom.Load("daemon.yaml")
				convey.So(err, convey.ShouldBeNil)
				convey.So(data["schedule"].(map[string]any)["end_time"], convey.ShouldEqual, "20:00")
				_, err = os.Stat(filepath.Join(configDir, config.MainFile))
				convey.So(os.IsNotExist(err), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When old backups exist", func() {
			convey.So(os.MkdirAll(backupDir, 0o755), convey.ShouldBeNil)
			old := filepath.Join(backupDir, "smmbot.yaml.backup_20240101_000000")
			fresh := filepath.Join(backupDir, "smmbot.yaml.backup_20240430_000000")
			convey.So(os.WriteFile(old, []byte("a: 1\n"), 0o644), convey.ShouldBeNil)
			convey.So(os.WriteFile(fresh, []byte("a: 2\n"), 0o644), convey.ShouldBeNil)
			convey.So(os.Chtimes(old, now.AddDate(0, 0, -40), now.AddDate(0, 0, -40)), convey.ShouldBeNil)
			convey.So(os.Chtimes(fresh, now.AddDate(0, 0, -1), now.AddDate(0, 0, -1)), convey.ShouldBeNil)

			removed, err := s.CleanupOldBackups(30)

			convey.Convey("Then only the stale one is removed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(removed, convey.ShouldEqual, 1)
				_, err := os.Stat(fresh)
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}
