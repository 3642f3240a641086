package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// statusCommand prints the daemon's counters, scheduler state and host info.
func statusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.client()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, banner("status"))
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			renderMap(out, "Service", stats)
			if started, _ := stats["started"].(bool); !started {
				return nil
			}
			sched, err := c.Schedule(cmd.Context())
			if err != nil {
				return err
			}
			renderMap(out, "Schedule", sched)
			info, err := c.SystemInfo(cmd.Context())
			if err != nil {
				return err
			}
			renderMap(out, "Host", info)
			return nil
		},
	}
}

func safetyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safety",
		Short: "Safety monitor report and reset",
	}
	report := &cobra.Command{
		Use:   "report",
		Short: "Show the safety report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := a.client().SafetyReport(cmd.Context())
			if err != nil {
				return err
			}
			renderMap(cmd.OutOrStdout(), "Safety report", rep)
			return nil
		},
	}
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear the safety window and lift a suspension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client().ResetSafety(cmd.Context()); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "safety monitor reset")
			return nil
		},
	}
	cmd.AddCommand(report, reset)
	return cmd
}

func backupCommand(a *app) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the database, or export one table as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.client()
			if table != "" {
				path, err := c.ExportTable(cmd.Context(), table)
				if err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "table %s exported to %s", table, path)
				return nil
			}
			path, err := c.Backup(cmd.Context())
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "database backed up to %s", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "export this table as CSV instead")
	return cmd
}

func settingsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change schedule and safety settings, list and restore backups",
	}

	set := func(section string, update func(*cobra.Command, map[string]any) error) *cobra.Command {
		return &cobra.Command{
			Use:   section + " key=value...",
			Short: "Merge values into the " + section + " settings",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				partial, err := parseAssignments(args)
				if err != nil {
					return err
				}
				if err := update(cmd, partial); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "%s settings updated", section)
				return nil
			},
		}
	}
	schedule := set("schedule", func(cmd *cobra.Command, p map[string]any) error {
		return a.client().UpdateSchedule(cmd.Context(), p)
	})
	safety := set("safety", func(cmd *cobra.Command, p map[string]any) error {
		return a.client().UpdateSafety(cmd.Context(), p)
	})

	var name string
	backups := &cobra.Command{
		Use:   "backups",
		Short: "List settings backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := a.client().SettingsBackups(cmd.Context(), name)
			if err != nil {
				return err
			}
			t := newTable("Settings backups", "FILE", "CREATED", "SIZE")
			for _, b := range list {
				t.add(b.Filename, b.Created.Local().Format(timeLayout), strconv.FormatInt(b.Size, 10))
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}
	backups.Flags().StringVar(&name, "name", "", "settings file (default the main file)")

	restore := &cobra.Command{
		Use:   "restore <backup>",
		Short: "Restore a settings backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().RestoreSettings(cmd.Context(), name, args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "restored %s", args[0])
			return nil
		},
	}
	restore.Flags().StringVar(&name, "name", "", "settings file (default the main file)")

	cmd.AddCommand(schedule, safety, backups, restore)
	return cmd
}

// parseAssignments turns key=value arguments into a map. Values are read as
// YAML scalars so numbers and booleans keep their types.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}
