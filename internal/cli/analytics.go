package cli

import (
	"github.com/spf13/cobra"
)

func analyticsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Reports and dashboard",
	}

	var date string
	daily := &cobra.Command{
		Use:   "daily",
		Short: "Show one day's statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().Daily(cmd.Context(), date)
			if err != nil {
				return err
			}
			renderMap(cmd.OutOrStdout(), "Daily statistics", st)
			return nil
		},
	}
	daily.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")

	weekly := &cobra.Command{
		Use:   "weekly",
		Short: "Show the seven-day report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rep, err := a.client().Weekly(cmd.Context())
			if err != nil {
				return err
			}
			renderMap(cmd.OutOrStdout(), "Weekly report", rep)
			return nil
		},
	}

	dashboard := &cobra.Command{
		Use:   "dashboard",
		Short: "Show and save a dashboard snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.client().Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			renderMap(cmd.OutOrStdout(), "Dashboard", d)
			return nil
		},
	}

	var report, format string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export a report on the daemon host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.client().Export(cmd.Context(), report, format)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "report exported to %s", path)
			return nil
		},
	}
	export.Flags().StringVar(&report, "report", "daily", "daily or weekly")
	export.Flags().StringVar(&format, "format", "json", "json or csv")

	health := &cobra.Command{
		Use:   "health",
		Short: "Show component health of the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.client().SystemHealth(cmd.Context())
			if err != nil {
				return err
			}
			renderMap(cmd.OutOrStdout(), "System health", h)
			return nil
		},
	}

	cmd.AddCommand(daily, weekly, dashboard, export, health)
	return cmd
}
