package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func logsCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent system messages, summarize or export log files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.client().Logs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			t := newTable(fmt.Sprintf("System log (%d)", len(rows)), "TIME", "LEVEL", "MODULE", "MESSAGE")
			for _, r := range rows {
				t.add(cell(r["created_at"]), cell(r["log_level"]), cell(r["module"]), cell(r["message"]))
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows")

	stats := &cobra.Command{
		Use:   "stats <system|errors|activity>",
		Short: "Count the entries of a log file by level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.client().LogStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := newTable(args[0]+".log", "ENTRIES", "ERRORS", "WARNINGS", "INFO", "LAST")
			last := "-"
			if !st.LastActivity.IsZero() {
				last = st.LastActivity.Local().Format(timeLayout)
			}
			t.add(strconv.Itoa(st.TotalEntries), strconv.Itoa(st.Errors), strconv.Itoa(st.Warnings), strconv.Itoa(st.Info), last)
			t.render(cmd.OutOrStdout())
			return nil
		},
	}

	var format string
	export := &cobra.Command{
		Use:   "export <system|errors|activity>",
		Short: "Export a log file on the daemon host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.client().ExportLogs(cmd.Context(), args[0], format)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "%s log exported to %s", args[0], path)
			return nil
		},
	}
	export.Flags().StringVar(&format, "format", "json", "json or text")

	cmd.AddCommand(stats, export)
	return cmd
}

func cell(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}
