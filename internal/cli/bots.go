package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/model"
)

func botCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bot",
		Aliases: []string{"bots"},
		Short:   "Manage bot accounts",
	}

	var in accounts.NewBot
	add := &cobra.Command{
		Use:   "add <platform> <username>",
		Short: "Register a bot account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Platform, in.Username = args[0], args[1]
			b, err := a.client().AddBot(cmd.Context(), in)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "bot %s added", b.ID)
			return nil
		},
	}
	add.Flags().StringVar(&in.Password, "password", "", "account password (stored hashed)")
	add.Flags().StringVar(&in.Email, "email", "", "account email")

	var platform, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List bot accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bots, err := a.client().Bots(cmd.Context(), platform, status)
			if err != nil {
				return err
			}
			botTable(bots).render(cmd.OutOrStdout())
			return nil
		},
	}
	list.Flags().StringVar(&platform, "platform", "", "filter by platform")
	list.Flags().StringVar(&status, "status", "", "filter by status: active, dead, suspended")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a bot account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().RemoveBot(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "bot %s removed", args[0])
			return nil
		},
	}

	health := &cobra.Command{
		Use:   "health [id]",
		Short: "Probe one bot account, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			var results []accounts.BotHealth
			if len(args) == 1 {
				res, err := c.CheckBot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				results = append(results, res)
			} else {
				res, err := c.CheckBots(cmd.Context())
				if err != nil {
					return err
				}
				results = res
			}
			t := newTable("Bot health", "ID", "HEALTHY", "STATUS", "ERROR")
			for _, r := range results {
				t.add(r.ID, statusText(strconv.FormatBool(r.Healthy)), statusText(string(r.Status)), r.Error)
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}

	clean := &cobra.Command{
		Use:   "clean",
		Short: "Remove dead bot accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.client().CleanBots(cmd.Context())
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "removed %d dead bot accounts", n)
			return nil
		},
	}

	rotate := &cobra.Command{
		Use:   "rotate <platform>",
		Short: "Pick the next active bot of a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.client().RotateBot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "next bot: %s", b.ID)
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show bot account statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().BotStats(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable("Bot statistics", "METRIC", "VALUE")
			t.add("total", strconv.Itoa(st.Total))
			t.add("active", strconv.Itoa(st.Active))
			t.add("dead", strconv.Itoa(st.Dead))
			t.add("suspended", strconv.Itoa(st.Suspended))
			t.add("total actions", strconv.Itoa(st.TotalActions))
			t.add("average success rate", fmt.Sprintf("%.1f%%", st.AvgSuccessRate))
			for _, p := range model.Platforms {
				if n := st.ByPlatform[p]; n > 0 {
					t.add("platform "+string(p), strconv.Itoa(n))
				}
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.AddCommand(add, list, remove, health, clean, rotate, stats)
	return cmd
}

func botTable(bots []model.BotAccount) *table {
	t := newTable(fmt.Sprintf("Bot accounts (%d)", len(bots)), "ID", "PLATFORM", "STATUS", "ACTIONS", "FAILED", "SUCCESS")
	for _, b := range bots {
		t.add(b.ID, string(b.Platform), statusText(string(b.Status)),
			strconv.Itoa(b.TotalActions), strconv.Itoa(b.FailedActions), fmt.Sprintf("%.1f%%", b.SuccessRate))
	}
	return t
}
