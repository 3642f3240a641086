package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/smmbot/internal/domain/accounts"
	"github.com/okian/smmbot/internal/domain/model"
)

const timeLayout = "2006-01-02 15:04"

func memberCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "member",
		Aliases: []string{"members"},
		Short:   "Manage members",
	}

	var in accounts.NewMember
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Username = strings.TrimSpace(args[0])
			m, err := a.client().AddMember(cmd.Context(), in)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "member %s added (%s plan)", m.Username, m.Plan)
			return nil
		},
	}
	add.Flags().StringVar(&in.Email, "email", "", "contact email")
	add.Flags().StringVar(&in.Phone, "phone", "", "contact phone")
	add.Flags().StringVar(&in.Plan, "plan", "", "subscription plan (default basic)")

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			members, err := a.client().Members(cmd.Context(), status)
			if err != nil {
				return err
			}
			memberTable(members).render(cmd.OutOrStdout())
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status: active, inactive, suspended")

	remove := &cobra.Command{
		Use:   "remove <username>",
		Short: "Delete a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().RemoveMember(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "member %s removed", args[0])
			return nil
		},
	}

	setStatus := &cobra.Command{
		Use:   "status <username> <active|inactive|suspended>",
		Short: "Change a member's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.client().SetMemberStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "member %s is now %s", m.Username, m.Status)
			return nil
		},
	}

	var limit int
	activity := &cobra.Command{
		Use:   "activity <username>",
		Short: "Show a member's recent activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acts, err := a.client().MemberActivity(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			t := newTable("Activity of "+args[0], "TIME", "ACTIVITY", "DETAILS")
			for _, act := range acts {
				t.add(act.At.Local().Format(timeLayout), act.Kind, act.Details)
			}
			t.render(cmd.OutOrStdout())
			return nil
		},
	}
	activity.Flags().IntVar(&limit, "limit", 20, "entries to show")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show member statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.client().MemberStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			t := newTable("Member statistics", "METRIC", "VALUE")
			t.add("total", strconv.Itoa(st.Total))
			t.add("active", strconv.Itoa(st.Active))
			t.add("inactive", strconv.Itoa(st.Inactive))
			t.add("suspended", strconv.Itoa(st.Suspended))
			for plan, n := range st.Plans {
				t.add("plan "+plan, strconv.Itoa(n))
			}
			if st.RecentJoin != "" {
				t.add("most recent join", st.RecentJoin)
			}
			t.render(out)
			return nil
		},
	}

	cmd.AddCommand(add, list, remove, setStatus, activity, stats)
	return cmd
}

func memberTable(members []model.Member) *table {
	t := newTable(fmt.Sprintf("Members (%d)", len(members)), "USERNAME", "PLAN", "STATUS", "EMAIL", "JOINED")
	for _, m := range members {
		t.add(m.Username, m.Plan, statusText(string(m.Status)), m.Email, m.JoinedAt.Local().Format(timeLayout))
	}
	return t
}
