package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/smmbot/internal/domain/model"
)

func actionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "action",
		Aliases: []string{"actions"},
		Short:   "Submit and inspect actions",
	}

	var req model.ActionRequest
	var wait time.Duration
	submit := &cobra.Command{
		Use:   "submit <platform> <type> [target]",
		Short: "Queue an action (like, comment, share, follow, post)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Platform, req.Type = args[0], args[1]
			if len(args) == 3 {
				req.Target = args[2]
			}
			c := a.client()
			act, err := c.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			success(out, "action %s queued", act.ID)
			if wait <= 0 {
				return nil
			}
			deadline := time.Now().Add(wait)
			for act.Status == model.ActionQueued && time.Now().Before(deadline) {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(pollInterval):
				}
				if act, err = c.Action(cmd.Context(), act.ID); err != nil {
					return err
				}
			}
			printAction(out, act)
			return nil
		},
	}
	submit.Flags().StringVar(&req.ID, "id", "", "idempotency key (generated when empty)")
	submit.Flags().StringVar(&req.Content, "content", "", "comment or post text")
	submit.Flags().StringVar(&req.BotID, "bot", "", "bot account id (rotated when empty)")
	submit.Flags().StringVar(&req.Member, "member", "", "member the action is performed for")
	submit.Flags().StringVar(&req.Callback, "callback", "", "URL notified with the result")
	submit.Flags().DurationVar(&wait, "wait", 0, "wait up to this long for the result")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := a.client().Action(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAction(cmd.OutOrStdout(), act)
			return nil
		},
	}

	cfg := LoadConfig{Workers: runtime.NumCPU() * 2}
	var platforms, types string
	load := &cobra.Command{
		Use:   "load",
		Short: "Submit generated actions concurrently to exercise the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if cfg.Platforms, err = parseList(platforms, model.ParsePlatform); err != nil {
				return err
			}
			if cfg.Types, err = parseList(types, model.ParseActionType); err != nil {
				return err
			}
			stats, err := RunLoad(cmd.Context(), a.client(), cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			stats.render(cmd.OutOrStdout())
			return nil
		},
	}
	load.Flags().IntVar(&cfg.Count, "count", 100, "actions to generate")
	load.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent submitters")
	load.Flags().StringVar(&cfg.Member, "member", "", "member to attribute actions to")
	load.Flags().StringVar(&platforms, "platforms", "facebook,instagram,twitter", "comma separated platforms")
	load.Flags().StringVar(&types, "types", "like,comment,share,follow", "comma separated action types")
	load.Flags().BoolVar(&cfg.Verbose, "verbose", false, "log progress lines instead of a status line")

	cmd.AddCommand(submit, get, load)
	return cmd
}

const pollInterval = 500 * time.Millisecond

func printAction(w io.Writer, act model.Action) {
	t := newTable("Action "+act.ID, "FIELD", "VALUE")
	t.add("platform", string(act.Platform))
	t.add("type", string(act.Type))
	t.add("target", act.Target)
	if act.Content != "" {
		t.add("content", act.Content)
	}
	t.add("status", statusText(string(act.Status)))
	if act.BotID != "" {
		t.add("bot", act.BotID)
	}
	if act.ResultID != "" {
		t.add("result", act.ResultID)
	}
	if act.Error != "" {
		t.add("error", errStyle.Render(act.Error))
	}
	t.add("created", act.CreatedAt.Local().Format(time.RFC3339))
	t.add("updated", act.UpdatedAt.Local().Format(time.RFC3339))
	t.render(w)
}

func parseList[T any](raw string, parse func(string) (T, error)) ([]T, error) {
	var out []T
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		v, err := parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty list %q", raw)
	}
	return out, nil
}
