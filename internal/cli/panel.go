package cli

import (
	"context"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/spf13/cobra"
)

// prompt asks for one value of a menu item. An empty flag makes the value a
// positional argument, which is then required.
type prompt struct {
	label string
	flag  string
}

type menuItem struct {
	label   string
	args    []string
	prompts []prompt
}

type menu struct {
	label string
	items []menuItem
}

// panelMenus is the control panel menu tree.
var panelMenus = []menu{
	{label: "Member management", items: []menuItem{
		{label: "List members", args: []string{"member", "list"}, prompts: []prompt{{label: "Status filter (empty for all)", flag: "status"}}},
		{label: "Add member", args: []string{"member", "add"}, prompts: []prompt{
			{label: "Username"}, {label: "Email", flag: "email"}, {label: "Phone", flag: "phone"}, {label: "Plan", flag: "plan"},
		}},
		{label: "Remove member", args: []string{"member", "remove"}, prompts: []prompt{{label: "Username"}}},
		{label: "Change status", args: []string{"member", "status"}, prompts: []prompt{{label: "Username"}, {label: "Status (active, inactive, suspended)"}}},
		{label: "Member activity", args: []string{"member", "activity"}, prompts: []prompt{{label: "Username"}}},
		{label: "Member statistics", args: []string{"member", "stats"}},
	}},
	{label: "Bot management", items: []menuItem{
		{label: "List bot accounts", args: []string{"bot", "list"}, prompts: []prompt{{label: "Platform filter (empty for all)", flag: "platform"}}},
		{label: "Add bot account", args: []string{"bot", "add"}, prompts: []prompt{
			{label: "Platform"}, {label: "Username"}, {label: "Password", flag: "password"}, {label: "Email", flag: "email"},
		}},
		{label: "Remove bot account", args: []string{"bot", "remove"}, prompts: []prompt{{label: "Bot id"}}},
		{label: "Check all bot accounts", args: []string{"bot", "health"}},
		{label: "Clean dead bot accounts", args: []string{"bot", "clean"}},
		{label: "Rotate bot account", args: []string{"bot", "rotate"}, prompts: []prompt{{label: "Platform"}}},
		{label: "Bot statistics", args: []string{"bot", "stats"}},
	}},
	{label: "Actions", items: []menuItem{
		{label: "Submit action", args: []string{"action", "submit", "--wait=10s"}, prompts: []prompt{
			{label: "Platform"}, {label: "Type (like, comment, share, follow, post)"}, {label: "Target URL"}, {label: "Content", flag: "content"},
		}},
		{label: "Show action", args: []string{"action", "get"}, prompts: []prompt{{label: "Action id"}}},
	}},
	{label: "Analytics and reports", items: []menuItem{
		{label: "Daily statistics", args: []string{"analytics", "daily"}, prompts: []prompt{{label: "Date YYYY-MM-DD (empty for today)", flag: "date"}}},
		{label: "Weekly report", args: []string{"analytics", "weekly"}},
		{label: "Dashboard", args: []string{"analytics", "dashboard"}},
		{label: "System health", args: []string{"analytics", "health"}},
		{label: "Export report", args: []string{"analytics", "export"}, prompts: []prompt{
			{label: "Report (daily, weekly)", flag: "report"}, {label: "Format (json, csv)", flag: "format"},
		}},
	}},
	{label: "Safety", items: []menuItem{
		{label: "Safety report", args: []string{"safety", "report"}},
		{label: "Reset safety monitor", args: []string{"safety", "reset"}},
	}},
	{label: "Settings", items: []menuItem{
		{label: "Update schedule (key=value)", args: []string{"settings", "schedule"}, prompts: []prompt{{label: "Assignment, e.g. start_time=07:00"}}},
		{label: "Update safety rules (key=value)", args: []string{"settings", "safety"}, prompts: []prompt{{label: "Assignment, e.g. max_actions_per_hour=15"}}},
		{label: "List settings backups", args: []string{"settings", "backups"}},
		{label: "Restore settings backup", args: []string{"settings", "restore"}, prompts: []prompt{{label: "Backup file"}}},
	}},
	{label: "System", items: []menuItem{
		{label: "Status", args: []string{"status"}},
		{label: "Back up database", args: []string{"backup"}},
		{label: "Export table as CSV", args: []string{"backup"}, prompts: []prompt{{label: "Table", flag: "table"}}},
	}},
}

// panelCommands are the cobra commands reachable from the shell prompt.
var panelCommands = []string{"status", "member", "bot", "action", "analytics", "safety", "backup", "settings", "logs"}

func panelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "panel",
		Short: "Interactive control panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			shell := newPanel(cmd.Context(), a)
			shell.Println(banner("control panel"))
			shell.Println(mutedStyle.Render("connected to " + a.url + "; type 'menu' or 'help'"))
			shell.Run()
			shell.Close()
			return nil
		},
	}
}

// newPanel builds the interactive shell. Every command runs a fresh smmctl
// command tree so flag values never leak between invocations.
func newPanel(ctx context.Context, a *app) *ishell.Shell {
	shell := ishell.New()
	shell.SetPrompt("smmbot> ")

	run := func(c *ishell.Context, args []string) {
		root := NewRootCommand()
		root.SetArgs(append([]string{"--url", a.url, "--timeout", a.timeout.String()}, args...))
		root.SetOut(shellWriter{c})
		root.SetErr(shellWriter{c})
		if err := root.ExecuteContext(ctx); err != nil {
			c.Println(errStyle.Render(err.Error()))
		}
	}

	for _, name := range panelCommands {
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: "run 'smmctl " + name + "' (try '" + name + " --help')",
			Func: func(c *ishell.Context) {
				run(c, append([]string{name}, c.Args...))
			},
		})
	}

	shell.AddCmd(&ishell.Cmd{
		Name: "menu",
		Help: "browse the control panel menus",
		Func: func(c *ishell.Context) {
			for {
				labels := make([]string, 0, len(panelMenus)+1)
				for _, m := range panelMenus {
					labels = append(labels, m.label)
				}
				labels = append(labels, "Exit menu")
				choice := c.MultiChoice(labels, titleStyle.Render("Main menu"))
				if choice < 0 || choice >= len(panelMenus) {
					return
				}
				runMenu(c, panelMenus[choice], run)
			}
		},
	})
	return shell
}

func runMenu(c *ishell.Context, m menu, run func(*ishell.Context, []string)) {
	for {
		labels := make([]string, 0, len(m.items)+1)
		for _, it := range m.items {
			labels = append(labels, it.label)
		}
		labels = append(labels, "Back")
		choice := c.MultiChoice(labels, titleStyle.Render(m.label))
		if choice < 0 || choice >= len(m.items) {
			return
		}
		args, ok := collectArgs(m.items[choice], func(label string) string {
			c.Print(label + ": ")
			return c.ReadLine()
		})
		if !ok {
			c.Println(warnStyle.Render("cancelled: a required value was empty"))
			continue
		}
		run(c, args)
	}
}

// collectArgs asks every prompt of item and builds the command arguments. It
// reports false when a positional value is left empty.
func collectArgs(item menuItem, ask func(string) string) ([]string, bool) {
	args := append([]string(nil), item.args...)
	for _, p := range item.prompts {
		val := strings.TrimSpace(ask(p.label))
		switch {
		case p.flag == "" && val == "":
			return nil, false
		case p.flag == "":
			args = append(args, val)
		case val != "":
			args = append(args, "--"+p.flag+"="+val)
		}
	}
	return args, true
}

// shellWriter routes cobra output through the shell so it does not clash
// with the prompt.
type shellWriter struct {
	c *ishell.Context
}

func (w shellWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}
