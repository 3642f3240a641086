// Package cli implements smmctl, the operator command line and interactive
// control panel for the smmbot daemon.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/smmbot/internal/client"
)

const (
	// EnvURL overrides the default daemon address.
	EnvURL     = "SMMCTL_URL"
	defaultURL = "http://localhost:9090"
)

// app carries the flags shared by every command.
type app struct {
	url     string
	timeout time.Duration
}

func (a *app) client() *client.Client {
	return client.New(a.url, client.WithTimeout(a.timeout))
}

// NewRootCommand builds the smmctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "smmctl",
		Short: "Control the smmbot social media management daemon",
		Long: `smmctl manages members, bot accounts, actions, analytics and safety
settings of a running smmbot daemon over its HTTP API.`,
		SilenceUsage: true,
	}

	url := os.Getenv(EnvURL)
	if url == "" {
		url = defaultURL
	}
	root.PersistentFlags().StringVar(&a.url, "url", url, "daemon base URL (env "+EnvURL+")")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", client.DefaultTimeout, "request timeout")

	root.AddCommand(
		initCommand(),
		statusCommand(a),
		memberCommand(a),
		botCommand(a),
		actionCommand(a),
		analyticsCommand(a),
		safetyCommand(a),
		backupCommand(a),
		settingsCommand(a),
		logsCommand(a),
		panelCommand(a),
	)
	return root
}
