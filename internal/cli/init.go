package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/smmbot/internal/config"
)

const dirPermission = 0o755

// initCommand prepares a working directory for the daemon.
func initCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data, logs and config directories with a default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, banner("setup"))

			for _, d := range []string{
				"config",
				"logs",
				"data",
				filepath.Join("data", "backups"),
				filepath.Join("data", "analytics", "exports"),
			} {
				path := filepath.Join(dir, d)
				if err := os.MkdirAll(path, dirPermission); err != nil {
					return fmt.Errorf("create %s: %w", path, err)
				}
				fmt.Fprintf(out, "  %s %s\n", okStyle.Render("dir"), path)
			}

			path := filepath.Join(dir, "config", config.MainFile)
			written, err := config.WriteDefault(path)
			if err != nil {
				return err
			}
			if written {
				success(out, "wrote default configuration to %s", path)
			} else {
				fmt.Fprintln(out, mutedStyle.Render("kept existing "+path))
			}
			fmt.Fprintf(out, "start the daemon with %s\n", titleStyle.Render(config.EnvConfigPath+"="+path+" smmbot"))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "working directory to initialize")
	return cmd
}
