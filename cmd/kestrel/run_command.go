package main

import (
	"github.com/spf13/cobra"

	"kestrel/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var dryRun bool
	var runtimeMinutes int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Run.DryRun = true
			}
			if runtimeMinutes > 0 {
				cfg.Run.RuntimeMinutes = runtimeMinutes
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate captures without touching radio hardware")
	cmd.Flags().IntVar(&runtimeMinutes, "runtime", 0, "Override the configured runtime in minutes")
	return cmd
}
