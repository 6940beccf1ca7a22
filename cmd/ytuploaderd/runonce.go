package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ytuploader/internal/config"
	"ytuploader/internal/core"
)

func newRunOnceCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Upload the next pending row now and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, appCfg, err := loadConfig(*flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, appCfg, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.controller.Run(ctx, core.TriggerCLI)
			out := cmd.OutOrStdout()
			switch {
			case run == nil && err == nil:
				fmt.Fprintln(out, "No pending rows")
			case run != nil && run.VideoURL != nil:
				fmt.Fprintf(out, "Row %d uploaded by %s after %d attempt(s): %s\n", run.RowIndex, run.Account, run.Attempts, *run.VideoURL)
			case run != nil:
				fmt.Fprintf(out, "Row %d %s after %d attempt(s)\n", run.RowIndex, run.Status, run.Attempts)
			}
			return err
		},
	}
}
