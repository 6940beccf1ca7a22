package main

import (
	"github.com/spf13/cobra"

	"ytuploader/internal/config"
)

func newRootCmd() *cobra.Command {
	var flags config.Flags
	root := &cobra.Command{
		Use:   "ytuploaderd",
		Short: "Scheduled YouTube uploads from a Google Sheet",
		Long: `ytuploaderd uploads the next pending row of a Google Sheet to YouTube at
configured times of day, rotating through accounts and retrying failed
attempts. It exposes an HTTP API and MCP tools to inspect and trigger runs.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "path to config.yaml (env YTU_CONFIG)")
	pf.StringVar(&flags.StateDir, "state-dir", "", "directory for the run ledger (env YTU_STATE_DIR)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "debug, info, warn or error (env YTU_LOG_LEVEL)")
	pf.StringVar(&flags.LogFormat, "log-format", "", "text or json (env YTU_LOG_FORMAT)")

	root.AddCommand(
		newServeCmd(&flags),
		newRunOnceCmd(&flags),
		newScheduleCmd(&flags),
		newVersionCmd(),
	)
	return root
}
