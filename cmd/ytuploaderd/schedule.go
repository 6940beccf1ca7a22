package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ytuploader/internal/config"
	"ytuploader/internal/core"
)

const slotLayout = "Mon 2006-01-02 15:04 MST"

func newScheduleCmd(flags *config.Flags) *cobra.Command {
	var (
		days int
		from string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Validate the config and print upcoming upload times",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCfg, err := loadConfig(*flags)
			if err != nil {
				return err
			}
			spec, err := appCfg.ScheduleSpec()
			if err != nil {
				return err
			}
			base := time.Now()
			if from != "" {
				if base, err = time.Parse(time.RFC3339, from); err != nil {
					return fmt.Errorf("--from must be RFC3339: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if len(spec.Times) == 0 {
				fmt.Fprintln(out, "No upload times configured")
				return nil
			}
			order := "fixed order"
			if spec.Randomize {
				order = "randomized daily"
			}
			fmt.Fprintf(out, "Timezone: %s (%s)\n", spec.Location, order)
			for _, t := range core.UpcomingSlots(base, days, spec, core.DefaultShuffler) {
				fmt.Fprintln(out, t.In(spec.Location).Format(slotLayout))
			}
			cleanup, err := core.CleanupTimes(appCfg.Cleanup.Cron, spec.Location, base, 1)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Housekeeping: %s\n", cleanup[0].Format(slotLayout))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 3, "number of days to show")
	cmd.Flags().StringVar(&from, "from", "", "start time in RFC3339 (default now)")
	return cmd
}
