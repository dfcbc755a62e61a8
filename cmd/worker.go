package cmd

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"taskverify/internal/worker"
)

func workerCmd() *cobra.Command {
	var interval time.Duration

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Start verification worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			return worker.Run(worker.Config{Interval: interval})
		},
	}

	command.Flags().DurationVar(&interval, "interval", 0, "Scheduler interval (default from SCHEDULER_INTERVAL)")
	return command
}
