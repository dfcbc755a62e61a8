package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"taskverify/internal/api"
	"taskverify/internal/app"
	"taskverify/internal/config"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server",
		Run: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			cfg, err := config.Load()
			if err != nil {
				log.Fatal().Err(err).Msg("load config")
			}

			a, err := app.Build(context.Background(), cfg)
			if err != nil {
				log.Fatal().Err(err).Msg("wire application")
			}
			defer a.Close()

			server := api.NewServer(api.Deps{
				Recorder:        a.Recorder,
				Claimer:         a.Claimer,
				Executor:        a.Executor,
				Processor:       a.Processor,
				Store:           a.Store,
				Tasks:           a.Tasks,
				DwellTime:       cfg.Verify.DwellTime,
				SchedulerSecret: cfg.Verify.SchedulerSecret,
			})
			server.Run(port)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
