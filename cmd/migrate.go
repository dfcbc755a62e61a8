package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"taskverify/internal/config"
	"taskverify/internal/infra/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				log.Fatal().Err(err).Msg("load config")
			}
			if err := postgres.RunMigrations(cfg.Postgres.URL); err != nil {
				log.Fatal().Err(err).Msg("migrate")
			}
		},
	}
}
