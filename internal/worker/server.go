package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"taskverify/internal/app"
	"taskverify/internal/config"
)

type Config struct {
	Interval time.Duration
}

// Run drives the engine: every interval it pulls completions whose
// verification time has arrived and processes them cohort by cohort.
// Stateless between ticks; interrupted batches come back via the store's
// processing lease.
func Run(cfg Config) error {
	appCfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, appCfg)
	if err != nil {
		return err
	}
	defer a.Close()

	interval := cfg.Interval
	if interval <= 0 {
		interval = appCfg.Verify.SchedulerInterval
	}
	log.Info().Dur("interval", interval).Msg("verification worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stats, err := a.Processor.ProcessDue(ctx)
		if err != nil && ctx.Err() == nil {
			log.Ctx(ctx).Error().Err(err).Msg("scheduler pass failed")
		}
		if stats.Fetched > 0 {
			log.Ctx(ctx).Info().
				Int("fetched", stats.Fetched).
				Int("cohorts", stats.Cohorts).
				Int("deferred", stats.Deferred).
				Msg("scheduler pass complete")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("verification worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}
