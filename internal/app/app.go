// Package app wires the engine's components from configuration. Both the
// API server and the worker build the same graph.
package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"taskverify/internal/config"
	"taskverify/internal/infra/engagement"
	"taskverify/internal/infra/memrate"
	"taskverify/internal/infra/postgres"
	"taskverify/internal/infra/redisrate"
	"taskverify/internal/infra/webhook"
	"taskverify/internal/ports"
	"taskverify/internal/verify"
)

type App struct {
	Cfg *config.Config

	Pool  *pgxpool.Pool
	Store *postgres.CompletionStore
	Tasks *postgres.TaskStore

	Budget ports.RateBudget
	Volume ports.VolumeCounter

	Recorder  *verify.Recorder
	Claimer   *verify.Claimer
	Executor  *verify.Executor
	Processor *verify.Processor
}

func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := postgres.NewPool(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}

	store := postgres.NewCompletionStore(pool)
	tasks := postgres.NewTaskStore(pool)

	var (
		budget ports.RateBudget
		volume ports.VolumeCounter
	)
	if cfg.Redis.Enabled() {
		rdb := redisrate.New(cfg.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			pool.Close()
			return nil, err
		}
		budget = redisrate.NewBudget(rdb, cfg.Verify.BudgetCeiling, cfg.Verify.BudgetWindow)
		volume = redisrate.NewVolume(rdb, cfg.Verify.BudgetWindow)
	} else {
		log.Warn().Msg("redis not configured, using in-process rate tracking")
		budget = memrate.NewBudget(cfg.Verify.BudgetCeiling, cfg.Verify.BudgetWindow)
		volume = memrate.NewVolume(cfg.Verify.BudgetWindow)
	}

	checker := engagement.NewChecker(cfg.Check)
	notifier := webhook.NewNotifier(cfg.Notify)
	awarder := verify.NewAwarder(tasks, tasks, notifier)
	exec := verify.NewExecutor(store, tasks, checker, budget, awarder, cfg.Verify.HonorAcceptRate)
	selector := verify.NewSelector(volume, cfg.Verify.PerHourCallCeiling)

	return &App{
		Cfg:       cfg,
		Pool:      pool,
		Store:     store,
		Tasks:     tasks,
		Budget:    budget,
		Volume:    volume,
		Recorder:  verify.NewRecorder(store, tasks),
		Claimer:   verify.NewClaimer(store, tasks, volume, exec, cfg.Verify.DwellTime),
		Executor:  exec,
		Processor: verify.NewProcessor(store, selector, exec, cfg.Verify.ProcessingLease, cfg.Verify.BatchLimit),
	}, nil
}

func (a *App) Close() {
	a.Pool.Close()
}
