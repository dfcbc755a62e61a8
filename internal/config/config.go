package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Postgres Postgres
	Redis    Redis
	Verify   Verify
	Check    Check
	Notify   Notify
}

type Postgres struct {
	URL string `env:"DATABASE_URL,required"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDRESS"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

// Enabled reports whether a Redis-backed (cross-process) rate budget is
// configured; without it the in-process tracker is used.
func (r Redis) Enabled() bool { return r.Addr != "" }

type Verify struct {
	// DwellTime is the minimum click-to-claim gap for visit-class tasks.
	DwellTime time.Duration `env:"VERIFY_DWELL_TIME" envDefault:"10s"`

	// BudgetCeiling/BudgetWindow bound external calls per credential.
	// 190 of the provider's 200/hour hard limit, keeping headroom.
	BudgetCeiling int           `env:"VERIFY_BUDGET_CEILING" envDefault:"190"`
	BudgetWindow  time.Duration `env:"VERIFY_BUDGET_WINDOW" envDefault:"1h"`

	// PerHourCallCeiling sizes the batched strategy's spread window.
	PerHourCallCeiling int `env:"VERIFY_PER_HOUR_CEILING" envDefault:"190"`

	// HonorAcceptRate is the fraction of claims accepted under the
	// honor-system strategy. 1.0 accepts everything.
	HonorAcceptRate float64 `env:"HONOR_ACCEPT_RATE" envDefault:"1.0"`

	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`
	SchedulerSecret   string        `env:"SCHEDULER_SECRET"`
	BatchLimit        int           `env:"SCHEDULER_BATCH_LIMIT" envDefault:"500"`
	ProcessingLease   time.Duration `env:"SCHEDULER_PROCESSING_LEASE" envDefault:"5m"`
}

type Check struct {
	BaseURL string        `env:"CHECK_BASE_URL,required"`
	APIKey  string        `env:"CHECK_API_KEY,required"`
	Timeout time.Duration `env:"CHECK_TIMEOUT" envDefault:"10s"`
}

type Notify struct {
	WebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}
