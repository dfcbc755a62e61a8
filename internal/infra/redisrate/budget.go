package redisrate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"taskverify/internal/config"
	"taskverify/internal/ports"
)

var _ ports.RateBudget = (*Budget)(nil)

// Budget enforces the external verification call ceiling per credential
// owner across processes. The counter lives in Redis so every API and
// worker instance sharing a credential shares one window: INCR is the
// atomic check-and-increment, EXPIRE on the first increment starts the
// window.
type Budget struct {
	rdb     *redis.Client
	ceiling int64
	window  time.Duration
}

func New(cfg config.Redis) *redis.Client {
	log.Info().Msgf("connecting to redis at %s", cfg.Addr)
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewBudget(rdb *redis.Client, ceiling int, window time.Duration) *Budget {
	return &Budget{rdb: rdb, ceiling: int64(ceiling), window: window}
}

func (b *Budget) TryConsume(ctx context.Context, owner string) (bool, error) {
	key := "budget:" + owner
	n, err := b.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("increment budget %s: %w", owner, err)
	}
	if n == 1 {
		// first call of the window starts it
		if err := b.rdb.Expire(ctx, key, b.window).Err(); err != nil {
			return false, fmt.Errorf("arm budget window %s: %w", owner, err)
		}
	}
	if n > b.ceiling {
		log.Ctx(ctx).Warn().Str("owner", owner).Int64("count", n).Msg("rate budget exhausted")
		return false, nil
	}
	return true, nil
}
