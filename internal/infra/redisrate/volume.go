package redisrate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taskverify/internal/ports"
)

var _ ports.VolumeCounter = (*Volume)(nil)

// Volume counts claims per cohort over a trailing window. The reading
// feeds strategy selection, so it only has to be roughly right: a counter
// that expires a window after the cohort's first claim is close enough and
// cheap.
type Volume struct {
	rdb    *redis.Client
	window time.Duration
}

func NewVolume(rdb *redis.Client, window time.Duration) *Volume {
	return &Volume{rdb: rdb, window: window}
}

func (v *Volume) Increment(ctx context.Context, cohortID string) error {
	key := "cohort:" + cohortID + ":claims"
	n, err := v.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment cohort volume %s: %w", cohortID, err)
	}
	if n == 1 {
		if err := v.rdb.Expire(ctx, key, v.window).Err(); err != nil {
			return fmt.Errorf("arm cohort window %s: %w", cohortID, err)
		}
	}
	return nil
}

func (v *Volume) Recent(ctx context.Context, cohortID string) (int, error) {
	n, err := v.rdb.Get(ctx, "cohort:"+cohortID+":claims").Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("read cohort volume %s: %w", cohortID, err)
	}
	return n, nil
}
