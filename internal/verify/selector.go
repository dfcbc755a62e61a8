package verify

import (
	"context"
	"math"
	"time"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
	"taskverify/pkg/sampling"
)

// Volume thresholds for the strategy ladder. Below individualMax every
// claim is checked in real time; past statisticalMax checking anyone is
// economically infeasible and the engine trusts the cohort.
const (
	individualMax  = 200
	batchedMax     = 1_000
	statisticalMax = 10_000

	// maxSpreadWindow caps how long a batched or statistical cohort may
	// take to fully resolve.
	maxSpreadWindow = 12 * time.Hour
)

// Selector picks a verification strategy from a cohort's recent claim
// volume.
type Selector struct {
	volume         ports.VolumeCounter
	perHourCeiling int
}

func NewSelector(volume ports.VolumeCounter, perHourCeiling int) *Selector {
	return &Selector{volume: volume, perHourCeiling: perHourCeiling}
}

func (s *Selector) Select(ctx context.Context, cohortID string) (domain.StrategyPlan, error) {
	n, err := s.volume.Recent(ctx, cohortID)
	if err != nil {
		return domain.StrategyPlan{}, err
	}
	return SelectForVolume(n, s.perHourCeiling), nil
}

// SelectForVolume is the decision table: a pure function of recent cohort
// volume, so the degradation under load is predictable and testable.
func SelectForVolume(volume, perHourCeiling int) domain.StrategyPlan {
	plan := domain.StrategyPlan{BatchSize: volume}
	switch {
	case volume < individualMax:
		plan.Kind = domain.StrategyIndividual
		plan.VerifyPercent = 1.0

	case volume < batchedMax:
		plan.Kind = domain.StrategyBatched
		plan.VerifyPercent = 1.0
		plan.Window = spreadWindow(volume, perHourCeiling)

	case volume < statisticalMax:
		plan.Kind = domain.StrategyStatistical
		plan.VerifyPercent = sampling.Fraction(volume)
		plan.Window = maxSpreadWindow

	default:
		plan.Kind = domain.StrategyHonorSystem
	}
	return plan
}

// spreadWindow sizes the batched window so the per-hour external call rate
// stays under the ceiling, capped at maxSpreadWindow.
func spreadWindow(volume, perHourCeiling int) time.Duration {
	if perHourCeiling <= 0 {
		return maxSpreadWindow
	}
	hours := math.Ceil(float64(volume) / float64(perHourCeiling))
	w := time.Duration(hours) * time.Hour
	if w > maxSpreadWindow {
		return maxSpreadWindow
	}
	return w
}
