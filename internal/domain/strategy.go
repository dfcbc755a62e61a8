package domain

import "time"

// StrategyKind names how a cohort's pending completions get resolved.
type StrategyKind string

const (
	// StrategyIndividual verifies every completion in real time.
	StrategyIndividual StrategyKind = "INDIVIDUAL"

	// StrategyBatched verifies every completion, spread across a window so
	// the external call rate stays under budget.
	StrategyBatched StrategyKind = "BATCHED"

	// StrategyStatistical verifies a sample and projects the remainder
	// from the sample's empirical success rate.
	StrategyStatistical StrategyKind = "STATISTICAL"

	// StrategyHonorSystem grants credit without checking. Used only when
	// checking is economically infeasible.
	StrategyHonorSystem StrategyKind = "HONOR_SYSTEM"
)

// StrategyPlan is the selector's output: which strategy to run and its
// parameters for one cohort.
type StrategyPlan struct {
	Kind StrategyKind `json:"kind"`

	// Window is how long the executor may spread its external calls over.
	// Zero means real time.
	Window time.Duration `json:"verification_window"`

	// VerifyPercent is the fraction of the cohort checked for real,
	// in [0, 1].
	VerifyPercent float64 `json:"verify_percentage"`

	// BatchSize is the cohort volume the plan was computed for.
	BatchSize int `json:"batch_size"`
}
