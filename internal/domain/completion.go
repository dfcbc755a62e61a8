package domain

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusStarted  Status = "started"
	StatusVerified Status = "verified"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle pending → started → verified|failed.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusStarted || next == StatusVerified || next == StatusFailed
	case StatusStarted:
		return next == StatusVerified || next == StatusFailed
	default:
		return false
	}
}

// Completion is one attempt by one user to satisfy one social task.
// The (TaskID, UserID) pair is unique.
type Completion struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	UserID     string `json:"user_id"`
	CampaignID string `json:"campaign_id"`
	CohortID   string `json:"cohort_id"`
	Status     Status `json:"status"`

	// ClickedAt is the server-observed start of the qualifying action.
	// Set once, never moved backward.
	ClickedAt *time.Time `json:"clicked_at,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`

	// ScheduledAt is when the row becomes eligible for async verification.
	// ResolvedAt is when a terminal state was reached. These are distinct
	// on purpose.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	SpinsAwarded int          `json:"spins_awarded"`
	Strategy     StrategyKind `json:"verification_strategy,omitempty"`

	// Sampled marks rows individually checked against the external
	// provider; Projected marks rows whose outcome was inferred from the
	// sample's empirical rate.
	Sampled   bool `json:"sampled_for_verification"`
	Projected bool `json:"projected_from_sample"`
}

// Resolution is the terminal outcome applied to a completion by the
// verification executor.
type Resolution struct {
	Status     Status
	Strategy   StrategyKind
	Spins      int
	Sampled    bool
	Projected  bool
	ResolvedAt time.Time
}
