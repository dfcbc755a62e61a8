package ports

import (
	"context"
	"time"

	"taskverify/internal/domain"
)

// CompletionStore is the durable record of (task, user) claims. The engine
// reads and writes rows but does not own the schema.
type CompletionStore interface {
	Create(ctx context.Context, c domain.Completion) error
	Get(ctx context.Context, id string) (*domain.Completion, error)
	GetByTaskUser(ctx context.Context, taskID, userID string) (*domain.Completion, error)

	// RecordClick back-fills clicked_at (once) and promotes
	// pending → started. No-op if clicked_at is already set.
	RecordClick(ctx context.Context, id string, at time.Time) error

	// MarkClaimed stamps claimed_at on a non-terminal row.
	MarkClaimed(ctx context.Context, id string, at time.Time) error

	// Schedule makes the row eligible for async verification at the given
	// time.
	Schedule(ctx context.Context, id string, at time.Time) error

	// ClaimDue atomically hands out up to limit rows whose scheduled time
	// has arrived, oldest first, leasing them so a concurrent scheduler
	// run cannot pick up the same rows. Crashed runs surface the rows
	// again after the lease expires.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Completion, error)

	// Resolve applies a terminal resolution as a conditional transition.
	// Returns false when the row is already terminal; the stored outcome
	// is left untouched in that case.
	Resolve(ctx context.Context, id string, res domain.Resolution) (bool, error)

	ListByUser(ctx context.Context, userID, campaignID string) ([]domain.Completion, error)
}

// TaskStore resolves the task and campaign definitions the engine verifies
// against. Owned by the campaign CRUD surface, read-only here.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*domain.SocialTask, error)
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	ListCampaignTasks(ctx context.Context, campaignID string) ([]domain.SocialTask, error)
}

// RewardLedger credits verified users with bonus spins.
type RewardLedger interface {
	Credit(ctx context.Context, campaignID, userID string, spins int) error
}

// EngagementChecker is the external verification provider: one bounded
// call per (user, task).
type EngagementChecker interface {
	Check(ctx context.Context, task domain.SocialTask, userID string) (bool, error)
}

// Notifier delivers the "you won spins" message through the external
// messaging collaborator.
type Notifier interface {
	NotifyVerified(ctx context.Context, userID, taskID, campaignID string) error
}

// RateBudget gates external verification calls per credential owner.
// TryConsume must be atomic: two concurrent callers may never both be told
// they are under budget for the same last slot.
type RateBudget interface {
	TryConsume(ctx context.Context, owner string) (bool, error)
}

// VolumeCounter tracks recent claim volume per cohort; its reading drives
// strategy selection.
type VolumeCounter interface {
	Increment(ctx context.Context, cohortID string) error
	Recent(ctx context.Context, cohortID string) (int, error)
}
