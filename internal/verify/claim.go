package verify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

// budgetRetryDelay is how far out a claim gets pushed when the rate budget
// denies its synchronous verification.
const budgetRetryDelay = 5 * time.Minute

// ClaimResult is what the claim endpoint renders from: enough state for
// the client to show pending/success/failure without re-deriving business
// logic. Failure reasons are deliberately not included.
type ClaimResult struct {
	Accepted     bool          `json:"accepted"`
	Status       domain.Status `json:"status"`
	SpinsAwarded int           `json:"spins_awarded"`
}

// Claimer handles a user's request for credit. Visit-class tasks pass a
// dwell-time gate and verify synchronously; legacy engagement kinds queue
// for async verification; connect-account fails closed.
type Claimer struct {
	store  ports.CompletionStore
	tasks  ports.TaskStore
	volume ports.VolumeCounter
	exec   *Executor
	dwell  time.Duration
	now    func() time.Time
}

func NewClaimer(store ports.CompletionStore, tasks ports.TaskStore, volume ports.VolumeCounter, exec *Executor, dwell time.Duration) *Claimer {
	return &Claimer{
		store:  store,
		tasks:  tasks,
		volume: volume,
		exec:   exec,
		dwell:  dwell,
		now:    time.Now,
	}
}

func (c *Claimer) WithClock(now func() time.Time) *Claimer {
	c.now = now
	return c
}

func resultFrom(comp *domain.Completion) *ClaimResult {
	return &ClaimResult{
		Accepted:     comp.Status == domain.StatusVerified,
		Status:       comp.Status,
		SpinsAwarded: comp.SpinsAwarded,
	}
}

func (c *Claimer) Claim(ctx context.Context, completionID string) (*ClaimResult, error) {
	comp, err := c.store.Get(ctx, completionID)
	if err != nil {
		return nil, err
	}
	// Terminal rows short-circuit with the already-resolved result;
	// retrying a claim never re-credits.
	if comp.Status.Terminal() {
		return resultFrom(comp), nil
	}

	task, err := c.tasks.GetTask(ctx, comp.TaskID)
	if err != nil {
		return nil, err
	}

	switch task.Action() {
	case domain.ActionVisit:
		return c.claimVisit(ctx, comp, task)
	case domain.ActionLegacyEngagement:
		return c.claimLegacy(ctx, comp)
	default:
		// CONNECT_ACCOUNT is deferred upstream; unknown kinds have no
		// verification path. Both fail closed.
		if _, err := c.store.Resolve(ctx, comp.ID, domain.Resolution{
			Status:     domain.StatusFailed,
			ResolvedAt: c.now(),
		}); err != nil {
			return nil, err
		}
		return nil, domain.ErrUnsupportedActionKind
	}
}

// claimVisit applies the dwell-time gate and verifies synchronously. The
// gate only proves a minimum dwell, not genuine engagement; it is a cheap
// anti-bot floor.
func (c *Claimer) claimVisit(ctx context.Context, comp *domain.Completion, task *domain.SocialTask) (*ClaimResult, error) {
	if comp.ClickedAt == nil {
		return nil, domain.ErrMissingClickTimestamp
	}
	now := c.now()
	if elapsed := now.Sub(*comp.ClickedAt); elapsed < c.dwell {
		return nil, &domain.TooEarlyError{Remaining: c.dwell - elapsed}
	}

	if err := c.store.MarkClaimed(ctx, comp.ID, now); err != nil {
		return nil, err
	}
	c.countClaim(ctx, comp.CohortID)

	resolved, err := c.exec.VerifyOne(ctx, *comp, *task, domain.StrategyIndividual, false)
	if err != nil {
		if errors.Is(err, domain.ErrRateBudgetExceeded) {
			// Deferred, not failed: hand the row to the scheduler.
			if serr := c.store.Schedule(ctx, comp.ID, now.Add(budgetRetryDelay)); serr != nil {
				return nil, serr
			}
		}
		return nil, err
	}
	return resultFrom(resolved), nil
}

// claimLegacy queues like/follow/share/comment claims for the scheduler;
// no time gate applies.
func (c *Claimer) claimLegacy(ctx context.Context, comp *domain.Completion) (*ClaimResult, error) {
	now := c.now()
	if err := c.store.MarkClaimed(ctx, comp.ID, now); err != nil {
		return nil, err
	}
	if err := c.store.Schedule(ctx, comp.ID, now); err != nil {
		return nil, err
	}
	c.countClaim(ctx, comp.CohortID)

	return &ClaimResult{Accepted: false, Status: comp.Status}, nil
}

// countClaim feeds strategy selection. A failed increment skews the
// selector toward stricter verification, which is the safe direction, so
// it only logs.
func (c *Claimer) countClaim(ctx context.Context, cohortID string) {
	if err := c.volume.Increment(ctx, cohortID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("cohort", cohortID).Msg("cohort volume increment failed")
	}
}
