package verify

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

// lockedRand serializes access to a rand.Rand. The executor is shared by
// the worker ticker and the HTTP process-due trigger, so batches can run
// concurrently, and rand.Rand is not safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

func (r *lockedRand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Perm(n)
}

// Executor resolves pending completions under a chosen strategy. It is the
// only component that moves a completion into a terminal state.
type Executor struct {
	store   ports.CompletionStore
	tasks   ports.TaskStore
	checker ports.EngagementChecker
	budget  ports.RateBudget
	awarder *Awarder

	// honorAcceptRate is the fraction of claims accepted under
	// HONOR_SYSTEM. 1.0 accepts everything.
	honorAcceptRate float64

	rng *lockedRand
	now func() time.Time
}

func NewExecutor(store ports.CompletionStore, tasks ports.TaskStore, checker ports.EngagementChecker, budget ports.RateBudget, awarder *Awarder, honorAcceptRate float64) *Executor {
	return &Executor{
		store:           store,
		tasks:           tasks,
		checker:         checker,
		budget:          budget,
		awarder:         awarder,
		honorAcceptRate: honorAcceptRate,
		rng:             &lockedRand{src: rand.New(rand.NewSource(time.Now().UnixNano()))},
		now:             time.Now,
	}
}

// WithRand replaces the randomness source. Test hook; also makes
// statistical projection reproducible under a fixed seed.
func (e *Executor) WithRand(rng *rand.Rand) *Executor {
	e.rng = &lockedRand{src: rng}
	return e
}

func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// VerifyOne resolves a single completion with one external check. Already
// terminal rows are returned untouched. A budget denial returns
// ErrRateBudgetExceeded and leaves the row pending.
func (e *Executor) VerifyOne(ctx context.Context, comp domain.Completion, task domain.SocialTask, strategy domain.StrategyKind, sampled bool) (*domain.Completion, error) {
	if comp.Status.Terminal() {
		return &comp, nil
	}

	switch task.Action() {
	case domain.ActionVisit, domain.ActionLegacyEngagement:
	default:
		return e.resolve(ctx, comp, task, domain.StatusFailed, strategy, sampled, false)
	}

	campaign, err := e.tasks.GetCampaign(ctx, task.CampaignID)
	if err != nil {
		return nil, err
	}
	ok, err := e.budget.TryConsume(ctx, campaign.BudgetOwner())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrRateBudgetExceeded
	}

	engaged, err := e.checker.Check(ctx, task, comp.UserID)
	if err != nil {
		// Timeouts and provider errors fail the row rather than leave it
		// pending forever; a manual verify call may revisit.
		log.Ctx(ctx).Warn().Err(err).Str("completion", comp.ID).Msg("external check failed")
		return e.resolve(ctx, comp, task, domain.StatusFailed, strategy, sampled, false)
	}

	status := domain.StatusFailed
	if engaged {
		status = domain.StatusVerified
	}
	return e.resolve(ctx, comp, task, status, strategy, sampled, false)
}

// ManualVerify resolves one completion on demand (administrative
// trigger). Terminal rows short-circuit with the stored result.
func (e *Executor) ManualVerify(ctx context.Context, completionID string) (*domain.Completion, error) {
	comp, err := e.store.Get(ctx, completionID)
	if err != nil {
		return nil, err
	}
	if comp.Status.Terminal() {
		return comp, nil
	}
	task, err := e.tasks.GetTask(ctx, comp.TaskID)
	if err != nil {
		return nil, err
	}
	return e.VerifyOne(ctx, *comp, *task, domain.StrategyIndividual, false)
}

// ExecuteBatch resolves a cohort's pending completions under plan. Errors
// on one completion do not abort the rest; a rate-budget denial does, so
// the caller can re-schedule what is left instead of hammering the limit.
func (e *Executor) ExecuteBatch(ctx context.Context, batch []domain.Completion, plan domain.StrategyPlan) error {
	if len(batch) == 0 {
		return nil
	}
	switch plan.Kind {
	case domain.StrategyIndividual:
		return e.runSequential(ctx, batch, plan.Kind, 0)
	case domain.StrategyBatched:
		return e.runSequential(ctx, batch, plan.Kind, plan.Window/time.Duration(len(batch)))
	case domain.StrategyStatistical:
		return e.runStatistical(ctx, batch, plan)
	case domain.StrategyHonorSystem:
		return e.runHonorSystem(ctx, batch)
	default:
		return errors.New("unknown strategy " + string(plan.Kind))
	}
}

// runSequential verifies every completion for real, pausing delay between
// external calls to spread load. The pause is cooperative: a shutdown
// cancels it.
func (e *Executor) runSequential(ctx context.Context, batch []domain.Completion, kind domain.StrategyKind, delay time.Duration) error {
	for i, comp := range batch {
		if err := e.verifyItem(ctx, comp, kind, false); err != nil {
			return err
		}
		if delay > 0 && i < len(batch)-1 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// runStatistical verifies a random sample for real and projects the
// remainder from the sample's empirical success rate. The whole cohort
// resolves using only sample-size external calls.
func (e *Executor) runStatistical(ctx context.Context, batch []domain.Completion, plan domain.StrategyPlan) error {
	sampleSize := int(math.Round(float64(len(batch)) * plan.VerifyPercent))
	if sampleSize < 1 {
		sampleSize = 1
	}
	if sampleSize > len(batch) {
		sampleSize = len(batch)
	}

	perm := e.rng.Perm(len(batch))
	sample := make([]domain.Completion, 0, sampleSize)
	remainder := make([]domain.Completion, 0, len(batch)-sampleSize)
	for i, idx := range perm {
		if i < sampleSize {
			sample = append(sample, batch[idx])
		} else {
			remainder = append(remainder, batch[idx])
		}
	}

	delay := time.Duration(0)
	if plan.Window > 0 {
		delay = plan.Window / time.Duration(sampleSize)
	}

	checked, verified := 0, 0
	for i, comp := range sample {
		res, err := e.verifyItemResult(ctx, comp, domain.StrategyStatistical, true)
		if err != nil {
			return err
		}
		if res != nil {
			checked++
			if res.Status == domain.StatusVerified {
				verified++
			}
		}
		if delay > 0 && i < len(sample)-1 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	if checked == 0 {
		// nothing to project from; leave the remainder for a later run
		return nil
	}
	rate := float64(verified) / float64(checked)

	for _, comp := range remainder {
		if comp.Status.Terminal() {
			continue
		}
		task, err := e.tasks.GetTask(ctx, comp.TaskID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("projection skipped")
			continue
		}
		status := domain.StatusFailed
		if e.rng.Float64() < rate {
			status = domain.StatusVerified
		}
		if _, err := e.resolve(ctx, comp, *task, status, domain.StrategyStatistical, false, true); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("projection failed")
		}
	}
	return nil
}

// runHonorSystem resolves the whole cohort with zero external calls.
func (e *Executor) runHonorSystem(ctx context.Context, batch []domain.Completion) error {
	for _, comp := range batch {
		if comp.Status.Terminal() {
			continue
		}
		task, err := e.tasks.GetTask(ctx, comp.TaskID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("honor resolution skipped")
			continue
		}
		status := domain.StatusVerified
		if e.honorAcceptRate < 1 && e.rng.Float64() >= e.honorAcceptRate {
			status = domain.StatusFailed
		}
		if _, err := e.resolve(ctx, comp, *task, status, domain.StrategyHonorSystem, false, false); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("honor resolution failed")
		}
	}
	return nil
}

// verifyItem isolates per-item failures: only a budget denial propagates.
func (e *Executor) verifyItem(ctx context.Context, comp domain.Completion, kind domain.StrategyKind, sampled bool) error {
	_, err := e.verifyItemResult(ctx, comp, kind, sampled)
	return err
}

func (e *Executor) verifyItemResult(ctx context.Context, comp domain.Completion, kind domain.StrategyKind, sampled bool) (*domain.Completion, error) {
	task, err := e.tasks.GetTask(ctx, comp.TaskID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("task lookup failed")
		return nil, nil
	}
	res, err := e.VerifyOne(ctx, comp, *task, kind, sampled)
	if err != nil {
		if errors.Is(err, domain.ErrRateBudgetExceeded) {
			return nil, err
		}
		log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("verification failed")
		return nil, nil
	}
	return res, nil
}

// resolve applies a terminal state and, when this call is the one that won
// the transition into VERIFIED, awards the reward. Re-entry on an already
// terminal row returns the stored result without re-crediting.
func (e *Executor) resolve(ctx context.Context, comp domain.Completion, task domain.SocialTask, status domain.Status, strategy domain.StrategyKind, sampled, projected bool) (*domain.Completion, error) {
	spins := 0
	if status == domain.StatusVerified {
		spins = task.SpinsReward
	}
	res := domain.Resolution{
		Status:     status,
		Strategy:   strategy,
		Spins:      spins,
		Sampled:    sampled,
		Projected:  projected,
		ResolvedAt: e.now(),
	}

	applied, err := e.store.Resolve(ctx, comp.ID, res)
	if err != nil {
		return nil, err
	}
	if !applied {
		return e.store.Get(ctx, comp.ID)
	}

	comp.Status = status
	comp.Strategy = strategy
	comp.SpinsAwarded = spins
	comp.Sampled = sampled
	comp.Projected = projected
	comp.ResolvedAt = &res.ResolvedAt

	if status == domain.StatusVerified {
		if err := e.awarder.AwardAndNotify(ctx, comp, task); err != nil {
			// The row is already verified; a credit failure needs human
			// attention, not a state rollback.
			log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("award failed after verification")
		}
	}
	return &comp, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
