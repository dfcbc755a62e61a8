package verify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
	"taskverify/pkg/backoff"
)

// Processor is the scheduler-facing entry point: it pulls completions
// whose verification time has arrived, groups them by cohort, and runs
// each cohort under its selected strategy.
type Processor struct {
	store    ports.CompletionStore
	selector *Selector
	exec     *Executor

	lease       time.Duration
	limit       int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	// attempts counts consecutive budget deferrals per cohort so the
	// re-schedule backoff escalates instead of retrying every minute.
	mu       sync.Mutex
	attempts map[string]int
}

func NewProcessor(store ports.CompletionStore, selector *Selector, exec *Executor, lease time.Duration, limit int) *Processor {
	return &Processor{
		store:       store,
		selector:    selector,
		exec:        exec,
		lease:       lease,
		limit:       limit,
		baseBackoff: time.Minute,
		maxBackoff:  30 * time.Minute,
		now:         time.Now,
		attempts:    make(map[string]int),
	}
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Stats summarizes one scheduler pass.
type Stats struct {
	Fetched  int `json:"fetched"`
	Cohorts  int `json:"cohorts"`
	Deferred int `json:"deferred"`
}

// ProcessDue runs one scheduler pass. A failing cohort never aborts the
// others; cohorts stopped by the rate budget are pushed back with backoff.
func (p *Processor) ProcessDue(ctx context.Context) (Stats, error) {
	var stats Stats

	batch, err := p.store.ClaimDue(ctx, p.now(), p.lease, p.limit)
	if err != nil {
		return stats, err
	}
	stats.Fetched = len(batch)
	if len(batch) == 0 {
		return stats, nil
	}

	// group by cohort, preserving fetch order within each
	order := make([]string, 0)
	cohorts := make(map[string][]domain.Completion)
	for _, c := range batch {
		if _, seen := cohorts[c.CohortID]; !seen {
			order = append(order, c.CohortID)
		}
		cohorts[c.CohortID] = append(cohorts[c.CohortID], c)
	}
	stats.Cohorts = len(order)

	for _, cohortID := range order {
		rows := cohorts[cohortID]

		plan, err := p.selector.Select(ctx, cohortID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("cohort", cohortID).Msg("strategy selection failed")
			continue
		}
		log.Ctx(ctx).Info().
			Str("cohort", cohortID).
			Str("strategy", string(plan.Kind)).
			Int("pending", len(rows)).
			Msg("processing cohort")

		// ClaimDue leased the rows for the base duration only. A spread
		// window of several hours outlives that, so hold the rows for the
		// whole window or a concurrent pass re-claims the tail mid-batch.
		if plan.Window > p.lease {
			p.extendLease(ctx, rows, plan.Window)
		}

		err = p.exec.ExecuteBatch(ctx, rows, plan)
		switch {
		case err == nil:
			p.clearAttempts(cohortID)
		case errors.Is(err, domain.ErrRateBudgetExceeded):
			stats.Deferred += p.deferUnresolved(ctx, cohortID, rows)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// shutdown mid-batch: unresolved rows come back via the lease
			return stats, err
		default:
			log.Ctx(ctx).Error().Err(err).Str("cohort", cohortID).Msg("cohort execution failed")
		}
	}
	return stats, nil
}

// extendLease pushes the claim hold on a cohort's rows past the spread
// window. Rows the batch resolves stop being claimable anyway; rows a
// budget stop leaves behind get re-scheduled by deferUnresolved.
func (p *Processor) extendLease(ctx context.Context, rows []domain.Completion, window time.Duration) {
	hold := p.now().Add(window + p.lease)
	for _, c := range rows {
		if err := p.store.Schedule(ctx, c.ID, hold); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("completion", c.ID).Msg("lease extension failed")
		}
	}
}

func (p *Processor) bumpAttempts(cohortID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[cohortID]++
	return p.attempts[cohortID]
}

func (p *Processor) clearAttempts(cohortID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, cohortID)
}

// deferUnresolved re-schedules whatever the budget stop left pending.
func (p *Processor) deferUnresolved(ctx context.Context, cohortID string, rows []domain.Completion) int {
	attempt := p.bumpAttempts(cohortID)
	delay := backoff.ExponentialJitter(p.baseBackoff, p.maxBackoff, attempt)
	retryAt := p.now().Add(delay)

	deferred := 0
	for _, c := range rows {
		cur, err := p.store.Get(ctx, c.ID)
		if err != nil || cur.Status.Terminal() {
			continue
		}
		if err := p.store.Schedule(ctx, c.ID, retryAt); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("completion", c.ID).Msg("re-schedule failed")
			continue
		}
		deferred++
	}
	log.Ctx(ctx).Warn().Int("deferred", deferred).Int("attempt", attempt).Dur("delay", delay).Msg("rate budget exhausted, cohort deferred")
	return deferred
}
