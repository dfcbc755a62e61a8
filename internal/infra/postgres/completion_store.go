package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

var _ ports.CompletionStore = (*CompletionStore)(nil)

type CompletionStore struct {
	pool *pgxpool.Pool
}

func NewCompletionStore(pool *pgxpool.Pool) *CompletionStore {
	return &CompletionStore{pool: pool}
}

const completionColumns = `id, task_id, user_id, campaign_id, cohort_id, status,
	clicked_at, claimed_at, scheduled_at, resolved_at,
	spins_awarded, verification_strategy, sampled_for_verification, projected_from_sample`

func scanCompletion(row pgx.Row) (*domain.Completion, error) {
	var c domain.Completion
	err := row.Scan(
		&c.ID, &c.TaskID, &c.UserID, &c.CampaignID, &c.CohortID, &c.Status,
		&c.ClickedAt, &c.ClaimedAt, &c.ScheduledAt, &c.ResolvedAt,
		&c.SpinsAwarded, &c.Strategy, &c.Sampled, &c.Projected,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCompletionNotFound
		}
		return nil, fmt.Errorf("scan completion: %w", err)
	}
	return &c, nil
}

func (s *CompletionStore) Create(ctx context.Context, c domain.Completion) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_completions
			(id, task_id, user_id, campaign_id, cohort_id, status,
			 clicked_at, claimed_at, scheduled_at,
			 spins_awarded, verification_strategy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.TaskID, c.UserID, c.CampaignID, c.CohortID, c.Status,
		c.ClickedAt, c.ClaimedAt, c.ScheduledAt,
		c.SpinsAwarded, c.Strategy,
	)
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

func (s *CompletionStore) Get(ctx context.Context, id string) (*domain.Completion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+completionColumns+` FROM task_completions WHERE id = $1`, id)
	return scanCompletion(row)
}

func (s *CompletionStore) GetByTaskUser(ctx context.Context, taskID, userID string) (*domain.Completion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+completionColumns+` FROM task_completions WHERE task_id = $1 AND user_id = $2`,
		taskID, userID)
	return scanCompletion(row)
}

func (s *CompletionStore) RecordClick(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE task_completions
		SET clicked_at = $2,
		    status = CASE WHEN status = 'pending' THEN 'started' ELSE status END
		WHERE id = $1 AND clicked_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}

func (s *CompletionStore) MarkClaimed(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE task_completions SET claimed_at = $2
		WHERE id = $1 AND status IN ('pending', 'started')`,
		id, at)
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

func (s *CompletionStore) Schedule(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE task_completions SET scheduled_at = $2
		WHERE id = $1 AND status IN ('pending', 'started')`,
		id, at)
	if err != nil {
		return fmt.Errorf("schedule completion: %w", err)
	}
	return nil
}

// ClaimDue leases due rows by pushing scheduled_at forward in the same
// statement that selects them. SKIP LOCKED keeps two concurrent scheduler
// runs from handing out the same row; the lease brings rows back if a run
// dies mid-batch, and Resolve's conditional transition makes redelivery
// harmless.
func (s *CompletionStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.Completion, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM task_completions
			WHERE status IN ('pending', 'started')
			  AND scheduled_at IS NOT NULL
			  AND scheduled_at <= $1
			ORDER BY scheduled_at, claimed_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE task_completions t
		SET scheduled_at = $2
		FROM due
		WHERE t.id = due.id
		RETURNING `+qualified(completionColumns, "t"),
		now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due completions: %w", err)
	}
	defer rows.Close()

	var out []domain.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due completions: %w", err)
	}
	// UPDATE ... RETURNING does not preserve the CTE's order; callers
	// expect oldest eligible first.
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].ClaimedAt, out[j].ClaimedAt
		switch {
		case ti == nil:
			return tj != nil
		case tj == nil:
			return false
		default:
			return ti.Before(*tj)
		}
	})
	return out, nil
}

func (s *CompletionStore) Resolve(ctx context.Context, id string, res domain.Resolution) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_completions
		SET status = $2,
		    spins_awarded = $3,
		    verification_strategy = $4,
		    sampled_for_verification = $5,
		    projected_from_sample = $6,
		    resolved_at = $7,
		    scheduled_at = NULL
		WHERE id = $1 AND status IN ('pending', 'started')`,
		id, res.Status, res.Spins, res.Strategy, res.Sampled, res.Projected, res.ResolvedAt)
	if err != nil {
		return false, fmt.Errorf("resolve completion: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CompletionStore) ListByUser(ctx context.Context, userID, campaignID string) ([]domain.Completion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+completionColumns+` FROM task_completions
		WHERE user_id = $1 AND campaign_id = $2
		ORDER BY claimed_at NULLS LAST`,
		userID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []domain.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
