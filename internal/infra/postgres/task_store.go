package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

var (
	_ ports.TaskStore    = (*TaskStore)(nil)
	_ ports.RewardLedger = (*TaskStore)(nil)
)

// TaskStore reads task/campaign definitions and writes spin credits. The
// definitions are owned by the campaign CRUD surface; this store only ever
// reads them.
type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

func (s *TaskStore) GetTask(ctx context.Context, id string) (*domain.SocialTask, error) {
	var t domain.SocialTask
	err := s.pool.QueryRow(ctx, `
		SELECT id, campaign_id, kind, target_url, spins_reward, is_active
		FROM social_tasks WHERE id = $1`, id).
		Scan(&t.ID, &t.CampaignID, &t.Kind, &t.TargetURL, &t.SpinsReward, &t.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (s *TaskStore) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, notify_immediately, notify_from_hour, notify_to_hour
		FROM campaigns WHERE id = $1`, id).
		Scan(&c.ID, &c.TenantID, &c.NotifyImmediately, &c.NotifyFromHour, &c.NotifyToHour)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (s *TaskStore) ListCampaignTasks(ctx context.Context, campaignID string) ([]domain.SocialTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, campaign_id, kind, target_url, spins_reward, is_active
		FROM social_tasks WHERE campaign_id = $1 ORDER BY id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.SocialTask
	for rows.Next() {
		var t domain.SocialTask
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.Kind, &t.TargetURL, &t.SpinsReward, &t.IsActive); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TaskStore) Credit(ctx context.Context, campaignID, userID string, spins int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO spin_balances (campaign_id, user_id, spins, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (campaign_id, user_id)
		DO UPDATE SET spins = spin_balances.spins + EXCLUDED.spins, updated_at = now()`,
		campaignID, userID, spins)
	if err != nil {
		return fmt.Errorf("credit spins: %w", err)
	}
	return nil
}
