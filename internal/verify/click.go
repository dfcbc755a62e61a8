package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

// Recorder stamps the server-observed moment a user began the qualifying
// action. That timestamp is the only trustworthy time anchor the dwell
// check has.
type Recorder struct {
	store ports.CompletionStore
	tasks ports.TaskStore
	now   func() time.Time
}

func NewRecorder(store ports.CompletionStore, tasks ports.TaskStore) *Recorder {
	return &Recorder{store: store, tasks: tasks, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// CohortID groups completions for shared rate and strategy accounting:
// one campaign, one hour bucket.
func CohortID(campaignID string, at time.Time) string {
	return campaignID + ":" + at.UTC().Format("2006010215")
}

// RecordClick creates or updates exactly one completion for (task, user).
// Idempotent: an existing row is returned as-is once its click timestamp
// is set; clicked_at is never moved backward.
func (r *Recorder) RecordClick(ctx context.Context, taskID, userID, campaignID string) (*domain.Completion, error) {
	task, err := r.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.CampaignID != campaignID {
		return nil, domain.ErrWrongCampaign
	}
	if !task.IsActive {
		return nil, domain.ErrTaskInactive
	}

	now := r.now()
	existing, err := r.store.GetByTaskUser(ctx, taskID, userID)
	switch {
	case err == nil:
		if existing.ClickedAt == nil {
			if err := r.store.RecordClick(ctx, existing.ID, now); err != nil {
				return nil, err
			}
			return r.store.Get(ctx, existing.ID)
		}
		return existing, nil

	case errors.Is(err, domain.ErrCompletionNotFound):
		c := domain.Completion{
			ID:         uuid.NewString(),
			TaskID:     taskID,
			UserID:     userID,
			CampaignID: campaignID,
			CohortID:   CohortID(campaignID, now),
			Status:     domain.StatusStarted,
			ClickedAt:  &now,
		}
		if err := r.store.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("create completion: %w", err)
		}
		return &c, nil

	default:
		return nil, err
	}
}
