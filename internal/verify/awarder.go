package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

// Awarder credits bonus spins on verification and hands the notification
// to the messaging collaborator. It is called only by the executor, and
// only on the single transition into VERIFIED, so it never double-credits.
type Awarder struct {
	ledger   ports.RewardLedger
	tasks    ports.TaskStore
	notifier ports.Notifier
	now      func() time.Time
}

func NewAwarder(ledger ports.RewardLedger, tasks ports.TaskStore, notifier ports.Notifier) *Awarder {
	return &Awarder{ledger: ledger, tasks: tasks, notifier: notifier, now: time.Now}
}

func (a *Awarder) WithClock(now func() time.Time) *Awarder {
	a.now = now
	return a
}

func (a *Awarder) AwardAndNotify(ctx context.Context, comp domain.Completion, task domain.SocialTask) error {
	if err := a.ledger.Credit(ctx, task.CampaignID, comp.UserID, task.SpinsReward); err != nil {
		return fmt.Errorf("credit %d spins to %s: %w", task.SpinsReward, comp.UserID, err)
	}

	campaign, err := a.tasks.GetCampaign(ctx, task.CampaignID)
	if err != nil {
		return err
	}
	if !campaign.AllowsNotificationAt(a.now()) {
		// Skipped rather than sent late with stale context; deferred
		// delivery belongs to the messaging collaborator.
		log.Ctx(ctx).Info().
			Str("completion", comp.ID).
			Str("campaign", campaign.ID).
			Msg("outside notification hours, skipping notify")
		return nil
	}

	if err := a.notifier.NotifyVerified(ctx, comp.UserID, comp.TaskID, comp.CampaignID); err != nil {
		// Notification is best effort; the credit already happened.
		log.Ctx(ctx).Error().Err(err).Str("completion", comp.ID).Msg("notify failed")
	}
	return nil
}
