// Package webhook hands verification notifications to the external
// messaging collaborator. Delivery semantics past the hand-off (templates,
// channel, deferred sends) belong to the collaborator.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"taskverify/internal/config"
	"taskverify/internal/ports"
)

var _ ports.Notifier = (*Notifier)(nil)

type Notifier struct {
	url        string
	httpClient *http.Client
}

func NewNotifier(cfg config.Notify) *Notifier {
	return &Notifier{
		url:        cfg.WebhookURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type notifyPayload struct {
	Event      string `json:"event"`
	UserID     string `json:"user_id"`
	TaskID     string `json:"task_id"`
	CampaignID string `json:"campaign_id"`
}

func (n *Notifier) NotifyVerified(ctx context.Context, userID, taskID, campaignID string) error {
	if n.url == "" {
		log.Ctx(ctx).Debug().Msg("notification webhook not configured, skipping")
		return nil
	}

	body, err := json.Marshal(notifyPayload{
		Event:      "task_verified",
		UserID:     userID,
		TaskID:     taskID,
		CampaignID: campaignID,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}
