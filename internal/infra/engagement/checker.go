// Package engagement talks to the external verification provider: one
// bounded "did this user engage" call per (user, task).
package engagement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"taskverify/internal/config"
	"taskverify/internal/domain"
	"taskverify/internal/ports"
)

var _ ports.EngagementChecker = (*Checker)(nil)

type Checker struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewChecker(cfg config.Check) *Checker {
	return &Checker{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type checkRequest struct {
	UserID    string `json:"user_id"`
	TaskKind  string `json:"task_kind"`
	TargetURL string `json:"target_url,omitempty"`
}

type checkResponse struct {
	Engaged bool `json:"engaged"`
}

// Check returns whether the provider confirms the engagement. Transport
// errors and timeouts surface as errors; callers map those to a FAILED
// resolution so the state machine keeps progressing.
func (c *Checker) Check(ctx context.Context, task domain.SocialTask, userID string) (bool, error) {
	body, err := json.Marshal(checkRequest{
		UserID:    userID,
		TaskKind:  task.Kind,
		TargetURL: task.TargetURL,
	})
	if err != nil {
		return false, fmt.Errorf("encode check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/engagements/check", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrExternalCheckFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: provider returned %d", domain.ErrExternalCheckFailed, resp.StatusCode)
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode check response: %w", err)
	}
	return out.Engaged, nil
}
