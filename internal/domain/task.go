package domain

import "time"

// SocialTask defines one engagement action a campaign asks of its users.
// Immutable for the engine's purposes except for IsActive.
type SocialTask struct {
	ID          string `json:"id"`
	CampaignID  string `json:"campaign_id"`
	Kind        string `json:"kind"` // e.g. VISIT_PAGE, LIKE, CONNECT_ACCOUNT
	TargetURL   string `json:"target_url,omitempty"`
	SpinsReward int    `json:"spins_reward"`
	IsActive    bool   `json:"is_active"`
}

// Action classifies the stored kind string.
func (t SocialTask) Action() ActionClass {
	return ClassifyAction(t.Kind)
}

// Campaign carries the engine-relevant slice of a campaign: whose external
// credential pays for verification calls, and when winners may be notified.
type Campaign struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	// NotifyImmediately bypasses the hour-of-day window entirely.
	NotifyImmediately bool `json:"notify_immediately"`

	// NotifyFromHour/NotifyToHour bound the local hours during which
	// verification notifications may go out. A window that wraps midnight
	// (from > to) is allowed.
	NotifyFromHour int `json:"notify_from_hour"`
	NotifyToHour   int `json:"notify_to_hour"`
}

// BudgetOwner identifies the external credential charged for this
// campaign's verification calls.
func (c Campaign) BudgetOwner() string {
	return c.TenantID
}

// AllowsNotificationAt reports whether a verification notification may be
// sent at t under the campaign's notification hours.
func (c Campaign) AllowsNotificationAt(t time.Time) bool {
	if c.NotifyImmediately {
		return true
	}
	h := t.Hour()
	if c.NotifyFromHour <= c.NotifyToHour {
		return h >= c.NotifyFromHour && h < c.NotifyToHour
	}
	// window wraps midnight
	return h >= c.NotifyFromHour || h < c.NotifyToHour
}
