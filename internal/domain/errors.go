package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrCompletionNotFound    = errors.New("completion not found")
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrTaskInactive          = errors.New("task is not active")
	ErrWrongCampaign         = errors.New("task does not belong to campaign")
	ErrMissingClickTimestamp = errors.New("click not recorded before claim")
	ErrUnsupportedActionKind = errors.New("action kind not supported")
	ErrRateBudgetExceeded    = errors.New("external verification rate budget exceeded")
	ErrExternalCheckFailed   = errors.New("external engagement check failed")
)

// TooEarlyError rejects a claim made before the minimum dwell time has
// elapsed since the recorded click. Recoverable: the caller retries after
// Remaining.
type TooEarlyError struct {
	Remaining time.Duration
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("claimed too early, retry in %s", e.Remaining)
}

// AsTooEarly unwraps err into a TooEarlyError if it is one.
func AsTooEarly(err error) (*TooEarlyError, bool) {
	var te *TooEarlyError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
