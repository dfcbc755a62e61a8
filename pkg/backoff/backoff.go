package backoff

import (
	"math"
	"time"
)

// ExponentialJitter returns the delay before the attempt-th retry,
// doubling from base up to max with +/- 20% jitter. Used to re-schedule
// cohorts whose verification was deferred by the rate budget.
func ExponentialJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	mul := math.Pow(2, float64(attempt-1))
	d := min(time.Duration(float64(base)*mul), max)

	// simple jitter: +/- 20%
	j := time.Duration(float64(d) * 0.2)
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(time.Now().UnixNano()%int64(2*j))
}
