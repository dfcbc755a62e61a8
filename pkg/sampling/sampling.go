// Package sampling computes how many completions must be individually
// checked for a cohort's empirical success rate to be statistically valid.
package sampling

import "math"

const (
	// zScore for 95% confidence.
	zScore = 1.96

	// marginOfError is the tolerated deviation (±2%).
	marginOfError = 0.02

	// worstCaseProportion maximizes required sample size when the true
	// success rate is unknown.
	worstCaseProportion = 0.5

	// maxSample trims the formula's 2401 to an even 2400: twelve hours at
	// the provider's 200/hour limit covers exactly that many calls.
	maxSample = 2400
)

// Size returns the sample size for the configured confidence and margin,
// capped at the population.
func Size(population int) int {
	if population <= 0 {
		return 0
	}
	n := zScore * zScore * worstCaseProportion * (1 - worstCaseProportion) /
		(marginOfError * marginOfError)
	size := int(math.Ceil(n))
	if size > maxSample {
		size = maxSample
	}
	if size > population {
		return population
	}
	return size
}

// Fraction returns Size(population) as a fraction of the population,
// in (0, 1].
func Fraction(population int) float64 {
	if population <= 0 {
		return 0
	}
	return float64(Size(population)) / float64(population)
}
