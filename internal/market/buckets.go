// Package market converts grade forecasts into per-threshold win probabilities
// and holds the fixed payout policy of the grade markets.
package market

import (
	"math"

	"github.com/yourusername/grade-market/internal/models"
)

// Thresholds are the grade levels every course market is offered at, ascending
var Thresholds = []float64{70, 75, 80, 85, 90, 95}

const (
	// SigmaFloor bounds the spread from below so sparse history never yields an over-confident curve
	SigmaFloor = 6.0
	// SampleSize is how many of the most recent grades feed the spread estimate
	SampleSize = 10
)

// Sigma returns the unbiased sample standard deviation of sample, floored at SigmaFloor
func Sigma(sample []float64) float64 {
	n := len(sample)
	if n < 2 {
		return SigmaFloor
	}

	var sum float64
	for _, g := range sample {
		sum += g
	}
	mean := sum / float64(n)

	var sq float64
	for _, g := range sample {
		d := g - mean
		sq += d * d
	}
	sigma := math.Sqrt(sq / float64(n-1))

	if math.IsNaN(sigma) || math.IsInf(sigma, 0) || sigma < SigmaFloor {
		return SigmaFloor
	}
	return sigma
}

// NormalCDF is the standard normal cumulative distribution function
func NormalCDF(z float64) float64 {
	switch {
	case math.IsNaN(z):
		return 0.5
	case z > 40:
		return 1
	case z < -40:
		return 0
	}

	p := 0.5 * (1 + math.Erf(z/math.Sqrt2))
	return math.Min(1, math.Max(0, p))
}

// ProbabilityAtLeast returns P(final >= threshold) for a normal forecast N(mu, sigma)
func ProbabilityAtLeast(mu, sigma, threshold float64) float64 {
	if sigma <= 0 || math.IsNaN(sigma) {
		sigma = SigmaFloor
	}
	return 1 - NormalCDF((threshold-mu)/sigma)
}

// RecentSample returns at most the SampleSize most recent grades, oldest first
func RecentSample(history []float64) []float64 {
	if len(history) <= SampleSize {
		return history
	}
	return history[len(history)-SampleSize:]
}

// Buckets computes a probability for every threshold from a point estimate and recent grade history.
// A nil estimate means the forecast was unavailable and yields no buckets.
func Buckets(mu *float64, history []float64) []models.Bucket {
	if mu == nil || math.IsNaN(*mu) || math.IsInf(*mu, 0) {
		return nil
	}

	sigma := Sigma(RecentSample(history))
	buckets := make([]models.Bucket, 0, len(Thresholds))
	for _, t := range Thresholds {
		buckets = append(buckets, models.Bucket{
			Threshold:   t,
			Probability: ProbabilityAtLeast(*mu, sigma, t),
		})
	}
	return buckets
}

// IsThreshold reports whether t is one of the offered thresholds
func IsThreshold(t float64) bool {
	for _, candidate := range Thresholds {
		if candidate == t {
			return true
		}
	}
	return false
}
