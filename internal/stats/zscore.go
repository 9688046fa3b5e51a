package stats

import (
	"fmt"
	"math"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

const (
	// Epsilon is the smallest standard deviation treated as non-zero
	Epsilon = 1e-8
	// DefaultMinObservations is the window size required for a sufficient population
	DefaultMinObservations = 180
	// MaxAbsZScore bounds a plausible z-score; anything beyond is corrupt
	MaxAbsZScore = 10.0
)

// ZScore returns (x-mean)/stddev, or exactly 0 when stddev <= Epsilon or any
// argument is not finite.
func ZScore(x, mean, stddev float64) float64 {
	if !finite(x) || !finite(mean) || !finite(stddev) {
		return 0
	}
	if stddev <= Epsilon {
		return 0
	}
	return (x - mean) / stddev
}

// HasSufficientData reports whether a window is large enough and has real dispersion
func HasSufficientData(count int, stddev float64, minObs int) bool {
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}
	return count >= minObs && stddev > Epsilon
}

// Tier maps a window size to a reliability tier relative to minObs
func Tier(count int, stddev float64, minObs int) string {
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}
	switch {
	case stddev <= Epsilon || count == 0:
		return models.ReliabilityUnreliable
	case count >= minObs:
		return models.ReliabilityHigh
	case count*4 >= minObs*3:
		return models.ReliabilityMedium
	case count*2 >= minObs:
		return models.ReliabilityLow
	default:
		return models.ReliabilityUnreliable
	}
}

// Evaluate standardizes x against window. It returns ErrCorruptedResult when
// x is not finite or the resulting |z| exceeds MaxAbsZScore; such values must
// never be persisted.
func Evaluate(x float64, window []float64, minObs int) (models.ZScoreResult, error) {
	if !finite(x) {
		return models.ZScoreResult{}, fmt.Errorf("value %v is not finite: %w", x, models.ErrCorruptedResult)
	}
	s := Welford(window)
	z := ZScore(x, s.Mean, s.StdDev)
	res := models.ZScoreResult{
		Value:       x,
		Mean:        s.Mean,
		StdDev:      s.StdDev,
		ZScore:      z,
		Count:       s.Count,
		Reliability: Tier(s.Count, s.StdDev, minObs),
	}
	if !finite(z) || math.Abs(z) > MaxAbsZScore {
		return res, fmt.Errorf("z-score %.2f outside ±%.0f (mean %.4f, stddev %.6f, n=%d): %w",
			z, MaxAbsZScore, s.Mean, s.StdDev, s.Count, models.ErrCorruptedResult)
	}
	return res, nil
}
