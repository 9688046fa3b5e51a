// Package stats holds the numeric primitives every signal is built on:
// single-pass mean/variance and the epsilon-guarded z-score.
package stats

import "math"

// Summary describes a population of observations
type Summary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Welford computes mean and population standard deviation in one pass.
// NaN and infinite inputs are skipped. An empty (or all non-finite) input
// returns the zero Summary.
func Welford(values []float64) Summary {
	var (
		n    int
		mean float64
		m2   float64
		lo   = math.Inf(1)
		hi   = math.Inf(-1)
	)
	for _, x := range values {
		if !finite(x) {
			continue
		}
		n++
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if n == 0 {
		return Summary{}
	}

	variance := m2 / float64(n)
	if variance < 0 {
		// rounding can leave a tiny negative m2 for constant input
		variance = 0
	}
	return Summary{
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Count:  n,
		Min:    lo,
		Max:    hi,
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
