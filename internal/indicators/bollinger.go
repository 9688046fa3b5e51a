package indicators

import "github.com/trogers1052/stock-signal-engine/internal/stats"

// BollingerResult holds the latest bands. PercentB is nil when the bands
// collapse to a single price (zero width).
type BollingerResult struct {
	Upper    float64
	Middle   float64
	Lower    float64
	PercentB *float64
}

// Bollinger computes SMA(period) ± multiplier × population stddev over the
// last period prices. %B is not clamped; out-of-range values are left for
// the quality validator to flag.
func Bollinger(prices []float64, period int, multiplier float64) *BollingerResult {
	if period <= 1 || len(prices) < period {
		return nil
	}
	window := prices[len(prices)-period:]
	s := stats.Welford(window)
	if s.Count != period {
		return nil
	}

	res := &BollingerResult{
		Middle: s.Mean,
		Upper:  s.Mean + multiplier*s.StdDev,
		Lower:  s.Mean - multiplier*s.StdDev,
	}
	width := res.Upper - res.Lower
	if width > epsilon {
		pb := (prices[len(prices)-1] - res.Lower) / width
		res.PercentB = &pb
	}
	return res
}
