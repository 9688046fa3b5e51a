package indicators

import (
	"math"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// ATR returns Wilder's Average True Range over period, or nil when fewer than
// period+1 bars exist.
func ATR(bars []models.PriceBar, period int) *float64 {
	if period <= 0 || len(bars) < period+1 {
		return nil
	}

	trueRange := func(i int) float64 {
		b, prevClose := bars[i], bars[i-1].Close
		return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(i)
	}
	p := float64(period)
	atr /= p

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*(p-1) + trueRange(i)) / p
	}
	return &atr
}

// Momentum returns the fractional change over lookback bars
func Momentum(prices []float64, lookback int) *float64 {
	if lookback <= 0 || len(prices) < lookback+1 {
		return nil
	}
	base := prices[len(prices)-1-lookback]
	if base <= 0 {
		return nil
	}
	m := prices[len(prices)-1]/base - 1
	return &m
}

// TrendGap returns (fast - slow) / slow for two moving averages
func TrendGap(fast, slow *float64) *float64 {
	if fast == nil || slow == nil || math.Abs(*slow) < epsilon {
		return nil
	}
	g := (*fast - *slow) / *slow
	return &g
}
