package indicators

import "math"

const epsilon = 1e-8

// RSI calculates the Relative Strength Index using Wilder's smoothing. The
// first averages are simple means over the first period changes. Returns nil
// when fewer than period+1 prices exist. A series without losses is 100.
func RSI(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	var rsi float64
	if avgLoss < epsilon {
		rsi = 100
	} else {
		rs := avgGain / avgLoss
		rsi = 100 - 100/(1+rs)
	}
	if math.IsNaN(rsi) {
		return nil
	}
	rsi = math.Max(0, math.Min(100, rsi))
	return &rsi
}
