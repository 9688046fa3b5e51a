package indicators

// MACDResult holds the latest MACD line, signal line and histogram
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACDMinPoints is the number of prices MACD needs before it is trusted:
// twice the slow period, so the slow EMA has settled past its seed.
func MACDMinPoints(slow, signal int) int {
	n := 2 * slow
	if need := slow - 1 + signal; need > n {
		n = need
	}
	return n
}

// MACD computes EMA(fast) - EMA(slow) and its EMA(signal). Returns nil below
// MACDMinPoints rather than an approximation.
func MACD(prices []float64, fast, slow, signal int) *MACDResult {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return nil
	}
	if len(prices) < MACDMinPoints(slow, signal) {
		return nil
	}

	fastEMA := EMASeries(prices, fast)
	slowEMA := EMASeries(prices, slow)

	// align both series on price index: fastEMA[i-(fast-1)], slowEMA[i-(slow-1)]
	line := make([]float64, 0, len(prices)-slow+1)
	for i := slow - 1; i < len(prices); i++ {
		line = append(line, fastEMA[i-(fast-1)]-slowEMA[i-(slow-1)])
	}

	signalEMA := EMASeries(line, signal)
	if len(signalEMA) == 0 {
		return nil
	}
	last := line[len(line)-1]
	sig := signalEMA[len(signalEMA)-1]
	return &MACDResult{
		Line:      last,
		Signal:    sig,
		Histogram: last - sig,
	}
}
