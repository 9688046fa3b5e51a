package indicators

// SMA returns the simple average of the last period prices, or nil when fewer
// than period prices exist. The window is never shortened.
func SMA(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	v := sum / float64(period)
	return &v
}

// EMASeries returns the exponential moving average for every index from
// period-1 onward. The first value is the simple average of the first period
// prices; seeding from a single raw price would bias every later value.
func EMASeries(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}
	k := 2.0 / float64(period+1)

	seed := 0.0
	for _, p := range prices[:period] {
		seed += p
	}
	out := make([]float64, 0, len(prices)-period+1)
	ema := seed / float64(period)
	out = append(out, ema)

	for _, p := range prices[period:] {
		ema = p*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// EMA returns the latest exponential moving average, requiring at least
// minPoints prices (and never fewer than period).
func EMA(prices []float64, period, minPoints int) *float64 {
	if minPoints < period {
		minPoints = period
	}
	if len(prices) < minPoints {
		return nil
	}
	series := EMASeries(prices, period)
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	return &v
}
