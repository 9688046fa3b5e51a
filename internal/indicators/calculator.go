// Package indicators computes technical indicators from daily closes. All
// functions are pure; insufficient input yields nil, never a default value.
package indicators

import (
	"time"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// Params configures indicator periods
type Params struct {
	RSIPeriod           int
	MACDFast            int
	MACDSlow            int
	MACDSignal          int
	BollingerPeriod     int
	BollingerMultiplier float64
	ATRPeriod           int
	MomentumLookback    int
}

// DefaultParams returns the standard periods (14, 12/26/9, 20×2, 14, 5)
func DefaultParams() Params {
	return Params{
		RSIPeriod:           14,
		MACDFast:            12,
		MACDSlow:            26,
		MACDSignal:          9,
		BollingerPeriod:     20,
		BollingerMultiplier: 2,
		ATRPeriod:           14,
		MomentumLookback:    5,
	}
}

// Calculator turns a bar series into an IndicatorSnapshot
type Calculator struct {
	params Params
	now    func() time.Time
}

// NewCalculator creates a Calculator with the given periods
func NewCalculator(params Params) *Calculator {
	return &Calculator{params: params, now: time.Now}
}

// Params returns the calculator configuration
func (c *Calculator) Params() Params {
	return c.params
}

// MinBars is the bar count at which every indicator can be produced
func (c *Calculator) MinBars() int {
	n := MACDMinPoints(c.params.MACDSlow, c.params.MACDSignal)
	for _, m := range []int{50, c.params.RSIPeriod + 1, c.params.BollingerPeriod, c.params.ATRPeriod + 1, c.params.MomentumLookback + 1} {
		if m > n {
			n = m
		}
	}
	return n
}

// Compute calculates every indicator for the last bar in bars, which must be
// ordered oldest first. Indicators without enough history are left nil.
func (c *Calculator) Compute(symbol string, bars []models.PriceBar) *models.IndicatorSnapshot {
	snap := &models.IndicatorSnapshot{
		Symbol:    symbol,
		CreatedAt: c.now().UTC(),
	}
	if len(bars) == 0 {
		return snap
	}
	p := c.params
	last := bars[len(bars)-1]
	snap.TradingDay = models.TruncateDay(last.Timestamp)
	snap.Close = models.Float(last.Close)

	closes := models.Closes(bars)

	snap.RSI = RSI(closes, p.RSIPeriod)

	if m := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal); m != nil {
		snap.MACD = models.Float(m.Line)
		snap.MACDSignal = models.Float(m.Signal)
		snap.MACDHistogram = models.Float(m.Histogram)
	}

	if b := Bollinger(closes, p.BollingerPeriod, p.BollingerMultiplier); b != nil {
		snap.BollingerPercentB = b.PercentB
	}

	snap.SMA20 = SMA(closes, 20)
	snap.SMA50 = SMA(closes, 50)
	snap.EMA12 = EMA(closes, 12, 12)
	snap.EMA26 = EMA(closes, 26, 52)
	snap.ATR14 = ATR(bars, p.ATRPeriod)
	snap.MATrendGap = TrendGap(snap.SMA20, snap.SMA50)
	snap.Momentum = Momentum(closes, p.MomentumLookback)

	return snap
}
