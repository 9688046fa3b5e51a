package models

import (
	"math"
	"time"
)

// Indicator name constants used as window keys and column selectors
const (
	IndicatorRSI14      = "RSI_14"
	IndicatorMACD       = "MACD"
	IndicatorMACDSignal = "MACD_SIGNAL"
	IndicatorMACDHist   = "MACD_HIST"
	IndicatorBBPercentB = "BB_PERCENT_B"
	IndicatorSMA20      = "SMA_20"
	IndicatorSMA50      = "SMA_50"
	IndicatorEMA12      = "EMA_12"
	IndicatorEMA26      = "EMA_26"
	IndicatorATR14      = "ATR_14"
	IndicatorMATrend    = "MA_TREND_GAP"
	IndicatorMomentum   = "MOMENTUM_5"
)

// TradingDayLayout is the canonical date format for trading days
const TradingDayLayout = "2006-01-02"

// IndicatorSnapshot holds the raw indicator values for one symbol on one
// trading day. A nil value means the indicator could not be computed; it is
// never replaced by a neutral-looking default.
type IndicatorSnapshot struct {
	ID                int       `json:"id"`
	Symbol            string    `json:"symbol"`
	TradingDay        time.Time `json:"trading_day"`
	Close             *float64  `json:"close,omitempty"`
	RSI               *float64  `json:"rsi,omitempty"`
	MACD              *float64  `json:"macd,omitempty"`
	MACDSignal        *float64  `json:"macd_signal,omitempty"`
	MACDHistogram     *float64  `json:"macd_histogram,omitempty"`
	BollingerPercentB *float64  `json:"bollinger_percent_b,omitempty"`
	SMA20             *float64  `json:"sma_20,omitempty"`
	SMA50             *float64  `json:"sma_50,omitempty"`
	EMA12             *float64  `json:"ema_12,omitempty"`
	EMA26             *float64  `json:"ema_26,omitempty"`
	ATR14             *float64  `json:"atr_14,omitempty"`
	MATrendGap        *float64  `json:"ma_trend_gap,omitempty"`
	Momentum          *float64  `json:"momentum,omitempty"`
	CompositeScore    *float64  `json:"composite_score,omitempty"`
	Signal            string    `json:"signal,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Value returns the named indicator value, or nil when it is absent or unknown
func (s *IndicatorSnapshot) Value(indicator string) *float64 {
	switch indicator {
	case IndicatorRSI14:
		return s.RSI
	case IndicatorMACD:
		return s.MACD
	case IndicatorMACDSignal:
		return s.MACDSignal
	case IndicatorMACDHist:
		return s.MACDHistogram
	case IndicatorBBPercentB:
		return s.BollingerPercentB
	case IndicatorSMA20:
		return s.SMA20
	case IndicatorSMA50:
		return s.SMA50
	case IndicatorEMA12:
		return s.EMA12
	case IndicatorEMA26:
		return s.EMA26
	case IndicatorATR14:
		return s.ATR14
	case IndicatorMATrend:
		return s.MATrendGap
	case IndicatorMomentum:
		return s.Momentum
	}
	return nil
}

// Clone returns a deep copy of s that shares no values with it
func (s *IndicatorSnapshot) Clone() *IndicatorSnapshot {
	cp := *s
	for _, f := range []**float64{
		&cp.Close, &cp.RSI, &cp.MACD, &cp.MACDSignal, &cp.MACDHistogram,
		&cp.BollingerPercentB, &cp.SMA20, &cp.SMA50, &cp.EMA12, &cp.EMA26,
		&cp.ATR14, &cp.MATrendGap, &cp.Momentum, &cp.CompositeScore,
	} {
		if *f != nil {
			v := **f
			*f = &v
		}
	}
	return &cp
}

// Key returns the deduplication key (symbol + trading day)
func (s *IndicatorSnapshot) Key() string {
	return SnapshotKey(s.Symbol, s.TradingDay)
}

// SnapshotKey builds the deduplication key for a symbol and day
func SnapshotKey(symbol string, day time.Time) string {
	return symbol + ":" + day.Format(TradingDayLayout)
}

// TruncateDay drops the clock portion of t in its own location and returns
// the date at UTC midnight, which is how trading days are stored.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Float returns a pointer to v, or nil when v is not finite
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// HistoricalWindow is an ordered (oldest first) view of past values for one
// symbol/indicator pair, derived from stored snapshots.
type HistoricalWindow struct {
	Symbol      string    `json:"symbol"`
	Indicator   string    `json:"indicator"`
	Values      []float64 `json:"values"`
	Total       int       `json:"total"`
	Valid       int       `json:"valid"`
	LastUpdated time.Time `json:"last_updated"`
}

// ValidityRate is the share of rows in the window that carried a value
func (w HistoricalWindow) ValidityRate() float64 {
	if w.Total == 0 {
		return 0
	}
	return float64(w.Valid) / float64(w.Total)
}
