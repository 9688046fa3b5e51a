package models

import "time"

// Reliability tiers shared by z-score results and sufficiency reports
const (
	ReliabilityHigh       = "high"
	ReliabilityMedium     = "medium"
	ReliabilityLow        = "low"
	ReliabilityUnreliable = "unreliable"
)

// Sufficiency recommendations
const (
	RecommendProceed = "PROCEED"
	RecommendDegrade = "DEGRADE"
	RecommendSkip    = "SKIP"
)

// Trading signals
const (
	SignalStrongSell = "STRONG_SELL"
	SignalSell       = "SELL"
	SignalHold       = "HOLD"
	SignalBuy        = "BUY"
	SignalStrongBuy  = "STRONG_BUY"
)

// Volatility regimes
const (
	RegimeLowVolatility = "low_volatility"
	RegimeNormal        = "normal"
	RegimeCrisis        = "crisis"
)

// Result statuses visible to readers
const (
	StatusHealthy          = "HEALTHY"
	StatusDegraded         = "DEGRADED"
	StatusInsufficientData = "INSUFFICIENT_DATA"
	StatusCircuitOpen      = "CIRCUIT_OPEN"
	StatusCorrupted        = "CORRUPTED"
	StatusStale            = "STALE"
	StatusNoData           = "NO_DATA"
)

// Composite component names
const (
	ComponentMACD      = "macd"
	ComponentRSI       = "rsi"
	ComponentMATrend   = "ma_trend"
	ComponentBollinger = "bollinger"
	ComponentMomentum  = "momentum"
)

// ComponentIndicators maps each composite component to the snapshot
// indicator its z-score is computed from.
var ComponentIndicators = map[string]string{
	ComponentMACD:      IndicatorMACD,
	ComponentRSI:       IndicatorRSI14,
	ComponentMATrend:   IndicatorMATrend,
	ComponentBollinger: IndicatorBBPercentB,
	ComponentMomentum:  IndicatorMomentum,
}

// ZScoreResult is a standardized reading of one value against its window
type ZScoreResult struct {
	Value       float64 `json:"value"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	ZScore      float64 `json:"z_score"`
	Count       int     `json:"count"`
	Reliability string  `json:"reliability"`
}

// SufficiencyReport is the data sufficiency gate's verdict for one
// symbol/indicator pair. It is built fresh on every evaluation.
type SufficiencyReport struct {
	Symbol             string    `json:"symbol"`
	Indicator          string    `json:"indicator"`
	DataPoints         int       `json:"data_points"`
	RequiredDataPoints int       `json:"required_data_points"`
	Confidence         float64   `json:"confidence"`
	Reliability        string    `json:"reliability"`
	Recommendation     string    `json:"recommendation"`
	Reason             string    `json:"reason,omitempty"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

// CompositeScore is the weighted, polarity-adjusted sum of component
// z-scores. A positive score is bullish.
type CompositeScore struct {
	Score           float64            `json:"score"`
	Signal          string             `json:"signal"`
	Components      map[string]float64 `json:"components"`
	Available       int                `json:"available"`
	Regime          string             `json:"regime"`
	BuyThreshold    float64            `json:"buy_threshold"`
	SellThreshold   float64            `json:"sell_threshold"`
	StrongThreshold float64            `json:"strong_threshold"`
}

// SignalResult is one symbol's outcome within a batch
type SignalResult struct {
	Symbol      string                        `json:"symbol"`
	Status      string                        `json:"status"`
	Reason      string                        `json:"reason,omitempty"`
	Snapshot    *IndicatorSnapshot            `json:"snapshot,omitempty"`
	ZScores     map[string]*ZScoreResult      `json:"z_scores,omitempty"`
	Sufficiency map[string]*SufficiencyReport `json:"sufficiency,omitempty"`
	Composite   *CompositeScore               `json:"composite,omitempty"`
	Reliability string                        `json:"reliability"`
	Stored      bool                          `json:"stored"`
}

// Batch is the set of results produced by one recomputation run
type Batch struct {
	ID         string              `json:"id"`
	TradingDay time.Time           `json:"trading_day"`
	Results    []*SignalResult     `json:"results"`
	Audit      *QualityAuditReport `json:"audit,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Result looks up a symbol's result in the batch
func (b *Batch) Result(symbol string) *SignalResult {
	for _, r := range b.Results {
		if r.Symbol == symbol {
			return r
		}
	}
	return nil
}

// SignalView is what readers see for a symbol
type SignalView struct {
	Symbol      string             `json:"symbol"`
	Status      string             `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	Snapshot    *IndicatorSnapshot `json:"snapshot,omitempty"`
	Composite   *CompositeScore    `json:"composite,omitempty"`
	Signal      string             `json:"signal,omitempty"`
	Reliability string             `json:"reliability,omitempty"`
	BatchID     string             `json:"batch_id,omitempty"`
	QualityFlag string             `json:"quality_flag,omitempty"`
	AsOf        time.Time          `json:"as_of"`
}
