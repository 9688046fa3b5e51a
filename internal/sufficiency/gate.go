// Package sufficiency decides whether enough trustworthy history exists to
// standardize an indicator. A SKIP verdict must surface to readers as
// "insufficient data"; callers never substitute a neutral-looking value.
package sufficiency

import (
	"fmt"
	"math"
	"time"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// Confidence weights and tier cut-offs
const (
	weightCoverage = 0.60
	weightRecency  = 0.25
	weightValidity = 0.15

	highConfidence   = 0.80
	mediumConfidence = 0.65
	lowConfidence    = 0.50
)

// WindowMeta is the metadata the gate needs about a historical window
type WindowMeta struct {
	DataPoints   int
	ValidityRate float64
	LastUpdated  time.Time
}

// MetaFromWindow extracts gate inputs from a historical window
func MetaFromWindow(w models.HistoricalWindow) WindowMeta {
	return WindowMeta{
		DataPoints:   w.Valid,
		ValidityRate: w.ValidityRate(),
		LastUpdated:  w.LastUpdated,
	}
}

// Config tunes the gate
type Config struct {
	RequiredDataPoints int
	RecencyHalfLife    time.Duration
}

// Gate evaluates data sufficiency
type Gate struct {
	cfg Config
	now func() time.Time
}

// NewGate creates a Gate. now may be nil to use the wall clock.
func NewGate(cfg Config, now func() time.Time) *Gate {
	if cfg.RequiredDataPoints <= 0 {
		cfg.RequiredDataPoints = 180
	}
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 5 * 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{cfg: cfg, now: now}
}

// Evaluate produces a fresh SufficiencyReport for one symbol/indicator pair
func (g *Gate) Evaluate(symbol, indicator string, meta WindowMeta) models.SufficiencyReport {
	now := g.now()
	report := models.SufficiencyReport{
		Symbol:             symbol,
		Indicator:          indicator,
		DataPoints:         meta.DataPoints,
		RequiredDataPoints: g.cfg.RequiredDataPoints,
		EvaluatedAt:        now,
	}

	coverage := math.Min(1, float64(meta.DataPoints)/float64(g.cfg.RequiredDataPoints))
	validity := clamp01(meta.ValidityRate)
	recency := g.recency(now, meta.LastUpdated)

	confidence := weightCoverage*coverage + weightRecency*recency + weightValidity*validity
	report.Confidence = clamp01(confidence)

	switch {
	case meta.DataPoints*2 < g.cfg.RequiredDataPoints:
		report.Reliability = models.ReliabilityUnreliable
		report.Recommendation = models.RecommendSkip
		report.Reason = fmt.Sprintf("%d of %d required data points", meta.DataPoints, g.cfg.RequiredDataPoints)
	case validity == 0:
		report.Reliability = models.ReliabilityUnreliable
		report.Recommendation = models.RecommendSkip
		report.Reason = "no valid values in window"
	case report.Confidence >= highConfidence:
		report.Reliability = models.ReliabilityHigh
		report.Recommendation = models.RecommendProceed
	case report.Confidence >= mediumConfidence:
		report.Reliability = models.ReliabilityMedium
		report.Recommendation = models.RecommendDegrade
		report.Reason = fmt.Sprintf("reduced confidence %.2f", report.Confidence)
	case report.Confidence >= lowConfidence:
		report.Reliability = models.ReliabilityLow
		report.Recommendation = models.RecommendDegrade
		report.Reason = fmt.Sprintf("reduced confidence %.2f", report.Confidence)
	default:
		report.Reliability = models.ReliabilityUnreliable
		report.Recommendation = models.RecommendSkip
		report.Reason = fmt.Sprintf("confidence %.2f below %.2f", report.Confidence, lowConfidence)
	}
	return report
}

// recency decays by half every RecencyHalfLife since the last update
func (g *Gate) recency(now, lastUpdated time.Time) float64 {
	if lastUpdated.IsZero() {
		return 0
	}
	age := now.Sub(lastUpdated)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(g.cfg.RecencyHalfLife))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
