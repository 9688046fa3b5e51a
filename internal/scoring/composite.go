// Package scoring combines component z-scores into a single directional
// score and trading signal.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// Weights per composite component
type Weights struct {
	MACD      float64
	RSI       float64
	MATrend   float64
	Bollinger float64
	Momentum  float64
}

// DefaultWeights returns 35/25/20/15/5
func DefaultWeights() Weights {
	return Weights{MACD: 0.35, RSI: 0.25, MATrend: 0.20, Bollinger: 0.15, Momentum: 0.05}
}

// For returns the weight of a named component
func (w Weights) For(component string) float64 {
	switch component {
	case models.ComponentMACD:
		return w.MACD
	case models.ComponentRSI:
		return w.RSI
	case models.ComponentMATrend:
		return w.MATrend
	case models.ComponentBollinger:
		return w.Bollinger
	case models.ComponentMomentum:
		return w.Momentum
	}
	return 0
}

// Sum of all weights
func (w Weights) Sum() float64 {
	return w.MACD + w.RSI + w.MATrend + w.Bollinger + w.Momentum
}

// Thresholds are the normal-regime decision levels
type Thresholds struct {
	Buy    float64
	Sell   float64
	Strong float64
}

// DefaultThresholds returns +0.75 / -0.75 / 1.5
func DefaultThresholds() Thresholds {
	return Thresholds{Buy: 0.75, Sell: -0.75, Strong: 1.5}
}

// Config for the Scorer
type Config struct {
	Weights       Weights
	Thresholds    Thresholds
	Regime        RegimeConfig
	MinComponents int
}

// DefaultConfig returns the standard weights, thresholds and regimes
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		Thresholds:    DefaultThresholds(),
		Regime:        DefaultRegimeConfig(),
		MinComponents: 2,
	}
}

// inverted components read bullish when low
var inverted = map[string]bool{
	models.ComponentRSI:       true,
	models.ComponentBollinger: true,
}

// Scorer produces composite scores
type Scorer struct {
	cfg Config
}

// NewScorer creates a Scorer
func NewScorer(cfg Config) *Scorer {
	if cfg.MinComponents <= 0 {
		cfg.MinComponents = 2
	}
	return &Scorer{cfg: cfg}
}

// Config returns the scorer configuration
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score combines raw component z-scores into a composite. Components absent
// from zscores are dropped and the remaining weights renormalized. atr and
// close select the volatility regime; either may be nil.
func (s *Scorer) Score(zscores map[string]float64, atr, close *float64) (models.CompositeScore, error) {
	names := make([]string, 0, len(zscores))
	for name := range zscores {
		names = append(names, name)
	}
	sort.Strings(names)

	adjusted := make(map[string]float64, len(names))
	var weighted, totalWeight float64
	for _, name := range names {
		z := zscores[name]
		w := s.cfg.Weights.For(name)
		if w <= 0 || math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		if inverted[name] {
			z = -z
		}
		adjusted[name] = z
		weighted += w * z
		totalWeight += w
	}

	if len(adjusted) < s.cfg.MinComponents {
		return models.CompositeScore{Components: adjusted, Available: len(adjusted)},
			fmt.Errorf("%d of %d components available: %w", len(adjusted), s.cfg.MinComponents, models.ErrInsufficientComponents)
	}

	regime := s.cfg.Regime.Regime(atr, close)
	m := s.cfg.Regime.Multiplier(regime)
	result := models.CompositeScore{
		Score:           weighted / totalWeight,
		Components:      adjusted,
		Available:       len(adjusted),
		Regime:          regime,
		BuyThreshold:    s.cfg.Thresholds.Buy * m,
		SellThreshold:   s.cfg.Thresholds.Sell * m,
		StrongThreshold: s.cfg.Thresholds.Strong * m,
	}
	result.Signal = Decide(result.Score, result.BuyThreshold, result.SellThreshold, result.StrongThreshold)
	return result, nil
}

// Decide maps a score onto a signal given regime-scaled thresholds
func Decide(score, buy, sell, strong float64) string {
	switch {
	case score >= strong:
		return models.SignalStrongBuy
	case score >= buy:
		return models.SignalBuy
	case score <= -strong:
		return models.SignalStrongSell
	case score <= sell:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}
