package scoring

import (
	"math"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// RegimeConfig classifies volatility by ATR as a fraction of the close and
// scales decision thresholds per regime.
type RegimeConfig struct {
	LowATRPct        float64
	CrisisATRPct     float64
	LowMultiplier    float64
	NormalMultiplier float64
	CrisisMultiplier float64
}

// DefaultRegimeConfig returns 1% / 3% cut-offs with 0.8 / 1.0 / 1.6 multipliers
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		LowATRPct:        0.01,
		CrisisATRPct:     0.03,
		LowMultiplier:    0.8,
		NormalMultiplier: 1.0,
		CrisisMultiplier: 1.6,
	}
}

// Regime returns the volatility regime for the given ATR and close. Missing
// or unusable inputs fall back to the normal regime.
func (c RegimeConfig) Regime(atr, close *float64) string {
	if atr == nil || close == nil || *close <= 0 || math.IsNaN(*atr) || math.IsInf(*atr, 0) {
		return models.RegimeNormal
	}
	pct := *atr / *close
	switch {
	case pct < c.LowATRPct:
		return models.RegimeLowVolatility
	case pct > c.CrisisATRPct:
		return models.RegimeCrisis
	default:
		return models.RegimeNormal
	}
}

// Multiplier returns the threshold scale for a regime
func (c RegimeConfig) Multiplier(regime string) float64 {
	switch regime {
	case models.RegimeLowVolatility:
		return c.LowMultiplier
	case models.RegimeCrisis:
		return c.CrisisMultiplier
	default:
		return c.NormalMultiplier
	}
}
