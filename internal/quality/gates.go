package quality

import (
	"fmt"
	"math"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// Gate severities
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Gate names
const (
	GateFakeRSI          = "fake_rsi"
	GateFakeZScore       = "fake_zscore"
	GateSignalCollapse   = "signal_collapse"
	GateExtremeBollinger = "extreme_bollinger"
)

// Placeholder values that look real but are what a broken pipeline emits
const (
	PlaceholderRSI       = 50.0
	PlaceholderComposite = 0.0
)

// GateResult is one gate's verdict on a batch
type GateResult struct {
	Passed   bool
	Severity string
	Reason   string
}

// Gate is a single detection rule run over a batch
type Gate interface {
	Name() string
	Check(results []*models.SignalResult) GateResult
}

// FakeRSIGate flags batches where most symbols report RSI exactly 50.0
type FakeRSIGate struct {
	Threshold float64
}

func (g FakeRSIGate) Name() string { return GateFakeRSI }

func (g FakeRSIGate) Check(results []*models.SignalResult) GateResult {
	pinned := 0
	for _, r := range results {
		if r.Snapshot != nil && r.Snapshot.RSI != nil && *r.Snapshot.RSI == PlaceholderRSI {
			pinned++
		}
	}
	return ratioResult(pinned, len(results), g.Threshold, SeverityCritical,
		"%d of %d symbols report RSI exactly 50.0")
}

// FakeZScoreGate flags batches where most z-scores sit on zero
type FakeZScoreGate struct {
	Threshold float64
	Tolerance float64
}

func (g FakeZScoreGate) Name() string { return GateFakeZScore }

func (g FakeZScoreGate) Check(results []*models.SignalResult) GateResult {
	tol := g.Tolerance
	if tol <= 0 {
		tol = 0.001
	}
	total, zeroish := 0, 0
	count := func(z float64) {
		total++
		if math.Abs(z) <= tol {
			zeroish++
		}
	}
	for _, r := range results {
		for _, z := range r.ZScores {
			if z != nil {
				count(z.ZScore)
			}
		}
		if v := compositeValue(r); v != nil {
			count(*v)
		}
	}
	return ratioResult(zeroish, total, g.Threshold, SeverityCritical,
		"%d of %d z-scores within tolerance of zero")
}

// SignalCollapseGate flags batches where almost everything says HOLD.
// Batches smaller than MinSymbols are not judged.
type SignalCollapseGate struct {
	Threshold  float64
	MinSymbols int
}

func (g SignalCollapseGate) Name() string { return GateSignalCollapse }

func (g SignalCollapseGate) Check(results []*models.SignalResult) GateResult {
	total, holds := 0, 0
	for _, r := range results {
		s := signalOf(r)
		if s == "" {
			continue
		}
		total++
		if s == models.SignalHold {
			holds++
		}
	}
	if total < g.MinSymbols {
		return GateResult{Passed: true, Severity: SeverityWarning}
	}
	return ratioResult(holds, total, g.Threshold, SeverityWarning,
		"%d of %d signals are HOLD")
}

// ExtremeBollingerGate flags any %B outside [Min, Max]
type ExtremeBollingerGate struct {
	Min float64
	Max float64
}

func (g ExtremeBollingerGate) Name() string { return GateExtremeBollinger }

func (g ExtremeBollingerGate) Check(results []*models.SignalResult) GateResult {
	var extreme []string
	for _, r := range results {
		if r.Snapshot == nil || r.Snapshot.BollingerPercentB == nil {
			continue
		}
		if b := *r.Snapshot.BollingerPercentB; b < g.Min || b > g.Max {
			extreme = append(extreme, fmt.Sprintf("%s=%.2f", r.Symbol, b))
		}
	}
	if len(extreme) == 0 {
		return GateResult{Passed: true, Severity: SeverityWarning}
	}
	return GateResult{
		Severity: SeverityWarning,
		Reason:   fmt.Sprintf("%%B outside [%.1f, %.1f]: %v", g.Min, g.Max, extreme),
	}
}

// DefaultGates returns the built-in gates with an 80% trigger ratio
func DefaultGates() []Gate {
	return []Gate{
		FakeRSIGate{Threshold: 0.8},
		FakeZScoreGate{Threshold: 0.8, Tolerance: 0.001},
		SignalCollapseGate{Threshold: 0.8, MinSymbols: 5},
		ExtremeBollingerGate{Min: -0.5, Max: 2.5},
	}
}

func ratioResult(hits, total int, threshold float64, severity, format string) GateResult {
	if total == 0 || float64(hits) < threshold*float64(total) {
		return GateResult{Passed: true, Severity: severity}
	}
	return GateResult{Severity: severity, Reason: fmt.Sprintf(format, hits, total)}
}

func compositeValue(r *models.SignalResult) *float64 {
	if r.Composite != nil {
		v := r.Composite.Score
		return &v
	}
	if r.Snapshot != nil {
		return r.Snapshot.CompositeScore
	}
	return nil
}

func signalOf(r *models.SignalResult) string {
	if r.Composite != nil {
		return r.Composite.Signal
	}
	if r.Snapshot != nil {
		return r.Snapshot.Signal
	}
	return ""
}
