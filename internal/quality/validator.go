// Package quality audits a batch of signal results before it may be
// published. Detection rules are Gate strategies; the Validator combines
// their verdicts with the batch's real-data ratio.
package quality

import (
	"math"
	"time"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// Recommendation cut-offs on the real-data ratio
const (
	CacheRatio = 0.8
	WarnRatio  = 0.5
)

// Validator runs gates over batches
type Validator struct {
	gates []Gate
	now   func() time.Time
}

// NewValidator creates a Validator. With no gates, DefaultGates is used.
func NewValidator(gates ...Gate) *Validator {
	if len(gates) == 0 {
		gates = DefaultGates()
	}
	return &Validator{gates: gates, now: time.Now}
}

// Gates returns the configured gates
func (v *Validator) Gates() []Gate {
	return v.gates
}

// Audit scores a batch. Each symbol contributes four data points (RSI, MACD,
// %B, composite); a point is real when present, finite and not a placeholder.
func (v *Validator) Audit(batch *models.Batch) models.QualityAuditReport {
	report := models.QualityAuditReport{
		BatchID:   batch.ID,
		Issues:    []models.QualityIssue{},
		AuditedAt: v.now().UTC(),
	}

	if len(batch.Results) == 0 {
		report.Recommendation = models.QualityReject
		report.Issues = append(report.Issues, models.QualityIssue{
			Gate: "empty_batch", Severity: SeverityCritical, Reason: "batch has no symbols",
		})
		return report
	}

	for _, r := range batch.Results {
		total, genuine := dataPoints(r)
		report.TotalDataPoints += total
		report.RealDataPoints += genuine
	}
	report.RealDataRatio = float64(report.RealDataPoints) / float64(report.TotalDataPoints)

	critical, warning := false, false
	for _, g := range v.gates {
		res := g.Check(batch.Results)
		if res.Passed {
			continue
		}
		report.Issues = append(report.Issues, models.QualityIssue{
			Gate: g.Name(), Severity: res.Severity, Reason: res.Reason,
		})
		if res.Severity == SeverityCritical {
			critical = true
		} else {
			warning = true
		}
	}

	switch {
	case critical:
		report.Recommendation = models.QualityReject
	case report.RealDataRatio >= CacheRatio && !warning:
		report.Recommendation = models.QualityCache
	case report.RealDataRatio >= WarnRatio:
		report.Recommendation = models.QualityWarn
	default:
		report.Recommendation = models.QualityReject
	}
	return report
}

func dataPoints(r *models.SignalResult) (total, genuine int) {
	var rsi, macd, pctB *float64
	if r.Snapshot != nil {
		rsi, macd, pctB = r.Snapshot.RSI, r.Snapshot.MACD, r.Snapshot.BollingerPercentB
	}
	composite := compositeValue(r)

	points := []struct {
		v           *float64
		placeholder *float64
	}{
		{rsi, ptr(PlaceholderRSI)},
		{macd, nil},
		{pctB, nil},
		{composite, ptr(PlaceholderComposite)},
	}
	for _, p := range points {
		total++
		if isReal(p.v, p.placeholder) {
			genuine++
		}
	}
	return total, genuine
}

func isReal(v, placeholder *float64) bool {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return false
	}
	return placeholder == nil || *v != *placeholder
}

func ptr(v float64) *float64 { return &v }
