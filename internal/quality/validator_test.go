package quality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

var sectorETFs = []string{"XLK", "XLF", "XLE", "XLV", "XLI", "XLP", "XLY", "XLU", "XLB", "XLRE", "XLC", "SPY"}

func result(symbol string, rsi, macd, pctB, composite float64, signal string) *models.SignalResult {
	return &models.SignalResult{
		Symbol: symbol,
		Status: models.StatusHealthy,
		Snapshot: &models.IndicatorSnapshot{
			Symbol:            symbol,
			RSI:               models.Float(rsi),
			MACD:              models.Float(macd),
			BollingerPercentB: models.Float(pctB),
			CompositeScore:    models.Float(composite),
			Signal:            signal,
		},
		Composite: &models.CompositeScore{Score: composite, Signal: signal},
	}
}

func healthyBatch() *models.Batch {
	signals := []string{models.SignalBuy, models.SignalHold, models.SignalSell, models.SignalStrongBuy}
	b := &models.Batch{ID: "healthy"}
	for i, s := range sectorETFs {
		b.Results = append(b.Results, result(s, 36+float64(i)*2.5, 0.4-float64(i)*0.07, 0.2+float64(i)*0.05,
			-1.1+float64(i)*0.2+0.05, signals[i%len(signals)]))
	}
	return b
}

func TestAudit(t *testing.T) {
	v := NewValidator()

	t.Run("ten of twelve fake readings are rejected with both fake issues", func(t *testing.T) {
		b := &models.Batch{ID: "fake"}
		for i, s := range sectorETFs {
			if i < 10 {
				b.Results = append(b.Results, result(s, 50.0, 0.12, 0.5, 0.0, models.SignalHold))
			} else {
				b.Results = append(b.Results, result(s, 62.4, 0.8, 0.9, 1.1, models.SignalBuy))
			}
		}

		report := v.Audit(b)
		assert.Equal(t, models.QualityReject, report.Recommendation)
		assert.True(t, report.HasIssue(GateFakeRSI))
		assert.True(t, report.HasIssue(GateFakeZScore))
		assert.False(t, report.Publishable())
		assert.Equal(t, 48, report.TotalDataPoints)
		assert.Equal(t, 28, report.RealDataPoints)
		assert.Equal(t, "fake", report.BatchID)
	})

	t.Run("a healthy batch is cached", func(t *testing.T) {
		report := v.Audit(healthyBatch())
		assert.Equal(t, models.QualityCache, report.Recommendation, "%+v", report.Issues)
		assert.Equal(t, 1.0, report.RealDataRatio)
		assert.Empty(t, report.Issues)
	})

	t.Run("missing data lowers the ratio to warn", func(t *testing.T) {
		b := healthyBatch()
		for _, r := range b.Results[:4] {
			r.Snapshot.MACD = nil
			r.Snapshot.BollingerPercentB = nil
		}
		report := v.Audit(b)
		// 40 of 48
		assert.InDelta(t, 40.0/48.0, report.RealDataRatio, 1e-9)
		assert.Equal(t, models.QualityCache, report.Recommendation)

		for _, r := range b.Results[4:8] {
			r.Snapshot = nil
			r.Composite = nil
			r.Status = models.StatusCircuitOpen
		}
		report = v.Audit(b)
		// 24 of 48
		assert.Equal(t, 24, report.RealDataPoints)
		assert.Equal(t, models.QualityWarn, report.Recommendation)
	})

	t.Run("mostly missing data is rejected", func(t *testing.T) {
		b := healthyBatch()
		for _, r := range b.Results[:8] {
			r.Snapshot = nil
			r.Composite = nil
			r.Status = models.StatusInsufficientData
		}
		report := v.Audit(b)
		assert.Equal(t, models.QualityReject, report.Recommendation)
		assert.Empty(t, report.Issues)
	})

	t.Run("signal collapse caps at warn", func(t *testing.T) {
		b := healthyBatch()
		for _, r := range b.Results {
			r.Composite.Signal = models.SignalHold
		}
		report := v.Audit(b)
		assert.Equal(t, models.QualityWarn, report.Recommendation)
		assert.True(t, report.HasIssue(GateSignalCollapse))
	})

	t.Run("extreme bollinger is a warning", func(t *testing.T) {
		b := healthyBatch()
		*b.Results[3].Snapshot.BollingerPercentB = 3.1
		report := v.Audit(b)
		require.True(t, report.HasIssue(GateExtremeBollinger))
		assert.Equal(t, models.QualityWarn, report.Recommendation)
		assert.Contains(t, report.Issues[0].Reason, "XLV=3.10")
	})

	t.Run("an empty batch is rejected", func(t *testing.T) {
		report := v.Audit(&models.Batch{ID: "empty"})
		assert.Equal(t, models.QualityReject, report.Recommendation)
		assert.Len(t, report.Issues, 1)
	})
}

func TestGates(t *testing.T) {
	t.Run("fake rsi needs eighty percent", func(t *testing.T) {
		var results []*models.SignalResult
		for i := 0; i < 10; i++ {
			rsi := 50.0
			if i >= 7 {
				rsi = 55
			}
			results = append(results, result(fmt.Sprintf("S%d", i), rsi, 1, 0.5, 1, models.SignalBuy))
		}
		assert.True(t, FakeRSIGate{Threshold: 0.8}.Check(results).Passed)

		*results[7].Snapshot.RSI = 50.0
		res := FakeRSIGate{Threshold: 0.8}.Check(results)
		assert.False(t, res.Passed)
		assert.Equal(t, SeverityCritical, res.Severity)
		assert.Equal(t, "8 of 10 symbols report RSI exactly 50.0", res.Reason)
	})

	t.Run("fake zscore counts component z-scores", func(t *testing.T) {
		r := &models.SignalResult{
			Symbol: "SPY",
			ZScores: map[string]*models.ZScoreResult{
				models.ComponentMACD:    {ZScore: 0.0004},
				models.ComponentRSI:     {ZScore: -0.0002},
				models.ComponentMATrend: nil,
			},
		}
		res := FakeZScoreGate{Threshold: 0.8}.Check([]*models.SignalResult{r})
		assert.False(t, res.Passed)

		r.ZScores[models.ComponentRSI] = &models.ZScoreResult{ZScore: 0.58}
		assert.True(t, FakeZScoreGate{Threshold: 0.8}.Check([]*models.SignalResult{r}).Passed)
	})

	t.Run("signal collapse ignores tiny batches", func(t *testing.T) {
		results := []*models.SignalResult{result("SPY", 55, 1, 0.5, 0.1, models.SignalHold)}
		assert.True(t, SignalCollapseGate{Threshold: 0.8, MinSymbols: 5}.Check(results).Passed)
	})
}
