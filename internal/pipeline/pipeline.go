// Package pipeline turns price bars into an audited batch of signals and
// serves the latest published batch to readers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/trogers1052/stock-signal-engine/internal/breaker"
	"github.com/trogers1052/stock-signal-engine/internal/dedup"
	"github.com/trogers1052/stock-signal-engine/internal/indicators"
	"github.com/trogers1052/stock-signal-engine/internal/markethours"
	"github.com/trogers1052/stock-signal-engine/internal/models"
	"github.com/trogers1052/stock-signal-engine/internal/publish"
	"github.com/trogers1052/stock-signal-engine/internal/quality"
	"github.com/trogers1052/stock-signal-engine/internal/scoring"
	"github.com/trogers1052/stock-signal-engine/internal/stats"
	"github.com/trogers1052/stock-signal-engine/internal/sufficiency"
)

// SnapshotReader reads stored snapshots
type SnapshotReader interface {
	History(ctx context.Context, symbol, indicator string, before time.Time, limit int) (models.HistoricalWindow, error)
	Latest(ctx context.Context, symbol string) (*models.IndicatorSnapshot, error)
}

// SnapshotStore is the deduplicating writer (dedup.Store)
type SnapshotStore interface {
	ShouldSkipStorage(ctx context.Context, symbol string) (bool, error)
	Store(ctx context.Context, snap *models.IndicatorSnapshot) (dedup.StoreResult, error)
}

// AuditStore persists quality reports
type AuditStore interface {
	CreateQualityReport(ctx context.Context, r *models.QualityAuditReport) error
	LatestQualityReport(ctx context.Context) (*models.QualityAuditReport, error)
}

// EventPublisher announces audited batches
type EventPublisher interface {
	PublishBatchEvent(ctx context.Context, event models.BatchEvent) error
}

// Metrics is the subset of the recorder the pipeline uses
type Metrics interface {
	RecordSymbol(status string)
	RecordStore(result string)
	RecordBatch(recommendation string, ratio float64, d time.Duration)
	RecordError(kind string)
}

// Config tunes the pipeline
type Config struct {
	Workers       int
	BarLimit      int
	MinDataPoints int
	MaxDataPoints int
	// RequireCurrentBar rejects symbols whose newest bar is not today's
	RequireCurrentBar bool
	// StaleAfter marks a published batch stale once it is this old
	StaleAfter time.Duration
}

// Deps are the pipeline's collaborators. Audits, Events and Metrics may be nil.
type Deps struct {
	Bars       BarSource
	Breakers   *breaker.Registry
	Calculator *indicators.Calculator
	Gate       *sufficiency.Gate
	Scorer     *scoring.Scorer
	Snapshots  SnapshotReader
	Store      SnapshotStore
	Validator  *quality.Validator
	Cache      publish.BatchCache
	Audits     AuditStore
	Events     EventPublisher
	Metrics    Metrics
}

// Pipeline orchestrates one recomputation run and serves reads
type Pipeline struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	mu        sync.RWMutex
	lastBatch *models.Batch
	lastAudit *models.QualityAuditReport
}

// New creates a Pipeline
func New(deps Deps, cfg Config, log zerolog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BarLimit <= 0 {
		cfg.BarLimit = 300
	}
	if cfg.MinDataPoints <= 0 {
		cfg.MinDataPoints = stats.DefaultMinObservations
	}
	if cfg.MaxDataPoints <= 0 {
		cfg.MaxDataPoints = 252
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  log.With().Str("component", "pipeline").Logger(),
		now:  time.Now,
	}
}

// RunBatch recomputes signals for symbols and audits the result. A batch the
// validator rejects is returned together with ErrQualityBatchRejected and is
// not published; readers keep the last good batch.
func (p *Pipeline) RunBatch(ctx context.Context, symbols []string) (*models.Batch, error) {
	start := p.now()
	batch := &models.Batch{
		ID:         uuid.NewString(),
		TradingDay: markethours.TradingDay(start),
		Results:    make([]*models.SignalResult, len(symbols)),
		CreatedAt:  start.UTC(),
	}
	log := p.log.With().Str("batch_id", batch.ID).Logger()
	log.Info().Int("symbols", len(symbols)).Str("trading_day", batch.TradingDay.Format(models.TradingDayLayout)).
		Msg("Starting batch")

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				batch.Results[i] = p.processSymbol(ctx, symbols[i], batch.TradingDay)
			}
		}()
	}
	for i := range symbols {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	report := p.deps.Validator.Audit(batch)
	batch.Audit = &report

	if p.deps.Audits != nil {
		if err := p.deps.Audits.CreateQualityReport(ctx, &report); err != nil {
			log.Error().Err(err).Msg("Failed to persist quality report")
			p.deps.Metrics.RecordError("audit_persist")
		}
	}

	p.mu.Lock()
	p.lastBatch = batch
	p.lastAudit = &report
	p.mu.Unlock()

	p.deps.Metrics.RecordBatch(report.Recommendation, report.RealDataRatio, p.now().Sub(start))

	var result error
	eventType := models.EventBatchPublished
	if report.Publishable() {
		if err := p.deps.Cache.Put(ctx, batch); err != nil {
			log.Error().Err(err).Msg("Failed to publish batch")
			p.deps.Metrics.RecordError("publish")
			result = fmt.Errorf("failed to publish batch %s: %w", batch.ID, err)
		}
		log.Info().Str("recommendation", report.Recommendation).Float64("real_data_ratio", report.RealDataRatio).
			Msg("Batch published")
	} else {
		eventType = models.EventBatchRejected
		log.Warn().Float64("real_data_ratio", report.RealDataRatio).Interface("issues", report.Issues).
			Msg("Batch rejected by quality audit, keeping last good batch")
		result = fmt.Errorf("batch %s: %w", batch.ID, models.ErrQualityBatchRejected)
	}

	if p.deps.Events != nil {
		if err := p.deps.Events.PublishBatchEvent(ctx, batchEvent(eventType, batch)); err != nil {
			log.Error().Err(err).Msg("Failed to publish batch event")
			p.deps.Metrics.RecordError("event_publish")
		}
	}
	return batch, result
}

// processSymbol never returns nil; every failure is a status on the result
func (p *Pipeline) processSymbol(ctx context.Context, symbol string, day time.Time) (res *models.SignalResult) {
	res = &models.SignalResult{Symbol: symbol, Reliability: models.ReliabilityUnreliable}
	log := p.log.With().Str("symbol", symbol).Logger()
	defer func() { p.deps.Metrics.RecordSymbol(res.Status) }()

	var bars []models.PriceBar
	err := p.deps.Breakers.Execute(ctx, "price-bars:"+symbol, func(ctx context.Context) error {
		var err error
		bars, err = p.deps.Bars.Bars(ctx, symbol, p.cfg.BarLimit)
		return err
	})
	switch {
	case errors.Is(err, models.ErrCircuitOpen):
		res.Status, res.Reason = models.StatusCircuitOpen, "price bar source circuit open"
		return res
	case err != nil:
		log.Error().Err(err).Msg("Failed to load price bars")
		p.deps.Metrics.RecordError("price_bars")
		res.Status, res.Reason = models.StatusNoData, fmt.Sprintf("failed to load price bars: %v", err)
		return res
	case len(bars) == 0:
		res.Status, res.Reason = models.StatusNoData, "no price bars"
		return res
	}

	if p.cfg.RequireCurrentBar && !lastBarDay(bars).Equal(day) {
		res.Status = models.StatusStale
		res.Reason = fmt.Sprintf("latest bar is %s: %v", lastBarDay(bars).Format(models.TradingDayLayout), models.ErrBarNotAvailable)
		return res
	}

	var snap *models.IndicatorSnapshot
	err = p.deps.Breakers.Execute(ctx, "indicator-calc:"+symbol, func(context.Context) error {
		var err error
		snap, err = p.compute(symbol, bars)
		return err
	})
	if errors.Is(err, models.ErrCircuitOpen) {
		res.Status, res.Reason = models.StatusCircuitOpen, "indicator calculation circuit open"
		return res
	}
	if err != nil {
		log.Error().Err(err).Msg("Indicator calculation failed")
		p.deps.Metrics.RecordError("indicator_calc")
		res.Status, res.Reason = models.StatusNoData, err.Error()
		return res
	}
	res.Snapshot = snap

	zscores, degraded, err := p.standardize(ctx, res)
	if errors.Is(err, models.ErrCorruptedResult) {
		log.Error().Err(err).Msg("Corrupted statistic, excluding symbol")
		p.deps.Metrics.RecordError("corrupted")
		res.Status, res.Reason = models.StatusCorrupted, err.Error()
		res.Snapshot, res.ZScores = nil, nil
		return res
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read history")
		p.deps.Metrics.RecordError("history")
		res.Status, res.Reason = models.StatusNoData, err.Error()
		return res
	}

	composite, err := p.deps.Scorer.Score(zscores, snap.ATR14, snap.Close)
	switch {
	case errors.Is(err, models.ErrInsufficientComponents):
		res.Status, res.Reason = models.StatusInsufficientData, err.Error()
	case math.IsNaN(composite.Score) || math.IsInf(composite.Score, 0):
		res.Status, res.Reason = models.StatusCorrupted, fmt.Sprintf("composite score: %v", models.ErrCorruptedResult)
		res.Snapshot, res.ZScores = nil, nil
		return res
	default:
		res.Composite = &composite
		snap.CompositeScore = models.Float(composite.Score)
		snap.Signal = composite.Signal
		res.Status = models.StatusHealthy
		if degraded {
			res.Status = models.StatusDegraded
		}
		res.Reliability = weakestReliability(res.ZScores)
	}

	// a bar dated today is partial until the close; it may be served but
	// never committed, or the closed bar would find the day already taken
	if !markethours.SessionClosed(snap.TradingDay, p.now()) {
		log.Debug().Msg("Session still open, snapshot not stored")
		p.deps.Metrics.RecordStore("intraday")
		return res
	}

	// raw indicators are stored even without a composite so history accrues
	p.store(ctx, log, res)
	return res
}

// compute runs the calculator, converting a panic into a breaker failure
func (p *Pipeline) compute(symbol string, bars []models.PriceBar) (snap *models.IndicatorSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indicator calculation panicked: %v", r)
		}
	}()
	snap = p.deps.Calculator.Compute(symbol, bars)
	if snap.Close == nil {
		return nil, fmt.Errorf("latest close for %s is not finite", symbol)
	}
	return snap, nil
}

// standardize gates and z-scores each composite component present in the
// snapshot. Components the gate skips are left out; nothing is substituted.
func (p *Pipeline) standardize(ctx context.Context, res *models.SignalResult) (map[string]float64, bool, error) {
	snap := res.Snapshot
	res.ZScores = make(map[string]*models.ZScoreResult)
	res.Sufficiency = make(map[string]*models.SufficiencyReport)
	zscores := make(map[string]float64)
	degraded := false

	components := make([]string, 0, len(models.ComponentIndicators))
	for c := range models.ComponentIndicators {
		components = append(components, c)
	}
	sort.Strings(components)

	for _, component := range components {
		indicator := models.ComponentIndicators[component]
		value := snap.Value(indicator)
		if value == nil {
			continue
		}
		window, err := p.deps.Snapshots.History(ctx, snap.Symbol, indicator, snap.TradingDay, p.cfg.MaxDataPoints)
		if err != nil {
			return nil, false, fmt.Errorf("history for %s %s: %w", snap.Symbol, indicator, err)
		}
		report := p.deps.Gate.Evaluate(snap.Symbol, indicator, sufficiency.MetaFromWindow(window))
		res.Sufficiency[component] = &report
		if report.Recommendation == models.RecommendSkip {
			continue
		}
		if report.Recommendation == models.RecommendDegrade {
			degraded = true
		}

		z, err := stats.Evaluate(*value, window.Values, p.cfg.MinDataPoints)
		if err != nil {
			return nil, false, fmt.Errorf("%s %s: %w", snap.Symbol, indicator, err)
		}
		if z.Reliability == models.ReliabilityUnreliable {
			// zero dispersion: the z-score would read as a neutral 0.0
			continue
		}
		res.ZScores[component] = &z
		zscores[component] = z.ZScore
	}
	return zscores, degraded, nil
}

func (p *Pipeline) store(ctx context.Context, log zerolog.Logger, res *models.SignalResult) {
	skip, err := p.deps.Store.ShouldSkipStorage(ctx, res.Symbol)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check existing snapshot")
	}
	if skip {
		p.deps.Metrics.RecordStore(string(dedup.AlreadyExists))
		return
	}

	result, err := p.deps.Store.Store(ctx, res.Snapshot)
	switch {
	case errors.Is(err, models.ErrOutsideWriteWindow):
		log.Info().Err(err).Msg("Snapshot not stored")
		p.deps.Metrics.RecordStore("outside_window")
	case err != nil:
		log.Error().Err(err).Msg("Failed to store snapshot")
		p.deps.Metrics.RecordError("store")
	default:
		res.Stored = result == dedup.Stored
		p.deps.Metrics.RecordStore(string(result))
	}
}

var reliabilityRank = map[string]int{
	models.ReliabilityUnreliable: 0,
	models.ReliabilityLow:        1,
	models.ReliabilityMedium:     2,
	models.ReliabilityHigh:       3,
}

func weakestReliability(z map[string]*models.ZScoreResult) string {
	weakest := models.ReliabilityHigh
	for _, r := range z {
		if reliabilityRank[r.Reliability] < reliabilityRank[weakest] {
			weakest = r.Reliability
		}
	}
	if len(z) == 0 {
		return models.ReliabilityUnreliable
	}
	return weakest
}

func batchEvent(eventType string, b *models.Batch) models.BatchEvent {
	event := models.BatchEvent{
		EventType:      eventType,
		BatchID:        b.ID,
		TradingDay:     b.TradingDay.Format(models.TradingDayLayout),
		Recommendation: b.Audit.Recommendation,
		RealDataRatio:  b.Audit.RealDataRatio,
		Issues:         b.Audit.Issues,
		Timestamp:      b.CreatedAt,
	}
	for _, r := range b.Results {
		s := models.SignalSummary{Symbol: r.Symbol, Status: r.Status, Reliability: r.Reliability}
		if r.Composite != nil {
			s.Signal = r.Composite.Signal
			s.CompositeScore = models.Float(r.Composite.Score)
		}
		event.Signals = append(event.Signals, s)
	}
	return event
}

type nopMetrics struct{}

func (nopMetrics) RecordSymbol(string)                        {}
func (nopMetrics) RecordStore(string)                         {}
func (nopMetrics) RecordBatch(string, float64, time.Duration) {}
func (nopMetrics) RecordError(string)                         {}
