package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// Latest returns what readers should see for symbol: the published result,
// or an explicit no-data, insufficient-data, circuit-open or stale status.
func (p *Pipeline) Latest(ctx context.Context, symbol string) (models.SignalView, error) {
	view := models.SignalView{Symbol: symbol, AsOf: p.now().UTC()}

	batch, err := p.deps.Cache.Get(ctx)
	if errors.Is(err, models.ErrNotFound) {
		view.Status, view.Reason = models.StatusNoData, "no published batch"
		return view, nil
	}
	if err != nil {
		return view, fmt.Errorf("failed to read published batch: %w", err)
	}

	res := batch.Result(symbol)
	if res == nil {
		view.Status, view.Reason = models.StatusNoData, "symbol not in published batch"
		view.BatchID = batch.ID
		return view, nil
	}

	view.Status = res.Status
	view.Reason = res.Reason
	view.Snapshot = res.Snapshot
	view.Composite = res.Composite
	view.Reliability = res.Reliability
	view.BatchID = batch.ID
	view.AsOf = batch.CreatedAt
	if res.Composite != nil {
		view.Signal = res.Composite.Signal
	}
	if batch.Audit != nil && batch.Audit.Recommendation == models.QualityWarn {
		view.QualityFlag = models.QualityWarn
	}

	if res.Status != models.StatusHealthy && res.Status != models.StatusDegraded {
		return view, nil
	}

	p.mu.RLock()
	last := p.lastBatch
	p.mu.RUnlock()
	switch {
	case last != nil && last.ID != batch.ID:
		view.Status = models.StatusStale
		view.Reason = fmt.Sprintf("latest batch %s was rejected, serving last good batch %s", last.ID, batch.ID)
	case p.cfg.StaleAfter > 0 && p.now().Sub(batch.CreatedAt) > p.cfg.StaleAfter:
		view.Status = models.StatusStale
		view.Reason = fmt.Sprintf("last good batch is older than %s", p.cfg.StaleAfter)
	}
	return view, nil
}

// LatestAudit returns the quality report for the most recent batch
func (p *Pipeline) LatestAudit(ctx context.Context) (*models.QualityAuditReport, error) {
	p.mu.RLock()
	audit := p.lastAudit
	p.mu.RUnlock()
	if audit != nil {
		return audit, nil
	}
	if p.deps.Audits != nil {
		return p.deps.Audits.LatestQualityReport(ctx)
	}
	return nil, models.ErrNotFound
}
