package pipeline

import (
	"context"
	"time"

	"github.com/trogers1052/stock-signal-engine/internal/models"
	"golang.org/x/time/rate"
)

// BarSource supplies daily bars, oldest first
type BarSource interface {
	Bars(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error)
}

// RateLimitedSource throttles calls to an underlying BarSource
type RateLimitedSource struct {
	src     BarSource
	limiter *rate.Limiter
}

// NewRateLimitedSource allows rps calls per second with the given burst.
// rps <= 0 disables throttling.
func NewRateLimitedSource(src BarSource, rps float64, burst int) *RateLimitedSource {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedSource{src: src, limiter: rate.NewLimiter(limit, burst)}
}

// Bars waits for a token, then delegates
func (s *RateLimitedSource) Bars(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.src.Bars(ctx, symbol, limit)
}

// StaticSource serves bars from memory
type StaticSource struct {
	bars map[string][]models.PriceBar
}

// NewStaticSource creates a StaticSource from per-symbol bar series
func NewStaticSource(bars map[string][]models.PriceBar) *StaticSource {
	return &StaticSource{bars: bars}
}

// Bars returns up to limit of the most recent bars
func (s *StaticSource) Bars(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars := s.bars[symbol]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]models.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

// lastBarDay is the trading day of the newest bar
func lastBarDay(bars []models.PriceBar) time.Time {
	return models.TruncateDay(bars[len(bars)-1].Timestamp)
}
