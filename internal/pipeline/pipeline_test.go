package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-signal-engine/internal/breaker"
	"github.com/trogers1052/stock-signal-engine/internal/dedup"
	"github.com/trogers1052/stock-signal-engine/internal/indicators"
	"github.com/trogers1052/stock-signal-engine/internal/markethours"
	"github.com/trogers1052/stock-signal-engine/internal/models"
	"github.com/trogers1052/stock-signal-engine/internal/publish"
	"github.com/trogers1052/stock-signal-engine/internal/quality"
	"github.com/trogers1052/stock-signal-engine/internal/scoring"
	"github.com/trogers1052/stock-signal-engine/internal/sufficiency"
)

// Monday 2026-10-19 16:30 ET, after the close and inside the write window
var now = time.Date(2026, time.October, 19, 16, 30, 0, 0, markethours.ET)

var today = markethours.TradingDay(now)

// testClock is a movable wall clock shared by every component in a harness
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = t
}

// bars builds a gentle random walk whose last bar lands on lastDay
func bars(symbol string, seed int64, n int, lastDay time.Time) []models.PriceBar {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.PriceBar, n)
	price := 100.0
	for i := range out {
		price *= 1 + rng.NormFloat64()*0.005
		out[i] = models.PriceBar{
			Symbol:    symbol,
			Timestamp: lastDay.AddDate(0, 0, i-n+1),
			Open:      price * 0.999,
			High:      price * 1.004,
			Low:       price * 0.996,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return out
}

// seedHistory stores n prior snapshots with realistic dispersion
func seedHistory(repo *dedup.MemoryRepository, symbol string, seed int64, n int) {
	rng := rand.New(rand.NewSource(seed))
	for i := 1; i <= n; i++ {
		repo.Seed(&models.IndicatorSnapshot{
			Symbol:            symbol,
			TradingDay:        today.AddDate(0, 0, -2-i),
			RSI:               models.Float(50 + rng.NormFloat64()*10),
			MACD:              models.Float(rng.NormFloat64() * 1.5),
			BollingerPercentB: models.Float(0.5 + rng.NormFloat64()*0.3),
			MATrendGap:        models.Float(rng.NormFloat64() * 0.04),
			Momentum:          models.Float(rng.NormFloat64() * 0.03),
		})
	}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.BatchEvent
}

func (f *fakeEvents) PublishBatchEvent(_ context.Context, e models.BatchEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

type fakeAudits struct {
	mu      sync.Mutex
	reports []*models.QualityAuditReport
}

func (f *fakeAudits) CreateQualityReport(_ context.Context, r *models.QualityAuditReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeAudits) LatestQualityReport(context.Context) (*models.QualityAuditReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reports) == 0 {
		return nil, models.ErrNotFound
	}
	return f.reports[len(f.reports)-1], nil
}

// switchableSource fails for symbols in failing
type switchableSource struct {
	mu      sync.Mutex
	inner   BarSource
	failing map[string]bool
	calls   map[string]int
}

func (s *switchableSource) Bars(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	s.mu.Lock()
	s.calls[symbol]++
	fail := s.failing[symbol]
	s.mu.Unlock()
	if fail {
		return nil, errors.New("upstream timeout")
	}
	return s.inner.Bars(ctx, symbol, limit)
}

func (s *switchableSource) fail(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		s.failing[sym] = true
	}
}

type harness struct {
	p      *Pipeline
	clock  *testClock
	repo   *dedup.MemoryRepository
	src    *switchableSource
	events *fakeEvents
	audits *fakeAudits
}

func newHarness(t *testing.T, series map[string][]models.PriceBar, cfg Config) *harness {
	t.Helper()
	repo := dedup.NewMemoryRepository()
	src := &switchableSource{inner: NewStaticSource(series), failing: map[string]bool{}, calls: map[string]int{}}
	events := &fakeEvents{}
	audits := &fakeAudits{}
	clock := &testClock{at: now}

	p := New(Deps{
		Bars:       src,
		Breakers:   breaker.NewRegistry(breaker.Config{FailureThreshold: 2, ResetTimeout: time.Hour}, zerolog.Nop()),
		Calculator: indicators.NewCalculator(indicators.DefaultParams()),
		Gate:       sufficiency.NewGate(sufficiency.Config{RequiredDataPoints: 180}, clock.now),
		Scorer:     scoring.NewScorer(scoring.DefaultConfig()),
		Snapshots:  repo,
		Store:      dedup.NewStore(repo, dedup.DefaultConfig(), zerolog.Nop(), dedup.WithClock(clock.now)),
		Validator:  quality.NewValidator(),
		Cache:      publish.NewMemoryCache(),
		Audits:     audits,
		Events:     events,
	}, cfg, zerolog.Nop())
	p.now = clock.now
	return &harness{p: p, clock: clock, repo: repo, src: src, events: events, audits: audits}
}

func TestRunBatch(t *testing.T) {
	ctx := context.Background()
	symbols := []string{"SPY", "QQQ", "IWM"}

	t.Run("symbols with history are scored, stored and published", func(t *testing.T) {
		series := map[string][]models.PriceBar{}
		for i, s := range symbols {
			series[s] = bars(s, int64(10+i), 260, today)
		}
		h := newHarness(t, series, Config{Workers: 2, RequireCurrentBar: true})
		for i, s := range symbols {
			seedHistory(h.repo, s, int64(100+i), 200)
		}

		batch, err := h.p.RunBatch(ctx, symbols)
		require.NoError(t, err)
		require.Len(t, batch.Results, 3)
		assert.Equal(t, today, batch.TradingDay)

		for _, r := range batch.Results {
			assert.Equal(t, models.StatusHealthy, r.Status, "%s: %s", r.Symbol, r.Reason)
			require.NotNil(t, r.Composite, r.Symbol)
			assert.Equal(t, 5, r.Composite.Available)
			assert.True(t, r.Stored)
			assert.Equal(t, models.ReliabilityHigh, r.Reliability)
			for _, z := range r.ZScores {
				assert.Less(t, z.ZScore, 10.0)
				assert.Greater(t, z.ZScore, -10.0)
			}
			assert.Equal(t, 1, h.repo.Count(r.Symbol, today))
		}

		assert.Equal(t, models.QualityCache, batch.Audit.Recommendation)
		require.Len(t, h.events.events, 1)
		assert.Equal(t, models.EventBatchPublished, h.events.events[0].EventType)
		assert.Len(t, h.events.events[0].Signals, 3)
		require.Len(t, h.audits.reports, 1)

		view, err := h.p.Latest(ctx, "SPY")
		require.NoError(t, err)
		assert.Equal(t, models.StatusHealthy, view.Status)
		assert.Equal(t, batch.ID, view.BatchID)
		assert.NotEmpty(t, view.Signal)
		assert.NotNil(t, view.Snapshot.RSI)

		audit, err := h.p.LatestAudit(ctx)
		require.NoError(t, err)
		assert.Equal(t, batch.ID, audit.BatchID)
	})

	t.Run("recomputing the same day does not store twice", func(t *testing.T) {
		h := newHarness(t, map[string][]models.PriceBar{"SPY": bars("SPY", 1, 260, today)}, Config{})
		seedHistory(h.repo, "SPY", 2, 200)

		first, err := h.p.RunBatch(ctx, []string{"SPY"})
		require.NoError(t, err)
		second, err := h.p.RunBatch(ctx, []string{"SPY"})
		require.NoError(t, err)

		assert.True(t, first.Results[0].Stored)
		assert.False(t, second.Results[0].Stored)
		assert.Equal(t, 1, h.repo.Count("SPY", today))
	})

	t.Run("an intraday bar is served but only the closed bar is stored", func(t *testing.T) {
		series := map[string][]models.PriceBar{"XLK": bars("XLK", 21, 260, today)}
		h := newHarness(t, series, Config{RequireCurrentBar: true})
		seedHistory(h.repo, "XLK", 22, 200)
		h.clock.set(time.Date(2026, time.October, 19, 11, 0, 0, 0, markethours.ET))

		intraday, err := h.p.RunBatch(ctx, []string{"XLK"})
		require.NoError(t, err)
		r := intraday.Result("XLK")
		assert.Equal(t, models.StatusHealthy, r.Status, r.Reason)
		assert.False(t, r.Stored)
		assert.Equal(t, 0, h.repo.Count("XLK", today))

		view, err := h.p.Latest(ctx, "XLK")
		require.NoError(t, err)
		assert.Equal(t, intraday.ID, view.BatchID)

		// the bar keeps moving until the close
		last := &series["XLK"][len(series["XLK"])-1]
		last.Close *= 1.03
		last.High = last.Close * 1.002
		closed := last.Close
		h.clock.set(now)

		final, err := h.p.RunBatch(ctx, []string{"XLK"})
		require.NoError(t, err)
		assert.True(t, final.Result("XLK").Stored)
		assert.Equal(t, 1, h.repo.Count("XLK", today))

		stored, err := h.repo.Latest(ctx, "XLK")
		require.NoError(t, err)
		require.NotNil(t, stored.Close)
		assert.InDelta(t, closed, *stored.Close, 1e-9)
	})

	t.Run("no history means insufficient data, never a neutral default", func(t *testing.T) {
		h := newHarness(t, map[string][]models.PriceBar{"XLK": bars("XLK", 3, 260, today)}, Config{})

		batch, err := h.p.RunBatch(ctx, []string{"XLK"})
		require.NoError(t, err)

		r := batch.Results[0]
		assert.Equal(t, models.StatusInsufficientData, r.Status)
		assert.Nil(t, r.Composite)
		assert.Empty(t, r.ZScores)
		assert.Equal(t, models.RecommendSkip, r.Sufficiency[models.ComponentRSI].Recommendation)
		assert.Nil(t, r.Snapshot.CompositeScore)
		assert.True(t, r.Stored, "raw indicators still build history")
		assert.Equal(t, models.QualityWarn, batch.Audit.Recommendation)

		view, err := h.p.Latest(ctx, "XLK")
		require.NoError(t, err)
		assert.Equal(t, models.StatusInsufficientData, view.Status)
		assert.Equal(t, models.QualityWarn, view.QualityFlag)
		assert.Empty(t, view.Signal)
	})

	t.Run("a failing source opens the circuit for that symbol only", func(t *testing.T) {
		series := map[string][]models.PriceBar{
			"SPY": bars("SPY", 4, 260, today),
			"XLE": bars("XLE", 5, 260, today),
		}
		h := newHarness(t, series, Config{})
		seedHistory(h.repo, "SPY", 6, 200)
		h.src.fail("XLE")

		for i := 0; i < 2; i++ {
			batch, _ := h.p.RunBatch(ctx, []string{"SPY", "XLE"})
			assert.Equal(t, models.StatusNoData, batch.Result("XLE").Status)
		}
		batch, _ := h.p.RunBatch(ctx, []string{"SPY", "XLE"})
		assert.Equal(t, models.StatusCircuitOpen, batch.Result("XLE").Status)
		assert.Equal(t, models.StatusHealthy, batch.Result("SPY").Status)
		assert.Equal(t, 2, h.src.calls["XLE"], "open circuit does not call the source")
	})

	t.Run("a rejected batch keeps serving the last good one as stale", func(t *testing.T) {
		h := newHarness(t, map[string][]models.PriceBar{"SPY": bars("SPY", 7, 260, today)}, Config{})
		seedHistory(h.repo, "SPY", 8, 200)

		good, err := h.p.RunBatch(ctx, []string{"SPY"})
		require.NoError(t, err)

		h.src.fail("SPY")
		bad, err := h.p.RunBatch(ctx, []string{"SPY"})
		require.ErrorIs(t, err, models.ErrQualityBatchRejected)
		assert.Equal(t, models.QualityReject, bad.Audit.Recommendation)
		assert.Equal(t, models.EventBatchRejected, h.events.events[1].EventType)

		view, err := h.p.Latest(ctx, "SPY")
		require.NoError(t, err)
		assert.Equal(t, models.StatusStale, view.Status)
		assert.Equal(t, good.ID, view.BatchID)
		assert.NotNil(t, view.Snapshot)

		audit, err := h.p.LatestAudit(ctx)
		require.NoError(t, err)
		assert.Equal(t, bad.ID, audit.BatchID)
	})

	t.Run("a missing bar for today is stale", func(t *testing.T) {
		friday := today.AddDate(0, 0, -3)
		h := newHarness(t, map[string][]models.PriceBar{"DIA": bars("DIA", 9, 260, friday)}, Config{RequireCurrentBar: true})

		batch, _ := h.p.RunBatch(ctx, []string{"DIA"})
		r := batch.Result("DIA")
		assert.Equal(t, models.StatusStale, r.Status)
		assert.Contains(t, r.Reason, models.ErrBarNotAvailable.Error())
		assert.Nil(t, r.Snapshot)
	})

	t.Run("an impossible z-score is never stored", func(t *testing.T) {
		h := newHarness(t, map[string][]models.PriceBar{"XLU": bars("XLU", 11, 260, today)}, Config{})
		for i := 1; i <= 200; i++ {
			v := 20.0
			if i%2 == 0 {
				v += 1e-6
			}
			h.repo.Seed(&models.IndicatorSnapshot{Symbol: "XLU", TradingDay: today.AddDate(0, 0, -2-i), RSI: models.Float(v)})
		}

		batch, _ := h.p.RunBatch(ctx, []string{"XLU"})
		r := batch.Result("XLU")
		assert.Equal(t, models.StatusCorrupted, r.Status)
		assert.Nil(t, r.Snapshot)
		assert.Equal(t, 0, h.repo.Count("XLU", today))
	})

	t.Run("nothing published yet is no data", func(t *testing.T) {
		h := newHarness(t, nil, Config{})
		view, err := h.p.Latest(ctx, "SPY")
		require.NoError(t, err)
		assert.Equal(t, models.StatusNoData, view.Status)

		_, err = h.p.LatestAudit(ctx)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestRateLimitedSource(t *testing.T) {
	src := NewRateLimitedSource(NewStaticSource(map[string][]models.PriceBar{
		"SPY": bars("SPY", 1, 10, today),
	}), 0, 1)

	got, err := src.Bars(context.Background(), "SPY", 5)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, today, models.TruncateDay(got[4].Timestamp))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	limited := NewRateLimitedSource(NewStaticSource(nil), 0.001, 1)
	limited.limiter.Allow()
	_, err = limited.Bars(ctx, "SPY", 5)
	assert.Error(t, err)
}
