package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

var errUpstream = errors.New("upstream failed")

func fail(context.Context) error    { return errUpstream }
func succeed(context.Context) error { return nil }

func TestBreakerTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("starts closed", func(t *testing.T) {
		b := New("indicator-calc:SPY", Config{FailureThreshold: 5, ResetTimeout: time.Second}, nil)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("opens exactly on the fifth consecutive failure", func(t *testing.T) {
		b := New("indicator-calc:SPY", Config{FailureThreshold: 5, ResetTimeout: time.Second}, nil)

		for i := 1; i <= 4; i++ {
			err := b.Execute(ctx, fail)
			require.ErrorIs(t, err, errUpstream)
			require.Equal(t, StateClosed, b.State(), "still closed after failure %d", i)
		}

		err := b.Execute(ctx, fail)
		require.ErrorIs(t, err, errUpstream)
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("rejects without calling while open", func(t *testing.T) {
		b := New("price-bars:XLK", Config{FailureThreshold: 2, ResetTimeout: time.Second}, nil)
		b.Execute(ctx, fail)
		b.Execute(ctx, fail)

		called := false
		err := b.Execute(ctx, func(context.Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, models.ErrCircuitOpen)
		assert.False(t, called)
		assert.Equal(t, uint64(1), b.Snapshot().Rejected)
	})

	t.Run("half-opens only after the reset timeout", func(t *testing.T) {
		b := New("price-bars:XLE", Config{FailureThreshold: 2, ResetTimeout: 80 * time.Millisecond}, nil)
		b.Execute(ctx, fail)
		b.Execute(ctx, fail)

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, StateOpen, b.State())

		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, StateHalfOpen, b.State())
	})

	t.Run("successful probe closes", func(t *testing.T) {
		b := New("price-bars:XLF", Config{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond}, nil)
		b.Execute(ctx, fail)
		b.Execute(ctx, fail)
		time.Sleep(60 * time.Millisecond)

		require.NoError(t, b.Execute(ctx, succeed))
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 0, b.Snapshot().Failures)
	})

	t.Run("failed probe reopens", func(t *testing.T) {
		b := New("price-bars:XLV", Config{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond}, nil)
		b.Execute(ctx, fail)
		b.Execute(ctx, fail)
		time.Sleep(60 * time.Millisecond)

		require.ErrorIs(t, b.Execute(ctx, fail), errUpstream)
		assert.Equal(t, StateOpen, b.State())
	})

	t.Run("success resets the consecutive failure count", func(t *testing.T) {
		b := New("price-bars:XLB", Config{FailureThreshold: 3, ResetTimeout: time.Second}, nil)
		b.Execute(ctx, fail)
		b.Execute(ctx, fail)
		b.Execute(ctx, succeed)
		b.Execute(ctx, fail)
		b.Execute(ctx, fail)

		assert.Equal(t, StateClosed, b.State())
		s := b.Snapshot()
		assert.Equal(t, 2, s.Failures)
		assert.Equal(t, uint64(5), s.TotalRequests)
		assert.Equal(t, uint64(1), s.Successes)
		assert.NotNil(t, s.LastFailure)
		assert.NotNil(t, s.LastSuccess)
	})

	t.Run("manual reset closes an open breaker", func(t *testing.T) {
		b := New("price-bars:XLP", Config{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
		b.Execute(ctx, fail)
		require.Equal(t, StateOpen, b.State())

		b.Reset()
		assert.Equal(t, StateClosed, b.State())
		assert.NoError(t, b.Execute(ctx, succeed))
	})

	t.Run("cancelled context is returned without calling", func(t *testing.T) {
		b := New("price-bars:XLI", Config{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := b.Execute(cctx, fail)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreakerIgnoresContextErrors(t *testing.T) {
	ctx := context.Background()
	timedOut := func(context.Context) error { return fmt.Errorf("fetch bars: %w", context.DeadlineExceeded) }
	cancelled := func(context.Context) error { return context.Canceled }

	t.Run("timeouts inside the call never trip", func(t *testing.T) {
		b := New("price-bars:XLU", Config{FailureThreshold: 3, ResetTimeout: time.Hour}, nil)
		for i := 0; i < 6; i++ {
			err := b.Execute(ctx, timedOut)
			require.ErrorIs(t, err, context.DeadlineExceeded)
		}
		require.ErrorIs(t, b.Execute(ctx, cancelled), context.Canceled)

		assert.Equal(t, StateClosed, b.State())
		s := b.Snapshot()
		assert.Equal(t, 0, s.Failures)
		assert.Nil(t, s.LastFailure)
	})

	t.Run("a timeout does not extend a failure streak", func(t *testing.T) {
		b := New("price-bars:XLB", Config{FailureThreshold: 2, ResetTimeout: time.Hour}, nil)
		b.Execute(ctx, fail)
		b.Execute(ctx, timedOut)

		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 1, b.Snapshot().Failures)
	})
}

func TestBreakerHalfOpenIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	b := New("indicator-calc:QQQ", Config{FailureThreshold: 1, ResetTimeout: 30 * time.Millisecond}, nil)
	b.Execute(ctx, fail)
	time.Sleep(40 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var probes int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Execute(ctx, func(context.Context) error {
			atomic.AddInt32(&probes, 1)
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// a second caller while the probe is in flight is treated as still open
	err := b.Execute(ctx, func(context.Context) error {
		atomic.AddInt32(&probes, 1)
		return nil
	})
	assert.ErrorIs(t, err, models.ErrCircuitOpen)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&probes))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerObserver(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var transitions []string
	b := New("indicator-calc:IWM", Config{FailureThreshold: 1, ResetTimeout: 30 * time.Millisecond}, func(name, from, to string) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	b.Execute(ctx, fail)
	time.Sleep(40 * time.Millisecond)
	b.Execute(ctx, succeed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(Config{FailureThreshold: 2, ResetTimeout: time.Hour}, zerolog.Nop())

	t.Run("creates breakers lazily and reuses them", func(t *testing.T) {
		a := reg.Get("indicator-calc:SPY")
		assert.Same(t, a, reg.Get("indicator-calc:SPY"))
		assert.NotSame(t, a, reg.Get("indicator-calc:QQQ"))
	})

	t.Run("keeps independent state per name", func(t *testing.T) {
		reg.Execute(ctx, "price-bars:SPY", fail)
		reg.Execute(ctx, "price-bars:SPY", fail)

		assert.Equal(t, StateOpen, reg.Get("price-bars:SPY").State())
		assert.NoError(t, reg.Execute(ctx, "price-bars:QQQ", succeed))
		assert.Equal(t, StateClosed, reg.Get("price-bars:QQQ").State())
	})

	t.Run("resets individually", func(t *testing.T) {
		assert.True(t, reg.Reset("price-bars:SPY"))
		assert.Equal(t, StateClosed, reg.Get("price-bars:SPY").State())
		assert.False(t, reg.Reset("does-not-exist"))
	})

	t.Run("reset all closes every breaker", func(t *testing.T) {
		reg.Execute(ctx, "price-bars:DIA", fail)
		reg.Execute(ctx, "price-bars:DIA", fail)
		reg.ResetAll()
		for _, s := range reg.Snapshots() {
			assert.Equal(t, StateClosed, s.State, s.Name)
		}
	})

	t.Run("snapshots are sorted by name", func(t *testing.T) {
		snaps := reg.Snapshots()
		require.NotEmpty(t, snaps)
		for i := 1; i < len(snaps); i++ {
			assert.Less(t, snaps[i-1].Name, snaps[i].Name)
		}
	})

	t.Run("concurrent lookups return one breaker per name", func(t *testing.T) {
		var wg sync.WaitGroup
		got := make([]*Breaker, 32)
		for i := range got {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got[i] = reg.Get("indicator-calc:XLK")
			}(i)
		}
		wg.Wait()
		for _, b := range got {
			assert.Same(t, got[0], b)
		}
	})
}
