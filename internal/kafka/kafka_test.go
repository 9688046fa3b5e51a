package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeTrigger struct {
	jobs    []string
	running bool
}

func (f *fakeTrigger) Trigger(_ context.Context, name string) bool {
	if f.running {
		return false
	}
	f.jobs = append(f.jobs, name)
	return true
}

type scriptedReader struct {
	msgs   []kafka.Message
	cancel context.CancelFunc
	closed bool
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

func barMessage(t *testing.T, eventType, symbol string) kafka.Message {
	t.Helper()
	data, err := json.Marshal(models.BarEvent{
		EventType:  eventType,
		Symbol:     symbol,
		TradingDay: "2026-10-19",
		Timestamp:  time.Date(2026, 10, 19, 20, 5, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(symbol), Value: data}
}

func TestPublishBatchEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, topic: "signal-batches", log: zerolog.Nop()}

	score := 1.2
	event := models.BatchEvent{
		EventType:      models.EventBatchPublished,
		BatchID:        "b-1",
		TradingDay:     "2026-10-19",
		Recommendation: models.QualityCache,
		RealDataRatio:  0.95,
		Signals:        []models.SignalSummary{{Symbol: "XLK", Status: "HEALTHY", Signal: "BUY", CompositeScore: &score}},
	}
	require.NoError(t, p.PublishBatchEvent(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "2026-10-19", string(w.msgs[0].Key))

	var got models.BatchEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "b-1", got.BatchID)
	assert.False(t, got.Timestamp.IsZero())
	require.Len(t, got.Signals, 1)
	assert.InDelta(t, 1.2, *got.Signals[0].CompositeScore, 1e-9)
}

func TestPublishBatchEventWriteError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, log: zerolog.Nop()}
	err := p.PublishBatchEvent(context.Background(), models.BatchEvent{EventType: models.EventBatchRejected})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("daily bar on watchlist triggers recompute", func(t *testing.T) {
		trig := &fakeTrigger{}
		c := newConsumer(nil, trig, "signal-recompute", []string{"xlk", "XLF"}, zerolog.Nop())
		require.NoError(t, c.processMessage(ctx, barMessage(t, models.EventDailyBarClosed, "XLK")))
		assert.Equal(t, []string{"signal-recompute"}, trig.jobs)
	})

	t.Run("other symbols and events are ignored", func(t *testing.T) {
		trig := &fakeTrigger{}
		c := newConsumer(nil, trig, "signal-recompute", []string{"XLK"}, zerolog.Nop())
		require.NoError(t, c.processMessage(ctx, barMessage(t, models.EventDailyBarClosed, "TSLA")))
		require.NoError(t, c.processMessage(ctx, barMessage(t, "INTRADAY_TICK", "XLK")))
		assert.Empty(t, trig.jobs)
	})

	t.Run("empty watchlist accepts every symbol", func(t *testing.T) {
		trig := &fakeTrigger{}
		c := newConsumer(nil, trig, "signal-recompute", nil, zerolog.Nop())
		require.NoError(t, c.processMessage(ctx, barMessage(t, models.EventDailyBarClosed, "SPY")))
		assert.Len(t, trig.jobs, 1)
	})

	t.Run("running recompute is not an error", func(t *testing.T) {
		c := newConsumer(nil, &fakeTrigger{running: true}, "signal-recompute", nil, zerolog.Nop())
		assert.NoError(t, c.processMessage(ctx, barMessage(t, models.EventDailyBarClosed, "SPY")))
	})

	t.Run("malformed payloads", func(t *testing.T) {
		c := newConsumer(nil, &fakeTrigger{}, "signal-recompute", nil, zerolog.Nop())
		assert.Error(t, c.processMessage(ctx, kafka.Message{Value: []byte("{not json")}))
		assert.Error(t, c.processMessage(ctx, barMessage(t, models.EventDailyBarClosed, "  ")))
	})
}

func TestConsumerStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trig := &fakeTrigger{}
	reader := &scriptedReader{
		msgs: []kafka.Message{
			barMessage(t, models.EventDailyBarClosed, "XLK"),
			{Value: []byte("garbage")},
		},
		cancel: cancel,
	}
	c := newConsumer(reader, trig, "signal-recompute", nil, zerolog.Nop())

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"signal-recompute"}, trig.jobs)
}
