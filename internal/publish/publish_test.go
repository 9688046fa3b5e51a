package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

func sampleBatch() *models.Batch {
	return &models.Batch{
		ID:         "6f1c2d7a-3b64-4b55-9a4e-0c9f3f4b8e21",
		TradingDay: time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC),
		Results: []*models.SignalResult{
			{Symbol: "SPY", Status: models.StatusHealthy, Reliability: models.ReliabilityHigh},
		},
		Audit:     &models.QualityAuditReport{Recommendation: models.QualityCache, RealDataRatio: 1},
		CreatedAt: time.Date(2026, time.October, 16, 15, 45, 0, 0, time.UTC),
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, err := c.Get(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	b := sampleBatch()
	require.NoError(t, c.Put(ctx, b))
	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	c := NewRedisCache(client, "signals:", 0)

	t.Run("put stores the batch as json", func(t *testing.T) {
		b := sampleBatch()
		data, err := json.Marshal(b)
		require.NoError(t, err)

		mock.ExpectSet("signals:batch:latest", data, 0).SetVal("OK")
		require.NoError(t, c.Put(ctx, b))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get decodes the batch", func(t *testing.T) {
		data, err := json.Marshal(sampleBatch())
		require.NoError(t, err)

		mock.ExpectGet("signals:batch:latest").SetVal(string(data))
		got, err := c.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "6f1c2d7a-3b64-4b55-9a4e-0c9f3f4b8e21", got.ID)
		assert.Equal(t, models.StatusHealthy, got.Result("SPY").Status)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss is not found", func(t *testing.T) {
		mock.ExpectGet("signals:batch:latest").RedisNil()
		_, err := c.Get(ctx)
		assert.ErrorIs(t, err, models.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis errors are wrapped", func(t *testing.T) {
		mock.ExpectGet("signals:batch:latest").SetErr(errors.New("connection refused"))
		_, err := c.Get(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis get")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisJobLock(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	lock := NewRedisJobLock(client, "signals:", time.Minute)
	lock.newToken = func() string { return "token-1" }

	t.Run("acquires and releases", func(t *testing.T) {
		mock.ExpectSetNX("signals:lock:signal-recompute", "token-1", time.Minute).SetVal(true)
		release, ok, err := lock.TryAcquire(ctx, "signal-recompute")
		require.NoError(t, err)
		require.True(t, ok)

		mock.ExpectEval(releaseScript, []string{"signals:lock:signal-recompute"}, "token-1").SetVal(int64(1))
		require.NoError(t, release(ctx))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("held elsewhere is not acquired", func(t *testing.T) {
		mock.ExpectSetNX("signals:lock:signal-recompute", "token-1", time.Minute).SetVal(false)
		release, ok, err := lock.TryAcquire(ctx, "signal-recompute")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, release)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
