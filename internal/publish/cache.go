// Package publish holds the last known-good batch that readers are served
// from, and a Redis lock that keeps scheduled jobs single-flight across
// replicas.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// BatchCache stores the latest publishable batch
type BatchCache interface {
	Put(ctx context.Context, batch *models.Batch) error
	Get(ctx context.Context) (*models.Batch, error)
}

// MemoryCache keeps the batch in process
type MemoryCache struct {
	mu    sync.RWMutex
	batch *models.Batch
}

// NewMemoryCache creates an empty MemoryCache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Put(_ context.Context, batch *models.Batch) error {
	c.mu.Lock()
	c.batch = batch
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Get(_ context.Context) (*models.Batch, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.batch == nil {
		return nil, models.ErrNotFound
	}
	return c.batch, nil
}

// RedisConfig configures the Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisClient connects and pings with exponential backoff
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	operation := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}
	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = 15 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// RedisCache stores the batch as JSON under <prefix>batch:latest
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. A zero ttl keeps the batch until replaced.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "signals:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key() string {
	return c.prefix + "batch:latest"
}

func (c *RedisCache) Put(ctx context.Context, batch *models.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	if err := c.client.Set(ctx, c.key(), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context) (*models.Batch, error) {
	data, err := c.client.Get(ctx, c.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var batch models.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch: %w", err)
	}
	return &batch, nil
}
