package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/trogers1052/stock-signal-engine/internal/breaker"
	"github.com/trogers1052/stock-signal-engine/internal/config"
	"github.com/trogers1052/stock-signal-engine/internal/database"
	"github.com/trogers1052/stock-signal-engine/internal/dedup"
	"github.com/trogers1052/stock-signal-engine/internal/indicators"
	"github.com/trogers1052/stock-signal-engine/internal/kafka"
	"github.com/trogers1052/stock-signal-engine/internal/logger"
	"github.com/trogers1052/stock-signal-engine/internal/markethours"
	"github.com/trogers1052/stock-signal-engine/internal/metrics"
	"github.com/trogers1052/stock-signal-engine/internal/models"
	"github.com/trogers1052/stock-signal-engine/internal/pipeline"
	"github.com/trogers1052/stock-signal-engine/internal/publish"
	"github.com/trogers1052/stock-signal-engine/internal/quality"
	"github.com/trogers1052/stock-signal-engine/internal/scoring"
	"github.com/trogers1052/stock-signal-engine/internal/sufficiency"
)

// app is everything built from configuration at startup
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *database.DB
	redis    *redis.Client
	producer *kafka.Producer
	metrics  *metrics.Recorder
	breakers *breaker.Registry
	store    *dedup.Store
	pipeline *pipeline.Pipeline
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	a.db, err = database.NewWithOptions(ctx, cfg.Database.ConnectionString(), cfg.Database.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := a.db.Migrate(); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("Connected to database")

	var cache publish.BatchCache = publish.NewMemoryCache()
	if cfg.Redis.Enabled {
		a.redis, err = publish.NewRedisClient(ctx, cfg.Redis.Client())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache = publish.NewRedisCache(a.redis, cfg.Redis.Prefix, cfg.Redis.TTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to redis")
	}

	var events pipeline.EventPublisher
	if cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic, log)
		events = a.producer
	}

	a.breakers = breaker.NewRegistry(cfg.CircuitBreaker.Breaker(), log, breaker.WithObserver(a.metrics.RecordBreakerState))
	a.store = dedup.NewStore(a.db, cfg.DedupStore(), log)

	a.pipeline = pipeline.New(pipeline.Deps{
		Bars:       pipeline.NewRateLimitedSource(a.db, cfg.Pipeline.BarRateLimit, cfg.Pipeline.BarBurst),
		Breakers:   a.breakers,
		Calculator: indicators.NewCalculator(cfg.Indicators.Params()),
		Gate:       sufficiency.NewGate(cfg.Sufficiency(), nil),
		Scorer:     scoring.NewScorer(cfg.Scoring()),
		Snapshots:  a.db,
		Store:      a.store,
		Validator:  quality.NewValidator(quality.DefaultGates()...),
		Cache:      cache,
		Audits:     a.db,
		Events:     events,
		Metrics:    a.metrics,
	}, cfg.PipelineOptions(), log)

	return a, nil
}

// recompute is the signal-recompute job
func (a *app) recompute(ctx context.Context) error {
	batch, err := a.pipeline.RunBatch(ctx, a.cfg.Symbols)
	if errors.Is(err, models.ErrQualityBatchRejected) {
		// already logged and announced; the job itself ran fine
		return nil
	}
	if err != nil {
		return err
	}
	a.log.Info().Str("batch_id", batch.ID).Int("symbols", len(batch.Results)).Msg("Batch finished")
	return nil
}

// cleanup is the duplicate-cleanup job. It sweeps the current and previous
// trading day for every configured symbol.
func (a *app) cleanup(ctx context.Context) error {
	now := time.Now()
	days := []time.Time{markethours.TradingDay(now), markethours.LastTradingDay(now.AddDate(0, 0, -1))}
	var total int64
	for _, symbol := range a.cfg.Symbols {
		for _, day := range days {
			n, err := a.store.CleanupDuplicates(ctx, symbol, day)
			if err != nil {
				a.metrics.RecordError("cleanup")
				return fmt.Errorf("cleanup %s: %w", symbol, err)
			}
			total += n
		}
	}
	a.log.Info().Int64("deleted", total).Msg("Duplicate cleanup finished")
	return nil
}

func (a *app) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close kafka producer")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
