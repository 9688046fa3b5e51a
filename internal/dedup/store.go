// Package dedup enforces at most one indicator snapshot per symbol per
// trading day. Atomicity comes from the repository (a unique constraint in
// Postgres, a per-key critical section in memory); the Store adds the write
// window, an in-process keyed lock and a detached commit.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/trogers1052/stock-signal-engine/internal/markethours"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// StoreResult is the outcome of a Store call
type StoreResult string

const (
	Stored        StoreResult = "STORED"
	AlreadyExists StoreResult = "ALREADY_EXISTS"
)

// Repository is the persistence contract the Store depends on.
// InsertSnapshotIfAbsent must be atomic: of N concurrent calls for the same
// key exactly one returns true.
type Repository interface {
	InsertSnapshotIfAbsent(ctx context.Context, snap *models.IndicatorSnapshot) (bool, error)
	SnapshotExists(ctx context.Context, symbol string, day time.Time) (bool, error)
	DeleteDuplicateSnapshots(ctx context.Context, symbol string, day time.Time) (int64, error)
}

// Config for the Store
type Config struct {
	Window        markethours.Window
	CommitTimeout time.Duration
}

// DefaultConfig accepts writes 09:30–20:00 ET and gives a commit 10s
func DefaultConfig() Config {
	w, _ := markethours.ParseWindow("09:30", "20:00")
	return Config{Window: w, CommitTimeout: 10 * time.Second}
}

// Option customizes a Store
type Option func(*Store)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the deduplicating writer for daily snapshots
type Store struct {
	repo  Repository
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
	locks *keyedMutex
}

// NewStore creates a Store
func NewStore(repo Repository, cfg Config, log zerolog.Logger, opts ...Option) *Store {
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 10 * time.Second
	}
	if cfg.Window.End == 0 {
		cfg.Window = DefaultConfig().Window
	}
	s := &Store{
		repo:  repo,
		cfg:   cfg,
		log:   log.With().Str("component", "dedup").Logger(),
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldSkipStorage reports whether today's snapshot for symbol already exists
func (s *Store) ShouldSkipStorage(ctx context.Context, symbol string) (bool, error) {
	day := markethours.TradingDay(s.now())
	exists, err := s.repo.SnapshotExists(ctx, symbol, day)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot for %s: %w", symbol, err)
	}
	return exists, nil
}

// Store persists snap unless one already exists for its (symbol, trading
// day). A duplicate is reported as AlreadyExists with a nil error. Writes
// outside the window fail with ErrOutsideWriteWindow.
func (s *Store) Store(ctx context.Context, snap *models.IndicatorSnapshot) (StoreResult, error) {
	now := s.now()
	if ok, reason := s.cfg.Window.Allows(now); !ok {
		return "", fmt.Errorf("%s: %s: %w", snap.Symbol, reason, models.ErrOutsideWriteWindow)
	}
	if snap.TradingDay.IsZero() {
		snap.TradingDay = markethours.TradingDay(now)
	}
	snap.TradingDay = models.TruncateDay(snap.TradingDay)

	key := snap.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// validated; the commit finishes even if the caller's deadline fires
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()

	inserted, err := s.repo.InsertSnapshotIfAbsent(commitCtx, snap)
	if err != nil {
		return "", fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}
	if !inserted {
		s.log.Info().Str("symbol", snap.Symbol).Str("trading_day", snap.TradingDay.Format(models.TradingDayLayout)).
			Msg("Snapshot already stored for trading day, skipping")
		return AlreadyExists, nil
	}

	s.log.Debug().Str("symbol", snap.Symbol).Int("id", snap.ID).Msg("Snapshot stored")
	return Stored, nil
}

// CleanupDuplicates removes all but the latest snapshot for (symbol, day).
// Running it on a clean key is a no-op.
func (s *Store) CleanupDuplicates(ctx context.Context, symbol string, day time.Time) (int64, error) {
	day = models.TruncateDay(day)
	unlock := s.locks.Lock(models.SnapshotKey(symbol, day))
	defer unlock()

	removed, err := s.repo.DeleteDuplicateSnapshots(ctx, symbol, day)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up %s on %s: %w", symbol, day.Format(models.TradingDayLayout), err)
	}
	if removed > 0 {
		s.log.Warn().Str("symbol", symbol).Int64("removed", removed).
			Str("trading_day", day.Format(models.TradingDayLayout)).Msg("Removed duplicate snapshots")
	}
	return removed, nil
}
