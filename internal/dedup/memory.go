package dedup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// MemoryRepository keeps snapshots in process. It is used by tests and by
// the run command when no database is configured.
type MemoryRepository struct {
	mu     sync.Mutex
	rows   map[string][]*models.IndicatorSnapshot
	nextID int
	now    func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[string][]*models.IndicatorSnapshot),
		now:  time.Now,
	}
}

// InsertSnapshotIfAbsent stores a copy of snap when the key is free
func (r *MemoryRepository) InsertSnapshotIfAbsent(ctx context.Context, snap *models.IndicatorSnapshot) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := snap.Key()
	if len(r.rows[key]) > 0 {
		return false, nil
	}
	r.insertLocked(snap)
	return true, nil
}

// Seed appends rows without the uniqueness check, as a legacy table without
// the constraint would hold them.
func (r *MemoryRepository) Seed(snaps ...*models.IndicatorSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range snaps {
		r.insertLocked(s)
	}
}

func (r *MemoryRepository) insertLocked(snap *models.IndicatorSnapshot) {
	r.nextID++
	snap.ID = r.nextID
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = r.now()
	}
	key := snap.Key()
	r.rows[key] = append(r.rows[key], snap.Clone())
}

// SnapshotExists reports whether any row exists for (symbol, day)
func (r *MemoryRepository) SnapshotExists(ctx context.Context, symbol string, day time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[models.SnapshotKey(symbol, models.TruncateDay(day))]) > 0, nil
}

// Count returns the number of rows for (symbol, day)
func (r *MemoryRepository) Count(symbol string, day time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[models.SnapshotKey(symbol, models.TruncateDay(day))])
}

// DeleteDuplicateSnapshots keeps the row with the latest created_at (highest
// id on ties) and removes the others.
func (r *MemoryRepository) DeleteDuplicateSnapshots(ctx context.Context, symbol string, day time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.SnapshotKey(symbol, models.TruncateDay(day))
	rows := r.rows[key]
	if len(rows) <= 1 {
		return 0, nil
	}
	keep := rows[0]
	for _, row := range rows[1:] {
		if row.CreatedAt.After(keep.CreatedAt) || (row.CreatedAt.Equal(keep.CreatedAt) && row.ID > keep.ID) {
			keep = row
		}
	}
	r.rows[key] = []*models.IndicatorSnapshot{keep}
	return int64(len(rows) - 1), nil
}

// History returns up to limit values of indicator for symbol from trading
// days strictly before before, oldest first.
func (r *MemoryRepository) History(ctx context.Context, symbol, indicator string, before time.Time, limit int) (models.HistoricalWindow, error) {
	w := models.HistoricalWindow{Symbol: symbol, Indicator: indicator}
	if err := ctx.Err(); err != nil {
		return w, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var rows []*models.IndicatorSnapshot
	for _, byKey := range r.rows {
		for _, s := range byKey {
			if s.Symbol == symbol && s.TradingDay.Before(before) {
				rows = append(rows, s)
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TradingDay.After(rows[j].TradingDay) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	w.Total = len(rows)
	for i := len(rows) - 1; i >= 0; i-- {
		if v := rows[i].Value(indicator); v != nil {
			w.Values = append(w.Values, *v)
		}
	}
	w.Valid = len(w.Values)
	if len(rows) > 0 {
		w.LastUpdated = rows[0].TradingDay
	}
	return w, nil
}

// Latest returns the most recent snapshot for symbol
func (r *MemoryRepository) Latest(ctx context.Context, symbol string) (*models.IndicatorSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *models.IndicatorSnapshot
	for _, byKey := range r.rows {
		for _, s := range byKey {
			if s.Symbol != symbol {
				continue
			}
			if latest == nil || s.TradingDay.After(latest.TradingDay) {
				latest = s
			}
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	return latest.Clone(), nil
}
