package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// DefaultHistoryLimit is one trading year
const DefaultHistoryLimit = 252

const snapshotColumns = `id, symbol, trading_day, close, rsi_14, macd, macd_signal, macd_histogram,
	bb_percent_b, sma_20, sma_50, ema_12, ema_26, atr_14, ma_trend_gap, momentum_5,
	composite_score, signal, created_at`

// indicatorColumns whitelists the columns History may select
var indicatorColumns = map[string]string{
	models.IndicatorRSI14:      "rsi_14",
	models.IndicatorMACD:       "macd",
	models.IndicatorMACDSignal: "macd_signal",
	models.IndicatorMACDHist:   "macd_histogram",
	models.IndicatorBBPercentB: "bb_percent_b",
	models.IndicatorSMA20:      "sma_20",
	models.IndicatorSMA50:      "sma_50",
	models.IndicatorEMA12:      "ema_12",
	models.IndicatorEMA26:      "ema_26",
	models.IndicatorATR14:      "atr_14",
	models.IndicatorMATrend:    "ma_trend_gap",
	models.IndicatorMomentum:   "momentum_5",
}

// InsertSnapshotIfAbsent inserts s unless a row for (symbol, trading_day)
// exists. The unique constraint makes concurrent callers race safely: exactly
// one gets a row back.
func (db *DB) InsertSnapshotIfAbsent(ctx context.Context, s *models.IndicatorSnapshot) (bool, error) {
	query := `
		INSERT INTO indicator_snapshots (symbol, trading_day, close, rsi_14, macd, macd_signal, macd_histogram,
			bb_percent_b, sma_20, sma_50, ema_12, ema_26, atr_14, ma_trend_gap, momentum_5,
			composite_score, signal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (symbol, trading_day) DO NOTHING
		RETURNING id, created_at
	`
	createdAt := time.Now().UTC()
	err := db.conn.QueryRowContext(ctx, query,
		s.Symbol, s.TradingDay, toDecimal(s.Close), toDecimal(s.RSI), toDecimal(s.MACD),
		toDecimal(s.MACDSignal), toDecimal(s.MACDHistogram), toDecimal(s.BollingerPercentB),
		toDecimal(s.SMA20), toDecimal(s.SMA50), toDecimal(s.EMA12), toDecimal(s.EMA26),
		toDecimal(s.ATR14), toDecimal(s.MATrendGap), toDecimal(s.Momentum),
		toDecimal(s.CompositeScore), nullString(s.Signal), createdAt,
	).Scan(&s.ID, &s.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return true, nil
}

// SnapshotExists reports whether a snapshot exists for symbol on day
func (db *DB) SnapshotExists(ctx context.Context, symbol string, day time.Time) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM indicator_snapshots WHERE symbol = $1 AND trading_day = $2)`,
		symbol, day,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot: %w", err)
	}
	return exists, nil
}

// DeleteDuplicateSnapshots keeps the newest row for (symbol, day), by
// created_at then id, and deletes the rest.
func (db *DB) DeleteDuplicateSnapshots(ctx context.Context, symbol string, day time.Time) (int64, error) {
	query := `
		DELETE FROM indicator_snapshots
		WHERE symbol = $1 AND trading_day = $2
		AND id <> (
			SELECT id FROM indicator_snapshots
			WHERE symbol = $1 AND trading_day = $2
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`
	result, err := db.conn.ExecContext(ctx, query, symbol, day)
	if err != nil {
		return 0, fmt.Errorf("failed to delete duplicate snapshots: %w", err)
	}
	return result.RowsAffected()
}

// History returns up to limit values of indicator for symbol from trading
// days before before, oldest first.
func (db *DB) History(ctx context.Context, symbol, indicator string, before time.Time, limit int) (models.HistoricalWindow, error) {
	w := models.HistoricalWindow{Symbol: symbol, Indicator: indicator}
	column, ok := indicatorColumns[indicator]
	if !ok {
		return w, fmt.Errorf("unknown indicator %q", indicator)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := fmt.Sprintf(`
		SELECT trading_day, %s
		FROM indicator_snapshots
		WHERE symbol = $1 AND trading_day < $2
		ORDER BY trading_day DESC
		LIMIT $3
	`, column)
	rows, err := db.conn.QueryContext(ctx, query, symbol, before, limit)
	if err != nil {
		return w, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var newestFirst []float64
	for rows.Next() {
		var day time.Time
		var value decimal.NullDecimal
		if err := rows.Scan(&day, &value); err != nil {
			return w, fmt.Errorf("failed to scan history: %w", err)
		}
		if w.Total == 0 {
			w.LastUpdated = day
		}
		w.Total++
		if v := fromDecimal(value); v != nil {
			newestFirst = append(newestFirst, *v)
		}
	}
	if err := rows.Err(); err != nil {
		return w, fmt.Errorf("failed to read history: %w", err)
	}

	w.Values = make([]float64, len(newestFirst))
	for i, v := range newestFirst {
		w.Values[len(newestFirst)-1-i] = v
	}
	w.Valid = len(w.Values)
	return w, nil
}

// Latest returns the most recent snapshot for symbol
func (db *DB) Latest(ctx context.Context, symbol string) (*models.IndicatorSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM indicator_snapshots
		WHERE symbol = $1
		ORDER BY trading_day DESC, created_at DESC
		LIMIT 1
	`
	s, err := scanSnapshot(db.conn.QueryRowContext(ctx, query, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for %s: %w", symbol, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return s, nil
}

// SnapshotsForDay returns every stored snapshot for a trading day
func (db *DB) SnapshotsForDay(ctx context.Context, day time.Time) ([]*models.IndicatorSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM indicator_snapshots
		WHERE trading_day = $1
		ORDER BY symbol, created_at
	`
	rows, err := db.conn.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.IndicatorSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.IndicatorSnapshot, error) {
	var s models.IndicatorSnapshot
	var closeV, rsi, macd, macdSignal, macdHist, pctB, sma20, sma50, ema12, ema26, atr, gap, mom, composite decimal.NullDecimal
	var signal sql.NullString
	err := row.Scan(
		&s.ID, &s.Symbol, &s.TradingDay, &closeV, &rsi, &macd, &macdSignal, &macdHist,
		&pctB, &sma20, &sma50, &ema12, &ema26, &atr, &gap, &mom,
		&composite, &signal, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Close = fromDecimal(closeV)
	s.RSI = fromDecimal(rsi)
	s.MACD = fromDecimal(macd)
	s.MACDSignal = fromDecimal(macdSignal)
	s.MACDHistogram = fromDecimal(macdHist)
	s.BollingerPercentB = fromDecimal(pctB)
	s.SMA20 = fromDecimal(sma20)
	s.SMA50 = fromDecimal(sma50)
	s.EMA12 = fromDecimal(ema12)
	s.EMA26 = fromDecimal(ema26)
	s.ATR14 = fromDecimal(atr)
	s.MATrendGap = fromDecimal(gap)
	s.Momentum = fromDecimal(mom)
	s.CompositeScore = fromDecimal(composite)
	s.Signal = signal.String
	return &s, nil
}

func toDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*v), Valid: true}
}

func fromDecimal(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f, _ := d.Decimal.Float64()
	return models.Float(f)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
