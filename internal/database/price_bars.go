package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// Bars returns the most recent limit daily bars for symbol, oldest first
func (db *DB) Bars(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM price_data_daily
		WHERE symbol = $1
		ORDER BY date DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get price bars: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		var open, high, low, closeV decimal.Decimal
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &open, &high, &low, &closeV, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		b.Open = open.InexactFloat64()
		b.High = high.InexactFloat64()
		b.Low = low.InexactFloat64()
		b.Close = closeV.InexactFloat64()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read price bars: %w", err)
	}

	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// UpsertBars writes daily bars, replacing any existing row for the same day
func (db *DB) UpsertBars(ctx context.Context, bars []models.PriceBar) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_data_daily (symbol, date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Symbol, models.TruncateDay(b.Timestamp),
			decimal.NewFromFloat(b.Open), decimal.NewFromFloat(b.High), decimal.NewFromFloat(b.Low),
			decimal.NewFromFloat(b.Close), b.Volume, now)
		if err != nil {
			return fmt.Errorf("failed to insert price bar for %s: %w", b.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
