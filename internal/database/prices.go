package database

import (
	"context"
	"database/sql"
	"fmt"

	"market-data-cache/internal/models"
)

// ListPrices returns price bars for a ticker ordered by time, optionally
// bounded by start/end dates (inclusive, compared on the date portion of the
// timestamp).
func (db *DB) ListPrices(ctx context.Context, ticker, startDate, endDate string) ([]models.PriceBar, error) {
	query := `SELECT ticker, time, open, close, high, low, volume FROM prices WHERE ticker = ?`
	args := []interface{}{ticker}

	if startDate != "" {
		query += ` AND substr(time, 1, 10) >= ?`
		args = append(args, startDate)
	}
	if endDate != "" {
		query += ` AND substr(time, 1, 10) <= ?`
		args = append(args, endDate)
	}
	query += ` ORDER BY time`

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		var bar models.PriceBar
		var open, close, high, low sql.NullFloat64
		var volume sql.NullInt64
		if err := rows.Scan(&bar.Ticker, &bar.Time, &open, &close, &high, &low, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		bar.Open = open.Float64
		bar.Close = close.Float64
		bar.High = high.Float64
		bar.Low = low.Float64
		bar.Volume = volume.Int64
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// UpsertPrices writes a batch of price bars in one transaction. Existing rows
// (matched on ticker+time) are skipped unless overwrite is set, in which case
// every value column is replaced and updated_at bumped.
func (db *DB) UpsertPrices(ctx context.Context, ticker string, bars []models.PriceBar, overwrite bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, bar := range bars {
		var id int64
		err := tx.QueryRowContext(ctx,
			db.rebind(`SELECT id FROM prices WHERE ticker = ? AND time = ?`),
			ticker, bar.Time).Scan(&id)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				db.rebind(`INSERT INTO prices (ticker, time, open, close, high, low, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				ticker, bar.Time, bar.Open, bar.Close, bar.High, bar.Low, bar.Volume)
			if err != nil {
				return fmt.Errorf("failed to insert price: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up price: %w", err)
		case overwrite:
			_, err = tx.ExecContext(ctx,
				db.rebind(`UPDATE prices SET open = ?, close = ?, high = ?, low = ?, volume = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
				bar.Open, bar.Close, bar.High, bar.Low, bar.Volume, id)
			if err != nil {
				return fmt.Errorf("failed to update price: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prices: %w", err)
	}
	return nil
}
