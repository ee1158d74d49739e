package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"market-data-cache/internal/models"
)

// ListLineItems returns statement line items for a ticker, newest report
// period first. The open-ended label -> value mapping is stored as a JSON
// document in the data column.
func (db *DB) ListLineItems(ctx context.Context, ticker, endDate string, period models.PeriodKind) ([]models.LineItem, error) {
	query := `SELECT ticker, report_period, period, currency, data FROM line_items WHERE ticker = ?`
	args := []interface{}{ticker}

	if period != "" {
		query += ` AND period = ?`
		args = append(args, string(period))
	}
	if endDate != "" {
		query += ` AND report_period <= ?`
		args = append(args, endDate)
	}
	query += ` ORDER BY report_period DESC`

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		var currency, data sql.NullString
		if err := rows.Scan(&item.Ticker, &item.ReportPeriod, &item.Period, &currency, &data); err != nil {
			return nil, fmt.Errorf("failed to scan line item row: %w", err)
		}
		item.Currency = currency.String
		if data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &item.Items); err != nil {
				return nil, fmt.Errorf("failed to decode line item data: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertLineItems writes a batch of line items in one transaction, matching
// rows on (ticker, report_period, period).
func (db *DB) UpsertLineItems(ctx context.Context, ticker string, items []models.LineItem, overwrite bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, item := range items {
		if item.Period == "" {
			item.Period = models.PeriodTTM
		}

		data, err := json.Marshal(item.Items)
		if err != nil {
			return fmt.Errorf("failed to encode line item data: %w", err)
		}

		var id int64
		err = tx.QueryRowContext(ctx,
			db.rebind(`SELECT id FROM line_items WHERE ticker = ? AND report_period = ? AND period = ?`),
			ticker, item.ReportPeriod, string(item.Period)).Scan(&id)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				db.rebind(`INSERT INTO line_items (ticker, report_period, period, currency, data) VALUES (?, ?, ?, ?, ?)`),
				ticker, item.ReportPeriod, string(item.Period), item.Currency, string(data))
			if err != nil {
				return fmt.Errorf("failed to insert line item: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up line item: %w", err)
		case overwrite:
			_, err = tx.ExecContext(ctx,
				db.rebind(`UPDATE line_items SET currency = ?, data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
				item.Currency, string(data), id)
			if err != nil {
				return fmt.Errorf("failed to update line item: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit line items: %w", err)
	}
	return nil
}
