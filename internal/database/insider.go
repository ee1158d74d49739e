package database

import (
	"context"
	"database/sql"
	"fmt"

	"market-data-cache/internal/models"
)

// ListInsiderTrades returns insider trades for a ticker, newest filing first.
// Date bounds match either the transaction date or the filing date, since
// filings often trail the trade itself.
func (db *DB) ListInsiderTrades(ctx context.Context, ticker, startDate, endDate string) ([]models.InsiderTrade, error) {
	query := `SELECT ticker, filing_date, insider_name, position, transaction_type, transaction_date,
		shares, price_per_share, total_value, shares_owned_after
		FROM insider_trades WHERE ticker = ?`
	args := []interface{}{ticker}

	if startDate != "" {
		query += ` AND (substr(transaction_date, 1, 10) >= ? OR substr(filing_date, 1, 10) >= ?)`
		args = append(args, startDate, startDate)
	}
	if endDate != "" {
		query += ` AND (substr(transaction_date, 1, 10) <= ? OR substr(filing_date, 1, 10) <= ?)`
		args = append(args, endDate, endDate)
	}
	query += ` ORDER BY filing_date DESC`

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query insider trades: %w", err)
	}
	defer rows.Close()

	var trades []models.InsiderTrade
	for rows.Next() {
		var t models.InsiderTrade
		var name, position, txType, txDate sql.NullString
		var shares, ownedAfter sql.NullInt64
		var price, total sql.NullFloat64
		if err := rows.Scan(&t.Ticker, &t.FilingDate, &name, &position, &txType, &txDate,
			&shares, &price, &total, &ownedAfter); err != nil {
			return nil, fmt.Errorf("failed to scan insider trade row: %w", err)
		}
		t.Name = name.String
		t.Position = position.String
		t.TransactionType = txType.String
		t.TransactionDate = txDate.String
		t.Shares = shares.Int64
		t.PricePerShare = floatPtr(price)
		t.TotalValue = floatPtr(total)
		t.SharesOwnedAfter = intPtr(ownedAfter)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// UpsertInsiderTrades writes a batch of trades in one transaction. The lookup
// narrows on whichever natural-key fields the incoming record carries:
// filing date always, insider name and transaction date when present.
func (db *DB) UpsertInsiderTrades(ctx context.Context, ticker string, trades []models.InsiderTrade, overwrite bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range trades {
		lookup := `SELECT id FROM insider_trades WHERE ticker = ? AND filing_date = ?`
		args := []interface{}{ticker, t.FilingDate}
		if t.Name != "" {
			lookup += ` AND insider_name = ?`
			args = append(args, t.Name)
		}
		if t.TransactionDate != "" {
			lookup += ` AND transaction_date = ?`
			args = append(args, t.TransactionDate)
		}

		var id int64
		err := tx.QueryRowContext(ctx, db.rebind(lookup), args...).Scan(&id)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				db.rebind(`INSERT INTO insider_trades (ticker, filing_date, insider_name, position,
					transaction_type, transaction_date, shares, price_per_share, total_value, shares_owned_after)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				ticker, t.FilingDate, t.Name, t.Position, t.TransactionType, t.TransactionDate,
				t.Shares, nullFloat(t.PricePerShare), nullFloat(t.TotalValue), nullInt(t.SharesOwnedAfter))
			if err != nil {
				return fmt.Errorf("failed to insert insider trade: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up insider trade: %w", err)
		case overwrite:
			_, err = tx.ExecContext(ctx,
				db.rebind(`UPDATE insider_trades SET insider_name = ?, position = ?, transaction_type = ?,
					transaction_date = ?, shares = ?, price_per_share = ?, total_value = ?,
					shares_owned_after = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
				t.Name, t.Position, t.TransactionType, t.TransactionDate, t.Shares,
				nullFloat(t.PricePerShare), nullFloat(t.TotalValue), nullInt(t.SharesOwnedAfter), id)
			if err != nil {
				return fmt.Errorf("failed to update insider trade: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insider trades: %w", err)
	}
	return nil
}
