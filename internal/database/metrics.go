package database

import (
	"context"
	"database/sql"
	"fmt"

	"market-data-cache/internal/models"
)

const metricColumns = `ticker, report_period, period, currency, market_cap, enterprise_value,
	pe_ratio, pb_ratio, ps_ratio, ev_to_ebitda, roe, roa, gross_margin, operating_margin,
	net_margin, revenue_growth, earnings_growth, dividend_yield, payout_ratio, current_ratio,
	quick_ratio, debt_to_equity, interest_coverage`

// ListFinancialMetrics returns metrics for a ticker, newest report period
// first. An empty period matches every period kind; limit <= 0 means no limit.
func (db *DB) ListFinancialMetrics(ctx context.Context, ticker, endDate string, period models.PeriodKind, limit int) ([]models.FinancialMetric, error) {
	query := `SELECT ` + metricColumns + ` FROM financial_metrics WHERE ticker = ?`
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
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query financial metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.FinancialMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func scanMetric(rows *sql.Rows) (models.FinancialMetric, error) {
	var m models.FinancialMetric
	var currency sql.NullString
	vals := make([]sql.NullFloat64, 19)
	dest := []interface{}{&m.Ticker, &m.ReportPeriod, &m.Period, &currency}
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return m, fmt.Errorf("failed to scan financial metric row: %w", err)
	}
	m.Currency = currency.String
	ptrs := []**float64{
		&m.MarketCap, &m.EnterpriseValue, &m.PERatio, &m.PBRatio, &m.PSRatio,
		&m.EVToEBITDA, &m.ROE, &m.ROA, &m.GrossMargin, &m.OperatingMargin,
		&m.NetMargin, &m.RevenueGrowth, &m.EarningsGrowth, &m.DividendYield,
		&m.PayoutRatio, &m.CurrentRatio, &m.QuickRatio, &m.DebtToEquity,
		&m.InterestCoverage,
	}
	for i, p := range ptrs {
		*p = floatPtr(vals[i])
	}
	return m, nil
}

func metricArgs(ticker string, m models.FinancialMetric) []interface{} {
	return []interface{}{
		ticker, m.ReportPeriod, string(m.Period), m.Currency,
		nullFloat(m.MarketCap), nullFloat(m.EnterpriseValue), nullFloat(m.PERatio),
		nullFloat(m.PBRatio), nullFloat(m.PSRatio), nullFloat(m.EVToEBITDA),
		nullFloat(m.ROE), nullFloat(m.ROA), nullFloat(m.GrossMargin),
		nullFloat(m.OperatingMargin), nullFloat(m.NetMargin), nullFloat(m.RevenueGrowth),
		nullFloat(m.EarningsGrowth), nullFloat(m.DividendYield), nullFloat(m.PayoutRatio),
		nullFloat(m.CurrentRatio), nullFloat(m.QuickRatio), nullFloat(m.DebtToEquity),
		nullFloat(m.InterestCoverage),
	}
}

// UpsertFinancialMetrics writes a batch of metrics in one transaction,
// matching rows on (ticker, report_period, period).
func (db *DB) UpsertFinancialMetrics(ctx context.Context, ticker string, metrics []models.FinancialMetric, overwrite bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range metrics {
		if m.Period == "" {
			m.Period = models.PeriodTTM
		}

		var id int64
		err := tx.QueryRowContext(ctx,
			db.rebind(`SELECT id FROM financial_metrics WHERE ticker = ? AND report_period = ? AND period = ?`),
			ticker, m.ReportPeriod, string(m.Period)).Scan(&id)

		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				db.rebind(`INSERT INTO financial_metrics (`+metricColumns+`)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				metricArgs(ticker, m)...)
			if err != nil {
				return fmt.Errorf("failed to insert financial metric: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up financial metric: %w", err)
		case overwrite:
			args := append(metricArgs(ticker, m)[3:], id)
			_, err = tx.ExecContext(ctx,
				db.rebind(`UPDATE financial_metrics SET currency = ?, market_cap = ?, enterprise_value = ?,
					pe_ratio = ?, pb_ratio = ?, ps_ratio = ?, ev_to_ebitda = ?, roe = ?, roa = ?,
					gross_margin = ?, operating_margin = ?, net_margin = ?, revenue_growth = ?,
					earnings_growth = ?, dividend_yield = ?, payout_ratio = ?, current_ratio = ?,
					quick_ratio = ?, debt_to_equity = ?, interest_coverage = ?, updated_at = CURRENT_TIMESTAMP
					WHERE id = ?`),
				args...)
			if err != nil {
				return fmt.Errorf("failed to update financial metric: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit financial metrics: %w", err)
	}
	return nil
}
