// Package database implements the durable tier. One table per entity type,
// each row carrying the entity's natural-key columns, its value columns and
// created_at/updated_at timestamps. Writes run as one transaction per batch
// and honor first-write-wins unless the caller asks to overwrite.
//
// SQLite and PostgreSQL are both supported behind database/sql; queries are
// written with ? placeholders and rebound for the pgx driver.
package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
	driver string
}

// Open connects to the configured database and runs migrations.
// databaseType is "sqlite" or "postgres"; dsn is the file path for SQLite or
// a key=value connection string for PostgreSQL.
func Open(databaseType, dsn string) (*DB, error) {
	var driver string
	switch databaseType {
	case "sqlite":
		driver = "sqlite3"
	case "postgres", "postgresql":
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database type: %s", databaseType)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	wrapper := &DB{DB: db, driver: driver}
	if err := wrapper.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return wrapper, nil
}

func (db *DB) migrate() error {
	idCol := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.driver == "pgx" {
		idCol = "BIGSERIAL PRIMARY KEY"
	}

	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS prices (
			id %s,
			ticker TEXT NOT NULL,
			time TEXT NOT NULL,
			open DOUBLE PRECISION,
			close DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			volume BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, idCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS financial_metrics (
			id %s,
			ticker TEXT NOT NULL,
			report_period TEXT NOT NULL,
			period TEXT NOT NULL,
			currency TEXT,
			market_cap DOUBLE PRECISION,
			enterprise_value DOUBLE PRECISION,
			pe_ratio DOUBLE PRECISION,
			pb_ratio DOUBLE PRECISION,
			ps_ratio DOUBLE PRECISION,
			ev_to_ebitda DOUBLE PRECISION,
			roe DOUBLE PRECISION,
			roa DOUBLE PRECISION,
			gross_margin DOUBLE PRECISION,
			operating_margin DOUBLE PRECISION,
			net_margin DOUBLE PRECISION,
			revenue_growth DOUBLE PRECISION,
			earnings_growth DOUBLE PRECISION,
			dividend_yield DOUBLE PRECISION,
			payout_ratio DOUBLE PRECISION,
			current_ratio DOUBLE PRECISION,
			quick_ratio DOUBLE PRECISION,
			debt_to_equity DOUBLE PRECISION,
			interest_coverage DOUBLE PRECISION,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, idCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS line_items (
			id %s,
			ticker TEXT NOT NULL,
			report_period TEXT NOT NULL,
			period TEXT NOT NULL,
			currency TEXT,
			data TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, idCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS insider_trades (
			id %s,
			ticker TEXT NOT NULL,
			filing_date TEXT NOT NULL,
			insider_name TEXT,
			position TEXT,
			transaction_type TEXT,
			transaction_date TEXT,
			shares BIGINT,
			price_per_share DOUBLE PRECISION,
			total_value DOUBLE PRECISION,
			shares_owned_after BIGINT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, idCol),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS company_news (
			id %s,
			ticker TEXT NOT NULL,
			date TEXT NOT NULL,
			title TEXT,
			url TEXT,
			source TEXT,
			author TEXT,
			sentiment TEXT,
			summary TEXT,
			categories TEXT,
			entities TEXT,
			related_tickers TEXT,
			ticker_sentiments TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, idCol),
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_prices_natural_key ON prices(ticker, time)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_metrics_natural_key ON financial_metrics(ticker, report_period, period)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_line_items_natural_key ON line_items(ticker, report_period, period)`,
		`CREATE INDEX IF NOT EXISTS idx_insider_trades_ticker ON insider_trades(ticker, filing_date)`,
		`CREATE INDEX IF NOT EXISTS idx_company_news_ticker ON company_news(ticker, date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(db.rebind(query)); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}

	return nil
}

// rebind converts ? placeholders to the $n form required by the pgx driver.
// Queries never embed literal question marks.
func (db *DB) rebind(query string) string {
	if db.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
