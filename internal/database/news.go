package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"market-data-cache/internal/models"
)

// ListNews returns news articles for a ticker, newest first, optionally
// bounded by date.
func (db *DB) ListNews(ctx context.Context, ticker, startDate, endDate string) ([]models.NewsArticle, error) {
	query := `SELECT ticker, date, title, url, source, author, sentiment, summary,
		categories, entities, related_tickers, ticker_sentiments
		FROM company_news WHERE ticker = ?`
	args := []interface{}{ticker}

	if startDate != "" {
		query += ` AND substr(date, 1, 10) >= ?`
		args = append(args, startDate)
	}
	if endDate != "" {
		query += ` AND substr(date, 1, 10) <= ?`
		args = append(args, endDate)
	}
	query += ` ORDER BY date DESC`

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query news: %w", err)
	}
	defer rows.Close()

	var articles []models.NewsArticle
	for rows.Next() {
		var a models.NewsArticle
		var title, url, source, author, sentiment, summary sql.NullString
		var categories, entities, related, sentiments sql.NullString
		if err := rows.Scan(&a.Ticker, &a.Date, &title, &url, &source, &author, &sentiment, &summary,
			&categories, &entities, &related, &sentiments); err != nil {
			return nil, fmt.Errorf("failed to scan news row: %w", err)
		}
		a.Title = title.String
		a.URL = url.String
		a.Source = source.String
		a.Author = author.String
		a.Sentiment = sentiment.String
		a.Summary = summary.String
		if err := decodeJSONColumn(categories, &a.Categories); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(entities, &a.Entities); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(related, &a.RelatedTickers); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(sentiments, &a.TickerSentiments); err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func decodeJSONColumn(col sql.NullString, dest interface{}) error {
	if col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dest); err != nil {
		return fmt.Errorf("failed to decode news column: %w", err)
	}
	return nil
}

func encodeJSONColumn(v interface{}) (string, error) {
	switch val := v.(type) {
	case []string:
		if val == nil {
			return "", nil
		}
	case map[string]string:
		if val == nil {
			return "", nil
		}
	case map[string]float64:
		if val == nil {
			return "", nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode news column: %w", err)
	}
	return string(data), nil
}

// UpsertNews writes a batch of articles in one transaction. Articles match on
// (ticker, date, url), falling back to the title when the article has no URL.
// A non-overwrite write against an existing row fills in only the enrichment
// fields (summary, categories, entities, related tickers, ticker sentiments)
// that are still empty, so repeated enhancement passes never clobber earlier
// enrichment.
func (db *DB) UpsertNews(ctx context.Context, ticker string, articles []models.NewsArticle, overwrite bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range articles {
		lookup := `SELECT id, summary, categories, entities, related_tickers, ticker_sentiments
			FROM company_news WHERE ticker = ? AND date = ?`
		args := []interface{}{ticker, a.Date}
		if a.URL != "" {
			lookup += ` AND url = ?`
			args = append(args, a.URL)
		} else {
			lookup += ` AND title = ?`
			args = append(args, a.Title)
		}

		var id int64
		var summary, categories, entities, related, sentiments sql.NullString
		err := tx.QueryRowContext(ctx, db.rebind(lookup), args...).
			Scan(&id, &summary, &categories, &entities, &related, &sentiments)

		switch {
		case err == sql.ErrNoRows:
			if err := insertNews(ctx, tx, db, ticker, a); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("failed to look up news article: %w", err)
		case overwrite:
			if err := updateNews(ctx, tx, db, id, a); err != nil {
				return err
			}
		default:
			if err := enrichNews(ctx, tx, db, id, a, summary, categories, entities, related, sentiments); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit news: %w", err)
	}
	return nil
}

func newsJSONColumns(a models.NewsArticle) (categories, entities, related, sentiments string, err error) {
	if categories, err = encodeJSONColumn(a.Categories); err != nil {
		return
	}
	if entities, err = encodeJSONColumn(a.Entities); err != nil {
		return
	}
	if related, err = encodeJSONColumn(a.RelatedTickers); err != nil {
		return
	}
	sentiments, err = encodeJSONColumn(a.TickerSentiments)
	return
}

func insertNews(ctx context.Context, tx *sql.Tx, db *DB, ticker string, a models.NewsArticle) error {
	categories, entities, related, sentiments, err := newsJSONColumns(a)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		db.rebind(`INSERT INTO company_news (ticker, date, title, url, source, author, sentiment,
			summary, categories, entities, related_tickers, ticker_sentiments)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ticker, a.Date, a.Title, a.URL, a.Source, a.Author, a.Sentiment,
		a.Summary, categories, entities, related, sentiments)
	if err != nil {
		return fmt.Errorf("failed to insert news article: %w", err)
	}
	return nil
}

func updateNews(ctx context.Context, tx *sql.Tx, db *DB, id int64, a models.NewsArticle) error {
	categories, entities, related, sentiments, err := newsJSONColumns(a)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		db.rebind(`UPDATE company_news SET title = ?, url = ?, source = ?, author = ?, sentiment = ?,
			summary = ?, categories = ?, entities = ?, related_tickers = ?, ticker_sentiments = ?,
			updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
		a.Title, a.URL, a.Source, a.Author, a.Sentiment,
		a.Summary, categories, entities, related, sentiments, id)
	if err != nil {
		return fmt.Errorf("failed to update news article: %w", err)
	}
	return nil
}

// enrichNews fills only the enrichment fields that are still empty on the
// stored row.
func enrichNews(ctx context.Context, tx *sql.Tx, db *DB, id int64, a models.NewsArticle,
	summary, categories, entities, related, sentiments sql.NullString) error {

	incomingCategories, incomingEntities, incomingRelated, incomingSentiments, err := newsJSONColumns(a)
	if err != nil {
		return err
	}

	sets := ""
	var args []interface{}
	addSet := func(column, existing, incoming string) {
		if existing != "" || incoming == "" {
			return
		}
		if sets != "" {
			sets += ", "
		}
		sets += column + " = ?"
		args = append(args, incoming)
	}

	addSet("summary", summary.String, a.Summary)
	addSet("categories", categories.String, incomingCategories)
	addSet("entities", entities.String, incomingEntities)
	addSet("related_tickers", related.String, incomingRelated)
	addSet("ticker_sentiments", sentiments.String, incomingSentiments)

	if len(args) == 0 {
		return nil
	}

	args = append(args, id)
	_, err = tx.ExecContext(ctx,
		db.rebind(`UPDATE company_news SET `+sets+`, updated_at = CURRENT_TIMESTAMP WHERE id = ?`), args...)
	if err != nil {
		return fmt.Errorf("failed to enrich news article: %w", err)
	}
	return nil
}
