package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"market-data-cache/internal/models"
)

func bar(ticker, date string, close float64) models.PriceBar {
	return models.PriceBar{Ticker: ticker, Time: date + "T00:00:00Z", Close: close}
}

func TestMerge(t *testing.T) {
	t.Run("deduplicates by natural key", func(t *testing.T) {
		s := New()
		s.Merge(models.EntityPrices, "AAPL", []models.Record{
			bar("AAPL", "2024-01-02", 100),
			bar("AAPL", "2024-01-03", 101),
		})
		s.Merge(models.EntityPrices, "AAPL", []models.Record{
			bar("AAPL", "2024-01-03", 999),
			bar("AAPL", "2024-01-04", 102),
		})

		recs := s.Get(models.EntityPrices, "AAPL", Filter{})
		assert.Len(t, recs, 3)

		// the first write wins for the duplicated day
		for _, r := range recs {
			b := r.(models.PriceBar)
			if b.DateKey() == "2024-01-03" {
				assert.Equal(t, 101.0, b.Close)
			}
		}
	})

	t.Run("duplicate within one batch kept once", func(t *testing.T) {
		s := New()
		s.Merge(models.EntityPrices, "AAPL", []models.Record{
			bar("AAPL", "2024-01-02", 100),
			bar("AAPL", "2024-01-02", 200),
		})
		assert.Equal(t, 1, s.Count(models.EntityPrices, "AAPL"))
	})

	t.Run("tickers are isolated", func(t *testing.T) {
		s := New()
		s.Merge(models.EntityPrices, "AAPL", []models.Record{bar("AAPL", "2024-01-02", 100)})
		s.Merge(models.EntityPrices, "MSFT", []models.Record{bar("MSFT", "2024-01-02", 400)})

		assert.Equal(t, 1, s.Count(models.EntityPrices, "AAPL"))
		assert.Equal(t, 1, s.Count(models.EntityPrices, "MSFT"))
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		s := New()
		s.Merge(models.EntityPrices, "AAPL", nil)
		assert.Equal(t, 0, s.Count(models.EntityPrices, "AAPL"))
	})
}

func TestGet(t *testing.T) {
	s := New()
	s.Merge(models.EntityPrices, "AAPL", []models.Record{
		bar("AAPL", "2024-01-02", 100),
		bar("AAPL", "2024-01-03", 101),
		bar("AAPL", "2024-01-04", 102),
	})

	t.Run("date range bounds", func(t *testing.T) {
		recs := s.Get(models.EntityPrices, "AAPL", Filter{StartDate: "2024-01-03", EndDate: "2024-01-03"})
		assert.Len(t, recs, 1)
		assert.Equal(t, "2024-01-03", recs[0].DateKey())
	})

	t.Run("limit", func(t *testing.T) {
		recs := s.Get(models.EntityPrices, "AAPL", Filter{Limit: 2})
		assert.Len(t, recs, 2)
	})

	t.Run("unknown ticker returns nothing", func(t *testing.T) {
		assert.Empty(t, s.Get(models.EntityPrices, "TSLA", Filter{}))
	})

	t.Run("zero filter returns all", func(t *testing.T) {
		assert.Len(t, s.Get(models.EntityPrices, "AAPL", Filter{}), 3)
	})
}

func TestClear(t *testing.T) {
	s := New()
	s.Merge(models.EntityPrices, "AAPL", []models.Record{bar("AAPL", "2024-01-02", 100)})
	s.Merge(models.EntityNews, "AAPL", []models.Record{
		models.NewsArticle{Ticker: "AAPL", Date: "2024-01-02", Title: "t"},
	})
	s.Merge(models.EntityPrices, "MSFT", []models.Record{bar("MSFT", "2024-01-02", 400)})

	s.Clear("AAPL")

	assert.Equal(t, 0, s.Count(models.EntityPrices, "AAPL"))
	assert.Equal(t, 0, s.Count(models.EntityNews, "AAPL"))
	assert.Equal(t, 1, s.Count(models.EntityPrices, "MSFT"))
}
