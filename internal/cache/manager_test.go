package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market-data-cache/internal/models"
)

// fakeFetcher serves canned responses and records the ranges it was asked for.
type fakeFetcher struct {
	bars     []models.PriceBar
	metrics  []models.FinancialMetric
	trades   []models.InsiderTrade
	articles []models.NewsArticle
	fail     bool

	priceCalls [][2]string
}

func (f *fakeFetcher) FetchPrices(ctx context.Context, ticker, startDate, endDate string) ([]models.PriceBar, error) {
	f.priceCalls = append(f.priceCalls, [2]string{startDate, endDate})
	if f.fail {
		return nil, fmt.Errorf("provider down")
	}
	return f.bars, nil
}

func (f *fakeFetcher) FetchFinancialMetrics(ctx context.Context, ticker, endDate string, period models.PeriodKind, limit int) ([]models.FinancialMetric, error) {
	if f.fail {
		return nil, fmt.Errorf("provider down")
	}
	return f.metrics, nil
}

func (f *fakeFetcher) FetchInsiderTrades(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.InsiderTrade, error) {
	if f.fail {
		return nil, fmt.Errorf("provider down")
	}
	return f.trades, nil
}

func (f *fakeFetcher) FetchNews(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.NewsArticle, error) {
	if f.fail {
		return nil, fmt.Errorf("provider down")
	}
	return f.articles, nil
}

func setupManager(t *testing.T, fetcher Fetcher) (*Manager, *testEnv) {
	env := setupFacade(t, "durable-only")
	return NewManager(env.facade, fetcher, zap.NewNop()), env
}

func TestRefreshAll(t *testing.T) {
	ctx := context.Background()

	t.Run("refreshes all date-bearing entity types", func(t *testing.T) {
		fetcher := &fakeFetcher{
			bars:    testBars("2024-01-02"),
			metrics: []models.FinancialMetric{{Ticker: "AAPL", ReportPeriod: "2023-12-31", Period: models.PeriodTTM}},
			trades:  []models.InsiderTrade{{Ticker: "AAPL", FilingDate: "2024-01-02", Name: "X", TransactionDate: "2024-01-01"}},
			articles: []models.NewsArticle{
				{Ticker: "AAPL", Date: "2024-01-02", Title: "t", URL: "https://example.com/a"},
			},
		}
		m, env := setupManager(t, fetcher)

		results, err := m.RefreshAll(ctx, "AAPL", "2024-01-01", "2024-01-07")
		require.NoError(t, err)
		assert.Equal(t, map[models.EntityType]bool{
			models.EntityPrices:        true,
			models.EntityMetrics:       true,
			models.EntityInsiderTrades: true,
			models.EntityNews:          true,
		}, results)

		assert.Len(t, env.facade.GetPrices(ctx, "AAPL", "", ""), 1)
		assert.Len(t, env.facade.GetNews(ctx, "AAPL", "", ""), 1)
	})

	t.Run("overwrites stale records", func(t *testing.T) {
		fetcher := &fakeFetcher{bars: testBars("2024-01-02")}
		m, env := setupManager(t, fetcher)

		stale := testBars("2024-01-02")
		stale[0].Close = 1
		require.True(t, env.facade.SetPrices(ctx, "AAPL", stale, false))

		_, err := m.RefreshAll(ctx, "AAPL", "2024-01-01", "2024-01-07")
		require.NoError(t, err)

		got := env.facade.GetPrices(ctx, "AAPL", "", "")
		require.Len(t, got, 1)
		assert.Equal(t, fetcher.bars[0].Close, got[0].Close)
	})

	t.Run("fetch failures reported per type, not as an error", func(t *testing.T) {
		m, _ := setupManager(t, &fakeFetcher{fail: true})

		results, err := m.RefreshAll(ctx, "AAPL", "2024-01-01", "2024-01-07")
		require.NoError(t, err)
		for entity, ok := range results {
			assert.False(t, ok, string(entity))
		}
	})

	t.Run("empty ticker rejected", func(t *testing.T) {
		m, _ := setupManager(t, &fakeFetcher{})
		_, err := m.RefreshAll(ctx, "", "", "")
		assert.Error(t, err)
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		m, _ := setupManager(t, &fakeFetcher{})
		_, err := m.RefreshAll(ctx, "AAPL", "2024-02-01", "2024-01-01")
		assert.Error(t, err)
	})

	t.Run("defaults to a seven day window ending today", func(t *testing.T) {
		fetcher := &fakeFetcher{bars: testBars("2024-01-02")}
		m, _ := setupManager(t, fetcher)

		_, err := m.RefreshAll(ctx, "AAPL", "", "")
		require.NoError(t, err)

		require.Len(t, fetcher.priceCalls, 1)
		end, err := time.Parse("2006-01-02", fetcher.priceCalls[0][1])
		require.NoError(t, err)
		start, err := time.Parse("2006-01-02", fetcher.priceCalls[0][0])
		require.NoError(t, err)
		assert.Equal(t, 7*24*time.Hour, end.Sub(start))
	})
}

func TestFillMissingPriceDates(t *testing.T) {
	ctx := context.Background()

	// 2024-01-01 through 2024-01-04 are a Monday through Thursday
	const start, end = "2024-01-01", "2024-01-04"

	t.Run("detects and backfills missing business days", func(t *testing.T) {
		fetcher := &fakeFetcher{bars: testBars("2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04")}
		m, env := setupManager(t, fetcher)

		require.True(t, env.facade.SetPrices(ctx, "AAPL", testBars("2024-01-01", "2024-01-03"), false))

		bars, missing, err := m.FillMissingPriceDates(ctx, "AAPL", start, end)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-01-02", "2024-01-04"}, missing)
		assert.Len(t, bars, 4)
	})

	t.Run("complete series needs no fetch", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		m, env := setupManager(t, fetcher)

		require.True(t, env.facade.SetPrices(ctx, "AAPL", testBars("2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"), false))

		bars, missing, err := m.FillMissingPriceDates(ctx, "AAPL", start, end)
		require.NoError(t, err)
		assert.Empty(t, missing)
		assert.Len(t, bars, 4)
		assert.Empty(t, fetcher.priceCalls)
	})

	t.Run("weekends are not expected", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		m, env := setupManager(t, fetcher)

		// 2024-01-05 is a Friday; the 6th and 7th are a weekend
		require.True(t, env.facade.SetPrices(ctx, "AAPL", testBars("2024-01-05", "2024-01-08"), false))

		_, missing, err := m.FillMissingPriceDates(ctx, "AAPL", "2024-01-05", "2024-01-08")
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("no existing data fetches the full range", func(t *testing.T) {
		fetcher := &fakeFetcher{bars: testBars("2024-01-01", "2024-01-02")}
		m, _ := setupManager(t, fetcher)

		bars, missing, err := m.FillMissingPriceDates(ctx, "AAPL", start, end)
		require.NoError(t, err)
		assert.Nil(t, missing)
		assert.Len(t, bars, 2)
	})

	t.Run("requires both dates", func(t *testing.T) {
		m, _ := setupManager(t, &fakeFetcher{})
		_, _, err := m.FillMissingPriceDates(ctx, "AAPL", "", end)
		assert.Error(t, err)
	})

	t.Run("requires a ticker", func(t *testing.T) {
		m, _ := setupManager(t, &fakeFetcher{})
		_, _, err := m.FillMissingPriceDates(ctx, "", start, end)
		assert.Error(t, err)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()

	t.Run("counts and date ranges per entity type", func(t *testing.T) {
		m, env := setupManager(t, &fakeFetcher{})
		require.True(t, env.facade.SetPrices(ctx, "AAPL", testBars("2024-01-02", "2024-01-05", "2024-01-03"), false))

		stats := m.Stats(ctx, "AAPL")
		prices := stats[models.EntityPrices]
		assert.Equal(t, 3, prices.Count)
		assert.Equal(t, "2024-01-02", prices.EarliestDate)
		assert.Equal(t, "2024-01-05", prices.LatestDate)
	})

	t.Run("empty ticker yields zero counts and no dates", func(t *testing.T) {
		m, _ := setupManager(t, &fakeFetcher{})

		stats := m.Stats(ctx, "NONE")
		require.Len(t, stats, 5)
		for entity, s := range stats {
			assert.Equal(t, 0, s.Count, string(entity))
			assert.Empty(t, s.EarliestDate)
			assert.Empty(t, s.LatestDate)
		}
	})
}

func TestClearTickerCache(t *testing.T) {
	ctx := context.Background()

	env := setupFacade(t, "full")
	m := NewManager(env.facade, &fakeFetcher{}, zap.NewNop())

	require.True(t, env.facade.SetPrices(ctx, "AAPL", testBars("2024-01-02"), false))
	env.facade.GetPrices(ctx, "AAPL", "", "")
	require.NotEmpty(t, env.redis.Keys())

	assert.True(t, m.ClearTickerCache(ctx, "AAPL"))
	assert.Empty(t, env.redis.Keys())

	// durable rows survive the clear
	assert.Len(t, env.facade.GetPrices(ctx, "AAPL", "", ""), 1)
}
