package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market-data-cache/internal/cache"
	"market-data-cache/internal/config"
	"market-data-cache/internal/memstore"
	"market-data-cache/internal/models"
	"market-data-cache/internal/tiers"
)

type stubFetcher struct {
	bars []models.PriceBar
	err  error
}

func (s *stubFetcher) FetchPrices(ctx context.Context, ticker, startDate, endDate string) ([]models.PriceBar, error) {
	return s.bars, s.err
}

func (s *stubFetcher) FetchFinancialMetrics(ctx context.Context, ticker, endDate string, period models.PeriodKind, limit int) ([]models.FinancialMetric, error) {
	return nil, s.err
}

func (s *stubFetcher) FetchInsiderTrades(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.InsiderTrade, error) {
	return nil, s.err
}

func (s *stubFetcher) FetchNews(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.NewsArticle, error) {
	return nil, s.err
}

func setupServer(t *testing.T, fetcher cache.Fetcher) *httptest.Server {
	cfg := config.Load()
	cfg.CacheMode = "memory-only"

	tm := tiers.NewManager(cfg, zap.NewNop())
	tm.Init()
	t.Cleanup(tm.Close)

	facade := cache.NewFacade(tm, memstore.New(), time.Hour, zap.NewNop())
	manager := cache.NewManager(facade, fetcher, zap.NewNop())

	srv := httptest.NewServer(New(facade, manager, tm, zap.NewNop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestRecordEndpoints(t *testing.T) {
	srv := setupServer(t, &stubFetcher{})

	t.Run("store then read prices", func(t *testing.T) {
		body := `[{"ticker":"AAPL","time":"2024-01-02T00:00:00Z","open":185,"close":186,"high":187,"low":184,"volume":1000}]`
		resp := postJSON(t, srv.URL+"/api/prices/aapl", body)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stored map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
		assert.True(t, stored["stored"])

		// ticker is case-insensitive in the path
		get, err := http.Get(srv.URL + "/api/prices/AAPL")
		require.NoError(t, err)
		defer get.Body.Close()

		var bars []models.PriceBar
		require.NoError(t, json.NewDecoder(get.Body).Decode(&bars))
		require.Len(t, bars, 1)
		assert.Equal(t, 186.0, bars[0].Close)
	})

	t.Run("unknown entity", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/bonds/AAPL")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid body", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/prices/AAPL", "{not json")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty batch reports stored false", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/prices/AAPL", "[]")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stored map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
		assert.False(t, stored["stored"])
	})

	t.Run("metrics query filters", func(t *testing.T) {
		body := `[{"ticker":"MSFT","report_period":"2023-12-31","period":"ttm"},
			{"ticker":"MSFT","report_period":"2023-12-31","period":"annual"}]`
		resp := postJSON(t, srv.URL+"/api/metrics/MSFT", body)
		resp.Body.Close()

		get, err := http.Get(srv.URL + "/api/metrics/MSFT?period=annual")
		require.NoError(t, err)
		defer get.Body.Close()

		var metrics []models.FinancialMetric
		require.NoError(t, json.NewDecoder(get.Body).Decode(&metrics))
		require.Len(t, metrics, 1)
		assert.Equal(t, models.PeriodAnnual, metrics[0].Period)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := setupServer(t, &stubFetcher{bars: []models.PriceBar{
			{Ticker: "AAPL", Time: "2024-01-02T00:00:00Z", Close: 186},
		}})

		resp := postJSON(t, srv.URL+"/api/refresh/AAPL", "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var results map[models.EntityType]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
		assert.True(t, results[models.EntityPrices])
	})

	t.Run("provider down", func(t *testing.T) {
		srv := setupServer(t, &stubFetcher{err: fmt.Errorf("provider down")})

		resp := postJSON(t, srv.URL+"/api/refresh/AAPL", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("inverted range", func(t *testing.T) {
		srv := setupServer(t, &stubFetcher{})

		resp := postJSON(t, srv.URL+"/api/refresh/AAPL?start_date=2024-02-01&end_date=2024-01-01", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestFillEndpoint(t *testing.T) {
	srv := setupServer(t, &stubFetcher{bars: []models.PriceBar{
		{Ticker: "AAPL", Time: "2024-01-01T00:00:00Z", Close: 100},
		{Ticker: "AAPL", Time: "2024-01-02T00:00:00Z", Close: 101},
	}})

	t.Run("missing dates rejected", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/prices/AAPL/fill", "")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("fills the range", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/prices/AAPL/fill?start_date=2024-01-01&end_date=2024-01-02", "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Prices []models.PriceBar `json:"prices"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Len(t, body.Prices, 2)
	})
}

func TestStatsEndpoint(t *testing.T) {
	srv := setupServer(t, &stubFetcher{})

	body := `[{"ticker":"AAPL","time":"2024-01-02T00:00:00Z","close":186}]`
	resp := postJSON(t, srv.URL+"/api/prices/AAPL", body)
	resp.Body.Close()

	get, err := http.Get(srv.URL + "/api/stats/AAPL")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var stats map[models.EntityType]cache.Stats
	require.NoError(t, json.NewDecoder(get.Body).Decode(&stats))
	assert.Equal(t, 1, stats[models.EntityPrices].Count)
	assert.Equal(t, "2024-01-02", stats[models.EntityPrices].EarliestDate)
	assert.Equal(t, 0, stats[models.EntityNews].Count)
}

func TestClearCacheEndpoint(t *testing.T) {
	srv := setupServer(t, &stubFetcher{})

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/cache/AAPL", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["cleared"])
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupServer(t, &stubFetcher{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "memory-only", health["mode"])
	assert.Equal(t, "disabled", health["durable_store"])
	assert.Equal(t, "disabled", health["fast_cache"])
}
