// Package provider is the HTTP client for the financialdatasets.ai API, the
// upstream source the cache is filled from.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"market-data-cache/internal/models"
)

const defaultTimeout = 30 * time.Second

// Client talks to the market data provider. API key is optional; without one
// requests go out unauthenticated and the provider serves its free tier.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// FetchPrices returns daily price bars for the inclusive date range.
func (c *Client) FetchPrices(ctx context.Context, ticker, startDate, endDate string) ([]models.PriceBar, error) {
	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("interval", "day")
	query.Set("interval_multiplier", "1")
	query.Set("start_date", startDate)
	query.Set("end_date", endDate)

	var envelope struct {
		Prices []models.PriceBar `json:"prices"`
	}
	if err := c.get(ctx, "/prices/", query, &envelope); err != nil {
		return nil, fmt.Errorf("failed to fetch prices for %s: %w", ticker, err)
	}

	for i := range envelope.Prices {
		envelope.Prices[i].Ticker = ticker
	}
	return envelope.Prices, nil
}

// FetchFinancialMetrics returns metric snapshots with report periods at or
// before endDate, newest first.
func (c *Client) FetchFinancialMetrics(ctx context.Context, ticker, endDate string, period models.PeriodKind, limit int) ([]models.FinancialMetric, error) {
	query := url.Values{}
	query.Set("ticker", ticker)
	query.Set("report_period_lte", endDate)
	query.Set("period", string(period))
	query.Set("limit", strconv.Itoa(limit))

	var envelope struct {
		FinancialMetrics []models.FinancialMetric `json:"financial_metrics"`
	}
	if err := c.get(ctx, "/financial-metrics/", query, &envelope); err != nil {
		return nil, fmt.Errorf("failed to fetch financial metrics for %s: %w", ticker, err)
	}
	return envelope.FinancialMetrics, nil
}

// SearchLineItems queries named statement line items across report periods.
func (c *Client) SearchLineItems(ctx context.Context, ticker string, lineItems []string, endDate string, period models.PeriodKind, limit int) ([]models.LineItem, error) {
	body := map[string]interface{}{
		"tickers":    []string{ticker},
		"line_items": lineItems,
		"end_date":   endDate,
		"period":     string(period),
		"limit":      limit,
	}

	var envelope struct {
		SearchResults []models.LineItem `json:"search_results"`
	}
	if err := c.post(ctx, "/financials/search/line-items", body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to search line items for %s: %w", ticker, err)
	}

	results := envelope.SearchResults
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FetchInsiderTrades pages backwards through filings until the start date is
// covered. The provider caps each page at limit, so a full page with a start
// date means older filings may remain.
func (c *Client) FetchInsiderTrades(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.InsiderTrade, error) {
	var all []models.InsiderTrade
	currentEnd := endDate

	for {
		query := url.Values{}
		query.Set("ticker", ticker)
		query.Set("filing_date_lte", currentEnd)
		if startDate != "" {
			query.Set("filing_date_gte", startDate)
		}
		query.Set("limit", strconv.Itoa(limit))

		var envelope struct {
			InsiderTrades []models.InsiderTrade `json:"insider_trades"`
		}
		if err := c.get(ctx, "/insider-trades/", query, &envelope); err != nil {
			return nil, fmt.Errorf("failed to fetch insider trades for %s: %w", ticker, err)
		}
		if len(envelope.InsiderTrades) == 0 {
			break
		}

		all = append(all, envelope.InsiderTrades...)

		if startDate == "" || len(envelope.InsiderTrades) < limit {
			break
		}
		currentEnd = oldestDate(envelope.InsiderTrades)
		if currentEnd == "" || currentEnd <= startDate {
			break
		}
	}
	return all, nil
}

// FetchNews pages backwards through articles the same way FetchInsiderTrades
// pages through filings.
func (c *Client) FetchNews(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.NewsArticle, error) {
	var all []models.NewsArticle
	currentEnd := endDate

	for {
		query := url.Values{}
		query.Set("ticker", ticker)
		query.Set("end_date", currentEnd)
		if startDate != "" {
			query.Set("start_date", startDate)
		}
		query.Set("limit", strconv.Itoa(limit))

		var envelope struct {
			News []models.NewsArticle `json:"news"`
		}
		if err := c.get(ctx, "/news/", query, &envelope); err != nil {
			return nil, fmt.Errorf("failed to fetch news for %s: %w", ticker, err)
		}
		if len(envelope.News) == 0 {
			break
		}

		all = append(all, envelope.News...)

		if startDate == "" || len(envelope.News) < limit {
			break
		}
		oldest := ""
		for _, article := range envelope.News {
			if d := article.DateKey(); d != "" && (oldest == "" || d < oldest) {
				oldest = d
			}
		}
		if oldest == "" || oldest <= startDate {
			break
		}
		currentEnd = oldest
	}
	return all, nil
}

func oldestDate(trades []models.InsiderTrade) string {
	oldest := ""
	for _, t := range trades {
		if d := t.DateKey(); d != "" && (oldest == "" || d < oldest) {
			oldest = d
		}
	}
	return oldest
}
