package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"market-data-cache/internal/models"
)

// Fetcher supplies raw records from the external financial-data provider.
// Fetch failures propagate to the caller; the cache never swallows them.
type Fetcher interface {
	FetchPrices(ctx context.Context, ticker, startDate, endDate string) ([]models.PriceBar, error)
	FetchFinancialMetrics(ctx context.Context, ticker, endDate string, period models.PeriodKind, limit int) ([]models.FinancialMetric, error)
	FetchInsiderTrades(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.InsiderTrade, error)
	FetchNews(ctx context.Context, ticker, startDate, endDate string, limit int) ([]models.NewsArticle, error)
}

// Stats summarizes one entity type's stored records for a ticker. Date fields
// are omitted when no records exist.
type Stats struct {
	Count        int    `json:"count"`
	EarliestDate string `json:"earliest_date,omitempty"`
	LatestDate   string `json:"latest_date,omitempty"`
}

const (
	refreshWindowDays   = 7
	refreshMetricsLimit = 10
	refreshTradesLimit  = 1000
	refreshNewsLimit    = 1000
)

// Manager composes facade calls into ticker-wide operations: bulk refresh,
// gap detection and backfill for price series, aggregate statistics and bulk
// invalidation.
type Manager struct {
	facade  *Facade
	fetcher Fetcher
	log     *zap.Logger
}

func NewManager(facade *Facade, fetcher Fetcher, log *zap.Logger) *Manager {
	return &Manager{facade: facade, fetcher: fetcher, log: log}
}

// RefreshAll force-fetches every date-bearing entity type for a ticker and
// writes the results with overwrite set, returning per-type success so the
// caller can report partial failure. An empty end date defaults to today and
// an empty start date to seven days before the end date.
func (m *Manager) RefreshAll(ctx context.Context, ticker, startDate, endDate string) (map[models.EntityType]bool, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}

	startDate, endDate, err := normalizeRange(startDate, endDate)
	if err != nil {
		return nil, err
	}

	results := make(map[models.EntityType]bool, 4)

	bars, err := m.fetcher.FetchPrices(ctx, ticker, startDate, endDate)
	if err != nil {
		m.log.Warn("price refresh failed", zap.String("ticker", ticker), zap.Error(err))
		results[models.EntityPrices] = false
	} else {
		results[models.EntityPrices] = m.facade.SetPrices(ctx, ticker, bars, true)
	}

	metrics, err := m.fetcher.FetchFinancialMetrics(ctx, ticker, endDate, models.PeriodTTM, refreshMetricsLimit)
	if err != nil {
		m.log.Warn("metrics refresh failed", zap.String("ticker", ticker), zap.Error(err))
		results[models.EntityMetrics] = false
	} else {
		results[models.EntityMetrics] = m.facade.SetFinancialMetrics(ctx, ticker, metrics, true)
	}

	trades, err := m.fetcher.FetchInsiderTrades(ctx, ticker, startDate, endDate, refreshTradesLimit)
	if err != nil {
		m.log.Warn("insider trade refresh failed", zap.String("ticker", ticker), zap.Error(err))
		results[models.EntityInsiderTrades] = false
	} else {
		results[models.EntityInsiderTrades] = m.facade.SetInsiderTrades(ctx, ticker, trades, true)
	}

	articles, err := m.fetcher.FetchNews(ctx, ticker, startDate, endDate, refreshNewsLimit)
	if err != nil {
		m.log.Warn("news refresh failed", zap.String("ticker", ticker), zap.Error(err))
		results[models.EntityNews] = false
	} else {
		results[models.EntityNews] = m.facade.SetNews(ctx, ticker, articles, true)
	}

	return results, nil
}

func normalizeRange(startDate, endDate string) (string, string, error) {
	if endDate == "" {
		endDate = time.Now().Format("2006-01-02")
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	if startDate == "" {
		startDate = end.AddDate(0, 0, -refreshWindowDays).Format("2006-01-02")
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid start date %q: %w", startDate, err)
	}

	if start.After(end) {
		return "", "", fmt.Errorf("start date %s is after end date %s", startDate, endDate)
	}
	return startDate, endDate, nil
}

// FillMissingPriceDates diffs the business days expected in [startDate,
// endDate] against the dates present in the cached price records. When any
// are missing it re-fetches the whole range and returns the updated record
// set plus the backfilled dates. With nothing missing it returns the existing
// records and an empty list, so the call is idempotent on complete data.
func (m *Manager) FillMissingPriceDates(ctx context.Context, ticker, startDate, endDate string) ([]models.PriceBar, []string, error) {
	if ticker == "" {
		return nil, nil, fmt.Errorf("ticker is required")
	}
	if startDate == "" || endDate == "" {
		return nil, nil, fmt.Errorf("start and end dates are required")
	}
	startDate, endDate, err := normalizeRange(startDate, endDate)
	if err != nil {
		return nil, nil, err
	}

	existing := m.facade.GetPrices(ctx, ticker, startDate, endDate)
	if len(existing) == 0 {
		bars, err := m.fetcher.FetchPrices(ctx, ticker, startDate, endDate)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch prices for %s: %w", ticker, err)
		}
		if len(bars) > 0 {
			m.facade.SetPrices(ctx, ticker, bars, false)
		}
		return bars, nil, nil
	}

	present := make(map[string]struct{}, len(existing))
	for _, bar := range existing {
		present[bar.DateKey()] = struct{}{}
	}

	var missing []string
	for _, day := range businessDays(startDate, endDate) {
		if _, ok := present[day]; !ok {
			missing = append(missing, day)
		}
	}
	if len(missing) == 0 {
		return existing, nil, nil
	}

	bars, err := m.fetcher.FetchPrices(ctx, ticker, startDate, endDate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch prices for %s: %w", ticker, err)
	}
	if len(bars) > 0 {
		m.facade.SetPrices(ctx, ticker, bars, false)
	}

	return m.facade.GetPrices(ctx, ticker, startDate, endDate), missing, nil
}

// businessDays lists the weekdays in [startDate, endDate], inclusive.
// Market holidays are not modeled.
func businessDays(startDate, endDate string) []string {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil
	}

	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d.Format("2006-01-02"))
		}
	}
	return days
}

// Tickers with zero stored records yield {count: 0} with no date fields.
func reduceDates(dates []string) Stats {
	stats := Stats{Count: len(dates)}
	for _, d := range dates {
		if stats.EarliestDate == "" || d < stats.EarliestDate {
			stats.EarliestDate = d
		}
		if d > stats.LatestDate {
			stats.LatestDate = d
		}
	}
	return stats
}

// Stats reports count and earliest/latest date (or report period) per entity
// type, computed from the facade's read path with no filters.
func (m *Manager) Stats(ctx context.Context, ticker string) map[models.EntityType]Stats {
	stats := make(map[models.EntityType]Stats, 5)

	var priceDates []string
	for _, bar := range m.facade.GetPrices(ctx, ticker, "", "") {
		priceDates = append(priceDates, bar.DateKey())
	}
	stats[models.EntityPrices] = reduceDates(priceDates)

	var metricPeriods []string
	for _, metric := range m.facade.GetFinancialMetrics(ctx, ticker, "", "", 0) {
		metricPeriods = append(metricPeriods, metric.DateKey())
	}
	stats[models.EntityMetrics] = reduceDates(metricPeriods)

	var itemPeriods []string
	for _, item := range m.facade.GetLineItems(ctx, ticker, "", "") {
		itemPeriods = append(itemPeriods, item.DateKey())
	}
	stats[models.EntityLineItems] = reduceDates(itemPeriods)

	var filingDates []string
	for _, trade := range m.facade.GetInsiderTrades(ctx, ticker, "", "") {
		filingDates = append(filingDates, trade.DateKey())
	}
	stats[models.EntityInsiderTrades] = reduceDates(filingDates)

	var newsDates []string
	for _, article := range m.facade.GetNews(ctx, ticker, "", "") {
		newsDates = append(newsDates, article.DateKey())
	}
	stats[models.EntityNews] = reduceDates(newsDates)

	return stats
}

// ClearTickerCache deletes the ticker's fast-cache keys across every entity
// type. It never touches the durable store.
func (m *Manager) ClearTickerCache(ctx context.Context, ticker string) bool {
	return m.facade.InvalidateTicker(ctx, ticker)
}
