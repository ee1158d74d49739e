package cache

import (
	"context"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"market-data-cache/internal/memstore"
	"market-data-cache/internal/models"
	"market-data-cache/internal/tiers"
)

// GetPrices returns price bars for a ticker within the optional date range.
func (f *Facade) GetPrices(ctx context.Context, ticker, startDate, endDate string) []models.PriceBar {
	key := tiers.CacheKey(string(models.EntityPrices), map[string]string{
		"ticker":     ticker,
		"start_date": startDate,
		"end_date":   endDate,
	})

	var cached []models.PriceBar
	if f.cacheGet(ctx, key, &cached) && len(cached) > 0 {
		return cached
	}

	if db := f.tiers.DB(); db != nil {
		bars, err := db.ListPrices(ctx, ticker, startDate, endDate)
		if err != nil {
			f.log.Warn("durable price read failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			if len(bars) > 0 {
				f.cacheSet(ctx, key, bars)
				return bars
			}
			return []models.PriceBar{}
		}
	}

	recs := f.mem.Get(models.EntityPrices, ticker, memstore.Filter{StartDate: startDate, EndDate: endDate})
	bars := make([]models.PriceBar, 0, len(recs))
	for _, r := range recs {
		bars = append(bars, r.(models.PriceBar))
	}
	if len(bars) > 0 {
		f.cacheSet(ctx, key, bars)
	}
	return bars
}

// SetPrices writes a batch of price bars. With overwrite false an existing
// record with the same natural key keeps its stored values.
func (f *Facade) SetPrices(ctx context.Context, ticker string, bars []models.PriceBar, overwrite bool) bool {
	if len(bars) == 0 {
		return false
	}
	if f.tiers.Mode() == tiers.ModeDisabled {
		return true
	}

	durableTried, durableOK := false, false
	if db := f.tiers.DB(); db != nil {
		durableTried = true
		if err := db.UpsertPrices(ctx, ticker, bars, overwrite); err != nil {
			f.log.Error("durable price write failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			durableOK = true
		}
	}

	records := make([]models.Record, len(bars))
	for i, b := range bars {
		records[i] = b
	}
	return f.writeOutcome(ctx, models.EntityPrices, ticker, durableTried, durableOK, records)
}

// GetFinancialMetrics returns metrics for a ticker, newest report period
// first. An empty period matches all period kinds; limit <= 0 means no limit.
func (f *Facade) GetFinancialMetrics(ctx context.Context, ticker, endDate string, period models.PeriodKind, limit int) []models.FinancialMetric {
	params := map[string]string{
		"ticker":   ticker,
		"end_date": endDate,
		"period":   string(period),
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	key := tiers.CacheKey(string(models.EntityMetrics), params)

	var cached []models.FinancialMetric
	if f.cacheGet(ctx, key, &cached) && len(cached) > 0 {
		return cached
	}

	if db := f.tiers.DB(); db != nil {
		metrics, err := db.ListFinancialMetrics(ctx, ticker, endDate, period, limit)
		if err != nil {
			f.log.Warn("durable metrics read failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			if len(metrics) > 0 {
				f.cacheSet(ctx, key, metrics)
				return metrics
			}
			return []models.FinancialMetric{}
		}
	}

	recs := f.mem.Get(models.EntityMetrics, ticker, memstore.Filter{EndDate: endDate})
	metrics := make([]models.FinancialMetric, 0, len(recs))
	for _, r := range recs {
		m := r.(models.FinancialMetric)
		if period != "" && m.Period != period {
			continue
		}
		metrics = append(metrics, m)
	}
	// match the durable ordering before trimming, or the limit keeps the
	// oldest periods instead of the newest
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].ReportPeriod > metrics[j].ReportPeriod
	})
	if limit > 0 && len(metrics) > limit {
		metrics = metrics[:limit]
	}
	if len(metrics) > 0 {
		f.cacheSet(ctx, key, metrics)
	}
	return metrics
}

// SetFinancialMetrics writes a batch of metrics.
func (f *Facade) SetFinancialMetrics(ctx context.Context, ticker string, metrics []models.FinancialMetric, overwrite bool) bool {
	if len(metrics) == 0 {
		return false
	}
	if f.tiers.Mode() == tiers.ModeDisabled {
		return true
	}

	durableTried, durableOK := false, false
	if db := f.tiers.DB(); db != nil {
		durableTried = true
		if err := db.UpsertFinancialMetrics(ctx, ticker, metrics, overwrite); err != nil {
			f.log.Error("durable metrics write failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			durableOK = true
		}
	}

	records := make([]models.Record, len(metrics))
	for i, m := range metrics {
		records[i] = m
	}
	return f.writeOutcome(ctx, models.EntityMetrics, ticker, durableTried, durableOK, records)
}

// GetLineItems returns statement line items for a ticker, newest report
// period first.
func (f *Facade) GetLineItems(ctx context.Context, ticker, endDate string, period models.PeriodKind) []models.LineItem {
	key := tiers.CacheKey(string(models.EntityLineItems), map[string]string{
		"ticker":   ticker,
		"end_date": endDate,
		"period":   string(period),
	})

	var cached []models.LineItem
	if f.cacheGet(ctx, key, &cached) && len(cached) > 0 {
		return cached
	}

	if db := f.tiers.DB(); db != nil {
		items, err := db.ListLineItems(ctx, ticker, endDate, period)
		if err != nil {
			f.log.Warn("durable line item read failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			if len(items) > 0 {
				f.cacheSet(ctx, key, items)
				return items
			}
			return []models.LineItem{}
		}
	}

	recs := f.mem.Get(models.EntityLineItems, ticker, memstore.Filter{EndDate: endDate})
	items := make([]models.LineItem, 0, len(recs))
	for _, r := range recs {
		item := r.(models.LineItem)
		if period != "" && item.Period != period {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ReportPeriod > items[j].ReportPeriod
	})
	if len(items) > 0 {
		f.cacheSet(ctx, key, items)
	}
	return items
}

// SetLineItems writes a batch of line items.
func (f *Facade) SetLineItems(ctx context.Context, ticker string, items []models.LineItem, overwrite bool) bool {
	if len(items) == 0 {
		return false
	}
	if f.tiers.Mode() == tiers.ModeDisabled {
		return true
	}

	durableTried, durableOK := false, false
	if db := f.tiers.DB(); db != nil {
		durableTried = true
		if err := db.UpsertLineItems(ctx, ticker, items, overwrite); err != nil {
			f.log.Error("durable line item write failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			durableOK = true
		}
	}

	records := make([]models.Record, len(items))
	for i, item := range items {
		records[i] = item
	}
	return f.writeOutcome(ctx, models.EntityLineItems, ticker, durableTried, durableOK, records)
}

// GetInsiderTrades returns insider trades for a ticker, newest filing first.
func (f *Facade) GetInsiderTrades(ctx context.Context, ticker, startDate, endDate string) []models.InsiderTrade {
	key := tiers.CacheKey(string(models.EntityInsiderTrades), map[string]string{
		"ticker":     ticker,
		"start_date": startDate,
		"end_date":   endDate,
	})

	var cached []models.InsiderTrade
	if f.cacheGet(ctx, key, &cached) && len(cached) > 0 {
		return cached
	}

	if db := f.tiers.DB(); db != nil {
		trades, err := db.ListInsiderTrades(ctx, ticker, startDate, endDate)
		if err != nil {
			f.log.Warn("durable insider trade read failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			if len(trades) > 0 {
				f.cacheSet(ctx, key, trades)
				return trades
			}
			return []models.InsiderTrade{}
		}
	}

	recs := f.mem.Get(models.EntityInsiderTrades, ticker, memstore.Filter{StartDate: startDate, EndDate: endDate})
	trades := make([]models.InsiderTrade, 0, len(recs))
	for _, r := range recs {
		trades = append(trades, r.(models.InsiderTrade))
	}
	if len(trades) > 0 {
		f.cacheSet(ctx, key, trades)
	}
	return trades
}

// SetInsiderTrades writes a batch of insider trades.
func (f *Facade) SetInsiderTrades(ctx context.Context, ticker string, trades []models.InsiderTrade, overwrite bool) bool {
	if len(trades) == 0 {
		return false
	}
	if f.tiers.Mode() == tiers.ModeDisabled {
		return true
	}

	durableTried, durableOK := false, false
	if db := f.tiers.DB(); db != nil {
		durableTried = true
		if err := db.UpsertInsiderTrades(ctx, ticker, trades, overwrite); err != nil {
			f.log.Error("durable insider trade write failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			durableOK = true
		}
	}

	records := make([]models.Record, len(trades))
	for i, t := range trades {
		records[i] = t
	}
	return f.writeOutcome(ctx, models.EntityInsiderTrades, ticker, durableTried, durableOK, records)
}

// GetNews returns news articles for a ticker, newest first.
func (f *Facade) GetNews(ctx context.Context, ticker, startDate, endDate string) []models.NewsArticle {
	key := tiers.CacheKey(string(models.EntityNews), map[string]string{
		"ticker":     ticker,
		"start_date": startDate,
		"end_date":   endDate,
	})

	var cached []models.NewsArticle
	if f.cacheGet(ctx, key, &cached) && len(cached) > 0 {
		return cached
	}

	if db := f.tiers.DB(); db != nil {
		articles, err := db.ListNews(ctx, ticker, startDate, endDate)
		if err != nil {
			f.log.Warn("durable news read failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			if len(articles) > 0 {
				f.cacheSet(ctx, key, articles)
				return articles
			}
			return []models.NewsArticle{}
		}
	}

	recs := f.mem.Get(models.EntityNews, ticker, memstore.Filter{StartDate: startDate, EndDate: endDate})
	articles := make([]models.NewsArticle, 0, len(recs))
	for _, r := range recs {
		articles = append(articles, r.(models.NewsArticle))
	}
	if len(articles) > 0 {
		f.cacheSet(ctx, key, articles)
	}
	return articles
}

// SetNews writes a batch of news articles. Non-overwrite writes against
// existing articles fill in only enrichment fields that are still empty, so
// incremental enhancement passes can progressively enrich a stored article.
func (f *Facade) SetNews(ctx context.Context, ticker string, articles []models.NewsArticle, overwrite bool) bool {
	if len(articles) == 0 {
		return false
	}
	if f.tiers.Mode() == tiers.ModeDisabled {
		return true
	}

	durableTried, durableOK := false, false
	if db := f.tiers.DB(); db != nil {
		durableTried = true
		if err := db.UpsertNews(ctx, ticker, articles, overwrite); err != nil {
			f.log.Error("durable news write failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			durableOK = true
		}
	}

	records := make([]models.Record, len(articles))
	for i, a := range articles {
		records[i] = a
	}
	return f.writeOutcome(ctx, models.EntityNews, ticker, durableTried, durableOK, records)
}
