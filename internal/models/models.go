// Package models defines the entity records stored and served by the cache.
// Every record belongs to exactly one ticker and carries a natural key that
// deduplicates it within a tier.
package models

import "strings"

// EntityType identifies one of the cached datasets. The string value doubles
// as the dataset segment of fast-cache keys.
type EntityType string

const (
	EntityPrices        EntityType = "prices"
	EntityMetrics       EntityType = "metrics"
	EntityLineItems     EntityType = "line_items"
	EntityInsiderTrades EntityType = "insider_trades"
	EntityNews          EntityType = "company_news"
)

// AllEntityTypes lists every dataset in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityPrices, EntityMetrics, EntityLineItems, EntityInsiderTrades, EntityNews}
}

// PeriodKind is the reporting period of a financial record.
type PeriodKind string

const (
	PeriodAnnual    PeriodKind = "annual"
	PeriodQuarterly PeriodKind = "quarterly"
	PeriodTTM       PeriodKind = "ttm"
)

// Record is implemented by every entity type. NaturalKey uniquely identifies
// a record within (entity type, ticker); DateKey returns the record's
// qualifying date field for client-side range filters, or "" when the record
// has none.
type Record interface {
	NaturalKey() string
	DateKey() string
}

// PriceBar is one daily OHLCV bar.
type PriceBar struct {
	Ticker string  `json:"ticker"`
	Time   string  `json:"time"` // ISO-8601
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume int64   `json:"volume"`
}

func (p PriceBar) NaturalKey() string { return p.Ticker + "|" + p.Time }
func (p PriceBar) DateKey() string    { return DateOnly(p.Time) }

// FinancialMetric is one set of valuation and profitability ratios for a
// report period. Ratio fields are pointers because the upstream provider
// omits whatever it cannot compute.
type FinancialMetric struct {
	Ticker           string     `json:"ticker"`
	ReportPeriod     string     `json:"report_period"`
	Period           PeriodKind `json:"period"`
	Currency         string     `json:"currency"`
	MarketCap        *float64   `json:"market_cap"`
	EnterpriseValue  *float64   `json:"enterprise_value"`
	PERatio          *float64   `json:"pe_ratio"`
	PBRatio          *float64   `json:"pb_ratio"`
	PSRatio          *float64   `json:"ps_ratio"`
	EVToEBITDA       *float64   `json:"ev_to_ebitda"`
	ROE              *float64   `json:"roe"`
	ROA              *float64   `json:"roa"`
	GrossMargin      *float64   `json:"gross_margin"`
	OperatingMargin  *float64   `json:"operating_margin"`
	NetMargin        *float64   `json:"net_margin"`
	RevenueGrowth    *float64   `json:"revenue_growth"`
	EarningsGrowth   *float64   `json:"earnings_growth"`
	DividendYield    *float64   `json:"dividend_yield"`
	PayoutRatio      *float64   `json:"payout_ratio"`
	CurrentRatio     *float64   `json:"current_ratio"`
	QuickRatio       *float64   `json:"quick_ratio"`
	DebtToEquity     *float64   `json:"debt_to_equity"`
	InterestCoverage *float64   `json:"interest_coverage"`
}

func (m FinancialMetric) NaturalKey() string {
	return m.Ticker + "|" + m.ReportPeriod + "|" + string(m.Period)
}
func (m FinancialMetric) DateKey() string { return DateOnly(m.ReportPeriod) }

// LineItem carries the open-ended statement lines of one report period as a
// label -> value document.
type LineItem struct {
	Ticker       string             `json:"ticker"`
	ReportPeriod string             `json:"report_period"`
	Period       PeriodKind         `json:"period"`
	Currency     string             `json:"currency"`
	Items        map[string]float64 `json:"items"`
}

func (l LineItem) NaturalKey() string {
	return l.Ticker + "|" + l.ReportPeriod + "|" + string(l.Period)
}
func (l LineItem) DateKey() string { return DateOnly(l.ReportPeriod) }

// InsiderTrade is one reported insider transaction.
type InsiderTrade struct {
	Ticker           string   `json:"ticker"`
	FilingDate       string   `json:"filing_date"`
	Name             string   `json:"name"`
	Position         string   `json:"position"`
	TransactionType  string   `json:"transaction_type"`
	TransactionDate  string   `json:"transaction_date"`
	Shares           int64    `json:"shares"`
	PricePerShare    *float64 `json:"price_per_share"`
	TotalValue       *float64 `json:"total_value"`
	SharesOwnedAfter *int64   `json:"shares_owned_after"`
}

func (t InsiderTrade) NaturalKey() string {
	return t.Ticker + "|" + t.FilingDate + "|" + t.Name + "|" + t.TransactionDate
}
func (t InsiderTrade) DateKey() string { return DateOnly(t.FilingDate) }

// NewsArticle is one news item, optionally enriched by a later analysis pass.
type NewsArticle struct {
	Ticker           string             `json:"ticker"`
	Date             string             `json:"date"`
	Title            string             `json:"title"`
	URL              string             `json:"url"`
	Source           string             `json:"source"`
	Author           string             `json:"author"`
	Sentiment        string             `json:"sentiment"`
	Summary          string             `json:"summary"`
	Categories       []string           `json:"categories"`
	Entities         map[string]string  `json:"entities"`
	RelatedTickers   []string           `json:"related_tickers"`
	TickerSentiments map[string]float64 `json:"ticker_sentiments"`
}

// NaturalKey prefers the URL; articles scraped without one fall back to the
// title.
func (n NewsArticle) NaturalKey() string {
	if n.URL != "" {
		return n.Ticker + "|" + n.Date + "|" + n.URL
	}
	return n.Ticker + "|" + n.Date + "|" + n.Title
}
func (n NewsArticle) DateKey() string { return DateOnly(n.Date) }

// DateOnly strips the time portion of an ISO-8601 timestamp.
func DateOnly(ts string) string {
	if i := strings.IndexByte(ts, 'T'); i >= 0 {
		return ts[:i]
	}
	return ts
}
