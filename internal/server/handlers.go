// Package server exposes the cache over HTTP: per-entity reads and writes,
// ticker-wide refresh, stats and cache clearing.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"market-data-cache/internal/cache"
	"market-data-cache/internal/models"
	"market-data-cache/internal/tiers"
)

type Handlers struct {
	facade  *cache.Facade
	manager *cache.Manager
	tiers   *tiers.Manager
	log     *zap.Logger
}

func New(facade *cache.Facade, manager *cache.Manager, t *tiers.Manager, log *zap.Logger) *Handlers {
	return &Handlers{facade: facade, manager: manager, tiers: t, log: log}
}

// Router wires every endpoint. Entity names in the path match the dataset
// names used for cache keys.
func (h *Handlers) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/refresh/{ticker}", h.RefreshTicker).Methods("POST")
	api.HandleFunc("/stats/{ticker}", h.GetStats).Methods("GET")
	api.HandleFunc("/cache/{ticker}", h.ClearCache).Methods("DELETE")
	api.HandleFunc("/prices/{ticker}/fill", h.FillPrices).Methods("POST")
	api.HandleFunc("/{entity}/{ticker}", h.GetRecords).Methods("GET")
	api.HandleFunc("/{entity}/{ticker}", h.PutRecords).Methods("POST")

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	return router
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func parseEntity(s string) (models.EntityType, bool) {
	for _, entity := range models.AllEntityTypes() {
		if string(entity) == s {
			return entity, true
		}
	}
	return "", false
}

// GetRecords serves cached records for one entity type. Query params:
// start_date, end_date, period (metrics and line items), limit (metrics).
func (h *Handlers) GetRecords(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entity, ok := parseEntity(vars["entity"])
	if !ok {
		http.Error(w, "Unknown entity type", http.StatusNotFound)
		return
	}
	ticker := strings.ToUpper(vars["ticker"])

	query := r.URL.Query()
	startDate := query.Get("start_date")
	endDate := query.Get("end_date")
	period := models.PeriodKind(query.Get("period"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	ctx := r.Context()
	switch entity {
	case models.EntityPrices:
		writeJSON(w, http.StatusOK, h.facade.GetPrices(ctx, ticker, startDate, endDate))
	case models.EntityMetrics:
		writeJSON(w, http.StatusOK, h.facade.GetFinancialMetrics(ctx, ticker, endDate, period, limit))
	case models.EntityLineItems:
		writeJSON(w, http.StatusOK, h.facade.GetLineItems(ctx, ticker, endDate, period))
	case models.EntityInsiderTrades:
		writeJSON(w, http.StatusOK, h.facade.GetInsiderTrades(ctx, ticker, startDate, endDate))
	case models.EntityNews:
		writeJSON(w, http.StatusOK, h.facade.GetNews(ctx, ticker, startDate, endDate))
	}
}

// PutRecords stores a batch of records for one entity type. The body is a
// JSON array; ?overwrite=true replaces existing records instead of keeping
// their stored values.
func (h *Handlers) PutRecords(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entity, ok := parseEntity(vars["entity"])
	if !ok {
		http.Error(w, "Unknown entity type", http.StatusNotFound)
		return
	}
	ticker := strings.ToUpper(vars["ticker"])
	overwrite := r.URL.Query().Get("overwrite") == "true"

	ctx := r.Context()
	decoder := json.NewDecoder(r.Body)

	var stored bool
	switch entity {
	case models.EntityPrices:
		var bars []models.PriceBar
		if err := decoder.Decode(&bars); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		stored = h.facade.SetPrices(ctx, ticker, bars, overwrite)
	case models.EntityMetrics:
		var metrics []models.FinancialMetric
		if err := decoder.Decode(&metrics); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		stored = h.facade.SetFinancialMetrics(ctx, ticker, metrics, overwrite)
	case models.EntityLineItems:
		var items []models.LineItem
		if err := decoder.Decode(&items); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		stored = h.facade.SetLineItems(ctx, ticker, items, overwrite)
	case models.EntityInsiderTrades:
		var trades []models.InsiderTrade
		if err := decoder.Decode(&trades); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		stored = h.facade.SetInsiderTrades(ctx, ticker, trades, overwrite)
	case models.EntityNews:
		var articles []models.NewsArticle
		if err := decoder.Decode(&articles); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		stored = h.facade.SetNews(ctx, ticker, articles, overwrite)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"stored": stored})
}

// RefreshTicker force-fetches every date-bearing entity type from the
// provider. Returns per-type success; 502 when nothing succeeded.
func (h *Handlers) RefreshTicker(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	query := r.URL.Query()

	results, err := h.manager.RefreshAll(r.Context(), ticker, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	anyOK := false
	for _, ok := range results {
		anyOK = anyOK || ok
	}
	status := http.StatusOK
	if !anyOK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, results)
}

// FillPrices backfills missing business days in a price series. Both
// start_date and end_date are required.
func (h *Handlers) FillPrices(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	query := r.URL.Query()

	bars, missing, err := h.manager.FillMissingPriceDates(r.Context(), ticker, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prices":       bars,
		"filled_dates": missing,
	})
}

// GetStats reports record counts and date ranges per entity type.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	writeJSON(w, http.StatusOK, h.manager.Stats(r.Context(), ticker))
}

// ClearCache drops the ticker's fast-cache entries. Durable data survives.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	cleared := h.manager.ClearTickerCache(r.Context(), ticker)

	status := http.StatusOK
	if !cleared {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]bool{"cleared": cleared})
}

// HealthCheck reports the effective cache mode and per-tier health. The
// process is healthy as long as it can serve from any tier, so this only
// returns 503 when caching is disabled outright.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"mode":      h.tiers.Mode().String(),
		"timestamp": time.Now(),
	}

	if db := h.tiers.DB(); db != nil {
		if err := db.Ping(); err != nil {
			health["durable_store"] = "unhealthy"
		} else {
			health["durable_store"] = "healthy"
		}
	} else {
		health["durable_store"] = "disabled"
	}

	if rdb := h.tiers.Redis(); rdb != nil {
		if err := rdb.Health(); err != nil {
			health["fast_cache"] = "unhealthy"
		} else {
			health["fast_cache"] = "healthy"
		}
	} else {
		health["fast_cache"] = "disabled"
	}

	status := http.StatusOK
	if h.tiers.Mode() == tiers.ModeDisabled {
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
