package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/analytics"
	"github.com/MesaForge/gastrolytics/internal/cache"
)

// AnalyticsHandler serves the aggregation endpoints, fronted by the response
// cache.
type AnalyticsHandler struct {
	engine   *analytics.Engine
	advanced *analytics.AdvancedEngine
	cache    cache.Cache
	ttl      time.Duration
	metrics  *Metrics
	logger   *zap.Logger
}

func NewAnalyticsHandler(engine *analytics.Engine, advanced *analytics.AdvancedEngine, store cache.Cache, ttl time.Duration, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		engine:   engine,
		advanced: advanced,
		cache:    store,
		ttl:      ttl,
		metrics:  NewMetrics(),
		logger:   logger,
	}
}

// RegisterRoutes registers all analytics API routes
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Get("/brands/list", h.ListBrands)
		r.Get("/stores/list", h.ListStores)

		r.Get("/overview", h.Overview)
		r.Get("/products/top", h.TopProducts)
		r.Get("/channels", h.Channels)
		r.Get("/stores", h.Stores)
		r.Get("/sales/trend", h.SalesTrend)
		r.Get("/sales/hourly", h.HourlyDistribution)
		r.Get("/sales/weekday", h.WeekdayDistribution)
		r.Get("/categories", h.Categories)

		r.Get("/delivery/performance", h.DeliveryPerformance)
		r.Get("/customers/rfm", h.CustomerRFM)
		r.Get("/customers/churn-risk", h.ChurnRiskCustomers)
		r.Get("/products/by-context", h.ProductsByContext)
		r.Get("/sales/heatmap", h.SalesHeatmap)
		r.Get("/stores/performance", h.StorePerformance)
	})
}

// filterKey flattens a filter into cache key parts.
func filterKey(f analytics.Filter) []string {
	return []string{
		strconv.FormatInt(f.BrandID, 10),
		f.StartDate.Format(dateLayout),
		f.EndDate.Format(dateLayout),
		joinIDs(f.StoreIDs),
		joinIDs(f.ChannelIDs),
	}
}

func contextFilterKey(f analytics.ContextFilter) []string {
	parts := filterKey(f.Filter)
	parts = append(parts,
		intPtrKey(f.Weekday),
		intPtrKey(f.HourStart),
		intPtrKey(f.HourEnd),
	)
	if f.ChannelID != nil {
		parts = append(parts, strconv.FormatInt(*f.ChannelID, 10))
	} else {
		parts = append(parts, "")
	}
	return parts
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func intPtrKey(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// cached serves key from the cache if fresh, otherwise computes the response
// and stores it. Cache failures degrade to a direct computation.
func (h *AnalyticsHandler) cached(w http.ResponseWriter, r *http.Request, endpoint, key string, fetch func() (interface{}, error)) {
	if data, ok, err := h.cache.Get(r.Context(), key); err != nil {
		h.logger.Warn("cache get", zap.String("key", key), zap.Error(err))
	} else if ok {
		h.metrics.CacheHits.WithLabelValues(endpoint).Inc()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write(data)
		return
	}
	h.metrics.CacheMisses.WithLabelValues(endpoint).Inc()

	result, err := fetch()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, fmt.Errorf("encode response: %w", err))
		return
	}
	if err := h.cache.Set(r.Context(), key, data, h.ttl); err != nil {
		h.logger.Warn("cache set", zap.String("key", key), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	_, _ = w.Write(data)
}

// ListBrands lists the brand catalog. Not cached: it backs selection UIs and
// must reflect catalog changes immediately.
func (h *AnalyticsHandler) ListBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.engine.ListBrands(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, brands)
}

// ListStores lists the active stores of a brand.
func (h *AnalyticsHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil || brandID <= 0 {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("brand_id is required"))
		return
	}

	stores, err := h.engine.ListStores(r.Context(), brandID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, stores)
}

func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "overview", cache.Key("overview", filterKey(f)...), func() (interface{}, error) {
		return h.engine.Overview(r.Context(), f)
	})
}

func (h *AnalyticsHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := parseLimit(r, 10, 100)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	key := cache.Key("products_top", append(filterKey(f), strconv.Itoa(limit))...)
	h.cached(w, r, "products_top", key, func() (interface{}, error) {
		return h.engine.TopProducts(r.Context(), f, limit)
	})
}

func (h *AnalyticsHandler) Channels(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "channels", cache.Key("channels", filterKey(f)...), func() (interface{}, error) {
		return h.engine.Channels(r.Context(), f)
	})
}

func (h *AnalyticsHandler) Stores(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "stores", cache.Key("stores", filterKey(f)...), func() (interface{}, error) {
		return h.engine.Stores(r.Context(), f)
	})
}

func (h *AnalyticsHandler) SalesTrend(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "sales_trend", cache.Key("sales_trend", filterKey(f)...), func() (interface{}, error) {
		return h.engine.SalesTrend(r.Context(), f)
	})
}

func (h *AnalyticsHandler) HourlyDistribution(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "sales_hourly", cache.Key("sales_hourly", filterKey(f)...), func() (interface{}, error) {
		return h.engine.HourlyDistribution(r.Context(), f)
	})
}

func (h *AnalyticsHandler) WeekdayDistribution(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "sales_weekday", cache.Key("sales_weekday", filterKey(f)...), func() (interface{}, error) {
		return h.engine.WeekdayDistribution(r.Context(), f)
	})
}

func (h *AnalyticsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "categories", cache.Key("categories", filterKey(f)...), func() (interface{}, error) {
		return h.engine.Categories(r.Context(), f)
	})
}

func (h *AnalyticsHandler) DeliveryPerformance(w http.ResponseWriter, r *http.Request) {
	f, err := parseContextFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	key := cache.Key("delivery_performance", contextFilterKey(f)...)
	h.cached(w, r, "delivery_performance", key, func() (interface{}, error) {
		overall, regions, trend, err := h.advanced.DeliveryPerformance(r.Context(), f)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"overall_metrics": overall,
			"by_region":       regions,
			"daily_trend":     trend,
		}, nil
	})
}

func (h *AnalyticsHandler) CustomerRFM(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "customers_rfm", cache.Key("customers_rfm", filterKey(f)...), func() (interface{}, error) {
		return h.advanced.CustomerRFM(r.Context(), f, f.EndDate)
	})
}

func (h *AnalyticsHandler) ChurnRiskCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := analytics.ChurnParams{}

	if v := q.Get("brand_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid brand_id %q", v))
			return
		}
		params.BrandID = id
	}
	var err error
	if params.StoreIDs, err = parseIDList(q.Get("store_ids")); err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	if v := q.Get("min_purchases"); v != "" {
		if params.MinPurchases, err = strconv.Atoi(v); err != nil || params.MinPurchases < 1 {
			h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid min_purchases %q", v))
			return
		}
	}
	if v := q.Get("days_inactive"); v != "" {
		if params.DaysInactive, err = strconv.Atoi(v); err != nil || params.DaysInactive < 1 {
			h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid days_inactive %q", v))
			return
		}
	}
	if params.Limit, err = parseLimit(r, 100, 1000); err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	key := cache.Key("customers_churn_risk",
		strconv.FormatInt(params.BrandID, 10), joinIDs(params.StoreIDs),
		strconv.Itoa(params.MinPurchases), strconv.Itoa(params.DaysInactive),
		strconv.Itoa(params.Limit))
	h.cached(w, r, "customers_churn_risk", key, func() (interface{}, error) {
		return h.advanced.ChurnRiskCustomers(r.Context(), params)
	})
}

func (h *AnalyticsHandler) ProductsByContext(w http.ResponseWriter, r *http.Request) {
	f, err := parseContextFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := parseLimit(r, 20, 100)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	key := cache.Key("products_by_context", append(contextFilterKey(f), strconv.Itoa(limit))...)
	h.cached(w, r, "products_by_context", key, func() (interface{}, error) {
		return h.advanced.ProductsByContext(r.Context(), f, limit)
	})
}

func (h *AnalyticsHandler) SalesHeatmap(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.cached(w, r, "sales_heatmap", cache.Key("sales_heatmap", filterKey(f)...), func() (interface{}, error) {
		return h.advanced.SalesHeatmap(r.Context(), f)
	})
}

func (h *AnalyticsHandler) StorePerformance(w http.ResponseWriter, r *http.Request) {
	f, err := parseContextFilter(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	key := cache.Key("stores_performance", contextFilterKey(f)...)
	h.cached(w, r, "stores_performance", key, func() (interface{}, error) {
		return h.advanced.StorePerformance(r.Context(), f)
	})
}

func (h *AnalyticsHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) respondError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("API error", zap.Error(err), zap.Int("status", status))
	h.respondJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
