package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/cache"
	"github.com/MesaForge/gastrolytics/internal/insights"
)

// InsightsHandler serves the automatic insight feed.
type InsightsHandler struct {
	engine  *insights.Engine
	cache   cache.Cache
	ttl     time.Duration
	metrics *Metrics
	logger  *zap.Logger
}

func NewInsightsHandler(engine *insights.Engine, store cache.Cache, ttl time.Duration, logger *zap.Logger) *InsightsHandler {
	return &InsightsHandler{
		engine:  engine,
		cache:   store,
		ttl:     ttl,
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (h *InsightsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/analytics/insights/automatic", h.Automatic)
}

// Automatic runs every detector over the requested window and returns the
// ranked insight feed.
func (h *InsightsHandler) Automatic(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	key := cache.Key("insights_automatic",
		strconv.FormatInt(req.BrandID, 10),
		req.StartDate.Format(dateLayout),
		req.EndDate.Format(dateLayout),
		joinIDs(req.StoreIDs),
		strconv.Itoa(req.Limit))

	if data, ok, err := h.cache.Get(r.Context(), key); err != nil {
		h.logger.Warn("cache get", zap.String("key", key), zap.Error(err))
	} else if ok {
		h.metrics.CacheHits.WithLabelValues("insights_automatic").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write(data)
		return
	}
	h.metrics.CacheMisses.WithLabelValues("insights_automatic").Inc()

	resp, err := h.engine.Generate(r.Context(), req)
	if errors.Is(err, insights.ErrInvalidRequest) {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	for _, ins := range resp.Insights {
		h.metrics.InsightsEmitted.WithLabelValues(ins.Type, ins.Priority).Inc()
	}

	data, err := json.Marshal(resp)
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

func (h *InsightsHandler) parseRequest(r *http.Request) (insights.Request, error) {
	var req insights.Request

	q := r.URL.Query()
	brandID, err := strconv.ParseInt(q.Get("brand_id"), 10, 64)
	if err != nil || brandID <= 0 {
		return req, fmt.Errorf("brand_id is required")
	}
	req.BrandID = brandID

	start, end, err := parseDateRange(r)
	if err != nil {
		return req, err
	}
	req.StartDate = start
	req.EndDate = end

	if req.StoreIDs, err = parseIDList(q.Get("store_ids")); err != nil {
		return req, err
	}
	if req.Limit, err = parseLimit(r, 5, 20); err != nil {
		return req, err
	}
	return req, nil
}

func (h *InsightsHandler) respondError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("API error", zap.Error(err), zap.Int("status", status))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encErr != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(encErr))
	}
}
