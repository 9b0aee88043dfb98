package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/config"
)

// Version is stamped at build time.
var Version = "0.1.0"

// SubAPI is a handler group that mounts itself on the shared API router.
type SubAPI interface {
	RegisterRoutes(r chi.Router)
}

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	db         *sql.DB
	metrics    *Metrics
	limiter    *RateLimiter

	requestCount int64
	errorCount   int64
	startTime    time.Time
}

// NewServer wires the HTTP surface: operational endpoints on the top-level
// router, the analytics API mounted under /api/v1.
func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, apis ...SubAPI) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger,
		db:        db,
		router:    mux.NewRouter(),
		metrics:   NewMetrics(),
		limiter:   NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		startTime: time.Now(),
	}

	s.setupRoutes(apis)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(apis []SubAPI) {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	apiRouter := chi.NewRouter()
	apiRouter.Use(RateLimitMiddleware(s.limiter, s.metrics))
	for _, sub := range apis {
		sub.RegisterRoutes(apiRouter)
	}
	s.router.PathPrefix("/api/v1").Handler(apiRouter)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := true
	var dbStatus string
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			ready = false
			dbStatus = err.Error()
		} else {
			dbStatus = "ok"
		}
	} else {
		dbStatus = "not configured"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":     ready,
		"database":  dbStatus,
		"memory_mb": getMemoryUsageMB(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(version)
}

func (s *Server) Start() error {
	s.logger.Info("starting server", zap.Int("port", s.config.Server.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func getMemoryUsageMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}

// Router exposes the top-level router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) countRequest() { atomic.AddInt64(&s.requestCount, 1) }
func (s *Server) countError()   { atomic.AddInt64(&s.errorCount, 1) }
