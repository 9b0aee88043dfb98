package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/analytics"
	"github.com/MesaForge/gastrolytics/internal/api"
	"github.com/MesaForge/gastrolytics/internal/cache"
	"github.com/MesaForge/gastrolytics/internal/config"
	"github.com/MesaForge/gastrolytics/internal/database"
	"github.com/MesaForge/gastrolytics/internal/insights"
	"github.com/MesaForge/gastrolytics/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("GASTROLYTICS_CONFIG"), "path to config file")
	flag.Parse()

	bootstrap, _ := zap.NewProduction()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrap.Fatal("load config", zap.String("path", *configPath), zap.Error(err))
	}
	config.LoadFromEnv(cfg)

	logger, err := logging.New(cfg.Server.LogLevel)
	if err != nil {
		bootstrap.Fatal("configure logging", zap.Error(err))
	}
	_ = bootstrap.Sync()
	defer func() { _ = logger.Sync() }()

	db, err := database.NewPostgres(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		PoolSize: cfg.Database.PoolSize,
	})
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Ping(ctx); err != nil {
		cancel()
		logger.Fatal("ping database", zap.Error(err))
	}
	cancel()
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	store := buildCache(cfg, logger)
	defer func() { _ = store.Close() }()

	insightEngine := insights.NewEngine(db.DB(), logger, cfg.Insights)
	analyticsEngine := analytics.NewEngine(db.DB(), logger)
	advancedEngine := analytics.NewAdvancedEngine(db.DB(), logger)

	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, logger, insightEngine.SetThresholds)
		if err != nil {
			logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	server := api.NewServer(cfg, logger, db.DB(),
		api.NewAnalyticsHandler(analyticsEngine, advancedEngine, store, cfg.Cache.TTL, logger),
		api.NewInsightsHandler(insightEngine, store, cfg.Cache.TTL, logger),
	)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("gastrolytics started", zap.Int("port", cfg.Server.Port))
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildCache picks the cache backend: Redis when an address is configured,
// an in-process LRU otherwise.
func buildCache(cfg *config.Config, logger *zap.Logger) cache.Cache {
	if cfg.Cache.RedisAddr == "" {
		logger.Info("using in-memory cache", zap.Int("entries", cfg.Cache.MemoryEntries))
		return cache.NewMemory(cfg.Cache.MemoryEntries)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory cache",
			zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		return cache.NewMemory(cfg.Cache.MemoryEntries)
	}
	logger.Info("using redis cache", zap.String("addr", cfg.Cache.RedisAddr))
	return store
}
