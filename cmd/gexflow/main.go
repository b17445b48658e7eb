package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gexflow/internal/analytics"
	"gexflow/internal/api"
	"gexflow/internal/cache"
	"gexflow/internal/config"
	"gexflow/internal/logger"
	"gexflow/internal/market/stream"
	"gexflow/internal/monitor"
	"gexflow/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)
	logger.Infof("starting %s %s (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	// Cache: Redis when configured, always with in-memory fallback
	var primary cache.Cacher
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.Warnf("redis unavailable, using memory cache only: %v", err)
		} else {
			primary = redisCache
		}
	}
	cacher := cache.NewFallbackCache(primary, 10000)
	defer cacher.Close()

	// History store is optional; the service runs without persistence
	var st *store.Store
	if cfg.Database.Enabled {
		st, err = store.New(&store.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxOpen:  cfg.Database.MaxOpen,
			MaxIdle:  cfg.Database.MaxIdle,
			Timeout:  cfg.Database.Timeout,
		})
		if err != nil {
			logger.Warnf("history store unavailable, continuing without persistence: %v", err)
		} else {
			defer st.Close()
		}
	}

	metrics := monitor.NewMetrics()

	providers := analytics.Providers{}
	if cfg.Market.StreamURL != "" {
		providers.Stream = stream.NewClient(cfg.Market.StreamURL)
	}
	// Chain and price-context providers are deployment-specific
	// adapters registered here by the embedding application.

	service := analytics.New(cfg, providers, st, metrics, cacher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(ctx); err != nil {
		logger.Errorf("failed to start analytics service: %v", err)
		os.Exit(1)
	}

	server := api.NewServer(cfg, service, metrics)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logger.Errorf("server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("server shutdown: %v", err)
	}
	service.Stop()
	logger.Infof("shutdown complete")
}
