package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketsurveil/surveil/internal/adapters"
	"github.com/marketsurveil/surveil/internal/api"
	"github.com/marketsurveil/surveil/internal/config"
	"github.com/marketsurveil/surveil/internal/metrics"
	"github.com/marketsurveil/surveil/internal/orchestrator"
	"github.com/marketsurveil/surveil/internal/ports"
)

const defaultConfigPath = "config/local.toml"

func main() {
	logger := buildLogger()
	defer logger.Sync()

	logger.Info("starting market surveillance engine")

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	cfgMgr := config.NewManager(cfg)
	logger.Info("configuration loaded", zap.String("preset", cfg.Preset))

	collector := metrics.NewCollector()

	deps := orchestrator.Deps{
		Catalog:   buildCatalog(cfg),
		Stream:    buildStream(cfg, logger),
		Store:     buildStore(cfg),
		Webhook:   buildWebhook(cfg),
		ConfigMgr: cfgMgr,
		Metrics:   collector,
		Logger:    logger,
	}

	orch := orchestrator.New(deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Initialize(ctx); err != nil {
		logger.Fatal("failed to initialize orchestrator", zap.Error(err))
	}
	if err := orch.Start(ctx); err != nil {
		logger.Fatal("failed to start orchestrator", zap.Error(err))
	}

	apiServer := api.NewServer(cfg.Server, orch, cfgMgr, collector, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Run(ctx); err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("all components started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := orch.Stop(stopCtx); err != nil {
		logger.Error("orchestrator stop error", zap.Error(err))
	}
	stopCancel()

	cancel()
	wg.Wait()
	logger.Info("shutdown complete")
}

func buildLogger() *zap.Logger {
	var logger *zap.Logger
	var err error
	if os.Getenv("SURVEIL_ENV") == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func loadConfig() (config.Config, error) {
	path := os.Getenv("SURVEIL_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.LoadTOMLOverride(config.Balanced(), path)
	if err != nil {
		return config.Config{}, err
	}
	if preset := os.Getenv("SURVEIL_PRESET"); preset != "" {
		base, err := config.FromPreset(preset)
		if err != nil {
			return config.Config{}, err
		}
		cfg, err = config.LoadTOMLOverride(base, path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func buildCatalog(cfg config.Config) ports.MarketCatalog {
	if cfg.Venue.CatalogURL == "" {
		return adapters.NewMemoryCatalog(nil)
	}
	return adapters.NewHTTPCatalog(cfg.Venue.CatalogURL)
}

func buildStream(cfg config.Config, logger *zap.Logger) ports.OrderBookStream {
	if cfg.Venue.OrderBookWSURL == "" {
		return nil // scan-loop-only mode; no live book consumer
	}
	delay := time.Duration(cfg.Venue.ReconnectDelaySecs) * time.Second
	return adapters.NewWSOrderBookStream(cfg.Venue.OrderBookWSURL, delay, logger)
}

func buildStore(cfg config.Config) ports.PersistentStore {
	if cfg.Store.RedisAddr == "" {
		return adapters.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})
	return adapters.NewRedisStore(client)
}

func buildWebhook(cfg config.Config) ports.Webhook {
	if cfg.Alerting.WebhookURL == "" {
		return adapters.NewLogWebhook()
	}
	return adapters.NewHTTPWebhook(cfg.Alerting.WebhookURL)
}
