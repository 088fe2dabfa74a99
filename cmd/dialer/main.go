package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/infrastructure/cache"
	"github.com/outdial/outdial/internal/infrastructure/config"
	"github.com/outdial/outdial/internal/infrastructure/database"
	"github.com/outdial/outdial/internal/infrastructure/telemetry"
	"github.com/outdial/outdial/internal/infrastructure/webhooks"
	"github.com/outdial/outdial/internal/metrics"
	"github.com/outdial/outdial/internal/service/crm"
	"github.com/outdial/outdial/internal/service/dialer"
	"github.com/outdial/outdial/internal/service/telephony"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("dialer exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	campaigns := database.NewCampaignRepository(pool)
	contacts := database.NewContactRepository(pool)
	records := database.NewCallRecordRepository(pool)
	dncList := cache.NewDNCCache(redisClient, database.NewDNCRepository(pool), logger)

	selector := telephony.NewSelector(cfg.Telephony, logger)
	provider, err := selector.Provider()
	if err != nil {
		return err
	}
	if err := provider.Connect(ctx); err != nil {
		return err
	}
	defer provider.Disconnect()
	logger.Info("telephony provider connected",
		zap.String("provider", cfg.Telephony.Provider))

	registry, err := metrics.NewRegistry()
	if err != nil {
		return err
	}

	dispatcher := webhooks.NewDispatcher(webhooks.Options{
		PollInterval:  cfg.Webhooks.PollInterval,
		BaseDelay:     cfg.Webhooks.BaseDelay,
		RatePerSecond: cfg.Webhooks.RatePerSecond,
	}, registry, logger)
	dispatcher.Start(ctx)

	leads := crm.NewHTTPClient(cfg.CRM, logger)

	engine := dialer.NewEngine(
		cfg.Engine, provider,
		campaigns, contacts, records, dncList,
		leads, dispatcher, registry, logger,
	)

	health := metrics.NewHealthRegistry()
	health.Register("database", func(ctx context.Context) metrics.HealthStatus {
		if err := pool.Ping(ctx); err != nil {
			return metrics.HealthStatus{Status: metrics.HealthUnhealthy, Message: err.Error()}
		}
		return metrics.HealthStatus{Status: metrics.HealthHealthy}
	})
	health.Register("redis", func(ctx context.Context) metrics.HealthStatus {
		if err := dncList.Ping(ctx); err != nil {
			return metrics.HealthStatus{Status: metrics.HealthDegraded, Message: err.Error()}
		}
		return metrics.HealthStatus{Status: metrics.HealthHealthy}
	})
	health.Register("telephony", func(ctx context.Context) metrics.HealthStatus {
		if !provider.IsConnected() {
			return metrics.HealthStatus{Status: metrics.HealthUnhealthy, Message: "provider disconnected"}
		}
		if !engine.Healthy() {
			return metrics.HealthStatus{Status: metrics.HealthDegraded, Message: "provider reported down"}
		}
		return metrics.HealthStatus{Status: metrics.HealthHealthy}
	})
	go watchHealth(ctx, health, logger)

	engine.Run(ctx)
	logger.Info("dialer engine started")

	<-ctx.Done()
	logger.Info("shutting down")
	engine.Shutdown()
	return nil
}

func watchHealth(ctx context.Context, health *metrics.HealthRegistry, logger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, results := health.Check(ctx)
			if state != metrics.HealthHealthy {
				for name, status := range results {
					if status.Status != metrics.HealthHealthy {
						logger.Warn("health check failing",
							zap.String("check", name),
							zap.String("state", string(status.Status)),
							zap.String("message", status.Message))
					}
				}
			}
		}
	}
}
