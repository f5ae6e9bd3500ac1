package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/veloramarket/push-engine/internal/campaign"
	"github.com/veloramarket/push-engine/internal/composer"
	"github.com/veloramarket/push-engine/internal/config"
	"github.com/veloramarket/push-engine/internal/engine"
	"github.com/veloramarket/push-engine/internal/gateway"
	"github.com/veloramarket/push-engine/internal/handler"
	"github.com/veloramarket/push-engine/internal/infra/postgresql"
	"github.com/veloramarket/push-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/veloramarket/push-engine/internal/infra/redis"
	"github.com/veloramarket/push-engine/internal/ledger"
	"github.com/veloramarket/push-engine/internal/observability"
	"github.com/veloramarket/push-engine/internal/promo"
	"github.com/veloramarket/push-engine/internal/provider"
	"github.com/veloramarket/push-engine/internal/registry"
	"github.com/veloramarket/push-engine/internal/storefront"
	"github.com/veloramarket/push-engine/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewQuotaLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("quota limiter initialization failed", zap.Error(err))
	}

	var pushProvider provider.PushProvider
	if cfg.FCMServerKey != "" {
		fcm, err := provider.NewFCMProvider(cfg.FCMServerKey, cfg.FCMEndpoint, cfg.ProviderTimeout())
		if err != nil {
			logger.Fatal("fcm provider initialization failed", zap.Error(err))
		}
		pushProvider = fcm
	} else {
		logger.Warn("FCM_SERVER_KEY is not set, all deliveries will fail")
		pushProvider = provider.NewNopProvider()
	}

	metrics := observability.NewMetrics()

	tokens := registry.NewGormTokenStore(db)
	recorder := ledger.NewGormRecorder(db)
	store := storefront.NewGormStore(db)

	catalog := promo.DefaultCatalog()
	selector, err := promo.NewSelector(catalog, logger)
	if err != nil {
		logger.Fatal("promotion selector initialization failed", zap.Error(err))
	}
	comp := composer.NewComposer(logger)

	gw, err := gateway.NewGateway(tokens, pushProvider, rateLimiter, cfg.ProviderTimeout(), logger)
	if err != nil {
		logger.Fatal("delivery gateway initialization failed", zap.Error(err))
	}
	gw.SetMetrics(metrics)
	defer gw.Close()

	location, err := time.LoadLocation(cfg.CampaignTimezone)
	if err != nil {
		logger.Fatal("invalid campaign timezone", zap.String("timezone", cfg.CampaignTimezone), zap.Error(err))
	}

	campaignDeps := &campaign.Deps{
		Tokens:   tokens,
		Gateway:  gw,
		Catalog:  catalog,
		Composer: comp,
		Ledger:   recorder,
		Store:    store,
		Logger:   logger,
	}
	campaigns, err := campaign.BuildCampaigns(campaignDeps, campaign.Config{
		DailyDealHour:      cfg.DailyDealHour,
		BehavioralInterval: cfg.BehavioralInterval(),
	})
	if err != nil {
		logger.Fatal("campaign construction failed", zap.Error(err))
	}

	scheduler, err := campaign.NewScheduler(campaigns, campaign.SystemClock(), location, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	scheduler.SetMetrics(metrics)

	if err := scheduler.Start(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	eng, err := engine.New(gw, selector, comp, recorder, scheduler, logger)
	if err != nil {
		logger.Fatal("engine initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterNotificationRoutes(app, eng, tokens); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("push-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := scheduler.Stop(); err != nil {
		logger.Warn("scheduler stop", zap.Error(err))
	}
}
