package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/adapter/cache"
	"github.com/voltgrid/chargeflow/internal/adapter/external/credit"
	"github.com/voltgrid/chargeflow/internal/adapter/http/fiber/handlers"
	"github.com/voltgrid/chargeflow/internal/adapter/http/fiber/middleware"
	"github.com/voltgrid/chargeflow/internal/adapter/queue"
	"github.com/voltgrid/chargeflow/internal/adapter/storage/postgres"
	"github.com/voltgrid/chargeflow/internal/adapter/vault"
	wsAdapter "github.com/voltgrid/chargeflow/internal/adapter/websocket"
	"github.com/voltgrid/chargeflow/internal/observability/telemetry"
	"github.com/voltgrid/chargeflow/internal/service/alerting"
	"github.com/voltgrid/chargeflow/internal/service/events"
	"github.com/voltgrid/chargeflow/internal/service/saga"
	"github.com/voltgrid/chargeflow/internal/service/session"
	"github.com/voltgrid/chargeflow/internal/service/slotpool"
	"github.com/voltgrid/chargeflow/pkg/config"
)

const (
	serviceName    = "chargeflow"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := newLogger()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting ChargeFlow",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Resolve secrets from Vault when enabled
	if cfg.Vault.Enabled {
		if err := resolveSecrets(cfg); err != nil {
			logger.Fatal("Failed to resolve secrets from Vault", zap.Error(err))
		}
		logger.Info("Secrets resolved from Vault", zap.String("address", cfg.Vault.Address))
	}

	// 4. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, serviceVersion, cfg.OpenTelemetry.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 5. Initialize PostgreSQL Connection Pool
	db, err := postgres.NewConnection(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to get underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	// 6. Initialize Redis Cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	// 7. Initialize Message Queue
	var messageQueue queue.MessageQueue
	if cfg.RabbitMQ.Enabled {
		messageQueue, err = queue.NewRabbitMQQueue(cfg.RabbitMQ.URL, logger)
	} else {
		messageQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
	}
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err))
	}
	defer messageQueue.Close()

	// 8. Initialize Repositories
	stationRepo := postgres.NewStationRepository(db, logger)
	sessionRepo := postgres.NewSessionRepository(db, logger)
	alertRepo := postgres.NewAlertRepository(db, logger)

	// 9. Initialize WebSocket Hub (real-time station dashboard)
	wsHub := wsAdapter.NewHub(logger)
	go wsHub.Run()

	// 10. Initialize Services
	publisher := events.NewPublisher(messageQueue, events.RetryPolicy{
		InitialInterval: cfg.Events.InitialInterval,
		MaxInterval:     cfg.Events.MaxInterval,
		Multiplier:      2,
		MaxAttempts:     uint64(cfg.Events.MaxAttempts),
	}, logger)

	slots := slotpool.NewService(stationRepo, publisher, logger)
	ledger := session.NewLedger(sessionRepo, stationRepo, logger)

	alerts := alerting.NewService(alertRepo, alerting.Config{
		SendGridAPIKey: cfg.Alerting.SendGridAPIKey,
		FromEmail:      cfg.Alerting.FromEmail,
		FromName:       cfg.Alerting.FromName,
		OpsEmail:       cfg.Alerting.OpsEmail,
	}, logger)

	creditValidator := credit.NewStripeValidator(credit.Config{
		APIKey:         cfg.Credit.StripeSecretKey,
		CallTimeout:    cfg.Credit.Timeout,
		BreakerTimeout: cfg.Credit.OpenTimeout,
		MaxFailures:    cfg.Credit.MaxFailures,
	}, logger)

	orchestrator := saga.NewOrchestrator(slots, ledger, creditValidator, publisher, alerts, logger)

	// 11. Start the station status projector
	projector := events.NewStationStatusProjector(messageQueue, redisCache, wsHub, logger)
	if err := projector.Start(); err != nil {
		logger.Fatal("Failed to start station status projector", zap.Error(err))
	}

	// 12. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))

	// Health Check Endpoints
	healthHandler := handlers.NewHealthHandler(serviceVersion, redisCache)
	app.Get("/health/live", healthHandler.Liveness)
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := sqlDB.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
		}
		return healthHandler.Readiness(c)
	})

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	// API v1 Routes
	v1 := app.Group("/api/v1")

	sessionHandler := handlers.NewSessionHandler(orchestrator, ledger, sessionRepo, logger)
	v1.Post("/sessions", sessionHandler.Start)
	v1.Post("/sessions/:id/charge", sessionHandler.BeginCharging)
	v1.Post("/sessions/:id/stop", sessionHandler.Stop)
	v1.Post("/sessions/:id/cancel", sessionHandler.Cancel)
	v1.Get("/sessions/:id", sessionHandler.Get)

	stationHandler := handlers.NewStationHandler(stationRepo, redisCache, logger)
	v1.Post("/stations", stationHandler.Create)
	v1.Get("/stations/:id", stationHandler.Get)
	v1.Get("/stations/:id/status", stationHandler.GetStatus)

	alertHandler := handlers.NewAlertHandler(alertRepo, logger)
	v1.Get("/alerts", alertHandler.List)
	v1.Post("/alerts/:id/ack", alertHandler.Acknowledge)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stations", websocket.New(func(c *websocket.Conn) {
		wsHub.ServeWS(c)
	}))

	// 13. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 14. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENVIRONMENT") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// resolveSecrets overrides config values with their Vault counterparts.
// Missing secrets are not fatal; the config value stands.
func resolveSecrets(cfg *config.Config) error {
	sm, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.Mount)
	if err != nil {
		return err
	}

	if url, err := sm.GetDatabaseURL(); err == nil && url != "" {
		cfg.Database.URL = url
	}
	if key, err := sm.GetStripeSecretKey(); err == nil && key != "" {
		cfg.Credit.StripeSecretKey = key
	}
	if key, err := sm.GetSendGridAPIKey(); err == nil && key != "" {
		cfg.Alerting.SendGridAPIKey = key
	}

	return nil
}
