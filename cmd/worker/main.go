package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	provisioningapp "github.com/provenant/backend/internal/application/provisioning"
	"github.com/provenant/backend/internal/infrastructure/cache"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"github.com/provenant/backend/internal/infrastructure/provisioning"
	"github.com/provenant/backend/internal/infrastructure/queue"
	"github.com/provenant/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// The worker owns tenant database provisioning and the asynchronous
// order lifecycle. It shares the server's infrastructure wiring but
// serves no HTTP traffic.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("consumer_group", cfg.Queue.ConsumerGroup),
	)

	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	dbOpts := persistence.OptionsFromConfig(&cfg.Database)
	dbOpts.Logger = logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	dbOpts.TraceEnabled = cfg.Telemetry.DBTraceEnabled

	db, err := persistence.NewDatabase(&cfg.Database, dbOpts)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	registry := tenant.NewRegistry(db, cfg.Database.TenantPrefix, persistence.TenantOpener(dbOpts), log)
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error("Error closing tenant connections", zap.Error(err))
		}
	}()
	scoped := tenant.NewScoped(registry)

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()

	streamQueue := queue.NewStreamQueue(redisClient, cfg.Queue, log)

	userRepo := persistence.NewGormUserRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(scoped)
	orderRepo := persistence.NewGormOrderRepository(scoped)

	provisioner := provisioning.NewProvisioner(&cfg.Database, cfg.Provisioning, log)
	workerService := provisioningapp.NewWorkerService(provisioner, userRepo, orderRepo, productRepo, streamQueue, scoped, log)
	workerService.Register(streamQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamQueue.Start(ctx)
	log.Info("Worker consuming", zap.Strings("topics", []string{
		queue.TopicTenantDatabaseCreation,
		queue.TopicOrderProcessing,
		queue.TopicOrderCompleted,
	}))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down worker...")

	cancel()
	streamQueue.Close()

	log.Info("Worker exited gracefully")
}
