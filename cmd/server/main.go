package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	catalogapp "github.com/provenant/backend/internal/application/catalog"
	identityapp "github.com/provenant/backend/internal/application/identity"
	provisioningapp "github.com/provenant/backend/internal/application/provisioning"
	tradeapp "github.com/provenant/backend/internal/application/trade"
	"github.com/provenant/backend/internal/infrastructure/auth"
	"github.com/provenant/backend/internal/infrastructure/cache"
	"github.com/provenant/backend/internal/infrastructure/config"
	"github.com/provenant/backend/internal/infrastructure/logger"
	"github.com/provenant/backend/internal/infrastructure/persistence"
	"github.com/provenant/backend/internal/infrastructure/persistence/tenant"
	"github.com/provenant/backend/internal/infrastructure/provisioning"
	"github.com/provenant/backend/internal/infrastructure/queue"
	"github.com/provenant/backend/internal/infrastructure/telemetry"
	"github.com/provenant/backend/internal/interfaces/http/handler"
	"github.com/provenant/backend/internal/interfaces/http/middleware"
	"github.com/provenant/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
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

	log.Info("Starting API server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Metrics
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Default database connection with zap-backed GORM logging
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
	log.Info("Default database connected")

	// Tenant connection registry and the per-request facade over it
	registry := tenant.NewRegistry(db, cfg.Database.TenantPrefix, persistence.TenantOpener(dbOpts), log)
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error("Error closing tenant connections", zap.Error(err))
		}
	}()
	scoped := tenant.NewScoped(registry)

	// Redis backs both the response cache and the message queue
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
	cacheStore := cache.NewStore(redisClient, cfg.Cache, log)

	// Repositories
	userRepo := persistence.NewGormUserRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(scoped)
	orderRepo := persistence.NewGormOrderRepository(scoped)

	// Application services
	jwtService := auth.NewJWTService(cfg.JWT)
	provisioner := provisioning.NewProvisioner(&cfg.Database, cfg.Provisioning, log)

	authService := identityapp.NewAuthService(userRepo, jwtService, streamQueue, log)
	productService := catalogapp.NewProductService(productRepo, cacheStore, log)
	orderService := tradeapp.NewOrderService(orderRepo, productRepo, streamQueue, cacheStore, log)
	workerService := provisioningapp.NewWorkerService(provisioner, userRepo, orderRepo, productRepo, streamQueue, scoped, log)

	// HTTP handlers
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(authService)
	productHandler := handler.NewProductHandler(productService)
	orderHandler := handler.NewOrderHandler(orderService)
	systemHandler := handler.NewSystemHandler(db, workerService)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack: request ID, panic recovery, access log, tracing,
	// security headers, CORS
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if tracerProvider.IsEnabled() {
		engine.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Probes stay outside API versioning and authentication
	engine.GET("/health", systemHandler.Health)
	engine.GET("/ready", systemHandler.Ready)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Authentication first, then tenant resolution so admin claims are
	// available, then rate limiting keyed by the resolved tenant
	r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/auth/register",
			"/api/v1/auth/register/admin",
			"/api/v1/auth/login",
			"/api/v1/auth/refresh",
		},
		Logger: log,
	}))
	r.Use(middleware.TenantResolver())

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		r.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Account routes
	authRoutes := router.NewDomainGroup("auth", "/auth")
	authRoutes.POST("/register", authHandler.Register)
	authRoutes.POST("/register/admin", authHandler.RegisterAdmin)
	authRoutes.POST("/login", authHandler.Login)
	authRoutes.POST("/refresh", authHandler.RefreshToken)
	authRoutes.GET("/me", authHandler.Me)
	authRoutes.PUT("/me", authHandler.UpdateMe)

	// Account management, admin only
	userRoutes := router.NewDomainGroup("users", "/users")
	userRoutes.Use(middleware.RequireAdmin())
	userRoutes.GET("", userHandler.List)
	userRoutes.GET("/:id", userHandler.Get)
	userRoutes.PUT("/:id", userHandler.Update)
	userRoutes.DELETE("/:id", userHandler.Delete)

	// Catalog routes; the store is picked by query param or the admin's
	// own claim. Mutations are admin-only.
	catalogRoutes := router.NewDomainGroup("catalog", "/catalog")
	catalogRoutes.GET("/products", productHandler.List)
	catalogRoutes.GET("/products/:id", productHandler.Get)
	catalogRoutes.POST("/products", middleware.RequireAdmin(), productHandler.Create)
	catalogRoutes.PUT("/products/:id", middleware.RequireAdmin(), productHandler.Update)
	catalogRoutes.DELETE("/products/:id", middleware.RequireAdmin(), productHandler.Delete)

	// Order routes
	tradeRoutes := router.NewDomainGroup("trade", "/trade")
	tradeRoutes.POST("/orders", orderHandler.Create)
	tradeRoutes.GET("/orders", middleware.RequireAdmin(), orderHandler.List)
	tradeRoutes.GET("/my/orders", orderHandler.ListMine)
	tradeRoutes.GET("/orders/:id", orderHandler.Get)
	tradeRoutes.POST("/orders/:id/items", orderHandler.AddItem)
	tradeRoutes.POST("/orders/:id/checkout", orderHandler.Checkout)
	tradeRoutes.POST("/orders/:id/cancel", orderHandler.Cancel)

	// Store-scoped routes; the path parameter names the tenant and wins
	// over every other tenant signal
	storeRoutes := router.NewDomainGroup("store", "/t/:tenant")
	storeRoutes.GET("/products", productHandler.List)
	storeRoutes.GET("/products/:id", productHandler.Get)
	storeRoutes.POST("/orders", orderHandler.Create)
	storeRoutes.POST("/orders/:id/items", orderHandler.AddItem)
	storeRoutes.POST("/orders/:id/checkout", orderHandler.Checkout)
	storeRoutes.POST("/orders/:id/cancel", orderHandler.Cancel)
	storeRoutes.GET("/orders/:id", orderHandler.Get)

	// Operational routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.POST("/migrate-tenants", middleware.RequireAdmin(), systemHandler.MigrateTenants)

	r.Register(authRoutes).
		Register(userRoutes).
		Register(catalogRoutes).
		Register(tradeRoutes).
		Register(storeRoutes).
		Register(systemRoutes)

	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
