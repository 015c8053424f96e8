package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bundlesync/engine/internal/application/bundling"
	"github.com/bundlesync/engine/internal/application/catalog"
	eventapp "github.com/bundlesync/engine/internal/application/event"
	"github.com/bundlesync/engine/internal/application/listing"
	"github.com/bundlesync/engine/internal/application/order"
	domainbundling "github.com/bundlesync/engine/internal/domain/bundling"
	listingdomain "github.com/bundlesync/engine/internal/domain/listing"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/infrastructure/cache"
	"github.com/bundlesync/engine/internal/infrastructure/config"
	"github.com/bundlesync/engine/internal/infrastructure/enrichment"
	"github.com/bundlesync/engine/internal/infrastructure/event"
	"github.com/bundlesync/engine/internal/infrastructure/logger"
	"github.com/bundlesync/engine/internal/infrastructure/marketplace"
	"github.com/bundlesync/engine/internal/infrastructure/migration"
	"github.com/bundlesync/engine/internal/infrastructure/persistence"
	"github.com/bundlesync/engine/internal/infrastructure/scheduler"
	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"github.com/bundlesync/engine/internal/interfaces/http/handler"
	"github.com/bundlesync/engine/internal/interfaces/http/middleware"
	"github.com/bundlesync/engine/internal/interfaces/http/router"
	"github.com/bundlesync/engine/migrations"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.FromConfig(cfg.Log, cfg.App.Env))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting bundlesync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	rootCtx := context.Background()

	providers, err := telemetry.Setup(rootCtx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log = providers.Bridge(log, cfg.Telemetry.ServiceName)

	// Database, logging through zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.Open(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := migration.ApplyAll(cfg.Database.DSN(), migrations.FS, log.Named("migrate")); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfigFrom(cfg.Telemetry, cfg.Database.DBName), log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	stores, err := cache.NewStores(rootCtx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to initialize coordination stores", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing coordination stores", zap.Error(err))
		}
	}()

	// Repositories and the transaction scope. Every write records its domain
	// events in the outbox inside the same transaction.
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB,
		event.NewOutboxPublisher(serializer, event.WithMaxRetries(cfg.Event.MaxRetries)))

	productRepo := persistence.NewGormProductRepository(db.DB)
	variantRepo := persistence.NewGormVariantRepository(db.DB)
	componentRepo := persistence.NewGormBundleComponentRepository(db.DB)
	listingRepo := persistence.NewGormListingRepository(db.DB)
	orderLineRepo := persistence.NewGormOrderLineRepository(db.DB)

	outboxService := eventapp.NewOutboxService(outboxRepo, log)
	metrics, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsConfig{
		Meter: providers.Meter("bundlesync"),
		Backlog: func(ctx context.Context) (int64, error) {
			stats, err := outboxService.Stats(ctx)
			if err != nil {
				return 0, err
			}
			return stats.Backlog(), nil
		},
	})
	if err != nil {
		log.Fatal("Failed to create metrics", zap.Error(err))
	}

	// Marketplace and enrichment adapters
	accounts := marketplace.NewAccountRegistry(cfg.Marketplace)
	marketplaceClient := marketplace.NewClient(marketplace.ClientConfigFrom(cfg.Marketplace), log.Named("marketplace"))
	enricher, closeEnricher, err := enrichment.FromConfig(rootCtx, cfg.Enrichment, log)
	if err != nil {
		log.Fatal("Failed to initialize enrichment", zap.Error(err))
	}
	defer func() {
		if err := closeEnricher(); err != nil {
			log.Error("Error closing enrichment client", zap.Error(err))
		}
	}()

	bundlingConfig, err := bundlingConfigFrom(cfg)
	if err != nil {
		log.Fatal("Invalid bundling configuration", zap.Error(err))
	}

	// Application services
	catalogService := catalog.NewCatalogService(scope, productRepo, variantRepo, log)
	propagator := catalog.NewStockPropagator(scope, componentRepo, log)
	ingestionService := order.NewIngestionService(scope, log)
	bundleService := bundling.NewBundleService(scope, productRepo, variantRepo, orderLineRepo, enricher, bundlingConfig, log)
	syncService := listing.NewSyncService(scope, listingRepo, variantRepo, productRepo,
		marketplaceClient, accounts, nil, stores.Flights, log,
		listing.WithRetryPolicy(retryPolicyFrom(cfg.Sync)),
		listing.WithFlightTTL(cfg.Sync.FlightTTL),
	)

	var pullService *order.PullService
	if len(accounts.Accounts()) > 0 {
		pullService = order.NewPullService(ingestionService, marketplaceClient, accounts, log,
			order.WithLookback(cfg.Orders.Lookback))
	} else {
		log.Warn("no marketplace accounts configured, order pull and listing sync cannot reach the marketplace")
	}

	// Listing sync worker pool
	syncScheduler, err := scheduler.NewSyncScheduler(scheduler.SchedulerConfig{
		Workers:    cfg.Sync.Workers,
		QueueSize:  cfg.Sync.QueueSize,
		JobTimeout: cfg.Sync.JobTimeout,
	}, syncService, log.Named("sync"))
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}
	syncScheduler.SetMetrics(metrics)
	syncService.SetQueue(syncScheduler)
	if cfg.Sync.Enabled {
		if err := syncScheduler.Start(rootCtx); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		defer func() {
			if err := syncScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping sync scheduler", zap.Error(err))
			}
		}()
	} else {
		log.Warn("listing sync workers disabled, jobs wait for the sweep of another replica")
	}

	// Event bus. The outbox delivers at least once, so every handler is
	// wrapped with its own idempotency claim.
	eventBus := event.NewInMemoryEventBus(log)
	for name, h := range map[string]shared.EventHandler{
		"stock-propagation": catalog.NewPropagationHandler(propagator, log),
		"listing-dirty":     listing.NewVariantChangedHandler(syncService, log),
	} {
		eventBus.Subscribe(event.NewIdempotentHandler(name, h, stores.Idempotency, log,
			event.WithClaimTTL(cfg.Event.IdempotencyTTL)))
	}

	if cfg.Event.ProcessorEnabled {
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, serializer, event.OutboxProcessorConfig{
			BatchSize:    cfg.Event.BatchSize,
			PollInterval: cfg.Event.PollInterval,
			ClaimTimeout: cfg.Event.ClaimTimeout,
		}, log)
		if err := outboxProcessor.Start(rootCtx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
	} else {
		log.Warn("outbox processor disabled, bundle stock and listing changes will not propagate")
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order: request ID first so every later layer logs it,
	// recovery before anything that may panic, tracing before metrics so
	// the route span covers the whole request.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	})...)
	engine.Use(middleware.HTTPMetrics(metrics))
	engine.Use(middleware.Secure(cfg.HTTP.HSTSMaxAge))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    middleware.DefaultCORSConfig().ExposeHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var rateLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	routes := router.Setup(engine, router.Handlers{
		System:          handler.NewSystemHandler(cfg.App.Name, version, db.SQL),
		Catalog:         handler.NewCatalogHandler(catalogService, propagator),
		Orders:          handler.NewOrderHandler(ingestionService, pullService, metrics),
		Listing:         handler.NewListingHandler(syncService),
		Bundles:         handler.NewBundleHandler(bundleService, metrics),
		Outbox:          handler.NewOutboxHandler(outboxService),
		AdminMiddleware: []gin.HandlerFunc{middleware.AdminToken(cfg.HTTP.AdminToken)},
	})
	log.Info("Routes registered", zap.Int("count", len(routes)))

	// Periodic tasks
	cron := scheduler.NewCronTrigger(scheduler.DefaultCronTriggerConfig(), log)
	cron.SetMetrics(metrics)
	if cfg.Sync.Enabled {
		mustRegister(log, cron, "listing-sweep", cfg.Sync.SweepCron, func(ctx context.Context) error {
			n, err := syncService.Sweep(ctx, cfg.Sync.SweepBatch)
			if n > 0 {
				log.Info("listing sweep enqueued jobs", zap.Int("jobs", n))
			}
			return err
		})
	}
	if cfg.Orders.PullEnabled && pullService != nil {
		mustRegister(log, cron, "order-pull", cfg.Orders.PullCron, func(ctx context.Context) error {
			outcome, err := pullService.Pull(ctx)
			metrics.RecordOrderLines(ctx, "pull", telemetry.OrderLineCounts{
				Applied:        outcome.Applied,
				AlreadyApplied: outcome.AlreadyApplied,
				SkuUnknown:     outcome.SkuUnknown,
				Failed:         outcome.Failed,
				Clamped:        outcome.Clamped(),
			})
			return err
		})
	}
	if cfg.Event.CleanupEnabled {
		mustRegister(log, cron, "outbox-cleanup", cfg.Event.CleanupCron, func(ctx context.Context) error {
			_, err := outboxService.Purge(ctx, cfg.Event.CleanupRetention)
			return err
		})
	}
	if rateLimiter != nil {
		mustRegister(log, cron, "rate-limit-sweep", "@every 5m", func(context.Context) error {
			rateLimiter.Sweep()
			return nil
		})
	}
	if err := cron.Start(rootCtx); err != nil {
		log.Fatal("Failed to start cron trigger", zap.Error(err))
	}
	defer func() {
		if err := cron.Stop(context.Background()); err != nil {
			log.Error("Error stopping cron trigger", zap.Error(err))
		}
	}()

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown. Deferred stops run after the server drains, in
	// reverse order: cron, outbox processor, workers, stores, database.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

func mustRegister(log *zap.Logger, cron *scheduler.CronTrigger, name, spec string, task scheduler.Task) {
	if err := cron.Register(name, spec, task); err != nil {
		log.Fatal("Failed to register periodic task", zap.String("task", name), zap.Error(err))
	}
	log.Info("Periodic task registered", zap.String("task", name), zap.String("schedule", spec))
}

func bundlingConfigFrom(cfg *config.Config) (bundling.Config, error) {
	pricing, shape, err := cfg.Bundling.Generator()
	if err != nil {
		return bundling.Config{}, err
	}
	return bundling.Config{
		Pricing: pricing,
		Bundle:  shape,
		Selection: domainbundling.SelectionOptions{
			MaxCandidates: cfg.Enrichment.MaxCandidates,
			MaxSelected:   cfg.Enrichment.MaxSelected,
		},
		OrderWindow: cfg.Bundling.OrderWindow,
	}, nil
}

func retryPolicyFrom(cfg config.SyncConfig) listingdomain.RetryPolicy {
	return listingdomain.RetryPolicy{
		MaxRetries:       cfg.MaxRetries,
		InitialPollDelay: cfg.InitialPollDelay,
		BaseDelay:        cfg.BackoffBase,
		MaxDelay:         cfg.BackoffMax,
	}
}
