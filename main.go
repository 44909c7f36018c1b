// Package main provides the entry point for the wedding automation service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/wedding-automations/app/handlers"
	"github.com/amirphl/wedding-automations/app/middleware"
	"github.com/amirphl/wedding-automations/app/router"
	"github.com/amirphl/wedding-automations/app/scheduler"
	"github.com/amirphl/wedding-automations/app/services"
	businessflow "github.com/amirphl/wedding-automations/business_flow"
	"github.com/amirphl/wedding-automations/config"
	"github.com/amirphl/wedding-automations/models"
	"github.com/amirphl/wedding-automations/repository"
	"github.com/amirphl/wedding-automations/utils"
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	scheduler *scheduler.AutomationScheduler
	logger    zerolog.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging).With().
		Str("service", "wedding-automations").
		Str("version", cfg.Deployment.Version).
		Logger()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Deployment.Environment,
			Release:          cfg.Deployment.Version,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			logger.Warn().Err(err).Msg("sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	app.router.SetupRoutes()

	if cfg.Scheduler.Enabled {
		stop, err := app.scheduler.Start(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start scheduler")
		}
		app.stopFuncs = append(app.stopFuncs, stop)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-sigChan
	logger.Info().Msg("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}

	// Scheduler and cache monitor stop after the server so in-flight callbacks can finish
	cancel()
	for _, fn := range app.stopFuncs {
		fn()
	}

	logger.Info().Msg("server stopped")
}

func initializeApplication(ctx context.Context, cfg *config.ProductionConfig, logger zerolog.Logger) (*Application, error) {
	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	app := &Application{config: cfg, logger: logger}

	// Repositories
	tenantRepo := repository.NewTenantRepository(db)
	recipientRepo := repository.NewRecipientRepository(db)
	automationRepo := repository.NewAutomationRepository(db)
	sendRecordRepo := repository.NewSendRecordRepository(db)

	var index repository.ProviderMessageIndex
	if rc != nil {
		index = repository.NewRedisProviderMessageIndex(rc, cfg.Cache.RedisPrefix, cfg.Cache.IndexTTL)
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(ctx, rc, cfg.Cache.HealthEvery, logger))
	}

	// Services
	provider := services.NewMessageProvider(cfg.Provider, logger)
	tokenService, err := services.NewTokenService(cfg.Operator.JWTSecret, cfg.Operator.Issuer, cfg.Operator.Audience)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Provider.RatePerSecond), cfg.Provider.Burst)

	// Business flows
	dispatcher := businessflow.NewDispatcher(sendRecordRepo, index, provider, limiter, cfg.Provider.StatusCallbackURL, logger)
	completionFlow := businessflow.NewCompletionFlow(automationRepo, sendRecordRepo, cfg.Scheduler.DeliveryTimeout, logger)
	automationFlow := businessflow.NewAutomationFlow(
		automationRepo,
		sendRecordRepo,
		tenantRepo,
		recipientRepo,
		dispatcher,
		completionFlow,
		businessflow.RunnerConfig{
			Concurrency:      cfg.Scheduler.DispatchConcurrency,
			ResumeStaleAfter: cfg.Scheduler.ResumeStaleAfter,
			BatchSize:        cfg.Scheduler.BatchSize,
		},
		logger,
	)
	reconcileFlow := businessflow.NewReconcileFlow(sendRecordRepo, tenantRepo, index, completionFlow, cfg.Scheduler.BatchSize, logger)
	reportFlow := businessflow.NewReportFlow(automationRepo)

	// HTTP
	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if rc != nil {
		checks["cache"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	app.router = router.NewFiberRouter(
		cfg,
		handlers.NewAutomationHandler(automationFlow, completionFlow, reportFlow, logger),
		handlers.NewWebhookHandler(reconcileFlow, logger),
		handlers.NewHealthHandler("wedding-automations", cfg.Deployment.Version, checks),
		middleware.NewAuthMiddleware(tokenService),
		logger,
	)
	app.server = app.router.GetApp()
	app.scheduler = scheduler.NewAutomationScheduler(automationFlow, cfg.Scheduler, logger)

	return app, nil
}

// initializeDatabase opens the connection pool and migrates the schema when enabled
func initializeDatabase(cfg config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(&logger, gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(models.All()...); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	logger.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Int("max_idle_conns", cfg.MaxIdleConns).
		Bool("auto_migrate", cfg.AutoMigrate).
		Msg("database connection established")

	return db, nil
}

// initializeCache connects to Redis when the provider message index is enabled
func initializeCache(cfg config.CacheConfig, logger zerolog.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		logger.Info().Msg("provider message index disabled; reconciliation uses scatter lookup only")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", opt.Addr).Int("db", cfg.RedisDB).Msg("redis connection established")
	return rc, nil
}

// startCacheHealthMonitor pings Redis periodically and closes the client when stopped
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger zerolog.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn().Err(err).Msg("redis healthcheck failed")
				}
				c()
			}
		}
	}()
	return func() {
		cancel()
		<-done
		_ = client.Close()
	}
}
