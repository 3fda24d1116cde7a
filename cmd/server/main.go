// Package main is the entry point for the Telar progression engine API server.
//
// The server exposes the progression engine over REST: storefronts report
// facts and actions, the engine unlocks tasks, advances milestone progress,
// accrues maturity scores and grants achievements. Webhook subscribers
// receive signed event envelopes for every domain event the engine emits.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: progression rules with no external dependencies
// - Application: use case orchestration (Commands/Queries/Event handlers)
// - Infrastructure: Postgres/Redis persistence, event bus, webhooks
// - Interface: REST API handlers
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/telar-hub/progression-engine/config"
	"github.com/telar-hub/progression-engine/internal/application/eventhandler"
	"github.com/telar-hub/progression-engine/internal/application/progression"
	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/shared"
	"github.com/telar-hub/progression-engine/internal/domain/task"
	"github.com/telar-hub/progression-engine/internal/infrastructure/messaging"
	"github.com/telar-hub/progression-engine/internal/infrastructure/notify"
	"github.com/telar-hub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/telar-hub/progression-engine/internal/infrastructure/persistence/redis"
	httpserver "github.com/telar-hub/progression-engine/internal/interface/http"
	"github.com/telar-hub/progression-engine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Telar progression engine",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE CONNECTION (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.MigrateOnStart {
		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		status, err := migrator.Status(ctx)
		if err != nil {
			log.Warn("failed to get migration status", "error", err)
		} else {
			appliedCount := 0
			for _, m := range status {
				if m.IsApplied {
					appliedCount++
				}
			}
			log.Info("migrations completed", "applied", appliedCount, "total", len(status))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional read-through cache)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(redisConfigFrom(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	stateRepo := postgres.NewStateRepository(dbConn)
	historyRepo := postgres.NewHistoryRepository(dbConn)
	actionLogRepo := postgres.NewActionLogRepository(dbConn)
	achievementRepo := postgres.NewAchievementRepository(dbConn)

	var progressRepo milestone.ProgressRepository = postgres.NewProgressRepository(dbConn)
	var scoresRepo maturity.ScoresRepository = postgres.NewScoresRepository(dbConn)
	if redisCache != nil {
		progressRepo = redis.NewCachedProgressRepository(redisCache, progressRepo)
		scoresRepo = redis.NewCachedScoresRepository(redisCache, scoresRepo)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. CATALOGS AND ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing progression engine...")
	catalog := task.FixedTasks()
	badges := achievement.BuiltinAchievements()

	engine := progression.New(progression.Deps{
		Catalog:            catalog,
		AchievementCatalog: badges,
		StateRepo:          stateRepo,
		ProgressRepo:       progressRepo,
		HistoryRepo:        historyRepo,
		ScoresRepo:         scoresRepo,
		ActionLogRepo:      actionLogRepo,
		AchievementRepo:    achievementRepo,
		Publisher:          eventBus,
	})
	log.Info("progression engine ready", "catalog_version", catalog.Version(), "tasks", catalog.Len())

	// ─────────────────────────────────────────────────────────────────────────
	// 9. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("registering event handlers...")
	checker := achievement.NewChecker(badges, achievementRepo)

	milestoneHandler := eventhandler.NewOnMilestoneCompletedHandler(checker, progressRepo, eventBus, log)
	eventBus.Subscribe(shared.EventMilestoneCompleted, milestoneHandler.Handle)

	scoreHandler := eventhandler.NewOnScoreUpdatedHandler(checker, progressRepo, eventBus, log)
	eventBus.Subscribe(shared.EventScoreUpdated, scoreHandler.Handle)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. WEBHOOK DELIVERY (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if len(cfg.Webhooks.URLs) > 0 && cfg.Features.WebhooksEnabled(nil) {
		log.Info("initializing webhook delivery...", "endpoints", len(cfg.Webhooks.URLs))

		events := make([]shared.EventType, 0, len(cfg.Webhooks.Events))
		for _, e := range cfg.Webhooks.Events {
			events = append(events, shared.EventType(strings.TrimSpace(e)))
		}

		endpoints := make([]notify.Endpoint, 0, len(cfg.Webhooks.URLs))
		for _, url := range cfg.Webhooks.URLs {
			endpoints = append(endpoints, notify.Endpoint{
				URL:    url,
				Secret: cfg.Webhooks.Secret,
				Events: events,
			})
		}

		notifier := notify.NewWebhookNotifier(notify.Config{
			Endpoints: endpoints,
			Timeout:   cfg.Webhooks.RequestTimeout,
			Logger:    log,
		})
		eventBus.SubscribeAll(notifier.Handle)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeys = cfg.HTTP.APIKeys

	health := httpserver.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", httpserver.NewPingCheck(dbConn))
	if redisCache != nil {
		health.AddCheck("redis", httpserver.NewPingCheck(redisCache))
	}

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Engine:        engine,
		Logger:        logger.New(logger.Options{Level: logger.ParseLevel(cfg.Observability.LogLevel)}),
		HealthChecker: health,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 12. START SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting services...")

	errCh := make(chan error, 1)

	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Telar progression engine is running",
		"http_address", httpServer.Address(),
		"redis_enabled", redisCache != nil,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	log.Info("stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// Event bus and database connections close through defers above.

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging for the process.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseSlogLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.App.Environment == config.EnvProduction {
		// JSON for production, easier for log aggregators.
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Text for development, easier to read.
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

func parseSlogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redisConfigFrom maps the application Redis settings onto the cache config.
func redisConfigFrom(rc config.RedisConfig) redis.Config {
	cacheCfg := redis.DefaultConfig()
	if rc.Host != "" {
		cacheCfg.Host = rc.Host
	}
	if rc.Port != 0 {
		cacheCfg.Port = rc.Port
	}
	cacheCfg.Password = rc.Password
	cacheCfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cacheCfg.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cacheCfg.MinIdleConns = rc.MinIdleConns
	}
	if rc.DialTimeout > 0 {
		cacheCfg.DialTimeout = rc.DialTimeout
	}
	if rc.ReadTimeout > 0 {
		cacheCfg.ReadTimeout = rc.ReadTimeout
	}
	if rc.WriteTimeout > 0 {
		cacheCfg.WriteTimeout = rc.WriteTimeout
	}
	return cacheCfg
}
