// Package main is the entry point for the Telar progression engine worker.
//
// The worker runs the periodic jobs the API server does not:
// - Nightly per-milestone progress history snapshots
// - Reconciliation sweeps that auto-complete tasks whose conditions are
//   already met by previously recorded facts
//
// It shares the domain and persistence layers with the API server and can
// run alongside any number of server instances; job writes are idempotent.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/telar-hub/progression-engine/config"
	"github.com/telar-hub/progression-engine/internal/application/progression"
	"github.com/telar-hub/progression-engine/internal/domain/achievement"
	"github.com/telar-hub/progression-engine/internal/domain/maturity"
	"github.com/telar-hub/progression-engine/internal/domain/milestone"
	"github.com/telar-hub/progression-engine/internal/domain/task"
	"github.com/telar-hub/progression-engine/internal/infrastructure/messaging"
	"github.com/telar-hub/progression-engine/internal/infrastructure/persistence/postgres"
	"github.com/telar-hub/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/telar-hub/progression-engine/internal/infrastructure/scheduler"
	"github.com/telar-hub/progression-engine/internal/infrastructure/scheduler/jobs"
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

	if !cfg.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled, nothing to run (set SCHEDULER_ENABLED=true)")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Telar progression worker",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
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

	// Migrations are owned by the API server; the worker only verifies the
	// schema is present.
	migrator := postgres.NewMigrator(dbConn)
	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	for _, m := range status {
		if !m.IsApplied {
			return fmt.Errorf("pending migration %q, start the API server first", m.Name)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional read-through cache)
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
	// 5. REPOSITORIES AND ENGINE
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

	eventBusConfig := messaging.DefaultInMemoryEventBusConfig()
	eventBusConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(eventBusConfig)
	defer func() {
		_ = eventBus.Close()
	}()

	catalog := task.FixedTasks()
	engine := progression.New(progression.Deps{
		Catalog:            catalog,
		AchievementCatalog: achievement.BuiltinAchievements(),
		StateRepo:          stateRepo,
		ProgressRepo:       progressRepo,
		HistoryRepo:        historyRepo,
		ScoresRepo:         scoresRepo,
		ActionLogRepo:      actionLogRepo,
		AchievementRepo:    achievementRepo,
		Publisher:          eventBus,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER AND JOBS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:        log,
		EnableMetrics: true,
	})

	if cfg.Features.IsEnabled(config.FeatureJourneyDailyHistory, nil) {
		historySchedule, err := scheduler.ParseCronExpression(cfg.Scheduler.HistoryCron)
		if err != nil {
			return fmt.Errorf("invalid history cron %q: %w", cfg.Scheduler.HistoryCron, err)
		}

		historyJob := jobs.NewRecordHistoryJob(stateRepo, progressRepo, historyRepo, log, jobs.RecordHistoryConfig{
			Concurrency: cfg.Scheduler.MaxConcurrentUsers,
			Timeout:     cfg.Scheduler.JobTimeout,
		})
		if err := sched.Register(historyJob, historySchedule); err != nil {
			return fmt.Errorf("failed to register history job: %w", err)
		}
	}

	if cfg.Features.IsEnabled(config.FeatureJourneyAutoReconcile, nil) {
		reconcileJob := jobs.NewReconcileStatesJob(stateRepo, engine, log, jobs.ReconcileStatesConfig{
			Concurrency: cfg.Scheduler.MaxConcurrentUsers,
			Timeout:     cfg.Scheduler.JobTimeout,
		})
		if err := sched.Register(reconcileJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ReconcileInterval)); err != nil {
			return fmt.Errorf("failed to register reconcile job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. START AND GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	log.Info("Telar progression worker is running",
		"history_cron", cfg.Scheduler.HistoryCron,
		"reconcile_interval", cfg.Scheduler.ReconcileInterval.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("stopping scheduler...")
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
		return err
	}

	log.Info("shutdown completed successfully")
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
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
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
