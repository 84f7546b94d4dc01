package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/api"
	"github.com/tgwarmup/tgwarmup/internal/auth"
	"github.com/tgwarmup/tgwarmup/internal/clock"
	"github.com/tgwarmup/tgwarmup/internal/config"
	"github.com/tgwarmup/tgwarmup/internal/database"
	"github.com/tgwarmup/tgwarmup/internal/discovery"
	"github.com/tgwarmup/tgwarmup/internal/gateway"
	"github.com/tgwarmup/tgwarmup/internal/inference"
	"github.com/tgwarmup/tgwarmup/internal/llm"
	"github.com/tgwarmup/tgwarmup/internal/logging"
	"github.com/tgwarmup/tgwarmup/internal/metrics"
	"github.com/tgwarmup/tgwarmup/internal/persona"
	"github.com/tgwarmup/tgwarmup/internal/scheduler"
	"github.com/tgwarmup/tgwarmup/internal/server"
	"github.com/tgwarmup/tgwarmup/internal/warmup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting tgwarmup")

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	dbURL, err := database.ResolveURL(cfg.Database)
	if err != nil {
		return fmt.Errorf("build database URL: %w", err)
	}
	logger.Info("database configuration", "config", database.ConnectionInfo(cfg.Database.Driver, dbURL))

	dbCfg := database.DefaultConfig()
	dbCfg.Driver = cfg.Database.Driver
	dbCfg.URL = dbURL
	db, err := database.Connect(appCtx, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connected")

	if err := database.RunMigrations(appCtx, db, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	accountRepo := database.NewAccountRepository(db)
	historyRepo := database.NewHistoryRepository(db)
	runRepo := database.NewRunRepository(db)
	chatRepo := database.NewChatRepository(db)
	personaRepo := database.NewPersonaRepository(db)
	activityLogRepo := database.NewActivityLogRepository(db)
	inferenceLogRepo := database.NewInferenceLogRepository(db)

	collector, err := metrics.NewHTTPCollector()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	warmupMetrics, err := metrics.NewWarmupCollector(collector.Registry())
	if err != nil {
		return fmt.Errorf("init warmup metrics: %w", err)
	}

	inferenceLogger := inference.NewLogger(inferenceLogRepo, logger)
	planner, err := llm.New(cfg.LLM, inferenceLogger, logger)
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}
	logger.Info("llm client ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	gw := gateway.NewClient(cfg.Gateway, logger)
	clk := clock.Real{}
	random := warmup.NewRandom()

	svc := warmup.NewService(warmup.Deps{
		Accounts:  accountRepo,
		Personas:  persona.NewGenerator(planner, personaRepo, logger),
		Chats:     chatRepo,
		Discovery: discovery.NewService(planner, chatRepo, logger),
		History:   historyRepo,
		Runs:      runRepo,
		Activity:  activityLogRepo,
		Planner:   planner,
		Gateway:   gw,
		Observer:  warmupMetrics,
		Clock:     clk,
		Sleeper:   warmup.RealSleeper{},
		Random:    random,
		Logger:    logger,
	}, warmup.SettingsFromConfig(cfg.Warmup))

	warmupScheduler := scheduler.NewWarmupScheduler(
		accountRepo,
		svc,
		activityLogRepo,
		svc.Registry(),
		warmupMetrics,
		clk,
		random,
		scheduler.WarmupOptions{
			Interval:    cfg.Scheduler.Interval,
			Concurrency: cfg.Scheduler.Concurrency,
			DueFactor:   cfg.Warmup.DueFactor,
		},
		logger,
	)
	retention := scheduler.NewRetentionScheduler(historyRepo, activityLogRepo, activityLogRepo, clk,
		cfg.Warmup.RetentionDays, cfg.Scheduler.RetentionInterval, logger)

	authenticator, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	mux := http.NewServeMux()
	api.SetupRoutes(mux, api.RouterDeps{
		BaseContext:    appCtx,
		Auth:           authenticator,
		AuthMiddleware: authenticator.Middleware(),
		Accounts:       accountRepo,
		Runs:           runRepo,
		Warmup:         svc,
		Scheduler:      warmupScheduler,
		Retention:      retention,
		ActivityLogs:   activityLogRepo,
		InferenceLogs:  inferenceLogRepo,
		Ping:           func(ctx context.Context) error { return database.HealthCheck(ctx, db) },
		Metrics:        collector.Handler(),
		Clock:          clk,
	}, logger)

	var background sync.WaitGroup
	// The warmup scheduler can also be started over the API, so it is always stopped.
	stoppers := []func(){warmupScheduler.Stop}

	if cfg.Scheduler.Enabled {
		if err := warmupScheduler.Start(appCtx); err != nil {
			return fmt.Errorf("start warmup scheduler: %w", err)
		}
	} else {
		logger.Info("warmup scheduler disabled; start it via POST /api/scheduler/start")
	}

	if cfg.Scheduler.RetentionInterval > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			retention.Start(appCtx)
		}()
		stoppers = append(stoppers, retention.Stop)
	}

	if cfg.Scheduler.StatusSyncInterval > 0 {
		statusSync := scheduler.NewStatusSync(accountRepo, gw, activityLogRepo, clk, cfg.Scheduler.StatusSyncInterval, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			statusSync.Start(appCtx)
		}()
		stoppers = append(stoppers, statusSync.Stop)
	}

	srv := server.New(cfg.Server, logger, collector.InstrumentHandler(mux))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	logger.Info("tgwarmup started", "url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port))

	select {
	case sig := <-waitForSignal():
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	for _, stop := range stoppers {
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("warmup service shutdown incomplete", "error", err)
	}
	cancelApp()
	background.Wait()
	inferenceLogger.Wait()

	logger.Info("shutdown complete")
	return nil
}

func waitForSignal() <-chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	return c
}
