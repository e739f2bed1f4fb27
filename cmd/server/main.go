// Package main is the entrypoint for the ChronoGuard API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/chronoguard/internal/api"
	"github.com/kiranshivaraju/chronoguard/internal/api/response"
	"github.com/kiranshivaraju/chronoguard/internal/apikey"
	"github.com/kiranshivaraju/chronoguard/internal/appointment"
	"github.com/kiranshivaraju/chronoguard/internal/cache"
	"github.com/kiranshivaraju/chronoguard/internal/config"
	"github.com/kiranshivaraju/chronoguard/internal/dashboard"
	"github.com/kiranshivaraju/chronoguard/internal/jobs"
	"github.com/kiranshivaraju/chronoguard/internal/notify"
	"github.com/kiranshivaraju/chronoguard/internal/quota"
	"github.com/kiranshivaraju/chronoguard/internal/risk"
	"github.com/kiranshivaraju/chronoguard/internal/store"
	"github.com/kiranshivaraju/chronoguard/internal/subscription"
	"github.com/kiranshivaraju/chronoguard/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	started := time.Now()

	// 1. Load config, failing fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "notify_provider", cfg.Notify.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cache.WithNamespace("chronoguard"))
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create reminder dispatcher
	dispatcher, err := notify.NewDispatcher(cfg.Notify)
	if err != nil {
		return fmt.Errorf("create reminder dispatcher: %w", err)
	}
	defer dispatcher.Close()
	slog.Info("reminder dispatcher initialized", "dispatcher", dispatcher.Name())

	// 6. Build services
	pgStore := store.NewPostgresStore(pool)
	metrics := telemetry.NewCollector(prometheus.NewRegistry())

	ledger := quota.NewLedger(pgStore, metrics)
	dash := dashboard.NewService(pgStore, ledger, redisCache, metrics,
		cfg.Dashboard.CacheTTL, cfg.Dashboard.DefaultAppointmentValue)
	subs := subscription.NewService(pgStore, cfg.Subscription.TrialDays, subscription.WithInvalidator(dash))
	appts := appointment.NewService(appointment.Deps{
		Subscriptions: subs,
		Quota:         ledger,
		Store:         pgStore,
		Classifier:    risk.NewClassifier(risk.DefaultWeights),
		Dashboard:     dash,
		Dispatcher:    dispatcher,
		Metrics:       metrics,
		Baseline:      cfg.Risk.BaselineProbability,
	})

	// 7. Start background jobs
	if cfg.Risk.RefreshInterval > 0 {
		refresher := jobs.NewRiskRefresher(pgStore, appts, cfg.Risk.RefreshHorizon, cfg.Risk.RefreshBatchSize)
		scheduler, err := jobs.NewScheduler(refresher, cfg.Risk.RefreshInterval)
		if err != nil {
			return fmt.Errorf("create job scheduler: %w", err)
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				slog.Error("job scheduler shutdown failed", "error", err)
			}
		}()
	} else {
		slog.Info("risk refresh disabled")
	}

	// 8. Build router with dependencies
	router := api.NewRouter(api.Wire(api.Services{
		Keys:          pgStore,
		Limiter:       redisCache,
		RateLimit:     cfg.Server.RateLimitPerMin,
		Metrics:       metrics,
		Health:        healthHandler(pgStore, redisCache, dispatcher.Name(), started),
		Subscriptions: subs,
		Usage:         ledger,
		Appointments:  appts,
		Dashboard:     dash,
		APIKeys:       apikey.NewService(pgStore, 0),
	}))

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

// healthHandler pings Postgres and Redis, each bounded by healthCheckTimeout, and reports
// which reminder dispatcher is wired along with process uptime.
func healthHandler(db, c pinger, dispatcher string, started time.Time) http.HandlerFunc {
	check := func(ctx context.Context, p pinger) string {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return "degraded"
		}
		return "ok"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": check(r.Context(), db),
			"cache":    check(r.Context(), c),
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			slog.Warn("health check degraded", "database", checks["database"], "cache", checks["cache"])
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":         "ok",
			"services":       checks,
			"reminders":      dispatcher,
			"uptime_seconds": int64(time.Since(started).Seconds()),
		})
	}
}
