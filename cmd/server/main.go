// Package main is the entrypoint for the Chronos API server.
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
	"time"

	"github.com/kiranshivaraju/chronos/internal/api"
	"github.com/kiranshivaraju/chronos/internal/api/handler"
	mw "github.com/kiranshivaraju/chronos/internal/api/middleware"
	"github.com/kiranshivaraju/chronos/internal/api/response"
	"github.com/kiranshivaraju/chronos/internal/cache"
	"github.com/kiranshivaraju/chronos/internal/catalog"
	"github.com/kiranshivaraju/chronos/internal/celestrak"
	"github.com/kiranshivaraju/chronos/internal/config"
	"github.com/kiranshivaraju/chronos/internal/imagestore"
	"github.com/kiranshivaraju/chronos/internal/ledger"
	"github.com/kiranshivaraju/chronos/internal/normalize"
	"github.com/kiranshivaraju/chronos/internal/store"
	"github.com/kiranshivaraju/chronos/internal/tasks"
)

const (
	shutdownTimeout = 30 * time.Second
	maxSubmitBytes  = 4 << 20
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
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "confirm_mode", cfg.Scheduling.ConfirmMode, "image_store", cfg.Images.Backend)

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
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Image store
	images, err := imagestore.New(ctx, cfg.Images)
	if err != nil {
		return fmt.Errorf("create image store: %w", err)
	}
	if err := images.CheckAccess(ctx); err != nil {
		return fmt.Errorf("check image store: %w", err)
	}
	slog.Info("image store ready", "backend", images.Name())

	// 6. Services
	pgStore := store.NewPostgresStore(pool)
	tle := celestrak.NewCached(
		celestrak.NewHTTPClient(cfg.Celestrak.BaseURL, cfg.Celestrak.Timeout),
		redisCache, cfg.Celestrak.CacheTTL)

	taskSvc := tasks.NewService(pgStore, normalize.New(tle, nil), images, redisCache, tasks.Options{
		ConfirmMode:  cfg.Scheduling.ConfirmMode,
		PlanCacheTTL: cfg.Scheduling.PlanCacheTTL,
	})
	ledgerSvc := ledger.NewService(pgStore, nil)
	catalogSvc := catalog.NewService(pgStore, nil)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler: healthHandler(pgStore, redisCache, images),

		SubmitTask:      handler.NewSubmitTaskHandler(taskSvc, maxSubmitBytes),
		ConfirmTask:     handler.NewConfirmTaskHandler(taskSvc),
		ListTasks:       handler.NewListTasksHandler(taskSvc),
		GetTask:         handler.NewGetTaskHandler(taskSvc),
		ListResults:     handler.NewListResultsHandler(taskSvc),
		CreateRequest:   handler.NewCreateRequestHandler(ledgerSvc),
		ListRequests:    handler.NewListRequestsHandler(ledgerSvc),
		ListBalances:    handler.NewListBalancesHandler(ledgerSvc),
		ListTelescopes:  handler.NewListTelescopesHandler(catalogSvc),
		ListSatellites:  handler.NewListSatellitesHandler(catalogSvc),
		TelescopeAgenda: handler.NewScheduleHandler(taskSvc),

		UpdateTaskStatus:   handler.NewUpdateStatusHandler(taskSvc),
		PushResult:         handler.NewPushResultHandler(taskSvc, cfg.Server.MaxUploadBytes),
		Plan:               handler.NewPlanHandler(taskSvc),
		SetTelescopeStatus: handler.NewTelescopeStatusHandler(taskSvc),

		CreateTelescope:   handler.NewCreateTelescopeHandler(catalogSvc),
		CreateSatellite:   handler.NewCreateSatelliteHandler(catalogSvc),
		AdminListRequests: handler.NewAdminListRequestsHandler(ledgerSvc),
		ApproveRequest:    handler.NewDecideRequestHandler(ledgerSvc, true),
		RejectRequest:     handler.NewDecideRequestHandler(ledgerSvc, false),
		CreateKeyHandler:  handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:   handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:  handler.NewRevokeKeyHandler(pgStore),
	}
	if cfg.Images.Backend == config.ImageStoreFS && strings.HasPrefix(cfg.Images.FS.PublicBaseURL, "/") {
		deps.ImagesPath = cfg.Images.FS.PublicBaseURL
		deps.ImageFiles = http.FileServer(http.Dir(cfg.Images.FS.Root))
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
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

// healthHandler checks database, cache and image store connectivity.
func healthHandler(db pinger, c pinger, images imagestore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"images":   "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := images.CheckAccess(r.Context()); err != nil {
			checks["images"] = "degraded"
		}

		for _, status := range checks {
			if status != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
