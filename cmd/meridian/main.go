package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian/internal/app"
	"github.com/meridian-pos/meridian/internal/audit"
	"github.com/meridian-pos/meridian/internal/catalog"
	"github.com/meridian-pos/meridian/internal/ledger"
	"github.com/meridian-pos/meridian/internal/observability"
	"github.com/meridian-pos/meridian/internal/platform/cache"
	"github.com/meridian-pos/meridian/internal/platform/db"
	"github.com/meridian-pos/meridian/internal/reorder"
	"github.com/meridian-pos/meridian/internal/shared"
	"github.com/meridian-pos/meridian/migrations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := migrations.Up(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, db.Config{
		DSN:             cfg.PGDSN,
		MaxConns:        cfg.PGMaxConns,
		MinConns:        cfg.PGMinConns,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Redis backs the audit queue and the low-stock cache. Neither is
	// required for correctness, so a missing Redis degrades instead of
	// failing startup.
	var auditSink audit.Sink
	var lowStockCache *reorder.RedisCache
	redisClient, err := cache.New(ctx, cache.Config{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, audit events go to the log", slog.Any("error", err))
		auditSink = audit.NewLogSink(logger)
	} else {
		defer redisClient.Close()
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer asynqClient.Close()
		auditSink = audit.NewQueueSink(asynqClient, logger)
		lowStockCache = reorder.NewRedisCache(redisClient, cfg.LowStockCacheTTL, logger)
	}

	idempotency := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditSink, idempotency, lowStockCache)
	reorderService := reorder.NewService(reorder.NewRepository(pool), lowStockCache)
	catalogService := catalog.NewService(catalog.NewRepository(pool))
	auditService := audit.NewService(audit.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		LedgerHandler:  ledger.NewHandler(logger, ledgerService, metrics),
		ReorderHandler: reorder.NewHandler(logger, reorderService),
		CatalogHandler: catalog.NewHandler(logger, catalogService),
		AuditHandler:   audit.NewHandler(logger, auditService),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.Any("error", err))
	}
}
