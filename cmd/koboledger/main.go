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

	"github.com/koboledger/koboledger/internal/app"
	"github.com/koboledger/koboledger/internal/balance"
	"github.com/koboledger/koboledger/internal/ledger/accounts"
	"github.com/koboledger/koboledger/internal/ledger/journals"
	"github.com/koboledger/koboledger/internal/ledger/transfer"
	"github.com/koboledger/koboledger/internal/observability"
	"github.com/redis/go-redis/v9"

	"github.com/koboledger/koboledger/internal/outbox"
	"github.com/koboledger/koboledger/internal/platform/db"
	"github.com/koboledger/koboledger/internal/projection"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The hedged reader fails open on cache errors, so an unreachable Redis
	// degrades reads to the store instead of blocking startup.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	outboxStore := outbox.NewStore(pool)
	projectionStore := projection.NewStore(redisClient, cfg.ProjectionTTL)
	broadcaster := balance.NewBroadcaster(redisClient, cfg.InvalidationChan, logger)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo)
	reader := balance.NewReader(projectionStore, accountsRepo, cfg.HedgeDelay, logger, metrics)

	transferRepo := transfer.NewRepository(pool, outboxStore)
	transferService := transfer.NewService(transferRepo, cfg.LedgerTopic, broadcaster, logger, metrics)

	journalsRepo := journals.NewRepository(pool, outboxStore)
	journalsService := journals.NewService(journalsRepo, cfg.LedgerTopic, broadcaster, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accountsService, reader),
		JournalsHandler: journals.NewHandler(logger, journalsService),
		TransferHandler: transfer.NewHandler(logger, transferService),
		Metrics:         metrics,
		Pool:            pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
