package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/koboledger/koboledger/internal/app"
	"github.com/koboledger/koboledger/internal/balance"
	"github.com/koboledger/koboledger/internal/eventlog"
	"github.com/koboledger/koboledger/internal/ledger/transfer"
	"github.com/koboledger/koboledger/internal/observability"
	"github.com/koboledger/koboledger/internal/outbox"
	"github.com/koboledger/koboledger/internal/platform/cache"
	"github.com/koboledger/koboledger/internal/platform/db"
	"github.com/koboledger/koboledger/internal/projection"
	"github.com/koboledger/koboledger/jobs"
)

// The worker process runs everything that happens after a ledger write
// commits: the outbox dispatcher, the balance projection consumer, the
// cache invalidation subscriber and periodic maintenance jobs.
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	outboxStore := outbox.NewStore(pool)
	projectionStore := projection.NewStore(redisClient, cfg.ProjectionTTL)

	publisher := eventlog.NewPublisher(cfg.KafkaBrokers, cfg.LedgerTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close", slog.Any("error", err))
		}
	}()

	consumer := eventlog.NewConsumer(cfg.KafkaBrokers, cfg.LedgerTopic, cfg.ProjectionGroup)
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("consumer close", slog.Any("error", err))
		}
	}()

	dispatcher := outbox.NewDispatcher(outboxStore, publisher, outbox.DispatcherConfig{
		BatchSize:  cfg.OutboxBatchSize,
		PollMin:    cfg.OutboxPollMin,
		PollMax:    cfg.OutboxPollMax,
		MaxRetries: cfg.OutboxMaxRetries,
	}, logger, metrics)

	projector := projection.NewWorker(consumer, projectionStore, logger, metrics)
	subscriber := balance.NewSubscriber(redisClient, cfg.InvalidationChan, projectionStore, logger)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	requeueTask, err := jobs.NewOutboxRequeueTask()
	if err != nil {
		logger.Error("build requeue task", slog.Any("error", err))
		os.Exit(1)
	}
	pruneTask, err := jobs.NewOutboxPruneTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	maintenance, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Maintenance: &jobs.Maintenance{
			Keys:   transfer.NewRepository(pool, outboxStore),
			Outbox: outboxStore,
			Logger: logger,
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: cleanupTask},
			{Spec: "*/5 * * * *", Task: requeueTask},
			{Spec: "30 3 * * *", Task: pruneTask},
		},
	})
	if err != nil {
		logger.Error("build maintenance worker", slog.Any("error", err))
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return dispatcher.Run(groupCtx) })
	group.Go(func() error { return projector.Run(groupCtx) })
	group.Go(func() error { return subscriber.Run(groupCtx) })
	group.Go(func() error { return maintenance.Run(groupCtx) })

	logger.Info("worker started",
		slog.String("topic", cfg.LedgerTopic),
		slog.String("group", cfg.ProjectionGroup))

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
