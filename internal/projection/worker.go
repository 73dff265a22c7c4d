package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/koboledger/koboledger/internal/eventlog"
)

// Log abstracts the committed-event log consumer.
type Log interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// WorkerMetrics receives apply outcomes.
type WorkerMetrics interface {
	ProjectionApplied()
	ProjectionSkipped()
}

// Worker is the single sequential consumer per partition that folds
// balance-moved facts into the projection store. Processing is
// at-least-once: re-application after a crash is harmless because facts
// carry absolute balances and the store rejects stale offsets.
type Worker struct {
	log     Log
	store   *Store
	logger  *slog.Logger
	metrics WorkerMetrics
}

// NewWorker constructs a projection worker.
func NewWorker(log Log, store *Store, logger *slog.Logger, metrics WorkerMetrics) *Worker {
	return &Worker{log: log, store: store, logger: logger, metrics: metrics}
}

// Run consumes until context cancellation. Malformed messages are logged and
// skipped so a poison message can never stall the stream.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.log.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("projection fetch", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		w.Handle(ctx, msg)
		if err := w.log.Commit(ctx, msg); err != nil {
			w.logger.Error("projection commit", slog.Any("error", err))
		}
	}
}

// Handle applies one log message to the store.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) {
	evt, err := eventlog.DecodeBalanceMoved(msg.Value)
	if err != nil {
		w.logger.Warn("projection skip malformed message",
			slog.Int64("offset", msg.Offset),
			slog.Int("partition", msg.Partition),
			slog.Any("error", err))
		if w.metrics != nil {
			w.metrics.ProjectionSkipped()
		}
		return
	}

	if evt.Source != "" && evt.SourceBalanceAfter != nil {
		w.apply(ctx, evt.TenantID, evt.Source, evt.Currency, *evt.SourceBalanceAfter, msg.Offset)
	}
	if evt.Dest != "" && evt.DestBalanceAfter != nil {
		w.apply(ctx, evt.TenantID, evt.Dest, evt.Currency, *evt.DestBalanceAfter, msg.Offset)
	}
}

func (w *Worker) apply(ctx context.Context, tenant, account, currency string, balance, offset int64) {
	applied, err := w.store.Apply(ctx, tenant, account, currency, balance, offset)
	if err != nil {
		// Cache write failures degrade the projection, not the ledger; the
		// hedged reader falls back to the durable store meanwhile.
		w.logger.Error("projection apply", slog.String("account", account), slog.Any("error", err))
		return
	}
	if w.metrics == nil {
		return
	}
	if applied {
		w.metrics.ProjectionApplied()
	} else {
		w.metrics.ProjectionSkipped()
	}
}
