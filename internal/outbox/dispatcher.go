package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Staging is the slice of the store the dispatcher needs.
type Staging interface {
	Dequeue(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, maxRetries int) error
}

// LogWriter delivers a message to the committed-event log.
type LogWriter interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// DispatcherMetrics receives delivery outcomes.
type DispatcherMetrics interface {
	OutboxPublished()
	OutboxFailed()
}

// DispatcherConfig tunes the drain loop.
type DispatcherConfig struct {
	BatchSize  int
	PollMin    time.Duration
	PollMax    time.Duration
	MaxRetries int
}

// Dispatcher drains pending outbox messages into the event log. Delivery is
// at-least-once: a message is marked Published only after the log has
// acknowledged it, so a crash between publish and mark re-delivers.
type Dispatcher struct {
	staging Staging
	log     LogWriter
	cfg     DispatcherConfig
	logger  *slog.Logger
	metrics DispatcherMetrics
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(staging Staging, log LogWriter, cfg DispatcherConfig, logger *slog.Logger, metrics DispatcherMetrics) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollMin <= 0 {
		cfg.PollMin = 100 * time.Millisecond
	}
	if cfg.PollMax < cfg.PollMin {
		cfg.PollMax = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	return &Dispatcher{staging: staging, log: log, cfg: cfg, logger: logger, metrics: metrics}
}

// Run loops until context cancellation, backing off while the table is empty.
func (d *Dispatcher) Run(ctx context.Context) error {
	backoff := d.cfg.PollMin
	for {
		n, err := d.DispatchOnce(ctx)
		if err != nil {
			d.logger.Error("outbox dispatch cycle", slog.Any("error", err))
		}
		if n > 0 {
			backoff = d.cfg.PollMin
			continue
		}
		backoff *= 2
		if backoff > d.cfg.PollMax {
			backoff = d.cfg.PollMax
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// DispatchOnce claims one batch and attempts delivery per message. It returns
// the number of messages delivered.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.staging.Dequeue(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, msg := range msgs {
		if err := d.log.Publish(ctx, msg.PartitionKey, msg.Payload); err != nil {
			d.logger.Warn("outbox publish failed",
				slog.String("message_id", msg.ID.String()),
				slog.Int("retry_count", msg.RetryCount),
				slog.Any("error", err))
			if markErr := d.staging.MarkAttemptFailed(ctx, msg.ID, d.cfg.MaxRetries); markErr != nil {
				d.logger.Error("outbox mark attempt failed", slog.Any("error", markErr))
			}
			if d.metrics != nil {
				d.metrics.OutboxFailed()
			}
			continue
		}
		if err := d.staging.MarkPublished(ctx, msg.ID); err != nil {
			// The message stays claimed and will be re-delivered after the
			// claim expires. Downstream consumers tolerate the duplicate.
			d.logger.Error("outbox mark published", slog.Any("error", err))
			continue
		}
		if d.metrics != nil {
			d.metrics.OutboxPublished()
		}
		delivered++
	}
	return delivered, nil
}
