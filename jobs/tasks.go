// Package jobs wires periodic ledger maintenance through Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes consumed idempotency keys past retention.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
	// TaskOutboxRequeue moves parked Failed outbox messages back to Pending.
	TaskOutboxRequeue = "ledger:outbox_requeue"
	// TaskOutboxPrune deletes Published outbox rows past retention.
	TaskOutboxPrune = "ledger:outbox_prune"
)

// RetentionPayload parameterises cleanup tasks.
type RetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(RetentionPayload{Retention: retention})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal payload: %w", err)
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NewOutboxRequeueTask constructs the requeue task.
func NewOutboxRequeueTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskOutboxRequeue, nil), nil
}

// NewOutboxPruneTask constructs the prune task.
func NewOutboxPruneTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(RetentionPayload{Retention: retention})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal payload: %w", err)
	}
	return asynq.NewTask(TaskOutboxPrune, data), nil
}

// KeyCleaner prunes idempotency keys.
type KeyCleaner interface {
	CleanupKeys(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OutboxMaintainer sweeps the outbox table.
type OutboxMaintainer interface {
	RequeueFailed(ctx context.Context) (int64, error)
	DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Maintenance bundles the task handlers with their dependencies.
type Maintenance struct {
	Keys   KeyCleaner
	Outbox OutboxMaintainer
	Logger *slog.Logger
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup.
func (m *Maintenance) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	var payload RetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: unmarshal payload: %w", err)
	}
	n, err := m.Keys.CleanupKeys(ctx, payload.Retention)
	if err != nil {
		return err
	}
	m.Logger.Info("idempotency cleanup", slog.Int64("removed", n))
	return nil
}

// HandleOutboxRequeue processes TaskOutboxRequeue.
func (m *Maintenance) HandleOutboxRequeue(ctx context.Context, t *asynq.Task) error {
	n, err := m.Outbox.RequeueFailed(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.Logger.Warn("outbox requeue", slog.Int64("requeued", n))
	}
	return nil
}

// HandleOutboxPrune processes TaskOutboxPrune.
func (m *Maintenance) HandleOutboxPrune(ctx context.Context, t *asynq.Task) error {
	var payload RetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: unmarshal payload: %w", err)
	}
	n, err := m.Outbox.DeletePublished(ctx, payload.Retention)
	if err != nil {
		return err
	}
	m.Logger.Info("outbox prune", slog.Int64("removed", n))
	return nil
}
