package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// claimTimeout bounds how long a dequeued message stays invisible to other
// dispatchers before it is considered abandoned and handed out again.
const claimTimeout = 30 * time.Second

// Store persists outbox messages in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs the store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Enqueue stages a message inside the caller's transaction. It must never be
// called outside a transaction that also carries the domain write.
func (s *Store) Enqueue(ctx context.Context, tx pgx.Tx, msg Message) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox_messages (id, topic, partition_key, payload, status, retry_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.Topic, msg.PartitionKey, msg.Payload, StatusPending, 0, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	return nil
}

// Dequeue claims up to limit pending messages. SKIP LOCKED plus a claim
// timestamp keeps competing dispatchers off each other's batches; a claim
// older than claimTimeout is treated as abandoned and re-issued.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `UPDATE outbox_messages SET claimed_at = NOW()
WHERE id IN (
	SELECT id FROM outbox_messages
	WHERE status = $1 AND (claimed_at IS NULL OR claimed_at < NOW() - $2::interval)
	ORDER BY created_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
RETURNING id, topic, partition_key, payload, status, retry_count, created_at, published_at`,
		StatusPending, claimTimeout, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: dequeue: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.PartitionKey, &m.Payload, &m.Status, &m.RetryCount, &m.CreatedAt, &m.PublishedAt); err != nil {
			return nil, fmt.Errorf("outbox: dequeue scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkPublished records successful delivery. Called only after the log has
// acknowledged the message.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox_messages SET status = $2, published_at = NOW(), claimed_at = NULL
WHERE id = $1`, id, StatusPublished)
	if err != nil {
		return fmt.Errorf("outbox: mark published: %w", err)
	}
	return nil
}

// MarkAttemptFailed bumps the retry counter and either releases the message
// for another Pending cycle or parks it as Failed once maxRetries is reached.
func (s *Store) MarkAttemptFailed(ctx context.Context, id uuid.UUID, maxRetries int) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox_messages
SET retry_count = retry_count + 1,
    claimed_at = NULL,
    status = CASE WHEN retry_count + 1 >= $2 THEN $3 ELSE status END
WHERE id = $1`, id, maxRetries, StatusFailed)
	if err != nil {
		return fmt.Errorf("outbox: mark attempt failed: %w", err)
	}
	return nil
}

// RequeueFailed moves Failed messages back to Pending with a reset retry
// budget. Used by the maintenance sweep once the log is healthy again.
func (s *Store) RequeueFailed(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE outbox_messages SET status = $2, retry_count = 0, claimed_at = NULL
WHERE status = $1`, StatusFailed, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("outbox: requeue failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeletePublished removes delivered messages older than the retention window.
func (s *Store) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM outbox_messages WHERE status = $1 AND published_at < NOW() - $2::interval`,
		StatusPublished, olderThan)
	if err != nil {
		return 0, fmt.Errorf("outbox: delete published: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountPending reports the backlog size, exposed for health checks.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_messages WHERE status = $1`, StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("outbox: count pending: %w", err)
	}
	return n, nil
}
