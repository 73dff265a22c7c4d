package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubKeyCleaner struct {
	gotRetention time.Duration
	removed      int64
}

func (s *stubKeyCleaner) CleanupKeys(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.gotRetention = olderThan
	return s.removed, nil
}

type stubOutboxMaintainer struct {
	requeued     int64
	pruned       int64
	gotRetention time.Duration
}

func (s *stubOutboxMaintainer) RequeueFailed(ctx context.Context) (int64, error) {
	return s.requeued, nil
}

func (s *stubOutboxMaintainer) DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.gotRetention = olderThan
	return s.pruned, nil
}

func maintenanceFixture() (*Maintenance, *stubKeyCleaner, *stubOutboxMaintainer) {
	keys := &stubKeyCleaner{removed: 3}
	ob := &stubOutboxMaintainer{requeued: 2, pruned: 5}
	m := &Maintenance{
		Keys:   keys,
		Outbox: ob,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return m, keys, ob
}

func TestHandleIdempotencyCleanup(t *testing.T) {
	m, keys, _ := maintenanceFixture()

	task, err := NewIdempotencyCleanupTask(168 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.HandleIdempotencyCleanup(context.Background(), task))
	require.Equal(t, 168*time.Hour, keys.gotRetention)
}

func TestHandleOutboxRequeue(t *testing.T) {
	m, _, _ := maintenanceFixture()

	task, err := NewOutboxRequeueTask()
	require.NoError(t, err)
	require.NoError(t, m.HandleOutboxRequeue(context.Background(), task))
}

func TestHandleOutboxPrune(t *testing.T) {
	m, _, ob := maintenanceFixture()

	task, err := NewOutboxPruneTask(72 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, m.HandleOutboxPrune(context.Background(), task))
	require.Equal(t, 72*time.Hour, ob.gotRetention)
}
