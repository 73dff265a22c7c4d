package balance

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type captureEvictor struct {
	mu   sync.Mutex
	keys []string
}

func (e *captureEvictor) Evict(ctx context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, key)
	return nil
}

func (e *captureEvictor) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.keys...)
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	evictor := &captureEvictor{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewSubscriber(client, "", evictor, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Run(ctx)
	}()

	// Give the subscription a moment to register before publishing.
	require.Eventually(t, func() bool {
		return client.PubSubNumSub(ctx, DefaultChannel).Val()[DefaultChannel] == 1
	}, time.Second, 5*time.Millisecond)

	b := NewBroadcaster(client, "", logger)
	b.Broadcast(ctx, "bal:tenant-1:acct-1:NGN", "bal:tenant-1:acct-2:NGN")

	require.Eventually(t, func() bool {
		return len(evictor.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"bal:tenant-1:acct-1:NGN", "bal:tenant-1:acct-2:NGN"}, evictor.snapshot())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop on cancellation")
	}
}

func TestBroadcastNilClientIsNoOp(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var b *Broadcaster
	b.Broadcast(context.Background(), "key")

	b = NewBroadcaster(nil, "custom.channel", logger)
	b.Broadcast(context.Background(), "key")
}
