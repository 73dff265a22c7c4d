// Package balance serves balance reads by hedging the cache projection
// against the durable store, and carries the write-side invalidation
// broadcast that shrinks the projection's staleness window.
package balance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/projection"
)

// Source labels where a balance answer came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

// Result is a resolved balance read.
type Result struct {
	MinorBalance int64
	Source       Source
}

// CacheReader is the projection-store slice the reader consumes.
type CacheReader interface {
	Get(ctx context.Context, tenant, account, currency string) (projection.Balance, bool, error)
	Backfill(ctx context.Context, tenant, account, currency string, balance int64) error
}

// StoreReader reads the authoritative balance from the durable store.
type StoreReader interface {
	Balance(ctx context.Context, tenant string, account uuid.UUID, currency string) (int64, error)
}

// ReaderMetrics records which branch of the hedge won.
type ReaderMetrics interface {
	BalanceRead(source string)
}

// Reader races a cache lookup against a delayed durable-store read. The
// common case (cache hit) answers in near-zero time without touching the
// store; a miss or a slow cache never waits longer than the direct store
// round trip plus the hedge delay.
type Reader struct {
	cache   CacheReader
	store   StoreReader
	delay   time.Duration
	logger  *slog.Logger
	metrics ReaderMetrics
}

// NewReader constructs a hedged reader. delay defaults to 12ms.
func NewReader(cache CacheReader, store StoreReader, delay time.Duration, logger *slog.Logger, metrics ReaderMetrics) *Reader {
	if delay <= 0 {
		delay = 12 * time.Millisecond
	}
	return &Reader{cache: cache, store: store, delay: delay, logger: logger, metrics: metrics}
}

type cacheAnswer struct {
	bal projection.Balance
	ok  bool
}

// GetBalance resolves a balance, reporting the winning source. Cache
// failures are treated as misses; the read fails only if the durable store
// read fails after the cache could not answer.
func (r *Reader) GetBalance(ctx context.Context, tenant string, account uuid.UUID, currency string) (Result, error) {
	cacheCh := make(chan cacheAnswer, 1)
	storeCh := make(chan int64, 1)
	storeErrCh := make(chan error, 1)

	go func() {
		bal, ok, err := r.cache.Get(ctx, tenant, account.String(), currency)
		if err != nil {
			// Fail open: an unavailable cache is a miss, never a failed read.
			r.logger.Warn("balance cache read", slog.Any("error", err))
			cacheCh <- cacheAnswer{}
			return
		}
		cacheCh <- cacheAnswer{bal: bal, ok: ok}
	}()

	startStore := func() {
		go func() {
			v, err := r.store.Balance(ctx, tenant, account, currency)
			if err != nil {
				storeErrCh <- err
				return
			}
			storeCh <- v
		}()
	}

	hedge := time.NewTimer(r.delay)
	defer hedge.Stop()

	storeStarted := false
	var cacheMissed bool
	var storeFailed error
	for {
		select {
		case ans := <-cacheCh:
			if ans.ok {
				r.observe(SourceCache)
				return Result{MinorBalance: ans.bal.MinorBalance, Source: SourceCache}, nil
			}
			// Definite miss: the store branch is now authoritative.
			cacheMissed = true
			if storeFailed != nil {
				return Result{}, storeFailed
			}
			if !storeStarted {
				storeStarted = true
				startStore()
			}
			cacheCh = nil
		case <-hedge.C:
			if !storeStarted {
				storeStarted = true
				startStore()
			}
		case v := <-storeCh:
			if cacheMissed {
				r.backfill(ctx, tenant, account.String(), currency, v)
			}
			r.observe(SourceStore)
			return Result{MinorBalance: v, Source: SourceStore}, nil
		case err := <-storeErrCh:
			if cacheMissed {
				return Result{}, err
			}
			// Store branch lost and failed; the cache may still answer.
			storeFailed = err
			storeCh = nil
			storeErrCh = nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

func (r *Reader) backfill(ctx context.Context, tenant, account, currency string, value int64) {
	if err := r.cache.Backfill(ctx, tenant, account, currency, value); err != nil {
		r.logger.Warn("balance cache backfill", slog.Any("error", err))
	}
}

func (r *Reader) observe(src Source) {
	if r.metrics != nil {
		r.metrics.BalanceRead(string(src))
	}
}
