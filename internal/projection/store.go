// Package projection maintains the cache-resident balance view derived from
// the committed-event log. The projection is never authoritative; the durable
// ledger balance is the source of truth.
package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Balance is one projected (tenant, account, currency) balance.
type Balance struct {
	MinorBalance int64
	Version      int64
	UpdatedAt    time.Time
}

// applyScript writes a projected balance only when the incoming version is
// strictly greater than the stored one, so replayed or reordered log
// messages can never regress a balance.
var applyScript = redis.NewScript(`
local v = tonumber(redis.call('HGET', KEYS[1], 'v') or '-1')
if tonumber(ARGV[2]) <= v then
	return 0
end
redis.call('HSET', KEYS[1], 'b', ARGV[1], 'v', ARGV[2], 't', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// backfillScript seeds a balance read from the durable store, but only when
// no projected value exists, so it can never clobber a fresher projection.
var backfillScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'b', ARGV[1], 'v', '-1', 't', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Store holds projected balances in Redis with a short TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs the projection store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{client: client, ttl: ttl}
}

// Key composes the cache key for a balance.
func Key(tenant, account, currency string) string {
	return fmt.Sprintf("bal:%s:%s:%s", tenant, account, currency)
}

// Get returns the projected balance and whether one exists.
func (s *Store) Get(ctx context.Context, tenant, account, currency string) (Balance, bool, error) {
	vals, err := s.client.HGetAll(ctx, Key(tenant, account, currency)).Result()
	if err != nil {
		return Balance{}, false, fmt.Errorf("projection: get: %w", err)
	}
	if len(vals) == 0 {
		return Balance{}, false, nil
	}
	var bal Balance
	if _, err := fmt.Sscan(vals["b"], &bal.MinorBalance); err != nil {
		return Balance{}, false, fmt.Errorf("projection: parse balance: %w", err)
	}
	if _, err := fmt.Sscan(vals["v"], &bal.Version); err != nil {
		return Balance{}, false, fmt.Errorf("projection: parse version: %w", err)
	}
	var unixMs int64
	if _, err := fmt.Sscan(vals["t"], &unixMs); err == nil {
		bal.UpdatedAt = time.UnixMilli(unixMs)
	}
	return bal, true, nil
}

// Apply records an absolute balance at the given log offset. It reports
// whether the value was written; false means the stored version was already
// at or past the offset and the incoming fact was ignored.
func (s *Store) Apply(ctx context.Context, tenant, account, currency string, balance, version int64) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := applyScript.Run(ctx, s.client,
		[]string{Key(tenant, account, currency)},
		balance, version, now, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("projection: apply: %w", err)
	}
	return res == 1, nil
}

// Backfill seeds the cache with an authoritative store read. The entry gets
// version -1 so any subsequent log fact overwrites it.
func (s *Store) Backfill(ctx context.Context, tenant, account, currency string, balance int64) error {
	now := time.Now().UnixMilli()
	if err := backfillScript.Run(ctx, s.client,
		[]string{Key(tenant, account, currency)},
		balance, now, s.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("projection: backfill: %w", err)
	}
	return nil
}

// Evict drops a projected balance, typically on an invalidation broadcast.
func (s *Store) Evict(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("projection: evict: %w", err)
	}
	return nil
}
