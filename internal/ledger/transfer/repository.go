package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
	"github.com/koboledger/koboledger/internal/outbox"
)

// Repository encapsulates the durable-store operations of the fast path.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	EntryIDForKey(ctx context.Context, tenant, key string) (uuid.UUID, error)
	CleanupKeys(ctx context.Context, olderThan time.Duration) (int64, error)
}

// TxRepository exposes the statements available inside the transfer
// transaction. The transaction boundary is the unit of atomicity: either all
// of its writes commit or none do.
type TxRepository interface {
	// LockAccountPair loads both accounts under row locks, always acquiring
	// them in a deterministic order so concurrent transfers cannot deadlock.
	LockAccountPair(ctx context.Context, tenant string, a, b uuid.UUID) (*ledger.Account, *ledger.Account, error)
	// EnsureOnce registers the (tenant, key) pair. AlreadySeen is returned
	// when the uniqueness constraint reports a prior insert.
	EnsureOnce(ctx context.Context, tenant, key string, entryID uuid.UUID) (Outcome, error)
	UpdateAccountBalance(ctx context.Context, acct *ledger.Account) error
	InsertEntry(ctx context.Context, entry ledger.JournalEntry) error
	InsertPostings(ctx context.Context, postings []ledger.Posting) error
	EnqueueOutbox(ctx context.Context, msg outbox.Message) error
}

type repository struct {
	pool   *pgxpool.Pool
	outbox *outbox.Store
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool, outboxStore *outbox.Store) Repository {
	return &repository{pool: pool, outbox: outboxStore}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("transfer: begin tx: %w", shared.ErrPersistence)
	}
	wrapper := &txRepository{tx: tx, outbox: r.outbox}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("transfer: commit: %w", shared.ErrPersistence)
	}
	return nil
}

func (r *repository) EntryIDForKey(ctx context.Context, tenant, key string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT entry_id FROM idempotency_keys WHERE tenant_id=$1 AND key=$2`, tenant, key).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, shared.ErrEntryNotFound
		}
		return uuid.Nil, fmt.Errorf("transfer: entry for key: %w", err)
	}
	return id, nil
}

// CleanupKeys removes idempotency records older than the retention window.
func (r *repository) CleanupKeys(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < NOW() - $1::interval`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("transfer: cleanup keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

type txRepository struct {
	tx     pgx.Tx
	outbox *outbox.Store
}

func (r *txRepository) LockAccountPair(ctx context.Context, tenant string, a, b uuid.UUID) (*ledger.Account, *ledger.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, currency, class, balance_minor, active, created_at, updated_at
FROM accounts WHERE tenant_id=$1 AND id IN ($2, $3) ORDER BY id FOR UPDATE`, tenant, a, b)
	if err != nil {
		return nil, nil, fmt.Errorf("transfer: lock accounts: %w", err)
	}
	defer rows.Close()

	found := make(map[uuid.UUID]*ledger.Account, 2)
	for rows.Next() {
		var acct ledger.Account
		if err := rows.Scan(&acct.ID, &acct.TenantID, &acct.Currency, &acct.Class, &acct.BalanceMinor, &acct.Active, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("transfer: scan account: %w", err)
		}
		cp := acct
		found[acct.ID] = &cp
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("transfer: lock accounts: %w", err)
	}
	src, ok := found[a]
	if !ok {
		return nil, nil, shared.ErrAccountNotFound
	}
	dst, ok := found[b]
	if !ok {
		return nil, nil, shared.ErrAccountNotFound
	}
	return src, dst, nil
}

func (r *txRepository) EnsureOnce(ctx context.Context, tenant, key string, entryID uuid.UUID) (Outcome, error) {
	// ON CONFLICT DO NOTHING keeps the transaction alive on a losing insert,
	// so the duplicate path can still commit cleanly with no side effect.
	tag, err := r.tx.Exec(ctx, `INSERT INTO idempotency_keys (tenant_id, key, entry_id, created_at)
VALUES ($1, $2, $3, NOW()) ON CONFLICT (tenant_id, key) DO NOTHING`, tenant, key, entryID)
	if err != nil {
		return Accepted, fmt.Errorf("transfer: ensure once: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return AlreadySeen, nil
	}
	return Accepted, nil
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, acct *ledger.Account) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance_minor=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		acct.TenantID, acct.ID, acct.BalanceMinor)
	if err != nil {
		return fmt.Errorf("transfer: update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) InsertEntry(ctx context.Context, entry ledger.JournalEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, tenant_id, booking_time, narrative, status, version)
VALUES ($1, $2, $3, $4, $5, 1)`, entry.ID, entry.TenantID, entry.BookingTime, entry.Narrative, entry.Status)
	if err != nil {
		return fmt.Errorf("transfer: insert entry: %w", err)
	}
	return nil
}

func (r *txRepository) InsertPostings(ctx context.Context, postings []ledger.Posting) error {
	for _, p := range postings {
		if _, err := r.tx.Exec(ctx, `INSERT INTO postings (id, entry_id, tenant_id, account_id, side, amount_minor, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, p.ID, p.EntryID, p.TenantID, p.AccountID, p.Side, p.AmountMinor, p.Currency); err != nil {
			return fmt.Errorf("transfer: insert posting: %w", err)
		}
	}
	return nil
}

func (r *txRepository) EnqueueOutbox(ctx context.Context, msg outbox.Message) error {
	return r.outbox.Enqueue(ctx, r.tx, msg)
}
