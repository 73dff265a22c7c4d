package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
	"github.com/koboledger/koboledger/internal/outbox"
)

// Repository encapsulates DB operations for the slow-path poster.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, tenant string, id uuid.UUID) (ledger.JournalEntry, error)
	ListEntries(ctx context.Context, tenant string, limit int) ([]ledger.JournalEntry, error)
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry ledger.JournalEntry) error
	InsertPostings(ctx context.Context, postings []ledger.Posting) error
	GetEntryForUpdate(ctx context.Context, tenant string, id uuid.UUID) (ledger.JournalEntry, error)
	LockAccounts(ctx context.Context, tenant string, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error)
	UpdateAccountBalance(ctx context.Context, acct *ledger.Account) error
	// UpdateEntryStatus performs an optimistic status transition; a missed
	// version means another writer got there first.
	UpdateEntryStatus(ctx context.Context, tenant string, id uuid.UUID, status ledger.EntryStatus, expectedVersion int64) error
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
		return fmt.Errorf("journals: begin tx: %w", shared.ErrPersistence)
	}
	wrapper := &txRepository{tx: tx, outbox: r.outbox}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journals: commit: %w", shared.ErrPersistence)
	}
	return nil
}

func (r *repository) GetEntry(ctx context.Context, tenant string, id uuid.UUID) (ledger.JournalEntry, error) {
	entry, err := scanEntry(ctx, r.pool, tenant, id, "")
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) ListEntries(ctx context.Context, tenant string, limit int) ([]ledger.JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, booking_time, narrative, status, version, created_at, updated_at
FROM journal_entries WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2`, tenant, limit)
	if err != nil {
		return nil, wrapPersistence("journals: list", err)
	}
	defer rows.Close()
	var entries []ledger.JournalEntry
	for rows.Next() {
		var e ledger.JournalEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.BookingTime, &e.Narrative, &e.Status, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, wrapPersistence("journals: list scan", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanEntry(ctx context.Context, q querier, tenant string, id uuid.UUID, lockSuffix string) (ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	err := q.QueryRow(ctx, `SELECT id, tenant_id, booking_time, narrative, status, version, created_at, updated_at
FROM journal_entries WHERE tenant_id=$1 AND id=$2`+lockSuffix, tenant, id).
		Scan(&e.ID, &e.TenantID, &e.BookingTime, &e.Narrative, &e.Status, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.JournalEntry{}, shared.ErrEntryNotFound
		}
		return ledger.JournalEntry{}, wrapPersistence("journals: get entry", err)
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, tenant_id, account_id, side, amount_minor, currency
FROM postings WHERE entry_id=$1 ORDER BY id`, id)
	if err != nil {
		return ledger.JournalEntry{}, wrapPersistence("journals: get postings", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ledger.Posting
		if err := rows.Scan(&p.ID, &p.EntryID, &p.TenantID, &p.AccountID, &p.Side, &p.AmountMinor, &p.Currency); err != nil {
			return ledger.JournalEntry{}, wrapPersistence("journals: scan posting", err)
		}
		if p.Side == ledger.SideDebit {
			e.Debits = append(e.Debits, p)
		} else {
			e.Credits = append(e.Credits, p)
		}
	}
	return e, rows.Err()
}

type txRepository struct {
	tx     pgx.Tx
	outbox *outbox.Store
}

func (r *txRepository) InsertEntry(ctx context.Context, entry ledger.JournalEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries (id, tenant_id, booking_time, narrative, status, version)
VALUES ($1, $2, $3, $4, $5, 1)`, entry.ID, entry.TenantID, entry.BookingTime, entry.Narrative, entry.Status)
	if err != nil {
		return wrapPersistence("journals: insert entry", err)
	}
	return nil
}

func (r *txRepository) InsertPostings(ctx context.Context, postings []ledger.Posting) error {
	for _, p := range postings {
		if _, err := r.tx.Exec(ctx, `INSERT INTO postings (id, entry_id, tenant_id, account_id, side, amount_minor, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, p.ID, p.EntryID, p.TenantID, p.AccountID, p.Side, p.AmountMinor, p.Currency); err != nil {
			return wrapPersistence("journals: insert posting", err)
		}
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenant string, id uuid.UUID) (ledger.JournalEntry, error) {
	return scanEntry(ctx, r.tx, tenant, id, " FOR UPDATE")
}

func (r *txRepository) LockAccounts(ctx context.Context, tenant string, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error) {
	// Deterministic lock order across all writers.
	sorted := append([]uuid.UUID{}, ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, currency, class, balance_minor, active, created_at, updated_at
FROM accounts WHERE tenant_id=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, tenant, sorted)
	if err != nil {
		return nil, wrapPersistence("journals: lock accounts", err)
	}
	defer rows.Close()
	accounts := make(map[uuid.UUID]*ledger.Account, len(ids))
	for rows.Next() {
		var acct ledger.Account
		if err := rows.Scan(&acct.ID, &acct.TenantID, &acct.Currency, &acct.Class, &acct.BalanceMinor, &acct.Active, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, wrapPersistence("journals: scan account", err)
		}
		cp := acct
		accounts[acct.ID] = &cp
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPersistence("journals: lock accounts", err)
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, shared.ErrAccountNotFound
		}
	}
	return accounts, nil
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, acct *ledger.Account) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance_minor=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		acct.TenantID, acct.ID, acct.BalanceMinor)
	if err != nil {
		return wrapPersistence("journals: update balance", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, tenant string, id uuid.UUID, status ledger.EntryStatus, expectedVersion int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$3, version=version+1, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND version=$4`, tenant, id, status, expectedVersion)
	if err != nil {
		return wrapPersistence("journals: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func (r *txRepository) EnqueueOutbox(ctx context.Context, msg outbox.Message) error {
	return r.outbox.Enqueue(ctx, r.tx, msg)
}

func wrapPersistence(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %s: %w", op, pgErr.Code, shared.ErrPersistence)
	}
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrPersistence)
}
