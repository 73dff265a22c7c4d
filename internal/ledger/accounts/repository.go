package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
)

// Repository persists accounts.
type Repository interface {
	Insert(ctx context.Context, acct ledger.Account) error
	Get(ctx context.Context, tenant string, id uuid.UUID) (ledger.Account, error)
	SetActive(ctx context.Context, tenant string, id uuid.UUID, active bool) error
	// Balance is the direct durable-store read used by the hedged reader.
	Balance(ctx context.Context, tenant string, id uuid.UUID, currency string) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Insert(ctx context.Context, acct ledger.Account) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO accounts (id, tenant_id, currency, class, balance_minor, active)
VALUES ($1, $2, $3, $4, $5, $6)`, acct.ID, acct.TenantID, acct.Currency, acct.Class, acct.BalanceMinor, acct.Active)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrConcurrencyConflict
		}
		return fmt.Errorf("accounts: insert: %w", shared.ErrPersistence)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, tenant string, id uuid.UUID) (ledger.Account, error) {
	var acct ledger.Account
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, currency, class, balance_minor, active, created_at, updated_at
FROM accounts WHERE tenant_id=$1 AND id=$2`, tenant, id).
		Scan(&acct.ID, &acct.TenantID, &acct.Currency, &acct.Class, &acct.BalanceMinor, &acct.Active, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Account{}, shared.ErrAccountNotFound
		}
		return ledger.Account{}, fmt.Errorf("accounts: get: %w", shared.ErrPersistence)
	}
	return acct, nil
}

func (r *repository) SetActive(ctx context.Context, tenant string, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET active=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenant, id, active)
	if err != nil {
		return fmt.Errorf("accounts: set active: %w", shared.ErrPersistence)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *repository) Balance(ctx context.Context, tenant string, id uuid.UUID, currency string) (int64, error) {
	var bal int64
	err := r.pool.QueryRow(ctx, `SELECT balance_minor FROM accounts WHERE tenant_id=$1 AND id=$2 AND currency=$3`,
		tenant, id, currency).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrAccountNotFound
		}
		return 0, fmt.Errorf("accounts: balance: %w", shared.ErrPersistence)
	}
	return bal, nil
}
