package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
)

// OpenInput groups fields for opening an account.
type OpenInput struct {
	TenantID string
	Currency string
	Class    ledger.AccountClass
}

// Service manages account lifecycle. Balances are never mutated here; only
// the transfer executor and the journal poster move money.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Open creates an active zero-balance account.
func (s *Service) Open(ctx context.Context, in OpenInput) (ledger.Account, error) {
	if in.TenantID == "" {
		return ledger.Account{}, shared.ErrTenantRequired
	}
	if len(in.Currency) != 3 {
		return ledger.Account{}, shared.ErrCurrencyMismatch
	}
	if !in.Class.Valid() {
		return ledger.Account{}, shared.ErrInvalidClass
	}
	now := s.now().UTC()
	acct := ledger.Account{
		ID:        uuid.New(),
		TenantID:  in.TenantID,
		Currency:  in.Currency,
		Class:     in.Class,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, acct); err != nil {
		return ledger.Account{}, err
	}
	return acct, nil
}

// Get loads an account.
func (s *Service) Get(ctx context.Context, tenant string, id uuid.UUID) (ledger.Account, error) {
	return s.repo.Get(ctx, tenant, id)
}

// Deactivate disables further postings against the account.
func (s *Service) Deactivate(ctx context.Context, tenant string, id uuid.UUID) error {
	return s.repo.SetActive(ctx, tenant, id, false)
}
