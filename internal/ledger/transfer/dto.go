package transfer

import (
	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/ledger/shared"
)

// ExecuteInput groups the parameters of one fast transfer.
type ExecuteInput struct {
	IdempotencyKey string
	TenantID       string
	SourceAccount  uuid.UUID
	DestAccount    uuid.UUID
	MinorAmount    int64
	Currency       string
	Narrative      string
}

// Validate rejects structurally invalid requests before any I/O.
func (in ExecuteInput) Validate() error {
	if in.TenantID == "" {
		return shared.ErrTenantRequired
	}
	if in.IdempotencyKey == "" {
		return shared.ErrIdempotencyKeyRequired
	}
	if in.SourceAccount == uuid.Nil || in.DestAccount == uuid.Nil {
		return shared.ErrAccountNotFound
	}
	if in.SourceAccount == in.DestAccount {
		return shared.ErrAccountsIdentical
	}
	if in.MinorAmount <= 0 {
		return shared.ErrNonPositiveAmount
	}
	if in.Currency == "" {
		return shared.ErrCurrencyMismatch
	}
	return nil
}

// Result reports the outcome of an execution. Duplicate means the key had
// already been consumed and no additional movement happened.
type Result struct {
	EntryID   uuid.UUID
	Duplicate bool
}
