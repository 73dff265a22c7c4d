package journals

import (
	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
)

// CreateInput groups fields required to create a journal entry.
type CreateInput struct {
	TenantID  string
	Narrative string
	Debits    []ledger.LineInput
	Credits   []ledger.LineInput
}

// Validate ensures creation input meets minimum criteria before the domain
// constructor applies the full invariant set.
func (in CreateInput) Validate() error {
	if in.TenantID == "" {
		return shared.ErrTenantRequired
	}
	if len(in.Debits) == 0 || len(in.Credits) == 0 {
		return shared.ErrEmptySide
	}
	for _, line := range append(append([]ledger.LineInput{}, in.Debits...), in.Credits...) {
		if line.AccountID == uuid.Nil {
			return shared.ErrAccountNotFound
		}
	}
	return nil
}

// PostInput identifies the Pending entry to post.
type PostInput struct {
	TenantID string
	EntryID  uuid.UUID
}

// CancelInput identifies the Pending entry to cancel.
type CancelInput struct {
	TenantID string
	EntryID  uuid.UUID
}
