// Package journals is the general-purpose, multi-line posting path used where
// latency is not critical: fee postings, reconciliations, corrections.
package journals

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/eventlog"
	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/outbox"
	"github.com/koboledger/koboledger/internal/projection"
)

// Invalidator broadcasts cache eviction keys after a committed write.
type Invalidator interface {
	Broadcast(ctx context.Context, keys ...string)
}

// Service creates, posts and cancels journal entries.
type Service struct {
	repo        Repository
	topic       string
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the poster.
func NewService(repo Repository, topic string, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, topic: topic, invalidator: invalidator, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and persists a Pending entry. No balances move until Post.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return ledger.JournalEntry{}, err
	}
	entry, err := ledger.NewJournalEntry(in.TenantID, s.now().UTC(), in.Narrative, in.Debits, in.Credits)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		return tx.InsertPostings(ctx, append(entry.Debits, entry.Credits...))
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

// Post applies a Pending entry to its accounts and stages one outbox event
// per affected account, all in one transaction.
func (s *Service) Post(ctx context.Context, in PostInput) (ledger.JournalEntry, error) {
	var posted ledger.JournalEntry
	var invalidateKeys []string

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, in.TenantID, in.EntryID)
		if err != nil {
			return err
		}
		if err := entry.MarkPosted(); err != nil {
			return err
		}

		accounts, err := tx.LockAccounts(ctx, in.TenantID, accountIDs(entry))
		if err != nil {
			return err
		}

		bookingMs := entry.BookingTime.UnixMilli()
		apply := func(p ledger.Posting, debit bool) error {
			acct := accounts[p.AccountID]
			amount := ledger.Money{Amount: p.AmountMinor, Currency: p.Currency}
			var change ledger.BalanceChange
			var err error
			if debit {
				change, err = acct.Debit(amount)
			} else {
				change, err = acct.Credit(amount)
			}
			if err != nil {
				return err
			}
			evt := eventlog.BalanceMovedEvent{
				TenantID:      in.TenantID,
				MinorAmount:   p.AmountMinor,
				Currency:      p.Currency,
				EntryID:       entry.ID.String(),
				BookingTimeMs: bookingMs,
			}
			if debit {
				evt.Source = p.AccountID.String()
				evt.SourceBalanceAfter = &change.New
			} else {
				evt.Dest = p.AccountID.String()
				evt.DestBalanceAfter = &change.New
			}
			payload, err := evt.Encode()
			if err != nil {
				return err
			}
			if err := tx.EnqueueOutbox(ctx, outbox.NewMessage(s.topic, evt.PartitionKey(), payload)); err != nil {
				return err
			}
			invalidateKeys = append(invalidateKeys, projection.Key(in.TenantID, p.AccountID.String(), p.Currency))
			return nil
		}

		for _, p := range entry.Debits {
			if err := apply(p, true); err != nil {
				return err
			}
		}
		for _, p := range entry.Credits {
			if err := apply(p, false); err != nil {
				return err
			}
		}
		for _, acct := range accounts {
			if err := tx.UpdateAccountBalance(ctx, acct); err != nil {
				return err
			}
		}
		if err := tx.UpdateEntryStatus(ctx, in.TenantID, entry.ID, ledger.StatusPosted, entry.Version); err != nil {
			return err
		}
		entry.Version++
		posted = entry
		return nil
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}

	if s.invalidator != nil {
		s.invalidator.Broadcast(ctx, invalidateKeys...)
	}
	return posted, nil
}

// Cancel transitions a Pending entry to Cancelled. Terminal states reject it.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (ledger.JournalEntry, error) {
	var cancelled ledger.JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, in.TenantID, in.EntryID)
		if err != nil {
			return err
		}
		if err := entry.MarkCancelled(); err != nil {
			return err
		}
		if err := tx.UpdateEntryStatus(ctx, in.TenantID, entry.ID, ledger.StatusCancelled, entry.Version); err != nil {
			return err
		}
		entry.Version++
		cancelled = entry
		return nil
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return cancelled, nil
}

// Get loads an entry with its postings.
func (s *Service) Get(ctx context.Context, tenant string, id uuid.UUID) (ledger.JournalEntry, error) {
	return s.repo.GetEntry(ctx, tenant, id)
}

// List returns recent entries for a tenant.
func (s *Service) List(ctx context.Context, tenant string, limit int) ([]ledger.JournalEntry, error) {
	return s.repo.ListEntries(ctx, tenant, limit)
}

func accountIDs(entry ledger.JournalEntry) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, p := range append(append([]ledger.Posting{}, entry.Debits...), entry.Credits...) {
		if _, ok := seen[p.AccountID]; ok {
			continue
		}
		seen[p.AccountID] = struct{}{}
		ids = append(ids, p.AccountID)
	}
	return ids
}
