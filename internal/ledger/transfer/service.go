// Package transfer implements the money-moving hot path: a single durable
// transaction performing the balance check, idempotency registration, debit,
// credit, posting writes and outbox staging as one committed unit.
package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/koboledger/koboledger/internal/eventlog"
	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
	"github.com/koboledger/koboledger/internal/outbox"
	"github.com/koboledger/koboledger/internal/projection"
)

// Invalidator broadcasts cache eviction keys after a committed write.
type Invalidator interface {
	Broadcast(ctx context.Context, keys ...string)
}

// Metrics receives transfer outcomes.
type Metrics interface {
	TransferExecuted()
	TransferDuplicate()
}

// Service executes fast transfers.
type Service struct {
	repo        Repository
	topic       string
	invalidator Invalidator
	logger      *slog.Logger
	metrics     Metrics
	now         func() time.Time
}

// NewService constructs the executor.
func NewService(repo Repository, topic string, invalidator Invalidator, logger *slog.Logger, metrics Metrics) *Service {
	return &Service{
		repo:        repo,
		topic:       topic,
		invalidator: invalidator,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Execute moves minor units between two accounts exactly once per
// (tenant, idempotency key). Repeating a call with a consumed key commits an
// empty transaction and reports Duplicate with the original journal id.
func (s *Service) Execute(ctx context.Context, in ExecuteInput) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	amount := ledger.Money{Amount: in.MinorAmount, Currency: in.Currency}
	var res Result
	var invalidateKeys []string

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src, dst, err := tx.LockAccountPair(ctx, in.TenantID, in.SourceAccount, in.DestAccount)
		if err != nil {
			return err
		}
		if src.Class == ledger.ClassAsset && src.BalanceMinor < in.MinorAmount {
			return shared.ErrInsufficientFunds
		}

		bookingTime := s.now().UTC()
		entry, err := ledger.NewJournalEntry(in.TenantID, bookingTime, in.Narrative,
			[]ledger.LineInput{{AccountID: src.ID, AmountMinor: in.MinorAmount, Currency: in.Currency}},
			[]ledger.LineInput{{AccountID: dst.ID, AmountMinor: in.MinorAmount, Currency: in.Currency}})
		if err != nil {
			return err
		}

		outcome, err := tx.EnsureOnce(ctx, in.TenantID, in.IdempotencyKey, entry.ID)
		if err != nil {
			return err
		}
		if outcome == AlreadySeen {
			res.Duplicate = true
			return nil
		}

		debited, err := src.Debit(amount)
		if err != nil {
			return err
		}
		credited, err := dst.Credit(amount)
		if err != nil {
			return err
		}
		if err := entry.MarkPosted(); err != nil {
			return err
		}

		if err := tx.UpdateAccountBalance(ctx, src); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, dst); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.InsertPostings(ctx, append(entry.Debits, entry.Credits...)); err != nil {
			return err
		}

		evt := eventlog.BalanceMovedEvent{
			TenantID:           in.TenantID,
			Source:             src.ID.String(),
			Dest:               dst.ID.String(),
			MinorAmount:        in.MinorAmount,
			Currency:           in.Currency,
			EntryID:            entry.ID.String(),
			BookingTimeMs:      bookingTime.UnixMilli(),
			SourceBalanceAfter: &debited.New,
			DestBalanceAfter:   &credited.New,
		}
		payload, err := evt.Encode()
		if err != nil {
			return err
		}
		if err := tx.EnqueueOutbox(ctx, outbox.NewMessage(s.topic, evt.PartitionKey(), payload)); err != nil {
			return err
		}

		res.EntryID = entry.ID
		invalidateKeys = []string{
			projection.Key(in.TenantID, src.ID.String(), in.Currency),
			projection.Key(in.TenantID, dst.ID.String(), in.Currency),
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Duplicate {
		entryID, err := s.repo.EntryIDForKey(ctx, in.TenantID, in.IdempotencyKey)
		if err == nil {
			res.EntryID = entryID
		} else {
			s.logger.Warn("resolve duplicate entry id", slog.Any("error", err))
		}
		if s.metrics != nil {
			s.metrics.TransferDuplicate()
		}
		return res, nil
	}

	if s.invalidator != nil {
		s.invalidator.Broadcast(ctx, invalidateKeys...)
	}
	if s.metrics != nil {
		s.metrics.TransferExecuted()
	}
	return res, nil
}
