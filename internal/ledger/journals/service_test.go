package journals

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/koboledger/koboledger/internal/eventlog"
	"github.com/koboledger/koboledger/internal/ledger"
	"github.com/koboledger/koboledger/internal/ledger/shared"
	"github.com/koboledger/koboledger/internal/outbox"
)

type memoryJournalRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]ledger.Account
	entries  map[uuid.UUID]ledger.JournalEntry
	outbox   []outbox.Message

	conflictOnStatus bool
}

func newMemoryJournalRepo() *memoryJournalRepo {
	return &memoryJournalRepo{
		accounts: make(map[uuid.UUID]ledger.Account),
		entries:  make(map[uuid.UUID]ledger.JournalEntry),
	}
}

type memoryJournalTx struct {
	repo     *memoryJournalRepo
	accounts map[uuid.UUID]ledger.Account
	entries  map[uuid.UUID]ledger.JournalEntry
	outbox   []outbox.Message
}

func (r *memoryJournalRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryJournalTx{
		repo:     r,
		accounts: make(map[uuid.UUID]ledger.Account),
		entries:  make(map[uuid.UUID]ledger.JournalEntry),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, acct := range tx.accounts {
		r.accounts[id] = acct
	}
	for id, entry := range tx.entries {
		r.entries[id] = entry
	}
	r.outbox = append(r.outbox, tx.outbox...)
	return nil
}

func (r *memoryJournalRepo) GetEntry(ctx context.Context, tenant string, id uuid.UUID) (ledger.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || entry.TenantID != tenant {
		return ledger.JournalEntry{}, shared.ErrEntryNotFound
	}
	return entry, nil
}

func (r *memoryJournalRepo) ListEntries(ctx context.Context, tenant string, limit int) ([]ledger.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.JournalEntry
	for _, entry := range r.entries {
		if entry.TenantID == tenant {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (t *memoryJournalTx) InsertEntry(ctx context.Context, entry ledger.JournalEntry) error {
	t.entries[entry.ID] = entry
	return nil
}

func (t *memoryJournalTx) InsertPostings(ctx context.Context, postings []ledger.Posting) error {
	return nil
}

func (t *memoryJournalTx) GetEntryForUpdate(ctx context.Context, tenant string, id uuid.UUID) (ledger.JournalEntry, error) {
	entry, ok := t.repo.entries[id]
	if !ok || entry.TenantID != tenant {
		return ledger.JournalEntry{}, shared.ErrEntryNotFound
	}
	return entry, nil
}

func (t *memoryJournalTx) LockAccounts(ctx context.Context, tenant string, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error) {
	out := make(map[uuid.UUID]*ledger.Account, len(ids))
	for _, id := range ids {
		acct, ok := t.repo.accounts[id]
		if !ok || acct.TenantID != tenant {
			return nil, shared.ErrAccountNotFound
		}
		cp := acct
		out[id] = &cp
	}
	return out, nil
}

func (t *memoryJournalTx) UpdateAccountBalance(ctx context.Context, acct *ledger.Account) error {
	t.accounts[acct.ID] = *acct
	return nil
}

func (t *memoryJournalTx) UpdateEntryStatus(ctx context.Context, tenant string, id uuid.UUID, status ledger.EntryStatus, expectedVersion int64) error {
	if t.repo.conflictOnStatus {
		return shared.ErrConcurrencyConflict
	}
	entry, ok := t.repo.entries[id]
	if !ok || entry.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	entry.Status = status
	entry.Version++
	t.entries[id] = entry
	return nil
}

func (t *memoryJournalTx) EnqueueOutbox(ctx context.Context, msg outbox.Message) error {
	t.outbox = append(t.outbox, msg)
	return nil
}

type captureInvalidator struct {
	keys []string
}

func (c *captureInvalidator) Broadcast(ctx context.Context, keys ...string) {
	c.keys = append(c.keys, keys...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func journalFixture(t *testing.T) (*Service, *memoryJournalRepo, *captureInvalidator, uuid.UUID, uuid.UUID, uuid.UUID) {
	t.Helper()
	repo := newMemoryJournalRepo()
	cashID := uuid.New()
	feeID := uuid.New()
	revenueID := uuid.New()
	repo.accounts[cashID] = ledger.Account{ID: cashID, TenantID: "tenant-1", Currency: "NGN", Class: ledger.ClassAsset, BalanceMinor: 10_000, Active: true}
	repo.accounts[feeID] = ledger.Account{ID: feeID, TenantID: "tenant-1", Currency: "NGN", Class: ledger.ClassExpense, BalanceMinor: 0, Active: true}
	repo.accounts[revenueID] = ledger.Account{ID: revenueID, TenantID: "tenant-1", Currency: "NGN", Class: ledger.ClassRevenue, BalanceMinor: 0, Active: true}

	invalidator := &captureInvalidator{}
	svc := NewService(repo, "ledger.balance-moved", invalidator, discardLogger())
	return svc, repo, invalidator, cashID, feeID, revenueID
}

func TestCreatePendingEntry(t *testing.T) {
	svc, repo, _, cashID, _, revenueID := journalFixture(t)

	entry, err := svc.Create(context.Background(), CreateInput{
		TenantID:  "tenant-1",
		Narrative: "monthly fee accrual",
		Debits:    []ledger.LineInput{{AccountID: cashID, AmountMinor: 1_200, Currency: "NGN"}},
		Credits:   []ledger.LineInput{{AccountID: revenueID, AmountMinor: 1_200, Currency: "NGN"}},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, entry.Status)

	stored := repo.entries[entry.ID]
	require.Equal(t, ledger.StatusPending, stored.Status)
	require.Equal(t, int64(10_000), repo.accounts[cashID].BalanceMinor)
	require.Empty(t, repo.outbox)
}

func TestCreateRejectsUnbalanced(t *testing.T) {
	svc, _, _, cashID, _, revenueID := journalFixture(t)

	_, err := svc.Create(context.Background(), CreateInput{
		TenantID: "tenant-1",
		Debits:   []ledger.LineInput{{AccountID: cashID, AmountMinor: 1_000, Currency: "NGN"}},
		Credits:  []ledger.LineInput{{AccountID: revenueID, AmountMinor: 900, Currency: "NGN"}},
	})
	require.ErrorIs(t, err, shared.ErrUnbalanced)
}

func TestPostAppliesMultiLineEntry(t *testing.T) {
	svc, repo, invalidator, cashID, feeID, revenueID := journalFixture(t)

	entry, err := svc.Create(context.Background(), CreateInput{
		TenantID:  "tenant-1",
		Narrative: "split settlement",
		Debits: []ledger.LineInput{
			{AccountID: cashID, AmountMinor: 3_000, Currency: "NGN"},
			{AccountID: feeID, AmountMinor: 500, Currency: "NGN"},
		},
		Credits: []ledger.LineInput{{AccountID: revenueID, AmountMinor: 3_500, Currency: "NGN"}},
	})
	require.NoError(t, err)

	posted, err := svc.Post(context.Background(), PostInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPosted, posted.Status)
	require.Equal(t, entry.Version+1, posted.Version)

	require.Equal(t, int64(7_000), repo.accounts[cashID].BalanceMinor)
	require.Equal(t, int64(-500), repo.accounts[feeID].BalanceMinor)
	require.Equal(t, int64(3_500), repo.accounts[revenueID].BalanceMinor)

	// One staged event per posting line, each carrying only its own side.
	require.Len(t, repo.outbox, 3)
	for _, msg := range repo.outbox {
		evt, err := eventlog.DecodeBalanceMoved(msg.Payload)
		require.NoError(t, err)
		require.Equal(t, "tenant-1", evt.TenantID)
		require.Equal(t, entry.ID.String(), evt.EntryID)
		if evt.Source != "" {
			require.NotNil(t, evt.SourceBalanceAfter)
			require.Empty(t, evt.Dest)
		} else {
			require.NotEmpty(t, evt.Dest)
			require.NotNil(t, evt.DestBalanceAfter)
		}
	}
	require.Len(t, invalidator.keys, 3)
}

func TestPostIsTerminal(t *testing.T) {
	svc, _, _, cashID, _, revenueID := journalFixture(t)

	entry, err := svc.Create(context.Background(), CreateInput{
		TenantID: "tenant-1",
		Debits:   []ledger.LineInput{{AccountID: cashID, AmountMinor: 100, Currency: "NGN"}},
		Credits:  []ledger.LineInput{{AccountID: revenueID, AmountMinor: 100, Currency: "NGN"}},
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = svc.Cancel(context.Background(), CancelInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestCancelPendingEntry(t *testing.T) {
	svc, repo, _, cashID, _, revenueID := journalFixture(t)

	entry, err := svc.Create(context.Background(), CreateInput{
		TenantID: "tenant-1",
		Debits:   []ledger.LineInput{{AccountID: cashID, AmountMinor: 100, Currency: "NGN"}},
		Credits:  []ledger.LineInput{{AccountID: revenueID, AmountMinor: 100, Currency: "NGN"}},
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), CancelInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCancelled, cancelled.Status)

	// Balances never moved, and the entry cannot be posted afterwards.
	require.Equal(t, int64(10_000), repo.accounts[cashID].BalanceMinor)
	_, err = svc.Post(context.Background(), PostInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestPostConcurrencyConflictRollsBack(t *testing.T) {
	svc, repo, _, cashID, _, revenueID := journalFixture(t)

	entry, err := svc.Create(context.Background(), CreateInput{
		TenantID: "tenant-1",
		Debits:   []ledger.LineInput{{AccountID: cashID, AmountMinor: 2_000, Currency: "NGN"}},
		Credits:  []ledger.LineInput{{AccountID: revenueID, AmountMinor: 2_000, Currency: "NGN"}},
	})
	require.NoError(t, err)

	repo.conflictOnStatus = true
	_, err = svc.Post(context.Background(), PostInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	require.Equal(t, int64(10_000), repo.accounts[cashID].BalanceMinor)
	require.Equal(t, int64(0), repo.accounts[revenueID].BalanceMinor)
	require.Empty(t, repo.outbox)
	require.Equal(t, ledger.StatusPending, repo.entries[entry.ID].Status)
}

func TestPostInsufficientFundsRollsBack(t *testing.T) {
	svc, repo, _, cashID, _, revenueID := journalFixture(t)

	entry, err := svc.Create(context.Background(), CreateInput{
		TenantID: "tenant-1",
		Debits:   []ledger.LineInput{{AccountID: cashID, AmountMinor: 20_000, Currency: "NGN"}},
		Credits:  []ledger.LineInput{{AccountID: revenueID, AmountMinor: 20_000, Currency: "NGN"}},
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{TenantID: "tenant-1", EntryID: entry.ID})
	require.ErrorIs(t, err, shared.ErrInsufficientFunds)
	require.Equal(t, int64(10_000), repo.accounts[cashID].BalanceMinor)
	require.Equal(t, ledger.StatusPending, repo.entries[entry.ID].Status)
	require.Empty(t, repo.outbox)
}

func TestGetUnknownEntry(t *testing.T) {
	svc, _, _, _, _, _ := journalFixture(t)
	_, err := svc.Get(context.Background(), "tenant-1", uuid.New())
	require.ErrorIs(t, err, shared.ErrEntryNotFound)
}
