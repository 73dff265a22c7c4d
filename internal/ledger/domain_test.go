package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/koboledger/koboledger/internal/ledger/shared"
)

func activeAccount(class AccountClass, balance int64) *Account {
	return &Account{
		ID:           uuid.New(),
		TenantID:     "tenant-1",
		Currency:     "NGN",
		Class:        class,
		BalanceMinor: balance,
		Active:       true,
	}
}

func TestAccountClassValid(t *testing.T) {
	for _, class := range []AccountClass{ClassAsset, ClassLiability, ClassEquity, ClassRevenue, ClassExpense} {
		require.True(t, class.Valid(), string(class))
	}
	require.False(t, AccountClass("GOODWILL").Valid())
	require.False(t, AccountClass("").Valid())
}

func TestCurrencyScale(t *testing.T) {
	require.Equal(t, 2, CurrencyScale("NGN"))
	require.Equal(t, 0, CurrencyScale("JPY"))
	require.Equal(t, 3, CurrencyScale("KWD"))
}

func TestAccountDebitCredit(t *testing.T) {
	acc := activeAccount(ClassAsset, 10_000)

	change, err := acc.Debit(Money{Amount: 3_000, Currency: "NGN"})
	require.NoError(t, err)
	require.Equal(t, int64(10_000), change.Previous)
	require.Equal(t, int64(7_000), change.New)
	require.Equal(t, int64(-3_000), change.Delta)
	require.Equal(t, int64(7_000), acc.BalanceMinor)

	change, err = acc.Credit(Money{Amount: 500, Currency: "NGN"})
	require.NoError(t, err)
	require.Equal(t, int64(7_500), change.New)
	require.Equal(t, int64(500), change.Delta)
}

func TestAccountAssetCannotGoNegative(t *testing.T) {
	acc := activeAccount(ClassAsset, 100)

	_, err := acc.Debit(Money{Amount: 101, Currency: "NGN"})
	require.ErrorIs(t, err, shared.ErrInsufficientFunds)
	require.Equal(t, int64(100), acc.BalanceMinor)

	// Exactly to zero is allowed.
	_, err = acc.Debit(Money{Amount: 100, Currency: "NGN"})
	require.NoError(t, err)
	require.Equal(t, int64(0), acc.BalanceMinor)
}

func TestAccountNonAssetMayGoNegative(t *testing.T) {
	for _, class := range []AccountClass{ClassLiability, ClassEquity, ClassRevenue, ClassExpense} {
		acc := activeAccount(class, 50)
		_, err := acc.Debit(Money{Amount: 200, Currency: "NGN"})
		require.NoError(t, err, string(class))
		require.Equal(t, int64(-150), acc.BalanceMinor)
	}
}

func TestAccountMutationGuards(t *testing.T) {
	acc := activeAccount(ClassAsset, 1_000)

	_, err := acc.Credit(Money{Amount: 100, Currency: "USD"})
	require.ErrorIs(t, err, shared.ErrCurrencyMismatch)

	_, err = acc.Credit(Money{Amount: 0, Currency: "NGN"})
	require.ErrorIs(t, err, shared.ErrNonPositiveAmount)

	_, err = acc.Debit(Money{Amount: -5, Currency: "NGN"})
	require.ErrorIs(t, err, shared.ErrNonPositiveAmount)

	acc.Active = false
	_, err = acc.Credit(Money{Amount: 100, Currency: "NGN"})
	require.ErrorIs(t, err, shared.ErrInactiveAccount)
	require.Equal(t, int64(1_000), acc.BalanceMinor)
}

func TestNewJournalEntryBalanced(t *testing.T) {
	now := time.Now()
	debits := []LineInput{
		{AccountID: uuid.New(), AmountMinor: 3_000, Currency: "NGN"},
		{AccountID: uuid.New(), AmountMinor: 2_000, Currency: "NGN"},
	}
	credits := []LineInput{
		{AccountID: uuid.New(), AmountMinor: 5_000, Currency: "NGN"},
	}

	entry, err := NewJournalEntry("tenant-1", now, "supplier settlement", debits, credits)
	require.NoError(t, err)
	require.Equal(t, StatusPending, entry.Status)
	require.Equal(t, "NGN", entry.Currency())
	require.Equal(t, int64(5_000), entry.TotalMinor())
	require.Len(t, entry.Debits, 2)
	require.Len(t, entry.Credits, 1)
	for _, p := range entry.Debits {
		require.Equal(t, entry.ID, p.EntryID)
		require.Equal(t, SideDebit, p.Side)
	}
	for _, p := range entry.Credits {
		require.Equal(t, SideCredit, p.Side)
	}
}

func TestNewJournalEntryRejectsInvalid(t *testing.T) {
	now := time.Now()
	line := func(amount int64, currency string) LineInput {
		return LineInput{AccountID: uuid.New(), AmountMinor: amount, Currency: currency}
	}

	_, err := NewJournalEntry("", now, "", []LineInput{line(100, "NGN")}, []LineInput{line(100, "NGN")})
	require.ErrorIs(t, err, shared.ErrTenantRequired)

	_, err = NewJournalEntry("tenant-1", now, "", nil, []LineInput{line(100, "NGN")})
	require.ErrorIs(t, err, shared.ErrEmptySide)

	_, err = NewJournalEntry("tenant-1", now, "", []LineInput{line(100, "NGN")}, []LineInput{line(90, "NGN")})
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	_, err = NewJournalEntry("tenant-1", now, "", []LineInput{line(100, "NGN")}, []LineInput{line(100, "USD")})
	require.ErrorIs(t, err, shared.ErrCurrencyMismatch)

	_, err = NewJournalEntry("tenant-1", now, "", []LineInput{line(0, "NGN")}, []LineInput{line(0, "NGN")})
	require.ErrorIs(t, err, shared.ErrNonPositiveAmount)
}

func TestJournalEntryStatusTransitions(t *testing.T) {
	entry := JournalEntry{Status: StatusPending}
	require.NoError(t, entry.MarkPosted())
	require.Equal(t, StatusPosted, entry.Status)
	require.ErrorIs(t, entry.MarkPosted(), shared.ErrInvalidStatus)
	require.ErrorIs(t, entry.MarkCancelled(), shared.ErrInvalidStatus)

	entry = JournalEntry{Status: StatusPending}
	require.NoError(t, entry.MarkCancelled())
	require.Equal(t, StatusCancelled, entry.Status)
	require.ErrorIs(t, entry.MarkPosted(), shared.ErrInvalidStatus)
}
