// Package ledger holds the double-entry domain model. All invariants are
// enforced in memory at construction or mutation time; nothing in this package
// performs I/O.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/koboledger/koboledger/internal/ledger/shared"
)

// Money is an amount in integer minor units of a single currency.
type Money struct {
	Amount   int64
	Currency string
}

// Scale returns the number of minor-unit digits for the currency.
func (m Money) Scale() int {
	return CurrencyScale(m.Currency)
}

// CurrencyScale reports minor-unit digits for an ISO currency code.
// Unknown currencies default to two.
func CurrencyScale(code string) int {
	switch code {
	case "JPY", "KRW", "VND":
		return 0
	case "BHD", "KWD", "OMR":
		return 3
	default:
		return 2
	}
}

// AccountClass is the closed set of account classifications.
type AccountClass string

const (
	ClassAsset     AccountClass = "ASSET"
	ClassLiability AccountClass = "LIABILITY"
	ClassEquity    AccountClass = "EQUITY"
	ClassRevenue   AccountClass = "REVENUE"
	ClassExpense   AccountClass = "EXPENSE"
)

// Valid reports whether the class is a member of the closed set.
func (c AccountClass) Valid() bool {
	switch c {
	case ClassAsset, ClassLiability, ClassEquity, ClassRevenue, ClassExpense:
		return true
	}
	return false
}

// allowsNegativeBalance dispatches the sign rule per class. Asset accounts
// must never go below zero after a debit; all other classes may.
func allowsNegativeBalance(c AccountClass) bool {
	return c != ClassAsset
}

// Account is a tenant-scoped balance holder. Balance moves only through
// Debit and Credit.
type Account struct {
	ID           uuid.UUID
	TenantID     string
	Currency     string
	Class        AccountClass
	BalanceMinor int64
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BalanceChange is the fact emitted by every successful balance mutation.
type BalanceChange struct {
	TenantID  string
	AccountID uuid.UUID
	Currency  string
	Previous  int64
	New       int64
	Delta     int64
}

func (a *Account) mutate(amount Money, delta int64) (BalanceChange, error) {
	if !a.Active {
		return BalanceChange{}, shared.ErrInactiveAccount
	}
	if amount.Currency != a.Currency {
		return BalanceChange{}, shared.ErrCurrencyMismatch
	}
	if amount.Amount <= 0 {
		return BalanceChange{}, shared.ErrNonPositiveAmount
	}
	next := a.BalanceMinor + delta
	if next < 0 && !allowsNegativeBalance(a.Class) {
		return BalanceChange{}, shared.ErrInsufficientFunds
	}
	change := BalanceChange{
		TenantID:  a.TenantID,
		AccountID: a.ID,
		Currency:  a.Currency,
		Previous:  a.BalanceMinor,
		New:       next,
		Delta:     delta,
	}
	a.BalanceMinor = next
	return change, nil
}

// Debit decreases the balance by the given amount.
func (a *Account) Debit(amount Money) (BalanceChange, error) {
	return a.mutate(amount, -amount.Amount)
}

// Credit increases the balance by the given amount.
func (a *Account) Credit(amount Money) (BalanceChange, error) {
	return a.mutate(amount, amount.Amount)
}

// Side marks a posting as the debit or credit half of an entry.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// EntryStatus enumerates the journal entry lifecycle.
type EntryStatus string

const (
	StatusPending   EntryStatus = "PENDING"
	StatusPosted    EntryStatus = "POSTED"
	StatusCancelled EntryStatus = "CANCELLED"
)

// Posting is one side of a journal entry. It is owned by its parent entry
// and never shared.
type Posting struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	TenantID    string
	AccountID   uuid.UUID
	Side        Side
	AmountMinor int64
	Currency    string
}

// LineInput describes one requested posting line.
type LineInput struct {
	AccountID   uuid.UUID
	AmountMinor int64
	Currency    string
}

// JournalEntry is an immutable balanced entry; only its status may change
// after construction, and only Pending entries may transition.
type JournalEntry struct {
	ID          uuid.UUID
	TenantID    string
	BookingTime time.Time
	Narrative   string
	Status      EntryStatus
	Debits      []Posting
	Credits     []Posting
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewJournalEntry validates and constructs a balanced Pending entry.
func NewJournalEntry(tenant string, bookingTime time.Time, narrative string, debits, credits []LineInput) (JournalEntry, error) {
	if tenant == "" {
		return JournalEntry{}, shared.ErrTenantRequired
	}
	if len(debits) == 0 || len(credits) == 0 {
		return JournalEntry{}, shared.ErrEmptySide
	}
	currency := debits[0].Currency
	var debitSum, creditSum int64
	for _, line := range debits {
		if line.AmountMinor <= 0 {
			return JournalEntry{}, shared.ErrNonPositiveAmount
		}
		if line.Currency != currency {
			return JournalEntry{}, shared.ErrCurrencyMismatch
		}
		debitSum += line.AmountMinor
	}
	for _, line := range credits {
		if line.AmountMinor <= 0 {
			return JournalEntry{}, shared.ErrNonPositiveAmount
		}
		if line.Currency != currency {
			return JournalEntry{}, shared.ErrCurrencyMismatch
		}
		creditSum += line.AmountMinor
	}
	if debitSum != creditSum {
		return JournalEntry{}, shared.ErrUnbalanced
	}

	entryID := uuid.New()
	entry := JournalEntry{
		ID:          entryID,
		TenantID:    tenant,
		BookingTime: bookingTime,
		Narrative:   narrative,
		Status:      StatusPending,
		Debits:      toPostings(entryID, tenant, SideDebit, debits),
		Credits:     toPostings(entryID, tenant, SideCredit, credits),
		Version:     1,
	}
	return entry, nil
}

// MarkPosted transitions Pending to Posted. Posted and Cancelled are terminal.
func (e *JournalEntry) MarkPosted() error {
	if e.Status != StatusPending {
		return shared.ErrInvalidStatus
	}
	e.Status = StatusPosted
	return nil
}

// MarkCancelled transitions Pending to Cancelled.
func (e *JournalEntry) MarkCancelled() error {
	if e.Status != StatusPending {
		return shared.ErrInvalidStatus
	}
	e.Status = StatusCancelled
	return nil
}

// Currency returns the single currency shared by all lines.
func (e *JournalEntry) Currency() string {
	if len(e.Debits) > 0 {
		return e.Debits[0].Currency
	}
	return ""
}

// TotalMinor returns the debit-side total, which equals the credit-side total.
func (e *JournalEntry) TotalMinor() int64 {
	var sum int64
	for _, p := range e.Debits {
		sum += p.AmountMinor
	}
	return sum
}

func toPostings(entryID uuid.UUID, tenant string, side Side, lines []LineInput) []Posting {
	out := make([]Posting, 0, len(lines))
	for _, line := range lines {
		out = append(out, Posting{
			ID:          uuid.New(),
			EntryID:     entryID,
			TenantID:    tenant,
			AccountID:   line.AccountID,
			Side:        side,
			AmountMinor: line.AmountMinor,
			Currency:    line.Currency,
		})
	}
	return out
}
