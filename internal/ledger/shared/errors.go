package shared

import "errors"

var (
	// ErrUnbalanced indicates sum(debits) != sum(credits).
	ErrUnbalanced = errors.New("ledger: journal entry must balance")
	// ErrEmptySide indicates a journal entry with no debit or no credit lines.
	ErrEmptySide = errors.New("ledger: journal entry requires at least one line per side")
	// ErrNonPositiveAmount indicates a zero or negative line amount.
	ErrNonPositiveAmount = errors.New("ledger: line amounts must be strictly positive")
	// ErrCurrencyMismatch indicates mixed currencies within an entry or movement.
	ErrCurrencyMismatch = errors.New("ledger: currency mismatch")
	// ErrInactiveAccount indicates a posting against a deactivated account.
	ErrInactiveAccount = errors.New("ledger: account is inactive")
	// ErrInsufficientFunds indicates an asset account would go negative.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrAccountsIdentical indicates source and destination are the same account.
	ErrAccountsIdentical = errors.New("ledger: source and destination accounts are identical")
	// ErrInvalidClass indicates an account class outside the closed set.
	ErrInvalidClass = errors.New("ledger: invalid account class")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrInvalidStatus indicates a forbidden journal status transition.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrConcurrencyConflict indicates an optimistic concurrency violation.
	ErrConcurrencyConflict = errors.New("ledger: concurrent modification detected")
	// ErrPersistence indicates a constraint or connectivity failure in the durable store.
	ErrPersistence = errors.New("ledger: persistence failure")
	// ErrTenantRequired indicates a request without tenant scope.
	ErrTenantRequired = errors.New("ledger: tenant required")
	// ErrIdempotencyKeyRequired indicates a transfer without an idempotency key.
	ErrIdempotencyKeyRequired = errors.New("ledger: idempotency key required")
)
