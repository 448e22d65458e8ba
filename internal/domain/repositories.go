package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountLedger owns one non-negative balance per account.
// Only full settlement is supported; there is no partial-amount mutation.
type AccountLedger interface {
	// GetBalance returns the current balance.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// SettleFullBalance zeroes a positive balance and returns the previous and new values.
	// It serializes per account: two concurrent callers never both observe the same
	// positive balance. Returns ErrAccountNotFound or ErrNothingToSettle without mutating.
	// Must be called within a transaction context so the journal append commits with it.
	SettleFullBalance(ctx context.Context, accountID string) (previous, current decimal.Decimal, err error)
}

// CardAuthorizationIndex answers whether a card may transact on an account.
type CardAuthorizationIndex interface {
	// IsAuthorized is a pure lookup; it has no side effects.
	IsAuthorized(ctx context.Context, accountID, cardNumber string) (bool, error)
}

// TransactionJournal is the append-only log of committed payments.
type TransactionJournal interface {
	// Append stores the entry, assigning its ID. Entries are never updated or deleted.
	// Must be called within the same transaction context as SettleFullBalance.
	Append(ctx context.Context, entry *JournalEntry) (int64, error)

	// ListByAccount returns committed entries for an account, newest first.
	// A limit of zero or less returns every entry.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*JournalEntry, error)
}

// TransactionManager defines the interface for managing database transactions.
// This abstraction allows the service layer to work with transactions
// without being coupled to a specific database implementation.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventPublisher publishes domain events to external systems (e.g. RabbitMQ).
type EventPublisher interface {
	PublishPaymentCompleted(ctx context.Context, entry *JournalEntry) error
}
