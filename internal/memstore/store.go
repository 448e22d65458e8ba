// Package memstore is an in-process implementation of the bill-payment stores.
//
// It provides the same guarantees the PostgreSQL store gets from row locks and
// transactions: settlement takes a per-account lock held until the enclosing
// transaction ends, and staged balance changes and journal appends become
// visible together on commit or not at all.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

var errNoTransaction = errors.New("operation must run inside a transaction")

type cardKey struct {
	accountID  string
	cardNumber string
}

// Store holds accounts, card authorizations and the journal in memory.
// It implements domain.AccountLedger, domain.CardAuthorizationIndex,
// domain.TransactionJournal and domain.TransactionManager.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	cards    map[cardKey]struct{}
	entries  []domain.JournalEntry // committed, ordered by ID
	nextID   int64

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]domain.Account),
		cards:    make(map[cardKey]struct{}),
		locks:    make(map[string]chan struct{}),
	}
}

// txn collects the staged writes and the account locks of one transaction.
type txn struct {
	held     map[string]chan struct{}
	balances map[string]domain.Account
	entries  []domain.JournalEntry
}

type txKey struct{}

func getTxn(ctx context.Context) *txn {
	if t, ok := ctx.Value(txKey{}).(*txn); ok {
		return t
	}
	return nil
}

// WithTransaction runs fn with a transaction in its context. Staged writes are
// applied atomically when fn returns nil and discarded otherwise.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if getTxn(ctx) != nil {
		return fn(ctx)
	}

	t := &txn{
		held:     make(map[string]chan struct{}),
		balances: make(map[string]domain.Account),
	}
	defer s.release(t)

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}

	s.mu.Lock()
	for id, acc := range t.balances {
		s.accounts[id] = acc
	}
	if len(t.entries) > 0 {
		s.entries = append(s.entries, t.entries...)
		// Concurrent transactions may commit out of id order.
		sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].ID < s.entries[j].ID })
	}
	s.mu.Unlock()

	return nil
}

// lockAccount blocks until this transaction holds the account's lock.
func (s *Store) lockAccount(ctx context.Context, t *txn, accountID string) error {
	if _, ok := t.held[accountID]; ok {
		return nil
	}

	s.locksMu.Lock()
	sem, ok := s.locks[accountID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[accountID] = sem
	}
	s.locksMu.Unlock()

	select {
	case sem <- struct{}{}:
		t.held[accountID] = sem
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for account lock: %w", ctx.Err())
	}
}

func (s *Store) release(t *txn) {
	for id, sem := range t.held {
		<-sem
		delete(t.held, id)
	}
}

// GetBalance returns the committed balance of an account.
func (s *Store) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if t := getTxn(ctx); t != nil {
		if acc, ok := t.balances[accountID]; ok {
			return acc.Balance, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return decimal.Zero, domain.ErrAccountNotFound
	}
	return acc.Balance, nil
}

// SettleFullBalance locks the account for the rest of the transaction and
// stages a zero balance. MUST be called within a transaction context.
func (s *Store) SettleFullBalance(ctx context.Context, accountID string) (decimal.Decimal, decimal.Decimal, error) {
	t := getTxn(ctx)
	if t == nil {
		return decimal.Zero, decimal.Zero, errNoTransaction
	}

	if err := s.lockAccount(ctx, t, accountID); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	acc, ok := t.balances[accountID]
	if !ok {
		s.mu.RLock()
		acc, ok = s.accounts[accountID]
		s.mu.RUnlock()
		if !ok {
			return decimal.Zero, decimal.Zero, domain.ErrAccountNotFound
		}
	}

	previous, err := acc.Settle()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	t.balances[accountID] = acc

	return previous, acc.Balance, nil
}

// IsAuthorized reports whether the card is registered for the account.
func (s *Store) IsAuthorized(ctx context.Context, accountID, cardNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.cards[cardKey{accountID: accountID, cardNumber: cardNumber}]
	return ok, nil
}

// Append stages a journal entry and returns its identifier.
// Identifiers are taken from a counter at append time, so a rolled-back
// append leaves a gap and an id is never handed out twice.
func (s *Store) Append(ctx context.Context, entry *domain.JournalEntry) (int64, error) {
	t := getTxn(ctx)
	if t == nil {
		return 0, errNoTransaction
	}
	if !entry.Amount.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	staged := *entry
	staged.ID = id
	t.entries = append(t.entries, staged)

	return id, nil
}

// ListByAccount returns committed entries for an account, newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.JournalEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if s.entries[i].AccountID == accountID {
			entry := s.entries[i]
			out = append(out, &entry)
		}
	}
	return out, nil
}

// Upsert creates an account or overwrites its balance.
func (s *Store) Upsert(ctx context.Context, account *domain.Account) error {
	if account.Balance.IsNegative() {
		return fmt.Errorf("account %s: balance cannot be negative", account.ID)
	}
	if account.Balance.GreaterThan(domain.MaxBalance) {
		return fmt.Errorf("account %s: balance exceeds %s", account.ID, domain.FormatAmount(domain.MaxBalance))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := *account
	acc.UpdatedAt = time.Now().UTC()
	s.accounts[acc.ID] = acc
	return nil
}

// Authorize records an (account, card) pair.
func (s *Store) Authorize(ctx context.Context, auth *domain.CardAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[auth.AccountID]; !ok {
		return fmt.Errorf("authorize card: %w", domain.ErrAccountNotFound)
	}
	s.cards[cardKey{accountID: auth.AccountID, cardNumber: auth.CardNumber}] = struct{}{}
	return nil
}

// Ping always succeeds; it lets the store stand in for a database in health checks.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
