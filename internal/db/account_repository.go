package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// AccountRepository implements domain.AccountLedger using PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{
		pool: pool,
	}
}

// GetBalance returns the current balance of an account.
func (r *AccountRepository) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := r.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// GetByID retrieves an account by its identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, balance::text, updated_at
		FROM accounts
		WHERE id = $1
	`

	account, err := scanAccount(conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// SettleFullBalance locks the account row, zeroes a positive balance and
// returns the previous and new values.
// This method MUST be called within a transaction context: the row lock
// (SELECT ... FOR UPDATE) is held until the caller's transaction ends, which
// serializes concurrent settlements of the same account.
func (r *AccountRepository) SettleFullBalance(ctx context.Context, accountID string) (decimal.Decimal, decimal.Decimal, error) {
	tx := getTx(ctx)
	if tx == nil {
		return decimal.Zero, decimal.Zero, errNoTransaction
	}

	lockQuery := `
		SELECT id, balance::text, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`

	account, err := scanAccount(tx.QueryRow(ctx, lockQuery, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, decimal.Zero, domain.ErrAccountNotFound
		}
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to lock account: %w", err)
	}

	previous, err := account.Settle()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	updateQuery := `
		UPDATE accounts
		SET balance = $2
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, updateQuery, account.ID, account.Balance.StringFixed(domain.MoneyScale))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to update account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return decimal.Zero, decimal.Zero, domain.ErrAccountNotFound
	}

	return previous, account.Balance, nil
}

// Upsert creates an account or overwrites its balance.
// Used by seeding and tests; the payment flow never calls it.
func (r *AccountRepository) Upsert(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, balance)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance
	`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, account.ID, account.Balance.StringFixed(domain.MoneyScale)); err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.ID, err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	var balance string

	if err := row.Scan(&account.ID, &balance, &account.UpdatedAt); err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid stored balance %q: %w", balance, err)
	}
	account.Balance = value
	return &account, nil
}
