package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// JournalRepository implements domain.TransactionJournal using PostgreSQL.
// Identifiers come from the transactions BIGSERIAL sequence, so they are
// unique and increasing; a rolled-back append leaves a gap, never a reuse.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{
		pool: pool,
	}
}

// Append persists a new journal entry and returns its identifier.
// This method MUST be called within the transaction that settled the balance.
func (r *JournalRepository) Append(ctx context.Context, entry *domain.JournalEntry) (int64, error) {
	tx := getTx(ctx)
	if tx == nil {
		return 0, errNoTransaction
	}
	if !entry.Amount.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}

	query := `
		INSERT INTO transactions (
			account_id, card_number, amount,
			type_code, category_code, source, description,
			merchant_id, merchant_name, merchant_city, merchant_zip,
			originated_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	var id int64
	err := tx.QueryRow(ctx, query,
		entry.AccountID,
		entry.CardNumber,
		entry.Amount.StringFixed(domain.MoneyScale),
		entry.TypeCode,
		entry.CategoryCode,
		entry.Source,
		entry.Description,
		entry.MerchantID,
		entry.MerchantName,
		entry.MerchantCity,
		entry.MerchantZip,
		entry.OriginatedAt,
		entry.ProcessedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append journal entry: %w", err)
	}

	return id, nil
}

// ListByAccount returns the entries for an account, newest first.
func (r *JournalRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.JournalEntry, error) {
	query := `
		SELECT id, account_id, card_number, amount::text,
		       type_code, category_code, source, description,
		       merchant_id, merchant_name, merchant_city, merchant_zip,
		       originated_at, processed_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	var rowLimit *int
	if limit > 0 {
		rowLimit = &limit
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, accountID, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []*domain.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}

	return entries, nil
}

func scanEntry(row pgx.Row) (*domain.JournalEntry, error) {
	var entry domain.JournalEntry
	var amount string

	err := row.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.CardNumber,
		&amount,
		&entry.TypeCode,
		&entry.CategoryCode,
		&entry.Source,
		&entry.Description,
		&entry.MerchantID,
		&entry.MerchantName,
		&entry.MerchantCity,
		&entry.MerchantZip,
		&entry.OriginatedAt,
		&entry.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	entry.Amount = value
	return &entry, nil
}
