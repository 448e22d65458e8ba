package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// CardRepository implements domain.CardAuthorizationIndex over the card_xref table.
type CardRepository struct {
	pool *pgxpool.Pool
}

// NewCardRepository creates a new CardRepository.
func NewCardRepository(pool *pgxpool.Pool) *CardRepository {
	return &CardRepository{pool: pool}
}

// IsAuthorized reports whether the card is cross-referenced to the account.
func (r *CardRepository) IsAuthorized(ctx context.Context, accountID, cardNumber string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM card_xref
			WHERE account_id = $1 AND card_number = $2
		)
	`

	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, query, accountID, cardNumber).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up card authorization: %w", err)
	}
	return exists, nil
}

// Authorize records an (account, card) pair. Existing pairs are left as they are.
func (r *CardRepository) Authorize(ctx context.Context, auth *domain.CardAuthorization) error {
	query := `
		INSERT INTO card_xref (account_id, card_number)
		VALUES ($1, $2)
		ON CONFLICT (account_id, card_number) DO NOTHING
	`

	if _, err := conn(ctx, r.pool).Exec(ctx, query, auth.AccountID, auth.CardNumber); err != nil {
		return fmt.Errorf("failed to authorize card for account %s: %w", auth.AccountID, err)
	}
	return nil
}
