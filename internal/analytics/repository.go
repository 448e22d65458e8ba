package analytics

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const schema = `
	CREATE TABLE IF NOT EXISTS bill_payments (
		transaction_id String,
		account_id String,
		masked_card_number String,
		amount Decimal(12, 2),
		type_code String,
		processed_at DateTime64(3, 'UTC'),
		event_id String,
		received_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree()
	ORDER BY (account_id, transaction_id)
`

// PaymentRepository handles payment history persistence in ClickHouse.
// Rows are keyed by (account_id, transaction_id) so a redelivered event
// collapses into the row it duplicates.
type PaymentRepository struct {
	db *ClickHouseClient
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *ClickHouseClient) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// EnsureSchema creates the bill_payments table if it doesn't exist.
func (r *PaymentRepository) EnsureSchema(ctx context.Context) error {
	if err := r.db.Conn().Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create bill_payments table: %w", err)
	}
	return nil
}

// InsertPayment stores one completed payment.
func (r *PaymentRepository) InsertPayment(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO bill_payments (
			transaction_id, account_id, masked_card_number,
			amount, type_code, processed_at, event_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.Conn().Exec(ctx, query,
		p.TransactionID,
		p.AccountID,
		p.MaskedCardNumber,
		p.Amount,
		p.TypeCode,
		p.ProcessedAt,
		p.EventID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment %s: %w", p.TransactionID, err)
	}

	return nil
}

// ListAccountPayments returns an account's payments, most recent first.
func (r *PaymentRepository) ListAccountPayments(ctx context.Context, accountID string, limit int) ([]*Payment, error) {
	query := `
		SELECT
			transaction_id, account_id, masked_card_number,
			toString(amount) AS amount, type_code, processed_at, event_id
		FROM bill_payments FINAL
		WHERE account_id = ?
		ORDER BY processed_at DESC, transaction_id DESC
	`
	args := []any{accountID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var payments []*Payment

	for rows.Next() {
		var p Payment
		var amount string

		if err := rows.Scan(
			&p.TransactionID,
			&p.AccountID,
			&p.MaskedCardNumber,
			&amount,
			&p.TypeCode,
			&p.ProcessedAt,
			&p.EventID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}

		// toString() drops trailing zeros ("150.5"); decimal keeps the value exact.
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q for payment %s: %w", amount, p.TransactionID, err)
		}

		payments = append(payments, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment rows: %w", err)
	}

	return payments, nil
}
