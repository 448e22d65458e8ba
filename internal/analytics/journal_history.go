package analytics

import (
	"context"
	"fmt"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// JournalHistory serves payment history straight from the transaction journal.
// It is used when no ClickHouse projection is available.
type JournalHistory struct {
	journal domain.TransactionJournal
}

// NewJournalHistory creates a JournalHistory over journal.
func NewJournalHistory(journal domain.TransactionJournal) *JournalHistory {
	return &JournalHistory{journal: journal}
}

// ListAccountPayments returns up to limit payments, newest first.
func (h *JournalHistory) ListAccountPayments(ctx context.Context, accountID string, limit int) ([]*Payment, error) {
	entries, err := h.journal.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal for account %s: %w", accountID, err)
	}

	payments := make([]*Payment, 0, len(entries))
	for _, entry := range entries {
		payments = append(payments, PaymentFromEntry(entry))
	}
	return payments, nil
}

// PaymentFromEntry maps a committed journal entry to a history row.
func PaymentFromEntry(entry *domain.JournalEntry) *Payment {
	return &Payment{
		TransactionID:    domain.FormatTransactionID(entry.ID),
		AccountID:        entry.AccountID,
		MaskedCardNumber: domain.MaskCardNumber(entry.CardNumber),
		Amount:           entry.Amount,
		TypeCode:         entry.TypeCode,
		ProcessedAt:      entry.ProcessedAt.UTC(),
	}
}
