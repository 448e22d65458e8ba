package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/events"
)

// Payment is one row of the payment history projection.
type Payment struct {
	TransactionID    string
	AccountID        string
	MaskedCardNumber string
	Amount           decimal.Decimal
	TypeCode         string
	ProcessedAt      time.Time
	EventID          string
}

// PaymentFromEvent maps a validated payment-completed event to a history row.
func PaymentFromEvent(event *events.PaymentCompletedEvent) (*Payment, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	amount, err := domain.ParseAmount(event.Amount)
	if err != nil {
		return nil, err
	}

	processedAt, err := time.Parse(time.RFC3339Nano, event.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse processed timestamp: %w", err)
	}

	return &Payment{
		TransactionID:    event.TransactionID,
		AccountID:        event.AccountID,
		MaskedCardNumber: event.MaskedCardNumber,
		Amount:           amount,
		TypeCode:         event.TypeCode,
		ProcessedAt:      processedAt.UTC(),
		EventID:          event.EventID,
	}, nil
}
