package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// EventTypePaymentCompleted identifies payment-completed events on the wire.
const EventTypePaymentCompleted = "billpayment.completed"

// StatusSuccess is the only status a completed payment is published with.
const StatusSuccess = "SUCCESS"

// PaymentCompletedEvent is the payload published after a bill payment commits.
type PaymentCompletedEvent struct {
	EventID          string `json:"eventId"`
	EventType        string `json:"eventType"`
	EventTimestamp   string `json:"eventTimestamp"`
	TransactionID    string `json:"transactionId"`
	AccountID        string `json:"accountId"`
	MaskedCardNumber string `json:"maskedCardNumber"`
	Amount           string `json:"amount"` // two decimal places, e.g. "1500.00"
	TypeCode         string `json:"typeCode"`
	Status           string `json:"status"`
	ProcessedAt      string `json:"processedAt"`
}

// NewPaymentCompletedEvent builds the event for a committed journal entry.
// The card number is masked; the full number never leaves the service.
func NewPaymentCompletedEvent(entry *domain.JournalEntry, now time.Time) PaymentCompletedEvent {
	return PaymentCompletedEvent{
		EventID:          uuid.New().String(),
		EventType:        EventTypePaymentCompleted,
		EventTimestamp:   now.UTC().Format(time.RFC3339),
		TransactionID:    domain.FormatTransactionID(entry.ID),
		AccountID:        entry.AccountID,
		MaskedCardNumber: domain.MaskCardNumber(entry.CardNumber),
		Amount:           domain.FormatAmount(entry.Amount),
		TypeCode:         entry.TypeCode,
		Status:           StatusSuccess,
		ProcessedAt:      entry.ProcessedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Validate checks the fields a consumer relies on.
func (e *PaymentCompletedEvent) Validate() error {
	if e.EventType != EventTypePaymentCompleted {
		return fmt.Errorf("unexpected event type %q", e.EventType)
	}
	if e.TransactionID == "" {
		return errors.New("transaction ID is required")
	}
	if e.AccountID == "" {
		return errors.New("account ID is required")
	}
	if e.Amount == "" {
		return errors.New("amount is required")
	}
	amount, err := domain.ParseAmount(e.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", e.Amount)
	}
	if e.ProcessedAt == "" {
		return errors.New("processed timestamp is required")
	}
	if e.Status != StatusSuccess {
		return fmt.Errorf("only SUCCESS status events are processed, got: %s", e.Status)
	}
	return nil
}
