package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/events"
)

type recordingWriter struct {
	payments []*Payment
	err      error
}

func (w *recordingWriter) InsertPayment(ctx context.Context, p *Payment) error {
	if w.err != nil {
		return w.err
	}
	w.payments = append(w.payments, p)
	return nil
}

func testEvent(t *testing.T) events.PaymentCompletedEvent {
	t.Helper()
	processed := time.Date(2024, 5, 10, 8, 0, 0, 123000000, time.UTC)
	entry, err := domain.NewJournalEntry("00000000001", "1234567890123456", decimal.RequireFromString("250.5"), processed)
	if err != nil {
		t.Fatalf("NewJournalEntry failed: %v", err)
	}
	entry.ID = 12
	return events.NewPaymentCompletedEvent(entry, processed)
}

func TestPaymentFromEvent(t *testing.T) {
	event := testEvent(t)

	p, err := PaymentFromEvent(&event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TransactionID != "0000000000000012" || p.AccountID != "00000000001" {
		t.Errorf("unexpected identifiers: %+v", p)
	}
	if domain.FormatAmount(p.Amount) != "250.50" {
		t.Errorf("expected 250.50, got %s", p.Amount)
	}
	if p.MaskedCardNumber != "************3456" {
		t.Errorf("expected masked card, got %s", p.MaskedCardNumber)
	}
	if !p.ProcessedAt.Equal(time.Date(2024, 5, 10, 8, 0, 0, 123000000, time.UTC)) {
		t.Errorf("unexpected processed time %s", p.ProcessedAt)
	}
}

func TestHandleMessage(t *testing.T) {
	valid, err := json.Marshal(testEvent(t))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	failed := testEvent(t)
	failed.Status = "FAILED"
	notSuccess, _ := json.Marshal(failed)
	refund := testEvent(t)
	refund.Amount = "-5.00"
	negative, _ := json.Marshal(refund)

	tests := []struct {
		name          string
		body          []byte
		writerErr     error
		wantMalformed bool
		wantErr       bool
		wantWrites    int
	}{
		{name: "valid event", body: valid, wantWrites: 1},
		{name: "invalid json", body: []byte(`{"eventId":`), wantErr: true, wantMalformed: true},
		{name: "non-success status", body: notSuccess, wantErr: true, wantMalformed: true},
		{name: "negative amount", body: negative, wantErr: true, wantMalformed: true},
		{name: "store failure is retryable", body: valid, writerErr: errors.New("clickhouse down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &recordingWriter{err: tt.writerErr}
			err := handleMessage(context.Background(), w, tt.body)

			if tt.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, errMalformed) != tt.wantMalformed {
				t.Errorf("wantMalformed=%v, got %v", tt.wantMalformed, err)
			}
			if len(w.payments) != tt.wantWrites {
				t.Errorf("expected %d writes, got %d", tt.wantWrites, len(w.payments))
			}
		})
	}
}
