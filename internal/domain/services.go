package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentService runs the bill-payment confirmation protocol.
// It keeps no per-client state: every call re-validates against the store,
// so a repeated confirmation after a successful payment finds nothing to pay.
type PaymentService struct {
	ledger    AccountLedger
	cards     CardAuthorizationIndex
	journal   TransactionJournal
	txManager TransactionManager
	// Optional event publisher to emit domain events (e.g. payment completed)
	eventPublisher EventPublisher
	logger         *slog.Logger
	now            func() time.Time
}

// NewPaymentService creates a new instance of PaymentService.
// Pass nil for eventPublisher if no events should be emitted.
func NewPaymentService(
	ledger AccountLedger,
	cards CardAuthorizationIndex,
	journal TransactionJournal,
	txManager TransactionManager,
	eventPublisher EventPublisher,
) *PaymentService {
	return &PaymentService{
		ledger:         ledger,
		cards:          cards,
		journal:        journal,
		txManager:      txManager,
		eventPublisher: eventPublisher,
		logger:         slog.Default(),
		now:            time.Now,
	}
}

// WithLogger sets the logger used by the service.
func (s *PaymentService) WithLogger(logger *slog.Logger) *PaymentService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithClock overrides the time source used to stamp journal entries.
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	if now != nil {
		s.now = now
	}
	return s
}

// QueryConfirmation runs the validations only and returns the pending projection.
func (s *PaymentService) QueryConfirmation(ctx context.Context, accountID, cardNumber string) (*PaymentOutcome, error) {
	return s.Process(ctx, PaymentRequest{AccountID: accountID, CardNumber: cardNumber})
}

// QuickProcess pays the full balance in a single round trip.
func (s *PaymentService) QuickProcess(ctx context.Context, accountID, cardNumber string) (*PaymentOutcome, error) {
	return s.Process(ctx, PaymentRequest{AccountID: accountID, CardNumber: cardNumber, Confirmation: ConfirmYes})
}

// Process runs one round trip of the payment workflow.
//
// Validations run in a fixed order and the first failure wins:
// 1. Account id present
// 2. Account exists
// 3. Balance positive
// 4. Card number present and 16 characters
// 5. Card authorized for the account
// 6. Confirmation absent -> pending, "N" -> cancelled, "Y" -> commit, anything else -> rejected
//
// The commit settles the balance and appends the journal entry in one transaction.
// Every failure is returned as a *PaymentError.
func (s *PaymentService) Process(ctx context.Context, req PaymentRequest) (*PaymentOutcome, error) {
	accountID := strings.TrimSpace(req.AccountID)
	if accountID == "" {
		return nil, s.rejected(req, reject(KindInput, ReasonAccountIDRequired))
	}

	balance, err := s.ledger.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, s.rejected(req, reject(KindNotFound, ReasonAccountNotFound))
		}
		return nil, s.faulted(req, fmt.Errorf("failed to read balance: %w", err))
	}
	if !balance.IsPositive() {
		return nil, s.rejected(req, reject(KindBusinessRule, ReasonNothingToPay))
	}

	cardNumber := strings.TrimSpace(req.CardNumber)
	if cardNumber == "" {
		return nil, s.rejected(req, reject(KindInput, ReasonCardNumberRequired))
	}
	if !ValidCardNumberLength(cardNumber) {
		return nil, s.rejected(req, reject(KindInput, ReasonCardNumberLength))
	}

	authorized, err := s.cards.IsAuthorized(ctx, accountID, cardNumber)
	if err != nil {
		return nil, s.faulted(req, fmt.Errorf("failed to check card authorization: %w", err))
	}
	if !authorized {
		return nil, s.rejected(req, reject(KindBusinessRule, ReasonCardNotAssociated))
	}

	outcome := &PaymentOutcome{
		AccountID:       accountID,
		CardNumber:      cardNumber,
		PreviousBalance: balance,
	}

	switch NormalizeConfirmation(req.Confirmation) {
	case "":
		outcome.Status = PaymentStatusPendingConfirmation
		outcome.PaymentAmount = balance
		outcome.NewBalance = decimal.Zero
		s.logger.DebugContext(ctx, "bill payment awaiting confirmation",
			"account_id", accountID, "card", MaskCardNumber(cardNumber), "amount", FormatAmount(balance))
		return outcome, nil

	case ConfirmNo:
		outcome.Status = PaymentStatusCancelled
		outcome.PaymentAmount = decimal.Zero
		outcome.NewBalance = balance
		s.logger.DebugContext(ctx, "bill payment cancelled", "account_id", accountID)
		return outcome, nil

	case ConfirmYes:
		return s.commit(ctx, req, accountID, cardNumber)

	default:
		return nil, s.rejected(req, reject(KindInput, ReasonInvalidConfirmation))
	}
}

// GetBalance retrieves the current balance of an account.
func (s *PaymentService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return decimal.Zero, reject(KindInput, ReasonAccountIDRequired)
	}
	balance, err := s.ledger.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return decimal.Zero, reject(KindNotFound, ReasonAccountNotFound)
		}
		return decimal.Zero, fault(fmt.Errorf("failed to read balance: %w", err))
	}
	return balance, nil
}

// commit settles the balance and journals the payment atomically.
// The balance is re-read under the ledger's per-account lock, so the amount
// journaled is the balance at commit time, not the one seen during validation.
func (s *PaymentService) commit(ctx context.Context, req PaymentRequest, accountID, cardNumber string) (*PaymentOutcome, error) {
	var entry *JournalEntry
	var previous, current decimal.Decimal

	// Once started, the commit runs to completion or fault even if the caller goes away.
	err := s.txManager.WithTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		var err error
		previous, current, err = s.ledger.SettleFullBalance(txCtx, accountID)
		if err != nil {
			return err
		}

		entry, err = NewJournalEntry(accountID, cardNumber, previous, s.now())
		if err != nil {
			return fmt.Errorf("failed to build journal entry: %w", err)
		}

		id, err := s.journal.Append(txCtx, entry)
		if err != nil {
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
		entry.ID = id
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrNothingToSettle):
			// Lost a race with a concurrent confirmation.
			return nil, s.rejected(req, reject(KindBusinessRule, ReasonNothingToPay))
		case errors.Is(err, ErrAccountNotFound):
			return nil, s.rejected(req, reject(KindNotFound, ReasonAccountNotFound))
		default:
			return nil, s.faulted(req, err)
		}
	}

	s.logger.InfoContext(ctx, "bill payment completed",
		"account_id", accountID,
		"card", MaskCardNumber(cardNumber),
		"transaction_id", entry.ID,
		"amount", FormatAmount(previous))

	// Publish after commit, best-effort. A broker outage must not make an
	// already-committed payment look failed.
	if s.eventPublisher != nil {
		go func(e JournalEntry) {
			if err := s.eventPublisher.PublishPaymentCompleted(context.Background(), &e); err != nil {
				s.logger.Warn("failed to publish payment completed event",
					"transaction_id", e.ID, "error", err)
			}
		}(*entry)
	}

	return &PaymentOutcome{
		Status:          PaymentStatusCompleted,
		AccountID:       accountID,
		CardNumber:      cardNumber,
		PaymentAmount:   previous,
		PreviousBalance: previous,
		NewBalance:      current,
		TransactionID:   entry.ID,
		ProcessedAt:     entry.ProcessedAt,
	}, nil
}

func (s *PaymentService) rejected(req PaymentRequest, pe *PaymentError) *PaymentError {
	s.logger.Warn("bill payment rejected",
		"account_id", strings.TrimSpace(req.AccountID),
		"card", MaskCardNumber(strings.TrimSpace(req.CardNumber)),
		"kind", pe.Kind.String(),
		"reason", pe.Reason)
	return pe
}

func (s *PaymentService) faulted(req PaymentRequest, err error) *PaymentError {
	pe := fault(err)
	s.logger.Error("bill payment failed",
		"account_id", strings.TrimSpace(req.AccountID),
		"error", err)
	return pe
}
