package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fixed attributes of a bill-payment journal entry.
const (
	BillPaymentTypeCode     = "02"
	BillPaymentCategoryCode = 2
	BillPaymentSource       = "POS TERM"
	BillPaymentDescription  = "BILL PAYMENT - ONLINE"
	BillPaymentMerchantID   = 999999999
	BillPaymentMerchantName = "BILL PAYMENT"
	BillPaymentMerchantCity = "N/A"
	BillPaymentMerchantZip  = "N/A"
)

// CardNumberLength is the fixed width of a card number token.
const CardNumberLength = 16

// Account represents a credit card account as seen by the bill-payment flow.
// Only the balance matters here; the rest of the account record is owned elsewhere.
type Account struct {
	ID        string          // Fixed-width account identifier
	Balance   decimal.Decimal // Current balance, 2 fractional digits, never negative
	UpdatedAt time.Time       // Timestamp of the last balance change
}

// CardAuthorization is an (account, card) pair permitted to transact.
type CardAuthorization struct {
	AccountID  string
	CardNumber string
}

// JournalEntry is an immutable record of a committed bill payment.
type JournalEntry struct {
	ID           int64           // Assigned by the journal, strictly increasing
	AccountID    string          // Account that was settled
	CardNumber   string          // Stored unmasked; mask on output
	Amount       decimal.Decimal // Settled amount, always > 0
	TypeCode     string
	CategoryCode int
	Source       string
	Description  string
	MerchantID   int64
	MerchantName string
	MerchantCity string
	MerchantZip  string
	OriginatedAt time.Time
	ProcessedAt  time.Time
}

// PaymentStatus is the terminal (per request) state of the payment workflow.
type PaymentStatus string

const (
	// PaymentStatusPendingConfirmation means validations passed and the client must confirm.
	PaymentStatusPendingConfirmation PaymentStatus = "PENDING_CONFIRMATION"

	// PaymentStatusCancelled means the client declined the payment.
	PaymentStatusCancelled PaymentStatus = "CANCELLED"

	// PaymentStatusCompleted means the balance was settled and journaled.
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
)

// Confirmation values accepted from the client.
const (
	ConfirmYes = "Y"
	ConfirmNo  = "N"
)

// PaymentRequest carries one round trip of the confirmation protocol.
// Confirmation is empty when the client has not answered yet.
type PaymentRequest struct {
	AccountID    string
	CardNumber   string
	Confirmation string
}

// PaymentOutcome is the result of a non-rejected workflow run.
// Rejections and faults are reported as *PaymentError instead.
type PaymentOutcome struct {
	Status          PaymentStatus
	AccountID       string
	CardNumber      string
	PaymentAmount   decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	TransactionID   int64 // Set only when Status is PaymentStatusCompleted
	ProcessedAt     time.Time
}

// NewAccount validates and builds an Account.
func NewAccount(id string, balance decimal.Decimal) (*Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("account id cannot be empty")
	}
	if balance.IsNegative() {
		return nil, fmt.Errorf("account %s: balance cannot be negative", id)
	}
	if err := ValidateScale(balance); err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	if balance.GreaterThan(MaxBalance) {
		return nil, fmt.Errorf("account %s: balance exceeds %s", id, FormatAmount(MaxBalance))
	}
	return &Account{
		ID:        id,
		Balance:   balance,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// NewCardAuthorization validates and builds a CardAuthorization.
func NewCardAuthorization(accountID, cardNumber string) (*CardAuthorization, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("account id cannot be empty")
	}
	if !ValidCardNumberLength(cardNumber) {
		return nil, fmt.Errorf("card number must be %d characters", CardNumberLength)
	}
	return &CardAuthorization{AccountID: accountID, CardNumber: cardNumber}, nil
}

// NewJournalEntry builds an unsaved bill-payment entry stamped with now.
// The ID is left zero; the journal assigns it on append.
func NewJournalEntry(accountID, cardNumber string, amount decimal.Decimal, now time.Time) (*JournalEntry, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("account id cannot be empty")
	}
	if strings.TrimSpace(cardNumber) == "" {
		return nil, fmt.Errorf("card number cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := ValidateScale(amount); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &JournalEntry{
		AccountID:    accountID,
		CardNumber:   cardNumber,
		Amount:       amount,
		TypeCode:     BillPaymentTypeCode,
		CategoryCode: BillPaymentCategoryCode,
		Source:       BillPaymentSource,
		Description:  BillPaymentDescription,
		MerchantID:   BillPaymentMerchantID,
		MerchantName: BillPaymentMerchantName,
		MerchantCity: BillPaymentMerchantCity,
		MerchantZip:  BillPaymentMerchantZip,
		OriginatedAt: now,
		ProcessedAt:  now,
	}, nil
}

// Settle zeroes the balance and returns the amount that was due.
func (a *Account) Settle() (decimal.Decimal, error) {
	if !a.Balance.IsPositive() {
		return decimal.Zero, ErrNothingToSettle
	}
	previous := a.Balance
	a.Balance = decimal.Zero
	a.UpdatedAt = time.Now().UTC()
	return previous, nil
}
