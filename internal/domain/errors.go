package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist
	ErrAccountNotFound = errors.New("account not found")

	// ErrNothingToSettle is returned when the balance is not positive at settlement time
	ErrNothingToSettle = errors.New("nothing to settle")

	// ErrInvalidAmount is returned when a journal amount is not positive
	ErrInvalidAmount = errors.New("invalid amount: must be positive")
)

// ErrorKind classifies a payment failure so callers can pick a response
// without matching on messages.
type ErrorKind int

const (
	// KindInput covers missing or malformed request fields.
	KindInput ErrorKind = iota + 1
	// KindNotFound means the account does not exist.
	KindNotFound
	// KindBusinessRule covers a non-positive balance or an unauthorized card.
	KindBusinessRule
	// KindInfrastructure is a failure during the atomic commit.
	KindInfrastructure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Rejection reasons reported to clients.
const (
	ReasonAccountIDRequired   = "account id required"
	ReasonAccountNotFound     = "account not found"
	ReasonNothingToPay        = "nothing to pay"
	ReasonCardNumberRequired  = "card number required"
	ReasonCardNumberLength    = "card number must be 16 characters"
	ReasonCardNotAssociated   = "card not associated with account"
	ReasonInvalidConfirmation = "invalid confirmation value"
	ReasonPaymentCommitFailed = "payment could not be completed"
)

// PaymentError is returned by PaymentService for every non-successful run.
type PaymentError struct {
	Kind   ErrorKind
	Reason string
	Err    error // underlying cause, set for infrastructure faults
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry without changing the request.
// Only infrastructure faults qualify, and only after re-querying the balance.
func (e *PaymentError) Retryable() bool {
	return e.Kind == KindInfrastructure
}

func reject(kind ErrorKind, reason string) *PaymentError {
	return &PaymentError{Kind: kind, Reason: reason}
}

func fault(err error) *PaymentError {
	return &PaymentError{Kind: KindInfrastructure, Reason: ReasonPaymentCommitFailed, Err: err}
}

// IsKind reports whether err is a *PaymentError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// AsPaymentError extracts a *PaymentError from err.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	ok := errors.As(err, &pe)
	return pe, ok
}
