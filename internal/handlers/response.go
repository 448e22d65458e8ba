package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// Wire status values.
const (
	StatusPendingConfirmation = "PENDING_CONFIRMATION"
	StatusCancelled           = "CANCELLED"
	StatusSuccess             = "SUCCESS"
	StatusError               = "ERROR"
)

const (
	msgPending   = "You have a balance of %s. Do you want to pay it now? Confirm with Y or N."
	msgCancelled = "Payment cancelled. Your balance of %s is unchanged."
	msgSuccess   = "Payment successful. Your transaction ID is %s."
	msgFault     = "The payment could not be processed. Please check your balance before retrying."
)

// PaymentResponse is the single response shape of the bill-payment endpoints.
type PaymentResponse struct {
	Status                 string `json:"status"`
	Message                string `json:"message"`
	AccountID              string `json:"accountId,omitempty"`
	PaymentAmount          string `json:"paymentAmount,omitempty"`
	PreviousBalance        string `json:"previousBalance,omitempty"`
	NewBalance             string `json:"newBalance,omitempty"`
	TransactionID          string `json:"transactionId,omitempty"`
	MaskedCardNumber       string `json:"maskedCardNumber,omitempty"`
	FormattedPaymentAmount string `json:"formattedPaymentAmount,omitempty"`
	ErrorID                string `json:"errorId,omitempty"`
}

// BalanceResponse is returned by the balance endpoint.
type BalanceResponse struct {
	AccountID        string `json:"accountId"`
	Balance          string `json:"balance"`
	FormattedBalance string `json:"formattedBalance"`
}

// HistoryItem is one projected payment.
type HistoryItem struct {
	TransactionID          string `json:"transactionId"`
	MaskedCardNumber       string `json:"maskedCardNumber"`
	Amount                 string `json:"amount"`
	FormattedPaymentAmount string `json:"formattedPaymentAmount"`
	ProcessedAt            string `json:"processedAt"`
}

// HistoryResponse lists projected payments, newest first.
type HistoryResponse struct {
	AccountID string        `json:"accountId"`
	Payments  []HistoryItem `json:"payments"`
}

// encodeOutcome renders a pending, cancelled or completed outcome.
func encodeOutcome(o *domain.PaymentOutcome) PaymentResponse {
	resp := PaymentResponse{
		AccountID:              o.AccountID,
		PaymentAmount:          domain.FormatAmount(o.PaymentAmount),
		PreviousBalance:        domain.FormatAmount(o.PreviousBalance),
		NewBalance:             domain.FormatAmount(o.NewBalance),
		MaskedCardNumber:       domain.MaskCardNumber(o.CardNumber),
		FormattedPaymentAmount: domain.FormatCurrency(o.PaymentAmount),
	}

	switch o.Status {
	case domain.PaymentStatusPendingConfirmation:
		resp.Status = StatusPendingConfirmation
		resp.Message = fmt.Sprintf(msgPending, domain.FormatCurrency(o.PreviousBalance))
	case domain.PaymentStatusCancelled:
		resp.Status = StatusCancelled
		resp.Message = fmt.Sprintf(msgCancelled, domain.FormatCurrency(o.PreviousBalance))
	case domain.PaymentStatusCompleted:
		resp.Status = StatusSuccess
		resp.TransactionID = domain.FormatTransactionID(o.TransactionID)
		resp.Message = fmt.Sprintf(msgSuccess, resp.TransactionID)
	}

	return resp
}

// writeOutcome sends a 200 response for a non-rejected outcome.
func writeOutcome(w http.ResponseWriter, o *domain.PaymentOutcome) {
	writeJSON(w, http.StatusOK, encodeOutcome(o))
}

// writeError maps a service error to its response.
// Rejections are 400 with the reason as message; anything else is a fault.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, req domain.PaymentRequest, err error) {
	pe, ok := domain.AsPaymentError(err)
	if !ok || pe.Retryable() {
		h.writeFault(w, r, req, err)
		return
	}

	writeJSON(w, http.StatusBadRequest, PaymentResponse{
		Status:           StatusError,
		Message:          pe.Reason,
		AccountID:        req.AccountID,
		MaskedCardNumber: maskIfPresent(req.CardNumber),
	})
}

// writeFault sends a 500 with a generic message and an id that ties the
// response to the logged cause.
func (h *Handler) writeFault(w http.ResponseWriter, r *http.Request, req domain.PaymentRequest, err error) {
	errorID := uuid.New().String()
	h.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
		slog.String("error_id", errorID),
		slog.String("request_id", requestID(r)),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))

	writeJSON(w, http.StatusInternalServerError, PaymentResponse{
		Status:           StatusError,
		Message:          msgFault,
		AccountID:        req.AccountID,
		MaskedCardNumber: maskIfPresent(req.CardNumber),
		ErrorID:          errorID,
	})
}

func maskIfPresent(cardNumber string) string {
	if cardNumber == "" {
		return ""
	}
	return domain.MaskCardNumber(cardNumber)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
