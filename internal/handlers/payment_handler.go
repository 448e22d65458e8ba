package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/analytics"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	maxRequestBodyBytes = 4 << 10
)

// PaymentProcessor runs the bill-payment workflow.
type PaymentProcessor interface {
	Process(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentOutcome, error)
	QueryConfirmation(ctx context.Context, accountID, cardNumber string) (*domain.PaymentOutcome, error)
	QuickProcess(ctx context.Context, accountID, cardNumber string) (*domain.PaymentOutcome, error)
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// HistoryReader reads the payment history projection.
type HistoryReader interface {
	ListAccountPayments(ctx context.Context, accountID string, limit int) ([]*analytics.Payment, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the bill-payment HTTP API.
type Handler struct {
	payments PaymentProcessor
	history  HistoryReader // nil when ClickHouse is not configured
	health   Pinger
	logger   *slog.Logger
}

// NewHandler creates a Handler. history and health may be nil.
func NewHandler(payments PaymentProcessor, history HistoryReader, health Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		payments: payments,
		history:  history,
		health:   health,
		logger:   logger,
	}
}

// processRequest is the body of POST /bill-payment/process.
type processRequest struct {
	AccountID    string `json:"accountId"`
	CardNumber   string `json:"cardNumber"`
	Confirmation string `json:"confirmation"`
}

// GetConfirmation returns the pending-confirmation projection for an account and card.
func (h *Handler) GetConfirmation(w http.ResponseWriter, r *http.Request) {
	req := domain.PaymentRequest{
		AccountID:  chi.URLParam(r, "accountId"),
		CardNumber: r.URL.Query().Get("cardNumber"),
	}

	outcome, err := h.payments.QueryConfirmation(r.Context(), req.AccountID, req.CardNumber)
	if err != nil {
		h.writeError(w, r, req, err)
		return
	}
	writeOutcome(w, outcome)
}

// ProcessPayment runs one round trip of the confirmation protocol.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var body processRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, PaymentResponse{
			Status:  StatusError,
			Message: "invalid request body",
		})
		return
	}

	req := domain.PaymentRequest{
		AccountID:    body.AccountID,
		CardNumber:   body.CardNumber,
		Confirmation: body.Confirmation,
	}

	outcome, err := h.payments.Process(r.Context(), req)
	if err != nil {
		h.writeError(w, r, req, err)
		return
	}
	writeOutcome(w, outcome)
}

// QuickProcess pays the full balance in a single round trip.
func (h *Handler) QuickProcess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.PaymentRequest{
		AccountID:    q.Get("accountId"),
		CardNumber:   q.Get("cardNumber"),
		Confirmation: domain.ConfirmYes,
	}

	outcome, err := h.payments.QuickProcess(r.Context(), req.AccountID, req.CardNumber)
	if err != nil {
		h.writeError(w, r, req, err)
		return
	}
	writeOutcome(w, outcome)
}

// GetBalance returns the current balance of an account.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	req := domain.PaymentRequest{AccountID: chi.URLParam(r, "accountId")}

	balance, err := h.payments.GetBalance(r.Context(), req.AccountID)
	if err != nil {
		h.writeError(w, r, req, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		AccountID:        req.AccountID,
		Balance:          domain.FormatAmount(balance),
		FormattedBalance: domain.FormatCurrency(balance),
	})
}

// GetHistory lists the account's completed payments from the projection.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, PaymentResponse{
			Status:    StatusError,
			Message:   "history unavailable",
			AccountID: accountID,
		})
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, PaymentResponse{
			Status:    StatusError,
			Message:   err.Error(),
			AccountID: accountID,
		})
		return
	}

	payments, err := h.history.ListAccountPayments(r.Context(), accountID, limit)
	if err != nil {
		h.writeFault(w, r, domain.PaymentRequest{AccountID: accountID}, err)
		return
	}

	resp := HistoryResponse{
		AccountID: accountID,
		Payments:  make([]HistoryItem, 0, len(payments)),
	}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, HistoryItem{
			TransactionID:          p.TransactionID,
			MaskedCardNumber:       p.MaskedCardNumber,
			Amount:                 domain.FormatAmount(p.Amount),
			FormattedPaymentAmount: domain.FormatCurrency(p.Amount),
			ProcessedAt:            p.ProcessedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Healthz reports store reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "NOT_SERVING"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "SERVING"})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}
