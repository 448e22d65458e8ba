package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/analytics"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/handlers"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/memstore"
)

const (
	testAccount = "00000000001"
	testCard    = "1234567890123456"
	otherCard   = "9999888877776666"
)

type testServer struct {
	*httptest.Server
	store *memstore.Store
}

func newTestServer(t *testing.T, balance string, history handlers.HistoryReader) *testServer {
	t.Helper()

	store := memstore.New()
	seed := `{"accounts":[{"id":"` + testAccount + `","balance":"` + balance + `","cards":["` + testCard + `"]}]}`
	if _, err := memstore.LoadSeed(context.Background(), strings.NewReader(seed), store); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	service := domain.NewPaymentService(store, store, store, store, nil)
	h := handlers.NewHandler(service, history, store, nil)
	srv := httptest.NewServer(handlers.NewRouter(h))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, handlers.PaymentResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out handlers.PaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp.StatusCode, out
}

func (s *testServer) balance(t *testing.T) string {
	t.Helper()
	b, err := s.store.GetBalance(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	return domain.FormatAmount(b)
}

func (s *testServer) journalSize(t *testing.T) int {
	t.Helper()
	entries, err := s.store.ListByAccount(context.Background(), testAccount, 0)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	return len(entries)
}

func TestConfirmationBranches(t *testing.T) {
	tests := []struct {
		name         string
		confirmation string
		wantCode     int
		wantStatus   string
		wantAmount   string
		wantNew      string
		wantBalance  string
		wantEntries  int
		wantMessage  string
	}{
		{
			name:        "no confirmation is pending",
			wantCode:    http.StatusOK,
			wantStatus:  handlers.StatusPendingConfirmation,
			wantAmount:  "1500.00",
			wantNew:     "0.00",
			wantBalance: "1500.00",
		},
		{
			name:         "N cancels",
			confirmation: "N",
			wantCode:     http.StatusOK,
			wantStatus:   handlers.StatusCancelled,
			wantAmount:   "0.00",
			wantNew:      "1500.00",
			wantBalance:  "1500.00",
		},
		{
			name:         "Y completes",
			confirmation: "Y",
			wantCode:     http.StatusOK,
			wantStatus:   handlers.StatusSuccess,
			wantAmount:   "1500.00",
			wantNew:      "0.00",
			wantBalance:  "0.00",
			wantEntries:  1,
		},
		{
			name:         "X is rejected",
			confirmation: "X",
			wantCode:     http.StatusBadRequest,
			wantStatus:   handlers.StatusError,
			wantBalance:  "1500.00",
			wantMessage:  domain.ReasonInvalidConfirmation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, "1500.00", nil)

			code, resp := srv.do(t, http.MethodPost, "/bill-payment/process", map[string]string{
				"accountId":    testAccount,
				"cardNumber":   testCard,
				"confirmation": tt.confirmation,
			})

			if code != tt.wantCode {
				t.Errorf("expected HTTP %d, got %d", tt.wantCode, code)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, resp.Status)
			}
			if resp.PaymentAmount != tt.wantAmount {
				t.Errorf("expected paymentAmount %q, got %q", tt.wantAmount, resp.PaymentAmount)
			}
			if resp.NewBalance != tt.wantNew {
				t.Errorf("expected newBalance %q, got %q", tt.wantNew, resp.NewBalance)
			}
			if tt.wantMessage != "" && resp.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, resp.Message)
			}
			if got := srv.balance(t); got != tt.wantBalance {
				t.Errorf("expected stored balance %s, got %s", tt.wantBalance, got)
			}
			if got := srv.journalSize(t); got != tt.wantEntries {
				t.Errorf("expected %d journal entries, got %d", tt.wantEntries, got)
			}
			if tt.wantStatus == handlers.StatusSuccess {
				if resp.TransactionID != "0000000000000001" {
					t.Errorf("expected transaction id 0000000000000001, got %q", resp.TransactionID)
				}
			} else if resp.TransactionID != "" {
				t.Errorf("transaction id must only be present on success, got %q", resp.TransactionID)
			}
		})
	}
}

func TestGetConfirmation(t *testing.T) {
	srv := newTestServer(t, "1500.00", nil)

	code, resp := srv.do(t, http.MethodGet, "/bill-payment/account/"+testAccount+"/confirmation?cardNumber="+testCard, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Status != handlers.StatusPendingConfirmation {
		t.Errorf("expected pending, got %s", resp.Status)
	}
	if resp.MaskedCardNumber != "************3456" {
		t.Errorf("expected masked card, got %s", resp.MaskedCardNumber)
	}
	if resp.FormattedPaymentAmount != "$1500.00" {
		t.Errorf("expected $1500.00, got %s", resp.FormattedPaymentAmount)
	}
	if resp.PreviousBalance != "1500.00" || resp.NewBalance != "0.00" {
		t.Errorf("unexpected balances %s -> %s", resp.PreviousBalance, resp.NewBalance)
	}
	if resp.Message == "" {
		t.Error("expected a human-readable message")
	}
	if got := srv.balance(t); got != "1500.00" {
		t.Errorf("confirmation query must not mutate, balance is %s", got)
	}
}

func TestRejections(t *testing.T) {
	tests := []struct {
		name        string
		balance     string
		path        string
		wantMessage string
		wantMasked  string
	}{
		{
			name:        "blank account",
			balance:     "10.00",
			path:        "/bill-payment/quick-process?accountId=%20&cardNumber=" + testCard,
			wantMessage: domain.ReasonAccountIDRequired,
			wantMasked:  "************3456",
		},
		{
			name:        "unknown account",
			balance:     "10.00",
			path:        "/bill-payment/quick-process?accountId=00000000099&cardNumber=" + testCard,
			wantMessage: domain.ReasonAccountNotFound,
		},
		{
			name:        "zero balance",
			balance:     "0.00",
			path:        "/bill-payment/quick-process?accountId=" + testAccount + "&cardNumber=" + testCard,
			wantMessage: domain.ReasonNothingToPay,
		},
		{
			name:        "missing card",
			balance:     "10.00",
			path:        "/bill-payment/quick-process?accountId=" + testAccount,
			wantMessage: domain.ReasonCardNumberRequired,
		},
		{
			name:        "short card",
			balance:     "10.00",
			path:        "/bill-payment/quick-process?accountId=" + testAccount + "&cardNumber=1234",
			wantMessage: domain.ReasonCardNumberLength,
			wantMasked:  "****************",
		},
		{
			name:        "multi-byte short card",
			balance:     "10.00",
			path:        "/bill-payment/quick-process?accountId=" + testAccount + "&cardNumber=12345678901%C3%A9345",
			wantMessage: domain.ReasonCardNumberLength,
			wantMasked:  "****************",
		},
		{
			name:        "card of another account",
			balance:     "10.00",
			path:        "/bill-payment/quick-process?accountId=" + testAccount + "&cardNumber=" + otherCard,
			wantMessage: domain.ReasonCardNotAssociated,
			wantMasked:  "************6666",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.balance, nil)

			code, resp := srv.do(t, http.MethodPost, tt.path, nil)
			if code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", code)
			}
			if resp.Status != handlers.StatusError {
				t.Errorf("expected ERROR, got %s", resp.Status)
			}
			if resp.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, resp.Message)
			}
			if tt.wantMasked != "" && resp.MaskedCardNumber != tt.wantMasked {
				t.Errorf("expected masked card %q, got %q", tt.wantMasked, resp.MaskedCardNumber)
			}
			if srv.journalSize(t) != 0 {
				t.Error("rejected request must not append to the journal")
			}
		})
	}
}

func TestReplayAfterCompletion(t *testing.T) {
	srv := newTestServer(t, "250.00", nil)
	body := map[string]string{"accountId": testAccount, "cardNumber": testCard, "confirmation": "y"}

	code, first := srv.do(t, http.MethodPost, "/bill-payment/process", body)
	if code != http.StatusOK || first.Status != handlers.StatusSuccess {
		t.Fatalf("expected first confirmation to succeed, got %d %s", code, first.Status)
	}

	code, second := srv.do(t, http.MethodPost, "/bill-payment/process", body)
	if code != http.StatusBadRequest || second.Message != domain.ReasonNothingToPay {
		t.Fatalf("expected replay to be rejected with nothing to pay, got %d %q", code, second.Message)
	}
	if srv.journalSize(t) != 1 {
		t.Errorf("expected exactly one journal entry, got %d", srv.journalSize(t))
	}
}

func TestConcurrentQuickProcess(t *testing.T) {
	srv := newTestServer(t, "500.00", nil)
	path := "/bill-payment/quick-process?accountId=" + testAccount + "&cardNumber=" + testCard

	const clients = 2
	var wg sync.WaitGroup
	codes := make(chan handlers.PaymentResponse, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(srv.URL+path, "application/json", nil)
			if err != nil {
				t.Errorf("request failed: %v", err)
				return
			}
			defer resp.Body.Close()
			var body handlers.PaymentResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode response: %v", err)
				return
			}
			codes <- body
		}()
	}
	wg.Wait()
	close(codes)

	var success, nothingToPay int
	for resp := range codes {
		switch {
		case resp.Status == handlers.StatusSuccess:
			success++
			if resp.PaymentAmount != "500.00" {
				t.Errorf("expected 500.00, got %s", resp.PaymentAmount)
			}
		case resp.Message == domain.ReasonNothingToPay:
			nothingToPay++
		default:
			t.Errorf("unexpected response: %+v", resp)
		}
	}

	if success != 1 || nothingToPay != 1 {
		t.Errorf("expected 1 success and 1 nothing-to-pay, got %d and %d", success, nothingToPay)
	}
	if srv.journalSize(t) != 1 {
		t.Errorf("expected exactly one journal entry, got %d", srv.journalSize(t))
	}
}

func TestProcessInvalidBody(t *testing.T) {
	srv := newTestServer(t, "10.00", nil)

	resp, err := http.Post(srv.URL+"/bill-payment/process", "application/json", strings.NewReader(`{"accountId":`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProcessOversizedBody(t *testing.T) {
	srv := newTestServer(t, "10.00", nil)

	body := `{"accountId":"` + testAccount + `","cardNumber":"` + testCard + `","confirmation":"Y","pad":"` +
		strings.Repeat("x", 8<<10) + `"}`
	code, resp := srv.do(t, http.MethodPost, "/bill-payment/process", json.RawMessage(body))
	if code != http.StatusBadRequest || resp.Message != "invalid request body" {
		t.Errorf("expected 400 invalid request body, got %d %q", code, resp.Message)
	}
	if srv.balance(t) != "10.00" || srv.journalSize(t) != 0 {
		t.Error("oversized request must not settle the balance")
	}
}

func TestGetBalanceEndpoint(t *testing.T) {
	srv := newTestServer(t, "42.10", nil)

	resp, err := http.Get(srv.URL + "/bill-payment/account/" + testAccount + "/balance")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body handlers.BalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Balance != "42.10" || body.FormattedBalance != "$42.10" {
		t.Errorf("unexpected balance response %d %+v", resp.StatusCode, body)
	}

	code, missing := srv.do(t, http.MethodGet, "/bill-payment/account/00000000099/balance", nil)
	if code != http.StatusBadRequest || missing.Message != domain.ReasonAccountNotFound {
		t.Errorf("expected 400 account not found, got %d %q", code, missing.Message)
	}
}

// faultyProcessor fails every call with an infrastructure fault or a panic.
type faultyProcessor struct {
	panics bool
}

func (f faultyProcessor) fail() (*domain.PaymentOutcome, error) {
	if f.panics {
		panic("boom")
	}
	return nil, &domain.PaymentError{Kind: domain.KindInfrastructure, Reason: domain.ReasonPaymentCommitFailed, Err: errors.New("db down")}
}

func (f faultyProcessor) Process(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentOutcome, error) {
	return f.fail()
}

func (f faultyProcessor) QueryConfirmation(ctx context.Context, accountID, cardNumber string) (*domain.PaymentOutcome, error) {
	return f.fail()
}

func (f faultyProcessor) QuickProcess(ctx context.Context, accountID, cardNumber string) (*domain.PaymentOutcome, error) {
	return f.fail()
}

func (f faultyProcessor) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	_, err := f.fail()
	return decimal.Zero, err
}

func TestFaultsReturn500(t *testing.T) {
	for _, panics := range []bool{false, true} {
		h := handlers.NewHandler(faultyProcessor{panics: panics}, nil, nil, nil)
		srv := httptest.NewServer(handlers.NewRouter(h))

		resp, err := http.Post(srv.URL+"/bill-payment/quick-process?accountId="+testAccount+"&cardNumber="+testCard, "application/json", nil)
		if err != nil {
			srv.Close()
			t.Fatalf("request failed: %v", err)
		}

		var body handlers.PaymentResponse
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		srv.Close()

		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("panics=%v: expected 500, got %d", panics, resp.StatusCode)
		}
		if body.Status != handlers.StatusError || body.ErrorID == "" {
			t.Errorf("panics=%v: expected ERROR with error id, got %+v", panics, body)
		}
		if strings.Contains(body.Message, "db down") {
			t.Errorf("fault message leaks the cause: %q", body.Message)
		}
	}
}

type stubHistory struct {
	payments []*analytics.Payment
	limit    int
}

func (s *stubHistory) ListAccountPayments(ctx context.Context, accountID string, limit int) ([]*analytics.Payment, error) {
	s.limit = limit
	return s.payments, nil
}

func TestHistory(t *testing.T) {
	t.Run("unavailable without projection", func(t *testing.T) {
		srv := newTestServer(t, "10.00", nil)
		code, resp := srv.do(t, http.MethodGet, "/bill-payment/account/"+testAccount+"/history", nil)
		if code != http.StatusServiceUnavailable || resp.Message != "history unavailable" {
			t.Errorf("expected 503 history unavailable, got %d %q", code, resp.Message)
		}
	})

	t.Run("lists projected payments", func(t *testing.T) {
		history := &stubHistory{payments: []*analytics.Payment{{
			TransactionID:    "0000000000000003",
			AccountID:        testAccount,
			MaskedCardNumber: "************3456",
			Amount:           decimal.RequireFromString("150.5"),
			ProcessedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}}}
		srv := newTestServer(t, "10.00", history)

		resp, err := http.Get(srv.URL + "/bill-payment/account/" + testAccount + "/history?limit=500")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body handlers.HistoryResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if len(body.Payments) != 1 || body.Payments[0].Amount != "150.50" || body.Payments[0].ProcessedAt != "2024-01-02T03:04:05Z" {
			t.Errorf("unexpected history %+v", body)
		}
		if history.limit != 100 {
			t.Errorf("expected limit capped at 100, got %d", history.limit)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		srv := newTestServer(t, "10.00", &stubHistory{})
		code, _ := srv.do(t, http.MethodGet, "/bill-payment/account/"+testAccount+"/history?limit=abc", nil)
		if code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", code)
		}
	})
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "10.00", nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
