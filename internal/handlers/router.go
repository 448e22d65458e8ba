package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

// NewRouter mounts the bill-payment routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.recoverer)

	r.Get("/healthz", h.Healthz)

	r.Route("/bill-payment", func(r chi.Router) {
		r.Post("/process", h.ProcessPayment)
		r.Post("/quick-process", h.QuickProcess)

		r.Route("/account/{accountId}", func(r chi.Router) {
			r.Get("/confirmation", h.GetConfirmation)
			r.Get("/balance", h.GetBalance)
			r.Get("/history", h.GetHistory)
		})
	})

	return r
}

// recoverer turns a panic into a fault response.
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.writeFault(w, r, domain.PaymentRequest{}, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
