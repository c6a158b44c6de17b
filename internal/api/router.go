/**
 * @description
 * HTTP router setup for the payout service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers payout service routes.
func NewRouter(h *Handler, jwksURL string, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Payout service is healthy"))
	})

	r.Route("/internal/jobs", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/transfer-retries", h.handleRunTransferRetries)
		r.Post("/commission-accrual", h.handleRunCommissionAccrual)
		r.Post("/commission-payouts", h.handleRunCommissionPayouts)
	})

	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(jwksURL))

		r.Post("/payout-accounts/onboarding", h.handleInitiateOnboarding)
		r.Post("/payout-accounts/refresh", h.handleRefreshPayoutAccount)
		r.Get("/payout-accounts/status", h.handleGetPayoutStatus)

		r.Get("/subscriptions", h.handleListSubscriptions)
		r.Get("/subscriptions/{id}", h.handleGetSubscription)
		r.Post("/subscriptions/{id}/price", h.handleChangePrice)
		r.Post("/subscriptions/{id}/pause", h.handlePauseSubscription)
		r.Post("/subscriptions/{id}/resume", h.handleResumeSubscription)
		r.Delete("/subscriptions/{id}", h.handleCancelSubscription)

		r.Post("/refunds", h.handleSubmitRefund)
		r.Get("/refunds", h.handleListRefunds)

		r.Group(func(r chi.Router) {
			r.Use(AdminOnlyMiddleware)
			r.Post("/admin/refunds/{id}/decision", h.handleDecideRefund)
		})
	})

	return r
}
