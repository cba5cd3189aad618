package v1

import (
	"github.com/go-chi/chi/v5"

	"github.com/mstgnz/paykit/handler"
)

// Handlers groups the handlers mounted under /v1
type Handlers struct {
	Payment *handler.PaymentHandler
	Health  *handler.HealthHandler
	Logs    *handler.LogsHandler
}

// Routes registers all API routes
func Routes(r chi.Router, h Handlers) {
	r.Get("/providers", h.Health.ListProviders)

	r.Route("/payments", func(r chi.Router) {
		// default provider, or ?provider=
		r.Post("/", h.Payment.CreatePayment)
		r.Post("/confirm", h.Payment.ConfirmPayment)
		r.Post("/status", h.Payment.PostPaymentStatus)
		r.Get("/status/{transactionID}", h.Payment.GetPaymentStatus)
		r.Post("/refund", h.Payment.RefundPayment)

		r.Post("/{provider}", h.Payment.CreatePayment)
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.Payment.CreateSubscription)
		r.Post("/cancel", h.Payment.CancelSubscription)
		r.Post("/update", h.Payment.UpdateSubscription)
		r.Post("/register", h.Payment.RegisterSubscription)
	})

	r.Post("/bank-transfers/{transactionID}/confirm", h.Payment.ConfirmBankTransfer)

	if h.Logs != nil {
		r.Route("/logs/webhooks", func(r chi.Router) {
			r.Get("/", h.Logs.RecentWebhooks)
			r.Get("/{provider}", h.Logs.RecentWebhooks)
			r.Get("/{provider}/events/{eventID}", h.Logs.EventLogs)
			r.Get("/{provider}/stats", h.Logs.WebhookStats)
		})
	}
}
