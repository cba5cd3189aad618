package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/mstgnz/paykit/handler"
	"github.com/mstgnz/paykit/infra/metrics"
	"github.com/mstgnz/paykit/infra/middle"
	"github.com/mstgnz/paykit/infra/validate"
	v1 "github.com/mstgnz/paykit/router/v1"
)

// Deps is everything the HTTP surface is built from. History, Search and
// RateLimiter are optional.
type Deps struct {
	Service      handler.PaymentService
	Validate     *validator.Validate
	History      handler.WebhookHistory
	Search       handler.WebhookSearch
	HealthChecks map[string]handler.Pinger
	RateLimiter  *middle.RateLimiter

	APIKey      string
	IPWhitelist []string
	CORSOrigins []string
	Environment string
	Version     string
}

// New builds the application router. /health, /metrics and /webhooks are
// public; everything under /v1 requires the API key.
func New(deps Deps) http.Handler {
	if deps.Validate == nil {
		deps.Validate = validate.New()
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware(deps.IPWhitelist))
	if deps.RateLimiter != nil {
		r.Use(middle.RateLimitMiddleware(deps.RateLimiter))
	}
	r.Use(middle.RequestValidationMiddleware())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := handler.NewHealthHandler(deps.Service, deps.HealthChecks, deps.Environment, deps.Version)
	webhooks := handler.NewWebhookHandler(deps.Service)

	r.Get("/health", health.CheckHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/webhooks/{provider}", webhooks.HandleWebhook)

	handlers := v1.Handlers{
		Payment: handler.NewPaymentHandler(deps.Service, deps.Validate),
		Health:  health,
	}
	if deps.History != nil || deps.Search != nil {
		handlers.Logs = handler.NewLogsHandler(deps.History, deps.Search)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.AuthMiddleware(deps.APIKey))
		v1.Routes(r, handlers)
	})

	return r
}
