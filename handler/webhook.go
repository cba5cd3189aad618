package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mstgnz/paykit/infra/response"
)

const maxWebhookBytes = 1 << 20

// WebhookHandler receives provider notifications. Routes using it are not
// behind the API key; each provider authenticates its own payloads.
type WebhookHandler struct {
	service PaymentService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(service PaymentService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// HandleWebhook handles POST /webhooks/{provider}
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	providerName := chi.URLParam(r, "provider")
	if providerName == "" {
		response.Error(w, http.StatusBadRequest, "Missing provider", nil)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to read webhook body", err)
		return
	}

	result, err := h.service.ProcessWebhook(ctx, providerName, payload, flattenHeaders(r.Header))
	if err != nil {
		writeError(w, "Webhook rejected", err)
		return
	}
	response.Success(w, http.StatusOK, result.Message, result)
}

// flattenHeaders keeps the first value of every header under its canonical name
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[http.CanonicalHeaderKey(key)] = values[0]
		}
	}
	return out
}
