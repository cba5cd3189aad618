package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mstgnz/paykit/infra/response"
	"github.com/mstgnz/paykit/provider"
)

const requestTimeout = 30 * time.Second

// PaymentService is the part of provider.PaymentManager the HTTP layer uses
type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, providerName string, req provider.PaymentIntentRequest) (*provider.PaymentResult, error)
	ConfirmPayment(ctx context.Context, providerName, paymentIntentID, paymentMethodID string) (*provider.PaymentResult, error)
	GetPaymentStatus(ctx context.Context, providerName string, req provider.PaymentStatusRequest) (*provider.PaymentResult, error)
	RefundPayment(ctx context.Context, providerName string, req provider.RefundRequest) (*provider.RefundResult, error)

	CreateSubscription(ctx context.Context, providerName string, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error)
	CancelSubscription(ctx context.Context, providerName, providerSubscriptionID string, cancelAtPeriodEnd bool) (*provider.SubscriptionResult, error)
	UpdateSubscription(ctx context.Context, providerName string, req provider.UpdateSubscriptionRequest) (*provider.SubscriptionResult, error)
	RegisterUserWithSubscription(ctx context.Context, req provider.RegistrationRequest) (*provider.RegistrationResult, error)

	ConfirmBankTransfer(ctx context.Context, transactionID, confirmedBy, notes string) (*provider.PaymentResult, error)
	ProcessWebhook(ctx context.Context, providerName string, payload []byte, headers map[string]string) (*provider.WebhookResult, error)

	DefaultProvider() string
	AvailableProviders() []string
	ConfiguredProviders() []string
}

var _ PaymentService = (*provider.PaymentManager)(nil)

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	service  PaymentService
	validate *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(service PaymentService, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validate,
	}
}

// ConfirmRequest is the body of POST /v1/payments/confirm
type ConfirmRequest struct {
	Provider        string `json:"provider,omitempty"`
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
}

// StatusRequest is the body of POST /v1/payments/status
type StatusRequest struct {
	Provider string `json:"provider,omitempty"`
	provider.PaymentStatusRequest
}

// RefundPaymentRequest is the body of POST /v1/payments/refund
type RefundPaymentRequest struct {
	Provider string `json:"provider,omitempty"`
	provider.RefundRequest
}

// decode reads a JSON body into v and validates it
func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return false
	}
	return true
}

// providerParam reads the provider from the route or the query string.
// An empty value selects the default provider.
func providerParam(r *http.Request) string {
	if name := chi.URLParam(r, "provider"); name != "" {
		return strings.ToLower(name)
	}
	return strings.ToLower(r.URL.Query().Get("provider"))
}

// CreatePayment handles POST /v1/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req provider.PaymentIntentRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.CreatePaymentIntent(ctx, providerParam(r), req)
	if err != nil {
		writeError(w, "Payment failed", err)
		return
	}
	writeResult(w, result.Success, http.StatusCreated, "Payment intent created", result.Error, result)
}

// ConfirmPayment handles POST /v1/payments/confirm
func (h *PaymentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req ConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.ConfirmPayment(ctx, strings.ToLower(req.Provider), req.PaymentIntentID, req.PaymentMethodID)
	if err != nil {
		writeError(w, "Failed to confirm payment", err)
		return
	}
	writeResult(w, result.Success, http.StatusOK, "Payment confirmed", result.Error, result)
}

// GetPaymentStatus handles GET /v1/payments/status/{transactionID}
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return
	}

	h.paymentStatus(w, r, providerParam(r), provider.PaymentStatusRequest{
		TransactionID: transactionID,
		ProductID:     r.URL.Query().Get("productId"),
	})
}

// PostPaymentStatus handles POST /v1/payments/status, used when a receipt
// is too large for a query string
func (h *PaymentHandler) PostPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.paymentStatus(w, r, strings.ToLower(req.Provider), req.PaymentStatusRequest)
}

func (h *PaymentHandler) paymentStatus(w http.ResponseWriter, r *http.Request, providerName string, req provider.PaymentStatusRequest) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.GetPaymentStatus(ctx, providerName, req)
	if err != nil {
		writeError(w, "Failed to get payment status", err)
		return
	}
	writeResult(w, result.Success, http.StatusOK, "Payment status retrieved", result.Error, result)
}

// RefundPayment handles POST /v1/payments/refund
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req RefundPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.RefundPayment(ctx, strings.ToLower(req.Provider), req.RefundRequest)
	if err != nil {
		writeError(w, "Failed to refund payment", err)
		return
	}
	writeResult(w, result.Success, http.StatusOK, "Payment refunded", result.Error, result)
}

// ConfirmBankTransferRequest is the body of POST /v1/bank-transfers/{transactionID}/confirm
type ConfirmBankTransferRequest struct {
	ConfirmedBy string `json:"confirmedBy" validate:"required"`
	Notes       string `json:"notes,omitempty"`
}

// ConfirmBankTransfer handles POST /v1/bank-transfers/{transactionID}/confirm
func (h *PaymentHandler) ConfirmBankTransfer(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return
	}

	var req ConfirmBankTransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.ConfirmBankTransfer(ctx, transactionID, req.ConfirmedBy, req.Notes)
	if err != nil {
		writeError(w, "Failed to confirm bank transfer", err)
		return
	}
	writeResult(w, result.Success, http.StatusOK, "Bank transfer confirmed", result.Error, result)
}
