package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/paykit/infra/response"
	"github.com/mstgnz/paykit/infra/validate"
	"github.com/mstgnz/paykit/provider"
)

func newTestRouter(svc PaymentService) http.Handler {
	h := NewPaymentHandler(svc, validate.New())
	wh := NewWebhookHandler(svc)

	r := chi.NewRouter()
	r.Post("/v1/payments", h.CreatePayment)
	r.Post("/v1/payments/{provider}", h.CreatePayment)
	r.Post("/v1/payments/confirm", h.ConfirmPayment)
	r.Post("/v1/payments/status", h.PostPaymentStatus)
	r.Get("/v1/payments/status/{transactionID}", h.GetPaymentStatus)
	r.Post("/v1/payments/refund", h.RefundPayment)
	r.Post("/v1/subscriptions", h.CreateSubscription)
	r.Post("/v1/subscriptions/cancel", h.CancelSubscription)
	r.Post("/v1/subscriptions/update", h.UpdateSubscription)
	r.Post("/v1/subscriptions/register", h.RegisterSubscription)
	r.Post("/v1/bank-transfers/{transactionID}/confirm", h.ConfirmBankTransfer)
	r.Post("/webhooks/{provider}", wh.HandleWebhook)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return rr, resp
}

func amountIs(want string) any {
	return mock.MatchedBy(func(req provider.PaymentIntentRequest) bool {
		return req.Amount.Equal(decimal.RequireFromString(want))
	})
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		body           string
		setup          func(m *mockService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "created with provider in path",
			path: "/v1/payments/stripe",
			body: `{"amount":"19.99","currency":"USD"}`,
			setup: func(m *mockService) {
				m.On("CreatePaymentIntent", mock.Anything, "stripe", amountIs("19.99")).
					Return(&provider.PaymentResult{Success: true, TransactionID: "pi_1", Status: provider.StatusPending, Provider: "stripe"}, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "Payment intent created",
		},
		{
			name: "default provider with query override",
			path: "/v1/payments?provider=PayPal",
			body: `{"amount":10,"currency":"EUR"}`,
			setup: func(m *mockService) {
				m.On("CreatePaymentIntent", mock.Anything, "paypal", amountIs("10")).
					Return(&provider.PaymentResult{Success: true, Provider: "paypal"}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid json",
			path:           "/v1/payments",
			body:           `{"amount":`,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Invalid request format",
		},
		{
			name:           "invalid currency",
			path:           "/v1/payments",
			body:           `{"amount":"5","currency":"US"}`,
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Validation error",
		},
		{
			name: "provider not configured",
			path: "/v1/payments/stripe",
			body: `{"amount":"5","currency":"USD"}`,
			setup: func(m *mockService) {
				m.On("CreatePaymentIntent", mock.Anything, "stripe", mock.Anything).
					Return(provider.NotConfiguredPayment("stripe", "Stripe"), nil)
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name: "provider failure",
			path: "/v1/payments/stripe",
			body: `{"amount":"5","currency":"USD"}`,
			setup: func(m *mockService) {
				m.On("CreatePaymentIntent", mock.Anything, "stripe", mock.Anything).
					Return(&provider.PaymentResult{
						Status: provider.StatusFailed,
						Error:  provider.NewPaymentError("stripe", provider.CodePaymentCreationFailed, "card declined"),
					}, nil)
			},
			expectedStatus: http.StatusBadGateway,
			expectedMsg:    "card declined",
		},
		{
			name: "unknown provider",
			path: "/v1/payments/square",
			body: `{"amount":"5","currency":"USD"}`,
			setup: func(m *mockService) {
				m.On("CreatePaymentIntent", mock.Anything, "square", mock.Anything).
					Return(nil, provider.NewPaymentError("square", provider.CodeProviderNotFound, "provider not found"))
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockService{}
			if tt.setup != nil {
				tt.setup(m)
			}

			rr, resp := do(t, newTestRouter(m), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, resp.Message)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestPaymentHandler_ConfirmPayment(t *testing.T) {
	m := &mockService{}
	m.On("ConfirmPayment", mock.Anything, "", "pi_123", "pm_card").
		Return(&provider.PaymentResult{Success: true, Status: provider.StatusCompleted, Provider: "stripe"}, nil)

	rr, resp := do(t, newTestRouter(m), http.MethodPost, "/v1/payments/confirm", `{"paymentIntentId":"pi_123","paymentMethodId":"pm_card"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)
	m.AssertExpectations(t)

	rr, _ = do(t, newTestRouter(&mockService{}), http.MethodPost, "/v1/payments/confirm", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPaymentHandler_GetPaymentStatus(t *testing.T) {
	m := &mockService{}
	m.On("GetPaymentStatus", mock.Anything, "google_play", provider.PaymentStatusRequest{TransactionID: "tok", ProductID: "pro"}).
		Return(&provider.PaymentResult{Success: true, Status: provider.StatusCompleted}, nil)
	m.On("GetPaymentStatus", mock.Anything, "apple_iap", provider.PaymentStatusRequest{TransactionID: "1000", ReceiptData: "MIIT"}).
		Return(&provider.PaymentResult{
			Status: provider.StatusFailed,
			Error:  provider.NewPaymentError("apple_iap", "MISSING_RECEIPT", "receipt data is required"),
		}, nil)
	m.On("GetPaymentStatus", mock.Anything, "", provider.PaymentStatusRequest{TransactionID: "pi_9"}).
		Return(nil, context.DeadlineExceeded)

	router := newTestRouter(m)

	rr, _ := do(t, router, http.MethodGet, "/v1/payments/status/tok?provider=google_play&productId=pro", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(t, router, http.MethodPost, "/v1/payments/status", `{"provider":"apple_iap","transactionId":"1000","receiptData":"MIIT"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, router, http.MethodGet, "/v1/payments/status/pi_9", "")
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)

	m.AssertExpectations(t)
}

func TestPaymentHandler_RefundPayment(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setup          func(m *mockService)
		expectedStatus int
	}{
		{
			name: "partial refund",
			body: `{"provider":"paypal","transactionId":"CAP-1","amount":"5.00","reason":"duplicate"}`,
			setup: func(m *mockService) {
				m.On("RefundPayment", mock.Anything, "paypal", mock.MatchedBy(func(req provider.RefundRequest) bool {
					return req.TransactionID == "CAP-1" && req.Amount != nil && req.Amount.Equal(decimal.NewFromInt(5))
				})).Return(&provider.RefundResult{Success: true, Status: "completed"}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "negative amount",
			body:           `{"transactionId":"CAP-1","amount":"-1"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing transaction",
			body:           `{"reason":"x"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "app store refund not supported",
			body: `{"provider":"apple_iap","transactionId":"1000"}`,
			setup: func(m *mockService) {
				m.On("RefundPayment", mock.Anything, "apple_iap", mock.Anything).Return(&provider.RefundResult{
					Status: "pending_manual_processing",
					Error:  provider.NewPaymentError("apple_iap", provider.CodeNotSupported, "refunds go through App Store Connect"),
				}, nil)
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockService{}
			if tt.setup != nil {
				tt.setup(m)
			}
			rr, _ := do(t, newTestRouter(m), http.MethodPost, "/v1/payments/refund", tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			m.AssertExpectations(t)
		})
	}
}

func TestPaymentHandler_ConfirmBankTransfer(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setup          func(m *mockService)
		expectedStatus int
	}{
		{
			name: "confirmed",
			body: `{"confirmedBy":"admin-1","notes":"seen on statement"}`,
			setup: func(m *mockService) {
				m.On("ConfirmBankTransfer", mock.Anything, "BT-1", "admin-1", "seen on statement").
					Return(&provider.PaymentResult{Success: true, Status: provider.StatusCompleted}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unknown transfer",
			body: `{"confirmedBy":"admin-1"}`,
			setup: func(m *mockService) {
				m.On("ConfirmBankTransfer", mock.Anything, "BT-1", "admin-1", "").
					Return(&provider.PaymentResult{
						Status: provider.StatusFailed,
						Error:  provider.NewPaymentError("bank_transfer", provider.CodePaymentNotFound, "payment not found"),
					}, nil)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "no store",
			body: `{"confirmedBy":"admin-1"}`,
			setup: func(m *mockService) {
				m.On("ConfirmBankTransfer", mock.Anything, "BT-1", "admin-1", "").Return(nil, provider.ErrNoStore)
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "missing admin",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockService{}
			if tt.setup != nil {
				tt.setup(m)
			}
			rr, _ := do(t, newTestRouter(m), http.MethodPost, "/v1/bank-transfers/BT-1/confirm", tt.body)
			assert.Equal(t, tt.expectedStatus, rr.Code)
			m.AssertExpectations(t)
		})
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{provider.CodeProviderNotConfigured, http.StatusServiceUnavailable},
		{provider.CodeWebhookSecretMissing, http.StatusServiceUnavailable},
		{provider.CodeProviderNotFound, http.StatusNotFound},
		{provider.CodeSubscriptionNotFound, http.StatusNotFound},
		{provider.CodeWebhookSignatureInvalid, http.StatusUnauthorized},
		{provider.CodeWebhookHeadersMissing, http.StatusUnauthorized},
		{provider.CodeInvalidPayload, http.StatusBadRequest},
		{provider.CodeParsingError, http.StatusBadRequest},
		{"MISSING_PRODUCT_ID", http.StatusBadRequest},
		{provider.CodeNotSupported, http.StatusUnprocessableEntity},
		{provider.CodeRefundFailed, http.StatusBadGateway},
		{"GOOGLE_PLAY_ERROR", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForCode(tt.code))
		})
	}
}
