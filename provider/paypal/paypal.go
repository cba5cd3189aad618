package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/provider"
)

const (
	displayName = "PayPal"

	apiSandboxURL    = "https://api-m.sandbox.paypal.com"
	apiProductionURL = "https://api-m.paypal.com"

	endpointToken              = "/v1/oauth2/token"
	endpointOrders             = "/v2/checkout/orders"
	endpointOrder              = "/v2/checkout/orders/%s"
	endpointOrderCapture       = "/v2/checkout/orders/%s/capture"
	endpointSubscriptions      = "/v1/billing/subscriptions"
	endpointSubscriptionCancel = "/v1/billing/subscriptions/%s/cancel"
	endpointCaptureRefund      = "/v2/payments/captures/%s/refund"
	endpointVerifyWebhook      = "/v1/notifications/verify-webhook-signature"

	// tokens are refreshed this long before PayPal expires them
	tokenExpiryMargin = 60 * time.Second
	defaultTimeout    = 30 * time.Second
	customIDMaxLength = 64
)

// PayPal specific error codes
const (
	CodeAuthFailed             = "PAYPAL_AUTH_FAILED"
	CodeOrderFailed            = "PAYPAL_ORDER_FAILED"
	CodeCaptureFailed          = "PAYPAL_CAPTURE_FAILED"
	CodeStatusFailed           = "PAYPAL_STATUS_FAILED"
	CodeSubscriptionFailed     = "PAYPAL_SUBSCRIPTION_FAILED"
	CodeCancelFailed           = "PAYPAL_CANCEL_FAILED"
	CodePlanChangeNotSupported = "PAYPAL_PLAN_CHANGE_NOT_SUPPORTED"
	CodeRefundFailed           = "PAYPAL_REFUND_FAILED"
	CodeServiceError           = "PAYPAL_SERVICE_ERROR"
)

// verification headers PayPal sends with every webhook
var webhookHeaders = []string{
	"paypal-auth-algo",
	"paypal-cert-id",
	"paypal-transmission-id",
	"paypal-transmission-sig",
	"paypal-transmission-time",
}

var orderStatusMap = map[string]provider.PaymentStatus{
	"CREATED":               provider.StatusPending,
	"SAVED":                 provider.StatusPending,
	"APPROVED":              provider.StatusProcessing,
	"COMPLETED":             provider.StatusCompleted,
	"VOIDED":                provider.StatusCancelled,
	"PAYER_ACTION_REQUIRED": provider.StatusPending,
}

// PayPalProvider implements provider.PaymentProvider on the PayPal REST API
type PayPalProvider struct {
	provider.BaseProvider

	clientID     string
	clientSecret string
	webhookID    string
	currency     string
	returnURL    string
	cancelURL    string
	brandName    string

	client *provider.ProviderHTTPClient
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	tokenGroup  singleflight.Group
}

// NewProvider creates an unconfigured PayPal provider
func NewProvider() provider.PaymentProvider {
	return &PayPalProvider{
		BaseProvider: provider.NewBaseProvider(provider.PayPal),
		now:          time.Now,
	}
}

// RequiredConfig describes the configuration keys the provider reads
func (p *PayPalProvider) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{Key: "client_id", Required: true, Type: "string", Description: "REST API client ID", Example: "AZDxjDScFpQtjWTOUtWKbyN_bDt4OgqaF4eYXlewfBP4", MinLength: 10},
		{Key: "client_secret", Required: true, Type: "string", Description: "REST API client secret", Example: "EGnHDxD_qRPdaLdZz8iCr8N7_MzF-YHPTkjs6NKYQvQSBngp4PTTVWkPZRbL", MinLength: 10},
		{Key: "mode", Required: false, Type: "string", Description: "sandbox or live", Example: "sandbox", Pattern: "^(sandbox|live)$"},
		{Key: "webhook_id", Required: false, Type: "string", Description: "Webhook ID used for signature verification", Example: "8PT597110X687430LKGECATA"},
		{Key: "currency", Required: false, Type: "string", Description: "Currency used for partial refunds", Example: "USD", Pattern: "^[A-Z]{3}$"},
		{Key: "return_url", Required: false, Type: "url", Description: "Where PayPal sends the buyer after approval", Example: "https://example.com/paypal/return"},
		{Key: "cancel_url", Required: false, Type: "url", Description: "Where PayPal sends the buyer after cancelling", Example: "https://example.com/paypal/cancel"},
		{Key: "brand_name", Required: false, Type: "string", Description: "Brand shown on the PayPal pages", Example: "PayKit", MaxLength: 127},
		{Key: "api_base", Required: false, Type: "url", Description: "Overrides the PayPal API base URL", Example: apiSandboxURL},
	}
}

// Initialize applies configuration. Missing credentials leave the provider
// unconfigured.
func (p *PayPalProvider) Initialize(config map[string]string) error {
	if err := provider.ValidateConfigFields(p.Name(), config, p.RequiredConfig()); err != nil {
		return err
	}

	p.clientID = provider.ConfigString(config, "client_id", "")
	p.clientSecret = provider.ConfigString(config, "client_secret", "")
	p.webhookID = provider.ConfigString(config, "webhook_id", "")
	p.currency = provider.ConfigString(config, "currency", "USD")
	p.returnURL = provider.ConfigString(config, "return_url", "")
	p.cancelURL = provider.ConfigString(config, "cancel_url", "")
	p.brandName = provider.ConfigString(config, "brand_name", "PayKit")

	baseURL := apiSandboxURL
	if provider.ConfigString(config, "mode", "sandbox") == "live" {
		baseURL = apiProductionURL
	}
	baseURL = provider.ConfigString(config, "api_base", baseURL)

	p.client = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(baseURL, defaultTimeout))

	p.mu.Lock()
	p.token = ""
	p.tokenExpiry = time.Time{}
	p.mu.Unlock()
	return nil
}

// IsConfigured reports whether client credentials are set
func (p *PayPalProvider) IsConfigured() bool {
	return p.clientID != "" && p.clientSecret != "" && p.client != nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns the cached bearer token, refreshing it when it is
// about to expire. Concurrent refreshes share one token request, which runs
// detached from any single caller so one caller's deadline does not fail the
// others; each caller still stops waiting when its own ctx ends.
func (p *PayPalProvider) accessToken(ctx context.Context) (string, error) {
	if token, ok := p.cachedToken(); ok {
		return token, nil
	}

	ch := p.tokenGroup.DoChan("token", func() (any, error) {
		// another caller may have refreshed while we waited
		if token, ok := p.cachedToken(); ok {
			return token, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer cancel()
		return p.fetchToken(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (p *PayPalProvider) cachedToken() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, true
	}
	return "", false
}

func (p *PayPalProvider) fetchToken(ctx context.Context) (string, error) {
	resp, err := p.client.SendForm(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointToken,
		FormData: map[string]string{"grant_type": "client_credentials"},
		Username: p.clientID,
		Password: p.clientSecret,
	})
	if err != nil {
		logger.Error("PayPal auth failed", err, logger.LogContext{Provider: p.Name()})
		return "", provider.NewPaymentError(p.Name(), CodeAuthFailed, "Failed to authenticate with PayPal").WithCause(err)
	}

	var tr tokenResponse
	if err := p.client.ParseJSONResponse(resp, &tr); err != nil || tr.AccessToken == "" {
		return "", provider.NewPaymentError(p.Name(), CodeAuthFailed, "Failed to authenticate with PayPal").WithCause(err)
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}

	p.mu.Lock()
	p.token = tr.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryMargin)
	p.mu.Unlock()
	return tr.AccessToken, nil
}

// call sends an authenticated JSON request
func (p *PayPalProvider) call(ctx context.Context, method, endpoint string, body any) (*provider.HTTPResponse, error) {
	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   method,
		Endpoint: endpoint,
		Headers:  map[string]string{"Authorization": "Bearer " + token},
		Body:     body,
	})
}

// failure classifies an error from call. ok is false when the caller's
// context ended and the operation must be aborted.
func (p *PayPalProvider) failure(ctx context.Context, operation, code string, err error) (*provider.PaymentError, string, bool) {
	if provider.IsContextError(ctx, err) {
		return nil, "", false
	}

	var pe *provider.PaymentError
	if errors.As(err, &pe) {
		return pe, "Failed to authenticate with PayPal", true
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		logger.Error("PayPal request rejected", err, logger.LogContext{
			Provider: p.Name(),
			Fields:   map[string]any{"operation": operation, "status": httpErr.StatusCode},
		})
		return provider.NewPaymentError(p.Name(), code, httpErr.Body).WithDetail("status", httpErr.StatusCode), "", true
	}

	logger.Error("PayPal request failed", err, logger.LogContext{
		Provider: p.Name(),
		Fields:   map[string]any{"operation": operation},
	})
	return provider.NewPaymentError(p.Name(), CodeServiceError, err.Error()), "PayPal service unavailable", true
}

func (p *PayPalProvider) paymentFailure(ctx context.Context, message, code string, err error) (*provider.PaymentResult, error) {
	pe, override, ok := p.failure(ctx, message, code, err)
	if !ok {
		return nil, ctx.Err()
	}
	if override != "" {
		message = override
	}
	return &provider.PaymentResult{Success: false, Status: provider.StatusFailed, Message: message, Provider: p.Name(), Error: pe}, nil
}

func (p *PayPalProvider) subscriptionFailure(ctx context.Context, message, code string, err error) (*provider.SubscriptionResult, error) {
	pe, override, ok := p.failure(ctx, message, code, err)
	if !ok {
		return nil, ctx.Err()
	}
	if override != "" {
		message = override
	}
	return &provider.SubscriptionResult{Success: false, Status: "failed", Message: message, Provider: p.Name(), Error: pe}, nil
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type order struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CreateTime    string `json:"create_time"`
	Links         []link `json:"links"`
	PurchaseUnits []struct {
		Amount   money `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount money  `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreatePaymentIntent creates a CAPTURE order; the buyer approves it at RedirectURL
func (p *PayPalProvider) CreatePaymentIntent(ctx context.Context, req provider.PaymentIntentRequest) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}

	description := req.Description
	if description == "" {
		description = "Payment"
	}
	currency := strings.ToUpper(req.Currency)

	unit := map[string]any{
		"amount":      money{CurrencyCode: currency, Value: req.Amount.StringFixed(2)},
		"description": description,
	}
	if customID := customID(req.Metadata); customID != "" {
		unit["custom_id"] = customID
	}

	body := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []any{unit},
		"application_context": map[string]any{
			"brand_name": p.brandName,
			"return_url": p.returnURL,
			"cancel_url": p.cancelURL,
		},
	}

	resp, err := p.call(ctx, http.MethodPost, endpointOrders, body)
	if err == nil && resp.StatusCode != http.StatusCreated {
		err = &provider.HTTPError{StatusCode: resp.StatusCode, Body: resp.RawBody}
	}
	if err != nil {
		return p.paymentFailure(ctx, "Failed to create PayPal order", CodeOrderFailed, err)
	}

	var o order
	if err := p.client.ParseJSONResponse(resp, &o); err != nil {
		return p.paymentFailure(ctx, "Failed to create PayPal order", CodeOrderFailed, err)
	}

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         o.ID,
		ProviderTransactionID: o.ID,
		Amount:                provider.Amount(req.Amount),
		Currency:              currency,
		Status:                provider.StatusPending,
		Message:               "PayPal order created",
		Provider:              p.Name(),
		RedirectURL:           approvalURL(o.Links),
		ProviderData: map[string]any{
			"status":      o.Status,
			"create_time": o.CreateTime,
		},
	}, nil
}

// ConfirmPayment captures an approved order. paymentMethodID is not used.
func (p *PayPalProvider) ConfirmPayment(ctx context.Context, paymentIntentID, _ string) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}

	resp, err := p.call(ctx, http.MethodPost, fmt.Sprintf(endpointOrderCapture, paymentIntentID), nil)
	if err != nil {
		return p.paymentFailure(ctx, "Failed to capture PayPal payment", CodeCaptureFailed, err)
	}

	var o order
	if err := p.client.ParseJSONResponse(resp, &o); err != nil {
		return p.paymentFailure(ctx, "Failed to capture PayPal payment", CodeCaptureFailed, err)
	}

	result := &provider.PaymentResult{
		Success:       o.Status == "COMPLETED",
		TransactionID: o.ID,
		Status:        provider.StatusProcessing,
		Message:       fmt.Sprintf("Payment %s", o.Status),
		Provider:      p.Name(),
		ProviderData: map[string]any{
			"status":      o.Status,
			"create_time": o.CreateTime,
		},
	}
	if o.Status == "COMPLETED" {
		result.Status = provider.StatusCompleted
	}
	if len(o.PurchaseUnits) > 0 && len(o.PurchaseUnits[0].Payments.Captures) > 0 {
		capture := o.PurchaseUnits[0].Payments.Captures[0]
		result.ProviderTransactionID = capture.ID
		result.Amount = provider.Amount(parseAmount(capture.Amount.Value))
		result.Currency = capture.Amount.CurrencyCode
	}
	if result.Currency == "" {
		result.Currency = "USD"
	}
	return result, nil
}

// GetPaymentStatus reads an order
func (p *PayPalProvider) GetPaymentStatus(ctx context.Context, req provider.PaymentStatusRequest) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}

	resp, err := p.call(ctx, http.MethodGet, fmt.Sprintf(endpointOrder, req.TransactionID), nil)
	if err != nil {
		return p.paymentFailure(ctx, "Failed to get order status", CodeStatusFailed, err)
	}

	var o order
	if err := p.client.ParseJSONResponse(resp, &o); err != nil {
		return p.paymentFailure(ctx, "Failed to get order status", CodeStatusFailed, err)
	}

	status, ok := orderStatusMap[o.Status]
	if !ok {
		status = provider.StatusPending
	}

	result := &provider.PaymentResult{
		Success:               true,
		TransactionID:         o.ID,
		ProviderTransactionID: o.ID,
		Currency:              "USD",
		Status:                status,
		Message:               fmt.Sprintf("Order status: %s", o.Status),
		Provider:              p.Name(),
		ProviderData: map[string]any{
			"status":      o.Status,
			"create_time": o.CreateTime,
		},
	}
	if len(o.PurchaseUnits) > 0 {
		amount := o.PurchaseUnits[0].Amount
		result.Amount = provider.Amount(parseAmount(amount.Value))
		if amount.CurrencyCode != "" {
			result.Currency = amount.CurrencyCode
		}
	}
	return result, nil
}

type subscriptionResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CreateTime string `json:"create_time"`
	Links      []link `json:"links"`
}

// CreateSubscription subscribes to the PayPal billing plan req.PlanID. Trial
// periods are part of the PayPal plan, so req.TrialDays is not sent.
func (p *PayPalProvider) CreateSubscription(ctx context.Context, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredSubscription(p.Name(), displayName), nil
	}

	body := map[string]any{
		"plan_id": req.PlanID,
		"application_context": map[string]any{
			"brand_name":  p.brandName,
			"user_action": "SUBSCRIBE_NOW",
			"payment_method": map[string]string{
				"payer_selected":  "PAYPAL",
				"payee_preferred": "IMMEDIATE_PAYMENT_REQUIRED",
			},
			"return_url": p.returnURL,
			"cancel_url": p.cancelURL,
		},
	}
	if customID := customID(req.Metadata); customID != "" {
		body["custom_id"] = customID
	}
	if req.CustomerEmail != "" {
		body["subscriber"] = map[string]string{"email_address": req.CustomerEmail}
	}

	resp, err := p.call(ctx, http.MethodPost, endpointSubscriptions, body)
	if err != nil {
		return p.subscriptionFailure(ctx, "Failed to create PayPal subscription", CodeSubscriptionFailed, err)
	}

	var sub subscriptionResponse
	if err := p.client.ParseJSONResponse(resp, &sub); err != nil {
		return p.subscriptionFailure(ctx, "Failed to create PayPal subscription", CodeSubscriptionFailed, err)
	}

	return &provider.SubscriptionResult{
		Success:                true,
		ProviderSubscriptionID: sub.ID,
		Status:                 sub.Status,
		PlanID:                 req.PlanID,
		Message:                "PayPal subscription created",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"status":       sub.Status,
			"create_time":  sub.CreateTime,
			"approval_url": approvalURL(sub.Links),
		},
	}, nil
}

// CancelSubscription cancels immediately; PayPal has no cancel-at-period-end
func (p *PayPalProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, _ bool) (*provider.SubscriptionResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredSubscription(p.Name(), displayName), nil
	}

	resp, err := p.call(ctx, http.MethodPost, fmt.Sprintf(endpointSubscriptionCancel, providerSubscriptionID),
		map[string]string{"reason": "User requested cancellation"})
	if err == nil && resp.StatusCode != http.StatusNoContent {
		err = &provider.HTTPError{StatusCode: resp.StatusCode, Body: resp.RawBody}
	}
	if err != nil {
		return p.subscriptionFailure(ctx, "Failed to cancel PayPal subscription", CodeCancelFailed, err)
	}

	return &provider.SubscriptionResult{
		Success:                true,
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 "CANCELLED",
		Message:                "PayPal subscription cancelled",
		Provider:               p.Name(),
	}, nil
}

// UpdateSubscription is not supported: PayPal plan changes need a new
// subscription
func (p *PayPalProvider) UpdateSubscription(_ context.Context, _ provider.UpdateSubscriptionRequest) (*provider.SubscriptionResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredSubscription(p.Name(), displayName), nil
	}

	return &provider.SubscriptionResult{
		Success:  false,
		Status:   "failed",
		Message:  "PayPal doesn't support direct plan changes. Create a new subscription and cancel the old one.",
		Provider: p.Name(),
		Error:    provider.NewPaymentError(p.Name(), CodePlanChangeNotSupported, "Plan changes require subscription replacement"),
	}, nil
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount money  `json:"amount"`
}

// RefundPayment refunds a capture. A nil amount refunds it in full.
func (p *PayPalProvider) RefundPayment(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredRefund(p.Name(), displayName), nil
	}

	note := req.Reason
	if note == "" {
		note = "Refund"
	}
	body := map[string]any{"note_to_payer": note}
	if req.Amount != nil {
		body["amount"] = money{CurrencyCode: p.currency, Value: req.Amount.StringFixed(2)}
	}

	resp, err := p.call(ctx, http.MethodPost, fmt.Sprintf(endpointCaptureRefund, req.TransactionID), body)
	var refund refundResponse
	if err == nil {
		err = p.client.ParseJSONResponse(resp, &refund)
	}
	if err != nil {
		pe, override, ok := p.failure(ctx, "refund", CodeRefundFailed, err)
		if !ok {
			return nil, ctx.Err()
		}
		message := "Failed to create PayPal refund"
		if override != "" {
			message = override
		}
		return &provider.RefundResult{Success: false, Status: "failed", Message: message, Provider: p.Name(), Error: pe}, nil
	}

	currency := refund.Amount.CurrencyCode
	if currency == "" {
		currency = p.currency
	}
	return &provider.RefundResult{
		Success:          refund.Status == "COMPLETED" || refund.Status == "PENDING",
		RefundID:         refund.ID,
		ProviderRefundID: refund.ID,
		Amount:           provider.Amount(parseAmount(refund.Amount.Value)),
		Currency:         currency,
		Status:           refund.Status,
		Reason:           req.Reason,
		Message:          "Refund created successfully",
		Provider:         p.Name(),
	}, nil
}

// ParseWebhook verifies the notification with PayPal when a webhook id is
// configured. Without one the payload is parsed unverified.
func (p *PayPalProvider) ParseWebhook(ctx context.Context, payload []byte, headers map[string]string) (*provider.WebhookEvent, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeInvalidPayload, "Invalid JSON payload").WithCause(err)
	}

	if p.webhookID == "" {
		return &provider.WebhookEvent{
			EventID:    stringValue(data, "id"),
			EventType:  stringValue(data, "event_type"),
			Provider:   p.Name(),
			Payload:    data,
			ReceivedAt: time.Now().UTC(),
		}, nil
	}

	if len(headers) == 0 {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeWebhookHeadersMissing, "Missing headers for webhook verification")
	}

	values := make(map[string]string, len(webhookHeaders))
	for _, key := range webhookHeaders {
		v := headerValue(headers, key)
		if v == "" {
			return nil, provider.NewPaymentError(p.Name(), provider.CodeWebhookHeadersIncomplete, "Missing required PayPal webhook headers").
				WithDetail("missing", key)
		}
		values[key] = v
	}

	if !p.IsConfigured() {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeProviderNotConfigured, "PayPal is not configured")
	}

	resp, err := p.call(ctx, http.MethodPost, endpointVerifyWebhook, map[string]any{
		"auth_algo":         values["paypal-auth-algo"],
		"cert_id":           values["paypal-cert-id"],
		"transmission_id":   values["paypal-transmission-id"],
		"transmission_sig":  values["paypal-transmission-sig"],
		"transmission_time": values["paypal-transmission-time"],
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(payload),
	})
	if err != nil {
		var httpErr *provider.HTTPError
		if errors.As(err, &httpErr) {
			return nil, provider.NewPaymentError(p.Name(), provider.CodeWebhookSignatureInvalid, "Webhook signature verification failed").
				WithDetail("status", httpErr.StatusCode)
		}
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		return nil, provider.NewPaymentError(p.Name(), provider.CodeWebhookVerificationError, "Failed to verify webhook with PayPal").
			WithCause(err)
	}

	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.client.ParseJSONResponse(resp, &verification); err != nil || verification.VerificationStatus != "SUCCESS" {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeWebhookSignatureInvalid, "Webhook signature verification failed")
	}

	return &provider.WebhookEvent{
		EventID:    values["paypal-transmission-id"],
		EventType:  stringValue(data, "event_type"),
		Provider:   p.Name(),
		Payload:    data,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// customID encodes metadata into PayPal's 64 character custom_id
func customID(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	if len(raw) > customIDMaxLength {
		raw = raw[:customIDMaxLength]
	}
	return string(raw)
}

func approvalURL(links []link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func parseAmount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
