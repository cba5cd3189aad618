package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/provider"
)

const (
	displayName = "Stripe"

	// CodeStripeError is used when the SDK error carries no code of its own
	CodeStripeError = "STRIPE_ERROR"

	defaultAPIVersion = "2023-10-16"
	defaultTimeout    = 30 * time.Second
	webhookTolerance  = 300 * time.Second

	headerSignature = "Stripe-Signature"
)

var hundred = decimal.NewFromInt(100)

// statusMap maps PaymentIntent states onto provider.PaymentStatus
var statusMap = map[stripego.PaymentIntentStatus]provider.PaymentStatus{
	stripego.PaymentIntentStatusSucceeded:             provider.StatusCompleted,
	stripego.PaymentIntentStatusProcessing:            provider.StatusProcessing,
	stripego.PaymentIntentStatusRequiresPaymentMethod: provider.StatusPending,
	stripego.PaymentIntentStatusRequiresConfirmation:  provider.StatusPending,
	stripego.PaymentIntentStatusRequiresAction:        provider.StatusPending,
	stripego.PaymentIntentStatusCanceled:              provider.StatusCancelled,
}

// StripeProvider implements provider.PaymentProvider on the Stripe API
type StripeProvider struct {
	provider.BaseProvider

	secretKey      string
	publishableKey string
	webhookSecret  string
	apiVersion     string
	enabled        bool

	api *client.API
}

// NewProvider creates an unconfigured Stripe provider
func NewProvider() provider.PaymentProvider {
	return &StripeProvider{BaseProvider: provider.NewBaseProvider(provider.Stripe)}
}

// RequiredConfig describes the configuration keys the provider reads
func (p *StripeProvider) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "secret_key",
			Required:    true,
			Type:        "string",
			Description: "Stripe secret API key",
			Example:     "sk_test_51...",
			Pattern:     "^(sk|rk)_(test|live)_",
			MinLength:   10,
		},
		{
			Key:         "publishable_key",
			Required:    false,
			Type:        "string",
			Description: "Publishable key handed to clients",
			Example:     "pk_test_51...",
			Pattern:     "^pk_(test|live)_",
		},
		{
			Key:         "webhook_secret",
			Required:    false,
			Type:        "string",
			Description: "Signing secret of the webhook endpoint",
			Example:     "whsec_...",
			Pattern:     "^whsec_",
		},
		{
			Key:         "api_version",
			Required:    false,
			Type:        "string",
			Description: "Stripe API version",
			Example:     defaultAPIVersion,
		},
		{
			Key:         "enabled",
			Required:    true,
			Type:        "boolean",
			Description: "Enables the provider",
			Example:     "true",
		},
		{
			Key:         "api_base",
			Required:    false,
			Type:        "url",
			Description: "Overrides the Stripe API base URL",
			Example:     "https://api.stripe.com",
		},
	}
}

// Initialize applies configuration. A missing secret key leaves the
// provider unconfigured rather than failing.
func (p *StripeProvider) Initialize(config map[string]string) error {
	if err := provider.ValidateConfigFields(p.Name(), config, p.RequiredConfig()); err != nil {
		return err
	}

	p.secretKey = provider.ConfigString(config, "secret_key", "")
	p.publishableKey = provider.ConfigString(config, "publishable_key", "")
	p.webhookSecret = provider.ConfigString(config, "webhook_secret", "")
	p.apiVersion = provider.ConfigString(config, "api_version", defaultAPIVersion)
	p.enabled = provider.ConfigBool(config, "enabled", false)

	if p.secretKey == "" {
		p.api = nil
		return nil
	}

	var backends *stripego.Backends
	if base := provider.ConfigString(config, "api_base", ""); base != "" {
		backendConfig := &stripego.BackendConfig{
			URL:               stripego.String(base),
			HTTPClient:        &http.Client{Timeout: defaultTimeout},
			MaxNetworkRetries: stripego.Int64(0),
			LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
		}
		backends = &stripego.Backends{
			API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendConfig),
			Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, backendConfig),
			Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, backendConfig),
		}
	}
	p.api = client.New(p.secretKey, backends)
	return nil
}

// IsConfigured reports whether a secret key is set and the provider is enabled
func (p *StripeProvider) IsConfigured() bool {
	return p.secretKey != "" && p.enabled && p.api != nil
}

// PublishableKey returns the key clients use with Stripe.js
func (p *StripeProvider) PublishableKey() string {
	return p.publishableKey
}

// CreatePaymentIntent creates a PaymentIntent with automatic payment methods
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req provider.PaymentIntentRequest) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}

	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(toMinorUnits(req.Amount)),
		Currency: stripego.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.Description != "" {
		params.Description = stripego.String(req.Description)
	}

	if req.CustomerEmail != "" {
		customer, err := p.getOrCreateCustomer(ctx, req.CustomerEmail)
		if err != nil {
			return p.paymentFailure(ctx, "Failed to create payment intent", err)
		}
		params.Customer = stripego.String(customer.ID)
	}

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return p.paymentFailure(ctx, "Failed to create payment intent", err)
	}

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         intent.ID,
		ProviderTransactionID: intent.ID,
		Amount:                provider.Amount(req.Amount),
		Currency:              strings.ToUpper(req.Currency),
		Status:                mapStatus(intent.Status),
		Message:               "Payment intent created",
		Provider:              p.Name(),
		ClientSecret:          intent.ClientSecret,
		ProviderData: map[string]any{
			"created":  intent.Created,
			"livemode": intent.Livemode,
		},
	}, nil
}

// ConfirmPayment attaches paymentMethodID when given and confirms the
// intent if it still needs confirmation
func (p *StripeProvider) ConfirmPayment(ctx context.Context, paymentIntentID, paymentMethodID string) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}

	getParams := &stripego.PaymentIntentParams{}
	getParams.Context = ctx
	intent, err := p.api.PaymentIntents.Get(paymentIntentID, getParams)
	if err != nil {
		return p.paymentFailure(ctx, "Failed to confirm payment", err)
	}

	if paymentMethodID != "" {
		updateParams := &stripego.PaymentIntentParams{PaymentMethod: stripego.String(paymentMethodID)}
		updateParams.Context = ctx
		if intent, err = p.api.PaymentIntents.Update(paymentIntentID, updateParams); err != nil {
			return p.paymentFailure(ctx, "Failed to confirm payment", err)
		}
	}

	if intent.Status == stripego.PaymentIntentStatusRequiresPaymentMethod ||
		intent.Status == stripego.PaymentIntentStatusRequiresConfirmation {
		confirmParams := &stripego.PaymentIntentConfirmParams{}
		confirmParams.Context = ctx
		if intent, err = p.api.PaymentIntents.Confirm(paymentIntentID, confirmParams); err != nil {
			return p.paymentFailure(ctx, "Failed to confirm payment", err)
		}
	}

	return &provider.PaymentResult{
		Success: intent.Status == stripego.PaymentIntentStatusSucceeded ||
			intent.Status == stripego.PaymentIntentStatusProcessing,
		TransactionID:         intent.ID,
		ProviderTransactionID: intent.ID,
		Amount:                provider.Amount(fromMinorUnits(intent.Amount)),
		Currency:              strings.ToUpper(string(intent.Currency)),
		Status:                mapStatus(intent.Status),
		Message:               fmt.Sprintf("Payment %s", intent.Status),
		Provider:              p.Name(),
		ProviderData: map[string]any{
			"status":  string(intent.Status),
			"created": intent.Created,
		},
	}, nil
}

// GetPaymentStatus retrieves a PaymentIntent
func (p *StripeProvider) GetPaymentStatus(ctx context.Context, req provider.PaymentStatusRequest) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}

	params := &stripego.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.api.PaymentIntents.Get(req.TransactionID, params)
	if err != nil {
		return p.paymentFailure(ctx, "Failed to get payment status", err)
	}

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         intent.ID,
		ProviderTransactionID: intent.ID,
		Amount:                provider.Amount(fromMinorUnits(intent.Amount)),
		Currency:              strings.ToUpper(string(intent.Currency)),
		Status:                mapStatus(intent.Status),
		Message:               fmt.Sprintf("Payment status: %s", intent.Status),
		Provider:              p.Name(),
		ProviderData: map[string]any{
			"status":          string(intent.Status),
			"amount_received": intent.AmountReceived,
		},
	}, nil
}

// CreateSubscription subscribes a customer to the Stripe price req.PlanID
func (p *StripeProvider) CreateSubscription(ctx context.Context, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredSubscription(p.Name(), displayName), nil
	}

	params := &stripego.SubscriptionParams{
		Items: []*stripego.SubscriptionItemsParams{
			{Price: stripego.String(req.PlanID)},
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.TrialDays > 0 {
		params.TrialPeriodDays = stripego.Int64(int64(req.TrialDays))
	}

	if req.CustomerEmail != "" {
		customer, err := p.getOrCreateCustomer(ctx, req.CustomerEmail)
		if err != nil {
			return p.subscriptionFailure(ctx, "Failed to create subscription", err)
		}
		params.Customer = stripego.String(customer.ID)
	}

	sub, err := p.api.Subscriptions.New(params)
	if err != nil {
		return p.subscriptionFailure(ctx, "Failed to create subscription", err)
	}

	return &provider.SubscriptionResult{
		Success:                true,
		ProviderSubscriptionID: sub.ID,
		Status:                 string(sub.Status),
		PlanID:                 req.PlanID,
		Message:                "Subscription created successfully",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
		},
	}, nil
}

// CancelSubscription cancels at period end or immediately
func (p *StripeProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, cancelAtPeriodEnd bool) (*provider.SubscriptionResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredSubscription(p.Name(), displayName), nil
	}

	var (
		sub     *stripego.Subscription
		err     error
		message string
	)
	if cancelAtPeriodEnd {
		params := &stripego.SubscriptionParams{CancelAtPeriodEnd: stripego.Bool(true)}
		params.Context = ctx
		sub, err = p.api.Subscriptions.Update(providerSubscriptionID, params)
		message = "Subscription will be canceled at period end"
	} else {
		params := &stripego.SubscriptionCancelParams{}
		params.Context = ctx
		sub, err = p.api.Subscriptions.Cancel(providerSubscriptionID, params)
		message = "Subscription canceled immediately"
	}
	if err != nil {
		return p.subscriptionFailure(ctx, "Failed to cancel subscription", err)
	}

	return &provider.SubscriptionResult{
		Success:                true,
		ProviderSubscriptionID: sub.ID,
		Status:                 string(sub.Status),
		Message:                message,
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"canceled_at": sub.CanceledAt,
		},
	}, nil
}

// UpdateSubscription swaps the price and/or quantity of the first item
func (p *StripeProvider) UpdateSubscription(ctx context.Context, req provider.UpdateSubscriptionRequest) (*provider.SubscriptionResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredSubscription(p.Name(), displayName), nil
	}

	params := &stripego.SubscriptionParams{}
	params.Context = ctx

	if req.PlanID != "" || req.Quantity != nil {
		getParams := &stripego.SubscriptionParams{}
		getParams.Context = ctx
		current, err := p.api.Subscriptions.Get(req.ProviderSubscriptionID, getParams)
		if err != nil {
			return p.subscriptionFailure(ctx, "Failed to update subscription", err)
		}
		if current.Items == nil || len(current.Items.Data) == 0 {
			return &provider.SubscriptionResult{
				Success:  false,
				Status:   "failed",
				Message:  "Failed to update subscription",
				Provider: p.Name(),
				Error:    provider.NewPaymentError(p.Name(), provider.CodeUpdateFailed, "subscription has no items"),
			}, nil
		}

		item := &stripego.SubscriptionItemsParams{ID: stripego.String(current.Items.Data[0].ID)}
		if req.PlanID != "" {
			item.Price = stripego.String(req.PlanID)
		}
		if req.Quantity != nil {
			item.Quantity = stripego.Int64(*req.Quantity)
		}
		params.Items = []*stripego.SubscriptionItemsParams{item}
	}

	sub, err := p.api.Subscriptions.Update(req.ProviderSubscriptionID, params)
	if err != nil {
		return p.subscriptionFailure(ctx, "Failed to update subscription", err)
	}

	return &provider.SubscriptionResult{
		Success:                true,
		ProviderSubscriptionID: sub.ID,
		Status:                 string(sub.Status),
		PlanID:                 req.PlanID,
		Message:                "Subscription updated successfully",
		Provider:               p.Name(),
	}, nil
}

// RefundPayment refunds a PaymentIntent fully or partially
func (p *StripeProvider) RefundPayment(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredRefund(p.Name(), displayName), nil
	}

	reason := req.Reason
	if reason == "" {
		reason = string(stripego.RefundReasonRequestedByCustomer)
	}

	params := &stripego.RefundParams{
		PaymentIntent: stripego.String(req.TransactionID),
		Reason:        stripego.String(reason),
	}
	params.Context = ctx
	if req.Amount != nil {
		params.Amount = stripego.Int64(toMinorUnits(*req.Amount))
	}

	refund, err := p.api.Refunds.New(params)
	if err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		pe := p.sdkError(err)
		logger.Error("Stripe refund failed", err, logger.LogContext{Provider: p.Name()})
		return &provider.RefundResult{
			Success:  false,
			Status:   "failed",
			Message:  "Failed to create refund",
			Provider: p.Name(),
			Error:    pe,
		}, nil
	}

	message := "Refund created successfully"
	if refund.Status == stripego.RefundStatusFailed {
		message = "Refund failed"
	}
	refundReason := string(refund.Reason)
	if refundReason == "" {
		refundReason = reason
	}

	return &provider.RefundResult{
		Success: refund.Status == stripego.RefundStatusSucceeded ||
			refund.Status == stripego.RefundStatusPending,
		RefundID:         refund.ID,
		ProviderRefundID: refund.ID,
		Amount:           provider.Amount(fromMinorUnits(refund.Amount)),
		Currency:         strings.ToUpper(string(refund.Currency)),
		Status:           string(refund.Status),
		Reason:           refundReason,
		Message:          message,
		Provider:         p.Name(),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and normalizes the event
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, headers map[string]string) (*provider.WebhookEvent, error) {
	if !p.IsConfigured() {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeProviderNotConfigured, "Stripe is not configured")
	}
	if p.webhookSecret == "" {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeWebhookSecretMissing, "Webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, headerValue(headers, headerSignature), p.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                webhookTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		logger.Warn("Stripe webhook signature verification failed", logger.LogContext{
			Provider: p.Name(),
			Fields:   map[string]any{"error": err.Error()},
		})
		return nil, provider.NewPaymentError(p.Name(), provider.CodeWebhookSignatureInvalid, "Invalid webhook signature").
			WithCause(err)
	}

	var object map[string]any
	if event.Data != nil {
		object = event.Data.Object
	}

	return &provider.WebhookEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		Provider:  p.Name(),
		Payload: map[string]any{
			"type": string(event.Type),
			"data": map[string]any{"object": object},
		},
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func (p *StripeProvider) getOrCreateCustomer(ctx context.Context, email string) (*stripego.Customer, error) {
	listParams := &stripego.CustomerListParams{Email: stripego.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripego.Int64(1)

	iter := p.api.Customers.List(listParams)
	if iter.Next() {
		return iter.Customer(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	params := &stripego.CustomerParams{Email: stripego.String(email)}
	params.Context = ctx
	return p.api.Customers.New(params)
}

func (p *StripeProvider) paymentFailure(ctx context.Context, message string, err error) (*provider.PaymentResult, error) {
	if provider.IsContextError(ctx, err) {
		return nil, ctx.Err()
	}
	logger.Error("Stripe request failed", err, logger.LogContext{
		Provider: p.Name(),
		Fields:   map[string]any{"operation": message},
	})
	return &provider.PaymentResult{
		Success:  false,
		Status:   provider.StatusFailed,
		Message:  message,
		Provider: p.Name(),
		Error:    p.sdkError(err),
	}, nil
}

func (p *StripeProvider) subscriptionFailure(ctx context.Context, message string, err error) (*provider.SubscriptionResult, error) {
	if provider.IsContextError(ctx, err) {
		return nil, ctx.Err()
	}
	logger.Error("Stripe request failed", err, logger.LogContext{
		Provider: p.Name(),
		Fields:   map[string]any{"operation": message},
	})
	return &provider.SubscriptionResult{
		Success:  false,
		Status:   "failed",
		Message:  message,
		Provider: p.Name(),
		Error:    p.sdkError(err),
	}, nil
}

// sdkError converts an SDK error into a PaymentError carrying the Stripe
// error code when there is one
func (p *StripeProvider) sdkError(err error) *provider.PaymentError {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		code := string(stripeErr.Code)
		if code == "" {
			code = CodeStripeError
		}
		msg := stripeErr.Msg
		if msg == "" {
			msg = err.Error()
		}
		return provider.NewPaymentError(p.Name(), code, msg).
			WithDetail("type", string(stripeErr.Type)).
			WithDetail("http_status", stripeErr.HTTPStatusCode)
	}
	return provider.NewPaymentError(p.Name(), CodeStripeError, err.Error())
}

func mapStatus(status stripego.PaymentIntentStatus) provider.PaymentStatus {
	if s, ok := statusMap[status]; ok {
		return s
	}
	return provider.StatusPending
}

// toMinorUnits truncates to whole cents: 19.999 becomes 1999
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(hundred)
}

// headerValue looks a header up case-insensitively
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
