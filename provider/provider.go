package provider

import (
	"context"
	"strconv"
	"strings"
)

// Registered provider names
const (
	Stripe       = "stripe"
	PayPal       = "paypal"
	BankTransfer = "bank_transfer"
	AppleIAP     = "apple_iap"
	GooglePlay   = "google_play"
)

// ConfigField represents a configuration field for a payment provider
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean", "json"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`   // regex pattern for validation
	MinLength   int    `json:"minLength,omitempty"` // minimum length for string fields
	MaxLength   int    `json:"maxLength,omitempty"` // maximum length for string fields
}

// ConfigSource yields the configuration map for a provider name
type ConfigSource interface {
	ProviderConfig(name string) map[string]string
}

// StaticConfig is a ConfigSource backed by a fixed map, mostly for tests and CLI use
type StaticConfig map[string]map[string]string

// ProviderConfig implements ConfigSource
func (s StaticConfig) ProviderConfig(name string) map[string]string {
	return s[strings.ToLower(name)]
}

// PaymentProvider is the capability contract implemented by every payment backend.
//
// Result-returning methods report provider outcomes, including transport
// failures and unsupported operations, as a result with Success=false. Their
// error return is reserved for caller aborts such as a cancelled context.
// ParseWebhook returns a *PaymentError when a payload cannot be trusted or read.
type PaymentProvider interface {
	// Name returns the lowercase registry name
	Name() string

	// Initialize applies configuration; malformed values are an error, missing credentials are not
	Initialize(config map[string]string) error

	// IsConfigured reports whether the provider has enough credentials to operate
	IsConfigured() bool

	// RequiredConfig describes the configuration keys the provider reads
	RequiredConfig() []ConfigField

	// CreatePaymentIntent initiates a one-time charge
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentResult, error)

	// ConfirmPayment finalizes a previously created intent
	ConfirmPayment(ctx context.Context, paymentIntentID, paymentMethodID string) (*PaymentResult, error)

	// GetPaymentStatus polls a transaction without side effects
	GetPaymentStatus(ctx context.Context, req PaymentStatusRequest) (*PaymentResult, error)

	// CreateSubscription starts recurring billing
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error)

	// CancelSubscription stops recurring billing now or at period end
	CancelSubscription(ctx context.Context, providerSubscriptionID string, cancelAtPeriodEnd bool) (*SubscriptionResult, error)

	// UpdateSubscription changes plan or quantity
	UpdateSubscription(ctx context.Context, req UpdateSubscriptionRequest) (*SubscriptionResult, error)

	// RefundPayment refunds all or part of a transaction
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error)

	// ParseWebhook authenticates (where supported) and normalizes a notification
	ParseWebhook(ctx context.Context, payload []byte, headers map[string]string) (*WebhookEvent, error)

	// HandleWebhookEvent dispatches a parsed event
	HandleWebhookEvent(ctx context.Context, event *WebhookEvent) (*WebhookResult, error)
}

// ProviderFactory creates an unconfigured provider instance
type ProviderFactory func() PaymentProvider

// BaseProvider carries the provider name and the default webhook dispatch.
// Provider implementations embed it.
type BaseProvider struct {
	name string
}

// NewBaseProvider returns a BaseProvider for name
func NewBaseProvider(name string) BaseProvider {
	return BaseProvider{name: name}
}

// Name returns the registry name
func (b BaseProvider) Name() string {
	return b.name
}

// HandleWebhookEvent runs the default dispatch table
func (b BaseProvider) HandleWebhookEvent(_ context.Context, event *WebhookEvent) (*WebhookResult, error) {
	return DispatchWebhookEvent(event), nil
}

// ConfigBool reads a boolean configuration value with a default
func ConfigBool(config map[string]string, key string, def bool) bool {
	v, ok := config[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// ConfigString reads a trimmed configuration value with a default
func ConfigString(config map[string]string, key, def string) string {
	if v := strings.TrimSpace(config[key]); v != "" {
		return v
	}
	return def
}
