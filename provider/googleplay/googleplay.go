package googleplay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/provider"
)

const (
	displayName = "Google Play Billing"

	apiBaseURL           = "https://androidpublisher.googleapis.com/androidpublisher/v3/applications"
	endpointSubscription = "/%s/purchases/subscriptionsv2/tokens/%s"
	androidPublisher     = "https://www.googleapis.com/auth/androidpublisher"

	defaultTimeoutSeconds = 10
)

// Google Play specific error codes
const (
	CodeMissingProductID = "MISSING_PRODUCT_ID"
	CodeGooglePlayError  = "GOOGLE_PLAY_ERROR"
)

// Subscription states reported by GetSubscriptionStatus
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
	SubscriptionPending = "pending"
	SubscriptionUnknown = "unknown"
)

// GooglePlayProvider validates Play purchase tokens and normalizes real-time
// developer notifications. Purchases, cancellations and refunds happen on
// the device or in the Play Console.
type GooglePlayProvider struct {
	provider.BaseProvider

	packageName     string
	credentialsJSON string
	credentialsPath string

	jwtConfig *jwt.Config
	client    *provider.ProviderHTTPClient
	now       func() time.Time
}

// NewProvider creates an unconfigured Google Play provider
func NewProvider() provider.PaymentProvider {
	return &GooglePlayProvider{
		BaseProvider: provider.NewBaseProvider(provider.GooglePlay),
		now:          time.Now,
	}
}

// RequiredConfig describes the configuration keys the provider reads
func (p *GooglePlayProvider) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{Key: "package_name", Required: true, Type: "string", Description: "Android application package name", Example: "com.example.app", Pattern: `^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`},
		{Key: "service_account_json", Required: false, Type: "json", Description: "Service account key as inline JSON", Example: `{"type":"service_account",...}`},
		{Key: "credentials_path", Required: false, Type: "string", Description: "Path to the service account key file", Example: "/etc/paykit/google-play.json"},
		{Key: "timeout", Required: false, Type: "number", Description: "Request timeout in seconds", Example: "10"},
		{Key: "api_base", Required: false, Type: "url", Description: "Overrides the Android Publisher API base URL", Example: apiBaseURL},
	}
}

// Initialize applies configuration. A service account key that cannot be read
// or parsed is an error; a missing one leaves the provider unconfigured.
func (p *GooglePlayProvider) Initialize(config map[string]string) error {
	if err := provider.ValidateConfigFields(p.Name(), config, p.RequiredConfig()); err != nil {
		return err
	}

	p.packageName = provider.ConfigString(config, "package_name", "")
	p.credentialsJSON = provider.ConfigString(config, "service_account_json", "")
	p.credentialsPath = provider.ConfigString(config, "credentials_path", "")
	p.jwtConfig = nil
	p.client = nil

	if p.credentialsJSON == "" && p.credentialsPath == "" {
		return nil
	}

	key := []byte(p.credentialsJSON)
	if len(key) == 0 {
		data, err := os.ReadFile(p.credentialsPath)
		if err != nil {
			return fmt.Errorf("%s: reading credentials file: %w", p.Name(), err)
		}
		key = data
	}

	jwtConfig, err := google.JWTConfigFromJSON(key, androidPublisher)
	if err != nil {
		return fmt.Errorf("%s: parsing service account credentials: %w", p.Name(), err)
	}
	p.jwtConfig = jwtConfig

	timeoutSeconds, err := strconv.Atoi(provider.ConfigString(config, "timeout", strconv.Itoa(defaultTimeoutSeconds)))
	if err != nil || timeoutSeconds <= 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}
	timeout := time.Duration(timeoutSeconds) * time.Second

	// the oauth2 client caches and refreshes the access token behind a lock
	httpClient := jwtConfig.Client(context.Background())
	httpClient.Timeout = timeout

	clientConfig := provider.CreateHTTPClientConfig(provider.ConfigString(config, "api_base", apiBaseURL), timeout)
	clientConfig.Client = httpClient
	p.client = provider.NewProviderHTTPClient(clientConfig)
	return nil
}

// IsConfigured reports whether a package name and credentials are set
func (p *GooglePlayProvider) IsConfigured() bool {
	return p.packageName != "" && (p.credentialsJSON != "" || p.credentialsPath != "")
}

// CreatePaymentIntent is not supported: purchases start in the Play Billing Library
func (p *GooglePlayProvider) CreatePaymentIntent(_ context.Context, req provider.PaymentIntentRequest) (*provider.PaymentResult, error) {
	result := provider.NotSupportedPayment(p.Name(),
		"Google Play Billing does not support payment intents. Purchases are handled client-side via Google Play Billing Library.",
		"Validate the purchase token with GetPaymentStatus instead")
	result.ProviderData = map[string]any{
		"action_required": "client_side_purchase",
		"currency":        req.Currency,
	}
	return result, nil
}

// ConfirmPayment is not supported: token validation replaces confirmation
func (p *GooglePlayProvider) ConfirmPayment(_ context.Context, paymentIntentID, _ string) (*provider.PaymentResult, error) {
	result := provider.NotSupportedPayment(p.Name(),
		"Google Play Billing does not support payment confirmation",
		"Validate the purchase token with GetPaymentStatus instead")
	result.TransactionID = paymentIntentID
	return result, nil
}

type lineItem struct {
	ProductID  string `json:"productId"`
	ExpiryTime string `json:"expiryTime"`
}

// subscriptionPurchase holds the fields read from purchases.subscriptionsv2.
// The v1 millisecond fields are still accepted.
type subscriptionPurchase struct {
	AcknowledgementState any        `json:"acknowledgementState"`
	SubscriptionState    string     `json:"subscriptionState"`
	LatestOrderID        string     `json:"latestOrderId"`
	OrderID              string     `json:"orderId"`
	StartTime            string     `json:"startTime"`
	LineItems            []lineItem `json:"lineItems"`
	ExpiryTimeMillis     any        `json:"expiryTimeMillis"`
}

func (s *subscriptionPurchase) acknowledged() bool {
	switch v := s.AcknowledgementState.(type) {
	case float64:
		return v == 1
	case string:
		return v == "ACKNOWLEDGEMENT_STATE_ACKNOWLEDGED" || v == "ACKNOWLEDGED" || v == "1"
	}
	return false
}

func (s *subscriptionPurchase) orderID() string {
	if s.LatestOrderID != "" {
		return s.LatestOrderID
	}
	return s.OrderID
}

// hasProduct reports whether productID appears in the line items. Responses
// without line items are not checked.
func (s *subscriptionPurchase) hasProduct(productID string) bool {
	if len(s.LineItems) == 0 {
		return true
	}
	for _, item := range s.LineItems {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// expiry returns the latest expiry across line items, falling back to the
// v1 expiryTimeMillis field
func (s *subscriptionPurchase) expiry() (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, item := range s.LineItems {
		t, err := time.Parse(time.RFC3339Nano, item.ExpiryTime)
		if err != nil {
			continue
		}
		if !found || t.After(latest) {
			latest, found = t, true
		}
	}
	if found {
		return latest.UTC(), true
	}
	if ms, ok := millis(s.ExpiryTimeMillis); ok && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// fetchSubscription loads a purchase token. Provider failures come back as a
// *provider.PaymentError; only context errors are returned otherwise.
func (p *GooglePlayProvider) fetchSubscription(ctx context.Context, purchaseToken string) (*subscriptionPurchase, *provider.PaymentError, error) {
	if p.client == nil {
		return nil, provider.NewPaymentError(p.Name(), CodeGooglePlayError, "Google Play API client not available"), nil
	}

	resp, err := p.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf(endpointSubscription, url.PathEscape(p.packageName), url.PathEscape(purchaseToken)),
	})
	if err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, nil, ctx.Err()
		}
		var httpErr *provider.HTTPError
		if errors.As(err, &httpErr) {
			logger.Warn("Google Play API returned an error", logger.LogContext{
				Provider: p.Name(),
				Fields:   map[string]any{"status": httpErr.StatusCode},
			})
			return nil, provider.NewPaymentError(p.Name(), CodeGooglePlayError, fmt.Sprintf("Google Play API error: %d", httpErr.StatusCode)).
				WithDetail("status", httpErr.StatusCode).
				WithDetail("error_details", httpErr.Body), nil
		}
		logger.Error("Google Play API request failed", err, logger.LogContext{Provider: p.Name()})
		return nil, provider.NewPaymentError(p.Name(), CodeGooglePlayError, "Validation error: "+err.Error()).WithCause(err), nil
	}

	var purchase subscriptionPurchase
	if err := p.client.ParseJSONResponse(resp, &purchase); err != nil {
		return nil, provider.NewPaymentError(p.Name(), CodeGooglePlayError, "Invalid Google Play API response").WithCause(err), nil
	}
	return &purchase, nil, nil
}

// GetPaymentStatus validates the purchase token in req.TransactionID for
// req.ProductID
func (p *GooglePlayProvider) GetPaymentStatus(ctx context.Context, req provider.PaymentStatusRequest) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}
	if req.ProductID == "" {
		return &provider.PaymentResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Status:        provider.StatusFailed,
			Message:       "Product ID is required to check purchase status",
			Provider:      p.Name(),
			Error:         provider.NewPaymentError(p.Name(), CodeMissingProductID, "Product ID is required"),
		}, nil
	}

	purchase, pe, err := p.fetchSubscription(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if pe != nil {
		return &provider.PaymentResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Status:        provider.StatusFailed,
			Message:       pe.Message,
			Provider:      p.Name(),
			Error:         pe,
		}, nil
	}

	if !purchase.hasProduct(req.ProductID) {
		msg := fmt.Sprintf("Purchase token does not belong to product %s", req.ProductID)
		return &provider.PaymentResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Status:        provider.StatusFailed,
			Message:       msg,
			Provider:      p.Name(),
			Error:         provider.NewPaymentError(p.Name(), provider.CodeInvalidRequest, msg),
		}, nil
	}

	data := map[string]any{
		"order_id":              purchase.orderID(),
		"acknowledgement_state": purchase.AcknowledgementState,
		"subscription_state":    purchase.SubscriptionState,
		"product_id":            req.ProductID,
	}
	if exp, ok := purchase.expiry(); ok {
		data["expiry_time"] = exp.Format(time.RFC3339)
	}

	if !purchase.acknowledged() {
		return &provider.PaymentResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Status:        provider.StatusPending,
			Message:       "Purchase has not been acknowledged yet",
			Provider:      p.Name(),
			ProviderData:  data,
		}, nil
	}

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         req.TransactionID,
		ProviderTransactionID: purchase.orderID(),
		Status:                provider.StatusCompleted,
		Message:               "Payment status retrieved successfully",
		Provider:              p.Name(),
		ProviderData:          data,
	}, nil
}

// SubscriptionStatus is the state of a Play subscription
type SubscriptionStatus struct {
	Status        string     `json:"status"`
	ProductID     string     `json:"productId"`
	PurchaseToken string     `json:"purchaseToken"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// GetSubscriptionStatus reports whether the subscription behind
// purchaseToken is active
func (p *GooglePlayProvider) GetSubscriptionStatus(ctx context.Context, productID, purchaseToken string) (*SubscriptionStatus, error) {
	status := &SubscriptionStatus{Status: SubscriptionUnknown, ProductID: productID, PurchaseToken: purchaseToken}
	if !p.IsConfigured() {
		status.Message = displayName + " is not configured"
		return status, nil
	}

	purchase, pe, err := p.fetchSubscription(ctx, purchaseToken)
	if err != nil {
		return nil, err
	}
	if pe != nil {
		status.Message = "Purchase validation failed"
		return status, nil
	}
	if !purchase.acknowledged() {
		status.Status = SubscriptionPending
		return status, nil
	}

	exp, ok := purchase.expiry()
	if !ok {
		status.Message = "Subscription has no expiry time"
		return status, nil
	}
	status.ExpiresAt = &exp
	if exp.After(p.now()) {
		status.Status = SubscriptionActive
	} else {
		status.Status = SubscriptionExpired
	}
	return status, nil
}

// CreateSubscription is not supported: subscriptions are bought on the device
func (p *GooglePlayProvider) CreateSubscription(_ context.Context, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	return &provider.SubscriptionResult{
		Success:  false,
		Status:   "pending_client_action",
		PlanID:   req.PlanID,
		Message:  "Google Play subscriptions must be created client-side via Google Play Billing Library",
		Provider: p.Name(),
		ProviderData: map[string]any{
			"product_id":      req.PlanID,
			"action_required": "client_side_purchase",
			"trial_days":      req.TrialDays,
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "Subscriptions are created client-side via Google Play Billing Library"),
	}, nil
}

// CancelSubscription is not supported: users cancel from the Play Store
func (p *GooglePlayProvider) CancelSubscription(_ context.Context, providerSubscriptionID string, cancelAtPeriodEnd bool) (*provider.SubscriptionResult, error) {
	return &provider.SubscriptionResult{
		Success:                false,
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 "cancellation_not_supported",
		Message:                "Google Play subscriptions cannot be cancelled server-side",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"purchase_token":       providerSubscriptionID,
			"action_required":      "user_cancellation",
			"cancel_at_period_end": cancelAtPeriodEnd,
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "User must cancel via Google Play > Subscriptions"),
	}, nil
}

// UpdateSubscription is not supported: plan changes require a new purchase
func (p *GooglePlayProvider) UpdateSubscription(_ context.Context, req provider.UpdateSubscriptionRequest) (*provider.SubscriptionResult, error) {
	return &provider.SubscriptionResult{
		Success:                false,
		ProviderSubscriptionID: req.ProviderSubscriptionID,
		Status:                 "update_not_supported",
		PlanID:                 req.PlanID,
		Message:                "Google Play subscriptions cannot be updated server-side",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"current_purchase_token": req.ProviderSubscriptionID,
			"new_product_id":         req.PlanID,
			"action_required":        "client_side_upgrade",
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "Plan changes require a new purchase on the device"),
	}, nil
}

// RefundPayment is not supported: refunds are issued from the Play Console
func (p *GooglePlayProvider) RefundPayment(_ context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	return &provider.RefundResult{
		Success:          false,
		RefundID:         "refund_" + req.TransactionID,
		ProviderRefundID: req.TransactionID,
		Amount:           req.Amount,
		Status:           "pending_manual_processing",
		Reason:           req.Reason,
		Message:          "Google Play refunds must be processed through Google Play Console.",
		Provider:         p.Name(),
		ProviderData: map[string]any{
			"purchase_token":  req.TransactionID,
			"action_required": "play_console_refund",
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "Google Play refunds cannot be issued server-side"),
	}, nil
}

type pubsubPush struct {
	Message *struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// ParseWebhook normalizes a real-time developer notification, either as a
// Pub/Sub push envelope with base64 data or as the bare notification JSON.
// The Pub/Sub push token is not verified.
func (p *GooglePlayProvider) ParseWebhook(_ context.Context, payload []byte, _ map[string]string) (*provider.WebhookEvent, error) {
	var envelope pubsubPush
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeInvalidPayload, "Invalid JSON payload").WithCause(err)
	}

	data := payload
	messageID := ""
	if envelope.Message != nil {
		decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			return nil, provider.NewPaymentError(p.Name(), provider.CodeParsingError, "Failed to parse webhook payload").WithCause(err)
		}
		data = decoded
		messageID = envelope.Message.MessageID
	}

	var notification map[string]any
	if err := json.Unmarshal(data, &notification); err != nil || notification == nil {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeParsingError, "Failed to parse webhook payload").WithCause(err)
	}

	version, _ := notification["version"].(string)
	eventID, _ := notification["id"].(string)
	if eventID == "" {
		eventID = messageID
	}

	receivedAt := p.now()
	eventTime := 0.0
	if ms, ok := millis(notification["eventTimeMillis"]); ok && ms > 0 {
		receivedAt = time.UnixMilli(ms).UTC()
		eventTime = float64(ms) / 1000
	}

	packageName, _ := notification["packageName"].(string)
	providerData := map[string]any{
		"version":      version,
		"package_name": packageName,
		"event_time":   eventTime,
	}
	if sub, ok := notification["subscriptionNotification"].(map[string]any); ok {
		providerData["notification_type"] = sub["notificationType"]
		providerData["purchase_token"] = sub["purchaseToken"]
		providerData["product_id"] = sub["subscriptionId"]
	}

	return &provider.WebhookEvent{
		EventID:      eventID,
		EventType:    version,
		Provider:     p.Name(),
		Payload:      notification,
		ProviderData: providerData,
		ReceivedAt:   receivedAt,
	}, nil
}

// millis reads a millisecond timestamp that Google sends either as a JSON
// number or as a decimal string
func millis(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		ms, err := strconv.ParseInt(t, 10, 64)
		return ms, err == nil
	case json.Number:
		ms, err := t.Int64()
		return ms, err == nil
	}
	return 0, false
}
