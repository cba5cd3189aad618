package appleiap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/provider"
)

const (
	displayName = "Apple IAP"

	verifyReceiptSandboxURL    = "https://sandbox.itunes.apple.com"
	verifyReceiptProductionURL = "https://buy.itunes.apple.com"
	endpointVerifyReceipt      = "/verifyReceipt"

	defaultTimeout = 10 * time.Second
)

// Apple IAP specific error codes
const (
	CodeMissingReceipt = "MISSING_RECEIPT"
	CodeReceiptInvalid = "RECEIPT_INVALID"
)

// verifyReceipt status codes
const (
	statusValid = 0
	// the receipt server could not be reached or answered with a non-200
	statusMalformed = 21002
	// a sandbox receipt was sent to production
	statusSandboxReceipt = 21007
)

// Subscription states reported by GetSubscriptionStatus
const (
	SubscriptionActive  = "active"
	SubscriptionExpired = "expired"
	SubscriptionUnknown = "unknown"
)

var notificationTypes = map[string]string{
	"CANCEL":            "subscription_cancelled",
	"DID_FAIL_TO_RENEW": "subscription_expired",
	"DID_RENEW":         "subscription_renewed",
	"RENEW":             "subscription_renewed",
	"INIT_BUY":          "subscription_purchased",
	"SUBSCRIBED":        "subscription_purchased",
	"PRICE_INCREASE":    "price_increase",
	"REFUND":            "refund",
	"REVOKE":            "subscription_revoked",
}

// AppleIAPProvider validates App Store receipts and normalizes App Store
// server notifications. Purchases, renewals and refunds happen on the device
// or in App Store Connect, so every write operation is unsupported.
type AppleIAPProvider struct {
	provider.BaseProvider

	bundleID     string
	sharedSecret string
	sandbox      bool

	client *provider.ProviderHTTPClient
	// used when production answers with statusSandboxReceipt
	sandboxClient *provider.ProviderHTTPClient
	now           func() time.Time
}

// NewProvider creates an unconfigured Apple IAP provider
func NewProvider() provider.PaymentProvider {
	return &AppleIAPProvider{
		BaseProvider: provider.NewBaseProvider(provider.AppleIAP),
		sandbox:      true,
		now:          time.Now,
	}
}

// RequiredConfig describes the configuration keys the provider reads
func (p *AppleIAPProvider) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{Key: "bundle_id", Required: true, Type: "string", Description: "App bundle identifier", Example: "com.example.app", Pattern: `^[A-Za-z0-9.\-]+$`},
		{Key: "shared_secret", Required: true, Type: "string", Description: "App-specific shared secret", Example: "4f8c1d2e3a5b6c7d8e9f0a1b2c3d4e5f", MinLength: 8},
		{Key: "sandbox", Required: false, Type: "boolean", Description: "Validate against the sandbox environment", Example: "true"},
		{Key: "api_base", Required: false, Type: "url", Description: "Overrides the verifyReceipt base URL", Example: verifyReceiptSandboxURL},
	}
}

// Initialize applies configuration
func (p *AppleIAPProvider) Initialize(config map[string]string) error {
	if err := provider.ValidateConfigFields(p.Name(), config, p.RequiredConfig()); err != nil {
		return err
	}

	p.bundleID = provider.ConfigString(config, "bundle_id", "")
	p.sharedSecret = provider.ConfigString(config, "shared_secret", "")
	p.sandbox = provider.ConfigBool(config, "sandbox", true)

	sandboxURL := provider.ConfigString(config, "api_base", verifyReceiptSandboxURL)
	productionURL := provider.ConfigString(config, "api_base", verifyReceiptProductionURL)

	p.sandboxClient = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(sandboxURL, defaultTimeout))
	if p.sandbox {
		p.client = p.sandboxClient
	} else {
		p.client = provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(productionURL, defaultTimeout))
	}
	return nil
}

// IsConfigured reports whether a bundle id and shared secret are set
func (p *AppleIAPProvider) IsConfigured() bool {
	return p.bundleID != "" && p.sharedSecret != ""
}

func (p *AppleIAPProvider) environment() string {
	if p.sandbox {
		return "sandbox"
	}
	return "production"
}

// CreatePaymentIntent is not supported: purchases start on the device
func (p *AppleIAPProvider) CreatePaymentIntent(_ context.Context, req provider.PaymentIntentRequest) (*provider.PaymentResult, error) {
	result := provider.NotSupportedPayment(p.Name(),
		"Apple IAP payments must be initiated from the iOS app",
		"Use StoreKit to start the purchase and send the receipt for validation")
	result.ProviderData = map[string]any{
		"action_required": "client_side_purchase",
		"currency":        req.Currency,
	}
	return result, nil
}

// ConfirmPayment is not supported: StoreKit finishes transactions on the device
func (p *AppleIAPProvider) ConfirmPayment(_ context.Context, paymentIntentID, _ string) (*provider.PaymentResult, error) {
	result := provider.NotSupportedPayment(p.Name(),
		"Apple IAP payments are confirmed by the App Store",
		"Validate the receipt with GetPaymentStatus instead")
	result.TransactionID = paymentIntentID
	return result, nil
}

type receiptRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

type receiptTransaction struct {
	ProductID             string `json:"product_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	PurchaseDateMS        string `json:"purchase_date_ms"`
	ExpiresDateMS         string `json:"expires_date_ms"`
}

type receiptResponse struct {
	Status      int    `json:"status"`
	Environment string `json:"environment"`
	Receipt     struct {
		BundleID string               `json:"bundle_id"`
		InApp    []receiptTransaction `json:"in_app"`
	} `json:"receipt"`
	LatestReceiptInfo []receiptTransaction `json:"latest_receipt_info"`
}

// verifyReceipt posts the receipt to Apple. A transport failure or a non-200
// answer is reported as statusMalformed; only context errors are returned.
func (p *AppleIAPProvider) verifyReceipt(ctx context.Context, receipt string) (*receiptResponse, error) {
	out, err := p.postReceipt(ctx, p.client, receipt)
	if err != nil {
		return nil, err
	}
	if out.Status == statusSandboxReceipt && p.client != p.sandboxClient {
		return p.postReceipt(ctx, p.sandboxClient, receipt)
	}
	return out, nil
}

func (p *AppleIAPProvider) postReceipt(ctx context.Context, client *provider.ProviderHTTPClient, receipt string) (*receiptResponse, error) {
	resp, err := client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointVerifyReceipt,
		Body: receiptRequest{
			ReceiptData:            receipt,
			Password:               p.sharedSecret,
			ExcludeOldTransactions: true,
		},
	})
	if err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		logger.Warn("Apple receipt validation request failed", logger.LogContext{
			Provider: p.Name(),
			Fields:   map[string]any{"error": err.Error()},
		})
		return &receiptResponse{Status: statusMalformed}, nil
	}

	var out receiptResponse
	if err := client.ParseJSONResponse(resp, &out); err != nil {
		return &receiptResponse{Status: statusMalformed}, nil
	}
	return &out, nil
}

// GetPaymentStatus validates req.ReceiptData with Apple
func (p *AppleIAPProvider) GetPaymentStatus(ctx context.Context, req provider.PaymentStatusRequest) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}
	if req.ReceiptData == "" {
		return &provider.PaymentResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Status:        provider.StatusFailed,
			Message:       "Receipt data is required to check payment status",
			Provider:      p.Name(),
			Error:         provider.NewPaymentError(p.Name(), CodeMissingReceipt, "Receipt data is required to check payment status"),
		}, nil
	}

	receipt, err := p.verifyReceipt(ctx, req.ReceiptData)
	if err != nil {
		return nil, err
	}

	if receipt.Status != statusValid {
		msg := fmt.Sprintf("Receipt validation failed with status %d", receipt.Status)
		return &provider.PaymentResult{
			Success:       false,
			TransactionID: req.TransactionID,
			Status:        provider.StatusFailed,
			Message:       msg,
			Provider:      p.Name(),
			Error: provider.NewPaymentError(p.Name(), CodeReceiptInvalid, msg).
				WithDetail("status", receipt.Status),
		}, nil
	}

	environment := receipt.Environment
	if environment == "" {
		environment = p.environment()
	}

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         req.TransactionID,
		ProviderTransactionID: req.TransactionID,
		Status:                provider.StatusCompleted,
		Message:               "Payment status retrieved successfully",
		Provider:              p.Name(),
		ProviderData: map[string]any{
			"bundle_id":     receipt.Receipt.BundleID,
			"environment":   environment,
			"in_app_count":  len(receipt.Receipt.InApp),
			"receipt_valid": true,
		},
	}, nil
}

// SubscriptionStatus is the state of an auto-renewable subscription
// derived from the latest receipt info
type SubscriptionStatus struct {
	Status                string     `json:"status"`
	OriginalTransactionID string     `json:"originalTransactionId"`
	ProductID             string     `json:"productId,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	Message               string     `json:"message,omitempty"`
}

// GetSubscriptionStatus reports whether the subscription identified by
// originalTransactionID is active according to receipt
func (p *AppleIAPProvider) GetSubscriptionStatus(ctx context.Context, originalTransactionID, receipt string) (*SubscriptionStatus, error) {
	status := &SubscriptionStatus{Status: SubscriptionUnknown, OriginalTransactionID: originalTransactionID}
	if !p.IsConfigured() {
		status.Message = displayName + " is not configured"
		return status, nil
	}
	if receipt == "" {
		status.Message = "Receipt data is required"
		return status, nil
	}

	out, err := p.verifyReceipt(ctx, receipt)
	if err != nil {
		return nil, err
	}
	if out.Status != statusValid {
		status.Message = fmt.Sprintf("Receipt validation failed with status %d", out.Status)
		return status, nil
	}

	latest, expires, ok := latestTransaction(out.LatestReceiptInfo, originalTransactionID)
	if !ok {
		status.Message = "No subscription found in receipt"
		return status, nil
	}

	status.ProductID = latest.ProductID
	status.ExpiresAt = &expires
	if expires.After(p.now()) {
		status.Status = SubscriptionActive
	} else {
		status.Status = SubscriptionExpired
	}
	return status, nil
}

// latestTransaction picks the entry with the furthest expiry, limited to
// originalTransactionID when one is given
func latestTransaction(items []receiptTransaction, originalTransactionID string) (receiptTransaction, time.Time, bool) {
	var (
		best    receiptTransaction
		bestExp time.Time
		found   bool
	)
	for _, item := range items {
		if originalTransactionID != "" && item.OriginalTransactionID != originalTransactionID {
			continue
		}
		exp, ok := parseMillis(item.ExpiresDateMS)
		if !ok {
			continue
		}
		if !found || exp.After(bestExp) {
			best, bestExp, found = item, exp, true
		}
	}
	return best, bestExp, found
}

func parseMillis(v string) (time.Time, bool) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// CreateSubscription is not supported: subscriptions are bought through StoreKit
func (p *AppleIAPProvider) CreateSubscription(_ context.Context, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	return &provider.SubscriptionResult{
		Success:  false,
		Status:   "pending_client_action",
		PlanID:   req.PlanID,
		Message:  "Apple subscriptions must be purchased from the iOS app",
		Provider: p.Name(),
		ProviderData: map[string]any{
			"product_id":      req.PlanID,
			"action_required": "client_side_purchase",
			"trial_days":      req.TrialDays,
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "Subscriptions are created client-side via StoreKit"),
	}, nil
}

// CancelSubscription is not supported: users cancel in their App Store settings
func (p *AppleIAPProvider) CancelSubscription(_ context.Context, providerSubscriptionID string, _ bool) (*provider.SubscriptionResult, error) {
	return &provider.SubscriptionResult{
		Success:                false,
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 "cancellation_not_supported",
		Message:                "Apple subscriptions must be cancelled by the user in App Store settings",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"action_required":  "user_cancellation",
			"manage_url":       "https://apps.apple.com/account/subscriptions",
			"subscription_ref": providerSubscriptionID,
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "Apple subscriptions cannot be cancelled server-side"),
	}, nil
}

// UpdateSubscription is not supported: plan changes happen through StoreKit
func (p *AppleIAPProvider) UpdateSubscription(_ context.Context, req provider.UpdateSubscriptionRequest) (*provider.SubscriptionResult, error) {
	return &provider.SubscriptionResult{
		Success:                false,
		ProviderSubscriptionID: req.ProviderSubscriptionID,
		Status:                 "update_not_supported",
		PlanID:                 req.PlanID,
		Message:                "Apple subscription changes must be made from the iOS app",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"action_required": "client_side_upgrade",
			"new_product_id":  req.PlanID,
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "Apple subscriptions cannot be updated server-side"),
	}, nil
}

// RefundPayment is not supported: refunds are handled in App Store Connect
func (p *AppleIAPProvider) RefundPayment(_ context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	return &provider.RefundResult{
		Success:  false,
		RefundID: "refund_" + req.TransactionID,
		Amount:   req.Amount,
		Status:   "pending_manual_processing",
		Reason:   req.Reason,
		Message:  "Apple IAP refunds must be processed through App Store Connect.",
		Provider: p.Name(),
		ProviderData: map[string]any{
			"transaction_id":  req.TransactionID,
			"action_required": "app_store_connect_refund",
		},
		Error: provider.NewPaymentError(p.Name(), provider.CodeNotSupported, "Apple IAP refunds cannot be issued server-side"),
	}, nil
}

// ParseWebhook normalizes an App Store server notification. Version 1
// notifications carry notification_type in the body, version 2 wrap the
// notification in a signedPayload JWS. The JWS signature is not verified.
func (p *AppleIAPProvider) ParseWebhook(_ context.Context, payload []byte, _ map[string]string) (*provider.WebhookEvent, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeInvalidPayload, "Invalid JSON payload").WithCause(err)
	}
	if body == nil {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeInvalidPayload, "Invalid JSON payload")
	}

	notification := body
	version := "v1"
	if signed, ok := body["signedPayload"].(string); ok {
		claims, err := decodeSignedPayload(signed)
		if err != nil {
			return nil, provider.NewPaymentError(p.Name(), provider.CodeParsingError, "Failed to parse Apple webhook").WithCause(err)
		}
		notification = claims
		version = "v2"
	}

	notificationType := firstString(notification, "notificationType", "notification_type")
	if notificationType == "" {
		return nil, provider.NewPaymentError(p.Name(), provider.CodeParsingError, "Failed to parse Apple webhook").
			WithDetail("reason", "notification type missing")
	}

	eventType, ok := notificationTypes[notificationType]
	if !ok {
		eventType = "unknown"
	}

	environment := firstString(notification, "environment")
	if data, ok := notification["data"].(map[string]any); ok && environment == "" {
		environment = firstString(data, "environment")
	}

	receivedAt := p.now()
	if signedDate, ok := notification["signedDate"].(float64); ok && signedDate > 0 {
		receivedAt = time.UnixMilli(int64(signedDate)).UTC()
	}

	return &provider.WebhookEvent{
		EventID:   firstString(notification, "notificationUUID", "notification_uuid"),
		EventType: eventType,
		Provider:  p.Name(),
		Payload:   notification,
		ProviderData: map[string]any{
			"notification_type": notificationType,
			"subtype":           firstString(notification, "subtype"),
			"environment":       environment,
			"version":           version,
		},
		ReceivedAt: receivedAt,
	}, nil
}

func decodeSignedPayload(signed string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(signed, claims); err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, errors.New("empty signed payload")
	}
	return claims, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
