package provider

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the current status of a payment
type PaymentStatus string

const (
	StatusPending           PaymentStatus = "pending"
	StatusProcessing        PaymentStatus = "processing"
	StatusCompleted         PaymentStatus = "completed"
	StatusFailed            PaymentStatus = "failed"
	StatusCancelled         PaymentStatus = "cancelled"
	StatusRefunded          PaymentStatus = "refunded"
	StatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// IsValid reports whether s is one of the known payment statuses
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
		StatusCancelled, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// PaymentIntentRequest describes a one-time charge in major currency units
type PaymentIntentRequest struct {
	Amount        decimal.Decimal   `json:"amount" validate:"gt=0"`
	Currency      string            `json:"currency" validate:"required,currency"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CustomerEmail string            `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

// PaymentStatusRequest identifies a transaction to poll. ReceiptData and
// ProductID are only read by the app store providers.
type PaymentStatusRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	ReceiptData   string `json:"receiptData,omitempty"`
	ProductID     string `json:"productId,omitempty"`
}

// SubscriptionRequest starts recurring billing for a provider-specific plan
type SubscriptionRequest struct {
	PlanID        string            `json:"planId" validate:"required"`
	CustomerEmail string            `json:"customerEmail,omitempty" validate:"omitempty,email"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	TrialDays     int               `json:"trialDays,omitempty" validate:"gte=0"`
}

// UpdateSubscriptionRequest changes the plan and/or quantity of a subscription
type UpdateSubscriptionRequest struct {
	ProviderSubscriptionID string `json:"providerSubscriptionId" validate:"required"`
	PlanID                 string `json:"planId,omitempty"`
	Quantity               *int64 `json:"quantity,omitempty"`
}

// RefundRequest refunds a transaction. A nil Amount means a full refund.
type RefundRequest struct {
	TransactionID string           `json:"transactionId" validate:"required"`
	Amount        *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason        string           `json:"reason,omitempty"`
}

// PaymentResult is the provider-independent outcome of a payment operation
type PaymentResult struct {
	Success               bool             `json:"success"`
	TransactionID         string           `json:"transactionId,omitempty"`
	ProviderTransactionID string           `json:"providerTransactionId,omitempty"`
	Amount                *decimal.Decimal `json:"amount,omitempty"`
	Currency              string           `json:"currency,omitempty"`
	Status                PaymentStatus    `json:"status"`
	Message               string           `json:"message"`
	Provider              string           `json:"provider"`
	ProviderData          map[string]any   `json:"providerData,omitempty"`
	Error                 *PaymentError    `json:"error,omitempty"`
	RedirectURL           string           `json:"redirectUrl,omitempty"`
	ClientSecret          string           `json:"clientSecret,omitempty"`
}

// FailureExplained reports whether a failed result carries an error or a message
func (r *PaymentResult) FailureExplained() bool {
	return r.Success || r.Error != nil || r.Message != ""
}

// SubscriptionResult is the outcome of a subscription lifecycle operation.
// Status is provider vocabulary, not PaymentStatus.
type SubscriptionResult struct {
	Success                bool           `json:"success"`
	SubscriptionID         int64          `json:"subscriptionId,omitempty"`
	ProviderSubscriptionID string         `json:"providerSubscriptionId,omitempty"`
	Status                 string         `json:"status"`
	PlanID                 string         `json:"planId,omitempty"`
	Message                string         `json:"message"`
	Provider               string         `json:"provider"`
	ProviderData           map[string]any `json:"providerData,omitempty"`
	Error                  *PaymentError  `json:"error,omitempty"`
}

// FailureExplained reports whether a failed result carries an error or a message
func (r *SubscriptionResult) FailureExplained() bool {
	return r.Success || r.Error != nil || r.Message != ""
}

// RefundResult is the outcome of a refund request
type RefundResult struct {
	Success          bool             `json:"success"`
	RefundID         string           `json:"refundId,omitempty"`
	ProviderRefundID string           `json:"providerRefundId,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	Status           string           `json:"status"`
	Reason           string           `json:"reason,omitempty"`
	Message          string           `json:"message"`
	Provider         string           `json:"provider"`
	ProviderData     map[string]any   `json:"providerData,omitempty"`
	Error            *PaymentError    `json:"error,omitempty"`
}

// FailureExplained reports whether a failed result carries an error or a message
func (r *RefundResult) FailureExplained() bool {
	return r.Success || r.Error != nil || r.Message != ""
}

// WebhookEvent is a parsed, authenticated (where supported) provider notification
type WebhookEvent struct {
	EventID      string         `json:"eventId"`
	EventType    string         `json:"eventType"`
	Provider     string         `json:"provider"`
	Payload      map[string]any `json:"payload"`
	ProviderData map[string]any `json:"providerData,omitempty"`
	Processed    bool           `json:"processed"`
	ReceivedAt   time.Time      `json:"receivedAt"`
}

// MarkProcessed flags the event as handled
func (e *WebhookEvent) MarkProcessed() {
	e.Processed = true
}

// Webhook handling outcomes
const (
	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
)

// WebhookResult describes what handling a webhook event did
type WebhookResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	EventType string         `json:"eventType,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Amount returns a pointer to d, for optional decimal fields
func Amount(d decimal.Decimal) *decimal.Decimal {
	return &d
}
