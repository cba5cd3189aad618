package provider

import (
	"errors"
	"fmt"
)

// Error codes shared by all providers
const (
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderNotFound      = "PROVIDER_NOT_FOUND"
	CodeNotSupported          = "NOT_SUPPORTED"
	CodeInvalidRequest        = "INVALID_REQUEST"

	CodeWebhookSecretMissing     = "WEBHOOK_SECRET_MISSING"
	CodeWebhookSignatureInvalid  = "WEBHOOK_SIGNATURE_INVALID"
	CodeWebhookHeadersMissing    = "WEBHOOK_HEADERS_MISSING"
	CodeWebhookHeadersIncomplete = "WEBHOOK_HEADERS_INCOMPLETE"
	CodeWebhookVerificationError = "WEBHOOK_VERIFICATION_ERROR"
	CodeInvalidPayload           = "INVALID_PAYLOAD"
	CodeParsingError             = "PARSING_ERROR"

	CodeManualConfirmationRequired = "MANUAL_CONFIRMATION_REQUIRED"
	CodeManualApprovalRequired     = "MANUAL_APPROVAL_REQUIRED"
	CodePaymentNotFound            = "PAYMENT_NOT_FOUND"
	CodeSubscriptionNotFound       = "SUBSCRIPTION_NOT_FOUND"
	CodePaymentCreationFailed      = "PAYMENT_CREATION_FAILED"
	CodeStatusCheckFailed          = "STATUS_CHECK_FAILED"
	CodeSubscriptionCreationFailed = "SUBSCRIPTION_CREATION_FAILED"
	CodeCancellationFailed         = "CANCELLATION_FAILED"
	CodeUpdateFailed               = "UPDATE_FAILED"
	CodeRefundFailed               = "REFUND_FAILED"
	CodeConfirmationFailed         = "CONFIRMATION_FAILED"
)

// ErrRecordNotFound is returned by stores when a row does not exist
var ErrRecordNotFound = errors.New("record not found")

// PaymentError is the structured failure type of the payment core. It is
// returned as a Go error by the registry and by ParseWebhook, and embedded
// in result values for business-level failures.
type PaymentError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Provider string         `json:"provider"`
	Details  map[string]any `json:"details,omitempty"`
}

// NewPaymentError creates a payment error without details
func NewPaymentError(providerName, code, message string) *PaymentError {
	return &PaymentError{
		Code:     code,
		Message:  message,
		Provider: providerName,
	}
}

// Error implements the error interface
func (e *PaymentError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

// WithDetail returns e with an extra detail entry
func (e *PaymentError) WithDetail(key string, value any) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause records err under the original_error detail
func (e *PaymentError) WithCause(err error) *PaymentError {
	if err == nil {
		return e
	}
	return e.WithDetail("original_error", err.Error())
}

// AsPaymentError extracts a *PaymentError from err's chain
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsCode reports whether err is a *PaymentError with the given code
func IsCode(err error, code string) bool {
	pe, ok := AsPaymentError(err)
	return ok && pe.Code == code
}

// IsConfigurationError reports whether code describes an operator-side
// configuration problem rather than a provider or request failure
func IsConfigurationError(code string) bool {
	switch code {
	case CodeProviderNotConfigured, CodeProviderNotFound, CodeWebhookSecretMissing:
		return true
	}
	return false
}

// NotConfiguredPayment is the uniform result for an unconfigured provider
func NotConfiguredPayment(providerName, displayName string) *PaymentResult {
	return &PaymentResult{
		Success:  false,
		Status:   StatusFailed,
		Message:  displayName + " is not configured",
		Provider: providerName,
		Error:    NewPaymentError(providerName, CodeProviderNotConfigured, displayName+" payment service is not available"),
	}
}

// NotConfiguredSubscription is the subscription variant of NotConfiguredPayment
func NotConfiguredSubscription(providerName, displayName string) *SubscriptionResult {
	return &SubscriptionResult{
		Success:  false,
		Status:   "failed",
		Message:  displayName + " is not configured",
		Provider: providerName,
		Error:    NewPaymentError(providerName, CodeProviderNotConfigured, displayName+" payment service is not available"),
	}
}

// NotConfiguredRefund is the refund variant of NotConfiguredPayment
func NotConfiguredRefund(providerName, displayName string) *RefundResult {
	return &RefundResult{
		Success:  false,
		Status:   "failed",
		Message:  displayName + " is not configured",
		Provider: providerName,
		Error:    NewPaymentError(providerName, CodeProviderNotConfigured, displayName+" payment service is not available"),
	}
}

// NotSupportedPayment is returned by providers that cannot run an operation server-side
func NotSupportedPayment(providerName, message, hint string) *PaymentResult {
	return &PaymentResult{
		Success:  false,
		Status:   StatusFailed,
		Message:  message,
		Provider: providerName,
		Error:    NewPaymentError(providerName, CodeNotSupported, hint),
	}
}
