package provider

import (
	"strings"
)

// Canonical event types understood by the default dispatch
const (
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionUpdated   = "subscription.updated"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventInvoicePaid           = "invoice.paid"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

var defaultWebhookMessages = map[string]string{
	EventPaymentSucceeded:      "Payment succeeded",
	EventPaymentFailed:         "Payment failed",
	EventSubscriptionCreated:   "Subscription created",
	EventSubscriptionUpdated:   "Subscription updated",
	EventSubscriptionCancelled: "Subscription cancelled",
	EventInvoicePaid:           "Invoice paid",
	EventInvoicePaymentFailed:  "Invoice payment failed",
}

// DispatchWebhookEvent maps an event type onto the canonical handler table.
// Unknown types are ignored, never rejected.
func DispatchWebhookEvent(event *WebhookEvent) *WebhookResult {
	if event == nil {
		return &WebhookResult{Status: WebhookIgnored, Message: "Unhandled event type: "}
	}

	eventType := strings.ToLower(event.EventType)
	if msg, ok := defaultWebhookMessages[eventType]; ok {
		return &WebhookResult{
			Status:    WebhookProcessed,
			Message:   msg,
			EventType: eventType,
		}
	}

	return &WebhookResult{
		Status:    WebhookIgnored,
		Message:   "Unhandled event type: " + eventType,
		EventType: eventType,
	}
}
