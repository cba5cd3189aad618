package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchWebhookEvent(t *testing.T) {
	tests := []struct {
		eventType string
		status    string
		message   string
	}{
		{"payment.succeeded", WebhookProcessed, "Payment succeeded"},
		{"PAYMENT.FAILED", WebhookProcessed, "Payment failed"},
		{"subscription.created", WebhookProcessed, "Subscription created"},
		{"subscription.updated", WebhookProcessed, "Subscription updated"},
		{"Subscription.Cancelled", WebhookProcessed, "Subscription cancelled"},
		{"invoice.paid", WebhookProcessed, "Invoice paid"},
		{"invoice.payment_failed", WebhookProcessed, "Invoice payment failed"},
		{"charge.dispute.created", WebhookIgnored, "Unhandled event type: charge.dispute.created"},
		{"", WebhookIgnored, "Unhandled event type: "},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			result := DispatchWebhookEvent(&WebhookEvent{EventType: tt.eventType})
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.message, result.Message)
		})
	}
}

func TestDispatchWebhookEvent_NilEvent(t *testing.T) {
	result := DispatchWebhookEvent(nil)
	assert.Equal(t, WebhookIgnored, result.Status)
}

func TestWebhookEvent_MarkProcessed(t *testing.T) {
	event := &WebhookEvent{EventID: "evt_1"}
	assert.False(t, event.Processed)
	event.MarkProcessed()
	assert.True(t, event.Processed)
}
