package provider

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedReconcileStore stores one subscription with a pending payment
func seedReconcileStore(t *testing.T, providerSubID, reference string) *memStore {
	t.Helper()
	store := newMemStore()
	ctx := context.Background()

	sub := &Subscription{
		UserID:                 7,
		PlanID:                 2,
		Status:                 SubscriptionPending,
		AutoRenew:              true,
		ProviderSubscriptionID: providerSubID,
	}
	require.NoError(t, store.CreateSubscription(ctx, sub))
	require.NoError(t, store.CreatePayment(ctx, &Payment{
		SubscriptionID:  sub.ID,
		Amount:          decimal.RequireFromString("19.99"),
		ReferenceNumber: reference,
		Status:          StatusPending,
		PaymentMethod:   Stripe,
	}))
	return store
}

func reconcileManager(t *testing.T, store *memStore) *PaymentManager {
	manager, _ := newTestManager(t, WithStore(store), WithClock(func() time.Time { return fixedNow }))
	return manager
}

func TestReconcile_StripePaymentSucceeded(t *testing.T) {
	store := seedReconcileStore(t, "sub_123", "pi_123")
	manager := reconcileManager(t, store)

	result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  Stripe,
		EventType: "payment_intent.succeeded",
		Payload: map[string]any{
			"type": "payment_intent.succeeded",
			"data": map[string]any{"object": map[string]any{"id": "pi_123", "amount": float64(1999), "currency": "usd"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, result.Status)
	assert.Equal(t, "payment_intent.succeeded", result.EventType)

	payment, err := store.GetPaymentByReference(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, payment.Status)
	assert.Equal(t, "Payment succeeded via Stripe. Amount: 19.99 USD", payment.PaymentResponse)
	assert.Equal(t, payment.ID, result.Fields["payment_id"])

	sub, err := store.GetSubscription(context.Background(), payment.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionActive, sub.Status)
	assert.True(t, sub.IsActive)
}

func TestReconcile_StripePaymentFailed(t *testing.T) {
	store := seedReconcileStore(t, "sub_123", "pi_123")
	manager := reconcileManager(t, store)

	_, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  Stripe,
		EventType: "payment_intent.payment_failed",
		Payload: map[string]any{"data": map[string]any{"object": map[string]any{
			"id":                 "pi_123",
			"last_payment_error": map[string]any{"message": "Your card was declined."},
		}}},
	})
	require.NoError(t, err)

	payment, _ := store.GetPaymentByReference(context.Background(), "pi_123")
	assert.Equal(t, StatusFailed, payment.Status)
	assert.Equal(t, "Payment failed: Your card was declined.", payment.PaymentResponse)
}

func TestReconcile_StripeInvoicePaidCreatesRenewal(t *testing.T) {
	store := seedReconcileStore(t, "sub_123", "pi_123")
	manager := reconcileManager(t, store)

	result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  Stripe,
		EventType: "invoice.paid",
		Payload: map[string]any{"data": map[string]any{"object": map[string]any{
			"id": "in_1", "subscription": "sub_123", "amount_paid": float64(2000), "currency": "eur",
		}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Subscription renewed", result.Message)

	renewal, err := store.GetPaymentByReference(context.Background(), "in_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, renewal.Status)
	assert.True(t, renewal.Amount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "EUR", renewal.Currency)
	assert.Equal(t, "Subscription renewal payment via Stripe", renewal.PaymentResponse)
}

func TestReconcile_StripeSubscriptionStatus(t *testing.T) {
	tests := []struct {
		eventType string
		status    string
		expected  SubscriptionStatus
		active    bool
		autoRenew bool
	}{
		{"invoice.payment_failed", "", SubscriptionSuspended, false, true},
		{"customer.subscription.updated", "active", SubscriptionActive, true, true},
		{"customer.subscription.updated", "past_due", SubscriptionSuspended, false, true},
		{"customer.subscription.updated", "canceled", SubscriptionCancelled, false, true},
		{"customer.subscription.updated", "unpaid", SubscriptionExpired, false, true},
		{"customer.subscription.updated", "trialing", SubscriptionActive, true, true},
		{"customer.subscription.updated", "incomplete", SubscriptionActive, true, true},
		{"customer.subscription.deleted", "canceled", SubscriptionCancelled, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType+"/"+tt.status, func(t *testing.T) {
			store := seedReconcileStore(t, "sub_123", "pi_123")
			manager := reconcileManager(t, store)

			object := map[string]any{"id": "sub_123", "subscription": "sub_123", "status": tt.status}
			result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
				Provider:  Stripe,
				EventType: tt.eventType,
				Payload:   map[string]any{"data": map[string]any{"object": object}},
			})
			require.NoError(t, err)
			assert.Equal(t, WebhookProcessed, result.Status)

			sub, err := store.GetSubscriptionByProviderID(context.Background(), "sub_123")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sub.Status)
			assert.Equal(t, tt.active, sub.IsActive)
			assert.Equal(t, tt.autoRenew, sub.AutoRenew)
		})
	}
}

func TestReconcile_StripeSubscriptionCreatedOnlyLogs(t *testing.T) {
	store := seedReconcileStore(t, "sub_123", "pi_123")
	manager := reconcileManager(t, store)

	result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  Stripe,
		EventType: "customer.subscription.created",
		Payload:   map[string]any{"data": map[string]any{"object": map[string]any{"id": "sub_new"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Stripe subscription created", result.Message)
	assert.Equal(t, "sub_new", result.Fields["stripe_subscription_id"])
}

func TestReconcile_MissingRowsAreStillProcessed(t *testing.T) {
	manager := reconcileManager(t, newMemStore())

	result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  Stripe,
		EventType: "payment_intent.succeeded",
		Payload:   map[string]any{"data": map[string]any{"object": map[string]any{"id": "pi_missing"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, result.Status)
	assert.Equal(t, "Payment succeeded", result.Message)
	assert.Empty(t, result.Fields)
}

func TestReconcile_PayPal(t *testing.T) {
	t.Run("capture completed", func(t *testing.T) {
		store := seedReconcileStore(t, "I-SUB", "CAPTURE-1")
		manager := reconcileManager(t, store)

		_, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
			Provider:  PayPal,
			EventType: "PAYMENT.CAPTURE.COMPLETED",
			Payload: map[string]any{"resource": map[string]any{
				"id":     "CAPTURE-1",
				"amount": map[string]any{"value": "19.99", "currency_code": "USD"},
			}},
		})
		require.NoError(t, err)

		payment, _ := store.GetPaymentByReference(context.Background(), "CAPTURE-1")
		assert.Equal(t, StatusCompleted, payment.Status)
		assert.Equal(t, "Payment succeeded via PayPal. Amount: 19.99 USD", payment.PaymentResponse)
	})

	t.Run("capture matched through its order", func(t *testing.T) {
		store := seedReconcileStore(t, "I-SUB", "5O190127TN364715T")
		manager := reconcileManager(t, store)

		result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
			Provider:  PayPal,
			EventType: "PAYMENT.CAPTURE.COMPLETED",
			Payload: map[string]any{"resource": map[string]any{
				"id":     "3C679366HH908993F",
				"amount": map[string]any{"value": "19.99", "currency_code": "USD"},
				"supplementary_data": map[string]any{
					"related_ids": map[string]any{"order_id": "5O190127TN364715T"},
				},
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Payment succeeded", result.Message)

		payment, _ := store.GetPaymentByReference(context.Background(), "5O190127TN364715T")
		assert.Equal(t, StatusCompleted, payment.Status)
		assert.Equal(t, payment.ID, result.Fields["payment_id"])

		sub, _ := store.GetSubscriptionByProviderID(context.Background(), "I-SUB")
		assert.Equal(t, SubscriptionActive, sub.Status)
	})

	t.Run("capture denied through its order", func(t *testing.T) {
		store := seedReconcileStore(t, "I-SUB", "ORDER-9")
		manager := reconcileManager(t, store)

		result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
			Provider:  PayPal,
			EventType: "PAYMENT.CAPTURE.DENIED",
			Payload: map[string]any{"resource": map[string]any{
				"id":                 "CAPTURE-9",
				"supplementary_data": map[string]any{"related_ids": map[string]any{"order_id": "ORDER-9"}},
			}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Payment denied", result.Message)

		payment, _ := store.GetPaymentByReference(context.Background(), "ORDER-9")
		assert.Equal(t, StatusFailed, payment.Status)
	})

	t.Run("sale completed behaves like capture", func(t *testing.T) {
		store := seedReconcileStore(t, "I-SUB", "SALE-1")
		manager := reconcileManager(t, store)

		_, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
			Provider:  PayPal,
			EventType: "PAYMENT.SALE.COMPLETED",
			Payload:   map[string]any{"resource": map[string]any{"id": "SALE-1"}},
		})
		require.NoError(t, err)

		payment, _ := store.GetPaymentByReference(context.Background(), "SALE-1")
		assert.Equal(t, StatusCompleted, payment.Status)
	})

	t.Run("capture denied", func(t *testing.T) {
		store := seedReconcileStore(t, "I-SUB", "CAPTURE-2")
		manager := reconcileManager(t, store)

		result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
			Provider:  PayPal,
			EventType: "PAYMENT.CAPTURE.DENIED",
			Payload:   map[string]any{"resource": map[string]any{"id": "CAPTURE-2"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Payment denied", result.Message)

		payment, _ := store.GetPaymentByReference(context.Background(), "CAPTURE-2")
		assert.Equal(t, StatusFailed, payment.Status)
		assert.Equal(t, "Payment denied via PayPal", payment.PaymentResponse)
	})

	t.Run("subscription lifecycle", func(t *testing.T) {
		store := seedReconcileStore(t, "I-SUB", "CAPTURE-3")
		manager := reconcileManager(t, store)
		ctx := context.Background()

		_, err := manager.HandleWebhook(ctx, &WebhookEvent{
			Provider:  PayPal,
			EventType: "BILLING.SUBSCRIPTION.ACTIVATED",
			Payload:   map[string]any{"resource": map[string]any{"id": "I-SUB"}},
		})
		require.NoError(t, err)
		sub, _ := store.GetSubscriptionByProviderID(ctx, "I-SUB")
		assert.Equal(t, SubscriptionActive, sub.Status)

		_, err = manager.HandleWebhook(ctx, &WebhookEvent{
			Provider:  PayPal,
			EventType: "BILLING.SUBSCRIPTION.CANCELLED",
			Payload:   map[string]any{"resource": map[string]any{"id": "I-SUB"}},
		})
		require.NoError(t, err)
		sub, _ = store.GetSubscriptionByProviderID(ctx, "I-SUB")
		assert.Equal(t, SubscriptionCancelled, sub.Status)
		assert.False(t, sub.AutoRenew)
	})
}

func TestReconcile_CompletionDoesNotMoveBackwards(t *testing.T) {
	tests := []struct {
		name     string
		stored   PaymentStatus
		expected PaymentStatus
	}{
		{"pending", StatusPending, StatusCompleted},
		{"processing", StatusProcessing, StatusCompleted},
		{"failed then retried", StatusFailed, StatusCompleted},
		{"already completed", StatusCompleted, StatusCompleted},
		{"refunded", StatusRefunded, StatusRefunded},
		{"partially refunded", StatusPartiallyRefunded, StatusPartiallyRefunded},
		{"cancelled", StatusCancelled, StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seedReconcileStore(t, "sub_123", "pi_123")
			ctx := context.Background()
			payment, err := store.GetPaymentByReference(ctx, "pi_123")
			require.NoError(t, err)
			payment.Status = tt.stored
			payment.PaymentResponse = "before"
			require.NoError(t, store.UpdatePayment(ctx, payment))

			manager := reconcileManager(t, store)
			result, err := manager.HandleWebhook(ctx, &WebhookEvent{
				Provider:  Stripe,
				EventType: "payment_intent.succeeded",
				Payload: map[string]any{"data": map[string]any{"object": map[string]any{
					"id": "pi_123", "amount": float64(1999), "currency": "usd",
				}}},
			})
			require.NoError(t, err)
			assert.Equal(t, WebhookProcessed, result.Status)

			got, err := store.GetPaymentByReference(ctx, "pi_123")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Status)
			if tt.stored == tt.expected {
				assert.Equal(t, "before", got.PaymentResponse)
			}
		})
	}
}

func TestReconcile_BankTransferVerified(t *testing.T) {
	manager, stubs := newTestManager(t, WithStore(newMemStore()))

	result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  BankTransfer,
		EventType: "manual_payment.verified",
		Payload:   map[string]any{"transaction_id": "bt_ABC", "confirmed_by": "ops"},
	})
	require.NoError(t, err)
	assert.Equal(t, WebhookProcessed, result.Status)
	assert.Equal(t, "Bank transfer payment confirmed", result.Message)
	assert.Equal(t, []string{"bt_ABC"}, stubs[BankTransfer].confirmed)

	ignored, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  BankTransfer,
		EventType: "manual_payment.verified",
		Payload:   map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, ignored.Status)
}

func TestReconcile_UnknownEventFallsThroughToDefaultDispatch(t *testing.T) {
	manager := reconcileManager(t, newMemStore())

	result, err := manager.HandleWebhook(context.Background(), &WebhookEvent{
		Provider:  Stripe,
		EventType: "charge.refunded",
		Payload:   map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, result.Status)
	assert.Equal(t, "Unhandled event type: charge.refunded", result.Message)
}
