package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mstgnz/paykit/infra/logger"
)

// reconcileFunc applies a provider event to the stored rows. The object is
// the part of the payload the event describes.
type reconcileFunc func(m *PaymentManager, ctx context.Context, object map[string]any) (*WebhookResult, error)

var stripeReconcilers = map[string]reconcileFunc{
	"payment_intent.succeeded":      (*PaymentManager).stripePaymentSucceeded,
	"payment_intent.payment_failed": (*PaymentManager).stripePaymentFailed,
	"invoice.paid":                  (*PaymentManager).stripeInvoicePaid,
	"invoice.payment_failed":        (*PaymentManager).stripeInvoicePaymentFailed,
	"customer.subscription.created": (*PaymentManager).stripeSubscriptionCreated,
	"customer.subscription.updated": (*PaymentManager).stripeSubscriptionUpdated,
	"customer.subscription.deleted": (*PaymentManager).stripeSubscriptionDeleted,
}

var paypalReconcilers = map[string]reconcileFunc{
	"PAYMENT.CAPTURE.COMPLETED":      (*PaymentManager).paypalPaymentCompleted,
	"PAYMENT.SALE.COMPLETED":         (*PaymentManager).paypalPaymentCompleted,
	"PAYMENT.CAPTURE.DENIED":         (*PaymentManager).paypalPaymentDenied,
	"BILLING.SUBSCRIPTION.CREATED":   (*PaymentManager).paypalSubscriptionCreated,
	"BILLING.SUBSCRIPTION.ACTIVATED": (*PaymentManager).paypalSubscriptionActivated,
	"BILLING.SUBSCRIPTION.CANCELLED": (*PaymentManager).paypalSubscriptionCancelled,
}

// stripeSubscriptionStatus maps Stripe subscription states onto stored ones
var stripeSubscriptionStatus = map[string]SubscriptionStatus{
	"active":   SubscriptionActive,
	"past_due": SubscriptionSuspended,
	"canceled": SubscriptionCancelled,
	"unpaid":   SubscriptionExpired,
	"trialing": SubscriptionActive,
}

// reconcile updates stored payments and subscriptions for events the
// manager understands. It returns nil when the event is not one of them.
func (m *PaymentManager) reconcile(ctx context.Context, event *WebhookEvent) (*WebhookResult, error) {
	var (
		fn     reconcileFunc
		object map[string]any
	)

	switch event.Provider {
	case Stripe:
		fn = stripeReconcilers[event.EventType]
		object = nestedMap(event.Payload, "data", "object")
	case PayPal:
		fn = paypalReconcilers[event.EventType]
		object = nestedMap(event.Payload, "resource")
	case BankTransfer:
		if event.EventType == "manual_payment.verified" {
			fn = (*PaymentManager).bankTransferVerified
			object = event.Payload
		}
	}

	if fn == nil {
		return nil, nil
	}

	result, err := fn(m, ctx, object)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s %s: %w", event.Provider, event.EventType, err)
	}
	result.EventType = event.EventType
	return result, nil
}

func (m *PaymentManager) stripePaymentSucceeded(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	id := stringField(object, "id")
	amount := minorToMajor(object["amount"])
	currency := strings.ToUpper(stringFieldOr(object, "currency", "usd"))

	response := fmt.Sprintf("Payment succeeded via Stripe. Amount: %s %s", amount.String(), currency)
	payment, err := m.completePayment(ctx, id, response)
	if err != nil || payment == nil {
		return processed("Payment succeeded"), err
	}

	return processed("Payment succeeded", "payment_id", payment.ID), nil
}

func (m *PaymentManager) stripePaymentFailed(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	id := stringField(object, "id")
	reason := stringFieldOr(nestedMap(object, "last_payment_error"), "message", "Unknown error")

	payment, err := m.store.GetPaymentByReference(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return processed("Payment failure recorded"), nil
	}
	if err != nil {
		return nil, err
	}

	payment.Status = StatusFailed
	payment.PaymentResponse = "Payment failed: " + reason
	payment.UpdatedAt = m.now().UTC()
	if err := m.store.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}

	logger.Warn("Stripe payment failed", logger.LogContext{
		Provider: Stripe,
		Fields:   map[string]any{"payment_intent": id, "reason": reason},
	})
	return processed("Payment failed recorded", "payment_id", payment.ID), nil
}

func (m *PaymentManager) stripeInvoicePaid(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	invoiceID := stringField(object, "id")
	amount := minorToMajor(object["amount_paid"])
	currency := strings.ToUpper(stringFieldOr(object, "currency", "usd"))

	var subID int64
	err := m.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		sub, err := repo.GetSubscriptionByProviderID(ctx, stringField(object, "subscription"))
		if err != nil {
			return err
		}

		now := m.now().UTC()
		renewal := &Payment{
			SubscriptionID:  sub.ID,
			Amount:          amount,
			Currency:        currency,
			PaymentDate:     now,
			PaymentMethod:   Stripe,
			ReferenceNumber: invoiceID,
			Status:          StatusCompleted,
			PaymentResponse: "Subscription renewal payment via Stripe",
			UpdatedBy:       "webhook",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := repo.CreatePayment(ctx, renewal); err != nil {
			return err
		}

		sub.Status = SubscriptionActive
		sub.IsActive = true
		sub.UpdatedAt = now
		subID = sub.ID
		return repo.UpdateSubscription(ctx, sub)
	})
	if errors.Is(err, ErrRecordNotFound) {
		return processed("Invoice paid recorded"), nil
	}
	if err != nil {
		return nil, err
	}

	return processed("Subscription renewed", "subscription_id", subID), nil
}

func (m *PaymentManager) stripeInvoicePaymentFailed(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	sub, err := m.setSubscriptionStatus(ctx, stringField(object, "subscription"), SubscriptionSuspended, nil)
	if err != nil || sub == nil {
		return processed("Invoice payment failure recorded"), err
	}
	return processed("Subscription payment failed", "subscription_id", sub.ID), nil
}

func (m *PaymentManager) stripeSubscriptionCreated(_ context.Context, object map[string]any) (*WebhookResult, error) {
	id := stringField(object, "id")
	logger.Info("Stripe subscription created", logger.LogContext{
		Provider: Stripe,
		Fields:   map[string]any{"subscription": id},
	})
	return processed("Stripe subscription created", "stripe_subscription_id", id), nil
}

func (m *PaymentManager) stripeSubscriptionUpdated(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	status, ok := stripeSubscriptionStatus[stringField(object, "status")]
	if !ok {
		status = SubscriptionActive
	}

	sub, err := m.setSubscriptionStatus(ctx, stringField(object, "id"), status, nil)
	if err != nil || sub == nil {
		return processed("Subscription update recorded"), err
	}
	return processed("Subscription updated", "subscription_id", sub.ID), nil
}

func (m *PaymentManager) stripeSubscriptionDeleted(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	sub, err := m.setSubscriptionStatus(ctx, stringField(object, "id"), SubscriptionCancelled, endSubscription)
	if err != nil || sub == nil {
		return processed("Subscription cancellation recorded"), err
	}
	return processed("Subscription cancelled", "subscription_id", sub.ID), nil
}

func (m *PaymentManager) paypalPaymentCompleted(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	amountInfo := nestedMap(object, "amount")
	amount, err := decimal.NewFromString(stringFieldOr(amountInfo, "value", "0"))
	if err != nil {
		amount = decimal.Zero
	}
	currency := stringFieldOr(amountInfo, "currency_code", "USD")

	response := fmt.Sprintf("Payment succeeded via PayPal. Amount: %s %s", amount.String(), currency)
	for _, reference := range paypalPaymentReferences(object) {
		payment, err := m.completePayment(ctx, reference, response)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return processed("Payment succeeded", "payment_id", payment.ID), nil
		}
	}
	return processed("PayPal payment recorded"), nil
}

func (m *PaymentManager) paypalPaymentDenied(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	for _, reference := range paypalPaymentReferences(object) {
		payment, err := m.store.GetPaymentByReference(ctx, reference)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		payment.Status = StatusFailed
		payment.PaymentResponse = "Payment denied via PayPal"
		payment.UpdatedAt = m.now().UTC()
		if err := m.store.UpdatePayment(ctx, payment); err != nil {
			return nil, err
		}
		return processed("Payment denied", "payment_id", payment.ID), nil
	}
	return processed("PayPal payment denial recorded"), nil
}

// paypalPaymentReferences lists the ids a capture or sale resource may be
// stored under: its own id, then the order it was captured from.
func paypalPaymentReferences(object map[string]any) []string {
	var refs []string
	if id := stringField(object, "id"); id != "" {
		refs = append(refs, id)
	}
	orderID := stringField(nestedMap(object, "supplementary_data", "related_ids"), "order_id")
	if orderID != "" && (len(refs) == 0 || refs[0] != orderID) {
		refs = append(refs, orderID)
	}
	return refs
}

func (m *PaymentManager) paypalSubscriptionCreated(_ context.Context, object map[string]any) (*WebhookResult, error) {
	id := stringField(object, "id")
	logger.Info("PayPal subscription created", logger.LogContext{
		Provider: PayPal,
		Fields:   map[string]any{"subscription": id},
	})
	return processed("PayPal subscription created", "paypal_subscription_id", id), nil
}

func (m *PaymentManager) paypalSubscriptionActivated(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	sub, err := m.setSubscriptionStatus(ctx, stringField(object, "id"), SubscriptionActive, nil)
	if err != nil || sub == nil {
		return processed("PayPal subscription activated"), err
	}
	return processed("Subscription activated", "subscription_id", sub.ID), nil
}

func (m *PaymentManager) paypalSubscriptionCancelled(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	sub, err := m.setSubscriptionStatus(ctx, stringField(object, "id"), SubscriptionCancelled, endSubscription)
	if err != nil || sub == nil {
		return processed("PayPal subscription cancellation recorded"), err
	}
	return processed("Subscription cancelled", "subscription_id", sub.ID), nil
}

func (m *PaymentManager) bankTransferVerified(ctx context.Context, object map[string]any) (*WebhookResult, error) {
	txID := stringField(object, "transaction_id")
	if txID == "" {
		return &WebhookResult{Status: WebhookIgnored, Message: "Manual payment event without transaction_id"}, nil
	}

	result, err := m.ConfirmBankTransfer(ctx, txID, stringFieldOr(object, "confirmed_by", "webhook"), stringField(object, "notes"))
	if err != nil {
		return nil, err
	}
	if !result.Success {
		msg := result.Message
		if result.Error != nil {
			msg = result.Error.Message
		}
		return &WebhookResult{Status: WebhookIgnored, Message: msg}, nil
	}
	return processed(result.Message, "transaction_id", txID), nil
}

// completePayment marks the payment with the given reference completed and
// activates its subscription. A missing payment yields (nil, nil). Payments
// that are already completed, refunded or cancelled are returned unchanged so
// a late redelivery cannot move them backwards.
func (m *PaymentManager) completePayment(ctx context.Context, reference, response string) (*Payment, error) {
	var payment *Payment
	err := m.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.GetPaymentByReference(ctx, reference)
		if err != nil {
			return err
		}
		payment = p
		if !completable(p.Status) {
			return nil
		}

		now := m.now().UTC()
		p.Status = StatusCompleted
		p.PaymentDate = now
		p.PaymentResponse = response
		p.UpdatedAt = now
		if err := repo.UpdatePayment(ctx, p); err != nil {
			return err
		}

		if p.SubscriptionID == 0 {
			return nil
		}
		sub, err := repo.GetSubscription(ctx, p.SubscriptionID)
		if errors.Is(err, ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		sub.Status = SubscriptionActive
		sub.IsActive = true
		sub.UpdatedAt = now
		return repo.UpdateSubscription(ctx, sub)
	})
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return payment, err
}

// completable reports whether a payment in status may still become completed.
// Failed stays open since Stripe retries a failed intent with a new method.
func completable(status PaymentStatus) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusFailed:
		return true
	}
	return false
}

// setSubscriptionStatus updates the subscription with the given provider
// id. A missing subscription yields (nil, nil).
func (m *PaymentManager) setSubscriptionStatus(ctx context.Context, providerSubscriptionID string, status SubscriptionStatus, mutate func(*Subscription)) (*Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, nil
	}

	sub, err := m.store.GetSubscriptionByProviderID(ctx, providerSubscriptionID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sub.Status = status
	if status == SubscriptionActive {
		sub.IsActive = true
	}
	if mutate != nil {
		mutate(sub)
	}
	sub.UpdatedAt = m.now().UTC()
	if err := m.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func endSubscription(sub *Subscription) {
	sub.IsActive = false
	sub.AutoRenew = false
}

func processed(message string, kv ...any) *WebhookResult {
	result := &WebhookResult{Status: WebhookProcessed, Message: message}
	for i := 0; i+1 < len(kv); i += 2 {
		if result.Fields == nil {
			result.Fields = make(map[string]any)
		}
		result.Fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return result
}

func nestedMap(m map[string]any, keys ...string) map[string]any {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		cur = next
	}
	return cur
}

func stringField(m map[string]any, key string) string {
	return stringFieldOr(m, key, "")
}

func stringFieldOr(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

// minorToMajor converts a JSON number of minor units (cents) to major units
func minorToMajor(v any) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n).Div(decimal.NewFromInt(100))
	case int64:
		return decimal.NewFromInt(n).Div(decimal.NewFromInt(100))
	case int:
		return decimal.NewFromInt(int64(n)).Div(decimal.NewFromInt(100))
	}
	return decimal.Zero
}
