// Package banktransfer implements an offline payment method. Customers
// receive transfer instructions and an operator confirms the payment once
// the money arrives.
package banktransfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/provider"
)

const (
	displayName = "Bank Transfer"

	transactionPrefix  = "bt_"
	refundPrefix       = "bt_ref_"
	subscriptionPrefix = "bt_sub_"

	defaultEventType = "manual_payment.verified"
)

var errNoStore = errors.New("payment store not configured")

var _ provider.ManualConfirmer = (*BankTransferProvider)(nil)

// BankTransferProvider keeps its state in the payment store; it never talks
// to a remote API
type BankTransferProvider struct {
	provider.BaseProvider

	store provider.Store
	now   func() time.Time

	bankName      string
	accountName   string
	accountNumber string
	routingNumber string
	swiftCode     string
	iban          string
	instructions  string
	currency      string
}

// New creates a bank transfer provider persisting through store. A nil
// store leaves the lookup and confirmation operations failing.
func New(store provider.Store) *BankTransferProvider {
	return &BankTransferProvider{
		BaseProvider: provider.NewBaseProvider(provider.BankTransfer),
		store:        store,
		now:          time.Now,
	}
}

// Factory returns a registry factory bound to store
func Factory(store provider.Store) provider.ProviderFactory {
	return func() provider.PaymentProvider {
		return New(store)
	}
}

// RequiredConfig describes the configuration keys the provider reads
func (p *BankTransferProvider) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{Key: "bank_name", Required: true, Type: "string", Description: "Bank receiving the transfers", Example: "Example Bank", MaxLength: 128},
		{Key: "account_name", Required: false, Type: "string", Description: "Account holder name", Example: "Company Name", MaxLength: 128},
		{Key: "account_number", Required: false, Type: "string", Description: "Bank account number", Example: "000123456789", Pattern: `^[0-9A-Za-z -]+$`},
		{Key: "routing_number", Required: false, Type: "string", Description: "ABA routing number (US)", Example: "021000021", Pattern: `^[0-9]{9}$`},
		{Key: "swift_code", Required: false, Type: "string", Description: "SWIFT/BIC code", Example: "DEUTDEFF", Pattern: `^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`},
		{Key: "iban", Required: false, Type: "string", Description: "IBAN for European transfers", Example: "DE89370400440532013000", Pattern: `^[A-Z]{2}[0-9]{2}[A-Z0-9 ]{10,32}$`},
		{Key: "instructions", Required: false, Type: "string", Description: "Extra text appended to the instructions", Example: "Include the reference in the transfer note", MaxLength: 1000},
		{Key: "currency", Required: false, Type: "string", Description: "Currency for subscription invoices", Example: "USD", Pattern: "^[A-Z]{3}$"},
	}
}

// Initialize applies configuration. bank_name defaults to "Example Bank",
// so the provider is available as a fallback method out of the box.
func (p *BankTransferProvider) Initialize(config map[string]string) error {
	if err := provider.ValidateConfigFields(p.Name(), config, p.RequiredConfig()); err != nil {
		return err
	}

	p.bankName = provider.ConfigString(config, "bank_name", "Example Bank")
	p.accountName = provider.ConfigString(config, "account_name", "Company Name")
	p.accountNumber = provider.ConfigString(config, "account_number", "")
	p.routingNumber = provider.ConfigString(config, "routing_number", "")
	p.swiftCode = provider.ConfigString(config, "swift_code", "")
	p.iban = provider.ConfigString(config, "iban", "")
	p.instructions = provider.ConfigString(config, "instructions", "")
	p.currency = provider.ConfigString(config, "currency", "USD")
	return nil
}

// IsConfigured reports whether a receiving bank is set
func (p *BankTransferProvider) IsConfigured() bool {
	return p.bankName != ""
}

// CreatePaymentIntent issues a transaction reference and transfer
// instructions. The payment stays pending until ConfirmManualPayment.
func (p *BankTransferProvider) CreatePaymentIntent(_ context.Context, req provider.PaymentIntentRequest) (*provider.PaymentResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredPayment(p.Name(), displayName), nil
	}

	transactionID := newReference(transactionPrefix, 24)
	currency := strings.ToUpper(req.Currency)

	logger.Info("Bank transfer payment initiated", logger.LogContext{
		Provider: p.Name(),
		Fields:   map[string]any{"transaction_id": transactionID, "amount": req.Amount.String(), "currency": currency},
	})

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         transactionID,
		ProviderTransactionID: transactionID,
		Amount:                provider.Amount(req.Amount),
		Currency:              currency,
		Status:                provider.StatusPending,
		Message:               "Bank transfer payment initiated",
		Provider:              p.Name(),
		ProviderData: map[string]any{
			"instructions":             p.paymentInstructions(req.Amount, currency, transactionID),
			"requires_manual_approval": true,
			"created_at":               p.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// ConfirmPayment is not available: transfers are confirmed by an operator
func (p *BankTransferProvider) ConfirmPayment(_ context.Context, _, _ string) (*provider.PaymentResult, error) {
	return &provider.PaymentResult{
		Success:  false,
		Status:   provider.StatusPending,
		Message:  "Bank transfer payments require manual confirmation",
		Provider: p.Name(),
		Error: provider.NewPaymentError(p.Name(), provider.CodeManualConfirmationRequired,
			"Use admin API to confirm bank transfer payments"),
	}, nil
}

// GetPaymentStatus reads the stored payment row
func (p *BankTransferProvider) GetPaymentStatus(ctx context.Context, req provider.PaymentStatusRequest) (*provider.PaymentResult, error) {
	payment, failure, err := p.lookupPayment(ctx, req.TransactionID, provider.CodeStatusCheckFailed, "Failed to get payment status")
	if err != nil || failure != nil {
		return failure, err
	}

	status := payment.Status
	if !status.IsValid() {
		status = provider.StatusPending
	}

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         req.TransactionID,
		ProviderTransactionID: strconv.FormatInt(payment.ID, 10),
		Amount:                provider.Amount(payment.Amount),
		Currency:              currencyOr(payment.Currency, p.currency),
		Status:                status,
		Message:               fmt.Sprintf("Payment status: %s", payment.Status),
		Provider:              p.Name(),
	}, nil
}

// CreateSubscription stores a pending subscription for the internal plan
// req.PlanID. It activates when its first transfer is confirmed.
func (p *BankTransferProvider) CreateSubscription(ctx context.Context, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	if !p.IsConfigured() {
		return provider.NotConfiguredSubscription(p.Name(), displayName), nil
	}
	if p.store == nil {
		return p.subscriptionFailure(provider.CodeSubscriptionCreationFailed, "Failed to create subscription", errNoStore), nil
	}

	planID, err := strconv.ParseInt(req.PlanID, 10, 64)
	if err != nil {
		return p.subscriptionFailure(provider.CodeSubscriptionCreationFailed, "Failed to create subscription",
			fmt.Errorf("plan id %q is not numeric", req.PlanID)), nil
	}

	var userID int64
	if raw := req.Metadata["user_id"]; raw != "" {
		userID, _ = strconv.ParseInt(raw, 10, 64)
	}

	var (
		plan *provider.Plan
		sub  *provider.Subscription
	)
	err = p.store.WithTx(ctx, func(ctx context.Context, repo provider.Repository) error {
		var err error
		plan, err = repo.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return provider.ErrRecordNotFound
		}

		freq := provider.BillingMonthly
		if plan.YearlyPrice.IsPositive() {
			freq = provider.BillingYearly
		}

		now := p.now().UTC()
		sub = &provider.Subscription{
			UserID:           userID,
			PlanID:           plan.ID,
			BillingFrequency: freq,
			StartDate:        now,
			EndDate:          now.AddDate(0, 0, freq.PeriodDays()),
			AutoRenew:        true,
			Status:           provider.SubscriptionPending,
			PaymentProvider:  p.Name(),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return err
		}

		sub.ProviderSubscriptionID = fmt.Sprintf("%s%d", subscriptionPrefix, sub.ID)
		return repo.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		if errors.Is(err, provider.ErrRecordNotFound) {
			err = fmt.Errorf("plan %d not found", planID)
		}
		return p.subscriptionFailure(provider.CodeSubscriptionCreationFailed, "Failed to create subscription", err), nil
	}

	amount := plan.YearlyPrice
	if !amount.IsPositive() {
		amount = plan.MonthlyPrice
	}

	return &provider.SubscriptionResult{
		Success:                true,
		SubscriptionID:         sub.ID,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Status:                 string(provider.StatusPending),
		PlanID:                 req.PlanID,
		Message:                "Subscription created pending payment confirmation",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"instructions":             p.paymentInstructions(amount, p.currency, sub.ProviderSubscriptionID),
			"requires_manual_approval": true,
			"trial_days":               req.TrialDays,
		},
	}, nil
}

// CancelSubscription marks the stored subscription cancelled. With
// cancelAtPeriodEnd it stays active until its end date.
func (p *BankTransferProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string, cancelAtPeriodEnd bool) (*provider.SubscriptionResult, error) {
	sub, failure, err := p.lookupSubscription(ctx, providerSubscriptionID, provider.CodeCancellationFailed, "Failed to cancel subscription")
	if err != nil || failure != nil {
		return failure, err
	}

	sub.Status = provider.SubscriptionCancelled
	sub.AutoRenew = false
	if !cancelAtPeriodEnd {
		sub.IsActive = false
	}
	sub.UpdatedAt = p.now().UTC()

	if err := p.store.UpdateSubscription(ctx, sub); err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		return p.subscriptionFailure(provider.CodeCancellationFailed, "Failed to cancel subscription", err), nil
	}

	return &provider.SubscriptionResult{
		Success:                true,
		SubscriptionID:         sub.ID,
		ProviderSubscriptionID: providerSubscriptionID,
		Status:                 string(provider.SubscriptionCancelled),
		Message:                "Bank transfer subscription cancelled",
		Provider:               p.Name(),
	}, nil
}

// UpdateSubscription moves the stored subscription to another internal plan.
// Quantity has no meaning for bank transfers.
func (p *BankTransferProvider) UpdateSubscription(ctx context.Context, req provider.UpdateSubscriptionRequest) (*provider.SubscriptionResult, error) {
	if req.PlanID == "" {
		return &provider.SubscriptionResult{
			Success:  false,
			Status:   "failed",
			Message:  "Plan ID is required for subscription updates",
			Provider: p.Name(),
			Error:    provider.NewPaymentError(p.Name(), provider.CodeManualApprovalRequired, "Plan changes require manual approval"),
		}, nil
	}

	planID, err := strconv.ParseInt(req.PlanID, 10, 64)
	if err != nil {
		return p.subscriptionFailure(provider.CodeUpdateFailed, "Failed to update subscription",
			fmt.Errorf("plan id %q is not numeric", req.PlanID)), nil
	}

	sub, failure, err := p.lookupSubscription(ctx, req.ProviderSubscriptionID, provider.CodeUpdateFailed, "Failed to update subscription")
	if err != nil || failure != nil {
		return failure, err
	}

	plan, err := p.store.GetPlan(ctx, planID)
	if err == nil && !plan.IsActive {
		err = provider.ErrRecordNotFound
	}
	if err == nil {
		sub.PlanID = plan.ID
		sub.UpdatedAt = p.now().UTC()
		err = p.store.UpdateSubscription(ctx, sub)
	}
	if err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		if errors.Is(err, provider.ErrRecordNotFound) {
			err = fmt.Errorf("plan %d not found", planID)
		}
		return p.subscriptionFailure(provider.CodeUpdateFailed, "Failed to update subscription", err), nil
	}

	return &provider.SubscriptionResult{
		Success:                true,
		SubscriptionID:         sub.ID,
		ProviderSubscriptionID: req.ProviderSubscriptionID,
		Status:                 string(sub.Status),
		PlanID:                 req.PlanID,
		Message:                "Subscription updated - pending payment confirmation",
		Provider:               p.Name(),
		ProviderData: map[string]any{
			"requires_payment": true,
			"new_plan":         plan.Name,
		},
	}, nil
}

// RefundPayment records the refund on the stored payment. The money itself
// is sent back by hand.
func (p *BankTransferProvider) RefundPayment(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	payment, err := p.findPayment(ctx, req.TransactionID)
	if err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		code, message := provider.CodeRefundFailed, "Failed to process refund"
		if errors.Is(err, provider.ErrRecordNotFound) {
			code, message = provider.CodePaymentNotFound, "Payment not found"
			err = fmt.Errorf("payment %s not found", req.TransactionID)
		}
		return &provider.RefundResult{
			Success:  false,
			Status:   "failed",
			Message:  message,
			Provider: p.Name(),
			Error:    provider.NewPaymentError(p.Name(), code, err.Error()),
		}, nil
	}

	if payment.Status != provider.StatusCompleted && payment.Status != provider.StatusPartiallyRefunded {
		return p.refundRejected(fmt.Sprintf("payment %s is %s; only received payments can be refunded", req.TransactionID, payment.Status)), nil
	}

	amount := payment.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	switch {
	case !amount.IsPositive():
		return p.refundRejected("refund amount must be greater than zero"), nil
	case amount.GreaterThan(payment.Amount):
		return p.refundRejected(fmt.Sprintf("refund amount %s exceeds payment amount %s", amount, payment.Amount)), nil
	}

	payment.Status = provider.StatusRefunded
	if amount.LessThan(payment.Amount) {
		payment.Status = provider.StatusPartiallyRefunded
	}
	payment.UpdatedAt = p.now().UTC()

	if err := p.store.UpdatePayment(ctx, payment); err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		logger.Error("Bank transfer refund failed", err, logger.LogContext{Provider: p.Name()})
		return &provider.RefundResult{
			Success:  false,
			Status:   "failed",
			Message:  "Failed to process refund",
			Provider: p.Name(),
			Error:    provider.NewPaymentError(p.Name(), provider.CodeRefundFailed, err.Error()),
		}, nil
	}

	refundID := newReference(refundPrefix, 20)
	return &provider.RefundResult{
		Success:          true,
		RefundID:         refundID,
		ProviderRefundID: refundID,
		Amount:           provider.Amount(amount),
		Currency:         currencyOr(payment.Currency, p.currency),
		Status:           string(provider.StatusCompleted),
		Reason:           req.Reason,
		Message:          "Refund processed - manual transfer required",
		Provider:         p.Name(),
	}, nil
}

func (p *BankTransferProvider) refundRejected(reason string) *provider.RefundResult {
	return &provider.RefundResult{
		Success:  false,
		Status:   "failed",
		Message:  "Refund rejected",
		Provider: p.Name(),
		Error:    provider.NewPaymentError(p.Name(), provider.CodeInvalidRequest, reason),
	}
}

// ParseWebhook reads confirmation events posted by the admin system. There
// is no signature to check.
func (p *BankTransferProvider) ParseWebhook(_ context.Context, payload []byte, _ map[string]string) (*provider.WebhookEvent, error) {
	data := map[string]any{}
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, provider.NewPaymentError(p.Name(), provider.CodeInvalidPayload, "Invalid JSON payload").WithCause(err)
		}
	}

	eventID, _ := data["event_id"].(string)
	if eventID == "" {
		eventID = "manual_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	eventType, _ := data["event_type"].(string)
	if eventType == "" {
		eventType = defaultEventType
	}

	return &provider.WebhookEvent{
		EventID:    eventID,
		EventType:  eventType,
		Provider:   p.Name(),
		Payload:    data,
		ReceivedAt: p.now().UTC(),
	}, nil
}

// ConfirmManualPayment marks a transfer as received. Confirming twice is a
// no-op. A pending subscription linked to the payment is activated.
func (p *BankTransferProvider) ConfirmManualPayment(ctx context.Context, transactionID, confirmedBy, notes string) (*provider.PaymentResult, error) {
	if p.store == nil {
		return p.paymentFailure(provider.CodeConfirmationFailed, "Failed to confirm payment", errNoStore), nil
	}

	var (
		payment          *provider.Payment
		alreadyConfirmed bool
	)
	err := p.store.WithTx(ctx, func(ctx context.Context, repo provider.Repository) error {
		var err error
		payment, err = repo.GetPaymentByReference(ctx, transactionID)
		if err != nil {
			return err
		}
		if payment.Status == provider.StatusCompleted {
			alreadyConfirmed = true
			return nil
		}

		now := p.now().UTC()
		payment.Status = provider.StatusCompleted
		payment.PaymentResponse = strings.TrimSpace(fmt.Sprintf("Manually confirmed by admin %s. %s", confirmedBy, notes))
		payment.UpdatedBy = confirmedBy
		payment.UpdatedAt = now
		if err := repo.UpdatePayment(ctx, payment); err != nil {
			return err
		}

		if payment.SubscriptionID == 0 {
			return nil
		}
		sub, err := repo.GetSubscription(ctx, payment.SubscriptionID)
		if errors.Is(err, provider.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if sub.Status != provider.SubscriptionPending {
			return nil
		}
		sub.Status = provider.SubscriptionActive
		sub.IsActive = true
		sub.UpdatedAt = now
		return repo.UpdateSubscription(ctx, sub)
	})
	if err != nil {
		if provider.IsContextError(ctx, err) {
			return nil, ctx.Err()
		}
		if errors.Is(err, provider.ErrRecordNotFound) {
			return &provider.PaymentResult{
				Success:  false,
				Status:   provider.StatusFailed,
				Message:  "Payment not found",
				Provider: p.Name(),
				Error:    provider.NewPaymentError(p.Name(), provider.CodePaymentNotFound, fmt.Sprintf("Payment %s not found", transactionID)),
			}, nil
		}
		logger.Error("Manual payment confirmation failed", err, logger.LogContext{
			Provider: p.Name(),
			Fields:   map[string]any{"transaction_id": transactionID},
		})
		return p.paymentFailure(provider.CodeConfirmationFailed, "Failed to confirm payment", err), nil
	}

	if alreadyConfirmed {
		return &provider.PaymentResult{
			Success:       true,
			TransactionID: transactionID,
			Status:        provider.StatusCompleted,
			Message:       "Payment already confirmed",
			Provider:      p.Name(),
		}, nil
	}

	logger.Info("Bank transfer payment confirmed", logger.LogContext{
		Provider: p.Name(),
		Fields:   map[string]any{"transaction_id": transactionID, "confirmed_by": confirmedBy},
	})

	return &provider.PaymentResult{
		Success:               true,
		TransactionID:         transactionID,
		ProviderTransactionID: strconv.FormatInt(payment.ID, 10),
		Amount:                provider.Amount(payment.Amount),
		Currency:              currencyOr(payment.Currency, p.currency),
		Status:                provider.StatusCompleted,
		Message:               "Bank transfer payment confirmed",
		Provider:              p.Name(),
	}, nil
}

// lookupPayment returns the stored payment, or a failed result explaining
// why it could not be read
func (p *BankTransferProvider) lookupPayment(ctx context.Context, transactionID, code, message string) (*provider.Payment, *provider.PaymentResult, error) {
	payment, err := p.findPayment(ctx, transactionID)
	if err == nil {
		return payment, nil, nil
	}
	if provider.IsContextError(ctx, err) {
		return nil, nil, ctx.Err()
	}
	if errors.Is(err, provider.ErrRecordNotFound) {
		return nil, &provider.PaymentResult{
			Success:  false,
			Status:   provider.StatusFailed,
			Message:  "Payment not found",
			Provider: p.Name(),
			Error:    provider.NewPaymentError(p.Name(), provider.CodePaymentNotFound, fmt.Sprintf("Payment %s not found", transactionID)),
		}, nil
	}
	logger.Error(message, err, logger.LogContext{Provider: p.Name()})
	return nil, p.paymentFailure(code, message, err), nil
}

func (p *BankTransferProvider) findPayment(ctx context.Context, transactionID string) (*provider.Payment, error) {
	if p.store == nil {
		return nil, errNoStore
	}
	return p.store.GetPaymentByReference(ctx, transactionID)
}

// lookupSubscription resolves a bt_sub_<id> reference to the stored row
func (p *BankTransferProvider) lookupSubscription(ctx context.Context, providerSubscriptionID, code, message string) (*provider.Subscription, *provider.SubscriptionResult, error) {
	if p.store == nil {
		return nil, p.subscriptionFailure(code, message, errNoStore), nil
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(providerSubscriptionID, subscriptionPrefix), 10, 64)
	if err == nil {
		var sub *provider.Subscription
		sub, err = p.store.GetSubscription(ctx, id)
		if err == nil {
			return sub, nil, nil
		}
	}
	if provider.IsContextError(ctx, err) {
		return nil, nil, ctx.Err()
	}

	var numErr *strconv.NumError
	if errors.Is(err, provider.ErrRecordNotFound) || errors.As(err, &numErr) {
		return nil, &provider.SubscriptionResult{
			Success:  false,
			Status:   "failed",
			Message:  "Subscription not found",
			Provider: p.Name(),
			Error: provider.NewPaymentError(p.Name(), provider.CodeSubscriptionNotFound,
				fmt.Sprintf("Subscription %s not found", providerSubscriptionID)),
		}, nil
	}
	logger.Error(message, err, logger.LogContext{Provider: p.Name()})
	return nil, p.subscriptionFailure(code, message, err), nil
}

func (p *BankTransferProvider) paymentFailure(code, message string, err error) *provider.PaymentResult {
	return &provider.PaymentResult{
		Success:  false,
		Status:   provider.StatusFailed,
		Message:  message,
		Provider: p.Name(),
		Error:    provider.NewPaymentError(p.Name(), code, err.Error()),
	}
}

func (p *BankTransferProvider) subscriptionFailure(code, message string, err error) *provider.SubscriptionResult {
	return &provider.SubscriptionResult{
		Success:  false,
		Status:   "failed",
		Message:  message,
		Provider: p.Name(),
		Error:    provider.NewPaymentError(p.Name(), code, err.Error()),
	}
}

// paymentInstructions builds the structured instructions plus a formatted
// text block the customer can follow
func (p *BankTransferProvider) paymentInstructions(amount decimal.Decimal, currency, reference string) map[string]any {
	if reference == "" {
		reference = "Your unique reference"
	}
	currency = strings.ToUpper(currency)

	instructions := map[string]any{
		"provider":       p.Name(),
		"bank_name":      p.bankName,
		"account_name":   p.accountName,
		"account_number": p.accountNumber,
		"routing_number": p.routingNumber,
		"swift_code":     p.swiftCode,
		"iban":           p.iban,
		"amount":         amount.String(),
		"currency":       currency,
		"reference":      reference,
	}

	lines := []string{
		fmt.Sprintf("Please transfer %s %s", amount.String(), currency),
		"to the following bank account:",
		"",
		"Bank: " + p.bankName,
		"Account Name: " + p.accountName,
	}
	if p.accountNumber != "" {
		lines = append(lines, "Account Number: "+p.accountNumber)
	}
	if p.routingNumber != "" {
		lines = append(lines, "Routing Number: "+p.routingNumber)
	}
	if p.swiftCode != "" {
		lines = append(lines, "SWIFT Code: "+p.swiftCode)
	}
	if p.iban != "" {
		lines = append(lines, "IBAN: "+p.iban)
	}
	lines = append(lines, "", "Reference: "+reference)

	if p.instructions != "" {
		instructions["custom_instructions"] = p.instructions
		lines = append(lines, "", "Additional Instructions:", p.instructions)
	}

	instructions["formatted"] = strings.Join(lines, "\n")
	return instructions
}

// newReference returns prefix followed by n upper-case hex characters
func newReference(prefix string, n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(hex[:n])
}

func currencyOr(currency, fallback string) string {
	if currency != "" {
		return currency
	}
	return fallback
}
