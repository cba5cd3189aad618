package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mstgnz/paykit/infra/logger"
)

// Observer receives operation outcomes, typically to feed metrics
type Observer interface {
	ObserveOperation(providerName, operation, outcome string, elapsed time.Duration)
	ObserveWebhook(providerName, status string)
	ObserveRegistration(outcome string)
}

// AuditSink records processed webhook events
type AuditSink interface {
	RecordWebhook(ctx context.Context, event *WebhookEvent, result *WebhookResult) error
}

// WebhookDeduper suppresses redelivered webhook events. Claim returns true
// for the first caller of a key; Release gives the key back when handling
// failed so a redelivery can retry it.
type WebhookDeduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// ManualConfirmer is implemented by providers whose payments are confirmed
// by an operator rather than by the provider itself
type ManualConfirmer interface {
	ConfirmManualPayment(ctx context.Context, transactionID, confirmedBy, notes string) (*PaymentResult, error)
}

// Operation outcomes reported to the Observer
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// ErrNoStore is returned by operations that need persistence when the
// manager was built without a Store
var ErrNoStore = errors.New("payment manager has no store configured")

// PaymentManager routes payment operations to providers. It resolves the
// provider per call, caches initialized instances, processes webhooks and
// runs the registration workflow.
type PaymentManager struct {
	registry        *ProviderRegistry
	configs         ConfigSource
	defaultProvider string

	store    Store
	observer Observer
	audit    []AuditSink
	deduper  WebhookDeduper
	cache    ProviderCache
	now      func() time.Time

	mu sync.Mutex
}

// ManagerOption configures a PaymentManager
type ManagerOption func(*PaymentManager)

// WithDefaultProvider sets the provider used when none is named or detected
func WithDefaultProvider(name string) ManagerOption {
	return func(m *PaymentManager) {
		if name != "" {
			m.defaultProvider = strings.ToLower(name)
		}
	}
}

// WithStore enables persistence backed operations
func WithStore(store Store) ManagerOption {
	return func(m *PaymentManager) { m.store = store }
}

// WithObserver reports operation outcomes to o
func WithObserver(o Observer) ManagerOption {
	return func(m *PaymentManager) { m.observer = o }
}

// WithAuditSink appends a sink that records processed webhooks
func WithAuditSink(sink AuditSink) ManagerOption {
	return func(m *PaymentManager) {
		if sink != nil {
			m.audit = append(m.audit, sink)
		}
	}
}

// WithWebhookDeduper suppresses redelivered webhook events
func WithWebhookDeduper(d WebhookDeduper) ManagerOption {
	return func(m *PaymentManager) { m.deduper = d }
}

// WithProviderCache replaces the default provider cache
func WithProviderCache(c ProviderCache) ManagerOption {
	return func(m *PaymentManager) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ManagerOption {
	return func(m *PaymentManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewPaymentManager creates a manager over registry. configs supplies each
// provider's configuration the first time it is used.
func NewPaymentManager(registry *ProviderRegistry, configs ConfigSource, opts ...ManagerOption) *PaymentManager {
	m := &PaymentManager{
		registry:        registry,
		configs:         configs,
		defaultProvider: Stripe,
		cache:           NewProviderCache(16, 0),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultProvider returns the fallback provider name
func (m *PaymentManager) DefaultProvider() string {
	return m.defaultProvider
}

// Provider returns the initialized provider for name, creating it on first
// use. An empty name selects the default provider.
func (m *PaymentManager) Provider(name string) (PaymentProvider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = m.defaultProvider
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.cache.Get(name); p != nil {
		return p, nil
	}

	var config map[string]string
	if m.configs != nil {
		config = m.configs.ProviderConfig(name)
	}

	p, err := m.registry.Create(name, config)
	if err != nil {
		return nil, err
	}
	m.cache.Set(name, p)
	return p, nil
}

// DetectProvider maps a transaction id to a provider name by its shape,
// falling back to the default provider
func (m *PaymentManager) DetectProvider(transactionID string) string {
	return DetectProvider(transactionID, m.defaultProvider)
}

// AvailableProviders lists every registered provider
func (m *PaymentManager) AvailableProviders() []string {
	return m.registry.AvailableProviders()
}

// ConfiguredProviders lists the providers usable with the manager's configuration
func (m *PaymentManager) ConfiguredProviders() []string {
	return m.registry.ConfiguredProviders(m.configs)
}

// CalculateProratedAmount prorates amount over a 30-day period
func (m *PaymentManager) CalculateProratedAmount(amount decimal.Decimal, daysRemaining int) decimal.Decimal {
	return CalculateProratedAmount(amount, daysRemaining)
}

// resolveForTransaction picks the provider for an existing transaction:
// explicit name, then the provider stored with the payment row, then the
// id-shape heuristic.
func (m *PaymentManager) resolveForTransaction(ctx context.Context, explicit, transactionID string) (PaymentProvider, error) {
	if explicit != "" {
		return m.Provider(explicit)
	}

	if m.store != nil && transactionID != "" {
		payment, err := m.store.GetPaymentByReference(ctx, transactionID)
		switch {
		case err == nil && payment.PaymentMethod != "":
			return m.Provider(payment.PaymentMethod)
		case err != nil && !errors.Is(err, ErrRecordNotFound):
			logger.Warn("Stored payment lookup failed, falling back to id detection", logger.LogContext{
				Fields: map[string]any{"transaction_id": transactionID, "error": err.Error()},
			})
		}
	}

	return m.Provider(m.DetectProvider(transactionID))
}

// CreatePaymentIntent starts a one-time charge with providerName, or the default provider
func (m *PaymentManager) CreatePaymentIntent(ctx context.Context, providerName string, req PaymentIntentRequest) (*PaymentResult, error) {
	p, err := m.Provider(providerName)
	if err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() {
		return &PaymentResult{
			Success:  false,
			Status:   StatusFailed,
			Message:  "Amount must be greater than zero",
			Provider: p.Name(),
			Error:    NewPaymentError(p.Name(), CodeInvalidRequest, "amount must be greater than zero"),
		}, nil
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	start := m.now()
	result, err := p.CreatePaymentIntent(ctx, req)
	m.observePayment(p.Name(), "create_payment_intent", start, result, err)
	return result, err
}

// ConfirmPayment finalizes an intent. An empty providerName resolves the
// provider from the transaction.
func (m *PaymentManager) ConfirmPayment(ctx context.Context, providerName, paymentIntentID, paymentMethodID string) (*PaymentResult, error) {
	p, err := m.resolveForTransaction(ctx, providerName, paymentIntentID)
	if err != nil {
		return nil, err
	}

	start := m.now()
	result, err := p.ConfirmPayment(ctx, paymentIntentID, paymentMethodID)
	m.observePayment(p.Name(), "confirm_payment", start, result, err)
	return result, err
}

// GetPaymentStatus polls a transaction. An empty providerName resolves the
// provider from the transaction.
func (m *PaymentManager) GetPaymentStatus(ctx context.Context, providerName string, req PaymentStatusRequest) (*PaymentResult, error) {
	p, err := m.resolveForTransaction(ctx, providerName, req.TransactionID)
	if err != nil {
		return nil, err
	}

	start := m.now()
	result, err := p.GetPaymentStatus(ctx, req)
	m.observePayment(p.Name(), "get_payment_status", start, result, err)
	return result, err
}

// RefundPayment refunds a transaction. An empty providerName resolves the
// provider from the transaction.
func (m *PaymentManager) RefundPayment(ctx context.Context, providerName string, req RefundRequest) (*RefundResult, error) {
	p, err := m.resolveForTransaction(ctx, providerName, req.TransactionID)
	if err != nil {
		return nil, err
	}

	if req.Amount != nil && !req.Amount.IsPositive() {
		return &RefundResult{
			Success:  false,
			Status:   "failed",
			Message:  "Refund amount must be greater than zero",
			Provider: p.Name(),
			Error:    NewPaymentError(p.Name(), CodeInvalidRequest, "refund amount must be greater than zero"),
		}, nil
	}

	start := m.now()
	result, err := p.RefundPayment(ctx, req)
	outcome := outcomeOf(err, result != nil && result.Success)
	m.observe(p.Name(), "refund_payment", outcome, start)
	if result != nil && !result.FailureExplained() {
		m.warnUnexplained(p.Name(), "refund_payment")
	}
	return result, err
}

// CreateSubscription starts recurring billing with providerName, or the default provider
func (m *PaymentManager) CreateSubscription(ctx context.Context, providerName string, req SubscriptionRequest) (*SubscriptionResult, error) {
	p, err := m.Provider(providerName)
	if err != nil {
		return nil, err
	}

	start := m.now()
	result, err := p.CreateSubscription(ctx, req)
	m.observeSubscription(p.Name(), "create_subscription", start, result, err)
	return result, err
}

// CancelSubscription stops recurring billing now or at period end
func (m *PaymentManager) CancelSubscription(ctx context.Context, providerName, providerSubscriptionID string, cancelAtPeriodEnd bool) (*SubscriptionResult, error) {
	p, err := m.Provider(providerName)
	if err != nil {
		return nil, err
	}

	start := m.now()
	result, err := p.CancelSubscription(ctx, providerSubscriptionID, cancelAtPeriodEnd)
	m.observeSubscription(p.Name(), "cancel_subscription", start, result, err)
	return result, err
}

// UpdateSubscription changes the plan or quantity of a subscription
func (m *PaymentManager) UpdateSubscription(ctx context.Context, providerName string, req UpdateSubscriptionRequest) (*SubscriptionResult, error) {
	p, err := m.Provider(providerName)
	if err != nil {
		return nil, err
	}

	start := m.now()
	result, err := p.UpdateSubscription(ctx, req)
	m.observeSubscription(p.Name(), "update_subscription", start, result, err)
	return result, err
}

// ConfirmBankTransfer marks a manual payment as received. It only applies
// to providers that support operator confirmation.
func (m *PaymentManager) ConfirmBankTransfer(ctx context.Context, transactionID, confirmedBy, notes string) (*PaymentResult, error) {
	p, err := m.Provider(BankTransfer)
	if err != nil {
		return nil, err
	}

	confirmer, ok := p.(ManualConfirmer)
	if !ok {
		return nil, NewPaymentError(p.Name(), CodeNotSupported, "provider does not support manual confirmation")
	}

	start := m.now()
	result, err := confirmer.ConfirmManualPayment(ctx, transactionID, confirmedBy, notes)
	m.observePayment(p.Name(), "confirm_manual_payment", start, result, err)
	return result, err
}

// ParseWebhook authenticates and normalizes a notification for providerName
func (m *PaymentManager) ParseWebhook(ctx context.Context, providerName string, payload []byte, headers map[string]string) (*WebhookEvent, error) {
	p, err := m.Provider(providerName)
	if err != nil {
		return nil, err
	}
	event, err := p.ParseWebhook(ctx, payload, headers)
	if err != nil {
		return nil, err
	}
	if event.Provider == "" {
		event.Provider = p.Name()
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = m.now().UTC()
	}
	return event, nil
}

// HandleWebhook dispatches a parsed event through the provider and, when a
// store is configured, reconciles the stored payment and subscription rows.
// A reconciled event reports the reconciliation outcome.
func (m *PaymentManager) HandleWebhook(ctx context.Context, event *WebhookEvent) (*WebhookResult, error) {
	if event == nil {
		return nil, NewPaymentError("", CodeInvalidPayload, "webhook event is nil")
	}

	p, err := m.Provider(event.Provider)
	if err != nil {
		return nil, err
	}

	result, err := p.HandleWebhookEvent(ctx, event)
	if err != nil {
		return nil, err
	}

	if m.store == nil {
		return result, nil
	}

	reconciled, err := m.reconcile(ctx, event)
	if err != nil {
		return nil, err
	}
	if reconciled != nil {
		return reconciled, nil
	}
	return result, nil
}

// ProcessWebhook runs the full webhook pipeline: parse, de-duplicate,
// dispatch and reconcile, mark processed, then record the event with every
// audit sink. A redelivered event returns a duplicate result without side
// effects.
func (m *PaymentManager) ProcessWebhook(ctx context.Context, providerName string, payload []byte, headers map[string]string) (*WebhookResult, error) {
	event, err := m.ParseWebhook(ctx, providerName, payload, headers)
	if err != nil {
		m.observeWebhook(providerName, "rejected")
		return nil, err
	}

	dedupeKey := ""
	if m.deduper != nil && event.EventID != "" {
		dedupeKey = event.Provider + ":" + event.EventID
		first, err := m.deduper.Claim(ctx, dedupeKey)
		switch {
		case err != nil:
			// fail open: a missed duplicate is cheaper than a dropped event
			logger.Warn("Webhook de-duplication unavailable", logger.LogContext{
				Provider: event.Provider,
				Fields:   map[string]any{"event_id": event.EventID, "error": err.Error()},
			})
			dedupeKey = ""
		case !first:
			m.observeWebhook(event.Provider, WebhookDuplicate)
			return &WebhookResult{
				Status:    WebhookDuplicate,
				Message:   "Event already processed",
				EventType: event.EventType,
			}, nil
		}
	}

	result, err := m.HandleWebhook(ctx, event)
	if err != nil {
		if dedupeKey != "" {
			if relErr := m.deduper.Release(context.WithoutCancel(ctx), dedupeKey); relErr != nil {
				logger.Error("Failed to release webhook claim", relErr, logger.LogContext{Provider: event.Provider})
			}
		}
		m.observeWebhook(event.Provider, OutcomeError)
		return nil, err
	}

	event.MarkProcessed()

	for _, sink := range m.audit {
		if err := sink.RecordWebhook(ctx, event, result); err != nil {
			logger.Error("Failed to record webhook event", err, logger.LogContext{
				Provider: event.Provider,
				Fields:   map[string]any{"event_id": event.EventID},
			})
		}
	}

	m.observeWebhook(event.Provider, result.Status)
	return result, nil
}

// RegistrationRequest describes a new subscription for an existing user
type RegistrationRequest struct {
	User             User             `json:"user" validate:"required"`
	PlanID           int64            `json:"planId" validate:"required,gt=0"`
	PaymentMethod    string           `json:"paymentMethod"`
	BillingFrequency BillingFrequency `json:"billingFrequency"`
	TrialDays        int              `json:"trialDays,omitempty" validate:"gte=0"`
}

// RegistrationResult carries the rows written by RegisterUserWithSubscription
type RegistrationResult struct {
	Subscription  *Subscription  `json:"subscription"`
	Payment       *Payment       `json:"payment"`
	PaymentResult *PaymentResult `json:"paymentResult,omitempty"`
}

// RegisterUserWithSubscription creates a subscription and its first payment
// in one transaction. Paid plans create a payment intent with the chosen
// provider and record it as pending whatever the provider answered; free
// plans record a completed zero payment without contacting a provider. Any
// returned error leaves no rows behind.
func (m *PaymentManager) RegisterUserWithSubscription(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = m.defaultProvider
	}
	if req.BillingFrequency == "" {
		req.BillingFrequency = BillingMonthly
	}

	var out *RegistrationResult
	err := m.store.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		plan, err := repo.GetPlan(ctx, req.PlanID)
		if err != nil {
			return fmt.Errorf("plan %d: %w", req.PlanID, err)
		}
		if !plan.IsActive {
			return fmt.Errorf("plan %d: %w", req.PlanID, ErrRecordNotFound)
		}

		now := m.now().UTC()
		sub := &Subscription{
			UserID:           req.User.ID,
			PlanID:           plan.ID,
			BillingFrequency: req.BillingFrequency,
			StartDate:        now,
			EndDate:          now.AddDate(0, 0, req.BillingFrequency.PeriodDays()),
			AutoRenew:        true,
			Status:           SubscriptionActive,
			IsActive:         true,
			PaymentProvider:  strings.ToLower(req.PaymentMethod),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}

		amount := plan.PriceFor(req.BillingFrequency)
		payment := &Payment{
			SubscriptionID: sub.ID,
			Currency:       "USD",
			PaymentDate:    now,
			PaymentMethod:  sub.PaymentProvider,
			CreatedAt:      now,
			UpdatedAt:      now,
			UpdatedBy:      strconv.FormatInt(req.User.ID, 10),
		}

		var intent *PaymentResult
		if amount.IsPositive() {
			metadata := map[string]string{
				"subscription_id": strconv.FormatInt(sub.ID, 10),
				"user_id":         strconv.FormatInt(req.User.ID, 10),
				"plan_id":         strconv.FormatInt(plan.ID, 10),
			}
			if req.TrialDays > 0 {
				metadata["trial_days"] = strconv.Itoa(req.TrialDays)
			}

			intent, err = m.CreatePaymentIntent(ctx, req.PaymentMethod, PaymentIntentRequest{
				Amount:        amount,
				Currency:      "USD",
				Description:   fmt.Sprintf("%s - %s", plan.Name, req.BillingFrequency),
				Metadata:      metadata,
				CustomerEmail: req.User.Email,
			})
			if err != nil {
				return fmt.Errorf("create payment intent: %w", err)
			}

			payment.Amount = amount
			payment.ReferenceNumber = intent.TransactionID
			payment.Status = StatusPending
			payment.PaymentResponse = intent.Message
		} else {
			payment.Amount = decimal.Zero
			payment.ReferenceNumber = fmt.Sprintf("free_%d", sub.ID)
			payment.Status = StatusCompleted
			payment.PaymentResponse = "Free trial subscription"
		}

		if err := repo.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		out = &RegistrationResult{Subscription: sub, Payment: payment, PaymentResult: intent}
		return nil
	})

	if err != nil {
		m.observeRegistration(OutcomeError)
		logger.Error("Failed to register user subscription", err, logger.LogContext{
			Fields: map[string]any{"user_id": req.User.ID, "plan_id": req.PlanID},
		})
		return nil, err
	}

	m.observeRegistration(OutcomeSuccess)
	return out, nil
}

func (m *PaymentManager) observePayment(providerName, operation string, start time.Time, result *PaymentResult, err error) {
	m.observe(providerName, operation, outcomeOf(err, result != nil && result.Success), start)
	if result != nil && !result.FailureExplained() {
		m.warnUnexplained(providerName, operation)
	}
}

func (m *PaymentManager) observeSubscription(providerName, operation string, start time.Time, result *SubscriptionResult, err error) {
	m.observe(providerName, operation, outcomeOf(err, result != nil && result.Success), start)
	if result != nil && !result.FailureExplained() {
		m.warnUnexplained(providerName, operation)
	}
}

func (m *PaymentManager) observe(providerName, operation, outcome string, start time.Time) {
	if m.observer == nil {
		return
	}
	m.observer.ObserveOperation(providerName, operation, outcome, m.now().Sub(start))
}

func (m *PaymentManager) observeWebhook(providerName, status string) {
	if m.observer != nil {
		m.observer.ObserveWebhook(strings.ToLower(providerName), status)
	}
}

func (m *PaymentManager) observeRegistration(outcome string) {
	if m.observer != nil {
		m.observer.ObserveRegistration(outcome)
	}
}

func (m *PaymentManager) warnUnexplained(providerName, operation string) {
	logger.Warn("Provider returned a failed result without error or message", logger.LogContext{
		Provider: providerName,
		Fields:   map[string]any{"operation": operation},
	})
}

func outcomeOf(err error, success bool) string {
	switch {
	case err != nil:
		return OutcomeError
	case success:
		return OutcomeSuccess
	default:
		return OutcomeFailure
	}
}
