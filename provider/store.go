package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionStatus is the lifecycle state of a stored subscription
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "Active"
	SubscriptionPending   SubscriptionStatus = "Pending"
	SubscriptionSuspended SubscriptionStatus = "Suspended"
	SubscriptionCancelled SubscriptionStatus = "Cancelled"
	SubscriptionExpired   SubscriptionStatus = "Expired"
)

// BillingFrequency is how often a subscription renews
type BillingFrequency string

const (
	BillingMonthly   BillingFrequency = "Monthly"
	BillingYearly    BillingFrequency = "Yearly"
	BillingWeekly    BillingFrequency = "Weekly"
	BillingQuarterly BillingFrequency = "Quarterly"
)

// PeriodDays returns the fixed number of days one billing period lasts.
// Unknown frequencies bill monthly.
func (f BillingFrequency) PeriodDays() int {
	switch f {
	case BillingYearly:
		return 365
	case BillingWeekly:
		return 7
	case BillingQuarterly:
		return 90
	default:
		return 30
	}
}

// Plan is a priced subscription offering
type Plan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	MonthlyPrice decimal.Decimal `json:"monthlyPrice"`
	YearlyPrice  decimal.Decimal `json:"yearlyPrice"`
	IsActive     bool            `json:"isActive"`
}

// PriceFor returns the charge for one period of the given frequency
func (p *Plan) PriceFor(freq BillingFrequency) decimal.Decimal {
	if freq == BillingYearly {
		return p.YearlyPrice
	}
	return p.MonthlyPrice
}

// Subscription is a stored subscription row
type Subscription struct {
	ID                     int64              `json:"id"`
	UserID                 int64              `json:"userId"`
	PlanID                 int64              `json:"planId"`
	BillingFrequency       BillingFrequency   `json:"billingFrequency"`
	StartDate              time.Time          `json:"startDate"`
	EndDate                time.Time          `json:"endDate"`
	AutoRenew              bool               `json:"autoRenew"`
	Status                 SubscriptionStatus `json:"status"`
	IsActive               bool               `json:"isActive"`
	PaymentProvider        string             `json:"paymentProvider"`
	ProviderSubscriptionID string             `json:"providerSubscriptionId,omitempty"`
	CreatedAt              time.Time          `json:"createdAt"`
	UpdatedAt              time.Time          `json:"updatedAt"`
}

// Payment is a stored payment row. ReferenceNumber holds the provider
// transaction id.
type Payment struct {
	ID              int64           `json:"id"`
	SubscriptionID  int64           `json:"subscriptionId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentDate     time.Time       `json:"paymentDate"`
	PaymentMethod   string          `json:"paymentMethod"`
	ReferenceNumber string          `json:"referenceNumber"`
	Status          PaymentStatus   `json:"status"`
	PaymentResponse string          `json:"paymentResponse,omitempty"`
	UpdatedBy       string          `json:"updatedBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// User identifies the account a subscription is registered for
type User struct {
	ID    int64  `json:"id" validate:"required,gt=0"`
	Email string `json:"email" validate:"required,email"`
}

// Repository is the persistence surface the payment core writes through.
// Lookups return ErrRecordNotFound when no row matches.
type Repository interface {
	GetPlan(ctx context.Context, id int64) (*Plan, error)

	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id int64) (*Subscription, error)
	GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error

	CreatePayment(ctx context.Context, payment *Payment) error
	GetPaymentByReference(ctx context.Context, reference string) (*Payment, error)
	UpdatePayment(ctx context.Context, payment *Payment) error
}

// Store is a Repository that can run a unit of work atomically. Writes
// made through the Repository passed to fn are rolled back when fn
// returns an error.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
