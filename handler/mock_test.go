package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mstgnz/paykit/provider"
)

type mockService struct {
	mock.Mock
}

var _ PaymentService = (*mockService)(nil)

func (m *mockService) CreatePaymentIntent(ctx context.Context, providerName string, req provider.PaymentIntentRequest) (*provider.PaymentResult, error) {
	args := m.Called(ctx, providerName, req)
	return resultArg[provider.PaymentResult](args, 0), args.Error(1)
}

func (m *mockService) ConfirmPayment(ctx context.Context, providerName, paymentIntentID, paymentMethodID string) (*provider.PaymentResult, error) {
	args := m.Called(ctx, providerName, paymentIntentID, paymentMethodID)
	return resultArg[provider.PaymentResult](args, 0), args.Error(1)
}

func (m *mockService) GetPaymentStatus(ctx context.Context, providerName string, req provider.PaymentStatusRequest) (*provider.PaymentResult, error) {
	args := m.Called(ctx, providerName, req)
	return resultArg[provider.PaymentResult](args, 0), args.Error(1)
}

func (m *mockService) RefundPayment(ctx context.Context, providerName string, req provider.RefundRequest) (*provider.RefundResult, error) {
	args := m.Called(ctx, providerName, req)
	return resultArg[provider.RefundResult](args, 0), args.Error(1)
}

func (m *mockService) CreateSubscription(ctx context.Context, providerName string, req provider.SubscriptionRequest) (*provider.SubscriptionResult, error) {
	args := m.Called(ctx, providerName, req)
	return resultArg[provider.SubscriptionResult](args, 0), args.Error(1)
}

func (m *mockService) CancelSubscription(ctx context.Context, providerName, providerSubscriptionID string, cancelAtPeriodEnd bool) (*provider.SubscriptionResult, error) {
	args := m.Called(ctx, providerName, providerSubscriptionID, cancelAtPeriodEnd)
	return resultArg[provider.SubscriptionResult](args, 0), args.Error(1)
}

func (m *mockService) UpdateSubscription(ctx context.Context, providerName string, req provider.UpdateSubscriptionRequest) (*provider.SubscriptionResult, error) {
	args := m.Called(ctx, providerName, req)
	return resultArg[provider.SubscriptionResult](args, 0), args.Error(1)
}

func (m *mockService) RegisterUserWithSubscription(ctx context.Context, req provider.RegistrationRequest) (*provider.RegistrationResult, error) {
	args := m.Called(ctx, req)
	return resultArg[provider.RegistrationResult](args, 0), args.Error(1)
}

func (m *mockService) ConfirmBankTransfer(ctx context.Context, transactionID, confirmedBy, notes string) (*provider.PaymentResult, error) {
	args := m.Called(ctx, transactionID, confirmedBy, notes)
	return resultArg[provider.PaymentResult](args, 0), args.Error(1)
}

func (m *mockService) ProcessWebhook(ctx context.Context, providerName string, payload []byte, headers map[string]string) (*provider.WebhookResult, error) {
	args := m.Called(ctx, providerName, payload, headers)
	return resultArg[provider.WebhookResult](args, 0), args.Error(1)
}

func (m *mockService) DefaultProvider() string {
	return m.Called().String(0)
}

func (m *mockService) AvailableProviders() []string {
	return m.Called().Get(0).([]string)
}

func (m *mockService) ConfiguredProviders() []string {
	return m.Called().Get(0).([]string)
}

func resultArg[T any](args mock.Arguments, i int) *T {
	v, _ := args.Get(i).(*T)
	return v
}
