package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/paykit/provider"
)

func TestObserver_ObserveOperation(t *testing.T) {
	o := NewObserver()
	counter := operationsTotal.WithLabelValues("stripe", "create_payment_intent", "success")
	before := testutil.ToFloat64(counter)

	o.ObserveOperation(" Stripe ", "create_payment_intent", provider.OutcomeSuccess, 120*time.Millisecond)
	o.ObserveOperation("stripe", "CREATE_PAYMENT_INTENT", provider.OutcomeSuccess, 80*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(operationSeconds), 1)
}

func TestObserver_ObserveWebhook(t *testing.T) {
	o := NewObserver()
	tests := []struct {
		provider string
		status   string
	}{
		{"paypal", provider.WebhookProcessed},
		{"paypal", provider.WebhookIgnored},
		{"apple_iap", provider.OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"_"+tt.status, func(t *testing.T) {
			counter := webhookEventsTotal.WithLabelValues(tt.provider, tt.status)
			before := testutil.ToFloat64(counter)
			o.ObserveWebhook(tt.provider, tt.status)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestObserver_ObserveRegistration(t *testing.T) {
	o := NewObserver()
	counter := registrationsTotal.WithLabelValues(provider.OutcomeFailure)
	before := testutil.ToFloat64(counter)

	o.ObserveRegistration("FAILURE")
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMustRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}

func TestHandler(t *testing.T) {
	NewObserver().ObserveRegistration(provider.OutcomeSuccess)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "paykit_registrations_total")
}
