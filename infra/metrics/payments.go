package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mstgnz/paykit/provider"
)

func init() {
	register(
		operationsTotal,
		operationSeconds,
		webhookEventsTotal,
		registrationsTotal,
	)
}

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paykit_provider_operations_total",
			Help: "Provider operations by outcome (success/failure/error).",
		},
		[]string{"provider", "operation", "outcome"},
	)

	operationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paykit_provider_operation_seconds",
			Help:    "Provider operation latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paykit_webhook_events_total",
			Help: "Webhook deliveries by handling status.",
		},
		[]string{"provider", "status"},
	)

	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paykit_registrations_total",
			Help: "Registration workflow runs by outcome.",
		},
		[]string{"outcome"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Observer feeds payment manager outcomes into the Prometheus collectors
type Observer struct{}

var _ provider.Observer = Observer{}

// NewObserver registers the collectors and returns an observer for them
func NewObserver() Observer {
	MustRegister()
	return Observer{}
}

func (Observer) ObserveOperation(providerName, operation, outcome string, elapsed time.Duration) {
	operationsTotal.WithLabelValues(norm(providerName), norm(operation), norm(outcome)).Inc()
	operationSeconds.WithLabelValues(norm(providerName), norm(operation)).Observe(elapsed.Seconds())
}

func (Observer) ObserveWebhook(providerName, status string) {
	webhookEventsTotal.WithLabelValues(norm(providerName), norm(status)).Inc()
}

func (Observer) ObserveRegistration(outcome string) {
	registrationsTotal.WithLabelValues(norm(outcome)).Inc()
}
