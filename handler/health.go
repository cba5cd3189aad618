package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/mstgnz/paykit/infra/response"
)

const healthTimeout = 5 * time.Second

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderLister reports the registered and configured providers
type ProviderLister interface {
	DefaultProvider() string
	AvailableProviders() []string
	ConfiguredProviders() []string
}

// HealthHandler handles health check requests
type HealthHandler struct {
	providers   ProviderLister
	checks      map[string]Pinger
	environment string
	version     string
	startTime   time.Time
}

// HealthStatus represents overall system health
type HealthStatus struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version"`
	Timestamp   time.Time                 `json:"timestamp"`
	Uptime      string                    `json:"uptime"`
	Environment string                    `json:"environment"`
	Providers   []string                  `json:"providers"`
	Services    map[string]*ServiceHealth `json:"services"`
	Goroutines  int                       `json:"goroutines"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Healthy      bool   `json:"healthy"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// ProvidersInfo is the body of GET /v1/providers
type ProvidersInfo struct {
	Default    string   `json:"default"`
	Available  []string `json:"available"`
	Configured []string `json:"configured"`
}

// NewHealthHandler creates a new health handler. checks maps a service name
// (database, redis, opensearch) to its probe; nil probes are skipped.
func NewHealthHandler(providers ProviderLister, checks map[string]Pinger, environment, version string) *HealthHandler {
	filtered := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthHandler{
		providers:   providers,
		checks:      filtered,
		environment: environment,
		version:     version,
		startTime:   time.Now(),
	}
}

// CheckHealth answers 200 when every probe passes, 503 otherwise
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	health := &HealthStatus{
		Status:      "healthy",
		Version:     h.version,
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: h.environment,
		Services:    make(map[string]*ServiceHealth, len(h.checks)),
		Goroutines:  runtime.NumGoroutine(),
	}
	if h.providers != nil {
		health.Providers = h.providers.ConfiguredProviders()
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		start := time.Now()
		err := h.checks[name].Ping(ctx)
		svc := &ServiceHealth{
			Healthy:      err == nil,
			ResponseTime: time.Since(start).String(),
		}
		if err != nil {
			svc.Error = err.Error()
			health.Status = "unhealthy"
		}
		health.Services[name] = svc
	}

	if health.Status != "healthy" {
		response.Result(w, http.StatusServiceUnavailable, "Service unhealthy", health)
		return
	}
	response.Success(w, http.StatusOK, "Service healthy", health)
}

// ListProviders handles GET /v1/providers
func (h *HealthHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	if h.providers == nil {
		response.Error(w, http.StatusServiceUnavailable, "Payment manager not available", nil)
		return
	}
	response.Success(w, http.StatusOK, "Providers retrieved", ProvidersInfo{
		Default:    h.providers.DefaultProvider(),
		Available:  h.providers.AvailableProviders(),
		Configured: h.providers.ConfiguredProviders(),
	})
}
