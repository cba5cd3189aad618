package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mstgnz/paykit/infra/logger"
)

// ProviderRegistry maps lowercase provider names to factories. It is built
// once at start-up and handed to the PaymentManager.
type ProviderRegistry struct {
	providers map[string]ProviderFactory
	mu        sync.RWMutex
}

// NewProviderRegistry creates an empty provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register adds a provider factory. The factory must produce a non-nil
// provider whose Name matches the registered name.
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("provider '%s': factory cannot be nil", key)
	}

	probe := factory()
	if probe == nil {
		return fmt.Errorf("provider '%s': factory returned nil", key)
	}
	if probe.Name() != key {
		return fmt.Errorf("provider '%s': factory builds '%s'", key, probe.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = factory
	return nil
}

// Get retrieves a provider factory by name (case-insensitive)
func (r *ProviderRegistry) Get(name string) (ProviderFactory, error) {
	r.mu.RLock()
	factory, exists := r.providers[strings.ToLower(name)]
	r.mu.RUnlock()

	if !exists {
		return nil, &PaymentError{
			Code:     CodeProviderNotFound,
			Message:  fmt.Sprintf("Unknown payment provider: %s. Available providers: %s", name, strings.Join(r.AvailableProviders(), ", ")),
			Provider: "registry",
		}
	}

	return factory, nil
}

// Create builds and initializes a provider. A provider that is not fully
// configured is still returned; it answers PROVIDER_NOT_CONFIGURED per call.
func (r *ProviderRegistry) Create(name string, config map[string]string) (PaymentProvider, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	p := factory()
	if config == nil {
		config = map[string]string{}
	}
	if err := p.Initialize(config); err != nil {
		return nil, NewPaymentError(p.Name(), CodeProviderNotConfigured, err.Error()).WithCause(err)
	}

	if !p.IsConfigured() {
		logger.Warn("Payment provider is not properly configured", logger.LogContext{
			Provider: p.Name(),
			Fields: map[string]any{
				"missing": MissingRequiredFields(config, p.RequiredConfig()),
			},
		})
	}

	return p, nil
}

// AvailableProviders returns every registered name, sorted
func (r *ProviderRegistry) AvailableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ConfiguredProviders returns the registered names whose provider reports
// IsConfigured with the given configuration. Construction failures count
// as not configured.
func (r *ProviderRegistry) ConfiguredProviders(configs ConfigSource) []string {
	var configured []string
	for _, name := range r.AvailableProviders() {
		if r.probe(name, configs) {
			configured = append(configured, name)
		}
	}
	return configured
}

func (r *ProviderRegistry) probe(name string, configs ConfigSource) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("Provider probe panicked", logger.LogContext{
				Provider: name,
				Fields:   map[string]any{"panic": fmt.Sprint(rec)},
			})
			ok = false
		}
	}()

	var config map[string]string
	if configs != nil {
		config = configs.ProviderConfig(name)
	}

	p, err := r.Create(name, config)
	if err != nil {
		return false
	}
	return p.IsConfigured()
}
