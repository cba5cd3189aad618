package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// providerEnv maps each provider's config keys to environment variables
var providerEnv = map[string]map[string]string{
	"stripe": {
		"enabled":         "STRIPE_ENABLED",
		"secret_key":      "STRIPE_SECRET_KEY",
		"publishable_key": "STRIPE_PUBLISHABLE_KEY",
		"webhook_secret":  "STRIPE_WEBHOOK_SECRET",
		"api_version":     "STRIPE_API_VERSION",
		"api_base":        "STRIPE_API_BASE",
	},
	"paypal": {
		"enabled":       "PAYPAL_ENABLED",
		"client_id":     "PAYPAL_CLIENT_ID",
		"client_secret": "PAYPAL_CLIENT_SECRET",
		"mode":          "PAYPAL_MODE",
		"webhook_id":    "PAYPAL_WEBHOOK_ID",
		"currency":      "PAYPAL_CURRENCY",
		"return_url":    "PAYPAL_RETURN_URL",
		"cancel_url":    "PAYPAL_CANCEL_URL",
		"brand_name":    "PAYPAL_BRAND_NAME",
		"api_base":      "PAYPAL_API_BASE",
	},
	"bank_transfer": {
		"bank_name":      "BANK_TRANSFER_BANK_NAME",
		"account_name":   "BANK_TRANSFER_ACCOUNT_NAME",
		"account_number": "BANK_TRANSFER_ACCOUNT_NUMBER",
		"routing_number": "BANK_TRANSFER_ROUTING_NUMBER",
		"swift_code":     "BANK_TRANSFER_SWIFT_CODE",
		"iban":           "BANK_TRANSFER_IBAN",
		"instructions":   "BANK_TRANSFER_INSTRUCTIONS",
		"currency":       "BANK_TRANSFER_CURRENCY",
	},
	"apple_iap": {
		"bundle_id":     "APPLE_IAP_BUNDLE_ID",
		"shared_secret": "APPLE_IAP_SHARED_SECRET",
		"sandbox":       "APPLE_IAP_SANDBOX",
		"api_base":      "APPLE_IAP_API_BASE",
	},
	"google_play": {
		"package_name":         "GOOGLE_PLAY_PACKAGE_NAME",
		"service_account_json": "GOOGLE_PLAY_SERVICE_ACCOUNT_JSON",
		"credentials_path":     "GOOGLE_PLAY_CREDENTIALS_PATH",
		"timeout":              "GOOGLE_PLAY_TIMEOUT",
		"api_base":             "GOOGLE_PLAY_API_BASE",
	},
}

// ProviderConfig manages payment provider configurations. It satisfies
// provider.ConfigSource.
type ProviderConfig struct {
	configs map[string]map[string]string
	mu      sync.RWMutex
}

// NewProviderConfig creates a provider configuration populated from the
// environment
func NewProviderConfig() *ProviderConfig {
	c := &ProviderConfig{
		configs: make(map[string]map[string]string),
	}
	c.LoadFromEnv()
	return c
}

// LoadFromEnv replaces every known provider's configuration with the values
// found in the environment. Unset variables are left out of the map.
func (c *ProviderConfig) LoadFromEnv() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, keys := range providerEnv {
		config := make(map[string]string)
		for key, env := range keys {
			if value := strings.TrimSpace(os.Getenv(env)); value != "" {
				config[key] = value
			}
		}
		if len(config) > 0 {
			c.configs[name] = config
		} else {
			delete(c.configs, name)
		}
	}
}

// SetConfig replaces the configuration of a provider
func (c *ProviderConfig) SetConfig(providerName string, config map[string]string) error {
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if len(config) == 0 {
		return fmt.Errorf("config cannot be empty")
	}

	configCopy := make(map[string]string, len(config))
	for k, v := range config {
		configCopy[k] = v
	}

	c.mu.Lock()
	c.configs[name] = configCopy
	c.mu.Unlock()
	return nil
}

// ProviderConfig returns a copy of the configuration for providerName, or
// nil when there is none. A provider disabled with enabled=false is
// reported without configuration, except for stripe which reads the flag
// itself.
func (c *ProviderConfig) ProviderConfig(providerName string) map[string]string {
	name := strings.ToLower(providerName)

	c.mu.RLock()
	config, exists := c.configs[name]
	c.mu.RUnlock()

	if !exists {
		return nil
	}
	if name != "stripe" && strings.EqualFold(config["enabled"], "false") {
		return nil
	}

	configCopy := make(map[string]string, len(config))
	for k, v := range config {
		configCopy[k] = v
	}
	return configCopy
}

// GetAvailableProviders returns the names of providers that have a configuration
func (c *ProviderConfig) GetAvailableProviders() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	providers := make([]string, 0, len(c.configs))
	for name := range c.configs {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}

// EnvKeys returns the environment variable used for each config key of providerName
func EnvKeys(providerName string) map[string]string {
	keys := providerEnv[strings.ToLower(providerName)]
	out := make(map[string]string, len(keys))
	for k, v := range keys {
		out[k] = v
	}
	return out
}
