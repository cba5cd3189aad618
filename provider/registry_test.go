package provider

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubFactory(name string) ProviderFactory {
	return func() PaymentProvider { return newStubProvider(name) }
}

func TestProviderRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		factory ProviderFactory
		wantErr string
	}{
		{"valid", "stripe", stubFactory("stripe"), ""},
		{"name is lowercased", "Stripe", stubFactory("stripe"), ""},
		{"empty name", "  ", stubFactory("stripe"), "cannot be empty"},
		{"nil factory", "stripe", nil, "factory cannot be nil"},
		{"factory returns nil", "stripe", func() PaymentProvider { return nil }, "factory returned nil"},
		{"name mismatch", "paypal", stubFactory("stripe"), "factory builds 'stripe'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewProviderRegistry()
			err := registry.Register(tt.key, tt.factory)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Empty(t, registry.AvailableProviders())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"stripe"}, registry.AvailableProviders())
		})
	}
}

func TestProviderRegistry_AvailableProviders(t *testing.T) {
	registry := NewProviderRegistry()
	assert.Empty(t, registry.AvailableProviders())

	require.NoError(t, registry.Register("stripe", stubFactory("stripe")))
	require.NoError(t, registry.Register("bank_transfer", stubFactory("bank_transfer")))
	require.NoError(t, registry.Register("apple_iap", stubFactory("apple_iap")))

	assert.Equal(t, []string{"apple_iap", "bank_transfer", "stripe"}, registry.AvailableProviders())
}

func TestProviderRegistry_Create(t *testing.T) {
	registry := NewProviderRegistry()
	require.NoError(t, registry.Register("stripe", stubFactory("stripe")))
	require.NoError(t, registry.Register("paypal", stubFactory("paypal")))

	t.Run("case-insensitive lookup", func(t *testing.T) {
		p, err := registry.Create("STRIPE", map[string]string{"api_key": "k"})
		require.NoError(t, err)
		assert.Equal(t, "stripe", p.Name())
		assert.True(t, p.IsConfigured())
	})

	t.Run("unconfigured provider is still returned", func(t *testing.T) {
		p, err := registry.Create("paypal", nil)
		require.NoError(t, err)
		assert.False(t, p.IsConfigured())
	})

	t.Run("unknown provider lists registered names", func(t *testing.T) {
		p, err := registry.Create("nonexistent", nil)
		assert.Nil(t, p)
		require.Error(t, err)

		pe, ok := AsPaymentError(err)
		require.True(t, ok)
		assert.Equal(t, CodeProviderNotFound, pe.Code)
		assert.Contains(t, pe.Message, "paypal, stripe")
		assert.Contains(t, pe.Message, "nonexistent")
	})

	t.Run("malformed configuration", func(t *testing.T) {
		_, err := registry.Create("stripe", map[string]string{"invalid": "x"})
		require.Error(t, err)
		assert.True(t, IsCode(err, CodeProviderNotConfigured))
	})
}

func TestProviderRegistry_ConfiguredProviders(t *testing.T) {
	registry := NewProviderRegistry()
	require.NoError(t, registry.Register("stripe", stubFactory("stripe")))
	require.NoError(t, registry.Register("paypal", stubFactory("paypal")))
	require.NoError(t, registry.Register("apple_iap", stubFactory("apple_iap")))
	require.NoError(t, registry.Register("google_play", stubFactory("google_play")))

	configs := StaticConfig{
		"stripe":      {"api_key": "sk"},
		"paypal":      {"panic": "boom"},
		"google_play": {"invalid": "x"},
	}

	assert.Equal(t, []string{"stripe"}, registry.ConfiguredProviders(configs))
	assert.Empty(t, registry.ConfiguredProviders(nil))
}

func TestProviderRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewProviderRegistry()

	var wg sync.WaitGroup
	for _, name := range []string{"stripe", "paypal", "bank_transfer", "apple_iap", "google_play"} {
		wg.Add(2)
		go func(name string) {
			defer wg.Done()
			assert.NoError(t, registry.Register(name, stubFactory(name)))
		}(name)
		go func() {
			defer wg.Done()
			_ = registry.AvailableProviders()
		}()
	}
	wg.Wait()

	assert.Len(t, registry.AvailableProviders(), 5)
}
