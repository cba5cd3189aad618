package opensearch

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/paykit/infra/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		enabled bool
	}{
		{
			name:    "disabled",
			cfg:     &config.AppConfig{OpenSearchURL: "http://localhost:9200"},
			enabled: false,
		},
		{
			name: "with_auth_disabled",
			cfg: &config.AppConfig{
				OpenSearchURL:  "http://localhost:9200",
				OpenSearchUser: "admin",
				OpenSearchPass: "admin",
			},
			enabled: false,
		},
		{
			name:    "empty_url",
			cfg:     &config.AppConfig{},
			enabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, client.GetClient())
			assert.Equal(t, tt.enabled, client.IsEnabled())
		})
	}
}

func TestNewClient_CreatesMissingIndices(t *testing.T) {
	fake, srv := newFakeOpenSearch(t)
	fake.indices[systemLogsIndex] = true

	client := newTestClient(t, srv.URL, true)
	assert.True(t, client.IsEnabled())

	created := fake.recorded(http.MethodPut, "-webhooks")
	assert.Len(t, created, len(webhookProviders))
	assert.Empty(t, fake.recorded(http.MethodPut, systemLogsIndex))
	for _, p := range webhookProviders {
		assert.True(t, fake.indices[client.WebhookIndexName(p)], p)
	}
}

func TestNewClient_SetupFailureIsNotFatal(t *testing.T) {
	fake, srv := newFakeOpenSearch(t)
	fake.fail = true

	client := newTestClient(t, srv.URL, true)
	assert.True(t, client.IsEnabled())
}

func TestClient_setupIndices(t *testing.T) {
	fake, srv := newFakeOpenSearch(t)
	client := newTestClient(t, srv.URL, false)

	require.NoError(t, client.setupIndices(context.Background()))
	assert.Len(t, fake.recorded(http.MethodPut, ""), len(webhookProviders)+1)

	// second run finds everything in place
	require.NoError(t, client.setupIndices(context.Background()))
	assert.Len(t, fake.recorded(http.MethodPut, ""), len(webhookProviders)+1)

	fake.fail = true
	fake.indices = map[string]bool{}
	err := client.setupIndices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), systemLogsIndex)
}

func TestClient_WebhookIndexName(t *testing.T) {
	client := &Client{}
	tests := []struct {
		provider string
		want     string
	}{
		{"stripe", "paykit-stripe-webhooks"},
		{"PayPal", "paykit-paypal-webhooks"},
		{"apple_iap", "paykit-apple_iap-webhooks"},
		{"google_play", "paykit-google_play-webhooks"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, client.WebhookIndexName(tt.provider))
		})
	}
}
