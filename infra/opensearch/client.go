package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/mstgnz/paykit/infra/config"
	"github.com/mstgnz/paykit/infra/logger"
)

const (
	indexPrefix     = "paykit-"
	systemLogsIndex = indexPrefix + "system-logs"
	setupTimeout    = 10 * time.Second
)

// providers whose webhook indices are created at start-up
var webhookProviders = []string{"stripe", "paypal", "bank_transfer", "apple_iap", "google_play"}

// Client wraps the OpenSearch client
type Client struct {
	client  *opensearch.Client
	enabled bool
}

// NewClient creates a new OpenSearch client. When logging is enabled the
// webhook and system log indices are created if missing; failures there are
// logged, not returned.
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.IsDevelopment(),
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}

	osClient := &Client{
		client:  client,
		enabled: cfg.EnableOpenSearch,
	}

	if osClient.enabled {
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()
		if err := osClient.setupIndices(ctx); err != nil {
			logger.Warn("Failed to setup OpenSearch indices", logger.LogContext{
				Fields: map[string]any{"error": err.Error()},
			})
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// setupIndices creates the webhook and system log indices that do not exist yet
func (c *Client) setupIndices(ctx context.Context) error {
	indices := []struct {
		name    string
		mapping string
	}{
		{systemLogsIndex, systemLogMapping},
	}
	for _, provider := range webhookProviders {
		indices = append(indices, struct {
			name    string
			mapping string
		}{c.WebhookIndexName(provider), webhookMapping})
	}

	var failed []string
	for _, index := range indices {
		exists, err := c.indexExists(ctx, index.name)
		if err != nil {
			failed = append(failed, index.name)
			continue
		}
		if exists {
			continue
		}
		if err := c.createIndex(ctx, index.name, index.mapping); err != nil {
			failed = append(failed, index.name)
			continue
		}
		logger.Info("Created OpenSearch index", logger.LogContext{
			Fields: map[string]any{"index": index.name},
		})
	}

	if len(failed) > 0 {
		return fmt.Errorf("could not prepare indices: %s", strings.Join(failed, ", "))
	}
	return nil
}

// indexExists checks if an index exists
func (c *Client) indexExists(ctx context.Context, indexName string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{indexName},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

func (c *Client) createIndex(ctx context.Context, indexName, mapping string) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: indexName,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	return nil
}

// WebhookIndexName returns the index holding a provider's webhook events
func (c *Client) WebhookIndexName(provider string) string {
	return indexPrefix + strings.ToLower(provider) + "-webhooks"
}

// IsEnabled returns whether OpenSearch logging is enabled
func (c *Client) IsEnabled() bool {
	return c.enabled
}

const webhookMapping = `{
	"mappings": {
		"properties": {
			"timestamp":     {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"received_at":   {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"provider":      {"type": "keyword"},
			"event_id":      {"type": "keyword"},
			"event_type":    {"type": "keyword"},
			"status":        {"type": "keyword"},
			"message":       {"type": "text"},
			"payload":       {"type": "text"},
			"provider_data": {"type": "object", "enabled": false}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`

const systemLogMapping = `{
	"mappings": {
		"properties": {
			"timestamp":   {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"level":       {"type": "keyword"},
			"message":     {"type": "text"},
			"component":   {"type": "keyword"},
			"provider":    {"type": "keyword"},
			"request_id":  {"type": "keyword"},
			"error":       {"type": "text"},
			"fields":      {"type": "object", "enabled": false},
			"environment": {"type": "keyword"},
			"service":     {"type": "keyword"},
			"version":     {"type": "keyword"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`

// Ping checks that the cluster answers
func (c *Client) Ping(ctx context.Context) error {
	res, err := opensearchapi.PingRequest{}.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("pinging opensearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch ping error: %s", res.Status())
	}
	return nil
}
