package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/provider"
)

// WebhookLog is the document indexed for every processed webhook
type WebhookLog struct {
	Timestamp    time.Time      `json:"timestamp"`
	ReceivedAt   time.Time      `json:"received_at"`
	Provider     string         `json:"provider"`
	EventID      string         `json:"event_id,omitempty"`
	EventType    string         `json:"event_type"`
	Status       string         `json:"status,omitempty"`
	Message      string         `json:"message,omitempty"`
	Payload      string         `json:"payload,omitempty"`
	ProviderData map[string]any `json:"provider_data,omitempty"`
}

// Logger indexes webhook events and system log entries. It is a
// provider.AuditSink and a logger.Sink.
type Logger struct {
	client *Client
	now    func() time.Time
}

var (
	_ provider.AuditSink = (*Logger)(nil)
	_ logger.Sink        = (*Logger)(nil)
)

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
		now:    time.Now,
	}
}

// RecordWebhook indexes a processed webhook event. Secrets in the payload
// are redacted first.
func (l *Logger) RecordWebhook(ctx context.Context, event *provider.WebhookEvent, result *provider.WebhookResult) error {
	if !l.client.IsEnabled() || event == nil {
		return nil
	}

	doc := WebhookLog{
		Timestamp:    l.now().UTC(),
		ReceivedAt:   event.ReceivedAt.UTC(),
		Provider:     event.Provider,
		EventID:      event.EventID,
		EventType:    event.EventType,
		ProviderData: event.ProviderData,
	}
	if result != nil {
		doc.Status = result.Status
		doc.Message = result.Message
	}
	if len(event.Payload) > 0 {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal webhook payload: %w", err)
		}
		doc.Payload = SanitizeForLog(string(payload))
	}

	return l.index(ctx, l.client.WebhookIndexName(event.Provider), doc)
}

// LogSystemEvent indexes a system log entry
func (l *Logger) LogSystemEvent(ctx context.Context, entry logger.SystemLog) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, systemLogsIndex, entry)
}

func (l *Logger) index(ctx context.Context, indexName string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index: indexName,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// SearchWebhooks returns a provider's webhook documents matching query,
// newest first
func (l *Logger) SearchWebhooks(ctx context.Context, providerName string, query map[string]any) ([]WebhookLog, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	searchQuery := map[string]any{
		"query": query,
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": 100,
	}

	res, err := l.search(ctx, l.client.WebhookIndexName(providerName), searchQuery)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source WebhookLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	logs := make([]WebhookLog, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		logs[i] = hit.Source
	}
	return logs, nil
}

// GetEventLogs returns every indexed delivery of one provider event
func (l *Logger) GetEventLogs(ctx context.Context, providerName, eventID string) ([]WebhookLog, error) {
	return l.SearchWebhooks(ctx, providerName, map[string]any{
		"term": map[string]any{"event_id": eventID},
	})
}

// GetWebhookStats aggregates a provider's webhook statuses and event types
// over the last hours
func (l *Logger) GetWebhookStats(ctx context.Context, providerName string, hours int) (map[string]any, error) {
	if !l.client.IsEnabled() {
		return nil, fmt.Errorf("logging is disabled")
	}

	aggQuery := map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{"gte": fmt.Sprintf("now-%dh", hours)},
			},
		},
		"aggs": map[string]any{
			"statuses":    map[string]any{"terms": map[string]any{"field": "status", "size": 10}},
			"event_types": map[string]any{"terms": map[string]any{"field": "event_type", "size": 20}},
		},
		"size": 0,
	}

	res, err := l.search(ctx, l.client.WebhookIndexName(providerName), aggQuery)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var result map[string]any
	if err := json.NewDecoder(res).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation results: %w", err)
	}
	return result, nil
}

func (l *Logger) search(ctx context.Context, indexName string, query map[string]any) (io.ReadCloser, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if res.IsError() {
		defer res.Body.Close()
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}
	return res.Body, nil
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{
		"secret_key", "client_secret", "shared_secret", "password", "receipt-data",
		"private_key", "access_token", "token", "authorization", "api_key", "card_number", "cvc",
	}
	patterns := make([]*regexp.Regexp, 0, len(fields))
	for _, field := range fields {
		patterns = append(patterns, regexp.MustCompile(`"(`+regexp.QuoteMeta(field)+`)"\s*:\s*"[^"]*"`))
	}
	return patterns
}()

// SanitizeForLog redacts credential values in a JSON document
func SanitizeForLog(data string) string {
	result := data
	for _, re := range sensitivePatterns {
		result = re.ReplaceAllString(result, `"$1":"***REDACTED***"`)
	}
	return result
}
