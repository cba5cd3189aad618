package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// provider responses larger than this are cut off
	maxResponseBytes = 2 << 20

	// error bodies are quoted up to this length
	maxErrorBodyLen = 512

	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"
)

// HTTPClientConfig represents configuration for HTTP client
type HTTPClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultHeaders map[string]string

	// Client overrides the underlying http.Client, e.g. one that injects OAuth tokens
	Client *http.Client
}

// HTTPRequest describes one call to a provider API. Body is sent as JSON by
// SendJSON; FormData is sent url-encoded by SendForm.
type HTTPRequest struct {
	Method      string
	Endpoint    string
	Headers     map[string]string
	Body        any
	FormData    map[string]string
	QueryParams map[string]string

	// BasicAuth is sent as an Authorization header when Username is set
	Username string
	Password string
}

// HTTPResponse is a fully read provider response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	RawBody    string
}

// HTTPError is returned for non-2xx responses. The response is still returned
// alongside it so callers can read provider error bodies.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > maxErrorBodyLen {
		body = body[:maxErrorBodyLen] + "..."
	}
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, body)
}

// ProviderHTTPClient sends JSON and form requests to one provider API
type ProviderHTTPClient struct {
	config *HTTPClientConfig
	client *http.Client
}

// NewProviderHTTPClient creates a new provider HTTP client
func NewProviderHTTPClient(config *HTTPClientConfig) *ProviderHTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = defaultHTTPTimeout
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &ProviderHTTPClient{config: config, client: client}
}

// BaseURL returns the configured base URL
func (c *ProviderHTTPClient) BaseURL() string {
	return c.config.BaseURL
}

// SendJSON sends req.Body as JSON
func (c *ProviderHTTPClient) SendJSON(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, req, body, contentTypeJSON)
}

// SendForm sends req.FormData url-encoded
func (c *ProviderHTTPClient) SendForm(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	var body io.Reader
	if len(req.FormData) > 0 {
		form := make(url.Values, len(req.FormData))
		for key, value := range req.FormData {
			form.Set(key, value)
		}
		body = strings.NewReader(form.Encode())
	}
	return c.do(ctx, req, body, contentTypeForm)
}

func (c *ProviderHTTPClient) do(ctx context.Context, req *HTTPRequest, body io.Reader, contentType string) (*HTTPResponse, error) {
	target, err := c.buildURL(req.Endpoint, req.QueryParams)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
		RawBody:    string(data),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &HTTPError{StatusCode: resp.StatusCode, Body: out.RawBody}
	}
	return out, nil
}

func joinURL(base, endpoint string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}

// buildURL resolves endpoint against the base URL unless it is absolute
func (c *ProviderHTTPClient) buildURL(endpoint string, query map[string]string) (string, error) {
	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		target = joinURL(c.config.BaseURL, endpoint)
	}
	if len(query) == 0 {
		return target, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", target, err)
	}
	q := u.Query()
	for key, value := range query {
		q.Set(key, value)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseJSONResponse decodes the response body into target
func (c *ProviderHTTPClient) ParseJSONResponse(response *HTTPResponse, target any) error {
	if len(response.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(response.Body, target)
}

// CreateHTTPClientConfig returns the configuration shared by the REST
// providers: JSON accept header and the PayKit user agent
func CreateHTTPClientConfig(baseURL string, timeout time.Duration) *HTTPClientConfig {
	return &HTTPClientConfig{
		BaseURL: baseURL,
		Timeout: timeout,
		DefaultHeaders: map[string]string{
			"Accept":     contentTypeJSON,
			"User-Agent": "PayKit/1.0",
		},
	}
}

// IsContextError reports whether err stems from the caller's context being
// cancelled or timing out, which providers surface as a Go error
func IsContextError(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}
