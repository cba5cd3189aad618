package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstgnz/paykit/handler"
	"github.com/mstgnz/paykit/infra/response"
	"github.com/mstgnz/paykit/provider"
	"github.com/mstgnz/paykit/provider/builtin"
)

const testAPIKey = "test-api-key"

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, checks map[string]handler.Pinger) *httptest.Server {
	t.Helper()
	registry, err := builtin.NewRegistry(builtin.Deps{})
	require.NoError(t, err)

	manager := provider.NewPaymentManager(registry, provider.StaticConfig{
		provider.BankTransfer: {"bank_name": "Example Bank", "account_number": "123456"},
	}, provider.WithDefaultProvider(provider.BankTransfer))

	srv := httptest.NewServer(New(Deps{
		Service:      manager,
		HealthChecks: checks,
		APIKey:       testAPIKey,
		Environment:  "test",
		Version:      "test",
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string, auth bool) (*http.Response, response.Response) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var resp response.Response
	if strings.Contains(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	}
	return res, resp
}

func TestNew_PublicRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	res, resp := call(t, srv, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, res.Header.Get("X-Content-Type-Options"))

	res, _ = call(t, srv, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestNew_HealthReportsFailingDependency(t *testing.T) {
	srv := newTestServer(t, map[string]handler.Pinger{
		"database": pingFunc(func(context.Context) error { return errors.New("down") }),
	})

	res, resp := call(t, srv, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.False(t, resp.Success)
}

func TestNew_APIRequiresKey(t *testing.T) {
	srv := newTestServer(t, nil)

	res, _ := call(t, srv, http.MethodGet, "/v1/providers", "", false)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, resp := call(t, srv, http.MethodGet, "/v1/providers", "", true)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, provider.BankTransfer, data["default"])
	assert.Contains(t, data["configured"], provider.BankTransfer)
	assert.Len(t, data["available"], 5)
}

func TestNew_BankTransferPayment(t *testing.T) {
	srv := newTestServer(t, nil)

	res, resp := call(t, srv, http.MethodPost, "/v1/payments", `{"amount":"49.90","currency":"eur"}`, true)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "EUR", data["currency"])
	assert.NotEmpty(t, data["transactionId"])

	// confirmation goes through the admin endpoint, not the provider
	res, _ = call(t, srv, http.MethodPost, "/v1/payments/confirm",
		`{"provider":"bank_transfer","paymentIntentId":"`+data["transactionId"].(string)+`"}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestNew_UnconfiguredProvider(t *testing.T) {
	srv := newTestServer(t, nil)

	res, resp := call(t, srv, http.MethodPost, "/v1/payments/stripe", `{"amount":"10","currency":"USD"}`, true)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, "Stripe payment service is not available", resp.Message)

	res, _ = call(t, srv, http.MethodPost, "/v1/payments/square", `{"amount":"10","currency":"USD"}`, true)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestNew_Webhooks(t *testing.T) {
	srv := newTestServer(t, nil)

	// stripe has no webhook secret configured
	res, _ := call(t, srv, http.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`, false)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	res, _ = call(t, srv, http.MethodPost, "/webhooks/unknown", `{}`, false)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
