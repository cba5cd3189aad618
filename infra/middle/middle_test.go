package middle

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mstgnz/paykit/infra/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("success"))
})

func TestAuthMiddleware(t *testing.T) {
	handler := AuthMiddleware("test-api-key")(okHandler)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Valid API key", "Bearer test-api-key", http.StatusOK},
		{"Invalid API key", "Bearer wrong-key", http.StatusUnauthorized},
		{"Missing Authorization header", "", http.StatusUnauthorized},
		{"Invalid format", "Basic test-api-key", http.StatusUnauthorized},
		{"Empty Bearer token", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestAuthMiddleware_NoKeyConfigured(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer anything")

	rr := httptest.NewRecorder()
	AuthMiddleware("")(okHandler).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("192.168.1.1"))
	assert.True(t, rl.Allow("192.168.1.1"))
	assert.False(t, rl.Allow("192.168.1.1"))
	assert.True(t, rl.Allow("192.168.1.2"), "other clients have their own window")

	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.Allow("192.168.1.1"))
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10)
	rl.now = func() time.Time { return now }

	rl.Allow("10.0.0.1")
	now = now.Add(3 * time.Minute)
	rl.Allow("10.0.0.2")
	rl.sweep()

	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "10.0.0.2")
}

func TestNewRateLimiter_Default(t *testing.T) {
	assert.Equal(t, 100, NewRateLimiter(0).rate)
	assert.Equal(t, 5, NewRateLimiter(5).rate)
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(NewRateLimiter(1))(okHandler)

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{"X-Forwarded-For single IP", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "192.168.1.1:12345", "203.0.113.1"},
		{"X-Forwarded-For multiple IPs", map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"}, "192.168.1.1:12345", "203.0.113.1"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.2"}, "192.168.1.1:12345", "203.0.113.2"},
		{"RemoteAddr fallback", nil, "192.168.1.1:12345", "192.168.1.1"},
		{"IPv6 loopback", nil, "[::1]:8080", "127.0.0.1"},
		{"RemoteAddr without port", nil, "192.168.1.9", "192.168.1.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expectedIP, GetClientIP(req))
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeadersMiddleware()(okHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for header, value := range expected {
		assert.Equal(t, value, rr.Header().Get(header), header)
	}
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestIPWhitelistMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		remote   string
		expected int
	}{
		{"empty list allows all", nil, "192.168.1.1:1", http.StatusOK},
		{"listed ip", []string{" 10.0.0.1 ", "10.0.0.2"}, "10.0.0.1:1", http.StatusOK},
		{"unlisted ip", []string{"10.0.0.1"}, "10.0.0.3:1", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remote
			rr := httptest.NewRecorder()
			IPWhitelistMiddleware(tt.allowed)(okHandler).ServeHTTP(rr, req)
			assert.Equal(t, tt.expected, rr.Code)
		})
	}
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware()(okHandler)

	tests := []struct {
		name           string
		method         string
		path           string
		contentType    string
		contentLength  int64
		expectedStatus int
	}{
		{"GET without content type", "GET", "/v1/providers", "", 0, http.StatusOK},
		{"POST json", "POST", "/v1/payments/stripe", "application/json", 0, http.StatusOK},
		{"POST json with charset", "POST", "/v1/payments/stripe", "application/json; charset=utf-8", 0, http.StatusOK},
		{"POST missing content type", "POST", "/v1/payments/stripe", "", 0, http.StatusBadRequest},
		{"POST wrong content type", "POST", "/v1/payments/stripe", "text/plain", 0, http.StatusUnsupportedMediaType},
		{"webhook form body", "POST", "/v1/webhooks/paypal", "application/x-www-form-urlencoded", 0, http.StatusOK},
		{"webhook without content type", "POST", "/v1/webhooks/apple_iap", "", 0, http.StatusOK},
		{"webhook wrong content type", "POST", "/v1/webhooks/stripe", "text/xml", 0, http.StatusUnsupportedMediaType},
		{"too large", "POST", "/v1/payments/stripe", "application/json", maxRequestBytes + 1, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.contentLength > 0 {
				req.ContentLength = tt.contentLength
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestRequestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger.SetGlobalLogger(logger.NewSystemLogger(logger.SystemLoggerConfig{
		Output:   &buf,
		MinLevel: logger.LevelDebug,
	}))
	t.Cleanup(func() { logger.SetGlobalLogger(nil) })

	handler := RequestLoggingMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("POST", "/v1/payments/paypal/refund", nil))

	out := buf.String()
	assert.Contains(t, out, `"provider":"paypal"`)
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, "Request failed")
}

func TestExtractProviderFromURL(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/payments/stripe", "stripe"},
		{"/v1/payments/paypal/refund", "paypal"},
		{"/v1/subscriptions/apple_iap/cancel", "apple_iap"},
		{"/v1/webhooks/google_play", "google_play"},
		{"/v1/payments/pi_123", ""},
		{"/health", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, extractProviderFromURL(tt.path))
		})
	}
}
