package middle

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mstgnz/paykit/infra/logger"
)

// RequestLoggingMiddleware writes one structured entry per request. 5xx
// responses are logged at error level, 4xx at warn.
func RequestLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			ctx := logger.LogContext{
				Provider:  extractProviderFromURL(r.URL.Path),
				RequestID: requestID(r),
				Fields: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      status,
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(start).Milliseconds(),
					"client_ip":   GetClientIP(r),
				},
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("Request failed", nil, ctx)
			case status >= http.StatusBadRequest:
				logger.Warn("Request rejected", ctx)
			default:
				logger.Debug("Request completed", ctx)
			}
		})
	}
}

// extractProviderFromURL finds the provider segment of /v1/payments/{provider}/...
// and /v1/webhooks/{provider} style paths
func extractProviderFromURL(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		switch part {
		case "payments", "subscriptions", "webhooks":
			if i+1 < len(parts) && isProviderName(parts[i+1]) {
				return parts[i+1]
			}
		}
	}
	return ""
}

var knownProviders = map[string]bool{
	"stripe": true, "paypal": true, "bank_transfer": true, "apple_iap": true, "google_play": true,
}

func isProviderName(s string) bool {
	return knownProviders[strings.ToLower(s)]
}
