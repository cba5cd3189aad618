package middle

import (
	"net/http"
	"strings"

	"github.com/mstgnz/paykit/infra/response"
)

const maxRequestBytes = 10 * 1024 * 1024

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Referrer-Policy", "no-referrer")

			next.ServeHTTP(w, r)
		})
	}
}

// IPWhitelistMiddleware restricts access to the given client IPs. An empty
// list allows everyone.
func IPWhitelistMiddleware(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]bool, len(allowed))
	for _, ip := range allowed {
		if ip = strings.TrimSpace(ip); ip != "" {
			set[ip] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(set) > 0 && !set[GetClientIP(r)] {
				response.Error(w, http.StatusForbidden, "IP not whitelisted", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestValidationMiddleware validates common request properties. Webhook
// endpoints also accept form bodies and may omit Content-Type.
func RequestValidationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				contentType := r.Header.Get("Content-Type")
				isWebhook := strings.Contains(r.URL.Path, "/webhooks")

				switch {
				case contentType == "" && !isWebhook:
					response.Error(w, http.StatusBadRequest, "Content-Type header is required", nil)
					return
				case contentType == "":
				case isWebhook:
					if !strings.Contains(contentType, "application/json") &&
						!strings.Contains(contentType, "application/x-www-form-urlencoded") {
						response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or application/x-www-form-urlencoded", nil)
						return
					}
				case !strings.Contains(contentType, "application/json"):
					response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
					return
				}
			}

			if r.ContentLength > maxRequestBytes {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

			next.ServeHTTP(w, r)
		})
	}
}
