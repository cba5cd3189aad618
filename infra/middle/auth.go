package middle

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mstgnz/paykit/infra/response"
)

// AuthMiddleware validates API key authentication. An empty apiKey rejects
// every request so a missing key never opens the API.
func AuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				response.Error(w, http.StatusInternalServerError, "API key not configured", nil)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <api_key>", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "API key required", nil)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				response.Error(w, http.StatusUnauthorized, "Invalid API key", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
