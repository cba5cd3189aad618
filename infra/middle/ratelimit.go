package middle

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/paykit/infra/response"
)

// RateLimiter is a fixed window limiter keyed by client IP
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	window   time.Duration
	now      func() time.Time
}

type visitor struct {
	count     int
	lastReset time.Time
}

// NewRateLimiter allows rate requests per minute per client. Values below
// one fall back to 100.
func NewRateLimiter(rate int) *RateLimiter {
	if rate <= 0 {
		rate = 100
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   time.Minute,
		now:      time.Now,
	}
}

// Allow checks if the request is allowed
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[clientIP]

	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[clientIP] = &visitor{count: 1, lastReset: now}
		return true
	}

	if v.count >= rl.rate {
		return false
	}

	v.count++
	return true
}

// Run evicts idle visitors every window until ctx is done
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(GetClientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClientIP extracts the real client IP
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = strings.Trim(r.RemoteAddr, "[]")
	}
	if host == "::1" {
		return "127.0.0.1"
	}
	return host
}
