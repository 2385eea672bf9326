// Package handlers provides HTTP handlers and middleware for the Memento
// assistant API.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/scrypster/memento-assistant/internal/config"
)

// RequireAuth enforces bearer-token authentication when the server runs in
// production mode. Development mode passes every request through so the
// assistant can be exercised locally without a token.
func RequireAuth(next http.Handler, cfg *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.Security.SecurityMode == config.SecurityModeDevelopment {
			next.ServeHTTP(w, r)
			return
		}
		if !bearerTokenValid(r, cfg.Security.APIToken) {
			respondError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerTokenValid reports whether the request carries the configured API
// token. A server with no token configured rejects everything rather than
// falling open.
func bearerTokenValid(r *http.Request, expected string) bool {
	if expected == "" {
		return false
	}
	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// RateLimiter throttles the whole API surface with a single token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter with a sustained rate of reqPerSec and
// the given burst capacity.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst)}
}

// RateLimitMiddleware rejects requests that exceed the limiter's budget
// with 429 instead of queueing them.
func RateLimitMiddleware(next http.Handler, rl *RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
