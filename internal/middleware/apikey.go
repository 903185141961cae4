// Package middleware provides HTTP middleware for the control API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/Rorqualx/proxydl/internal/config"
)

// APIKey returns middleware that validates API key authentication.
// If API key authentication is disabled in config, requests pass through unchanged.
// The health endpoint is always allowed without authentication.
func APIKey(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.APIKeyEnabled || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			// Keys are only read from headers so they never end up in access logs.
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					apiKey = bearer
				}
			}

			// Use constant-time comparison to prevent timing attacks
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.APIKey)) != 1 {
				writeErrorResponse(w, http.StatusUnauthorized, "Invalid or missing API key", time.Now())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
