package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// CORS lets browser extensions and web front ends on origins call the API.
// Entries may be "*" or a wildcard subdomain such as "https://*.example.com".
// With no origins the handler is returned unchanged.
func CORS(origins ...string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", apiKeyHeader, chimw.RequestIDHeader},
		// Clients back off using the rate-limit headers.
		ExposedHeaders: []string{chimw.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         int((24 * time.Hour).Seconds()),
	})
}
